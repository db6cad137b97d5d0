package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/rpc"
)

// segmentTTL bounds how long a resolved active segment is trusted before
// the client re-resolves it against the meta service, per spec 4.12's
// "resolves the active segment on each call (with TTL)".
const segmentTTL = 5 * time.Second

// PendingRecord is one record submitted to BatchWrite.
type PendingRecord struct {
	Key       string
	Value     []byte
	Tags      []string
	Header    map[string]string
	Timestamp int64
}

// ActiveSegment is a resolved (node address, segment sequence) for a shard.
type ActiveSegment struct {
	NodeAddr   string
	SegmentSeq uint64
}

// Resolver looks up the node address and active segment for a shard,
// normally backed by the meta service's GetShard/ListSegments RPCs.
type Resolver interface {
	ActiveSegment(ctx context.Context, namespace, shardName string) (ActiveSegment, error)
}

type cacheEntry struct {
	segment   ActiveSegment
	expiresAt time.Time
}

// Client is the broker-side handle to the journal storage engine.
type Client struct {
	pool     *ConnPool
	resolver Resolver

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Client backed by resolver for shard-to-segment lookups.
func New(resolver Resolver) *Client {
	return &Client{pool: NewConnPool(), resolver: resolver, cache: make(map[string]cacheEntry)}
}

// Close releases pooled connections.
func (c *Client) Close() { c.pool.Close() }

func cacheKey(namespace, shardName string) string { return namespace + "/" + shardName }

func (c *Client) resolve(ctx context.Context, namespace, shardName string) (ActiveSegment, error) {
	key := cacheKey(namespace, shardName)

	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.segment, nil
	}

	seg, err := c.resolver.ActiveSegment(ctx, namespace, shardName)
	if err != nil {
		return ActiveSegment{}, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{segment: seg, expiresAt: time.Now().Add(segmentTTL)}
	c.mu.Unlock()
	return seg, nil
}

// invalidate drops a shard's cached segment, used after a write fails
// against a segment that turns out to have sealed underneath the client.
func (c *Client) invalidate(namespace, shardName string) {
	c.mu.Lock()
	delete(c.cache, cacheKey(namespace, shardName))
	c.mu.Unlock()
}

func (c *Client) journalClient(addr string) (*rpc.JournalClient, error) {
	conn, err := c.pool.Get(addr)
	if err != nil {
		return nil, err
	}
	return rpc.DialJournal(conn), nil
}

// CreateShard asks the journal node at addr to open (or create) the first
// segment of namespace/shard; no segment resolution is done here. The caller is expected
// to have already placed the shard via the meta service; this simply
// primes the journal node's on-disk state.
func (c *Client) CreateShard(ctx context.Context, addr, namespace, shardName string) error {
	jc, err := c.journalClient(addr)
	if err != nil {
		return err
	}
	_, err = jc.CreateShard(ctx, &rpc.CreateShardRequest{Namespace: namespace, ShardName: shardName})
	return err
}

// DeleteShard asks a journal node to remove a shard and its segments.
func (c *Client) DeleteShard(ctx context.Context, addr, namespace, shardName string) error {
	jc, err := c.journalClient(addr)
	if err != nil {
		return err
	}
	_, err = jc.DeleteShard(ctx, &rpc.DeleteShardRequest{Namespace: namespace, ShardName: shardName})
	if err == nil {
		c.invalidate(namespace, shardName)
	}
	return err
}

// BatchWrite resolves the shard's active segment and appends every record
// to it in one batch, since all records here already share (namespace,
// shard); batching across multiple shards is the caller's job (e.g. the
// MQTT broker's publish pipeline groups by shard before calling in).
func (c *Client) BatchWrite(ctx context.Context, namespace, shardName string, records []PendingRecord) ([]uint64, error) {
	seg, err := c.resolve(ctx, namespace, shardName)
	if err != nil {
		return nil, err
	}
	jc, err := c.journalClient(seg.NodeAddr)
	if err != nil {
		return nil, err
	}

	inputs := make([]rpc.RecordInput, 0, len(records))
	for _, r := range records {
		inputs = append(inputs, rpc.RecordInput{Key: r.Key, Value: r.Value, Tags: r.Tags, Header: r.Header, Timestamp: r.Timestamp})
	}

	reply, err := jc.BatchWrite(ctx, &rpc.BatchWriteRequest{
		Namespace: namespace, ShardName: shardName, SegmentSeq: seg.SegmentSeq, Records: inputs,
	})
	if err != nil {
		c.invalidate(namespace, shardName)
		return nil, fmt.Errorf("journal client: batch write to %s: %w", seg.NodeAddr, err)
	}
	return reply.Offsets, nil
}

// ReadByOffset resolves the shard's active segment and reads forward from
// startOffset.
func (c *Client) ReadByOffset(ctx context.Context, namespace, shardName string, startOffset uint64, maxRecordNum int, maxByteSize int64) ([]rpc.RecordOutput, error) {
	seg, err := c.resolve(ctx, namespace, shardName)
	if err != nil {
		return nil, err
	}
	jc, err := c.journalClient(seg.NodeAddr)
	if err != nil {
		return nil, err
	}
	reply, err := jc.ReadByOffset(ctx, &rpc.ReadByOffsetRequest{
		Namespace: namespace, ShardName: shardName, SegmentSeq: seg.SegmentSeq,
		StartOffset: startOffset, MaxRecordNum: maxRecordNum, MaxByteSize: maxByteSize,
	})
	if err != nil {
		return nil, err
	}
	return reply.Records, nil
}

// ReadByKey resolves the shard's active segment and reads the unique
// latest record stored under key.
func (c *Client) ReadByKey(ctx context.Context, namespace, shardName, key string) (rpc.RecordOutput, bool, error) {
	seg, err := c.resolve(ctx, namespace, shardName)
	if err != nil {
		return rpc.RecordOutput{}, false, err
	}
	jc, err := c.journalClient(seg.NodeAddr)
	if err != nil {
		return rpc.RecordOutput{}, false, err
	}
	reply, err := jc.ReadByKey(ctx, &rpc.ReadByKeyRequest{Namespace: namespace, ShardName: shardName, SegmentSeq: seg.SegmentSeq, Key: key})
	if err != nil {
		return rpc.RecordOutput{}, false, err
	}
	if !reply.Found || len(reply.Records) == 0 {
		return rpc.RecordOutput{}, false, nil
	}
	return reply.Records[0], true, nil
}

// ReadByTag resolves the shard's active segment and reads every record
// tagged tag with offset >= startOffset.
func (c *Client) ReadByTag(ctx context.Context, namespace, shardName, tag string, startOffset uint64, maxRecordNum int, maxByteSize int64) ([]rpc.RecordOutput, error) {
	seg, err := c.resolve(ctx, namespace, shardName)
	if err != nil {
		return nil, err
	}
	jc, err := c.journalClient(seg.NodeAddr)
	if err != nil {
		return nil, err
	}
	reply, err := jc.ReadByTag(ctx, &rpc.ReadByTagRequest{
		Namespace: namespace, ShardName: shardName, SegmentSeq: seg.SegmentSeq,
		Tag: tag, StartOffset: startOffset, MaxRecordNum: maxRecordNum, MaxByteSize: maxByteSize,
	})
	if err != nil {
		return nil, err
	}
	return reply.Records, nil
}

// GetOffsetByTimestamp resolves the shard's active segment and returns the
// first offset at or after target.
func (c *Client) GetOffsetByTimestamp(ctx context.Context, namespace, shardName string, target int64) (uint64, bool, error) {
	seg, err := c.resolve(ctx, namespace, shardName)
	if err != nil {
		return 0, false, err
	}
	jc, err := c.journalClient(seg.NodeAddr)
	if err != nil {
		return 0, false, err
	}
	reply, err := jc.GetOffsetByTimestamp(ctx, &rpc.GetOffsetByTimestampRequest{Namespace: namespace, ShardName: shardName, SegmentSeq: seg.SegmentSeq, Timestamp: target})
	if err != nil {
		return 0, false, err
	}
	return reply.Offset, reply.Found, nil
}
