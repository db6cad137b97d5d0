package client_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	journalclient "github.com/robustmq/robustmq/pkg/journal/client"
	"github.com/robustmq/robustmq/pkg/journal/store"
	"github.com/robustmq/robustmq/pkg/rpc"
)

type fixedResolver struct {
	addr       string
	segmentSeq uint64
}

func (r fixedResolver) ActiveSegment(ctx context.Context, namespace, shardName string) (journalclient.ActiveSegment, error) {
	return journalclient.ActiveSegment{NodeAddr: r.addr, SegmentSeq: r.segmentSeq}, nil
}

// startTestJournalServer runs a store.Store behind a real gRPC server on a
// loopback port, returning its address.
func startTestJournalServer(t *testing.T) string {
	t.Helper()
	st := store.New(t.TempDir(), 0)
	t.Cleanup(st.Close)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	srv := grpc.NewServer()
	rpc.RegisterJournalServer(srv, st)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	_, err = st.CreateShard(context.Background(), &rpc.CreateShardRequest{Namespace: "ns", ShardName: "shard-1"})
	require.NoError(t, err)

	return lis.Addr().String()
}

func TestBatchWriteThenReadByOffsetRoundTrips(t *testing.T) {
	addr := startTestJournalServer(t)
	resolver := fixedResolver{addr: addr, segmentSeq: 0}
	c := journalclient.New(resolver)
	t.Cleanup(c.Close)
	ctx := context.Background()

	offsets, err := c.BatchWrite(ctx, "ns", "shard-1", []journalclient.PendingRecord{
		{Value: []byte("a"), Timestamp: 1},
		{Value: []byte("b"), Timestamp: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, offsets)

	records, err := c.ReadByOffset(ctx, "ns", "shard-1", 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []byte("a"), records[0].Value)
}

func TestReadByKeyReturnsLatestValue(t *testing.T) {
	addr := startTestJournalServer(t)
	resolver := fixedResolver{addr: addr, segmentSeq: 0}
	c := journalclient.New(resolver)
	t.Cleanup(c.Close)
	ctx := context.Background()

	_, err := c.BatchWrite(ctx, "ns", "shard-1", []journalclient.PendingRecord{
		{Key: "device-1", Value: []byte("old"), Timestamp: 1},
		{Key: "device-1", Value: []byte("new"), Timestamp: 2},
	})
	require.NoError(t, err)

	rec, ok, err := c.ReadByKey(ctx, "ns", "shard-1", "device-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), rec.Value)
}

// countingResolver counts how often the client falls through to it.
type countingResolver struct {
	fixedResolver
	calls int
}

func (r *countingResolver) ActiveSegment(ctx context.Context, namespace, shardName string) (journalclient.ActiveSegment, error) {
	r.calls++
	return r.fixedResolver.ActiveSegment(ctx, namespace, shardName)
}

func TestResolveCachesActiveSegmentWithinTTL(t *testing.T) {
	addr := startTestJournalServer(t)
	resolver := &countingResolver{fixedResolver: fixedResolver{addr: addr, segmentSeq: 0}}
	c := journalclient.New(resolver)
	t.Cleanup(c.Close)
	ctx := context.Background()

	_, err := c.ReadByOffset(ctx, "ns", "shard-1", 0, 0, 0)
	require.NoError(t, err)
	_, err = c.ReadByOffset(ctx, "ns", "shard-1", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}
