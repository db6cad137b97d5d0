// Package store implements the journal node's rpc.JournalServer surface
// atop pkg/journal/segment, the same role pkg/worker.Worker's concurrent
// task-map plays for container tasks generalized here to a concurrent map
// of open segments keyed by (namespace, shard, segment_seq).
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/journal/segment"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

func toRecordOutputs(records []types.Record) []rpc.RecordOutput {
	out := make([]rpc.RecordOutput, 0, len(records))
	for _, r := range records {
		out = append(out, rpc.RecordOutput{
			Offset: r.Offset, Key: r.Key, Value: r.Value, Tags: r.Tags, Header: r.Header, Timestamp: r.Timestamp,
		})
	}
	return out
}

type segmentKey struct {
	namespace  string
	shardName  string
	segmentSeq uint64
}

// Store owns every open segment on one journal node and implements
// rpc.JournalServer directly over them.
type Store struct {
	baseDir string
	maxSize int64

	mu       sync.RWMutex
	segments map[segmentKey]*segment.Segment
}

// New builds a Store rooted at baseDir, where each segment lives at
// baseDir/namespace/shard_name/segment_seq.log.
func New(baseDir string, maxSize int64) *Store {
	return &Store{baseDir: baseDir, maxSize: maxSize, segments: make(map[segmentKey]*segment.Segment)}
}

func (s *Store) path(key segmentKey) string {
	return filepath.Join(s.baseDir, key.namespace, key.shardName, fmt.Sprintf("%020d.log", key.segmentSeq))
}

func (s *Store) openSegment(key segmentKey) (*segment.Segment, error) {
	s.mu.RLock()
	seg, ok := s.segments[key]
	s.mu.RUnlock()
	if ok {
		return seg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seg, ok := s.segments[key]; ok {
		return seg, nil
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	seg, err := segment.Open(segment.Config{
		ShardName:  key.shardName,
		SegmentSeq: key.segmentSeq,
		Path:       path,
		MaxSize:    s.maxSize,
	})
	if err != nil {
		return nil, err
	}
	s.segments[key] = seg
	log.WithSegment(key.shardName, key.segmentSeq).Info().Str("namespace", key.namespace).Msg("journal: segment opened")
	return seg, nil
}

// CreateShard opens the shard's first segment (seq 0), creating it if absent.
func (s *Store) CreateShard(ctx context.Context, req *rpc.CreateShardRequest) (*rpc.CreateShardReply, error) {
	key := segmentKey{namespace: req.Namespace, shardName: req.ShardName, segmentSeq: 0}
	if _, err := s.openSegment(key); err != nil {
		return nil, err
	}
	return &rpc.CreateShardReply{}, nil
}

// DeleteShard closes and removes every segment file under the shard's directory.
func (s *Store) DeleteShard(ctx context.Context, req *rpc.DeleteShardRequest) (*rpc.DeleteShardReply, error) {
	s.mu.Lock()
	for key, seg := range s.segments {
		if key.namespace == req.Namespace && key.shardName == req.ShardName {
			seg.Close()
			delete(s.segments, key)
		}
	}
	s.mu.Unlock()

	dir := filepath.Join(s.baseDir, req.Namespace, req.ShardName)
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	return &rpc.DeleteShardReply{}, nil
}

func (s *Store) segmentFor(namespace, shardName string, segmentSeq uint64) (*segment.Segment, error) {
	key := segmentKey{namespace: namespace, shardName: shardName, segmentSeq: segmentSeq}
	s.mu.RLock()
	seg, ok := s.segments[key]
	s.mu.RUnlock()
	if !ok {
		return nil, robustmqerrors.ErrSegmentNotExist
	}
	return seg, nil
}

// BatchWrite appends req.Records to the resolved (namespace, shard,
// segment)'s active segment.
func (s *Store) BatchWrite(ctx context.Context, req *rpc.BatchWriteRequest) (*rpc.BatchWriteReply, error) {
	seg, err := s.segmentFor(req.Namespace, req.ShardName, req.SegmentSeq)
	if err != nil {
		return nil, err
	}
	records := make([]segment.PendingRecord, 0, len(req.Records))
	for _, r := range req.Records {
		records = append(records, segment.PendingRecord{
			Key: r.Key, Value: r.Value, Tags: r.Tags, Header: r.Header, Timestamp: r.Timestamp,
		})
	}
	offsets, err := seg.Append(records)
	if err != nil {
		return nil, err
	}
	return &rpc.BatchWriteReply{Offsets: offsets}, nil
}

func (s *Store) ReadByOffset(ctx context.Context, req *rpc.ReadByOffsetRequest) (*rpc.ReadReply, error) {
	seg, err := s.segmentFor(req.Namespace, req.ShardName, req.SegmentSeq)
	if err != nil {
		return nil, err
	}
	records, err := seg.ReadByOffset(req.StartOffset, segment.ReadOptions{MaxRecordNum: req.MaxRecordNum, MaxByteSize: req.MaxByteSize})
	if err != nil {
		return nil, err
	}
	return &rpc.ReadReply{Records: toRecordOutputs(records), Found: len(records) > 0}, nil
}

func (s *Store) ReadByKey(ctx context.Context, req *rpc.ReadByKeyRequest) (*rpc.ReadReply, error) {
	seg, err := s.segmentFor(req.Namespace, req.ShardName, req.SegmentSeq)
	if err != nil {
		return nil, err
	}
	rec, ok, err := seg.ReadByKey(req.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &rpc.ReadReply{Found: false}, nil
	}
	return &rpc.ReadReply{Records: toRecordOutputs([]types.Record{rec}), Found: true}, nil
}

func (s *Store) ReadByTag(ctx context.Context, req *rpc.ReadByTagRequest) (*rpc.ReadReply, error) {
	seg, err := s.segmentFor(req.Namespace, req.ShardName, req.SegmentSeq)
	if err != nil {
		return nil, err
	}
	records, err := seg.ReadByTag(req.Tag, req.StartOffset, segment.ReadOptions{MaxRecordNum: req.MaxRecordNum, MaxByteSize: req.MaxByteSize})
	if err != nil {
		return nil, err
	}
	return &rpc.ReadReply{Records: toRecordOutputs(records), Found: len(records) > 0}, nil
}

func (s *Store) GetOffsetByTimestamp(ctx context.Context, req *rpc.GetOffsetByTimestampRequest) (*rpc.GetOffsetByTimestampReply, error) {
	seg, err := s.segmentFor(req.Namespace, req.ShardName, req.SegmentSeq)
	if err != nil {
		return nil, err
	}
	records, err := seg.ReadByTimestamp(req.Timestamp, segment.ReadOptions{MaxRecordNum: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &rpc.GetOffsetByTimestampReply{Found: false}, nil
	}
	return &rpc.GetOffsetByTimestampReply{Offset: records[0].Offset, Found: true}, nil
}

// Close closes every open segment.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, seg := range s.segments {
		seg.Close()
		delete(s.segments, key)
	}
}
