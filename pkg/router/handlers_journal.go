package router

import (
	"fmt"

	"github.com/robustmq/robustmq/pkg/kv"
	"github.com/robustmq/robustmq/pkg/types"
)

func handleJournalSetShard(r *Router, payload []byte) (any, error) {
	shard, err := decode[types.Shard](payload)
	if err != nil {
		return nil, fmt.Errorf("decode shard: %w", err)
	}
	return r.putJSON(kv.CFStorage, shardKey(shard.ShardName), shard)
}

func handleJournalDeleteShard(r *Router, payload []byte) (any, error) {
	shardName, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode shard name: %w", err)
	}
	return r.deleteKey(kv.CFStorage, shardKey(shardName))
}

func handleJournalSetSegment(r *Router, payload []byte) (any, error) {
	segment, err := decode[types.Segment](payload)
	if err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	return r.putJSON(kv.CFStorage, segmentKey(segment.ShardName, segment.SegmentSeq), segment)
}

// JournalSegmentRef names one segment by its composite key, the Delete
// payload shape for both JournalDeleteSegment and
// JournalDeleteSegmentMetadata.
type JournalSegmentRef struct {
	ShardName  string `json:"shard_name"`
	SegmentSeq uint64 `json:"segment_seq"`
}

func handleJournalDeleteSegment(r *Router, payload []byte) (any, error) {
	ref, err := decode[JournalSegmentRef](payload)
	if err != nil {
		return nil, fmt.Errorf("decode segment ref: %w", err)
	}
	return r.deleteKey(kv.CFStorage, segmentKey(ref.ShardName, ref.SegmentSeq))
}

func handleJournalSetSegmentMetadata(r *Router, payload []byte) (any, error) {
	meta, err := decode[types.SegmentMetadata](payload)
	if err != nil {
		return nil, fmt.Errorf("decode segment metadata: %w", err)
	}
	return r.putJSON(kv.CFStorage, segmentMetaKey(meta.ShardName, meta.SegmentSeq), meta)
}

func handleJournalDeleteSegmentMetadata(r *Router, payload []byte) (any, error) {
	ref, err := decode[JournalSegmentRef](payload)
	if err != nil {
		return nil, fmt.Errorf("decode segment ref: %w", err)
	}
	return r.deleteKey(kv.CFStorage, segmentMetaKey(ref.ShardName, ref.SegmentSeq))
}
