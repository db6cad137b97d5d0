package broker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/broker"
	"github.com/robustmq/robustmq/pkg/types"
)

func TestResolverReturnsActiveSegmentLeader(t *testing.T) {
	meta := newFakeMeta()
	meta.shards["sensors/temp"] = types.Shard{ShardName: "sensors/temp", ActiveSegmentSeq: 2}
	meta.segments["sensors/temp"] = []types.Segment{
		{ShardName: "sensors/temp", SegmentSeq: 1, Leader: "127.0.0.1:1111"},
		{ShardName: "sensors/temp", SegmentSeq: 2, Leader: "127.0.0.1:2222"},
	}

	resolver := broker.NewResolver(meta)
	seg, err := resolver.ActiveSegment(context.Background(), "mqtt", "sensors/temp")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2222", seg.NodeAddr)
	assert.Equal(t, uint64(2), seg.SegmentSeq)
}

func TestResolverErrorsWhenShardUnknown(t *testing.T) {
	meta := newFakeMeta()
	resolver := broker.NewResolver(meta)
	_, err := resolver.ActiveSegment(context.Background(), "mqtt", "ghost-topic")
	assert.Error(t, err)
}

func TestResolverErrorsWhenActiveSegmentHasNoLeader(t *testing.T) {
	meta := newFakeMeta()
	meta.shards["sensors/temp"] = types.Shard{ShardName: "sensors/temp", ActiveSegmentSeq: 1}
	meta.segments["sensors/temp"] = []types.Segment{{ShardName: "sensors/temp", SegmentSeq: 1, Leader: ""}}

	resolver := broker.NewResolver(meta)
	_, err := resolver.ActiveSegment(context.Background(), "mqtt", "sensors/temp")
	assert.Error(t, err)
}
