package broker

import (
	"context"
	"fmt"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/journal/client"
	"github.com/robustmq/robustmq/pkg/rpc"
)

// metaResolver implements journal/client.Resolver atop the meta service:
// it looks up the shard's active segment sequence via GetShard, then the
// segment's leader node address via ListSegments, satisfying the journal
// client's "resolve on each call, with its own TTL cache in front" shape
// (spec 4.12).
type metaResolver struct {
	meta MetaExecutor
}

// NewResolver builds the journal/client.Resolver a Client needs, ahead of
// constructing the Broker itself (the journal Client must exist before
// New can be called).
func NewResolver(meta MetaExecutor) client.Resolver {
	return &metaResolver{meta: meta}
}

func (r *metaResolver) ActiveSegment(ctx context.Context, namespace, shardName string) (client.ActiveSegment, error) {
	shardReply, err := r.meta.GetShard(ctx, &rpc.GetShardRequest{ShardName: shardName})
	if err != nil {
		return client.ActiveSegment{}, err
	}
	if !shardReply.Found {
		return client.ActiveSegment{}, robustmqerrors.ErrShardNotExist
	}

	segmentsReply, err := r.meta.ListSegments(ctx, &rpc.ListSegmentsRequest{ShardName: shardName})
	if err != nil {
		return client.ActiveSegment{}, err
	}
	for _, seg := range segmentsReply.Segments {
		if seg.SegmentSeq == shardReply.Shard.ActiveSegmentSeq {
			if seg.Leader == "" {
				return client.ActiveSegment{}, robustmqerrors.ErrNotActiveSegment
			}
			return client.ActiveSegment{NodeAddr: seg.Leader, SegmentSeq: seg.SegmentSeq}, nil
		}
	}
	return client.ActiveSegment{}, fmt.Errorf("mqtt broker: active segment %d not found for shard %q", shardReply.Shard.ActiveSegmentSeq, shardName)
}
