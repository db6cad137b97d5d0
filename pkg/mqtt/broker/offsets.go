package broker

import (
	"context"
	"fmt"

	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

// metaOffsetTracker implements subscribe.OffsetTracker through the meta
// service's dedicated offset Raft group: Get reads the committed position
// via GetOffset, treating a not-found group/shard pair as offset zero
// (every dispatch task's first poll), and Advance commits a new position
// through Execute's OffsetSet mutation.
type metaOffsetTracker struct {
	meta    MetaExecutor
	cluster string
}

// NewOffsetTracker builds the subscribe.OffsetTracker a subscribe.Engine
// needs, ahead of constructing the Broker itself.
func NewOffsetTracker(meta MetaExecutor, cluster string) *metaOffsetTracker {
	return &metaOffsetTracker{meta: meta, cluster: cluster}
}

func (t *metaOffsetTracker) Get(group, shard string) (uint64, error) {
	reply, err := t.meta.GetOffset(context.Background(), &rpc.GetOffsetRequest{Group: group, Shard: shard})
	if err != nil {
		return 0, err
	}
	if !reply.Found {
		return 0, nil
	}
	return reply.Offset, nil
}

func (t *metaOffsetTracker) Advance(group, shard string, offset uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	data, err := robustraft.NewStorageData(robustraft.OffsetSet, types.GroupOffset{Group: group, Shard: shard, Offset: offset})
	if err != nil {
		return err
	}
	reply, err := t.meta.Execute(ctx, &rpc.ExecuteRequest{Group: "offset", DataType: data.DataType, Payload: data.Payload})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("mqtt broker: advance offset %s/%s: %s", group, shard, reply.Error)
	}
	return nil
}
