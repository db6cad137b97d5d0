package metaservice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/kv"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dispatcher := NewDispatcher(store, "meta-service")
	fsm := robustraft.NewFSM("meta", store, dispatcher)
	group, err := robustraft.NewRaftGroup(robustraft.Config{
		Group:    "meta",
		NodeID:   "node-1",
		BindAddr: "127.0.0.1:17011",
		DataDir:  t.TempDir(),
	}, fsm)
	require.NoError(t, err)
	t.Cleanup(func() { group.Shutdown() })
	require.NoError(t, group.Bootstrap())
	require.Eventually(t, group.IsLeader, 5*time.Second, 10*time.Millisecond)

	return New(store, Groups{Meta: group, MQTT: group, Offset: group}, "meta-service")
}

func TestRegisterNodeThenGetNode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	node := types.Node{ID: "node-1", InnerAddr: "127.0.0.1:9000", Roles: []types.NodeRole{types.NodeRoleMeta}}
	_, err := svc.RegisterNode(ctx, &rpc.RegisterNodeRequest{Node: node})
	require.NoError(t, err)

	reply, err := svc.GetNode(ctx, &rpc.GetNodeRequest{NodeID: "node-1"})
	require.NoError(t, err)
	require.True(t, reply.Found)
	require.Equal(t, "127.0.0.1:9000", reply.Node.InnerAddr)
}

func TestExecuteAppliesKvSet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	payload, err := json.Marshal(map[string]string{"key": "a", "value": "YQ=="})
	require.NoError(t, err)

	reply, err := svc.Execute(ctx, &rpc.ExecuteRequest{
		Group:    "meta",
		DataType: robustraft.KvSet,
		Payload:  payload,
	})
	require.NoError(t, err)
	require.Empty(t, reply.Error)
}

func TestClusterStatusReportsLeadership(t *testing.T) {
	svc := newTestService(t)
	reply, err := svc.ClusterStatus(context.Background(), &rpc.ClusterStatusRequest{})
	require.NoError(t, err)
	require.True(t, reply.IsLeader)
}
