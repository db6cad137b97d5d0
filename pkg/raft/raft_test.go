package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/kv"
)

type recordingDispatcher struct {
	calls []StorageDataType
}

func (d *recordingDispatcher) Dispatch(dataType StorageDataType, payload []byte) (any, error) {
	d.calls = append(d.calls, dataType)
	return string(payload), nil
}

func newTestGroup(t *testing.T, group, nodeID, bindAddr string) (*RaftGroup, *recordingDispatcher) {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dispatcher := &recordingDispatcher{}
	fsm := NewFSM(group, store, dispatcher)

	g, err := NewRaftGroup(Config{
		Group:    group,
		NodeID:   nodeID,
		BindAddr: bindAddr,
		DataDir:  t.TempDir(),
	}, fsm)
	require.NoError(t, err)
	t.Cleanup(func() { g.Shutdown() })
	return g, dispatcher
}

func waitForLeader(t *testing.T, g *RaftGroup) {
	t.Helper()
	require.Eventually(t, g.IsLeader, 5*time.Second, 10*time.Millisecond)
}

func TestBootstrapSingleNodeBecomesLeader(t *testing.T) {
	g, _ := newTestGroup(t, "meta", "node-1", "127.0.0.1:17001")
	require.NoError(t, g.Bootstrap())
	waitForLeader(t, g)
}

func TestApplyDispatchesStorageData(t *testing.T) {
	g, dispatcher := newTestGroup(t, "meta", "node-1", "127.0.0.1:17002")
	require.NoError(t, g.Bootstrap())
	waitForLeader(t, g)

	data, err := NewStorageData(KvSet, map[string]string{"key": "a", "value": "b"})
	require.NoError(t, err)

	result, err := g.Apply(data, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, KvSet, dispatcher.calls[0])
}

func TestApplySurfacesDispatcherError(t *testing.T) {
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dispatcher := dispatcherFunc(func(StorageDataType, []byte) (any, error) {
		return nil, errFailingDispatch
	})
	fsm := NewFSM("meta", store, dispatcher)
	g, err := NewRaftGroup(Config{
		Group:    "meta",
		NodeID:   "node-1",
		BindAddr: "127.0.0.1:17003",
		DataDir:  t.TempDir(),
	}, fsm)
	require.NoError(t, err)
	t.Cleanup(func() { g.Shutdown() })
	require.NoError(t, g.Bootstrap())
	waitForLeader(t, g)

	data, err := NewStorageData(KvSet, map[string]string{"key": "a"})
	require.NoError(t, err)

	_, err = g.Apply(data, 2*time.Second)
	require.ErrorIs(t, err, errFailingDispatch)
}

type dispatcherFunc func(StorageDataType, []byte) (any, error)

func (f dispatcherFunc) Dispatch(dataType StorageDataType, payload []byte) (any, error) {
	return f(dataType, payload)
}

var errFailingDispatch = errDispatchFailed{}

type errDispatchFailed struct{}

func (errDispatchFailed) Error() string { return "dispatch failed" }
