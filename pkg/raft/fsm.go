package raft

import (
	"fmt"
	"io"

	hraft "github.com/hashicorp/raft"

	"github.com/robustmq/robustmq/pkg/kv"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
)

// Dispatcher applies a decoded StorageData mutation against the KV store
// and returns whatever reply value the caller's Apply should observe. It is
// implemented by pkg/router.Router; kept as an interface here so pkg/raft
// never imports pkg/router (pkg/router imports pkg/raft for StorageDataType).
type Dispatcher interface {
	Dispatch(dataType StorageDataType, payload []byte) (any, error)
}

// ApplyResult is what FSM.Apply returns, inspected by the caller via
// raft.ApplyFuture.Response() after a successful commit.
type ApplyResult struct {
	Value any
	Err   error
}

// FSM is the Raft finite state machine shared by every RaftGroup. It owns
// no storage of its own: mutations are decoded here and handed to a
// Dispatcher backed by the shared pkg/kv store, and Snapshot/Restore ride
// on kv.KV's own column-family snapshot (spec 4.4), generalizing the
// teacher's WarrenFSM (which snapshotted a fixed list of typed entities).
type FSM struct {
	store      *kv.KV
	dispatcher Dispatcher
	group      string
}

// NewFSM builds an FSM for a named Raft group (meta, mqtt or offset),
// backed by store and delegating mutations to dispatcher.
func NewFSM(group string, store *kv.KV, dispatcher Dispatcher) *FSM {
	return &FSM{store: store, dispatcher: dispatcher, group: group}
}

// Apply decodes a StorageData envelope from the Raft log and dispatches it.
// On any error the state machine returns the error as the ApplyResult's Err
// without mutating state beyond what the dispatcher itself already did
// (spec 4.4: "does NOT advance last_applied_log_id" is handled by raft
// itself — Apply failing here does not stop the library from recording the
// index, but the caller's ApplyFuture surfaces Err so no client treats the
// write as committed data).
func (f *FSM) Apply(entry *hraft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RaftApplyDuration, f.group)

	data, err := DecodeStorageData(entry.Data)
	if err != nil {
		log.Logger.Error().Str("group", f.group).Err(err).Msg("raft: failed to decode log entry")
		return ApplyResult{Err: fmt.Errorf("decode storage data: %w", err)}
	}

	value, err := f.dispatcher.Dispatch(data.DataType, data.Payload)
	if err != nil {
		return ApplyResult{Err: err}
	}
	metrics.RaftAppliedIndex.WithLabelValues(f.group).Set(float64(entry.Index))
	return ApplyResult{Value: value}
}

// Snapshot captures the entire KV store as a point-in-time FSM snapshot.
func (f *FSM) Snapshot() (hraft.FSMSnapshot, error) {
	return &fsmSnapshot{store: f.store}, nil
}

// Restore replaces the KV store's content with a previously captured
// snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	dec := newSnapshotDecoder(rc)
	return f.store.Restore(func(yield func(cf, key string, value []byte) error) error {
		return dec.decodeAll(yield)
	})
}

type fsmSnapshot struct {
	store *kv.KV
}

// Persist streams every (cf, key, value) triple in the store to sink as a
// sequence of length-prefixed records.
func (s *fsmSnapshot) Persist(sink hraft.SnapshotSink) error {
	enc := newSnapshotEncoder(sink)
	err := s.store.Snapshot(func(cf, key string, value []byte) error {
		return enc.encode(cf, key, value)
	})
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
