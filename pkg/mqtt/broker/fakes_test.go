package broker_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robustmq/robustmq/pkg/mqtt/broker"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

// newTestUser builds a meta-service user record with the same hash the
// real auth path computes, for tests seeding fakeMeta.users directly.
func newTestUser(username, password string) types.User {
	return types.User{Username: username, PasswordHash: broker.TestHashPassword(password)}
}

// fakeMeta stands in for the meta service's RPC surface: Execute records
// every mutation and, for a few data types a test cares about, also
// updates an in-memory map so a later Get* call observes it — standing in
// for the real round-trip through Raft and back. Everything else is
// served from canned maps the test populates directly.
type fakeMeta struct {
	mu sync.Mutex

	users    map[string]types.User
	sessions map[string]types.Session
	shards   map[string]types.Shard
	segments map[string][]types.Segment
	offsets  map[string]uint64

	executes []rpc.ExecuteRequest
	execErr  error
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		users:    make(map[string]types.User),
		sessions: make(map[string]types.Session),
		shards:   make(map[string]types.Shard),
		segments: make(map[string][]types.Segment),
		offsets:  make(map[string]uint64),
	}
}

func (f *fakeMeta) Execute(_ context.Context, req *rpc.ExecuteRequest) (*rpc.ExecuteReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes = append(f.executes, *req)
	if f.execErr != nil {
		return &rpc.ExecuteReply{Error: f.execErr.Error()}, nil
	}

	switch req.DataType {
	case robustraft.JournalSetShard:
		var shard types.Shard
		if err := json.Unmarshal(req.Payload, &shard); err != nil {
			return nil, err
		}
		f.shards[shard.ShardName] = shard
	case robustraft.JournalSetSegment:
		var seg types.Segment
		if err := json.Unmarshal(req.Payload, &seg); err != nil {
			return nil, err
		}
		f.segments[seg.ShardName] = append(f.segments[seg.ShardName], seg)
	case robustraft.MqttSetSession:
		var s types.Session
		if err := json.Unmarshal(req.Payload, &s); err != nil {
			return nil, err
		}
		f.sessions[s.ClientID] = s
	}
	return &rpc.ExecuteReply{}, nil
}

func (f *fakeMeta) GetShard(_ context.Context, req *rpc.GetShardRequest) (*rpc.GetShardReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shard, ok := f.shards[req.ShardName]
	return &rpc.GetShardReply{Shard: shard, Found: ok}, nil
}

func (f *fakeMeta) ListSegments(_ context.Context, req *rpc.ListSegmentsRequest) (*rpc.ListSegmentsReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.ListSegmentsReply{Segments: f.segments[req.ShardName]}, nil
}

func (f *fakeMeta) GetOffset(_ context.Context, req *rpc.GetOffsetRequest) (*rpc.GetOffsetReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, ok := f.offsets[req.Group+"/"+req.Shard]
	return &rpc.GetOffsetReply{Offset: off, Found: ok}, nil
}

func (f *fakeMeta) GetUser(_ context.Context, req *rpc.GetUserRequest) (*rpc.GetUserReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[req.Username]
	return &rpc.GetUserReply{User: u, Found: ok}, nil
}

func (f *fakeMeta) GetSession(_ context.Context, req *rpc.GetSessionRequest) (*rpc.GetSessionReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[req.ClientID]
	return &rpc.GetSessionReply{Session: s, Found: ok}, nil
}

func (f *fakeMeta) GetShareGroupLeader(_ context.Context, req *rpc.GetShareGroupLeaderRequest) (*rpc.GetShareGroupLeaderReply, error) {
	return &rpc.GetShareGroupLeaderReply{}, nil
}

// fakeDeliverer records every packet pushed outside the normal
// request/response cycle, standing in for *network.Server.
type fakeDeliverer struct {
	mu  sync.Mutex
	log []delivery
}

type delivery struct {
	connID string
	packet packet.Packet
	close  bool
}

func (d *fakeDeliverer) Deliver(connID string, p packet.Packet, close bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, delivery{connID: connID, packet: p, close: close})
	return nil
}

func (d *fakeDeliverer) last() (delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.log) == 0 {
		return delivery{}, false
	}
	return d.log[len(d.log)-1], true
}

// fakeVersions stands in for *network.Registry's SetVersion method.
type fakeVersions struct {
	mu       sync.Mutex
	versions map[string]packet.Version
}

func newFakeVersions() *fakeVersions {
	return &fakeVersions{versions: make(map[string]packet.Version)}
}

func (v *fakeVersions) SetVersion(connID string, version packet.Version) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[connID] = version
}
