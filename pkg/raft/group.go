package raft

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	hraft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/robustmq/robustmq/pkg/metrics"
)

// Config holds the parameters needed to bootstrap or join one RaftGroup.
type Config struct {
	// Group names this instance (meta, mqtt or offset per spec 4.4); used
	// only as a metrics/log label, each group still owns an independent
	// raft.Raft and an independent data directory.
	Group    string
	NodeID   string
	BindAddr string
	DataDir  string
}

// RaftGroup wraps one hashicorp/raft instance together with its log store,
// stable store, snapshot store and FSM, generalizing the teacher's single
// Manager/raft.Raft pair (spec 4.4: "three independent Raft groups run per
// node: meta, mqtt and offset").
type RaftGroup struct {
	cfg  Config
	raft *hraft.Raft
	fsm  *FSM
}

// NewRaftGroup constructs (without bootstrapping) a RaftGroup backed by
// fsm, with its own BoltDB-backed log/stable stores and file snapshot
// store rooted at cfg.DataDir.
func NewRaftGroup(cfg Config, fsm *FSM) (*RaftGroup, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	raftCfg := hraft.DefaultConfig()
	raftCfg.LocalID = hraft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft bind address: %w", err)
	}
	transport, err := hraft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := hraft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := hraft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft instance: %w", err)
	}

	return &RaftGroup{cfg: cfg, raft: r, fsm: fsm}, nil
}

// Bootstrap forms a brand new single-node cluster for this group, with the
// local node as its only voter.
func (g *RaftGroup) Bootstrap() error {
	configuration := hraft.Configuration{
		Servers: []hraft.Server{
			{ID: hraft.ServerID(g.cfg.NodeID), Address: hraft.ServerAddress(g.cfg.BindAddr)},
		},
	}
	future := g.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap %s raft group: %w", g.cfg.Group, err)
	}
	return nil
}

// AddVoter adds nodeID at address as a voting member of this group. Must
// be called against the current leader.
func (g *RaftGroup) AddVoter(nodeID, address string) error {
	if !g.IsLeader() {
		return fmt.Errorf("not the leader of %s group, current leader: %s", g.cfg.Group, g.LeaderAddr())
	}
	future := g.raft.AddVoter(hraft.ServerID(nodeID), hraft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("add voter to %s group: %w", g.cfg.Group, err)
	}
	return nil
}

// RemoveServer removes nodeID from this group's configuration. Must be
// called against the current leader.
func (g *RaftGroup) RemoveServer(nodeID string) error {
	if !g.IsLeader() {
		return fmt.Errorf("not the leader of %s group, current leader: %s", g.cfg.Group, g.LeaderAddr())
	}
	future := g.raft.RemoveServer(hraft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("remove server from %s group: %w", g.cfg.Group, err)
	}
	return nil
}

// IsLeader reports whether this node currently holds leadership of the
// group.
func (g *RaftGroup) IsLeader() bool {
	isLeader := g.raft.State() == hraft.Leader
	if isLeader {
		metrics.RaftIsLeader.WithLabelValues(g.cfg.Group).Set(1)
	} else {
		metrics.RaftIsLeader.WithLabelValues(g.cfg.Group).Set(0)
	}
	return isLeader
}

// LeaderAddr returns the bind address of the group's current leader, or
// empty if unknown.
func (g *RaftGroup) LeaderAddr() string {
	addr, _ := g.raft.LeaderWithID()
	return string(addr)
}

// GetClusterServers returns the group's current voter configuration.
func (g *RaftGroup) GetClusterServers() ([]hraft.Server, error) {
	future := g.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, err
	}
	return future.Configuration().Servers, nil
}

// Stats returns the raft library's own diagnostic stat map, surfaced as-is
// on the cluster status API (spec section 6).
func (g *RaftGroup) Stats() map[string]string {
	return g.raft.Stats()
}

// Apply submits data as a new log entry to this group and blocks until it
// is committed (or timeout elapses). It returns the ApplyResult produced
// by FSM.Apply, or an error if the commit itself failed.
func (g *RaftGroup) Apply(data StorageData, timeout time.Duration) (ApplyResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RaftCommitDuration, g.cfg.Group)

	encoded, err := data.Encode()
	if err != nil {
		return ApplyResult{}, fmt.Errorf("encode storage data: %w", err)
	}

	future := g.raft.Apply(encoded, timeout)
	if err := future.Error(); err != nil {
		return ApplyResult{}, fmt.Errorf("apply to %s raft group: %w", g.cfg.Group, err)
	}

	result, ok := future.Response().(ApplyResult)
	if !ok {
		return ApplyResult{}, fmt.Errorf("unexpected apply response type for %s raft group", g.cfg.Group)
	}
	return result, result.Err
}

// TransferLeadership asks the raft library to hand leadership of this
// group to another voter, used by graceful node drain.
func (g *RaftGroup) TransferLeadership() error {
	future := g.raft.LeadershipTransfer()
	return future.Error()
}

// Shutdown stops this group's raft instance.
func (g *RaftGroup) Shutdown() error {
	return g.raft.Shutdown().Error()
}
