// Package metaservice wires the Persistence KV, Raft Replication and
// Command Router components together behind the gRPC surface defined in
// pkg/rpc, playing the role the teacher's pkg/api.Server plays atop
// pkg/manager.Manager — but split across the three independent Raft
// groups spec 4.4 requires (meta, mqtt, offset) instead of one.
package metaservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robustmq/robustmq/pkg/kv"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/router"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

// applyTimeout bounds how long Execute waits for a write to commit.
const applyTimeout = 5 * time.Second

// Groups bundles the three Raft groups a meta-service node runs.
type Groups struct {
	Meta   *robustraft.RaftGroup
	MQTT   *robustraft.RaftGroup
	Offset *robustraft.RaftGroup
}

func (g Groups) byName(name string) (*robustraft.RaftGroup, error) {
	switch name {
	case "meta":
		return g.Meta, nil
	case "mqtt":
		return g.MQTT, nil
	case "offset":
		return g.Offset, nil
	default:
		return nil, fmt.Errorf("metaservice: unknown raft group %q", name)
	}
}

// Service implements rpc.MetaServer atop a shared KV store and three Raft
// groups.
type Service struct {
	store  *kv.KV
	groups Groups
	source string
}

// New builds a Service.
func New(store *kv.KV, groups Groups, source string) *Service {
	return &Service{store: store, groups: groups, source: source}
}

// Execute applies one write mutation through the named Raft group's
// leader (spec 4.4's single Apply path, exposed uniformly over gRPC).
func (s *Service) Execute(ctx context.Context, req *rpc.ExecuteRequest) (*rpc.ExecuteReply, error) {
	group, err := s.groups.byName(req.Group)
	if err != nil {
		return nil, err
	}
	data := robustraft.StorageData{DataType: req.DataType, Payload: req.Payload}
	result, err := group.Apply(data, applyTimeout)
	if err != nil {
		return &rpc.ExecuteReply{Error: err.Error()}, nil
	}
	value, err := json.Marshal(result.Value)
	if err != nil {
		return &rpc.ExecuteReply{Error: fmt.Sprintf("encode reply: %v", err)}, nil
	}
	return &rpc.ExecuteReply{Value: value}, nil
}

func (s *Service) RegisterNode(ctx context.Context, req *rpc.RegisterNodeRequest) (*rpc.RegisterNodeReply, error) {
	data, err := robustraft.NewStorageData(robustraft.ClusterAddNode, req.Node)
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.Meta.Apply(data, applyTimeout); err != nil {
		return nil, err
	}
	return &rpc.RegisterNodeReply{}, nil
}

func (s *Service) Heartbeat(ctx context.Context, req *rpc.HeartbeatRequest) (*rpc.HeartbeatReply, error) {
	value, ok, err := s.store.Get(kv.CFCluster, "cluster/node/"+req.NodeID, s.source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("metaservice: unknown node %q", req.NodeID)
	}
	var node types.Node
	if err := json.Unmarshal(value, &node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	node.LastBeat = time.Now()
	data, err := robustraft.NewStorageData(robustraft.ClusterAddNode, node)
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.Meta.Apply(data, applyTimeout); err != nil {
		return nil, err
	}
	return &rpc.HeartbeatReply{}, nil
}

func (s *Service) ClusterStatus(ctx context.Context, req *rpc.ClusterStatusRequest) (*rpc.ClusterStatusReply, error) {
	pairs, err := s.store.ScanPrefix(kv.CFCluster, "cluster/node/", s.source)
	if err != nil {
		return nil, err
	}
	nodes := make([]types.Node, 0, len(pairs))
	for _, pair := range pairs {
		var node types.Node
		if err := json.Unmarshal(pair.Value, &node); err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return &rpc.ClusterStatusReply{
		Group:      "meta",
		IsLeader:   s.groups.Meta.IsLeader(),
		LeaderAddr: s.groups.Meta.LeaderAddr(),
		Stats:      s.groups.Meta.Stats(),
		Nodes:      nodes,
	}, nil
}

func (s *Service) GetNode(ctx context.Context, req *rpc.GetNodeRequest) (*rpc.GetNodeReply, error) {
	value, ok, err := s.store.Get(kv.CFCluster, "cluster/node/"+req.NodeID, s.source)
	if err != nil || !ok {
		return &rpc.GetNodeReply{Found: false}, err
	}
	var node types.Node
	if err := json.Unmarshal(value, &node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &rpc.GetNodeReply{Node: node, Found: true}, nil
}

func (s *Service) GetSession(ctx context.Context, req *rpc.GetSessionRequest) (*rpc.GetSessionReply, error) {
	value, ok, err := s.store.Get(kv.CFMQTT, "mqtt/session/"+req.ClientID, s.source)
	if err != nil || !ok {
		return &rpc.GetSessionReply{Found: false}, err
	}
	var session types.Session
	if err := json.Unmarshal(value, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rpc.GetSessionReply{Session: session, Found: true}, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, req *rpc.ListSubscriptionsRequest) (*rpc.ListSubscriptionsReply, error) {
	pairs, err := s.store.ScanPrefix(kv.CFMQTT, "mqtt/subscribe/"+req.ClientID+"/", s.source)
	if err != nil {
		return nil, err
	}
	subs := make([]types.Subscription, 0, len(pairs))
	for _, pair := range pairs {
		var sub types.Subscription
		if err := json.Unmarshal(pair.Value, &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return &rpc.ListSubscriptionsReply{Subscriptions: subs}, nil
}

func (s *Service) GetShard(ctx context.Context, req *rpc.GetShardRequest) (*rpc.GetShardReply, error) {
	value, ok, err := s.store.Get(kv.CFStorage, "journal/shard/"+req.ShardName, s.source)
	if err != nil || !ok {
		return &rpc.GetShardReply{Found: false}, err
	}
	var shard types.Shard
	if err := json.Unmarshal(value, &shard); err != nil {
		return nil, fmt.Errorf("decode shard: %w", err)
	}
	return &rpc.GetShardReply{Shard: shard, Found: true}, nil
}

func (s *Service) ListSegments(ctx context.Context, req *rpc.ListSegmentsRequest) (*rpc.ListSegmentsReply, error) {
	pairs, err := s.store.ScanPrefix(kv.CFStorage, "journal/segment/"+req.ShardName+"/", s.source)
	if err != nil {
		return nil, err
	}
	segments := make([]types.Segment, 0, len(pairs))
	for _, pair := range pairs {
		var segment types.Segment
		if err := json.Unmarshal(pair.Value, &segment); err != nil {
			continue
		}
		segments = append(segments, segment)
	}
	return &rpc.ListSegmentsReply{Segments: segments}, nil
}

func (s *Service) GetShareGroupLeader(ctx context.Context, req *rpc.GetShareGroupLeaderRequest) (*rpc.GetShareGroupLeaderReply, error) {
	key := "mqtt/share_leader/" + req.GroupName + "/" + req.FilterPath
	value, ok, err := s.store.Get(kv.CFMQTT, key, s.source)
	if err != nil || !ok {
		return &rpc.GetShareGroupLeaderReply{Found: false}, err
	}
	var leader types.ShareGroupLeader
	if err := json.Unmarshal(value, &leader); err != nil {
		return nil, fmt.Errorf("decode share group leader: %w", err)
	}
	return &rpc.GetShareGroupLeaderReply{Leader: leader, Found: true}, nil
}

func (s *Service) GetOffset(ctx context.Context, req *rpc.GetOffsetRequest) (*rpc.GetOffsetReply, error) {
	value, ok, err := s.store.Get(kv.CFStorage, fmt.Sprintf("offset/%s/%s", req.Group, req.Shard), s.source)
	if err != nil || !ok {
		return &rpc.GetOffsetReply{Found: false}, err
	}
	var offset types.GroupOffset
	if err := json.Unmarshal(value, &offset); err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}
	return &rpc.GetOffsetReply{Offset: offset.Offset, Found: true}, nil
}

func (s *Service) GetUser(ctx context.Context, req *rpc.GetUserRequest) (*rpc.GetUserReply, error) {
	value, ok, err := s.store.Get(kv.CFMQTT, "mqtt/user/"+req.Username, s.source)
	if err != nil || !ok {
		return &rpc.GetUserReply{Found: false}, err
	}
	var user types.User
	if err := json.Unmarshal(value, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &rpc.GetUserReply{User: user, Found: true}, nil
}

// NewDispatcher builds the router.Router used as the FSM Dispatcher for
// the meta Raft group.
func NewDispatcher(store *kv.KV, source string) *router.Router {
	return router.New(store, source)
}
