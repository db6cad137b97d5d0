package rpc

import (
	"encoding/json"

	"github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/types"
)

// Empty is the request/response shape for RPCs that carry no payload.
type Empty struct{}

// ExecuteRequest carries one write mutation to the meta service leader,
// the uniform entry point for every raft.StorageDataType variant (spec
// 4.4's single Apply path): clients build an ExecuteRequest the same way
// the leader itself builds a raft.StorageData before calling
// RaftGroup.Apply.
type ExecuteRequest struct {
	Group    string                 `json:"group"`
	DataType raft.StorageDataType   `json:"data_type"`
	Payload  json.RawMessage        `json:"payload"`
}

// ExecuteReply carries the router's typed reply back as raw JSON (the
// caller decodes it into whatever type the data_type implies), or a
// non-empty Error if the leader rejected or failed to apply the mutation.
type ExecuteReply struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// RegisterNodeRequest registers a node (any role) with the cluster.
type RegisterNodeRequest struct {
	Node types.Node `json:"node"`
}

// RegisterNodeReply acknowledges registration.
type RegisterNodeReply struct{}

// HeartbeatRequest reports liveness for one node.
type HeartbeatRequest struct {
	NodeID string `json:"node_id"`
}

// HeartbeatReply acknowledges the heartbeat.
type HeartbeatReply struct{}

// ClusterStatusRequest requests the meta group's cluster/raft status.
type ClusterStatusRequest struct{}

// ClusterStatusReply reports leadership and the raft library's own stats.
type ClusterStatusReply struct {
	Group      string            `json:"group"`
	IsLeader   bool              `json:"is_leader"`
	LeaderAddr string            `json:"leader_addr"`
	Stats      map[string]string `json:"stats"`
	Nodes      []types.Node      `json:"nodes"`
}

// GetNodeRequest looks up one node by id.
type GetNodeRequest struct {
	NodeID string `json:"node_id"`
}

// GetNodeReply carries the node, if found.
type GetNodeReply struct {
	Node  types.Node `json:"node"`
	Found bool       `json:"found"`
}

// GetSessionRequest looks up one MQTT session by client id.
type GetSessionRequest struct {
	ClientID string `json:"client_id"`
}

// GetSessionReply carries the session, if found.
type GetSessionReply struct {
	Session types.Session `json:"session"`
	Found   bool          `json:"found"`
}

// ListSubscriptionsRequest lists every subscription owned by one client.
type ListSubscriptionsRequest struct {
	ClientID string `json:"client_id"`
}

// ListSubscriptionsReply carries the matching subscriptions.
type ListSubscriptionsReply struct {
	Subscriptions []types.Subscription `json:"subscriptions"`
}

// GetShardRequest looks up one shard by name.
type GetShardRequest struct {
	ShardName string `json:"shard_name"`
}

// GetShardReply carries the shard, if found.
type GetShardReply struct {
	Shard types.Shard `json:"shard"`
	Found bool        `json:"found"`
}

// ListSegmentsRequest lists every segment belonging to one shard.
type ListSegmentsRequest struct {
	ShardName string `json:"shard_name"`
}

// ListSegmentsReply carries the matching segments.
type ListSegmentsReply struct {
	Segments []types.Segment `json:"segments"`
}

// GetShareGroupLeaderRequest looks up the broker leading a shared
// subscription group.
type GetShareGroupLeaderRequest struct {
	GroupName  string `json:"group_name"`
	FilterPath string `json:"filter_path"`
}

// GetShareGroupLeaderReply carries the leader assignment, if one exists.
type GetShareGroupLeaderReply struct {
	Leader types.ShareGroupLeader `json:"leader"`
	Found  bool                   `json:"found"`
}

// GetOffsetRequest looks up one consumer group's durable offset for a
// shard, read directly off the meta node's KV rather than through the raft
// log since it is a plain lookup, not a mutation.
type GetOffsetRequest struct {
	Group string `json:"group"`
	Shard string `json:"shard"`
}

// GetOffsetReply carries the stored offset, if one has ever been committed.
type GetOffsetReply struct {
	Offset uint64 `json:"offset"`
	Found  bool   `json:"found"`
}

// GetUserRequest looks up one MQTT credential by username. Credentials are
// looked up directly rather than through the broker's push-synced cache
// (spec 4.6's resource_type set has no "User" entry) since authentication
// should see the current record, not a possibly-stale local mirror.
type GetUserRequest struct {
	Username string `json:"username"`
}

// GetUserReply carries the user, if found.
type GetUserReply struct {
	User  types.User `json:"user"`
	Found bool       `json:"found"`
}
