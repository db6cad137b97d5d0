// Package types holds the plain data-model structs shared by the meta
// service, the journal, and the broker. Every entity here is owned
// exclusively by the meta service's Raft state machine; brokers and the
// journal hold read-only, eventually-consistent copies.
package types

import "time"

// NodeRole identifies a role a cluster node advertises.
type NodeRole string

const (
	NodeRoleMeta    NodeRole = "meta"
	NodeRoleJournal NodeRole = "journal"
	NodeRoleBroker  NodeRole = "broker"
)

// Cluster is the top-level identity of a RobustMQ deployment.
type Cluster struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Node describes one member of the cluster, of any role.
type Node struct {
	ID          string     `json:"id"`
	InnerAddr   string     `json:"inner_addr"`
	ExternAddr  string     `json:"extern_addr"`
	Roles       []NodeRole `json:"roles"`
	StartTime   time.Time  `json:"start_time"`
	StorageFold []string   `json:"storage_fold"`
	LastBeat    time.Time  `json:"last_beat"`
}

// HasRole reports whether the node advertises the given role.
func (n *Node) HasRole(r NodeRole) bool {
	for _, role := range n.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// ShardStatus is the lifecycle state of a Shard.
type ShardStatus string

const (
	ShardStatusRun           ShardStatus = "Run"
	ShardStatusPrepareDelete ShardStatus = "PrepareDelete"
)

// ShardEngine names the storage engine backing a shard's segments.
type ShardEngine string

const (
	ShardEngineMemory  ShardEngine = "Memory"
	ShardEngineRocksDB ShardEngine = "RocksDB"
	ShardEngineSegment ShardEngine = "Segment"
)

// ShardConfig carries the replication/retention knobs of a shard.
type ShardConfig struct {
	ReplicaNum    uint32        `json:"replica_num"`
	RetentionTime time.Duration `json:"retention_time"`
}

// Shard is a logical partition of a topic's log, identified by
// {cluster, namespace, shard_name}.
type Shard struct {
	UID              string      `json:"uid"`
	Cluster          string      `json:"cluster"`
	Namespace        string      `json:"namespace"`
	ShardName        string      `json:"shard_name"`
	StartSegmentSeq  uint64      `json:"start_segment_seq"`
	ActiveSegmentSeq uint64      `json:"active_segment_seq"`
	LastSegmentSeq   uint64      `json:"last_segment_seq"`
	Status           ShardStatus `json:"status"`
	Config           ShardConfig `json:"config"`
	Engine           ShardEngine `json:"engine"`
}

// SegmentStatus is the lifecycle state of a Segment.
type SegmentStatus string

const (
	SegmentStatusIdle          SegmentStatus = "Idle"
	SegmentStatusWrite         SegmentStatus = "Write"
	SegmentStatusPrepareSealUp SegmentStatus = "PrepareSealUp"
	SegmentStatusSealUp        SegmentStatus = "SealUp"
)

// Replica is one copy of a segment, placed on one node's storage fold.
type Replica struct {
	Seq         uint64 `json:"seq"`
	NodeID      string `json:"node_id"`
	StorageFold string `json:"storage_fold"`
}

// Segment is a bounded append-only log file identified by
// {shard_name, segment_seq}.
type Segment struct {
	Cluster     string        `json:"cluster"`
	Namespace   string        `json:"namespace"`
	ShardName   string        `json:"shard_name"`
	SegmentSeq  uint64        `json:"segment_seq"`
	Leader      string        `json:"leader"`
	LeaderEpoch uint64        `json:"leader_epoch"`
	Replicas    []Replica     `json:"replicas"`
	ISR         []string      `json:"isr"`
	Status      SegmentStatus `json:"status"`
}

// SegmentMetadata tracks the offset/time bounds of a segment.
// EndOffset == -1 means the segment is still open.
type SegmentMetadata struct {
	ShardName      string `json:"shard_name"`
	SegmentSeq     uint64 `json:"segment_seq"`
	StartOffset    int64  `json:"start_offset"`
	EndOffset      int64  `json:"end_offset"`
	StartTimestamp int64  `json:"start_timestamp"`
	EndTimestamp   int64  `json:"end_timestamp"`
}

// Open reports whether the segment has not yet been sealed.
func (m *SegmentMetadata) Open() bool { return m.EndOffset == -1 }

// Record is one message stored in a segment.
type Record struct {
	Offset    uint64            `json:"offset"`
	Pkid      string            `json:"pkid,omitempty"`
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Tags      []string          `json:"tags,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
	Timestamp int64             `json:"timestamp"`
	CRC       uint32            `json:"crc"`
}

// LastWill is the message a client has asked to be published on its
// behalf, should it disconnect uncleanly.
type LastWill struct {
	Topic   string `json:"topic"`
	Message []byte `json:"message"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// Session is the durable MQTT session state for one client id.
type Session struct {
	ClientID      string     `json:"client_id"`
	SessionExpiry uint32     `json:"session_expiry"`
	LastWill      *LastWill  `json:"last_will,omitempty"`
	LastWillDelay uint32     `json:"last_will_delay"`
	CreateTime    time.Time  `json:"create_time"`
	ConnectionID  uint64     `json:"connection_id,omitempty"`
	BrokerID      string     `json:"broker_id,omitempty"`
	ReconnectTime *time.Time `json:"reconnect_time,omitempty"`
	DistinctTime  *time.Time `json:"distinct_time,omitempty"`
}

// RetainHandling controls retained-message delivery on SUBSCRIBE (MQTT5).
type RetainHandling byte

const (
	RetainHandlingOnEverySubscribe RetainHandling = 0
	RetainHandlingOnNewSubscribe   RetainHandling = 1
	RetainHandlingNever            RetainHandling = 2
)

// Subscription is one {client_id, filter_path} registration.
type Subscription struct {
	Cluster           string         `json:"cluster"`
	ClientID          string         `json:"client_id"`
	FilterPath        string         `json:"filter_path"`
	QoS               byte           `json:"qos"`
	NoLocal           bool           `json:"no_local"`
	RetainAsPublished bool           `json:"retain_as_published"`
	RetainHandling    RetainHandling `json:"retain_handling"`
	SubIdentifier     uint32         `json:"sub_identifier,omitempty"`
}

// ConnectorType names an external sink kind.
type ConnectorType string

const (
	ConnectorLocalFile  ConnectorType = "LocalFile"
	ConnectorKafka      ConnectorType = "Kafka"
	ConnectorGreptimeDB ConnectorType = "GreptimeDB"
	ConnectorPulsar     ConnectorType = "Pulsar"
	ConnectorPostgres   ConnectorType = "Postgres"
	ConnectorRabbitMQ   ConnectorType = "RabbitMQ"
)

// ConnectorStatus is the runtime state of a Connector.
type ConnectorStatus string

const (
	ConnectorStatusIdle    ConnectorStatus = "Idle"
	ConnectorStatusRunning ConnectorStatus = "Running"
)

// Connector is an outbound bridge from a topic to an external sink.
type Connector struct {
	Cluster       string          `json:"cluster"`
	ConnectorName string          `json:"connector_name"`
	ConnectorType ConnectorType   `json:"connector_type"`
	Config        []byte          `json:"config"`
	TopicID       string          `json:"topic_id"`
	Status        ConnectorStatus `json:"status"`
	BrokerID      string          `json:"broker_id,omitempty"`
	CreateTime    time.Time       `json:"create_time"`
	UpdateTime    time.Time       `json:"update_time"`
	LastHeartbeat time.Time       `json:"last_heartbeat,omitempty"`
}

// ACL is a flat access rule keyed by resource tuple.
type ACL struct {
	Cluster      string `json:"cluster"`
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	Topic        string `json:"topic"`
	IP           string `json:"ip"`
	Action       string `json:"action"`
	Permission   string `json:"permission"`
}

// BlacklistType names what kind of identity a Blacklist entry bans.
type BlacklistType string

const (
	BlacklistClientID BlacklistType = "ClientId"
	BlacklistUser     BlacklistType = "User"
	BlacklistIP       BlacklistType = "Ip"
)

// Blacklist is a ban entry, with an optional expiry.
type Blacklist struct {
	Cluster      string        `json:"cluster"`
	Type         BlacklistType `json:"blacklist_type"`
	ResourceName string        `json:"resource_name"`
	EndTime      time.Time     `json:"end_time"`
	Desc         string        `json:"desc,omitempty"`
}

// RewriteAction scopes which packet types a TopicRewrite rule applies to.
type RewriteAction string

const (
	RewriteActionAll       RewriteAction = "All"
	RewriteActionPublish   RewriteAction = "Publish"
	RewriteActionSubscribe RewriteAction = "Subscribe"
)

// TopicRewrite compiles a regex against matching topics and substitutes
// into a destination template.
type TopicRewrite struct {
	Cluster   string        `json:"cluster"`
	Action    RewriteAction `json:"action"`
	Source    string        `json:"source"`
	Dest      string        `json:"dest"`
	Regex     string        `json:"regex"`
	Timestamp int64         `json:"timestamp"`
}

// AutoSubscribe is a server-initiated subscription rule applied on
// session creation.
type AutoSubscribe struct {
	Cluster           string         `json:"cluster"`
	Topic             string         `json:"topic"`
	QoS               byte           `json:"qos"`
	NoLocal           bool           `json:"no_local"`
	RetainAsPublished bool           `json:"retain_as_published"`
	RetainHandling    RetainHandling `json:"retain_handling"`
}

// FlappingDetect tracks repeated-reconnect abuse for one client id.
type FlappingDetect struct {
	Cluster                     string     `json:"cluster"`
	ClientID                    string     `json:"client_id"`
	BeforeLastWindowConnections uint32     `json:"before_last_window_connections"`
	FirstRequestTime            time.Time  `json:"first_request_time"`
	BanTime                     *time.Time `json:"ban_time,omitempty"`
}

// ShareGroupLeader records which broker leads a shared-subscription group.
type ShareGroupLeader struct {
	Cluster        string `json:"cluster"`
	GroupName      string `json:"group_name"`
	FilterPath     string `json:"filter_path"`
	LeaderBrokerID string `json:"leader_broker_id"`
}

// GroupOffset is the durable consumer-group offset for one shard.
type GroupOffset struct {
	Group  string `json:"group"`
	Shard  string `json:"shard"`
	Offset uint64 `json:"offset"`
}

// ResourceConfig is a flat, versionless config blob keyed by resource key,
// used for cluster-wide settings that don't warrant their own entity.
type ResourceConfig struct {
	ResourceKey string `json:"resource_key"`
	Config      []byte `json:"config"`
}

// Topic is a named MQTT topic, the unit a Shard is created against.
type Topic struct {
	Cluster    string    `json:"cluster"`
	TopicID    string    `json:"topic_id"`
	TopicName  string    `json:"topic_name"`
	CreateTime time.Time `json:"create_time"`
}

// User is an MQTT client credential.
type User struct {
	Cluster      string `json:"cluster"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	IsSuperuser  bool   `json:"is_superuser"`
}

// RetainMessage is the last retained PUBLISH for one topic.
type RetainMessage struct {
	Cluster    string    `json:"cluster"`
	TopicName  string    `json:"topic_name"`
	Message    []byte    `json:"message"`
	QoS        byte      `json:"qos"`
	Properties []byte    `json:"properties,omitempty"`
	UpdateTime time.Time `json:"update_time"`
}

// Schema is a registered message schema (e.g. JSON/Avro/Protobuf) a topic
// can be bound to for payload validation.
type Schema struct {
	Cluster    string `json:"cluster"`
	Name       string `json:"name"`
	SchemaType string `json:"schema_type"`
	Content    string `json:"content"`
	Desc       string `json:"desc,omitempty"`
}

// SchemaBind associates a registered Schema with a resource (typically a
// topic) that must validate against it.
type SchemaBind struct {
	Cluster    string `json:"cluster"`
	SchemaName string `json:"schema_name"`
	ResourceID string `json:"resource_id"`
}

// IdempotentData records a {client_id, pkid} pair already seen for exactly-
// once publish dedup, with an expiry to bound memory use.
type IdempotentData struct {
	Cluster   string    `json:"cluster"`
	ClientID  string    `json:"client_id"`
	Pkid      uint64    `json:"pkid"`
	CreatedAt time.Time `json:"created_at"`
}
