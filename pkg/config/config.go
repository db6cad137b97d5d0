// Package config loads the single per-role TOML configuration file for
// each RobustMQ binary (meta-service, journal-server, mqtt-broker). Each
// Config struct is a flat set of embedded sub-structs per concern,
// mirroring the flat Config shape the teacher uses for its own
// Manager/Worker configuration, loaded with go-toml instead of flags
// because the spec calls for one config file per role.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LogConfig configures pkg/log.
type LogConfig struct {
	Level      string `toml:"level"`
	JSONOutput bool   `toml:"json_output"`
}

// RaftConfig configures one RaftGroup.
type RaftConfig struct {
	DataDir           string        `toml:"data_dir"`
	HeartbeatTimeout  time.Duration `toml:"heartbeat_timeout"`
	ElectionTimeout   time.Duration `toml:"election_timeout"`
	CommitTimeout     time.Duration `toml:"commit_timeout"`
	SnapshotInterval  time.Duration `toml:"snapshot_interval"`
	SnapshotThreshold uint64        `toml:"snapshot_threshold"`
}

// KVConfig configures pkg/kv.
type KVConfig struct {
	DataDir string `toml:"data_dir"`
}

// NetworkConfig configures the MQTT network server's acceptor/handler/
// response pools.
type NetworkConfig struct {
	TCPAddr       string `toml:"tcp_addr"`
	TLSAddr       string `toml:"tls_addr"`
	WebSocketAddr string `toml:"websocket_addr"`
	HandlerCount  int    `toml:"handler_count"`
	ResponseCount int    `toml:"response_count"`
	QueueCapacity int    `toml:"queue_capacity"`
	TLSCertFile   string `toml:"tls_cert_file"`
	TLSKeyFile    string `toml:"tls_key_file"`
}

// SegmentConfig configures the journal's Segment Store.
type SegmentConfig struct {
	StorageFolds    []string      `toml:"storage_folds"`
	MaxSegmentSize  int64         `toml:"max_segment_size"`
	FsyncInterval   time.Duration `toml:"fsync_interval"`
	SealGraceRecords uint64       `toml:"seal_grace_records"`
}

// MQTTConfig configures broker-specific behavior.
type MQTTConfig struct {
	DefaultKeepAlive      uint16 `toml:"default_keep_alive"`
	ClientPkidPersistent  bool   `toml:"client_pkid_persistent"`
	MaxPacketSize         uint32 `toml:"max_packet_size"`
	TopicAliasMax         uint16 `toml:"topic_alias_max"`
	ServerReceiveMax      uint16 `toml:"server_receive_max"`
}

// MetaServiceConfig is the top-level config for cmd/meta-service.
type MetaServiceConfig struct {
	ClusterName string        `toml:"cluster_name"`
	NodeID      string        `toml:"node_id"`
	GRPCAddr    string        `toml:"grpc_addr"`
	Log         LogConfig     `toml:"log"`
	Raft        RaftConfig    `toml:"raft"`
	KV          KVConfig      `toml:"kv"`
}

// JournalServerConfig is the top-level config for cmd/journal-server.
type JournalServerConfig struct {
	ClusterName string        `toml:"cluster_name"`
	NodeID      string        `toml:"node_id"`
	GRPCAddr    string        `toml:"grpc_addr"`
	MetaAddrs   []string      `toml:"meta_addrs"`
	Log         LogConfig     `toml:"log"`
	Segment     SegmentConfig `toml:"segment"`
}

// MQTTBrokerConfig is the top-level config for cmd/mqtt-broker.
type MQTTBrokerConfig struct {
	ClusterName string        `toml:"cluster_name"`
	NodeID      string        `toml:"node_id"`
	MetaAddrs   []string      `toml:"meta_addrs"`
	JournalAddrs []string     `toml:"journal_addrs"`
	Log         LogConfig     `toml:"log"`
	Network     NetworkConfig `toml:"network"`
	MQTT        MQTTConfig    `toml:"mqtt"`
}

// Load reads a TOML file at path and decodes it into dst (a pointer to
// one of the Config structs above).
func Load(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// DefaultMetaServiceConfig returns a config usable for local single-node
// development.
func DefaultMetaServiceConfig() *MetaServiceConfig {
	return &MetaServiceConfig{
		ClusterName: "robustmq",
		NodeID:      "meta-1",
		GRPCAddr:    "127.0.0.1:9981",
		Log:         LogConfig{Level: "info"},
		Raft: RaftConfig{
			DataDir:           "./data/meta/raft",
			HeartbeatTimeout:  1 * time.Second,
			ElectionTimeout:   1 * time.Second,
			CommitTimeout:     500 * time.Millisecond,
			SnapshotInterval:  2 * time.Minute,
			SnapshotThreshold: 8192,
		},
		KV: KVConfig{DataDir: "./data/meta/kv"},
	}
}

// DefaultJournalServerConfig returns a config usable for local single-node
// development.
func DefaultJournalServerConfig() *JournalServerConfig {
	return &JournalServerConfig{
		ClusterName: "robustmq",
		NodeID:      "journal-1",
		GRPCAddr:    "127.0.0.1:9982",
		Log:         LogConfig{Level: "info"},
		Segment: SegmentConfig{
			StorageFolds:     []string{"./data/journal/fold0"},
			MaxSegmentSize:   1 << 30,
			FsyncInterval:    200 * time.Millisecond,
			SealGraceRecords: 1000,
		},
	}
}

// DefaultMQTTBrokerConfig returns a config usable for local single-node
// development.
func DefaultMQTTBrokerConfig() *MQTTBrokerConfig {
	return &MQTTBrokerConfig{
		ClusterName: "robustmq",
		NodeID:      "broker-1",
		Log:         LogConfig{Level: "info"},
		Network: NetworkConfig{
			TCPAddr:       "0.0.0.0:1883",
			WebSocketAddr: "0.0.0.0:8083",
			HandlerCount:  4,
			ResponseCount: 4,
			QueueCapacity: 1000,
		},
		MQTT: MQTTConfig{
			DefaultKeepAlive: 60,
			MaxPacketSize:    1 << 20,
			TopicAliasMax:    65535,
			ServerReceiveMax: 65535,
		},
	}
}
