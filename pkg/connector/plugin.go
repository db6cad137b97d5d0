package connector

import (
	"context"
	"fmt"

	"github.com/robustmq/robustmq/pkg/types"
)

// SinkHandle is whatever a plugin's InitSink returns and every later
// SendBatch/CleanupSink call receives back; its shape is private to each
// plugin (a producer, a file handle, a pooled connection).
type SinkHandle any

// Plugin is the per-connector-type bridge contract (spec 4.10): validate
// config, open a sink, send batches to it, and release it on shutdown.
type Plugin interface {
	Validate() error
	InitSink(ctx context.Context) (SinkHandle, error)
	SendBatch(ctx context.Context, handle SinkHandle, records []types.Record) error
	CleanupSink(handle SinkHandle) error
}

// RecordSource reads a batch of records from a topic's journal-backed
// stream starting at offset, the connector-side analog of
// pkg/mqtt/subscribe.TopicSource generalized to batched reads (4.10's
// "read-batch-from-topic-at-group-offset"). next is the offset to resume
// from on the following call.
type RecordSource interface {
	ReadBatch(ctx context.Context, topicName string, offset uint64, maxRecords int) (records []types.Record, next uint64, err error)
}

// OffsetTracker persists and retrieves a connector's consumption cursor,
// structurally identical to pkg/mqtt/subscribe.OffsetTracker (both seam
// the same meta "offset" Raft group, keyed by group/shard).
type OffsetTracker interface {
	Get(group, shard string) (uint64, error)
	Advance(group, shard string, offset uint64) error
}

// newPlugin constructs the Plugin for a connector type from its already
// decoded, validated Config.
func newPlugin(connectorType types.ConnectorType, cfg Config) (Plugin, error) {
	switch c := cfg.(type) {
	case *LocalFileConfig:
		return newLocalFilePlugin(c), nil
	case *KafkaConfig:
		return newKafkaPlugin(c), nil
	case *PulsarConfig:
		return newPulsarPlugin(c), nil
	case *RabbitMQConfig:
		return newRabbitMQPlugin(c), nil
	case *PostgresConfig:
		return newPostgresPlugin(c), nil
	case *GreptimeDBConfig:
		return newGreptimeDBPlugin(c), nil
	default:
		return nil, fmt.Errorf("connector: unsupported connector_type %q", connectorType)
	}
}
