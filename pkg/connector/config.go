package connector

import (
	"encoding/json"
	"fmt"

	"github.com/robustmq/robustmq/pkg/types"
)

// FailureStrategy controls what a runner does once send_batch keeps
// failing past the transient-backoff window (spec 4.10's "respect
// failure_strategy on persistent failure").
type FailureStrategy string

const (
	// FailureStrategyRetry backs off and keeps retrying the same batch
	// forever. This is the default when a config omits the field.
	FailureStrategyRetry FailureStrategy = "Retry"
	// FailureStrategyDrop discards the stuck batch and advances the group
	// offset anyway, trading delivery for forward progress.
	FailureStrategyDrop FailureStrategy = "Drop"
	// FailureStrategyPause stops the runner; the connector stays defined
	// but idle until it is recreated. There is no resume operation.
	FailureStrategyPause FailureStrategy = "Pause"
)

// persistentFailureThreshold is how many consecutive send_batch failures
// on the same batch turn a transient error into a persistent one.
const persistentFailureThreshold = 5

// Config is the typed, per-connector-type configuration decoded from
// types.Connector.Config. Every concrete config type embeds a
// FailureStrategy and validates itself before a plugin is ever started,
// matching 4.10's "JSON schema is enforced by a per-type validator on
// create."
type Config interface {
	Validate() error
	Strategy() FailureStrategy
}

func strategyOrDefault(s FailureStrategy) FailureStrategy {
	if s == "" {
		return FailureStrategyRetry
	}
	return s
}

// LocalFileConfig backs ConnectorLocalFile, grounded on
// pkg/volume.LocalDriver's directory/file handling idiom.
type LocalFileConfig struct {
	Path            string          `json:"path"`
	MaxFileBytes    int64           `json:"max_file_bytes"`
	FailureStrategy FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *LocalFileConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *LocalFileConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("connector: local_file config missing path")
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 128 * 1024 * 1024
	}
	return nil
}

// KafkaConfig backs ConnectorKafka, via github.com/twmb/franz-go.
type KafkaConfig struct {
	BootstrapServers []string        `json:"bootstrap_servers"`
	Topic            string          `json:"topic"`
	Key              string          `json:"key,omitempty"`
	CompressionType  string          `json:"compression_type,omitempty"`
	Acks             string          `json:"acks,omitempty"` // "all", "leader", "none"
	Retries          int             `json:"retries,omitempty"`
	LingerMs         int             `json:"linger_ms,omitempty"`
	FailureStrategy  FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *KafkaConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *KafkaConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("connector: kafka config missing bootstrap_servers")
	}
	if c.Topic == "" {
		return fmt.Errorf("connector: kafka config missing topic")
	}
	if c.Acks == "" {
		c.Acks = "all"
	}
	return nil
}

// PulsarConfig backs ConnectorPulsar, via github.com/apache/pulsar-client-go.
type PulsarConfig struct {
	ServiceURL      string          `json:"service_url"`
	Topic           string          `json:"topic"`
	FailureStrategy FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *PulsarConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *PulsarConfig) Validate() error {
	if c.ServiceURL == "" {
		return fmt.Errorf("connector: pulsar config missing service_url")
	}
	if c.Topic == "" {
		return fmt.Errorf("connector: pulsar config missing topic")
	}
	return nil
}

// RabbitMQConfig backs ConnectorRabbitMQ, via github.com/rabbitmq/amqp091-go.
type RabbitMQConfig struct {
	URI              string          `json:"uri"`
	Exchange         string          `json:"exchange"`
	RoutingKey       string          `json:"routing_key"`
	PublishTimeoutMs int             `json:"publish_timeout_ms,omitempty"`
	FailureStrategy  FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *RabbitMQConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *RabbitMQConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("connector: rabbitmq config missing uri")
	}
	if c.RoutingKey == "" {
		return fmt.Errorf("connector: rabbitmq config missing routing_key")
	}
	if c.PublishTimeoutMs <= 0 {
		c.PublishTimeoutMs = 5000
	}
	return nil
}

// PostgresConfig backs ConnectorPostgres, via github.com/jackc/pgx/v5.
type PostgresConfig struct {
	DSN             string          `json:"dsn"`
	Table           string          `json:"table"`
	FailureStrategy FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *PostgresConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("connector: postgres config missing dsn")
	}
	if c.Table == "" {
		return fmt.Errorf("connector: postgres config missing table")
	}
	return nil
}

// GreptimeDBConfig backs ConnectorGreptimeDB. No Go client for GreptimeDB
// exists anywhere in the retrieval pack; this type talks to GreptimeDB's
// documented line-protocol HTTP ingestion endpoint over net/http instead.
type GreptimeDBConfig struct {
	Endpoint        string          `json:"endpoint"`
	Database        string          `json:"database"`
	Table           string          `json:"table"`
	Username        string          `json:"username,omitempty"`
	Password        string          `json:"password,omitempty"`
	FailureStrategy FailureStrategy `json:"failure_strategy,omitempty"`
}

func (c *GreptimeDBConfig) Strategy() FailureStrategy { return strategyOrDefault(c.FailureStrategy) }

func (c *GreptimeDBConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("connector: greptimedb config missing endpoint")
	}
	if c.Database == "" {
		return fmt.Errorf("connector: greptimedb config missing database")
	}
	if c.Table == "" {
		return fmt.Errorf("connector: greptimedb config missing table")
	}
	return nil
}

// parseConfig decodes raw into the concrete Config for connectorType and
// validates it, implementing 4.10's per-type JSON schema enforcement.
func parseConfig(connectorType types.ConnectorType, raw []byte) (Config, error) {
	var cfg Config
	switch connectorType {
	case types.ConnectorLocalFile:
		cfg = &LocalFileConfig{}
	case types.ConnectorKafka:
		cfg = &KafkaConfig{}
	case types.ConnectorPulsar:
		cfg = &PulsarConfig{}
	case types.ConnectorRabbitMQ:
		cfg = &RabbitMQConfig{}
	case types.ConnectorPostgres:
		cfg = &PostgresConfig{}
	case types.ConnectorGreptimeDB:
		cfg = &GreptimeDBConfig{}
	default:
		return nil, fmt.Errorf("connector: unknown connector_type %q", connectorType)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("connector: decode %s config: %w", connectorType, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
