package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/robustmq/robustmq/pkg/types"
)

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// kafkaPlugin publishes each record as a JSON-encoded kgo.Record to a
// fixed topic, one kgo.Client producer per connector instance.
type kafkaPlugin struct {
	cfg *KafkaConfig
}

func newKafkaPlugin(cfg *KafkaConfig) *kafkaPlugin { return &kafkaPlugin{cfg: cfg} }

func (p *kafkaPlugin) Validate() error { return p.cfg.Validate() }

func (p *kafkaPlugin) InitSink(_ context.Context) (SinkHandle, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(p.cfg.BootstrapServers...),
		kgo.DefaultProduceTopic(p.cfg.Topic),
	}
	if p.cfg.Acks == "none" {
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()))
	} else if p.cfg.Acks == "leader" {
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()))
	} else {
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}
	switch p.cfg.CompressionType {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	if p.cfg.Retries > 0 {
		opts = append(opts, kgo.RecordRetries(p.cfg.Retries))
	}
	if p.cfg.LingerMs > 0 {
		opts = append(opts, kgo.ProducerLinger(msDuration(p.cfg.LingerMs)))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka connector: new client: %w", err)
	}
	return client, nil
}

func (p *kafkaPlugin) SendBatch(ctx context.Context, handle SinkHandle, records []types.Record) error {
	client := handle.(*kgo.Client)

	kgoRecords := make([]*kgo.Record, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("kafka connector: marshal record: %w", err)
		}
		key := p.cfg.Key
		if key == "" {
			key = rec.Key
		}
		kr := &kgo.Record{Topic: p.cfg.Topic, Value: value}
		if key != "" {
			kr.Key = []byte(key)
		}
		kgoRecords = append(kgoRecords, kr)
	}

	results := client.ProduceSync(ctx, kgoRecords...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("kafka connector: produce: %w", err)
	}
	return nil
}

func (p *kafkaPlugin) CleanupSink(handle SinkHandle) error {
	client := handle.(*kgo.Client)
	client.Close()
	return nil
}
