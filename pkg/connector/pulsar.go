package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/robustmq/robustmq/pkg/types"
)

// pulsarPlugin publishes each record as a JSON payload through one
// pulsar.Producer per connector session, as 4.10 specifies.
type pulsarPlugin struct {
	cfg *PulsarConfig
}

func newPulsarPlugin(cfg *PulsarConfig) *pulsarPlugin { return &pulsarPlugin{cfg: cfg} }

func (p *pulsarPlugin) Validate() error { return p.cfg.Validate() }

type pulsarHandle struct {
	client   pulsar.Client
	producer pulsar.Producer
}

func (p *pulsarPlugin) InitSink(_ context.Context) (SinkHandle, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: p.cfg.ServiceURL})
	if err != nil {
		return nil, fmt.Errorf("pulsar connector: new client: %w", err)
	}
	producer, err := client.CreateProducer(pulsar.ProducerOptions{Topic: p.cfg.Topic})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pulsar connector: create producer: %w", err)
	}
	return &pulsarHandle{client: client, producer: producer}, nil
}

func (p *pulsarPlugin) SendBatch(ctx context.Context, handle SinkHandle, records []types.Record) error {
	h := handle.(*pulsarHandle)
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("pulsar connector: marshal record: %w", err)
		}
		msg := &pulsar.ProducerMessage{Payload: payload}
		if rec.Key != "" {
			msg.Key = rec.Key
		}
		if _, err := h.producer.Send(ctx, msg); err != nil {
			return fmt.Errorf("pulsar connector: send: %w", err)
		}
	}
	return nil
}

func (p *pulsarPlugin) CleanupSink(handle SinkHandle) error {
	h := handle.(*pulsarHandle)
	h.producer.Close()
	h.client.Close()
	return nil
}
