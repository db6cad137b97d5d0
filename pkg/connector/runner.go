package connector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/types"
)

// offsetGroup is the meta "offset" Raft group's group name for every
// connector cursor, following the same offset/{group}/{shard} KV
// convention pkg/mqtt/subscribe's dispatch tasks use, with the connector
// name standing in for the shard component.
const offsetGroup = "connector"

const (
	pollInterval     = 200 * time.Millisecond
	batchSize        = 100
	transientBackoff = 100 * time.Millisecond
)

// runner is the generic plugin loop (spec 4.10): open sink, then in a
// ticker-driven poll, read a batch at the persisted offset, heartbeat,
// send, advance the offset on success, back off on transient error, and
// respect failure_strategy once a batch has failed persistently. It
// generalizes pkg/worker.Worker's heartbeatLoop/containerExecutorLoop
// select-on-stopCh shape into a single combined loop.
type runner struct {
	name          string
	connectorType types.ConnectorType
	topicName     string
	plugin        Plugin
	strategy      FailureStrategy
	source        RecordSource
	offsets       OffsetTracker
	manager       *Manager

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRunner(name string, connectorType types.ConnectorType, topicName string, plugin Plugin, strategy FailureStrategy, source RecordSource, offsets OffsetTracker, manager *Manager) *runner {
	return &runner{
		name:          name,
		connectorType: connectorType,
		topicName:     topicName,
		plugin:        plugin,
		strategy:      strategy,
		source:        source,
		offsets:       offsets,
		manager:       manager,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (r *runner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *runner) run() {
	defer close(r.doneCh)
	logger := log.WithConnector(r.name)

	handle, err := r.plugin.InitSink(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("connector: failed to open sink")
		return
	}
	defer func() {
		if err := r.plugin.CleanupSink(handle); err != nil {
			logger.Warn().Err(err).Msg("connector: sink cleanup failed")
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.poll(context.Background(), handle, logger, &consecutiveFailures) {
				return
			}
		}
	}
}

// poll reads and forwards one batch. It returns true when the runner
// should stop entirely (FailureStrategyPause past the persistent-failure
// threshold).
func (r *runner) poll(ctx context.Context, handle SinkHandle, logger zerolog.Logger, consecutiveFailures *int) bool {
	offset, err := r.offsets.Get(offsetGroup, r.name)
	if err != nil {
		logger.Warn().Err(err).Msg("connector: failed to read cursor")
		return false
	}

	records, next, err := r.source.ReadBatch(ctx, r.topicName, offset, batchSize)
	if err != nil {
		logger.Warn().Err(err).Msg("connector: failed to read batch")
		return false
	}
	if len(records) == 0 {
		return false
	}

	r.manager.touchHeartbeat(r.name)

	start := time.Now()
	sendErr := r.plugin.SendBatch(ctx, handle, records)
	metrics.ConnectorSendDuration.WithLabelValues(r.name, string(r.connectorType)).Observe(time.Since(start).Seconds())

	if sendErr != nil {
		metrics.ConnectorSendFailuresTotal.WithLabelValues(r.name, string(r.connectorType)).Inc()
		*consecutiveFailures++
		logger.Warn().Err(sendErr).Int("consecutive_failures", *consecutiveFailures).Msg("connector: send_batch failed")

		if *consecutiveFailures < persistentFailureThreshold {
			time.Sleep(transientBackoff)
			return false
		}

		switch r.strategy {
		case FailureStrategyDrop:
			logger.Warn().Msg("connector: persistent failure, dropping batch per failure_strategy")
			*consecutiveFailures = 0
		case FailureStrategyPause:
			logger.Error().Msg("connector: persistent failure, pausing connector per failure_strategy")
			return true
		default: // FailureStrategyRetry
			time.Sleep(transientBackoff)
			return false
		}
	} else {
		*consecutiveFailures = 0
		metrics.ConnectorRecordsSentTotal.WithLabelValues(r.name, string(r.connectorType)).Add(float64(len(records)))
	}

	if err := r.offsets.Advance(offsetGroup, r.name, next); err != nil {
		logger.Warn().Err(err).Msg("connector: failed to advance cursor")
	}
	return false
}
