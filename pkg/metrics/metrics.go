package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Persistence KV metrics (4.1): latency by operation and source.
	KVOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_kv_op_duration_seconds",
			Help:    "Persistence KV operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "source"},
	)

	KVOpFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_kv_op_failures_total",
			Help: "Total number of failed KV operations by op and kind",
		},
		[]string{"op", "kind"},
	)

	// Raft Replication metrics (4.4).
	RaftIsLeader = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustmq_raft_is_leader",
			Help: "Whether this node is the Raft leader for the group (1/0)",
		},
		[]string{"group"},
	)

	RaftAppliedIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustmq_raft_applied_index",
			Help: "Last applied Raft log index by group",
		},
		[]string{"group"},
	)

	RaftApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	RaftCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_raft_commit_duration_seconds",
			Help:    "Time taken to commit a client write through Raft",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	// Segment Store metrics (4.2).
	SegmentWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_segment_write_duration_seconds",
			Help:    "Time taken to append a batch to a segment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shard"},
	)

	SegmentReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_segment_read_duration_seconds",
			Help:    "Time taken to serve a segment read",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shard", "mode"},
	)

	SegmentCRCFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_segment_crc_failures_total",
			Help: "Total number of records skipped due to CRC mismatch",
		},
		[]string{"shard"},
	)

	SegmentsSealedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_segments_sealed_total",
			Help: "Total number of segments transitioned to SealUp",
		},
		[]string{"shard"},
	)

	// Network Server metrics (4.7): per-connection, per-transport.
	RequestQueueDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_request_queue_ms",
			Help:    "Time a packet spends queued before a handler picks it up, in ms",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"transport"},
	)

	RequestHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_request_handler_ms",
			Help:    "Time a handler spends processing a packet, in ms",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"transport"},
	)

	ResponseQueueDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_request_response_queue_ms",
			Help:    "Time a response spends queued before a responder picks it up, in ms",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"transport"},
	)

	ResponseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_request_response_ms",
			Help:    "Time spent encoding and writing a response, in ms",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"transport"},
	)

	RequestTotalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_request_total_ms",
			Help:    "Total time from packet receipt to response write, in ms",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"transport"},
	)

	PacketsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_packets_dropped_total",
			Help: "Total number of packets dropped because every handler was backed up",
		},
		[]string{"transport"},
	)

	ConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robustmq_connections_active",
			Help: "Number of active client connections by transport",
		},
		[]string{"transport"},
	)

	ConnectionsAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_connections_accepted_total",
			Help: "Total number of connections accepted by transport",
		},
		[]string{"transport"},
	)

	// MQTT Packet Engine metrics (4.8).
	PacketsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_mqtt_packets_received_total",
			Help: "Total number of MQTT packets received by packet type",
		},
		[]string{"packet_type"},
	)

	PacketsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_mqtt_packets_sent_total",
			Help: "Total number of MQTT packets sent by packet type",
		},
		[]string{"packet_type"},
	)

	KeepAliveTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "robustmq_mqtt_keep_alive_timeouts_total",
			Help: "Total number of connections closed for keep-alive timeout",
		},
	)

	// Subscription Engine metrics (4.9).
	MessagesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_mqtt_messages_delivered_total",
			Help: "Total number of messages delivered to subscribers by variant",
		},
		[]string{"variant"},
	)

	// Connector Runtime metrics (4.10).
	ConnectorRecordsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_connector_records_sent_total",
			Help: "Total number of records sent to an external sink",
		},
		[]string{"connector", "type"},
	)

	ConnectorSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robustmq_connector_send_failures_total",
			Help: "Total number of failed send_batch calls",
		},
		[]string{"connector", "type"},
	)

	ConnectorSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robustmq_connector_send_duration_seconds",
			Help:    "Time taken by send_batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"connector", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		KVOpDuration,
		KVOpFailuresTotal,
		RaftIsLeader,
		RaftAppliedIndex,
		RaftApplyDuration,
		RaftCommitDuration,
		SegmentWriteDuration,
		SegmentReadDuration,
		SegmentCRCFailuresTotal,
		SegmentsSealedTotal,
		RequestQueueDuration,
		RequestHandlerDuration,
		ResponseQueueDuration,
		ResponseDuration,
		RequestTotalDuration,
		PacketsDroppedTotal,
		ConnectionsActive,
		ConnectionsAcceptedTotal,
		PacketsReceivedTotal,
		PacketsSentTotal,
		KeepAliveTimeoutsTotal,
		MessagesDeliveredTotal,
		ConnectorRecordsSentTotal,
		ConnectorSendFailuresTotal,
		ConnectorSendDuration,
	)
}

// Handler returns the Prometheus HTTP handler for a process's metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewTimerAt creates a timer backdated to start, for measuring elapsed time
// from an event recorded earlier (e.g. the moment a packet was received)
// rather than from the call to NewTimerAt itself.
func NewTimerAt(start time.Time) *Timer {
	return &Timer{start: start}
}

// ObserveDuration records the elapsed duration, in seconds, to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration, in seconds, to a
// histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// ObserveMillis records the elapsed duration, in milliseconds, to a
// histogram vec — used for the per-connection network pipeline metrics
// which are specified in ms rather than seconds.
func (t *Timer) ObserveMillis(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(float64(time.Since(t.start).Microseconds()) / 1000.0)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
