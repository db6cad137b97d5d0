// Package connector implements the outbound bridge runtime: one plugin
// task per Connector, reading a topic's journal-backed record stream at a
// persisted group offset and forwarding each batch to an external sink
// (local file, Kafka, Pulsar, RabbitMQ, Postgres, GreptimeDB).
package connector
