/*
Package metrics registers the Prometheus collectors exposed by every
RobustMQ process: persistence KV operation latency by source, segment
write/read throughput, Raft apply/commit duration, per-transport network
queue and handler latency, and connector send throughput. Handler returns
the promhttp handler for the process's metrics endpoint; Timer is a small
helper for observing operation duration into a histogram.
*/
package metrics
