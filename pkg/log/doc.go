/*
Package log provides structured logging built on zerolog, shared by the
meta service, the journal, and the broker. A single global Logger is
configured once from the process's Config, and each long-lived subsystem
derives a child logger via WithComponent/WithNodeID/WithShard/WithSegment/
WithConnector/WithClientID rather than logging through the global logger
directly, so every line carries the fields needed to trace it back to a
specific shard, segment, connector, or client.
*/
package log
