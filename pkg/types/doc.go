/*
Package types defines the data-model structs that the meta service, the
journal, and the MQTT broker all share: clusters, nodes, shards, segments,
records, sessions, subscriptions, connectors, and the flat CRUD entities
(ACL, blacklist, topic-rewrite, auto-subscribe, flapping-detect).

The meta service's Raft state machine is the sole writer of every entity
here; the journal and the broker hold read-only, eventually-consistent
copies refreshed by boot-time bulk load and by Broker Inner-Call pushes.

All types are plain structs with JSON tags: the KV layer (pkg/kv) stores
them as length-prefixed, versioned JSON records, and the gRPC layer
(pkg/rpc) carries them over a JSON codec in place of generated protobuf
messages.
*/
package types
