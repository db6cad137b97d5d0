// Package errors enumerates the sentinel error values used across the
// core, grouped by the taxonomy in the error-handling design: validation,
// state, cluster, transport, replication, persistence, authorization, and
// fatal errors. Callers compare with errors.Is and wrap with fmt.Errorf's
// %w, the same idiom the rest of this module uses throughout.
package errors

import "errors"

// Validation errors.
var (
	ErrTopicNameIsEmpty            = errors.New("topic name is empty")
	ErrTopicNameIncorrectlyFormatted = errors.New("topic name is incorrectly formatted")
	ErrInvalidQoS                  = errors.New("invalid qos")
	ErrEmptySubscription           = errors.New("empty subscription")
	ErrPayloadFormatInvalid        = errors.New("payload format invalid")
	ErrInvalidBlacklistType        = errors.New("invalid blacklist type")
)

// State errors.
var (
	ErrShardNotExist          = errors.New("shard does not exist")
	ErrSegmentNotExist        = errors.New("segment does not exist")
	ErrNotAvailableSegments   = errors.New("no available segments")
	ErrNotActiveSegment       = errors.New("segment is not active")
	ErrNotLeader              = errors.New("not the leader")
	ErrSegmentStatusError     = errors.New("segment status error")
	ErrSegmentAlreadySealUp   = errors.New("segment already sealed")
	ErrSegmentFileNotExists   = errors.New("segment file does not exist")
	ErrSessionDoesNotExist    = errors.New("session does not exist")
	ErrConnectorNotFound      = errors.New("connector not found")
	ErrConnectorAlreadyExist  = errors.New("connector already exists")
)

// Cluster errors.
var (
	ErrNoEnoughEngineNodes       = errors.New("not enough engine nodes")
	ErrNumberOfReplicasIncorrect = errors.New("number of replicas is incorrect")
	ErrNoAvailableBrokerNode     = errors.New("no available broker node")
	ErrNodeDoesNotExist          = errors.New("node does not exist")
)

// Transport errors.
var (
	ErrDecodeError        = errors.New("decode error")
	ErrEncodeError        = errors.New("encode error")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrReceivedPacketError = errors.New("received packet error")
)

// Replication errors.
var (
	ErrRaftLogCommitTimeout  = errors.New("raft log commit timeout")
	ErrExecutionResultIsEmpty = errors.New("execution result is empty")
)

// Persistence errors.
var (
	ErrFamilyNotAvailable = errors.New("column family not available")
	ErrSerializationError = errors.New("serialization error")
	ErrIoError            = errors.New("io error")
)

// Authorization errors.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrBanned        = errors.New("client is banned")
)

// Fatal errors.
var (
	ErrNoKVInstanceAvailable = errors.New("no kv instance available")
)

// Packet-identifier errors (MQTT QoS handshake).
var (
	ErrPacketIdentifierNotFound = errors.New("packet identifier not found")
	ErrPacketIdentifierInUse    = errors.New("packet identifier in use")
)
