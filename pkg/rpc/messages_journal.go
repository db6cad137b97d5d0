package rpc

// RecordInput is one record submitted to a batch write.
type RecordInput struct {
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Tags      []string          `json:"tags,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// RecordOutput is one record returned from a read.
type RecordOutput struct {
	Offset    uint64            `json:"offset"`
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Tags      []string          `json:"tags,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// BatchWriteRequest appends records sharing one (namespace, shard,
// segment) to that segment's active write position.
type BatchWriteRequest struct {
	Namespace  string        `json:"namespace"`
	ShardName  string        `json:"shard_name"`
	SegmentSeq uint64        `json:"segment_seq"`
	Records    []RecordInput `json:"records"`
}

// BatchWriteReply returns the offsets assigned, in submission order.
type BatchWriteReply struct {
	Offsets []uint64 `json:"offsets"`
}

// ReadByOffsetRequest reads forward from startOffset.
type ReadByOffsetRequest struct {
	Namespace    string `json:"namespace"`
	ShardName    string `json:"shard_name"`
	SegmentSeq   uint64 `json:"segment_seq"`
	StartOffset  uint64 `json:"start_offset"`
	MaxRecordNum int    `json:"max_record_num"`
	MaxByteSize  int64  `json:"max_byte_size"`
}

// ReadByKeyRequest reads the unique latest record stored under key.
type ReadByKeyRequest struct {
	Namespace  string `json:"namespace"`
	ShardName  string `json:"shard_name"`
	SegmentSeq uint64 `json:"segment_seq"`
	Key        string `json:"key"`
}

// ReadByTagRequest reads every record tagged Tag with offset >= StartOffset.
type ReadByTagRequest struct {
	Namespace    string `json:"namespace"`
	ShardName    string `json:"shard_name"`
	SegmentSeq   uint64 `json:"segment_seq"`
	Tag          string `json:"tag"`
	StartOffset  uint64 `json:"start_offset"`
	MaxRecordNum int    `json:"max_record_num"`
	MaxByteSize  int64  `json:"max_byte_size"`
}

// ReadReply carries zero or more matched records.
type ReadReply struct {
	Records []RecordOutput `json:"records"`
	Found   bool           `json:"found"`
}

// GetOffsetByTimestampRequest asks for the first offset at or after Timestamp.
type GetOffsetByTimestampRequest struct {
	Namespace  string `json:"namespace"`
	ShardName  string `json:"shard_name"`
	SegmentSeq uint64 `json:"segment_seq"`
	Timestamp  int64  `json:"timestamp"`
}

// GetOffsetByTimestampReply returns the matched offset, if any.
type GetOffsetByTimestampReply struct {
	Offset uint64 `json:"offset"`
	Found  bool   `json:"found"`
}

// CreateShardRequest asks the journal node hosting namespace/shard to
// create its first segment.
type CreateShardRequest struct {
	Namespace string `json:"namespace"`
	ShardName string `json:"shard_name"`
}

// CreateShardReply acknowledges shard creation.
type CreateShardReply struct{}

// DeleteShardRequest asks the journal node to remove a shard and its segments.
type DeleteShardRequest struct {
	Namespace string `json:"namespace"`
	ShardName string `json:"shard_name"`
}

// DeleteShardReply acknowledges shard deletion.
type DeleteShardReply struct{}
