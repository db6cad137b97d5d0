// Package segment implements the Segment Store (spec 4.2): each segment
// is a contiguous append-only file plus four index maps, owned by a
// single writer goroutine that serializes appends through a bounded
// channel — the same single-owner-goroutine-plus-channel shape the
// teacher uses for pkg/events.Broker, generalized here to own a file and
// its write position instead of a subscriber map.
package segment

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/types"
)

// frameHeaderSize is the fixed (length, crc) prefix of every record frame.
const frameHeaderSize = 8

// offsetIndexInterval controls the sparseness of the offset index: one
// entry is recorded every N appended records.
const offsetIndexInterval = 64

// defaultFsyncInterval is how often the writer flushes to disk when no
// explicit interval is configured.
const defaultFsyncInterval = 200 * time.Millisecond

// sealGraceOffsets is how many additional offsets a segment accepts past
// the 90% threshold before it is projected to seal, giving in-flight
// writers room to land (spec 4.2's rolling/sealing grace window).
const sealGraceOffsets = 128

// PendingRecord is one caller-submitted record awaiting an assigned offset.
type PendingRecord struct {
	Key       string
	Value     []byte
	Tags      []string
	Header    map[string]string
	Timestamp int64
}

// WriteRequest is a batch of PendingRecord submitted to the writer.
type WriteRequest struct {
	Records []PendingRecord
	Reply   chan WriteResult
}

// WriteResult carries the offsets assigned to a WriteRequest's records, in
// order, or an error if the batch was rejected outright.
type WriteResult struct {
	Offsets []uint64
	Err     error
}

// RollCallback is invoked by the scroll task when a segment crosses the
// 50% size threshold, so the owner can ask the meta service to
// pre-create the next segment.
type RollCallback func(shardName string, segmentSeq uint64)

// Config configures a Segment's file, limits, and background behavior.
type Config struct {
	ShardName     string
	SegmentSeq    uint64
	Path          string
	MaxSize       int64
	FsyncInterval time.Duration
	IsLeader      func() bool
	OnHalfFull    RollCallback
}

// Segment owns one append-only file and its four indices. All mutation
// goes through Append (channel-serialized); reads may run concurrently
// with the writer since they use ReadAt against immutable byte ranges
// that, once indexed, are never rewritten.
type Segment struct {
	shardName  string
	segmentSeq uint64
	maxSize    int64

	file *os.File

	mu         sync.RWMutex
	status     types.SegmentStatus
	nextOffset uint64
	position   int64
	endOffset  int64 // -1 while open

	idx *indices

	isLeader   func() bool
	onHalfFull RollCallback
	halfFired  bool

	writeCh chan *WriteRequest
	stopCh  chan struct{}
	doneCh  chan struct{}

	fsyncInterval time.Duration
	logger        zerolog.Logger
}

// Open opens or creates the segment file at cfg.Path and starts its
// writer goroutine. The caller must call Close when done.
func Open(cfg Config) (*Segment, error) {
	file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	idx := newIndices()
	position, nextOffset, err := rebuildIndices(cfg.ShardName, file, idx)
	if err != nil {
		file.Close()
		return nil, err
	}

	fsyncInterval := cfg.FsyncInterval
	if fsyncInterval <= 0 {
		fsyncInterval = defaultFsyncInterval
	}

	isLeader := cfg.IsLeader
	if isLeader == nil {
		isLeader = func() bool { return true }
	}

	s := &Segment{
		shardName:     cfg.ShardName,
		segmentSeq:    cfg.SegmentSeq,
		maxSize:       cfg.MaxSize,
		file:          file,
		status:        types.SegmentStatusWrite,
		nextOffset:    nextOffset,
		position:      position,
		endOffset:     -1,
		idx:           idx,
		isLeader:      isLeader,
		onHalfFull:    cfg.OnHalfFull,
		writeCh:       make(chan *WriteRequest, 256),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		fsyncInterval: fsyncInterval,
		logger:        log.WithSegment(cfg.ShardName, cfg.SegmentSeq),
	}

	go s.run()
	return s, nil
}

// Status reports the segment's current lifecycle state.
func (s *Segment) Status() types.SegmentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// EndOffset reports the sealed end offset, or -1 if still open.
func (s *Segment) EndOffset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endOffset
}

// Position reports the current write position (bytes written).
func (s *Segment) Position() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// Close stops the writer goroutine and closes the file handle.
func (s *Segment) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.file.Close()
}
