package segment

import (
	"encoding/json"
	"time"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/types"
)

// recordPayload is the on-disk JSON envelope framed by encodeFrame. It
// omits Offset and CRC, which live in the frame header and index, not the
// payload itself.
type recordPayload struct {
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Tags      []string          `json:"tags,omitempty"`
	Header    map[string]string `json:"header,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

func encodeRecordPayload(rec PendingRecord) ([]byte, error) {
	return json.Marshal(recordPayload{
		Key: rec.Key, Value: rec.Value, Tags: rec.Tags, Header: rec.Header, Timestamp: rec.Timestamp,
	})
}

func decodeRecordPayload(data []byte, rec *PendingRecord) error {
	var p recordPayload
	if err := decodeRecordPayloadInto(data, &p); err != nil {
		return err
	}
	rec.Key, rec.Value, rec.Tags, rec.Header, rec.Timestamp = p.Key, p.Value, p.Tags, p.Header, p.Timestamp
	return nil
}

func decodeRecordPayloadInto(data []byte, p *recordPayload) error {
	return json.Unmarshal(data, p)
}

// Append submits a batch of records and blocks until the writer goroutine
// has assigned them offsets and written them to the segment file (not
// necessarily fsynced yet; fsync happens on fsyncInterval).
func (s *Segment) Append(records []PendingRecord) ([]uint64, error) {
	req := &WriteRequest{Records: records, Reply: make(chan WriteResult, 1)}
	select {
	case <-s.stopCh:
		return nil, robustmqerrors.ErrSegmentAlreadySealUp
	default:
	}
	select {
	case s.writeCh <- req:
	case <-s.stopCh:
		return nil, robustmqerrors.ErrSegmentAlreadySealUp
	}
	result := <-req.Reply
	return result.Offsets, result.Err
}

// run is the segment's single writer goroutine: every append, roll check,
// and periodic fsync is serialized through this loop, the same
// single-owner-goroutine-plus-channel shape pkg/events.Broker uses for its
// subscriber fan-out.
func (s *Segment) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.fsyncInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-s.writeCh:
			req.Reply <- s.appendLocked(req.Records)
		case <-ticker.C:
			s.file.Sync()
			s.checkRoll()
		case <-s.stopCh:
			s.file.Sync()
			return
		}
	}
}

func (s *Segment) appendLocked(records []PendingRecord) WriteResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SegmentWriteDuration, s.shardName)

	s.mu.Lock()
	status := s.status
	endOffset := s.endOffset
	leader := s.isLeader()
	s.mu.Unlock()

	if !leader {
		return WriteResult{Err: robustmqerrors.ErrNotLeader}
	}
	if status != types.SegmentStatusWrite && status != types.SegmentStatusPrepareSealUp {
		return WriteResult{Err: robustmqerrors.ErrSegmentAlreadySealUp}
	}
	if _, err := s.file.Stat(); err != nil {
		return WriteResult{Err: robustmqerrors.ErrSegmentFileNotExists}
	}

	offsets := make([]uint64, 0, len(records))
	for _, rec := range records {
		if endOffset != -1 && s.nextOffset > uint64(endOffset) {
			return WriteResult{Offsets: offsets, Err: robustmqerrors.ErrSegmentAlreadySealUp}
		}

		payload, err := encodeRecordPayload(rec)
		if err != nil {
			return WriteResult{Offsets: offsets, Err: err}
		}
		frame := encodeFrame(payload)

		if _, err := s.file.WriteAt(frame, s.position); err != nil {
			return WriteResult{Offsets: offsets, Err: err}
		}

		offset := s.nextOffset

		s.mu.Lock()
		s.idx.record(offset, s.position, rec)
		s.position += int64(len(frame))
		s.nextOffset++
		s.mu.Unlock()

		offsets = append(offsets, offset)
	}

	s.checkRoll()
	return WriteResult{Offsets: offsets}
}

// checkRoll samples the segment's size against maxSize and drives the
// 50%/90% rolling thresholds spec 4.2 names: at 50% it asks the owner to
// pre-create the next (Idle) segment; at 90% it projects an end_offset and
// moves to PrepareSealUp so in-flight writers get a grace window before
// the segment is marked SealUp.
func (s *Segment) checkRoll() {
	if s.maxSize <= 0 {
		return
	}

	s.mu.Lock()
	position := s.position
	status := s.status
	halfFired := s.halfFired
	s.mu.Unlock()

	half := s.maxSize / 2
	ninety := s.maxSize * 9 / 10

	if !halfFired && position >= half {
		s.mu.Lock()
		s.halfFired = true
		s.mu.Unlock()
		if s.onHalfFull != nil {
			s.onHalfFull(s.shardName, s.segmentSeq)
		}
	}

	if status == types.SegmentStatusWrite && position >= ninety {
		s.mu.Lock()
		projected := int64(s.nextOffset) + sealGraceOffsets
		s.status = types.SegmentStatusPrepareSealUp
		s.endOffset = projected
		s.mu.Unlock()
		s.logger.Info().Int64("projected_end_offset", projected).Msg("segment entering prepare-seal-up")
	}

	s.mu.RLock()
	endOffset := s.endOffset
	nextOffset := s.nextOffset
	prepareSealing := s.status == types.SegmentStatusPrepareSealUp
	s.mu.RUnlock()

	if prepareSealing && endOffset != -1 && nextOffset > uint64(endOffset) {
		s.mu.Lock()
		s.status = types.SegmentStatusSealUp
		s.mu.Unlock()
		metrics.SegmentsSealedTotal.WithLabelValues(s.shardName).Inc()
		s.logger.Info().Int64("end_offset", endOffset).Msg("segment sealed")
	}
}
