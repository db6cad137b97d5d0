package segment

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/types"
)

// ReadOptions bounds a read-by-offset/tag scan.
type ReadOptions struct {
	MaxRecordNum int
	MaxByteSize  int64
}

func (o ReadOptions) limitRecords() int {
	if o.MaxRecordNum <= 0 {
		return 1 << 30
	}
	return o.MaxRecordNum
}

func (o ReadOptions) limitBytes() int64 {
	if o.MaxByteSize <= 0 {
		return 1 << 40
	}
	return o.MaxByteSize
}

// ReadByOffset streams records starting at startOffset (inclusive) via the
// sparse offset index, seeking to the nearest indexed position at or
// before startOffset and skipping forward to the exact offset.
func (s *Segment) ReadByOffset(startOffset uint64, opts ReadOptions) ([]types.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SegmentReadDuration, s.shardName, "offset")

	s.mu.RLock()
	position := s.idx.nearestOffsetPosition(startOffset)
	s.mu.RUnlock()

	return s.scanFrom(position, func(offset uint64, rec types.Record) bool {
		return offset >= startOffset
	}, opts)
}

// ReadByTag returns every record tagged tag with offset >= startOffset, in
// offset order, via the tag index.
func (s *Segment) ReadByTag(tag string, startOffset uint64, opts ReadOptions) ([]types.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SegmentReadDuration, s.shardName, "tag")

	s.mu.RLock()
	entries := s.idx.byTagFrom(tag, startOffset)
	s.mu.RUnlock()

	out := make([]types.Record, 0, len(entries))
	limitRecords := opts.limitRecords()
	limitBytes := opts.limitBytes()
	var bytesRead int64
	for _, e := range entries {
		if len(out) >= limitRecords || bytesRead >= limitBytes {
			break
		}
		rec, n, err := s.readFrameAt(e.Position, e.Offset)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
		bytesRead += n
	}
	return out, nil
}

// ReadByKey returns the single latest record stored under key, if any.
func (s *Segment) ReadByKey(key string) (types.Record, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SegmentReadDuration, s.shardName, "key")

	s.mu.RLock()
	data, ok := s.idx.byKey(key)
	s.mu.RUnlock()
	if !ok {
		return types.Record{}, false, nil
	}
	rec, _, err := s.readFrameAt(data.Position, data.Offset)
	if err != nil {
		return types.Record{}, false, err
	}
	return rec, true, nil
}

// ReadByTimestamp returns records from the first one at or after target,
// up to opts' limits.
func (s *Segment) ReadByTimestamp(target int64, opts ReadOptions) ([]types.Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SegmentReadDuration, s.shardName, "timestamp")

	s.mu.RLock()
	entry, ok := s.idx.firstAtOrAfter(target)
	position := s.idx.nearestOffsetPosition(entry.Offset)
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	// Scan from an indexed offset position so scanFrom numbers records
	// correctly, then skip forward to the matched offset.
	return s.scanFrom(position, func(offset uint64, rec types.Record) bool {
		return offset >= entry.Offset
	}, opts)
}

// scanFrom streams framed records starting at position, applying include
// to filter and respecting opts' limits.
func (s *Segment) scanFrom(position int64, include func(offset uint64, rec types.Record) bool, opts ReadOptions) ([]types.Record, error) {
	s.mu.RLock()
	endPos := s.position
	s.mu.RUnlock()

	reader := io.NewSectionReader(s.file, position, endPos-position)
	header := make([]byte, frameHeaderSize)

	out := make([]types.Record, 0, opts.limitRecords())
	limitRecords := opts.limitRecords()
	limitBytes := opts.limitBytes()
	var bytesRead int64

	offset := s.offsetAtPosition(position)
	for {
		if len(out) >= limitRecords || bytesRead >= limitBytes {
			break
		}
		if _, err := io.ReadFull(reader, header); err != nil {
			break
		}
		length := binary.BigEndian.Uint32(header[0:4])
		wantCRC := binary.BigEndian.Uint32(header[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			break
		}

		if crc32.ChecksumIEEE(payload) != wantCRC {
			metrics.SegmentCRCFailuresTotal.WithLabelValues(s.shardName).Inc()
			offset++
			continue
		}

		var p recordPayload
		rec := types.Record{Offset: offset, CRC: wantCRC}
		if err := decodeRecordPayloadInto(payload, &p); err == nil {
			rec.Key, rec.Value, rec.Tags, rec.Header, rec.Timestamp = p.Key, p.Value, p.Tags, p.Header, p.Timestamp
		}

		if include(offset, rec) {
			out = append(out, rec)
			bytesRead += int64(frameHeaderSize) + int64(length)
		}
		offset++
	}
	return out, nil
}

// readFrameAt reads exactly one framed record at position.
func (s *Segment) readFrameAt(position int64, offset uint64) (types.Record, int64, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := s.file.ReadAt(header, position); err != nil {
		return types.Record{}, 0, robustmqerrors.ErrSegmentNotExist
	}
	length := binary.BigEndian.Uint32(header[0:4])
	wantCRC := binary.BigEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := s.file.ReadAt(payload, position+frameHeaderSize); err != nil {
		return types.Record{}, 0, err
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		metrics.SegmentCRCFailuresTotal.WithLabelValues(s.shardName).Inc()
		return types.Record{}, 0, robustmqerrors.ErrDecodeError
	}

	var p recordPayload
	if err := decodeRecordPayloadInto(payload, &p); err != nil {
		return types.Record{}, 0, err
	}
	rec := types.Record{
		Offset: offset, CRC: wantCRC, Key: p.Key, Value: p.Value,
		Tags: p.Tags, Header: p.Header, Timestamp: p.Timestamp,
	}
	return rec, int64(frameHeaderSize) + int64(length), nil
}

// offsetAtPosition derives the record offset for a given file position
// from the sparse offset index, falling back to 0 when position is 0.
func (s *Segment) offsetAtPosition(position int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best uint64
	var bestPos int64 = -1
	for off, pos := range s.idx.offset {
		if pos <= position && pos > bestPos {
			best, bestPos = off, pos
		}
	}
	return best
}
