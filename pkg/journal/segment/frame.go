package segment

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/robustmq/robustmq/pkg/metrics"
)

// encodeFrame lays out one record as (4-byte BE length | 4-byte BE crc32 |
// payload), the literal (len | crc | payload) framing spec 4.2 describes.
func encodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// rebuildIndices scans file from the start, replaying every well-formed
// frame into idx, skipping CRC-mismatched records (counted as a metric)
// and truncating a torn tail left by a crash mid-write.
func rebuildIndices(shardName string, file *os.File, idx *indices) (position int64, nextOffset uint64, err error) {
	reader := io.NewSectionReader(file, 0, 1<<62)
	var offset uint64
	var pos int64

	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if err == io.EOF {
				break
			}
			// Partial header: torn tail, truncate here.
			break
		}
		length := binary.BigEndian.Uint32(header[0:4])
		wantCRC := binary.BigEndian.Uint32(header[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			// Partial payload: torn tail, truncate here.
			break
		}

		if crc32.ChecksumIEEE(payload) != wantCRC {
			metrics.SegmentCRCFailuresTotal.WithLabelValues(shardName).Inc()
			pos += int64(frameHeaderSize) + int64(length)
			continue
		}

		var rec PendingRecord
		if decErr := decodeRecordPayload(payload, &rec); decErr == nil {
			idx.record(offset, pos, rec)
		}

		pos += int64(frameHeaderSize) + int64(length)
		offset++
	}

	if err := file.Truncate(pos); err != nil {
		return 0, 0, err
	}
	if _, err := file.Seek(pos, io.SeekStart); err != nil {
		return 0, 0, err
	}
	return pos, offset, nil
}
