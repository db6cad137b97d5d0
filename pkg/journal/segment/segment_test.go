package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

func newTestSegment(t *testing.T, cfg Config) *Segment {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "segment.log")
	}
	if cfg.ShardName == "" {
		cfg.ShardName = "shard-1"
	}
	if cfg.FsyncInterval == 0 {
		cfg.FsyncInterval = 10 * time.Millisecond
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAssignsSequentialOffsets(t *testing.T) {
	s := newTestSegment(t, Config{})

	offsets, err := s.Append([]PendingRecord{
		{Key: "a", Value: []byte("1"), Timestamp: 1},
		{Key: "b", Value: []byte("2"), Timestamp: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, offsets)
}

func TestReadByOffsetReturnsAppendedRecords(t *testing.T) {
	s := newTestSegment(t, Config{})

	_, err := s.Append([]PendingRecord{
		{Value: []byte("1"), Timestamp: 100},
		{Value: []byte("2"), Timestamp: 200},
		{Value: []byte("3"), Timestamp: 300},
	})
	require.NoError(t, err)

	records, err := s.ReadByOffset(1, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Offset)
	assert.Equal(t, []byte("2"), records[0].Value)
	assert.Equal(t, uint64(2), records[1].Offset)
}

func TestReadByTagFiltersToTaggedRecords(t *testing.T) {
	s := newTestSegment(t, Config{})

	_, err := s.Append([]PendingRecord{
		{Value: []byte("1"), Tags: []string{"alerts"}, Timestamp: 1},
		{Value: []byte("2"), Timestamp: 2},
		{Value: []byte("3"), Tags: []string{"alerts"}, Timestamp: 3},
	})
	require.NoError(t, err)

	records, err := s.ReadByTag("alerts", 0, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []byte("1"), records[0].Value)
	assert.Equal(t, []byte("3"), records[1].Value)
}

func TestReadByKeyReturnsLatestValue(t *testing.T) {
	s := newTestSegment(t, Config{})

	_, err := s.Append([]PendingRecord{
		{Key: "device-1", Value: []byte("old"), Timestamp: 1},
		{Key: "device-1", Value: []byte("new"), Timestamp: 2},
	})
	require.NoError(t, err)

	rec, ok, err := s.ReadByKey("device-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), rec.Value)

	_, ok, err = s.ReadByKey("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadByTimestampReturnsFirstMatch(t *testing.T) {
	s := newTestSegment(t, Config{})

	_, err := s.Append([]PendingRecord{
		{Value: []byte("1"), Timestamp: 10},
		{Value: []byte("2"), Timestamp: 20},
		{Value: []byte("3"), Timestamp: 30},
	})
	require.NoError(t, err)

	records, err := s.ReadByTimestamp(15, ReadOptions{MaxRecordNum: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte("2"), records[0].Value)
}

func TestAppendRejectedWhenNotLeader(t *testing.T) {
	s := newTestSegment(t, Config{IsLeader: func() bool { return false }})

	_, err := s.Append([]PendingRecord{{Value: []byte("1")}})
	assert.ErrorIs(t, err, robustmqerrors.ErrNotLeader)
}

func TestSegmentSealsAtNinetyPercentThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.log")
	rec := PendingRecord{Value: []byte("0123456789")}
	frameSize := int64(frameHeaderSize + len(rec.Value) + 40) // JSON envelope overhead, approximate upper bound

	s := newTestSegment(t, Config{Path: path, MaxSize: frameSize * 3})

	for i := 0; i < 10; i++ {
		_, err := s.Append([]PendingRecord{rec})
		if err != nil {
			break
		}
	}

	require.Eventually(t, func() bool {
		return s.Status() == "SealUp" || s.Status() == "PrepareSealUp"
	}, time.Second, 10*time.Millisecond)
}

func TestOpenTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.log")

	s, err := Open(Config{ShardName: "shard-1", Path: path, FsyncInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	_, err = s.Append([]PendingRecord{{Value: []byte("complete")}})
	require.NoError(t, err)
	completeSize := s.Position()
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00, 0x00, 0x00, 0x05}, completeSize) // truncated header, claims a 5-byte payload never written
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := newTestSegment(t, Config{Path: path})
	assert.Equal(t, completeSize, reopened.Position())

	records, err := reopened.ReadByOffset(0, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte("complete"), records[0].Value)
}

func TestCloseStopsWriterGoroutine(t *testing.T) {
	s, err := Open(Config{
		ShardName:     "shard-1",
		Path:          filepath.Join(t.TempDir(), "segment.log"),
		FsyncInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Append([]PendingRecord{{Value: []byte("x")}})
	assert.Error(t, err)
}
