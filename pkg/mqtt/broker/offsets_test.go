package broker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/broker"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
)

func TestOffsetTrackerGetDefaultsToZeroWhenUnset(t *testing.T) {
	meta := newFakeMeta()
	tracker := broker.NewOffsetTracker(meta, "cluster-1")

	offset, err := tracker.Get("mqtt-sub", "sensors/temp")
	require.NoError(t, err)
	assert.Zero(t, offset)
}

func TestOffsetTrackerGetReturnsStoredOffset(t *testing.T) {
	meta := newFakeMeta()
	meta.offsets["mqtt-sub/sensors/temp"] = 42
	tracker := broker.NewOffsetTracker(meta, "cluster-1")

	offset, err := tracker.Get("mqtt-sub", "sensors/temp")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), offset)
}

func TestOffsetTrackerAdvanceExecutesOffsetSet(t *testing.T) {
	meta := newFakeMeta()
	tracker := broker.NewOffsetTracker(meta, "cluster-1")

	require.NoError(t, tracker.Advance("mqtt-sub", "sensors/temp", 7))

	meta.mu.Lock()
	defer meta.mu.Unlock()
	require.Len(t, meta.executes, 1)
	assert.Equal(t, "offset", meta.executes[0].Group)
	assert.Equal(t, robustraft.OffsetSet, meta.executes[0].DataType)
}
