package innercall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/cache"
)

type recordingPusher struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (p *recordingPusher) Push(_ context.Context, target string, _ cache.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return assertErr
	}
	p.calls = append(p.calls, target)
	return nil
}

func (p *recordingPusher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const assertErr = simpleErr("push failed")

func TestBroadcastDeliversToEveryTarget(t *testing.T) {
	pusher := &recordingPusher{}
	b := New(pusher)
	b.RegisterTarget("broker-1")
	b.RegisterTarget("broker-2")
	require.Equal(t, 2, b.TargetCount())

	b.Broadcast(cache.Update{ResourceType: cache.ResourceSession, ActionType: cache.ActionSet, Key: "c1"})

	require.Eventually(t, func() bool { return pusher.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestUnregisterTargetStopsDelivery(t *testing.T) {
	pusher := &recordingPusher{}
	b := New(pusher)
	b.RegisterTarget("broker-1")
	b.UnregisterTarget("broker-1")
	assert.Equal(t, 0, b.TargetCount())

	b.Broadcast(cache.Update{ResourceType: cache.ResourceSession, ActionType: cache.ActionSet, Key: "c1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, pusher.callCount())
}

func TestBroadcastToFullQueueDropsWithoutBlocking(t *testing.T) {
	pusher := &recordingPusher{}
	b := New(pusher)
	b.RegisterTarget("broker-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueDepth*2; i++ {
			b.Broadcast(cache.Update{ResourceType: cache.ResourceSession, ActionType: cache.ActionSet, Key: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked instead of dropping on a full queue")
	}
}
