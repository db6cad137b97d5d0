// Package innercall implements the Broker Inner-Call push mechanism (spec
// 4.6): after the Raft state machine applies a mutation, every broker in
// the affected cluster gets a best-effort UpdateCache push. It generalizes
// the teacher's pkg/events.Broker — one subscriber channel per local
// listener — into one ordered queue per remote broker target, drained by
// a dedicated goroutine that calls out over gRPC via a Pusher.
package innercall

import (
	"context"
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
)

// queueDepth bounds the per-target backlog; a target that cannot keep up
// has pushes dropped rather than block the applying goroutine, matching
// the teacher's subscriber-channel-full-skip behavior.
const queueDepth = 256

// pushTimeout bounds how long one delivery attempt may block before it is
// treated as a failed, droppable push.
const pushTimeout = 5 * time.Second

// Pusher delivers one cache Update to a named broker target. Implemented
// by pkg/rpc's broker inner-call client.
type Pusher interface {
	Push(ctx context.Context, target string, update cache.Update) error
}

// Broadcaster fans a cache.Update out to every registered broker target.
type Broadcaster struct {
	mu      sync.RWMutex
	targets map[string]*targetQueue
	pusher  Pusher
}

type targetQueue struct {
	updates chan cache.Update
	stopCh  chan struct{}
}

// New builds a Broadcaster that delivers pushes through pusher.
func New(pusher Pusher) *Broadcaster {
	return &Broadcaster{
		targets: make(map[string]*targetQueue),
		pusher:  pusher,
	}
}

// RegisterTarget starts draining a queue for address, if not already
// registered. Idempotent.
func (b *Broadcaster) RegisterTarget(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targets[address]; ok {
		return
	}
	q := &targetQueue{
		updates: make(chan cache.Update, queueDepth),
		stopCh:  make(chan struct{}),
	}
	b.targets[address] = q
	go b.drain(address, q)
}

// UnregisterTarget stops and discards the queue for address, e.g. when a
// broker leaves the cluster.
func (b *Broadcaster) UnregisterTarget(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.targets[address]
	if !ok {
		return
	}
	close(q.stopCh)
	delete(b.targets, address)
}

// Broadcast enqueues update for every registered target. A target whose
// queue is full has this update dropped; delivery is best-effort, and the
// cache's idempotent Set/Delete semantics mean a dropped update is
// repaired by the next push for the same key.
func (b *Broadcaster) Broadcast(update cache.Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for address, q := range b.targets {
		select {
		case q.updates <- update:
		default:
			metrics.PacketsDroppedTotal.WithLabelValues("innercall").Inc()
			log.Logger.Warn().Str("target", address).Str("resource_type", string(update.ResourceType)).
				Msg("innercall: target queue full, dropping update")
		}
	}
}

func (b *Broadcaster) drain(address string, q *targetQueue) {
	for {
		select {
		case update := <-q.updates:
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			err := b.pusher.Push(ctx, address, update)
			cancel()
			if err != nil {
				log.Logger.Warn().Str("target", address).Err(err).Msg("innercall: push failed, dropping")
			}
		case <-q.stopCh:
			return
		}
	}
}

// TargetCount reports how many targets are currently registered.
func (b *Broadcaster) TargetCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.targets)
}
