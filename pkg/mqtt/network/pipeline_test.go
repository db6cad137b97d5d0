package network_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// excessRequests is larger than the pipeline's bounded per-handler request
// channel capacity, so filling a single handler channel with this many
// Submit calls is guaranteed to overflow it and force a drop.
const excessRequests = 1100

func TestPipelineDeliversRequestToHandler(t *testing.T) {
	registry := network.NewRegistry()
	var received atomic.Int32
	done := make(chan struct{})

	process := func(req network.Request) []network.Response {
		received.Add(1)
		close(done)
		return nil
	}

	p := network.NewPipeline(network.TransportTCP, registry, 2, 2, process)
	defer p.Stop()

	p.Submit(network.Request{ConnID: "conn-1", Packet: packet.PingReq{}, ReceivedAt: time.Now()})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
	assert.Equal(t, int32(1), received.Load())
}

func TestPipelineWritesResponseThroughRegistry(t *testing.T) {
	registry := network.NewRegistry()
	conn := &fakeConn{}
	state := registry.Register(conn, network.TransportTCP)
	state.Version = packet.Version311

	process := func(req network.Request) []network.Response {
		return []network.Response{{ConnID: req.ConnID, Packet: packet.PingResp{}}}
	}

	p := network.NewPipeline(network.TransportTCP, registry, 1, 1, process)
	defer p.Stop()

	p.Submit(network.Request{ConnID: state.ID, Packet: packet.PingReq{}, ReceivedAt: time.Now()})

	require.Eventually(t, func() bool {
		return len(conn.writes) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []byte{0xD0, 0x00}, conn.writes[0])
}

func TestPipelineResponseToUnknownConnIsDroppedSilently(t *testing.T) {
	registry := network.NewRegistry()
	process := func(req network.Request) []network.Response {
		return []network.Response{{ConnID: "no-such-conn", Packet: packet.PingResp{}}}
	}

	p := network.NewPipeline(network.TransportTCP, registry, 1, 1, process)
	defer p.Stop()

	// Should not panic or block; give the async pipeline a moment to run.
	p.Submit(network.Request{ConnID: "conn-x", Packet: packet.PingReq{}, ReceivedAt: time.Now()})
	time.Sleep(20 * time.Millisecond)
}

func TestPipelineDropsWhenAllHandlersFull(t *testing.T) {
	registry := network.NewRegistry()
	block := make(chan struct{})
	var inFlight sync.WaitGroup
	inFlight.Add(1)

	process := func(req network.Request) []network.Response {
		inFlight.Done()
		<-block
		return nil
	}

	// A single handler with a full queue forces every subsequent Submit to
	// exhaust its round-robin attempts and drop.
	p := network.NewPipeline(network.TransportTCP, registry, 1, 1, process)
	defer func() {
		close(block)
		p.Stop()
	}()

	p.Submit(network.Request{ConnID: "conn-1", Packet: packet.PingReq{}, ReceivedAt: time.Now()})
	inFlight.Wait() // handler goroutine is now blocked inside process

	// Fill the handler's buffered channel well past capacity so the final
	// Submit below has nowhere to go and must fall through to the drop path.
	for i := 0; i < excessRequests; i++ {
		p.Submit(network.Request{ConnID: "conn-1", Packet: packet.PingReq{}, ReceivedAt: time.Now()})
	}

	before := testutil.ToFloat64(metrics.PacketsDroppedTotal.WithLabelValues("tcp"))
	p.Submit(network.Request{ConnID: "conn-1", Packet: packet.PingReq{}, ReceivedAt: time.Now()})
	after := testutil.ToFloat64(metrics.PacketsDroppedTotal.WithLabelValues("tcp"))
	assert.Equal(t, before+1, after)
}
