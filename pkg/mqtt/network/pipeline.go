package network

import (
	"time"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// requestQueueCapacity bounds each handler's inbound channel, matching the
// spec's per-transport MPSC channel capacity for the request path.
const requestQueueCapacity = 1000

// backoffStart/backoffStep implement the handler pool's try-send-then-back-
// off-and-try-next-child dispatch: 2ms, then linearly increasing.
const (
	backoffStart = 2 * time.Millisecond
	backoffStep  = 2 * time.Millisecond
)

// Request is one decoded packet in flight from acceptor to handler.
type Request struct {
	ConnID     string
	Transport  Transport
	Version    packet.Version
	Packet     packet.Packet
	ReceivedAt time.Time
	queuedAt   time.Time
}

// Response is one packet in flight from a handler to its connection.
type Response struct {
	ConnID     string
	Packet     packet.Packet
	Close      bool // true for a terminal write (e.g. after DISCONNECT)
	producedAt time.Time
	queuedAt   time.Time
}

// ProcessFunc handles one decoded request and returns zero or more
// responses to write back (a PUBLISH fanned out to subscribers may also
// enqueue responses for other connections via Server.Deliver, not just
// this one).
type ProcessFunc func(req Request) []Response

// Pipeline implements the spec's handler-pool/response-pool split: a
// parent accept goroutine feeds N handler goroutines over round-robin
// try-send with linear backoff and drop-on-full backpressure, and handler
// output feeds a mirrored pool of response-writer goroutines.
type Pipeline struct {
	transport Transport
	registry  *Registry
	process   ProcessFunc

	handlerChs  []chan Request
	responseChs []chan Response

	nextHandler  int
	nextResponse int

	stopCh chan struct{}
}

// NewPipeline creates a Pipeline with numHandlers handler goroutines and
// numResponders response-writer goroutines, all fed from round-robin
// dispatch, and starts them.
func NewPipeline(transport Transport, registry *Registry, numHandlers, numResponders int, process ProcessFunc) *Pipeline {
	p := &Pipeline{
		transport:   transport,
		registry:    registry,
		process:     process,
		handlerChs:  make([]chan Request, numHandlers),
		responseChs: make([]chan Response, numResponders),
		stopCh:      make(chan struct{}),
	}
	for i := range p.handlerChs {
		p.handlerChs[i] = make(chan Request, requestQueueCapacity)
		go p.runHandler(p.handlerChs[i])
	}
	for i := range p.responseChs {
		p.responseChs[i] = make(chan Response, requestQueueCapacity)
		go p.runResponder(p.responseChs[i])
	}
	return p
}

// Submit dispatches req to a handler channel via round-robin try-send with
// linear backoff; if every handler channel is full it drops the packet,
// per the spec's documented backpressure contract.
func (p *Pipeline) Submit(req Request) {
	req.queuedAt = time.Now()
	n := len(p.handlerChs)
	backoff := backoffStart

	for attempt := 0; attempt < n; attempt++ {
		idx := (p.nextHandler + attempt) % n
		select {
		case p.handlerChs[idx] <- req:
			p.nextHandler = (idx + 1) % n
			return
		default:
		}
		time.Sleep(backoff)
		backoff += backoffStep
	}

	metrics.PacketsDroppedTotal.WithLabelValues(p.transport.String()).Inc()
	log.WithComponent("mqtt-network").Warn().
		Str("conn_id", req.ConnID).
		Msg("request dropped: all handler channels full")
}

func (p *Pipeline) runHandler(ch chan Request) {
	for {
		select {
		case req := <-ch:
			p.handleOne(req)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) handleOne(req Request) {
	metrics.NewTimerAt(req.queuedAt).ObserveMillis(metrics.RequestQueueDuration, p.transport.String())

	handlerTimer := metrics.NewTimer()
	responses := p.process(req)
	handlerTimer.ObserveMillis(metrics.RequestHandlerDuration, p.transport.String())

	for _, resp := range responses {
		resp.producedAt = time.Now()
		p.submitResponse(resp)
	}

	metrics.NewTimerAt(req.ReceivedAt).ObserveMillis(metrics.RequestTotalDuration, p.transport.String())
}

func (p *Pipeline) submitResponse(resp Response) {
	resp.queuedAt = time.Now()
	n := len(p.responseChs)
	backoff := backoffStart

	for attempt := 0; attempt < n; attempt++ {
		idx := (p.nextResponse + attempt) % n
		select {
		case p.responseChs[idx] <- resp:
			p.nextResponse = (idx + 1) % n
			return
		default:
		}
		time.Sleep(backoff)
		backoff += backoffStep
	}

	metrics.PacketsDroppedTotal.WithLabelValues(p.transport.String()).Inc()
	log.WithComponent("mqtt-network").Warn().
		Str("conn_id", resp.ConnID).
		Msg("response dropped: all response channels full")
}

func (p *Pipeline) runResponder(ch chan Response) {
	for {
		select {
		case resp := <-ch:
			p.writeOne(resp)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pipeline) writeOne(resp Response) {
	queueTimer := metrics.NewTimerAt(resp.producedAt)
	queueTimer.ObserveMillis(metrics.ResponseQueueDuration, p.transport.String())

	state, ok := p.registry.Get(resp.ConnID)
	if !ok {
		return
	}

	writeTimer := metrics.NewTimer()
	encoded, err := packet.Encode(resp.Packet, state.Version)
	if err != nil {
		log.WithComponent("mqtt-network").Warn().Str("conn_id", resp.ConnID).Err(err).Msg("encode response failed")
		return
	}
	if _, err := state.Conn.Write(encoded); err != nil {
		log.WithComponent("mqtt-network").Warn().Str("conn_id", resp.ConnID).Err(err).Msg("write response failed, closing connection")
		_ = state.Conn.Close()
		p.registry.Remove(resp.ConnID)
		close(state.StopCh)
		return
	}
	writeTimer.ObserveMillis(metrics.ResponseDuration, p.transport.String())

	if resp.Close {
		_ = state.Conn.Close()
		p.registry.Remove(resp.ConnID)
		close(state.StopCh)
	}
}

// Stop halts every handler and responder goroutine.
func (p *Pipeline) Stop() {
	close(p.stopCh)
}
