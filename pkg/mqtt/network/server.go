package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// ListenerConfig describes one transport endpoint to bind.
type ListenerConfig struct {
	Transport Transport
	Addr      string
	TLSConfig *tls.Config // required for TransportTLS/TransportWebSocketTLS
}

// Server runs one accept loop per configured ListenerConfig. Every accepted
// connection is registered in a Registry and its decoded packets are
// submitted to a per-transport Pipeline, which dispatches them to a pool of
// handler goroutines and writes responses back through a pool of responder
// goroutines resolved by connection id. Its shape mirrors the teacher's
// ingress proxy: one net.Listen per transport, each served by a background
// goroutine, all torn down together on Shutdown.
type Server struct {
	registry      *Registry
	pipelines     map[Transport]*Pipeline
	numHandlers   int
	numResponders int

	mu        sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup

	activeConns sync.WaitGroup
}

// New creates a Server whose per-transport pipelines each run numHandlers
// handler goroutines and numResponders responder goroutines, dispatching
// decoded packets to process.
func New(registry *Registry, numHandlers, numResponders int, process ProcessFunc) *Server {
	s := &Server{
		registry:      registry,
		pipelines:     make(map[Transport]*Pipeline),
		numHandlers:   numHandlers,
		numResponders: numResponders,
	}
	for _, t := range []Transport{TransportTCP, TransportTLS, TransportWebSocket, TransportWebSocketTLS, TransportQUIC} {
		s.pipelines[t] = NewPipeline(t, registry, numHandlers, numResponders, process)
	}
	return s
}

// Listen binds every configured listener and starts its accept loop. It
// returns once all listeners are bound; accept loops continue running in
// the background until ctx is cancelled or Shutdown is called.
func (s *Server) Listen(ctx context.Context, configs []ListenerConfig) error {
	for _, cfg := range configs {
		lis, err := s.bind(cfg)
		if err != nil {
			return fmt.Errorf("mqtt network: listen %s on %s: %w", cfg.Transport, cfg.Addr, err)
		}

		s.mu.Lock()
		s.listeners = append(s.listeners, lis)
		s.mu.Unlock()

		log.WithComponent("mqtt-network").Info().
			Str("transport", cfg.Transport.String()).
			Str("addr", cfg.Addr).
			Msg("listening")

		s.wg.Add(1)
		go s.acceptLoop(ctx, lis, cfg.Transport)
	}
	return nil
}

// Addrs returns the bound address of every listener, in the order passed
// to Listen. Useful for tests that bind to ":0" and need the chosen port.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, len(s.listeners))
	for i, lis := range s.listeners {
		addrs[i] = lis.Addr()
	}
	return addrs
}

func (s *Server) bind(cfg ListenerConfig) (net.Listener, error) {
	switch cfg.Transport {
	case TransportTCP, TransportWebSocket:
		return net.Listen("tcp", cfg.Addr)
	case TransportTLS, TransportWebSocketTLS:
		if cfg.TLSConfig == nil {
			return nil, fmt.Errorf("tls transport requires a TLSConfig")
		}
		return tls.Listen("tcp", cfg.Addr, cfg.TLSConfig)
	default:
		return nil, fmt.Errorf("unsupported transport %v", cfg.Transport)
	}
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener, transport Transport) {
	defer s.wg.Done()
	for {
		raw, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.WithComponent("mqtt-network").Warn().Err(err).Msg("accept failed")
				return
			}
		}

		metrics.ConnectionsAcceptedTotal.WithLabelValues(transport.String()).Inc()
		metrics.ConnectionsActive.WithLabelValues(transport.String()).Inc()
		s.activeConns.Add(1)
		go s.serve(ctx, raw, transport)
	}
}

func (s *Server) serve(ctx context.Context, raw net.Conn, transport Transport) {
	defer s.activeConns.Done()
	defer metrics.ConnectionsActive.WithLabelValues(transport.String()).Dec()
	defer raw.Close()

	var conn Conn
	var err error
	switch transport {
	case TransportWebSocket, TransportWebSocketTLS:
		conn, err = upgradeWebSocket(raw, transport)
		if err != nil {
			log.WithComponent("mqtt-network").Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
	default:
		conn = newRawConn(raw, transport)
	}

	state := s.registry.Register(conn, transport)
	defer s.registry.Remove(state.ID)

	pipeline := s.pipelines[transport]
	s.readLoop(ctx, state, pipeline)
}

// readLoop decodes packets off state.Conn using whatever protocol version
// the registry currently has on record for this connection (CONNECT always
// decodes under Version311's frame shape first; the handler advances the
// registry's recorded version once it parses the CONNECT packet's protocol
// level) and submits each to pipeline. It returns once the connection
// closes, the context is cancelled, or the handler closes state.StopCh.
func (s *Server) readLoop(ctx context.Context, state *ConnState, pipeline *Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-state.StopCh:
			return
		default:
		}

		_, ok := s.registry.Get(state.ID)
		if !ok {
			return
		}

		p, err := packet.Decode(state.Conn, state.Version)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithComponent("mqtt-network").Debug().
					Str("conn_id", state.ID).Err(err).Msg("decode failed, closing connection")
			}
			return
		}

		pipeline.Submit(Request{
			ConnID:     state.ID,
			Transport:  state.Transport,
			Version:    state.Version,
			Packet:     p,
			ReceivedAt: time.Now(),
		})
	}
}

// Deliver enqueues a response packet for connID's connection, resolving
// its transport from the registry so it reaches the right pipeline's
// responder pool regardless of which pipeline produced it. This is the
// seam the subscribe engine's dispatch tasks use to push PUBLISH packets
// asynchronously, outside the request/response cycle of any one decoded
// packet.
func (s *Server) Deliver(connID string, p packet.Packet, close bool) error {
	state, ok := s.registry.Get(connID)
	if !ok {
		return fmt.Errorf("mqtt network: connection %s not registered", connID)
	}
	pipeline := s.pipelines[state.Transport]
	pipeline.submitResponse(Response{ConnID: connID, Packet: p})
	if close {
		pipeline.submitResponse(Response{ConnID: connID, Close: true})
	}
	return nil
}

// Shutdown closes every listener, then waits up to timeout for in-flight
// connections to finish before returning.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	for _, lis := range s.listeners {
		_ = lis.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("mqtt network: shutdown timed out with connections still active")
	}

	for _, p := range s.pipelines {
		p.Stop()
	}
	return err
}
