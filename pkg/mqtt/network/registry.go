package network

import (
	"sync"

	"github.com/google/uuid"

	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// ConnState is the network layer's record of one live connection: enough
// to route a response back to the right socket with the right codec
// version, matching the spec's NetworkConnection{id, addr, type, stop_tx}.
type ConnState struct {
	ID        string
	Conn      Conn
	Transport Transport
	Version   packet.Version
	StopCh    chan struct{}
}

// Registry tracks every connection currently accepted by a Server, keyed by
// connection id, so the response pool can resolve a connection id back to
// its socket and protocol version without threading the Conn through every
// layer of the handler pipeline.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*ConnState
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*ConnState)}
}

// Register adds a newly accepted connection and returns its generated id.
func (r *Registry) Register(conn Conn, transport Transport) *ConnState {
	state := &ConnState{
		ID:        uuid.NewString(),
		Conn:      conn,
		Transport: transport,
		Version:   packet.Version311,
		StopCh:    make(chan struct{}),
	}
	r.mu.Lock()
	r.conns[state.ID] = state
	r.mu.Unlock()
	return state
}

// SetVersion records the protocol version negotiated by CONNECT for connID.
func (r *Registry) SetVersion(connID string, version packet.Version) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		s.Version = version
	}
}

// Get returns the tracked state for connID, if still registered.
func (r *Registry) Get(connID string) (*ConnState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.conns[connID]
	return s, ok
}

// Remove drops connID from the registry, called once its connection closes.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
