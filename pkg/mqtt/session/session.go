package session

import (
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/log"
)

// WillMessage is the session's last-will-and-testament state, recorded at
// CONNECT. It is stored only: no code in this module publishes a will or
// schedules its delayed publication.
type WillMessage struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	DelayUntil time.Time
}

// Session is the broker-local state for one connected or persisted MQTT
// client: its will, keep-alive deadline, and packet identifier manager.
type Session struct {
	ClientID      string
	CleanStart    bool
	KeepAlive     time.Duration
	LastActivity  time.Time
	Will          *WillMessage
	WillCancelled bool
	Pkid          *PkidManager
	ConnectedNode string
}

// Manager tracks every session known to this broker node and sweeps expired
// ones on a ticker, mirroring the worker package's monitor-loop shape: a
// background goroutine diffing a ticker tick against a guarded map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sweepEvery time.Duration
	onExpire   func(*Session)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a Manager that sweeps for keep-alive-expired sessions
// every sweepEvery; onExpire is invoked (outside the manager's lock) for
// each session whose keep-alive deadline has passed (the broker's
// HandleExpired, for one, sends a DISCONNECT and releases the client's
// packet identifiers).
func NewManager(sweepEvery time.Duration, onExpire func(*Session)) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		sweepEvery: sweepEvery,
		onExpire:   onExpire,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background expiry sweep.
func (m *Manager) Start() {
	go m.sweepLoop()
}

// Stop halts the sweep loop and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) sweepLoop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	var expired []*Session

	m.mu.Lock()
	for clientID, s := range m.sessions {
		if s.KeepAlive <= 0 {
			continue
		}
		// The server treats a connection as lost once its silence exceeds
		// 2x the negotiated keep-alive.
		deadline := s.LastActivity.Add(2 * s.KeepAlive)
		if now.After(deadline) {
			expired = append(expired, s)
			delete(m.sessions, clientID)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		log.WithClientID(s.ClientID).Warn().Msg("mqtt session keep-alive expired")
		if m.onExpire != nil {
			m.onExpire(s)
		}
	}
}

// Put registers or replaces the session for clientID.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ClientID] = s
}

// Get returns the session for clientID, if any.
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// Touch refreshes a session's last-activity timestamp, resetting its
// keep-alive deadline. Called on every inbound packet from the client.
func (m *Manager) Touch(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[clientID]; ok {
		s.LastActivity = time.Now()
	}
}

// CancelWill marks clientID's will as cancelled, called on a graceful
// DISCONNECT. It only sets WillCancelled; neither the keep-alive sweep nor
// a socket close publishes wills.
func (m *Manager) CancelWill(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[clientID]; ok {
		s.WillCancelled = true
	}
}

// Remove deletes clientID's session outright, used for clean-session
// disconnects where no state should survive the connection.
func (m *Manager) Remove(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, clientID)
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
