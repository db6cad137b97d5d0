package connector

import (
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/types"
)

// Manager owns three concurrent maps keyed by connector name: the
// connector definition, its running plugin task, and its last-heartbeat
// timestamp (spec 4.10), directly generalizing pkg/worker.Worker's
// containers map[string]*types.Container + containersMu sync.RWMutex
// pattern, tripled.
type Manager struct {
	source  RecordSource
	offsets OffsetTracker

	mu          sync.RWMutex
	definitions map[string]types.Connector
	runners     map[string]*runner
	heartbeats  map[string]time.Time
}

// NewManager builds a Manager that reads from source and tracks cursors
// through offsets.
func NewManager(source RecordSource, offsets OffsetTracker) *Manager {
	return &Manager{
		source:      source,
		offsets:     offsets,
		definitions: make(map[string]types.Connector),
		runners:     make(map[string]*runner),
		heartbeats:  make(map[string]time.Time),
	}
}

// Create validates conn's config, launches its plugin task, and records
// the definition. topicName is the journal-backed topic the connector
// reads from (resolved by the caller from conn.TopicID).
func (m *Manager) Create(conn types.Connector, topicName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.definitions[conn.ConnectorName]; exists {
		return errors.ErrConnectorAlreadyExist
	}

	cfg, err := parseConfig(conn.ConnectorType, conn.Config)
	if err != nil {
		return err
	}
	plugin, err := newPlugin(conn.ConnectorType, cfg)
	if err != nil {
		return err
	}

	r := newRunner(conn.ConnectorName, conn.ConnectorType, topicName, plugin, cfg.Strategy(), m.source, m.offsets, m)

	conn.Status = types.ConnectorStatusRunning
	now := time.Now()
	conn.CreateTime = now
	conn.UpdateTime = now
	conn.LastHeartbeat = now

	m.definitions[conn.ConnectorName] = conn
	m.runners[conn.ConnectorName] = r
	m.heartbeats[conn.ConnectorName] = now

	go r.run()
	return nil
}

// Delete stops name's running plugin task, if any, and forgets its
// definition.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	r, exists := m.runners[name]
	if !exists {
		m.mu.Unlock()
		return errors.ErrConnectorNotFound
	}
	delete(m.definitions, name)
	delete(m.runners, name)
	delete(m.heartbeats, name)
	m.mu.Unlock()

	r.stop()
	return nil
}

// Get returns name's current definition.
func (m *Manager) Get(name string) (types.Connector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.definitions[name]
	return c, ok
}

// List returns every connector this Manager currently runs.
func (m *Manager) List() []types.Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Connector, 0, len(m.definitions))
	for _, c := range m.definitions {
		out = append(out, c)
	}
	return out
}

// Heartbeat returns name's last-heartbeat time.
func (m *Manager) Heartbeat(name string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.heartbeats[name]
	return t, ok
}

// touchHeartbeat records that name's runner just observed live data,
// called from the runner's own poll loop on every non-empty batch.
func (m *Manager) touchHeartbeat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[name]; !ok {
		return
	}
	now := time.Now()
	m.heartbeats[name] = now
	if def, ok := m.definitions[name]; ok {
		def.LastHeartbeat = now
		m.definitions[name] = def
	}
}

// StopAll halts every running plugin task, used on broker shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.definitions = make(map[string]types.Connector)
	m.runners = make(map[string]*runner)
	m.heartbeats = make(map[string]time.Time)
	m.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
}
