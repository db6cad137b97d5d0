// Package session manages MQTT session state: per-client packet identifier
// allocation and in-flight QoS acknowledgement bookkeeping, plus the
// keep-alive sweep that expires sessions whose clients went silent.
package session

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

// AckKind identifies which acknowledgement a pending packet identifier is
// waiting on.
type AckKind int

const (
	AckPubAck AckKind = iota
	AckPubRec
	AckPubComp
	AckSubAck
	AckUnsubAck
)

// ReceivePkidEntry tracks one inbound QoS 2 PUBLISH awaiting PUBREL from the
// client that sent it.
type ReceivePkidEntry struct {
	Ack        AckKind
	Pkid       uint16
	CreateTime time.Time
}

// PkidManager allocates outbound packet identifiers and tracks both
// directions of in-flight QoS acknowledgement, one instance per broker node
// shared across all client sessions. The outbound generator skips 0 (MQTT
// forbids a zero packet identifier) by retrying the fetch-add on wraparound,
// mirroring the reference broker's pkid_manager module.
type PkidManager struct {
	receiveMu   sync.Mutex
	receivePkid map[string]map[uint16]ReceivePkidEntry

	publishSeq uint64

	publishMu    sync.Mutex
	publishInUse map[string]map[uint16]struct{}

	ackMu  sync.Mutex
	ackData map[string]pendingAck
}

type pendingAck struct {
	packet packet.Packet
}

// NewPkidManager returns an empty PkidManager. The generator starts at 1 so
// the first allocated packet identifier is 1, never 0.
func NewPkidManager() *PkidManager {
	return &PkidManager{
		receivePkid:  make(map[string]map[uint16]ReceivePkidEntry),
		publishInUse: make(map[string]map[uint16]struct{}),
		ackData:      make(map[string]pendingAck),
		publishSeq:   0,
	}
}

// AddReceivePkid records an inbound QoS>0 PUBLISH's packet identifier so the
// broker can detect and suppress a duplicate redelivery.
func (m *PkidManager) AddReceivePkid(clientID string, entry ReceivePkidEntry) {
	m.receiveMu.Lock()
	defer m.receiveMu.Unlock()
	inner, ok := m.receivePkid[clientID]
	if !ok {
		inner = make(map[uint16]ReceivePkidEntry)
		m.receivePkid[clientID] = inner
	}
	inner[entry.Pkid] = entry
}

// RemoveReceivePkid clears the bookkeeping for an inbound packet identifier
// once its QoS handshake completes (PUBACK sent, or PUBCOMP after PUBREL).
func (m *PkidManager) RemoveReceivePkid(clientID string, pkid uint16) {
	m.receiveMu.Lock()
	defer m.receiveMu.Unlock()
	inner, ok := m.receivePkid[clientID]
	if !ok {
		return
	}
	delete(inner, pkid)
	if len(inner) == 0 {
		delete(m.receivePkid, clientID)
	}
}

// GetReceivePkid returns the tracked entry for an inbound packet identifier,
// and whether one was found.
func (m *PkidManager) GetReceivePkid(clientID string, pkid uint16) (ReceivePkidEntry, bool) {
	m.receiveMu.Lock()
	defer m.receiveMu.Unlock()
	inner, ok := m.receivePkid[clientID]
	if !ok {
		return ReceivePkidEntry{}, false
	}
	entry, ok := inner[pkid]
	return entry, ok
}

// ReceivePkidCount returns how many inbound packet identifiers are still
// in flight for clientID.
func (m *PkidManager) ReceivePkidCount(clientID string) int {
	m.receiveMu.Lock()
	defer m.receiveMu.Unlock()
	return len(m.receivePkid[clientID])
}

// GeneratePublishPkid allocates the next outbound packet identifier for a
// QoS>0 PUBLISH to clientID. QoS 0 always returns 1 without consuming the
// sequence, matching the spec's pkid-not-needed-for-QoS-0 rule. The sequence
// wraps at 65535 and always skips 0; on a collision with a still-in-flight
// identifier for this client it retries with the next value.
func (m *PkidManager) GeneratePublishPkid(clientID string, qos packet.QoS) uint16 {
	if qos == packet.QoS0 {
		return 1
	}

	for {
		seq := atomic.AddUint64(&m.publishSeq, 1)
		id := uint16(seq % 65535)
		if id == 0 {
			continue
		}

		m.publishMu.Lock()
		inUse, ok := m.publishInUse[clientID]
		if !ok {
			inUse = make(map[uint16]struct{})
			m.publishInUse[clientID] = inUse
		}
		if _, taken := inUse[id]; taken {
			m.publishMu.Unlock()
			continue
		}
		inUse[id] = struct{}{}
		m.publishMu.Unlock()
		return id
	}
}

// ReleasePublishPkid frees an outbound packet identifier once its
// acknowledgement handshake (PUBACK, or PUBREC/PUBREL/PUBCOMP for QoS 2)
// completes.
func (m *PkidManager) ReleasePublishPkid(clientID string, pkid uint16) {
	m.publishMu.Lock()
	inUse, ok := m.publishInUse[clientID]
	if ok {
		delete(inUse, pkid)
		if len(inUse) == 0 {
			delete(m.publishInUse, clientID)
		}
	}
	m.publishMu.Unlock()
	m.removeAck(clientID, pkid)
}

// SetPendingAck records the packet awaiting acknowledgement for (clientID,
// pkid), so a resend can reconstruct it verbatim if the client does not ack
// before the retry interval elapses.
func (m *PkidManager) SetPendingAck(clientID string, pkid uint16, p packet.Packet) {
	m.ackMu.Lock()
	defer m.ackMu.Unlock()
	m.ackData[ackKey(clientID, pkid)] = pendingAck{packet: p}
}

// GetPendingAck returns the packet previously recorded by SetPendingAck.
func (m *PkidManager) GetPendingAck(clientID string, pkid uint16) (packet.Packet, bool) {
	m.ackMu.Lock()
	defer m.ackMu.Unlock()
	entry, ok := m.ackData[ackKey(clientID, pkid)]
	if !ok {
		return nil, false
	}
	return entry.packet, true
}

func (m *PkidManager) removeAck(clientID string, pkid uint16) {
	m.ackMu.Lock()
	defer m.ackMu.Unlock()
	delete(m.ackData, ackKey(clientID, pkid))
}

// RemoveClient drops every pkid and ack record belonging to clientID,
// called when a session is destroyed (clean-session disconnect or session
// expiry).
func (m *PkidManager) RemoveClient(clientID string) {
	m.receiveMu.Lock()
	delete(m.receivePkid, clientID)
	m.receiveMu.Unlock()

	m.publishMu.Lock()
	inUse := m.publishInUse[clientID]
	delete(m.publishInUse, clientID)
	m.publishMu.Unlock()

	m.ackMu.Lock()
	for pkid := range inUse {
		delete(m.ackData, ackKey(clientID, pkid))
	}
	m.ackMu.Unlock()
}

func ackKey(clientID string, pkid uint16) string {
	return clientID + "_" + strconv.Itoa(int(pkid))
}
