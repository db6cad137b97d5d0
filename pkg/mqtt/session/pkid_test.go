package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
)

func TestGeneratePublishPkidQoS0AlwaysReturnsOne(t *testing.T) {
	m := session.NewPkidManager()
	assert.Equal(t, uint16(1), m.GeneratePublishPkid("client-1", packet.QoS0))
	assert.Equal(t, uint16(1), m.GeneratePublishPkid("client-1", packet.QoS0))
}

func TestGeneratePublishPkidNeverReturnsZero(t *testing.T) {
	m := session.NewPkidManager()
	for i := 0; i < 1000; i++ {
		id := m.GeneratePublishPkid("client-1", packet.QoS1)
		require.NotZero(t, id)
		m.ReleasePublishPkid("client-1", id)
	}
}

func TestGeneratePublishPkidSkipsInFlightValues(t *testing.T) {
	m := session.NewPkidManager()
	first := m.GeneratePublishPkid("client-1", packet.QoS1)
	second := m.GeneratePublishPkid("client-1", packet.QoS1)
	assert.NotEqual(t, first, second)
	m.ReleasePublishPkid("client-1", first)
	m.ReleasePublishPkid("client-1", second)
}

func TestReceivePkidLifecycle(t *testing.T) {
	m := session.NewPkidManager()
	m.AddReceivePkid("client-1", session.ReceivePkidEntry{Ack: session.AckPubComp, Pkid: 7})

	entry, ok := m.GetReceivePkid("client-1", 7)
	require.True(t, ok)
	assert.Equal(t, session.AckPubComp, entry.Ack)
	assert.Equal(t, 1, m.ReceivePkidCount("client-1"))

	m.RemoveReceivePkid("client-1", 7)
	_, ok = m.GetReceivePkid("client-1", 7)
	assert.False(t, ok)
	assert.Equal(t, 0, m.ReceivePkidCount("client-1"))
}

func TestPendingAckRoundTrip(t *testing.T) {
	m := session.NewPkidManager()
	p := &packet.PubAck{PacketIdentifier: 5}
	m.SetPendingAck("client-1", 5, p)

	got, ok := m.GetPendingAck("client-1", 5)
	require.True(t, ok)
	assert.Same(t, packet.Packet(p), got)

	m.ReleasePublishPkid("client-1", 5)
	_, ok = m.GetPendingAck("client-1", 5)
	assert.False(t, ok)
}

func TestRemoveClientClearsAllPkidState(t *testing.T) {
	m := session.NewPkidManager()
	m.AddReceivePkid("client-1", session.ReceivePkidEntry{Pkid: 1})
	id := m.GeneratePublishPkid("client-1", packet.QoS1)
	m.SetPendingAck("client-1", id, &packet.PubAck{PacketIdentifier: id})

	m.RemoveClient("client-1")

	assert.Equal(t, 0, m.ReceivePkidCount("client-1"))
	_, ok := m.GetPendingAck("client-1", id)
	assert.False(t, ok)
}
