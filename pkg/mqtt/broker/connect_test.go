package broker_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/config"
	"github.com/robustmq/robustmq/pkg/mqtt/broker"
	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
	"github.com/robustmq/robustmq/pkg/types"
)

// newTestBroker wires a Broker purely off fakes/in-memory pieces, enough
// to exercise CONNECT/PINGREQ/DISCONNECT/SUBSCRIBE dispatch without a
// real cluster. The journal client is left nil, so tests that would reach
// publish.go's journal write (handlePublish) use newTestBrokerWithJournal
// instead.
func newTestBroker(t *testing.T, meta *fakeMeta, deliverer *fakeDeliverer, versions *fakeVersions) (*broker.Broker, *session.Manager, *cache.Cache) {
	t.Helper()
	c := cache.New()
	sessions := session.NewManager(time.Hour, nil)
	pkids := session.NewPkidManager()

	sender := broker.NewSender()
	rewriter := subscribe.NewRewriter(c)
	engine := subscribe.NewEngine(pkids, rewriter, c, c, broker.NewTopicSource(nil), broker.NewOffsetTracker(meta, "cluster-1"), sender)

	b := broker.New("cluster-1", "node-1",
		config.MQTTConfig{DefaultKeepAlive: 60, ServerReceiveMax: 100, TopicAliasMax: 10, MaxPacketSize: 1024},
		meta, c, nil, deliverer, versions, sessions, pkids, engine, []string{"127.0.0.1:9000"})
	sender.Bind(b)
	return b, sessions, c
}

func connectRequest(connID string, p *packet.Connect) network.Request {
	return network.Request{ConnID: connID, Version: p.ProtocolVersion, Packet: p}
}

func TestHandleConnectAcceptsFreshClient(t *testing.T) {
	meta := newFakeMeta()
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	req := connectRequest("conn-1", &packet.Connect{ClientID: "device-1", CleanStart: true, ProtocolVersion: packet.Version311})
	resp := b.Process(req)

	require.Len(t, resp, 1)
	ack, ok := resp[0].Packet.(*packet.ConnAck)
	require.True(t, ok)
	assert.Equal(t, byte(0x00), ack.ReasonCode)
	assert.False(t, ack.SessionPresent)
	assert.False(t, resp[0].Close)
}

func TestHandleConnectRejectsBannedClient(t *testing.T) {
	meta := newFakeMeta()
	b, _, c := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	// Directly seed the ban the real system would push via the cache.
	ban := types.Blacklist{Cluster: "cluster-1", Type: types.BlacklistClientID, ResourceName: "bad-actor"}
	payload, err := json.Marshal(ban)
	require.NoError(t, err)
	require.NoError(t, c.Apply(cache.Update{
		ActionType:   cache.ActionSet,
		ResourceType: cache.ResourceBlacklist,
		Key:          broker.TestBlacklistKeyFor(types.BlacklistClientID, "bad-actor"),
		Data:         payload,
	}))

	req := connectRequest("conn-x", &packet.Connect{ClientID: "bad-actor", ProtocolVersion: packet.Version311})
	resp := b.Process(req)

	require.Len(t, resp, 1)
	ack, ok := resp[0].Packet.(*packet.ConnAck)
	require.True(t, ok)
	assert.Equal(t, broker.TestMapReasonFor311(packet.Version311, broker.TestReasonBanned), ack.ReasonCode)
	assert.True(t, resp[0].Close)
}

func TestHandleConnectFailsAuthWithWrongPassword(t *testing.T) {
	meta := newFakeMeta()
	meta.users["alice"] = newTestUser("alice", "correct-horse")
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	req := connectRequest("conn-2", &packet.Connect{
		ClientID: "device-2", ProtocolVersion: packet.Version311,
		Username: "alice", Password: []byte("wrong-password"),
	})
	resp := b.Process(req)

	require.Len(t, resp, 1)
	ack := resp[0].Packet.(*packet.ConnAck)
	assert.NotEqual(t, byte(0x00), ack.ReasonCode)
	assert.True(t, resp[0].Close)
}

func TestHandleConnectResumesExistingSessionWithoutCleanStart(t *testing.T) {
	meta := newFakeMeta()
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	first := connectRequest("conn-3", &packet.Connect{ClientID: "device-3", CleanStart: true, ProtocolVersion: packet.Version5})
	resp := b.Process(first)
	require.Len(t, resp, 1)
	b.Process(network.Request{ConnID: "conn-3", Packet: &packet.Disconnect{}})

	second := connectRequest("conn-4", &packet.Connect{ClientID: "device-3", CleanStart: false, ProtocolVersion: packet.Version5})
	resp = b.Process(second)

	require.Len(t, resp, 1)
	ack := resp[0].Packet.(*packet.ConnAck)
	assert.True(t, ack.SessionPresent)
	require.NotNil(t, ack.Properties)
	require.NotNil(t, ack.Properties.ReceiveMaximum)
	assert.Equal(t, uint16(100), *ack.Properties.ReceiveMaximum)
}

func TestHandlePingReqTouchesSession(t *testing.T) {
	meta := newFakeMeta()
	b, sessions, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	b.Process(connectRequest("conn-5", &packet.Connect{ClientID: "device-5", CleanStart: true, ProtocolVersion: packet.Version311}))
	before, ok := sessions.Get("device-5")
	require.True(t, ok)
	// Get returns the live session pointer, so keep a copy of the timestamp.
	beforeActivity := before.LastActivity

	time.Sleep(time.Millisecond)
	resp := b.Process(network.Request{ConnID: "conn-5", Packet: &packet.PingReq{}})
	require.Len(t, resp, 1)
	_, ok = resp[0].Packet.(*packet.PingResp)
	assert.True(t, ok)

	after, ok := sessions.Get("device-5")
	require.True(t, ok)
	assert.True(t, after.LastActivity.After(beforeActivity))
}

func TestHandleDisconnectRemovesCleanStartSession(t *testing.T) {
	meta := newFakeMeta()
	b, sessions, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	b.Process(connectRequest("conn-6", &packet.Connect{ClientID: "device-6", CleanStart: true, ProtocolVersion: packet.Version311}))
	resp := b.Process(network.Request{ConnID: "conn-6", Packet: &packet.Disconnect{}})

	require.Len(t, resp, 1)
	assert.True(t, resp[0].Close)
	_, ok := sessions.Get("device-6")
	assert.False(t, ok)
}

func TestHandleExpiredDeliversKeepAliveTimeoutDisconnect(t *testing.T) {
	meta := newFakeMeta()
	deliverer := &fakeDeliverer{}
	b, sessions, _ := newTestBroker(t, meta, deliverer, newFakeVersions())

	b.Process(connectRequest("conn-7", &packet.Connect{ClientID: "device-7", CleanStart: true, ProtocolVersion: packet.Version5}))
	s, ok := sessions.Get("device-7")
	require.True(t, ok)

	b.HandleExpired(s)

	last, ok := deliverer.last()
	require.True(t, ok)
	assert.Equal(t, "conn-7", last.connID)
	assert.True(t, last.close)
	disc, ok := last.packet.(*packet.Disconnect)
	require.True(t, ok)
	assert.Equal(t, broker.TestReasonKeepAliveTimeout, disc.ReasonCode)
}

func TestMapReasonFor311DowngradesV5Codes(t *testing.T) {
	assert.Equal(t, broker.TestReasonNotAuthorized, broker.TestMapReasonFor311(packet.Version5, broker.TestReasonNotAuthorized))
	assert.Equal(t, byte(0x04), broker.TestMapReasonFor311(packet.Version311, broker.TestReasonNotAuthorized))
	assert.Equal(t, byte(0x02), broker.TestMapReasonFor311(packet.Version311, broker.TestReasonClientIDNotValid))
}

func TestConnectionIDFromIsStableForSameInput(t *testing.T) {
	a := broker.TestConnectionIDFrom("conn-1")
	b := broker.TestConnectionIDFrom("conn-1")
	other := broker.TestConnectionIDFrom("conn-2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
}
