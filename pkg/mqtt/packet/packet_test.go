package packet_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/packet"
)

func roundTrip(t *testing.T, p packet.Packet, version packet.Version) packet.Packet {
	t.Helper()
	encoded, err := packet.Encode(p, version)
	require.NoError(t, err)

	decoded, err := packet.Decode(bytes.NewReader(encoded), version)
	require.NoError(t, err)
	return decoded
}

func TestConnectRoundTripV311(t *testing.T) {
	p := &packet.Connect{
		ProtocolVersion: packet.Version311,
		CleanStart:      true,
		KeepAlive:       60,
		ClientID:        "client-1",
		WillTopic:       "devices/1/lwt",
		WillPayload:     []byte("offline"),
		WillQoS:         packet.QoS1,
		Username:        "alice",
		Password:        []byte("s3cret"),
	}
	decoded := roundTrip(t, p, packet.Version311)
	got, ok := decoded.(*packet.Connect)
	require.True(t, ok)
	assert.Equal(t, p.ClientID, got.ClientID)
	assert.Equal(t, p.KeepAlive, got.KeepAlive)
	assert.True(t, got.CleanStart)
	assert.Equal(t, p.WillTopic, got.WillTopic)
	assert.Equal(t, p.WillPayload, got.WillPayload)
	assert.Equal(t, p.Username, got.Username)
	assert.Equal(t, p.Password, got.Password)
}

func TestConnectRoundTripV5WithProperties(t *testing.T) {
	sessionExpiry := uint32(120)
	p := &packet.Connect{
		ProtocolVersion: packet.Version5,
		CleanStart:      false,
		KeepAlive:       30,
		ClientID:        "client-5",
		Properties: &packet.Properties{
			SessionExpiryInterval: &sessionExpiry,
			UserProperties:        []packet.UserProperty{{Key: "region", Value: "us-east"}},
		},
	}
	decoded := roundTrip(t, p, packet.Version5)
	got, ok := decoded.(*packet.Connect)
	require.True(t, ok)
	require.NotNil(t, got.Properties)
	require.NotNil(t, got.Properties.SessionExpiryInterval)
	assert.Equal(t, sessionExpiry, *got.Properties.SessionExpiryInterval)
	require.Len(t, got.Properties.UserProperties, 1)
	assert.Equal(t, "region", got.Properties.UserProperties[0].Key)
}

func TestConnAckRoundTrip(t *testing.T) {
	p := &packet.ConnAck{SessionPresent: true, ReasonCode: 0}
	decoded := roundTrip(t, p, packet.Version311)
	got, ok := decoded.(*packet.ConnAck)
	require.True(t, ok)
	assert.True(t, got.SessionPresent)
	assert.Equal(t, byte(0), got.ReasonCode)
}

func TestPublishRoundTripQoS1(t *testing.T) {
	p := &packet.Publish{
		QoS:              packet.QoS1,
		TopicName:        "sensors/temp",
		PacketIdentifier: 42,
		Payload:          []byte("21.5"),
	}
	decoded := roundTrip(t, p, packet.Version311)
	got, ok := decoded.(*packet.Publish)
	require.True(t, ok)
	assert.Equal(t, p.TopicName, got.TopicName)
	assert.Equal(t, p.PacketIdentifier, got.PacketIdentifier)
	assert.Equal(t, p.Payload, got.Payload)
	assert.Equal(t, packet.QoS1, got.QoS)
}

func TestPublishRoundTripQoS0NoPacketIdentifier(t *testing.T) {
	p := &packet.Publish{
		QoS:       packet.QoS0,
		TopicName: "sensors/temp",
		Payload:   []byte("21.5"),
	}
	decoded := roundTrip(t, p, packet.Version311)
	got, ok := decoded.(*packet.Publish)
	require.True(t, ok)
	assert.Equal(t, uint16(0), got.PacketIdentifier)
}

func TestPublishZeroLengthPayloadWithFormatIndicatorIsInvalid(t *testing.T) {
	one := byte(1)
	p := &packet.Publish{
		QoS:        packet.QoS0,
		TopicName:  "a/b",
		Properties: &packet.Properties{PayloadFormatIndicator: &one},
		Payload:    nil,
	}
	encoded, err := packet.Encode(p, packet.Version5)
	require.NoError(t, err)

	_, err = packet.Decode(bytes.NewReader(encoded), packet.Version5)
	assert.Error(t, err)
}

func TestPubAckRoundTripV5WithReasonCode(t *testing.T) {
	p := &packet.PubAck{PacketIdentifier: 7, ReasonCode: 0x10}
	decoded := roundTrip(t, p, packet.Version5)
	got, ok := decoded.(*packet.PubAck)
	require.True(t, ok)
	assert.Equal(t, uint16(7), got.PacketIdentifier)
	assert.Equal(t, byte(0x10), got.ReasonCode)
}

func TestPubRecPubRelPubCompRoundTrip(t *testing.T) {
	rec := roundTrip(t, &packet.PubRec{PacketIdentifier: 5}, packet.Version311).(*packet.PubRec)
	assert.Equal(t, uint16(5), rec.PacketIdentifier)

	rel := roundTrip(t, &packet.PubRel{PacketIdentifier: 5}, packet.Version311).(*packet.PubRel)
	assert.Equal(t, uint16(5), rel.PacketIdentifier)

	comp := roundTrip(t, &packet.PubComp{PacketIdentifier: 5}, packet.Version311).(*packet.PubComp)
	assert.Equal(t, uint16(5), comp.PacketIdentifier)
}

func TestSubscribeRoundTrip(t *testing.T) {
	p := &packet.Subscribe{
		PacketIdentifier: 9,
		Filters: []packet.SubscribeFilter{
			{TopicFilter: "a/+", Options: packet.SubscriptionOptions{QoS: packet.QoS1}},
			{TopicFilter: "b/#", Options: packet.SubscriptionOptions{QoS: packet.QoS2, NoLocal: true}},
		},
	}
	decoded := roundTrip(t, p, packet.Version5)
	got, ok := decoded.(*packet.Subscribe)
	require.True(t, ok)
	require.Len(t, got.Filters, 2)
	assert.Equal(t, "a/+", got.Filters[0].TopicFilter)
	assert.Equal(t, packet.QoS1, got.Filters[0].Options.QoS)
	assert.True(t, got.Filters[1].Options.NoLocal)
}

func TestSubAckRoundTrip(t *testing.T) {
	p := &packet.SubAck{PacketIdentifier: 9, ReasonCodes: []byte{0x00, 0x01, 0x80}}
	decoded := roundTrip(t, p, packet.Version311)
	got, ok := decoded.(*packet.SubAck)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x01, 0x80}, got.ReasonCodes)
}

func TestUnsubscribeUnsubAckRoundTrip(t *testing.T) {
	u := &packet.Unsubscribe{PacketIdentifier: 11, TopicFilters: []string{"a/+", "b/#"}}
	gotU := roundTrip(t, u, packet.Version311).(*packet.Unsubscribe)
	assert.Equal(t, []string{"a/+", "b/#"}, gotU.TopicFilters)

	ua := &packet.UnsubAck{PacketIdentifier: 11, ReasonCodes: []byte{0x00, 0x11}}
	gotUA := roundTrip(t, ua, packet.Version5).(*packet.UnsubAck)
	assert.Equal(t, []byte{0x00, 0x11}, gotUA.ReasonCodes)
}

func TestPingReqPingRespRoundTrip(t *testing.T) {
	decoded := roundTrip(t, packet.PingReq{}, packet.Version311)
	_, ok := decoded.(packet.PingReq)
	assert.True(t, ok)

	decodedResp := roundTrip(t, packet.PingResp{}, packet.Version311)
	_, ok = decodedResp.(packet.PingResp)
	assert.True(t, ok)
}

func TestDisconnectRoundTripV5(t *testing.T) {
	p := &packet.Disconnect{ReasonCode: 0x04}
	decoded := roundTrip(t, p, packet.Version5)
	got, ok := decoded.(*packet.Disconnect)
	require.True(t, ok)
	assert.Equal(t, byte(0x04), got.ReasonCode)
}

func TestDisconnectV311HasNoBody(t *testing.T) {
	p := &packet.Disconnect{}
	encoded, err := packet.Encode(p, packet.Version311)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(packet.TypeDisconnect) << 4, 0x00}, encoded)
}

func TestAuthRoundTripV5(t *testing.T) {
	p := &packet.Auth{ReasonCode: 0x18, Properties: &packet.Properties{AuthenticationMethod: "X-TOKEN"}}
	decoded := roundTrip(t, p, packet.Version5)
	got, ok := decoded.(*packet.Auth)
	require.True(t, ok)
	assert.Equal(t, byte(0x18), got.ReasonCode)
	assert.Equal(t, "X-TOKEN", got.Properties.AuthenticationMethod)
}

func TestDecodeUnknownPacketTypeErrors(t *testing.T) {
	_, err := packet.Decode(bytes.NewReader([]byte{0x00, 0x00}), packet.Version311)
	assert.Error(t, err)
}
