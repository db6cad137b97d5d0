package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/router"
	"github.com/robustmq/robustmq/pkg/rpc"
	"github.com/robustmq/robustmq/pkg/types"
)

// MQTT 5 CONNACK reason codes this broker emits (section 3.2.2.2).
const (
	reasonSuccess              byte = 0x00
	reasonNotAuthorized        byte = 0x87
	reasonBanned               byte = 0x8A
	reasonClientIDNotValid     byte = 0x85
	reasonServerUnavailable    byte = 0x88
	reasonUnspecifiedError     byte = 0x80
	reasonKeepAliveTimeout     byte = 0x8D
	reasonPacketIdentifierNotFound byte = 0x92
)

func (b *Broker) handleConnect(req network.Request, p *packet.Connect) []network.Response {
	logger := log.WithClientID(p.ClientID)

	clientID := p.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if err := b.checkBanned(clientID, p.Username); err != nil {
		logger.Warn().Err(err).Msg("rejecting banned connect")
		return connAckClose(req.ConnID, req.Version, reasonBanned)
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := b.authenticate(ctx, p.Username, string(p.Password)); err != nil {
		logger.Warn().Err(err).Msg("mqtt connect authentication failed")
		return connAckClose(req.ConnID, req.Version, reasonNotAuthorized)
	}

	existing, err := b.meta.GetSession(ctx, &rpc.GetSessionRequest{ClientID: clientID})
	if err != nil {
		logger.Error().Err(err).Msg("mqtt connect: get session failed")
		return connAckClose(req.ConnID, req.Version, reasonServerUnavailable)
	}

	sessionPresent := existing.Found && !p.CleanStart
	now := time.Now()
	record := types.Session{
		ClientID:     clientID,
		BrokerID:     b.nodeID,
		ConnectionID: connectionIDFrom(req.ConnID),
		CreateTime:   now,
	}
	if sessionPresent {
		record.SessionExpiry = existing.Session.SessionExpiry
	}
	if p.Properties != nil && p.Properties.SessionExpiryInterval != nil {
		record.SessionExpiry = *p.Properties.SessionExpiryInterval
	}

	var lastWill *types.LastWill
	if p.WillTopic != "" {
		lastWill = &types.LastWill{Topic: p.WillTopic, Message: p.WillPayload, QoS: byte(p.WillQoS), Retain: p.WillRetain}
		record.LastWill = lastWill
		if p.WillProps != nil && p.WillProps.WillDelayInterval != nil {
			record.LastWillDelay = *p.WillProps.WillDelayInterval
		}
	}

	if err := b.execute(ctx, "mqtt", robustraft.MqttSetSession, record); err != nil {
		logger.Error().Err(err).Msg("mqtt connect: persist session failed")
		return connAckClose(req.ConnID, req.Version, reasonUnspecifiedError)
	}
	if lastWill != nil {
		will := router.LastWillRecord{ClientID: clientID, LastWill: *lastWill}
		if err := b.execute(ctx, "mqtt", robustraft.MqttSaveLastWillMessage, will); err != nil {
			logger.Error().Err(err).Msg("mqtt connect: persist last will failed")
		}
	}

	effectiveKeepAlive := p.KeepAlive
	if effectiveKeepAlive == 0 {
		effectiveKeepAlive = b.cfg.DefaultKeepAlive
	}
	keepAlive := time.Duration(effectiveKeepAlive) * time.Second
	var sessionWill *session.WillMessage
	if lastWill != nil {
		sessionWill = &session.WillMessage{
			Topic: lastWill.Topic, Payload: lastWill.Message, QoS: lastWill.QoS, Retain: lastWill.Retain,
			DelayUntil: now.Add(time.Duration(record.LastWillDelay) * time.Second),
		}
	}
	b.sessions.Put(&session.Session{
		ClientID:      clientID,
		CleanStart:    p.CleanStart,
		KeepAlive:     keepAlive,
		LastActivity:  now,
		Will:          sessionWill,
		ConnectedNode: b.nodeID,
	})
	b.bindConn(req.ConnID, clientID)
	b.versions.SetVersion(req.ConnID, p.ProtocolVersion)

	logger.Info().Str("conn_id", req.ConnID).Bool("session_present", sessionPresent).Msg("mqtt client connected")

	ack := &packet.ConnAck{SessionPresent: sessionPresent, ReasonCode: reasonSuccess}
	if p.ProtocolVersion == packet.Version5 {
		ack.Properties = b.connAckProperties(clientID, p.ClientID == "", effectiveKeepAlive != p.KeepAlive, effectiveKeepAlive)
	}
	return []network.Response{{ConnID: req.ConnID, Packet: ack}}
}

// connAckProperties builds the MQTT 5 CONNACK property list the spec names:
// assigned client id (only when the server generated one), receive
// maximum, maximum QoS, retain availability, maximum packet size, topic
// alias maximum, and the three availability flags, all drawn from the
// broker's configured MQTTConfig rather than hardcoded. serverKeepAlive is
// only echoed back when the broker substituted its own default for the
// client's requested value of zero.
func (b *Broker) connAckProperties(clientID string, assignedClientID, overrodeKeepAlive bool, serverKeepAlive uint16) *packet.Properties {
	maxQoS := byte(2)
	retainAvailable := byte(1)
	wildcardAvailable := byte(1)
	subIDAvailable := byte(1)
	sharedAvailable := byte(1)
	receiveMax := b.cfg.ServerReceiveMax
	topicAliasMax := b.cfg.TopicAliasMax
	maxPacketSize := b.cfg.MaxPacketSize
	props := &packet.Properties{
		MaximumQoS:              &maxQoS,
		RetainAvailable:         &retainAvailable,
		WildcardSubAvailable:    &wildcardAvailable,
		SubscriptionIDAvailable: &subIDAvailable,
		SharedSubAvailable:      &sharedAvailable,
		ReceiveMaximum:          &receiveMax,
		TopicAliasMaximum:       &topicAliasMax,
		MaximumPacketSize:       &maxPacketSize,
	}
	if assignedClientID {
		props.AssignedClientIdentifier = clientID
	}
	if overrodeKeepAlive {
		props.ServerKeepAlive = &serverKeepAlive
	}
	return props
}

func connAckClose(connID string, version packet.Version, reasonCode byte) []network.Response {
	ack := &packet.ConnAck{ReasonCode: mapReasonFor311(version, reasonCode)}
	return []network.Response{{ConnID: connID, Packet: ack, Close: true}}
}

// mapReasonFor311 collapses a v5 reason code to MQTT 3.1.1's narrower
// CONNACK return-code set: not-authorized and banned map to 0x04, an
// invalid client id to 0x02, server-unavailable to 0x03, and any other code
// to 0x80, which lies outside the 3.1.1 enum.
func mapReasonFor311(version packet.Version, reasonCode byte) byte {
	if version == packet.Version5 {
		return reasonCode
	}
	switch reasonCode {
	case reasonNotAuthorized, reasonBanned:
		return 0x04 // Bad user name or password / not authorized, closest 3.1.1 code
	case reasonClientIDNotValid:
		return 0x02
	case reasonServerUnavailable:
		return 0x03
	default:
		return 0x80 // out of the 3.1.1 enum; callers treat any nonzero as failure
	}
}

// HandleExpired is wired as the session.Manager's onExpire callback (set up
// by the caller, once both the Manager and Broker exist): a
// client whose keep-alive window lapsed gets a synthesized DISCONNECT with
// reason KeepAliveTimeout pushed to whatever connection it still holds,
// and its packet-identifier bookkeeping is released.
func (b *Broker) HandleExpired(s *session.Session) {
	b.mu.Lock()
	conn, ok := b.connByClient[s.ClientID]
	if ok {
		delete(b.connByClient, s.ClientID)
		delete(b.clientByConn, conn.connID)
	}
	b.mu.Unlock()
	b.pkids.RemoveClient(s.ClientID)
	if !ok {
		return
	}
	// MQTT 3.1.1 has no server-to-client DISCONNECT at all, so the reason
	// code only reaches v5 clients; 3.1.1 clients just observe the close.
	_ = b.deliverer.Deliver(conn.connID, &packet.Disconnect{ReasonCode: reasonKeepAliveTimeout}, true)
	log.WithClientID(s.ClientID).Info().Msg("mqtt session expired on keep-alive timeout")
}

func (b *Broker) handlePingReq(req network.Request) []network.Response {
	if clientID, ok := b.clientIDFor(req.ConnID); ok {
		b.sessions.Touch(clientID)
	}
	return []network.Response{{ConnID: req.ConnID, Packet: &packet.PingResp{}}}
}

func (b *Broker) handleDisconnect(req network.Request, p *packet.Disconnect) []network.Response {
	clientID, ok := b.unbindConn(req.ConnID)
	if !ok {
		return nil
	}
	b.sessions.CancelWill(clientID)

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	now := time.Now()
	patch := types.Session{ClientID: clientID, DistinctTime: &now}
	if err := b.execute(ctx, "mqtt", robustraft.MqttUpdateSession, patch); err != nil {
		log.WithClientID(clientID).Warn().Err(err).Msg("mqtt disconnect: mark distinct failed")
	}

	if s, ok := b.sessions.Get(clientID); ok && s.CleanStart {
		b.sessions.Remove(clientID)
		b.pkids.RemoveClient(clientID)
	}
	log.WithClientID(clientID).Info().Str("conn_id", req.ConnID).Msg("mqtt client disconnected")
	return []network.Response{{ConnID: req.ConnID, Close: true}}
}

// connectionIDFrom derives a numeric connection id from the network
// layer's string connection id for the Session.ConnectionID field, which
// only needs to be unique and stable for the lifetime of one connection,
// not globally meaningful.
func connectionIDFrom(connID string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(connID); i++ {
		h ^= uint64(connID[i])
		h *= 1099511628211
	}
	return h
}
