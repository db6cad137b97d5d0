package broker

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
	"github.com/robustmq/robustmq/pkg/journal/client"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/types"
)

func (b *Broker) handlePublish(req network.Request, p *packet.Publish) []network.Response {
	clientID, ok := b.clientIDFor(req.ConnID)
	if !ok {
		return []network.Response{{ConnID: req.ConnID, Close: true}}
	}
	b.sessions.Touch(clientID)
	logger := log.WithClientID(clientID)

	if err := validateTopicName(p.TopicName); err != nil {
		logger.Warn().Err(err).Str("topic", p.TopicName).Msg("rejecting publish with invalid topic name")
		return b.publishAck(req, p, reasonUnspecifiedError, true)
	}
	if p.Properties != nil && p.Properties.PayloadFormatIndicator != nil &&
		*p.Properties.PayloadFormatIndicator == 1 && !utf8Valid(p.Payload) {
		logger.Warn().Str("topic", p.TopicName).Msg("rejecting publish with invalid utf-8 payload")
		return b.publishAck(req, p, reasonUnspecifiedError, true)
	}
	if err := b.checkACL(clientID, p.TopicName, "Publish"); err != nil {
		logger.Warn().Err(err).Str("topic", p.TopicName).Msg("publish denied by acl")
		return b.publishAck(req, p, reasonNotAuthorized, true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	if p.Retain {
		if err := b.saveRetained(ctx, p); err != nil {
			logger.Error().Err(err).Str("topic", p.TopicName).Msg("persist retained message failed")
		}
	}

	if err := b.ensureShard(ctx, p.TopicName); err != nil {
		logger.Error().Err(err).Str("topic", p.TopicName).Msg("provision topic shard failed")
		return b.publishAck(req, p, reasonServerUnavailable, true)
	}

	event := subscribe.EncodeEvent(subscribe.PublishEvent{
		TopicName: p.TopicName, Payload: p.Payload, QoS: byte(p.QoS), Retain: p.Retain,
		PublisherClientID: clientID, Properties: p.Properties,
	})
	record := client.PendingRecord{Key: uuid.NewString(), Value: event.Value, Header: event.Header, Timestamp: time.Now().UnixMilli()}
	if _, err := b.journal.BatchWrite(ctx, journalNamespace, p.TopicName, []client.PendingRecord{record}); err != nil {
		logger.Error().Err(err).Str("topic", p.TopicName).Msg("journal write failed")
		return b.publishAck(req, p, reasonServerUnavailable, true)
	}

	if p.QoS == packet.QoS2 {
		b.pkids.AddReceivePkid(clientID, session.ReceivePkidEntry{
			Ack: session.AckPubRec, Pkid: p.PacketIdentifier, CreateTime: time.Now(),
		})
	}
	return b.publishAck(req, p, reasonSuccess, false)
}

// publishAck returns the acknowledgement packets PUBLISH's QoS requires:
// none for QoS0, a PUBACK for QoS1, and a PUBREC for QoS2 (the PUBCOMP for
// QoS2 only follows the client's own PUBREL, handled in handlePubRel). A
// failed publish is acked with a nonzero reason code rather than silently
// dropped so MQTT 5 clients can observe the failure; MQTT 3.1.1 carries no
// per-publish failure signal and simply gets the same ack shape without a
// meaningful reason code.
func (b *Broker) publishAck(req network.Request, p *packet.Publish, reasonCode byte, failed bool) []network.Response {
	switch p.QoS {
	case packet.QoS0:
		if failed {
			return []network.Response{{ConnID: req.ConnID, Close: true}}
		}
		return nil
	case packet.QoS1:
		return []network.Response{{ConnID: req.ConnID, Packet: &packet.PubAck{PacketIdentifier: p.PacketIdentifier, ReasonCode: reasonCode}}}
	default: // QoS2
		return []network.Response{{ConnID: req.ConnID, Packet: &packet.PubRec{PacketIdentifier: p.PacketIdentifier, ReasonCode: reasonCode}}}
	}
}

func (b *Broker) handlePubAck(req network.Request, p *packet.PubAck) []network.Response {
	if clientID, ok := b.clientIDFor(req.ConnID); ok {
		b.pkids.ReleasePublishPkid(clientID, p.PacketIdentifier)
	}
	return nil
}

func (b *Broker) handlePubRec(req network.Request, p *packet.PubRec) []network.Response {
	return []network.Response{{ConnID: req.ConnID, Packet: &packet.PubRel{PacketIdentifier: p.PacketIdentifier}}}
}

// handlePubRel completes the inbound QoS 2 handshake. This broker takes
// the minimal-passthrough path the design notes describe: the PUBLISH was
// already durably written to the journal on PUBREC, so PUBREL only needs
// an immediate PUBCOMP rather than a genuine two-phase commit with
// dedup-on-redelivery bookkeeping. A PUBREL with no matching tracked
// PUBREC (never seen, or already released) reports PacketIdentifierNotFound.
func (b *Broker) handlePubRel(req network.Request, p *packet.PubRel) []network.Response {
	clientID, ok := b.clientIDFor(req.ConnID)
	if !ok {
		return []network.Response{{ConnID: req.ConnID, Close: true}}
	}
	if _, found := b.pkids.GetReceivePkid(clientID, p.PacketIdentifier); !found {
		log.WithClientID(clientID).Warn().Uint16("pkid", p.PacketIdentifier).
			Msg("pubrel for unknown packet identifier")
		return []network.Response{{ConnID: req.ConnID, Packet: &packet.PubComp{
			PacketIdentifier: p.PacketIdentifier, ReasonCode: reasonPacketIdentifierNotFound,
		}}}
	}
	b.pkids.RemoveReceivePkid(clientID, p.PacketIdentifier)
	return []network.Response{{ConnID: req.ConnID, Packet: &packet.PubComp{PacketIdentifier: p.PacketIdentifier}}}
}

func (b *Broker) handlePubComp(req network.Request, p *packet.PubComp) []network.Response {
	if clientID, ok := b.clientIDFor(req.ConnID); ok {
		b.pkids.ReleasePublishPkid(clientID, p.PacketIdentifier)
	}
	return nil
}

func validateTopicName(topicName string) error {
	if topicName == "" {
		return robustmqerrors.ErrTopicNameIsEmpty
	}
	if strings.HasSuffix(topicName, "/") || strings.ContainsAny(topicName, "#+") {
		return robustmqerrors.ErrTopicNameIncorrectlyFormatted
	}
	return nil
}

func utf8Valid(b []byte) bool {
	return utf8.Valid(b)
}

func (b *Broker) saveRetained(ctx context.Context, p *packet.Publish) error {
	var props []byte
	if p.Properties != nil {
		props = packet.EncodeProperties(p.Properties)
	}
	msg := types.RetainMessage{
		Cluster: b.cluster, TopicName: p.TopicName, Message: p.Payload, QoS: byte(p.QoS),
		Properties: props, UpdateTime: time.Now(),
	}
	return b.execute(ctx, "mqtt", robustraft.MqttSetRetainMessage, msg)
}

// ensureShard provisions a shard for topicName on first use: one shard per
// topic, placed round-robin across the configured journal nodes (the
// broker's topic-to-shard simplification — see the design notes). Once
// provisioned, the shard's journal node and subscription dispatch tasks
// are already live, so later publishes to the same topic are a no-op
// here.
func (b *Broker) ensureShard(ctx context.Context, topicName string) (err error) {
	b.mu.Lock()
	if _, ok := b.shardJournal[topicName]; ok {
		b.mu.Unlock()
		return nil
	}
	addr := b.journalAddrs[b.nextJournal%len(b.journalAddrs)]
	b.nextJournal++
	b.shardJournal[topicName] = addr
	b.mu.Unlock()
	defer func() {
		if err != nil {
			b.mu.Lock()
			delete(b.shardJournal, topicName)
			b.mu.Unlock()
		}
	}()

	shard := types.Shard{
		UID: uuid.NewString(), Cluster: b.cluster, Namespace: journalNamespace, ShardName: topicName,
		Status: types.ShardStatusRun, Engine: types.ShardEngineSegment,
		Config: types.ShardConfig{ReplicaNum: 1},
	}
	if err := b.execute(ctx, "meta", robustraft.JournalSetShard, shard); err != nil {
		return err
	}

	segment := types.Segment{
		Cluster: b.cluster, Namespace: journalNamespace, ShardName: topicName,
		SegmentSeq: 0, Leader: addr, Status: types.SegmentStatusWrite,
	}
	if err := b.execute(ctx, "meta", robustraft.JournalSetSegment, segment); err != nil {
		return err
	}

	if err := b.journal.CreateShard(ctx, addr, journalNamespace, topicName); err != nil {
		return err
	}

	if err := b.execute(ctx, "mqtt", robustraft.MqttSetTopic, types.Topic{Cluster: b.cluster, TopicID: uuid.NewString(), TopicName: topicName, CreateTime: time.Now()}); err != nil {
		return err
	}
	b.engine.NotifyTopic(topicName)
	return nil
}
