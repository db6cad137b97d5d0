package broker

import (
	"context"
	"strings"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/mqtt/network"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
	robustraft "github.com/robustmq/robustmq/pkg/raft"
	"github.com/robustmq/robustmq/pkg/router"
	"github.com/robustmq/robustmq/pkg/types"
)

// Sender adapts a Deliverer to subscribe.Sender, the seam the dispatch
// engine uses to push a matched PUBLISH back out to a locally connected
// subscriber. Construction is two-step because the subscribe.Engine (which
// needs a Sender) and the Broker (which the Sender needs) each depend on
// the other: build a Sender first, pass it to subscribe.NewEngine, then
// call Bind once the Broker exists.
type Sender struct {
	broker *Broker
}

// NewSender returns an unbound Sender; call Bind before any Publish flows.
func NewSender() *Sender { return &Sender{} }

// Bind attaches the owning Broker once it has been constructed.
func (s *Sender) Bind(b *Broker) { s.broker = b }

func (s *Sender) Send(clientID string, pub *packet.Publish) error {
	s.broker.mu.Lock()
	conn, ok := s.broker.connByClient[clientID]
	s.broker.mu.Unlock()
	if !ok {
		return nil
	}
	return s.broker.deliverer.Deliver(conn.connID, pub, false)
}

func (b *Broker) handleSubscribe(req network.Request, p *packet.Subscribe) []network.Response {
	clientID, ok := b.clientIDFor(req.ConnID)
	if !ok {
		return []network.Response{{ConnID: req.ConnID, Close: true}}
	}
	b.sessions.Touch(clientID)
	logger := log.WithClientID(clientID)

	reasonCodes := make([]byte, len(p.Filters))
	for i, filter := range p.Filters {
		reasonCodes[i] = b.subscribeOne(clientID, filter)
	}

	logger.Info().Int("filter_count", len(p.Filters)).Msg("mqtt client subscribed")
	return []network.Response{{ConnID: req.ConnID, Packet: &packet.SubAck{
		PacketIdentifier: p.PacketIdentifier, ReasonCodes: reasonCodes,
	}}}
}

// subscribeOne persists and locally activates one subscription filter,
// returning the SUBACK reason code (granted QoS, or a failure code) for
// that filter.
func (b *Broker) subscribeOne(clientID string, filter packet.SubscribeFilter) byte {
	logger := log.WithClientID(clientID)
	// A filter (after any $share prefix) must be non-empty, must not end in
	// '/', and may use '+' only as a whole level and '#' only as the whole
	// last level.
	_, realFilter, _ := subscribe.SplitShareGroup(filter.TopicFilter)
	levels := strings.Split(realFilter, "/")
	validFilter := realFilter != "" && levels[len(levels)-1] != ""
	for i, level := range levels {
		if (len(level) > 1 && strings.ContainsAny(level, "#+")) || (level == "#" && i != len(levels)-1) {
			validFilter = false
		}
	}
	if !validFilter {
		logger.Warn().Str("filter", filter.TopicFilter).Msg("rejecting invalid subscribe filter")
		return reasonUnspecifiedError
	}
	if err := b.checkACL(clientID, filter.TopicFilter, "Subscribe"); err != nil {
		logger.Warn().Err(err).Str("filter", filter.TopicFilter).Msg("subscribe denied by acl")
		return reasonNotAuthorized
	}

	_, ok := b.cache.Subscription(subscribeKeyFor(clientID, filter.TopicFilter))
	isNewFilter := !ok

	sub := types.Subscription{
		Cluster: b.cluster, ClientID: clientID, FilterPath: filter.TopicFilter,
		QoS: byte(filter.Options.QoS), NoLocal: filter.Options.NoLocal,
		RetainAsPublished: filter.Options.RetainAsPublished,
		RetainHandling:    types.RetainHandling(filter.Options.RetainHandling),
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := b.execute(ctx, "mqtt", robustraft.MqttSetSubscribe, sub); err != nil {
		logger.Error().Err(err).Str("filter", filter.TopicFilter).Msg("persist subscription failed")
		return reasonUnspecifiedError
	}

	isLeader := b.claimShareLeadershipIfNeeded(ctx, sub.FilterPath)
	if _, err := b.engine.Subscribe(sub, isLeader, isNewFilter); err != nil {
		logger.Error().Err(err).Str("filter", filter.TopicFilter).Msg("activate subscription failed")
		return reasonUnspecifiedError
	}
	return sub.QoS
}

// claimShareLeadershipIfNeeded resolves share-group leadership by a
// simple check-then-claim: whichever broker's subscribe reaches the meta
// service first while the group is unclaimed becomes its leader. This is
// a simplification of subscribe.ElectLeader's least-loaded selection
// (still available, unused here) — see the design notes. Filters outside
// a share group always report true (every exclusive subscriber is its
// own "leader").
func (b *Broker) claimShareLeadershipIfNeeded(ctx context.Context, filterPath string) bool {
	group, realFilter, shared := subscribe.SplitShareGroup(filterPath)
	if !shared {
		return true
	}
	key := shareGroupLeaderKeyFor(group, realFilter)
	if leader, ok := b.cache.ShareGroupLeader(key); ok {
		return leader.LeaderBrokerID == b.nodeID
	}
	claim := types.ShareGroupLeader{Cluster: b.cluster, GroupName: group, FilterPath: realFilter, LeaderBrokerID: b.nodeID}
	if err := b.execute(ctx, "mqtt", robustraft.MqttSetShareGroupLeader, claim); err != nil {
		log.WithComponent("mqtt-broker").Warn().Err(err).Str("group", group).Msg("claim share group leadership failed")
		return false
	}
	return true
}

func (b *Broker) handleUnsubscribe(req network.Request, p *packet.Unsubscribe) []network.Response {
	clientID, ok := b.clientIDFor(req.ConnID)
	if !ok {
		return []network.Response{{ConnID: req.ConnID, Close: true}}
	}
	b.sessions.Touch(clientID)
	logger := log.WithClientID(clientID)

	reasonCodes := make([]byte, len(p.TopicFilters))
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	for i, filterPath := range p.TopicFilters {
		ref := router.SubscribeRef{ClientID: clientID, FilterPath: filterPath}
		if err := b.execute(ctx, "mqtt", robustraft.MqttDeleteSubscribe, ref); err != nil {
			logger.Error().Err(err).Str("filter", filterPath).Msg("delete subscription failed")
			reasonCodes[i] = reasonUnspecifiedError
			continue
		}
		b.engine.Unsubscribe(clientID, filterPath)
		reasonCodes[i] = reasonSuccess
	}

	logger.Info().Int("filter_count", len(p.TopicFilters)).Msg("mqtt client unsubscribed")
	return []network.Response{{ConnID: req.ConnID, Packet: &packet.UnsubAck{
		PacketIdentifier: p.PacketIdentifier, ReasonCodes: reasonCodes,
	}}}
}
