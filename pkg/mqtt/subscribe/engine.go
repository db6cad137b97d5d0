package subscribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
	"github.com/robustmq/robustmq/pkg/types"
)

// dispatchPollInterval is how often a dispatch task checks its topic for a
// new record, the same ticker cadence pkg/scheduler.Scheduler.run uses to
// re-list state and act rather than block on a channel with no backstop.
const dispatchPollInterval = 50 * time.Millisecond

// retainPushUserProperty is the user property name carried on a PUBLISH
// delivered because of a subscribe-time retained message push, letting the
// client distinguish it from a live publication.
const retainPushUserProperty = "SUB_RETAIN_MESSAGE_PUSH_FLAG"

// TopicSource is the read side of the topic's durable log: one non-blocking
// read attempt per call, ok is false when no record exists yet at offset.
// The running broker satisfies this with its journal client (4.12); tests
// satisfy it with an in-memory fake.
type TopicSource interface {
	ReadFrom(ctx context.Context, topicName string, offset uint64) (rec types.Record, nextOffset uint64, ok bool, err error)
}

// OffsetTracker persists the per-dispatch-task read position through the
// meta offset Raft group, keyed the way pkg/metaservice.Service's "offset"
// group keys group-offset commands.
type OffsetTracker interface {
	Get(group, shard string) (uint64, error)
	Advance(group, shard string, offset uint64) error
}

// Sender writes a PUBLISH to a locally connected client, the seam into the
// network pipeline's response pool.
type Sender interface {
	Send(clientID string, pub *packet.Publish) error
}

// RetainSource looks up the retained message stored for a topic; satisfied
// directly by *cache.Cache.
type RetainSource interface {
	RetainMessage(topicName string) (types.RetainMessage, bool)
}

// TopicsLister enumerates every topic this broker currently knows about;
// satisfied directly by *cache.Cache.
type TopicsLister interface {
	AllTopics() []types.Topic
}

// PublishEvent is the MQTT-level view of one journal record: a PUBLISH's
// payload and flags, as produced by DecodeEvent from a types.Record's Value
// and Header.
type PublishEvent struct {
	TopicName         string
	Payload           []byte
	QoS               byte
	Retain            bool
	PublisherClientID string
	Properties        *packet.Properties
}

// EncodeEvent renders ev into a types.Record suitable for appending to a
// topic's journal: the PUBLISH payload as Value, everything else as Header
// entries plus the wire-encoded property list.
func EncodeEvent(ev PublishEvent) types.Record {
	header := map[string]string{
		"topic":     ev.TopicName,
		"publisher": ev.PublisherClientID,
	}
	if ev.Retain {
		header["retain"] = "1"
	}
	header["qos"] = string([]byte{'0' + ev.QoS})
	if ev.Properties != nil {
		header["properties"] = string(packet.EncodeProperties(ev.Properties))
	}
	return types.Record{Value: ev.Payload, Header: header}
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(rec types.Record) (PublishEvent, error) {
	ev := PublishEvent{
		TopicName:         rec.Header["topic"],
		Payload:           rec.Value,
		PublisherClientID: rec.Header["publisher"],
		Retain:            rec.Header["retain"] == "1",
	}
	if q := rec.Header["qos"]; len(q) == 1 {
		ev.QoS = q[0] - '0'
	}
	if raw, ok := rec.Header["properties"]; ok && raw != "" {
		props, err := packet.DecodeProperties(strings.NewReader(raw))
		if err != nil {
			return PublishEvent{}, err
		}
		ev.Properties = props
	}
	return ev, nil
}

// Subscriber is one local (client id, filter) registration.
type Subscriber struct {
	ClientID string
	Sub      types.Subscription
	Variant  Variant
	Group    string
	Filter   string // real filter, share-group prefix stripped
}

// Engine is the broker-local subscription fan-out: it tracks every local
// subscriber, runs one dispatch task per matching (topic, subscription or
// share-group) pair, applies per-recipient delivery filters, and answers
// retained-message delivery on subscribe.
type Engine struct {
	pkids    *session.PkidManager
	rewriter *Rewriter
	retained RetainSource
	topics   TopicsLister
	source   TopicSource
	offsets  OffsetTracker
	sender   Sender

	mu          sync.RWMutex
	subscribers map[string][]*Subscriber // keyed by real filter path
	tasks       map[string]*dispatchTask // keyed by topic+"|"+dispatch key
	roundRobin  map[string]int           // group -> next member index
}

// NewEngine builds an Engine. rewriter may be nil if topic rewriting is not
// in use.
func NewEngine(pkids *session.PkidManager, rewriter *Rewriter, retained RetainSource, topics TopicsLister, source TopicSource, offsets OffsetTracker, sender Sender) *Engine {
	return &Engine{
		pkids:       pkids,
		rewriter:    rewriter,
		retained:    retained,
		topics:      topics,
		source:      source,
		offsets:     offsets,
		sender:      sender,
		subscribers: make(map[string][]*Subscriber),
		tasks:       make(map[string]*dispatchTask),
		roundRobin:  make(map[string]int),
	}
}

// Subscribe registers sub as a local subscriber and starts dispatch tasks
// for every already-known topic it matches. isLeader selects the
// share-leader/share-follower variant for a shared-subscription path; it is
// ignored for non-shared filters. isNewFilter controls OnNewSubscribe
// retained delivery: true the first time this client subscribes to this
// exact filter, false on a resubscribe that only changes options.
func (e *Engine) Subscribe(sub types.Subscription, isLeader, isNewFilter bool) (*Subscriber, error) {
	variant, group, realFilter := Classify(sub.FilterPath, isLeader)
	s := &Subscriber{ClientID: sub.ClientID, Sub: sub, Variant: variant, Group: group, Filter: realFilter}

	e.mu.Lock()
	e.subscribers[realFilter] = append(e.subscribers[realFilter], s)
	if variant != VariantShareFollower {
		for _, topic := range e.topics.AllTopics() {
			if Matches(realFilter, topic.TopicName) {
				e.ensureTaskLocked(topic.TopicName, s)
			}
		}
	}
	e.mu.Unlock()

	if err := e.deliverRetained(s, isNewFilter); err != nil {
		return s, err
	}
	return s, nil
}

// Unsubscribe removes a client's registration for filterPath. Dispatch
// tasks for an exclusive subscriber are stopped immediately; a share-group
// task keeps running as long as any local member remains.
func (e *Engine) Unsubscribe(clientID, filterPath string) {
	_, _, realFilter := Classify(filterPath, false)

	e.mu.Lock()
	defer e.mu.Unlock()

	var departedGroup string
	remaining := e.subscribers[realFilter][:0]
	for _, s := range e.subscribers[realFilter] {
		if s.ClientID == clientID {
			if s.Variant == VariantExclusive {
				e.stopTaskLocked(s.Filter, exclusiveDispatchKey(clientID))
			} else if s.Variant == VariantShareLeader {
				departedGroup = s.Group
			}
			continue
		}
		remaining = append(remaining, s)
	}
	if len(remaining) == 0 {
		delete(e.subscribers, realFilter)
	} else {
		e.subscribers[realFilter] = remaining
	}

	if departedGroup != "" {
		stillMember := false
		for _, s := range remaining {
			if s.Group == departedGroup && s.Variant == VariantShareLeader {
				stillMember = true
				break
			}
		}
		if !stillMember {
			e.stopTaskLocked(realFilter, shareDispatchKey(departedGroup))
		}
	}
}

// NotifyTopic starts dispatch tasks for every existing local subscriber
// whose filter matches topicName. Call this once when a topic is first
// observed (its creation, or its first publish).
func (e *Engine) NotifyTopic(topicName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for filter, subs := range e.subscribers {
		if !Matches(filter, topicName) {
			continue
		}
		for _, s := range subs {
			if s.Variant != VariantShareFollower {
				e.ensureTaskLocked(topicName, s)
			}
		}
	}
}

// StopAll halts every running dispatch task, for broker shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	tasks := make([]*dispatchTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	e.tasks = make(map[string]*dispatchTask)
	e.mu.Unlock()

	for _, t := range tasks {
		t.stop()
	}
}

func exclusiveDispatchKey(clientID string) string { return "excl/" + clientID }
func shareDispatchKey(group string) string        { return "share/" + group }

// ensureTaskLocked starts the dispatch task owning (topicName, dispatch key
// for s's variant) if one is not already running. Caller holds e.mu.
func (e *Engine) ensureTaskLocked(topicName string, s *Subscriber) {
	key := exclusiveDispatchKey(s.ClientID)
	offsetGroup := "mqtt-exclusive"
	if s.Variant == VariantShareLeader {
		key = shareDispatchKey(s.Group)
		offsetGroup = "mqtt-share"
	}

	taskKey := topicName + "|" + key
	if _, exists := e.tasks[taskKey]; exists {
		return
	}

	t := &dispatchTask{
		engine:      e,
		topicName:   topicName,
		filter:      s.Filter,
		group:       s.Group,
		clientID:    s.ClientID,
		variant:     s.Variant,
		offsetGroup: offsetGroup,
		offsetShard: taskKey,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	e.tasks[taskKey] = t
	t.start()
}

func (e *Engine) stopTaskLocked(filter, key string) {
	for taskKey, t := range e.tasks {
		if t.filter == filter && taskKey[len(taskKey)-len(key):] == key {
			delete(e.tasks, taskKey)
			go t.stop()
		}
	}
}

// localMembers returns every local subscriber belonging to group under
// filter, in registration order.
func (e *Engine) localMembers(filter, group string) []*Subscriber {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Subscriber
	for _, s := range e.subscribers[filter] {
		if s.Group == group {
			out = append(out, s)
		}
	}
	return out
}

// subscriberFor returns clientID's current registration under filter, which
// may have changed (options, identifier) since the dispatch task was
// created.
func (e *Engine) subscriberFor(filter, clientID string) (*Subscriber, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.subscribers[filter] {
		if s.ClientID == clientID {
			return s, true
		}
	}
	return nil, false
}

// nextShareMember advances the round-robin cursor for group and returns the
// member it selects, or nil if the group currently has no local members.
func (e *Engine) nextShareMember(filter, group string) *Subscriber {
	members := e.localMembers(filter, group)
	if len(members) == 0 {
		return nil
	}

	e.mu.Lock()
	idx := e.roundRobin[group] % len(members)
	e.roundRobin[group] = idx + 1
	e.mu.Unlock()
	return members[idx]
}

// matchingIdentifiers collects the subscription identifiers of every local
// subscription clientID holds whose filter matches topicName, implementing
// the rule that a PUBLISH carries one Subscription Identifier entry per
// matching subscription (MQTT 5 section 3.3.2.3.8).
func (e *Engine) matchingIdentifiers(clientID, topicName string) []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []int
	for filter, subs := range e.subscribers {
		if !Matches(filter, topicName) {
			continue
		}
		for _, s := range subs {
			if s.ClientID == clientID && s.Sub.SubIdentifier != 0 {
				ids = append(ids, int(s.Sub.SubIdentifier))
			}
		}
	}
	return ids
}

// deliverToClient builds and sends the outgoing PUBLISH for one recipient,
// applying no-local, retain-as-published, and QoS downgrade, then assigning
// a fresh downstream packet identifier.
func (e *Engine) deliverToClient(clientID string, sub types.Subscription, ev PublishEvent) error {
	if sub.NoLocal && ev.PublisherClientID == clientID {
		return nil
	}

	qos := ev.QoS
	if sub.QoS < qos {
		qos = sub.QoS
	}

	retain := false
	if sub.RetainAsPublished {
		retain = ev.Retain
	}

	topicName := ev.TopicName
	if e.rewriter != nil {
		if dest, ok := e.rewriter.Rewrite(topicName, types.RewriteActionPublish); ok {
			topicName = dest
		}
	}

	pkid := e.pkids.GeneratePublishPkid(clientID, packet.QoS(qos))
	props := &packet.Properties{SubscriptionIdentifiers: e.matchingIdentifiers(clientID, ev.TopicName)}

	pub := &packet.Publish{
		QoS:              packet.QoS(qos),
		Retain:           retain,
		TopicName:        topicName,
		PacketIdentifier: pkid,
		Properties:       props,
		Payload:          ev.Payload,
	}
	return e.sender.Send(clientID, pub)
}

// deliverRetained pushes the topic's retained message (if any, and if the
// subscription's retain-handling rule allows it here) immediately after a
// SUBSCRIBE, per spec: delivered once with a user property marking it as a
// retained push.
func (e *Engine) deliverRetained(s *Subscriber, isNewFilter bool) error {
	if s.Sub.RetainHandling == types.RetainHandlingNever {
		return nil
	}
	if s.Sub.RetainHandling == types.RetainHandlingOnNewSubscribe && !isNewFilter {
		return nil
	}

	for _, topic := range e.topics.AllTopics() {
		if !Matches(s.Filter, topic.TopicName) {
			continue
		}
		msg, ok := e.retained.RetainMessage(topic.TopicName)
		if !ok || len(msg.Message) == 0 {
			continue
		}

		qos := msg.QoS
		if s.Sub.QoS < qos {
			qos = s.Sub.QoS
		}
		pkid := e.pkids.GeneratePublishPkid(s.ClientID, packet.QoS(qos))

		props := &packet.Properties{UserProperties: []packet.UserProperty{{Key: retainPushUserProperty, Value: "true"}}}
		pub := &packet.Publish{
			QoS:              packet.QoS(qos),
			Retain:           true,
			TopicName:        topic.TopicName,
			PacketIdentifier: pkid,
			Properties:       props,
			Payload:          msg.Message,
		}
		if err := e.sender.Send(s.ClientID, pub); err != nil {
			return err
		}
	}
	return nil
}

// dispatchTask polls one topic for one (exclusive subscriber or
// share-group) on a fixed interval, delivering each new record and
// advancing the persisted offset on success.
type dispatchTask struct {
	engine      *Engine
	topicName   string
	filter      string
	group       string
	clientID    string // set for VariantExclusive; empty for VariantShareLeader
	variant     Variant
	offsetGroup string
	offsetShard string

	stopCh chan struct{}
	doneCh chan struct{}
}

func (t *dispatchTask) start() { go t.run() }

func (t *dispatchTask) stop() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *dispatchTask) run() {
	defer close(t.doneCh)
	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()

	ctx := context.Background()
	logger := log.WithComponent("mqtt-subscribe")

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.poll(ctx, logger)
		}
	}
}

func (t *dispatchTask) poll(ctx context.Context, logger zerolog.Logger) {
	offset, err := t.engine.offsets.Get(t.offsetGroup, t.offsetShard)
	if err != nil {
		logger.Warn().Str("topic", t.topicName).Err(err).Msg("read dispatch offset failed")
		return
	}

	rec, next, ok, err := t.engine.source.ReadFrom(ctx, t.topicName, offset)
	if err != nil {
		logger.Warn().Str("topic", t.topicName).Err(err).Msg("read topic record failed")
		return
	}
	if !ok {
		return
	}

	ev, err := DecodeEvent(rec)
	if err != nil {
		logger.Warn().Str("topic", t.topicName).Err(err).Msg("decode publish event failed")
		return
	}

	if err := t.deliver(ev); err != nil {
		logger.Warn().Str("topic", t.topicName).Err(err).Msg("deliver publish failed")
		return
	}

	if err := t.engine.offsets.Advance(t.offsetGroup, t.offsetShard, next); err != nil {
		logger.Warn().Str("topic", t.topicName).Err(err).Msg("advance dispatch offset failed")
	}
}

func (t *dispatchTask) deliver(ev PublishEvent) error {
	switch t.variant {
	case VariantShareLeader:
		member := t.engine.nextShareMember(t.filter, t.group)
		if member == nil {
			return nil
		}
		return t.engine.deliverToClient(member.ClientID, member.Sub, ev)
	default:
		s, ok := t.engine.subscriberFor(t.filter, t.clientID)
		if !ok {
			return nil
		}
		return t.engine.deliverToClient(s.ClientID, s.Sub, ev)
	}
}
