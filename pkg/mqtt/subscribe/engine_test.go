package subscribe_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/packet"
	"github.com/robustmq/robustmq/pkg/mqtt/session"
	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
	"github.com/robustmq/robustmq/pkg/types"
)

type fakeTopics struct{ topics []types.Topic }

func (f *fakeTopics) AllTopics() []types.Topic { return f.topics }

type fakeRetain struct {
	mu   sync.Mutex
	msgs map[string]types.RetainMessage
}

func newFakeRetain() *fakeRetain { return &fakeRetain{msgs: make(map[string]types.RetainMessage)} }

func (f *fakeRetain) set(topic string, msg types.RetainMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[topic] = msg
}

func (f *fakeRetain) RetainMessage(topicName string) (types.RetainMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.msgs[topicName]
	return m, ok
}

type fakeSource struct {
	mu      sync.Mutex
	records map[string][]types.Record
}

func newFakeSource() *fakeSource { return &fakeSource{records: make(map[string][]types.Record)} }

func (f *fakeSource) append(topic string, ev subscribe.PublishEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[topic] = append(f.records[topic], subscribe.EncodeEvent(ev))
}

func (f *fakeSource) ReadFrom(_ context.Context, topicName string, offset uint64) (types.Record, uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.records[topicName]
	if offset >= uint64(len(recs)) {
		return types.Record{}, offset, false, nil
	}
	return recs[offset], offset + 1, true, nil
}

type fakeOffsets struct {
	mu      sync.Mutex
	offsets map[string]uint64
}

func newFakeOffsets() *fakeOffsets { return &fakeOffsets{offsets: make(map[string]uint64)} }

func (f *fakeOffsets) Get(group, shard string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[group+"/"+shard], nil
}

func (f *fakeOffsets) Advance(group, shard string, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets[group+"/"+shard] = offset
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentPublish
}

type sentPublish struct {
	clientID string
	pub      *packet.Publish
}

func newFakeSender() *fakeSender { return &fakeSender{} }

func (f *fakeSender) Send(clientID string, pub *packet.Publish) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPublish{clientID: clientID, pub: pub})
	return nil
}

func (f *fakeSender) all() []sentPublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentPublish, len(f.sent))
	copy(out, f.sent)
	return out
}

func waitForSent(t *testing.T, sender *fakeSender, n int) []sentPublish {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := sender.all(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent publishes, got %d", n, len(sender.all()))
	return nil
}

func newTestEngine(topics *fakeTopics, retain *fakeRetain, source *fakeSource, offsets *fakeOffsets, sender *fakeSender) *subscribe.Engine {
	return subscribe.NewEngine(session.NewPkidManager(), nil, retain, topics, source, offsets, sender)
}

func TestEngineDeliversToExclusiveSubscriber(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1}, false, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("hello"), QoS: 1, PublisherClientID: "other"})

	sent := waitForSent(t, sender, 1)
	assert.Equal(t, "c1", sent[0].clientID)
	assert.Equal(t, []byte("hello"), sent[0].pub.Payload)
	assert.Equal(t, "a/b", sent[0].pub.TopicName)
	assert.NotZero(t, sent[0].pub.PacketIdentifier)

	e.StopAll()
}

func TestEngineNoLocalDropsOwnPublish(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1, NoLocal: true}, false, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("own"), QoS: 1, PublisherClientID: "c1"})
	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("other"), QoS: 1, PublisherClientID: "c2"})

	sent := waitForSent(t, sender, 1)
	assert.Equal(t, []byte("other"), sent[0].pub.Payload)

	e.StopAll()
}

func TestEngineDowngradesQoSToSubscriptionMaximum(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 0}, false, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("x"), QoS: 2, PublisherClientID: "c2"})

	sent := waitForSent(t, sender, 1)
	assert.Equal(t, packet.QoS0, sent[0].pub.QoS)

	e.StopAll()
}

func TestEngineRetainAsPublishedControlsRetainFlag(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1, RetainAsPublished: false}, false, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("x"), QoS: 1, Retain: true, PublisherClientID: "c2"})

	sent := waitForSent(t, sender, 1)
	assert.False(t, sent[0].pub.Retain)

	e.StopAll()
}

func TestEngineDeliversRetainedMessageOnSubscribe(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	retain.set("a/b", types.RetainMessage{TopicName: "a/b", Message: []byte("last known"), QoS: 1})
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1, RetainHandling: types.RetainHandlingOnEverySubscribe}, false, true)
	require.NoError(t, err)

	sent := waitForSent(t, sender, 1)
	assert.True(t, sent[0].pub.Retain)
	assert.Equal(t, []byte("last known"), sent[0].pub.Payload)
	require.Len(t, sent[0].pub.Properties.UserProperties, 1)
	assert.Equal(t, "SUB_RETAIN_MESSAGE_PUSH_FLAG", sent[0].pub.Properties.UserProperties[0].Key)

	e.StopAll()
}

func TestEngineRetainHandlingNeverSkipsDelivery(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	retain.set("a/b", types.RetainMessage{TopicName: "a/b", Message: []byte("last known"), QoS: 1})
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1, RetainHandling: types.RetainHandlingNever}, false, true)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sender.all())

	e.StopAll()
}

func TestEngineShareLeaderRoundRobinsAcrossLocalMembers(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "$share/g1/a/b", QoS: 1}, true, true)
	require.NoError(t, err)
	_, err = e.Subscribe(types.Subscription{ClientID: "c2", FilterPath: "$share/g1/a/b", QoS: 1}, true, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("1"), QoS: 1, PublisherClientID: "pub"})
	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("2"), QoS: 1, PublisherClientID: "pub"})

	sent := waitForSent(t, sender, 2)
	recipients := map[string]bool{sent[0].clientID: true, sent[1].clientID: true}
	assert.True(t, recipients["c1"])
	assert.True(t, recipients["c2"])
	assert.NotEqual(t, sent[0].clientID, sent[1].clientID)

	e.StopAll()
}

func TestEngineAggregatesSubscriptionIdentifiersAcrossMatchingFilters(t *testing.T) {
	topics := &fakeTopics{topics: []types.Topic{{TopicName: "a/b"}}}
	retain := newFakeRetain()
	source := newFakeSource()
	offsets := newFakeOffsets()
	sender := newFakeSender()
	e := newTestEngine(topics, retain, source, offsets, sender)

	_, err := e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/b", QoS: 1, SubIdentifier: 7}, false, true)
	require.NoError(t, err)
	_, err = e.Subscribe(types.Subscription{ClientID: "c1", FilterPath: "a/+", QoS: 1, SubIdentifier: 9}, false, true)
	require.NoError(t, err)

	source.append("a/b", subscribe.PublishEvent{TopicName: "a/b", Payload: []byte("x"), QoS: 1, PublisherClientID: "pub"})

	sent := waitForSent(t, sender, 1)
	assert.ElementsMatch(t, []int{7, 9}, sent[0].pub.Properties.SubscriptionIdentifiers)

	e.StopAll()
}
