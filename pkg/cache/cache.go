// Package cache implements the broker/journal-side local read cache (spec
// 4.3, 4.6): every node keeps an in-memory, eventually-consistent copy of
// the meta service's entities, kept current by idempotent UpdateCache
// pushes from pkg/innercall. It generalizes the teacher's
// pkg/events.Broker subscriber map — one concurrent map per subscriber —
// into one concurrent map per resource type.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/robustmq/robustmq/pkg/types"
)

// ResourceType names one of the entity kinds a Cache mirrors, matching the
// resource_type values the Broker Inner-Call push carries (spec 4.6).
type ResourceType string

const (
	ResourceSession        ResourceType = "Session"
	ResourceTopic          ResourceType = "Topic"
	ResourceSubscribe      ResourceType = "Subscribe"
	ResourceConnector      ResourceType = "Connector"
	ResourceShard          ResourceType = "Shard"
	ResourceSegment        ResourceType = "Segment"
	ResourceSegmentMeta    ResourceType = "SegmentMeta"
	ResourceConfig         ResourceType = "ResourceConfig"
	ResourceBlacklist      ResourceType = "Blacklist"
	ResourceACL            ResourceType = "Acl"
	ResourceTopicRewrite   ResourceType = "TopicRewrite"
	ResourceAutoSubscribe  ResourceType = "AutoSubscribe"
	ResourceRetainMessage  ResourceType = "RetainMessage"
	ResourceShareGroupLeader ResourceType = "ShareGroupLeader"
)

// ActionType is whether an Update sets or removes an entry.
type ActionType string

const (
	ActionSet    ActionType = "Set"
	ActionDelete ActionType = "Delete"
)

// Update is one cache-coherency push, applied idempotently: a Set
// overwrites the prior value for Key; a Delete is a no-op if Key is
// already absent (spec 4.6).
type Update struct {
	Cluster      string          `json:"cluster"`
	ActionType   ActionType      `json:"action_type"`
	ResourceType ResourceType    `json:"resource_type"`
	Key          string          `json:"key"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Cache is the broker/journal node's local mirror of meta-service state.
type Cache struct {
	sessions       typedMap[types.Session]
	topics         typedMap[types.Topic]
	subscriptions  typedMap[types.Subscription]
	connectors     typedMap[types.Connector]
	shards         typedMap[types.Shard]
	segments       typedMap[types.Segment]
	segmentMeta    typedMap[types.SegmentMetadata]
	resourceConfig typedMap[types.ResourceConfig]
	blacklists     typedMap[types.Blacklist]
	acls           typedMap[types.ACL]
	topicRewrites  typedMap[types.TopicRewrite]
	autoSubscribes typedMap[types.AutoSubscribe]
	retainMessages typedMap[types.RetainMessage]
	shareLeaders   typedMap[types.ShareGroupLeader]
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{
		sessions:       newTypedMap[types.Session](),
		topics:         newTypedMap[types.Topic](),
		subscriptions:  newTypedMap[types.Subscription](),
		connectors:     newTypedMap[types.Connector](),
		shards:         newTypedMap[types.Shard](),
		segments:       newTypedMap[types.Segment](),
		segmentMeta:    newTypedMap[types.SegmentMetadata](),
		resourceConfig: newTypedMap[types.ResourceConfig](),
		blacklists:     newTypedMap[types.Blacklist](),
		acls:           newTypedMap[types.ACL](),
		topicRewrites:  newTypedMap[types.TopicRewrite](),
		autoSubscribes: newTypedMap[types.AutoSubscribe](),
		retainMessages: newTypedMap[types.RetainMessage](),
		shareLeaders:   newTypedMap[types.ShareGroupLeader](),
	}
}

// Apply applies one Update to the matching resource map.
func (c *Cache) Apply(update Update) error {
	switch update.ResourceType {
	case ResourceSession:
		return applyTyped(&c.sessions, update)
	case ResourceTopic:
		return applyTyped(&c.topics, update)
	case ResourceSubscribe:
		return applyTyped(&c.subscriptions, update)
	case ResourceConnector:
		return applyTyped(&c.connectors, update)
	case ResourceShard:
		return applyTyped(&c.shards, update)
	case ResourceSegment:
		return applyTyped(&c.segments, update)
	case ResourceSegmentMeta:
		return applyTyped(&c.segmentMeta, update)
	case ResourceConfig:
		return applyTyped(&c.resourceConfig, update)
	case ResourceBlacklist:
		return applyTyped(&c.blacklists, update)
	case ResourceACL:
		return applyTyped(&c.acls, update)
	case ResourceTopicRewrite:
		return applyTyped(&c.topicRewrites, update)
	case ResourceAutoSubscribe:
		return applyTyped(&c.autoSubscribes, update)
	case ResourceRetainMessage:
		return applyTyped(&c.retainMessages, update)
	case ResourceShareGroupLeader:
		return applyTyped(&c.shareLeaders, update)
	default:
		return fmt.Errorf("cache: unknown resource_type %q", update.ResourceType)
	}
}

func applyTyped[T any](m *typedMap[T], update Update) error {
	switch update.ActionType {
	case ActionSet:
		var value T
		if err := json.Unmarshal(update.Data, &value); err != nil {
			return fmt.Errorf("decode %s: %w", update.ResourceType, err)
		}
		m.set(update.Key, value)
		return nil
	case ActionDelete:
		m.delete(update.Key)
		return nil
	default:
		return fmt.Errorf("cache: unknown action_type %q", update.ActionType)
	}
}

func (c *Cache) Session(clientID string) (types.Session, bool)      { return c.sessions.get(clientID) }
func (c *Cache) Topic(topicName string) (types.Topic, bool)         { return c.topics.get(topicName) }
func (c *Cache) Subscription(key string) (types.Subscription, bool) { return c.subscriptions.get(key) }
func (c *Cache) Connector(name string) (types.Connector, bool)      { return c.connectors.get(name) }
func (c *Cache) Shard(shardName string) (types.Shard, bool)         { return c.shards.get(shardName) }
func (c *Cache) Segment(key string) (types.Segment, bool)           { return c.segments.get(key) }
func (c *Cache) SegmentMeta(key string) (types.SegmentMetadata, bool) {
	return c.segmentMeta.get(key)
}
func (c *Cache) ResourceConfig(key string) (types.ResourceConfig, bool) {
	return c.resourceConfig.get(key)
}
func (c *Cache) Blacklist(key string) (types.Blacklist, bool) { return c.blacklists.get(key) }
func (c *Cache) ACL(key string) (types.ACL, bool)             { return c.acls.get(key) }
func (c *Cache) TopicRewrite(key string) (types.TopicRewrite, bool) {
	return c.topicRewrites.get(key)
}
func (c *Cache) AutoSubscribe(key string) (types.AutoSubscribe, bool) {
	return c.autoSubscribes.get(key)
}
func (c *Cache) RetainMessage(topicName string) (types.RetainMessage, bool) {
	return c.retainMessages.get(topicName)
}
func (c *Cache) ShareGroupLeader(key string) (types.ShareGroupLeader, bool) {
	return c.shareLeaders.get(key)
}

// AllSubscriptions returns every cached subscription, for matching an
// incoming PUBLISH against every live filter (spec 4.9).
func (c *Cache) AllSubscriptions() []types.Subscription { return c.subscriptions.values() }

// AllTopicRewrites returns every cached rewrite rule, for the background
// rewrite task to evaluate against known topics in timestamp order.
func (c *Cache) AllTopicRewrites() []types.TopicRewrite { return c.topicRewrites.values() }

// AllTopics returns every cached topic name.
func (c *Cache) AllTopics() []types.Topic { return c.topics.values() }

// AllConnectors returns every cached connector definition, for the
// connector runtime to reconcile against its locally running plugin set.
func (c *Cache) AllConnectors() []types.Connector { return c.connectors.values() }

// AllSegmentsForShard returns every cached segment whose ShardName matches.
func (c *Cache) AllSegmentsForShard(shardName string) []types.Segment {
	var out []types.Segment
	for _, seg := range c.segments.values() {
		if seg.ShardName == shardName {
			out = append(out, seg)
		}
	}
	return out
}

// typedMap is a generic, RWMutex-guarded map, the building block every
// resource-specific index in Cache is built from.
type typedMap[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func newTypedMap[T any]() typedMap[T] {
	return typedMap[T]{items: make(map[string]T)}
}

func (m *typedMap[T]) set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *typedMap[T]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *typedMap[T]) get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *typedMap[T]) values() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	return out
}
