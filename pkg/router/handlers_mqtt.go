package router

import (
	"fmt"

	"github.com/robustmq/robustmq/pkg/kv"
	"github.com/robustmq/robustmq/pkg/types"
)

func handleMqttSetUser(r *Router, payload []byte) (any, error) {
	user, err := decode[types.User](payload)
	if err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return r.putJSON(kv.CFMQTT, userKey(user.Username), user)
}

func handleMqttDeleteUser(r *Router, payload []byte) (any, error) {
	username, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode username: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, userKey(username))
}

func handleMqttSetTopic(r *Router, payload []byte) (any, error) {
	topic, err := decode[types.Topic](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic: %w", err)
	}
	return r.putJSON(kv.CFMQTT, topicKey(topic.TopicName), topic)
}

func handleMqttDeleteTopic(r *Router, payload []byte) (any, error) {
	topicName, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic name: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, topicKey(topicName))
}

func handleMqttSetRetainMessage(r *Router, payload []byte) (any, error) {
	retain, err := decode[types.RetainMessage](payload)
	if err != nil {
		return nil, fmt.Errorf("decode retain message: %w", err)
	}
	return r.putJSON(kv.CFMQTT, retainKey(retain.TopicName), retain)
}

func handleMqttDeleteRetainMessage(r *Router, payload []byte) (any, error) {
	topicName, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic name: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, retainKey(topicName))
}

func handleMqttSetSession(r *Router, payload []byte) (any, error) {
	session, err := decode[types.Session](payload)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return r.putJSON(kv.CFMQTT, sessionKey(session.ClientID), session)
}

func handleMqttDeleteSession(r *Router, payload []byte) (any, error) {
	clientID, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode client id: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, sessionKey(clientID))
}

// handleMqttUpdateSession applies a partial session update: unlike Set it
// reads the existing session first and merges, so a caller can update e.g.
// only broker_id/connection_id on reconnect without re-sending the whole
// record.
func handleMqttUpdateSession(r *Router, payload []byte) (any, error) {
	patch, err := decode[types.Session](payload)
	if err != nil {
		return nil, fmt.Errorf("decode session patch: %w", err)
	}

	key := sessionKey(patch.ClientID)
	existing, ok, err := r.kv.Get(kv.CFMQTT, key, r.source)
	if err != nil {
		return nil, err
	}
	session := patch
	if ok {
		current, decodeErr := decode[types.Session](existing)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode existing session: %w", decodeErr)
		}
		session = mergeSession(current, patch)
	}
	return r.putJSON(kv.CFMQTT, key, session)
}

func mergeSession(current, patch types.Session) types.Session {
	merged := current
	if patch.ConnectionID != 0 {
		merged.ConnectionID = patch.ConnectionID
	}
	if patch.BrokerID != "" {
		merged.BrokerID = patch.BrokerID
	}
	if patch.ReconnectTime != nil {
		merged.ReconnectTime = patch.ReconnectTime
	}
	if patch.DistinctTime != nil {
		merged.DistinctTime = patch.DistinctTime
	}
	if patch.SessionExpiry != 0 {
		merged.SessionExpiry = patch.SessionExpiry
	}
	if patch.LastWill != nil {
		merged.LastWill = patch.LastWill
	}
	return merged
}

// LastWillRecord is the Set payload for MqttSaveLastWillMessage: a client id
// plus the will it registered at CONNECT.
type LastWillRecord struct {
	ClientID string        `json:"client_id"`
	LastWill types.LastWill `json:"last_will"`
}

func handleMqttSaveLastWillMessage(r *Router, payload []byte) (any, error) {
	record, err := decode[LastWillRecord](payload)
	if err != nil {
		return nil, fmt.Errorf("decode last will record: %w", err)
	}
	return r.putJSON(kv.CFMQTT, lastWillKey(record.ClientID), record)
}

func handleMqttSetAcl(r *Router, payload []byte) (any, error) {
	acl, err := decode[types.ACL](payload)
	if err != nil {
		return nil, fmt.Errorf("decode acl: %w", err)
	}
	return r.putJSON(kv.CFMQTT, aclKey(acl.ResourceType, acl.ResourceName, acl.Topic), acl)
}

func handleMqttDeleteAcl(r *Router, payload []byte) (any, error) {
	acl, err := decode[types.ACL](payload)
	if err != nil {
		return nil, fmt.Errorf("decode acl: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, aclKey(acl.ResourceType, acl.ResourceName, acl.Topic))
}

func handleMqttSetBlacklist(r *Router, payload []byte) (any, error) {
	blacklist, err := decode[types.Blacklist](payload)
	if err != nil {
		return nil, fmt.Errorf("decode blacklist: %w", err)
	}
	return r.putJSON(kv.CFMQTT, blacklistKey(string(blacklist.Type), blacklist.ResourceName), blacklist)
}

func handleMqttDeleteBlacklist(r *Router, payload []byte) (any, error) {
	blacklist, err := decode[types.Blacklist](payload)
	if err != nil {
		return nil, fmt.Errorf("decode blacklist: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, blacklistKey(string(blacklist.Type), blacklist.ResourceName))
}

func handleMqttCreateTopicRewriteRule(r *Router, payload []byte) (any, error) {
	rule, err := decode[types.TopicRewrite](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic rewrite rule: %w", err)
	}
	return r.putJSON(kv.CFMQTT, topicRewriteKey(string(rule.Action), rule.Source), rule)
}

func handleMqttDeleteTopicRewriteRule(r *Router, payload []byte) (any, error) {
	rule, err := decode[types.TopicRewrite](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic rewrite rule: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, topicRewriteKey(string(rule.Action), rule.Source))
}

func handleMqttSetSubscribe(r *Router, payload []byte) (any, error) {
	sub, err := decode[types.Subscription](payload)
	if err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return r.putJSON(kv.CFMQTT, subscribeKey(sub.ClientID, sub.FilterPath), sub)
}

// SubscribeRef names one subscription by its composite key, the Delete
// payload shape for MqttDeleteSubscribe.
type SubscribeRef struct {
	ClientID   string `json:"client_id"`
	FilterPath string `json:"filter_path"`
}

func handleMqttDeleteSubscribe(r *Router, payload []byte) (any, error) {
	ref, err := decode[SubscribeRef](payload)
	if err != nil {
		return nil, fmt.Errorf("decode subscribe ref: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, subscribeKey(ref.ClientID, ref.FilterPath))
}

func handleMqttSetConnector(r *Router, payload []byte) (any, error) {
	connector, err := decode[types.Connector](payload)
	if err != nil {
		return nil, fmt.Errorf("decode connector: %w", err)
	}
	return r.putJSON(kv.CFMQTT, connectorKey(connector.ConnectorName), connector)
}

func handleMqttDeleteConnector(r *Router, payload []byte) (any, error) {
	connectorName, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode connector name: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, connectorKey(connectorName))
}

func handleMqttSetAutoSubscribeRule(r *Router, payload []byte) (any, error) {
	rule, err := decode[types.AutoSubscribe](payload)
	if err != nil {
		return nil, fmt.Errorf("decode auto subscribe rule: %w", err)
	}
	return r.putJSON(kv.CFMQTT, autoSubscribeKey(rule.Topic), rule)
}

func handleMqttDeleteAutoSubscribeRule(r *Router, payload []byte) (any, error) {
	topic, err := decode[string](payload)
	if err != nil {
		return nil, fmt.Errorf("decode topic: %w", err)
	}
	return r.deleteKey(kv.CFMQTT, autoSubscribeKey(topic))
}

func handleMqttSetShareGroupLeader(r *Router, payload []byte) (any, error) {
	leader, err := decode[types.ShareGroupLeader](payload)
	if err != nil {
		return nil, fmt.Errorf("decode share group leader: %w", err)
	}
	return r.putJSON(kv.CFMQTT, shareGroupLeaderKey(leader.GroupName, leader.FilterPath), leader)
}
