package router

import "fmt"

// Key-building helpers, one per stable prefix named by spec 4.1: hierarchical,
// slash-separated, family-scoped so a single prefix scan lists one entity
// kind.
func clusterKey(clusterName string) string { return fmt.Sprintf("cluster/%s", clusterName) }

func nodeKey(nodeID string) string { return fmt.Sprintf("cluster/node/%s", nodeID) }

func kvKey(key string) string { return fmt.Sprintf("kv/%s", key) }

func schemaKey(name string) string { return fmt.Sprintf("meta/schema/%s", name) }

func schemaBindKey(schemaName, resourceID string) string {
	return fmt.Sprintf("meta/schema_bind/%s/%s", schemaName, resourceID)
}

func resourceConfigKey(resourceKey string) string { return fmt.Sprintf("config/%s", resourceKey) }

func idempotentKey(clientID string, pkid uint64) string {
	return fmt.Sprintf("meta/idempotent/%s/%d", clientID, pkid)
}

func offsetKey(group, shard string) string { return fmt.Sprintf("offset/%s/%s", group, shard) }

func shardKey(shardName string) string { return fmt.Sprintf("journal/shard/%s", shardName) }

func segmentKey(shardName string, seq uint64) string {
	return fmt.Sprintf("journal/segment/%s/%d", shardName, seq)
}

func segmentMetaKey(shardName string, seq uint64) string {
	return fmt.Sprintf("journal/segment_meta/%s/%d", shardName, seq)
}

func userKey(username string) string { return fmt.Sprintf("mqtt/user/%s", username) }

func topicKey(topicName string) string { return fmt.Sprintf("mqtt/topic/%s", topicName) }

func retainKey(topicName string) string { return fmt.Sprintf("mqtt/retain/%s", topicName) }

func sessionKey(clientID string) string { return fmt.Sprintf("mqtt/session/%s", clientID) }

func lastWillKey(clientID string) string { return fmt.Sprintf("mqtt/last_will/%s", clientID) }

func aclKey(resourceType, resourceName, topic string) string {
	return fmt.Sprintf("mqtt/acl/%s/%s/%s", resourceType, resourceName, topic)
}

func blacklistKey(blacklistType, resourceName string) string {
	return fmt.Sprintf("mqtt/blacklist/%s/%s", blacklistType, resourceName)
}

func topicRewriteKey(action, source string) string {
	return fmt.Sprintf("mqtt/topic_rewrite/%s/%s", action, source)
}

func subscribeKey(clientID, filterPath string) string {
	return fmt.Sprintf("mqtt/subscribe/%s/%s", clientID, filterPath)
}

func connectorKey(connectorName string) string { return fmt.Sprintf("mqtt/connector/%s", connectorName) }

func autoSubscribeKey(topic string) string { return fmt.Sprintf("mqtt/auto_subscribe/%s", topic) }

func shareGroupLeaderKey(groupName, filterPath string) string {
	return fmt.Sprintf("mqtt/share_leader/%s/%s", groupName, filterPath)
}
