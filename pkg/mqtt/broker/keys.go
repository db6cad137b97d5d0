package broker

import (
	"fmt"

	"github.com/robustmq/robustmq/pkg/types"
)

// Cache update keys mirror pkg/router/keys.go's key-building helpers
// verbatim: a cache.Update's Key is the identical raw KV key string the
// router wrote under, so a broker reading the cache must build the same
// string to find it.

func subscribeKeyFor(clientID, filterPath string) string {
	return fmt.Sprintf("mqtt/subscribe/%s/%s", clientID, filterPath)
}

func blacklistKeyFor(blacklistType types.BlacklistType, resourceName string) string {
	return fmt.Sprintf("mqtt/blacklist/%s/%s", blacklistType, resourceName)
}

func aclKeyFor(resourceType, resourceName, topic string) string {
	return fmt.Sprintf("mqtt/acl/%s/%s/%s", resourceType, resourceName, topic)
}

func shareGroupLeaderKeyFor(groupName, filterPath string) string {
	return fmt.Sprintf("mqtt/share_leader/%s/%s", groupName, filterPath)
}
