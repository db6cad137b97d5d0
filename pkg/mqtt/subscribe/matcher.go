// Package subscribe is the MQTT subscription engine (spec 4.9): topic
// filter matching, the four subscription variants (exclusive, share-leader,
// share-follower, auto-subscribe), retained-message delivery, topic
// rewriting, and subscription-identifier aggregation for outgoing PUBLISH
// packets.
package subscribe

import "strings"

// shareGroupPrefix marks a shared-subscription filter per the MQTT 5
// "$share/{group}/{filter}" convention.
const shareGroupPrefix = "$share/"

// Matches reports whether topic satisfies filter under the standard MQTT
// wildcard rules: '+' matches exactly one level, '#' (only legal as the
// final level) matches that level and everything beneath it. A filter
// starting with '$' (e.g. "$SYS/...") only matches a topic with the same
// leading '$' segment, never a bare '+' or '#' at that position.
func Matches(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	if len(filterLevels) > 0 && strings.HasPrefix(filterLevels[0], "$") {
		if len(topicLevels) == 0 || topicLevels[0] != filterLevels[0] {
			return false
		}
	}
	if strings.HasPrefix(topicLevels[0], "$") && (filterLevels[0] == "+" || filterLevels[0] == "#") {
		return false
	}

	return matchLevels(filterLevels, topicLevels)
}

func matchLevels(filterLevels, topicLevels []string) bool {
	for i, fl := range filterLevels {
		if fl == "#" {
			return true // matches this level and everything beneath, must be last
		}
		if i >= len(topicLevels) {
			return false
		}
		if fl != "+" && fl != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}

// SplitShareGroup parses a subscription path of the form
// "$share/{group}/{filter}" into its group name and underlying topic
// filter. ok is false for a non-shared filter, in which case group and
// realFilter are the zero value and the original filter respectively.
func SplitShareGroup(path string) (group, realFilter string, ok bool) {
	if !strings.HasPrefix(path, shareGroupPrefix) {
		return "", path, false
	}
	rest := path[len(shareGroupPrefix):]
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", path, false
	}
	return rest[:idx], rest[idx+1:], true
}
