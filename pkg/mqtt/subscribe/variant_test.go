package subscribe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
)

func TestClassifyNonSharedIsExclusive(t *testing.T) {
	variant, group, filter := subscribe.Classify("a/b", true)
	assert.Equal(t, subscribe.VariantExclusive, variant)
	assert.Empty(t, group)
	assert.Equal(t, "a/b", filter)
}

func TestClassifySharedLeader(t *testing.T) {
	variant, group, filter := subscribe.Classify("$share/g1/a/b", true)
	assert.Equal(t, subscribe.VariantShareLeader, variant)
	assert.Equal(t, "g1", group)
	assert.Equal(t, "a/b", filter)
}

func TestClassifySharedFollower(t *testing.T) {
	variant, group, filter := subscribe.Classify("$share/g1/a/b", false)
	assert.Equal(t, subscribe.VariantShareFollower, variant)
	assert.Equal(t, "g1", group)
	assert.Equal(t, "a/b", filter)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "exclusive", subscribe.VariantExclusive.String())
	assert.Equal(t, "share-leader", subscribe.VariantShareLeader.String())
	assert.Equal(t, "share-follower", subscribe.VariantShareFollower.String())
	assert.Equal(t, "auto-subscribe", subscribe.VariantAutoSubscribe.String())
}
