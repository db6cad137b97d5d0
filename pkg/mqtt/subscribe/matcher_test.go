package subscribe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
)

func TestMatchesExactTopic(t *testing.T) {
	assert.True(t, subscribe.Matches("a/b/c", "a/b/c"))
	assert.False(t, subscribe.Matches("a/b/c", "a/b/d"))
}

func TestMatchesSingleLevelWildcard(t *testing.T) {
	assert.True(t, subscribe.Matches("a/+/c", "a/b/c"))
	assert.False(t, subscribe.Matches("a/+/c", "a/b/x/c"))
	assert.False(t, subscribe.Matches("a/+", "a"))
}

func TestMatchesMultiLevelWildcard(t *testing.T) {
	assert.True(t, subscribe.Matches("a/#", "a"))
	assert.True(t, subscribe.Matches("a/#", "a/b"))
	assert.True(t, subscribe.Matches("a/#", "a/b/c"))
	assert.False(t, subscribe.Matches("#", "$SYS/stats"))
}

func TestMatchesDollarPrefixRequiresLiteralLeadingLevel(t *testing.T) {
	assert.True(t, subscribe.Matches("$SYS/stats", "$SYS/stats"))
	assert.False(t, subscribe.Matches("+/stats", "$SYS/stats"))
	assert.False(t, subscribe.Matches("#", "$SYS/stats"))
}

func TestSplitShareGroupParsesValidPath(t *testing.T) {
	group, filter, ok := subscribe.SplitShareGroup("$share/g1/a/b/+")
	assert.True(t, ok)
	assert.Equal(t, "g1", group)
	assert.Equal(t, "a/b/+", filter)
}

func TestSplitShareGroupRejectsNonSharedPath(t *testing.T) {
	_, filter, ok := subscribe.SplitShareGroup("a/b/c")
	assert.False(t, ok)
	assert.Equal(t, "a/b/c", filter)
}

func TestSplitShareGroupRejectsMissingFilter(t *testing.T) {
	_, _, ok := subscribe.SplitShareGroup("$share/g1/")
	assert.False(t, ok)
}

func TestSplitShareGroupRejectsMissingGroup(t *testing.T) {
	_, _, ok := subscribe.SplitShareGroup("$share//a/b")
	assert.False(t, ok)
}
