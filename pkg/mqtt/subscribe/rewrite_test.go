package subscribe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
	"github.com/robustmq/robustmq/pkg/types"
)

type fakeRulesSource struct {
	rules  []types.TopicRewrite
	topics []types.Topic
}

func (f *fakeRulesSource) AllTopicRewrites() []types.TopicRewrite { return f.rules }
func (f *fakeRulesSource) AllTopics() []types.Topic               { return f.topics }

func TestRewriterAppliesFirstMatchingRuleByTimestamp(t *testing.T) {
	source := &fakeRulesSource{
		topics: []types.Topic{{TopicName: "sensors/room1/temp"}},
		rules: []types.TopicRewrite{
			{
				Action:    types.RewriteActionPublish,
				Source:    "sensors",
				Regex:     `^sensors/(\w+)/(\w+)$`,
				Dest:      `legacy/$1/$2`,
				Timestamp: 2,
			},
			{
				Action:    types.RewriteActionAll,
				Source:    "sensors",
				Regex:     `^sensors/(\w+)/(\w+)$`,
				Dest:      `v2/$1/$2`,
				Timestamp: 1,
			},
		},
	}

	r := subscribe.NewRewriter(source)
	r.Start()
	defer r.Stop()
	time.Sleep(20 * time.Millisecond)

	dest, ok := r.Rewrite("sensors/room1/temp", types.RewriteActionPublish)
	require.True(t, ok)
	assert.Equal(t, "v2/room1/temp", dest)
}

func TestRewriterFallsBackToAllAction(t *testing.T) {
	source := &fakeRulesSource{
		topics: []types.Topic{{TopicName: "a/b"}},
		rules: []types.TopicRewrite{
			{Action: types.RewriteActionAll, Source: "a", Regex: `^a/(\w+)$`, Dest: `z/$1`, Timestamp: 1},
		},
	}

	r := subscribe.NewRewriter(source)
	r.Start()
	defer r.Stop()
	time.Sleep(20 * time.Millisecond)

	dest, ok := r.Rewrite("a/b", types.RewriteActionSubscribe)
	require.True(t, ok)
	assert.Equal(t, "z/b", dest)
}

func TestRewriterNoMatchReturnsNotOK(t *testing.T) {
	source := &fakeRulesSource{topics: []types.Topic{{TopicName: "x/y"}}}
	r := subscribe.NewRewriter(source)
	r.Start()
	defer r.Stop()
	time.Sleep(20 * time.Millisecond)

	_, ok := r.Rewrite("x/y", types.RewriteActionPublish)
	assert.False(t, ok)
}
