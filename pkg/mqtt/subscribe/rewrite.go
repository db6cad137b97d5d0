package subscribe

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/types"
)

// rewriteInterval is how often the background task re-evaluates rewrite
// rules against known topics, the same cadence class as the teacher's
// reconciler loop (a fixed-interval full re-scan, not event-driven).
const rewriteInterval = 10 * time.Second

// RulesSource supplies the rewrite rules and topic names a Rewriter
// evaluates each cycle — implemented by *cache.Cache in the running broker.
type RulesSource interface {
	AllTopicRewrites() []types.TopicRewrite
	AllTopics() []types.Topic
}

// compiledRule is one TopicRewrite rule with its regex pre-compiled.
type compiledRule struct {
	rule types.TopicRewrite
	re   *regexp.Regexp
}

// Rewriter periodically diffs known topics against rewrite rules (ordered
// by rule timestamp, first match wins) and records the resulting
// source-to-destination mapping, mirroring pkg/reconciler.Reconciler's
// ticker-driven "list state, diff, act" loop retargeted from cluster
// nodes/tasks to MQTT topics/rewrite rules.
type Rewriter struct {
	source RulesSource

	mu      sync.RWMutex
	rewrite map[string]map[types.RewriteAction]string // topic -> action -> dest

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRewriter builds a Rewriter reading rules and topics from source.
func NewRewriter(source RulesSource) *Rewriter {
	return &Rewriter{
		source:  source,
		rewrite: make(map[string]map[types.RewriteAction]string),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the periodic re-evaluation loop.
func (r *Rewriter) Start() {
	go r.run()
}

// Stop halts the loop and waits for it to exit.
func (r *Rewriter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Rewriter) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(rewriteInterval)
	defer ticker.Stop()

	r.evaluate()
	for {
		select {
		case <-ticker.C:
			r.evaluate()
		case <-r.stopCh:
			return
		}
	}
}

// evaluate recompiles every rule and recomputes the rewrite table from
// scratch; rule sets are small enough that a full re-scan each cycle is
// simpler than incremental diffing and matches the reconciler's own
// full-rescan style.
func (r *Rewriter) evaluate() {
	rules := r.source.AllTopicRewrites()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Timestamp < rules[j].Timestamp })

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			log.WithComponent("mqtt-subscribe").Warn().
				Str("rule_source", rule.Source).Err(err).Msg("skipping rewrite rule with invalid regex")
			continue
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}

	next := make(map[string]map[types.RewriteAction]string)
	for _, topic := range r.source.AllTopics() {
		for _, cr := range compiled {
			if !cr.re.MatchString(topic.TopicName) {
				continue
			}
			dest := cr.re.ReplaceAllString(topic.TopicName, cr.rule.Dest)
			if next[topic.TopicName] == nil {
				next[topic.TopicName] = make(map[types.RewriteAction]string)
			}
			next[topic.TopicName][cr.rule.Action] = dest
			break // first matching rule (by timestamp order) wins per topic
		}
	}

	r.mu.Lock()
	r.rewrite = next
	r.mu.Unlock()
}

// Rewrite returns the destination topic for source under action, applying
// whichever rule matched action or RewriteActionAll. ok is false when no
// rule applies and the caller should use source unchanged.
func (r *Rewriter) Rewrite(source string, action types.RewriteAction) (dest string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perAction, found := r.rewrite[source]
	if !found {
		return "", false
	}
	if dest, ok := perAction[action]; ok {
		return dest, true
	}
	if dest, ok := perAction[types.RewriteActionAll]; ok {
		return dest, true
	}
	return "", false
}
