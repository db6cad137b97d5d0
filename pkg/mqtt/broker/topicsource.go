package broker

import (
	"context"

	journalclient "github.com/robustmq/robustmq/pkg/journal/client"
	"github.com/robustmq/robustmq/pkg/types"
)

// journalTopicSource implements subscribe.TopicSource by reading one
// record at a time from a topic's backing shard. A topic's shard name is
// the topic name itself (one shard per topic, the broker's auto-
// provisioning simplification documented in the design notes), so no
// extra lookup table is needed beyond the journal client's own
// shard-to-segment resolution.
type journalTopicSource struct {
	journal *journalclient.Client
}

// NewTopicSource builds the subscribe.TopicSource a subscribe.Engine needs,
// ahead of constructing the Broker itself.
func NewTopicSource(journal *journalclient.Client) *journalTopicSource {
	return &journalTopicSource{journal: journal}
}

func (s *journalTopicSource) ReadFrom(ctx context.Context, topicName string, offset uint64) (types.Record, uint64, bool, error) {
	records, err := s.journal.ReadByOffset(ctx, journalNamespace, topicName, offset, 1, 0)
	if err != nil {
		return types.Record{}, offset, false, err
	}
	if len(records) == 0 {
		return types.Record{}, offset, false, nil
	}
	out := records[0]
	rec := types.Record{
		Offset:    out.Offset,
		Key:       out.Key,
		Value:     out.Value,
		Tags:      out.Tags,
		Header:    out.Header,
		Timestamp: out.Timestamp,
	}
	return rec, out.Offset + 1, true, nil
}
