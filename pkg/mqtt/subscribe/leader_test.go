package subscribe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robustmq/robustmq/pkg/mqtt/subscribe"
)

func TestElectLeaderPicksLeastLoaded(t *testing.T) {
	brokers := []string{"b1", "b2", "b3"}
	current := map[string]string{
		"group-a": "b1",
		"group-b": "b1",
		"group-c": "b2",
	}
	assert.Equal(t, "b3", subscribe.ElectLeader(brokers, current))
}

func TestElectLeaderTiesBreakByPosition(t *testing.T) {
	brokers := []string{"b1", "b2", "b3"}
	assert.Equal(t, "b1", subscribe.ElectLeader(brokers, nil))
}

func TestElectLeaderEmptyBrokerListReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", subscribe.ElectLeader(nil, map[string]string{"g": "b1"}))
}
