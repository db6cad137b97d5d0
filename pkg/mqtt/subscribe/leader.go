package subscribe

// ElectLeader picks the broker that should lead a shared-subscription
// group, minimizing per-broker leader count (spec 4.9 / spec.md section 3:
// "choice minimizes per-broker leader count"). This is the same greedy
// least-loaded selection pkg/scheduler.Scheduler.selectNode performs when
// assigning containers to nodes, retargeted at assigning group leadership
// to brokers: count how many groups each candidate already leads and pick
// the one with the fewest, breaking ties by earliest position in brokerIDs
// for determinism.
func ElectLeader(brokerIDs []string, currentLeaders map[string]string) string {
	if len(brokerIDs) == 0 {
		return ""
	}

	leaderCounts := make(map[string]int, len(brokerIDs))
	for _, leaderID := range currentLeaders {
		leaderCounts[leaderID]++
	}

	selected := brokerIDs[0]
	minCount := leaderCounts[selected]
	for _, id := range brokerIDs[1:] {
		if count := leaderCounts[id]; count < minCount {
			minCount = count
			selected = id
		}
	}
	return selected
}
