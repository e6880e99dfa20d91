// Package metrics records operational metrics for hash rings and leader elections.
package metrics

import "time"

// Collector receives metric events from rings and election services.
// Implementations must be safe for concurrent use and must not block.
type Collector interface {
	RingMetrics
	ElectionMetrics
}

// RingMetrics covers hash ring topology and history.
type RingMetrics interface {
	// RecordRingTopology sets the current server and virtual node counts for a ring.
	RecordRingTopology(ring string, servers, virtualNodes int)

	// RecordHistorySize sets the number of stored configuration snapshots for a ring.
	RecordHistorySize(ring string, size int)

	// RecordSnapshotEviction counts a snapshot dropped by the evict-oldest policy.
	RecordSnapshotEviction(ring string)
}

// ElectionMetrics covers leader election status and transitions.
type ElectionMetrics interface {
	// RecordLeaderStatus sets 1 when the participant leads the election, 0 otherwise.
	RecordLeaderStatus(election, participant string, isLeader bool)

	// RecordLeaderTransition counts a "gained" or "lost" transition.
	RecordLeaderTransition(election, participant, transition string)

	// RecordLeadershipDuration observes how long the participant held leadership.
	RecordLeadershipDuration(election, participant string, held time.Duration)

	// RecordElectionError counts a failed store operation ("acquire", "renew", "release").
	RecordElectionError(election, participant, operation string)
}
