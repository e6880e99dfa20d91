package metrics

import "time"

// Nop discards every metric.
type Nop struct{}

var _ Collector = Nop{}

// NewNop returns a collector that discards all metrics.
func NewNop() Nop {
	return Nop{}
}

func (Nop) RecordRingTopology(string, int, int)                    {}
func (Nop) RecordHistorySize(string, int)                          {}
func (Nop) RecordSnapshotEviction(string)                          {}
func (Nop) RecordLeaderStatus(string, string, bool)                {}
func (Nop) RecordLeaderTransition(string, string, string)          {}
func (Nop) RecordLeadershipDuration(string, string, time.Duration) {}
func (Nop) RecordElectionError(string, string, string)             {}
