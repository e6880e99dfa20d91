package hashring

import (
	"slices"
	"sync"
)

// OverflowPolicy decides what happens when a snapshot is added to a full history.
type OverflowPolicy int

const (
	// RejectOnOverflow fails the add with a HistoryLimitExceededError.
	RejectOnOverflow OverflowPolicy = iota

	// EvictOldest drops the oldest snapshot to make room.
	EvictOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case RejectOnOverflow:
		return "reject"
	case EvictOldest:
		return "evict-oldest"
	default:
		return "unknown"
	}
}

// History is a bounded, oldest-first buffer of configuration snapshots.
// Its length never exceeds MaxSize.
type History struct {
	mu        sync.RWMutex
	maxSize   int
	snapshots []*ConfigurationSnapshot
}

// NewHistory creates an empty history holding at most maxSize snapshots.
func NewHistory(maxSize int) (*History, error) {
	if maxSize < 1 {
		return nil, ErrInvalidHistorySize
	}

	return &History{
		maxSize:   maxSize,
		snapshots: make([]*ConfigurationSnapshot, 0, maxSize),
	}, nil
}

// Add appends a snapshot. When the history is full, RejectOnOverflow returns a
// *HistoryLimitExceededError and leaves the history unchanged, while EvictOldest drops the
// oldest snapshot and returns it.
func (h *History) Add(snapshot *ConfigurationSnapshot, policy OverflowPolicy) (*ConfigurationSnapshot, error) {
	if snapshot == nil {
		return nil, ErrInvalidSnapshot
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var evicted *ConfigurationSnapshot
	if len(h.snapshots) >= h.maxSize {
		if policy != EvictOldest {
			return nil, &HistoryLimitExceededError{MaxSize: h.maxSize, CurrentCount: len(h.snapshots)}
		}

		evicted = h.snapshots[0]
		h.snapshots[0] = nil
		h.snapshots = append(h.snapshots[:0], h.snapshots[1:]...)
	}

	h.snapshots = append(h.snapshots, snapshot)
	return evicted, nil
}

// Clear removes all snapshots.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.snapshots)
	h.snapshots = h.snapshots[:0]
}

// Snapshots returns the stored snapshots oldest first.
func (h *History) Snapshots() []*ConfigurationSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Clone(h.snapshots)
}

// SnapshotsReverse returns the stored snapshots newest first.
func (h *History) SnapshotsReverse() []*ConfigurationSnapshot {
	var snapshots = h.Snapshots()
	slices.Reverse(snapshots)
	return snapshots
}

// Latest returns the newest snapshot, if any.
func (h *History) Latest() (*ConfigurationSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.snapshots) == 0 {
		return nil, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.snapshots)
}

func (h *History) MaxSize() int {
	return h.maxSize
}

// RemainingCapacity returns how many snapshots can be added before the history is full.
func (h *History) RemainingCapacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.maxSize - len(h.snapshots)
}
