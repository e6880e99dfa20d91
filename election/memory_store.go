package election

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process LeaseStore. It gives mutual exclusion between engines
// sharing the same instance.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]LeaderInfo
	opts   storeOptions
}

var _ LeaseStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory lease store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	var o = defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &MemoryStore{
		leases: make(map[string]LeaderInfo),
		opts:   o,
	}
}

func (s *MemoryStore) TryAcquireLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		now        = s.opts.clock.Now()
		acquiredAt = now
	)
	if existing, ok := s.leases[election]; ok && existing.IsValid(now) {
		if existing.ParticipantID != participant {
			return nil, nil
		}
		acquiredAt = existing.AcquiredAt
	}

	var lease = NewLeaderInfo(participant, acquiredAt, now.Add(duration), metadata)
	s.leases[election] = lease

	return lease.clone(), nil
}

func (s *MemoryStore) TryRenewLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		now          = s.opts.clock.Now()
		existing, ok = s.leases[election]
	)
	if !ok || !existing.IsValid(now) || existing.ParticipantID != participant {
		return nil, nil
	}

	var renewed = existing.WithExpiresAt(now.Add(duration))
	if metadata != nil {
		renewed = renewed.WithMetadata(metadata)
	}
	s.leases[election] = renewed

	return renewed.clone(), nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, election, participant string) (bool, error) {
	if err := validateElection(election); err != nil {
		return false, err
	}
	if participant == "" {
		return false, ErrInvalidParticipant
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing, ok = s.leases[election]
	if !ok || existing.ParticipantID != participant {
		return false, nil
	}

	delete(s.leases, election)
	return true, nil
}

func (s *MemoryStore) GetCurrentLease(ctx context.Context, election string) (*LeaderInfo, error) {
	if err := validateElection(election); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing, ok = s.leases[election]
	if !ok {
		return nil, nil
	}
	if !existing.IsValid(s.opts.clock.Now()) {
		delete(s.leases, election)
		return nil, nil
	}

	return existing.clone(), nil
}

func (s *MemoryStore) HasValidLease(ctx context.Context, election string) (bool, error) {
	var lease, err = s.GetCurrentLease(ctx, election)
	if err != nil {
		return false, err
	}
	return lease != nil, nil
}
