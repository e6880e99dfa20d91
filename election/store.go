package election

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// LeaseStore persists election leases.
//
// Implementations must make TryAcquireLease a single conditional write: among callers racing
// for the same election, at most one may succeed while a live lease exists. An expired lease
// counts as absent. A nil *LeaderInfo with a nil error means "not granted" or "none".
type LeaseStore interface {
	// TryAcquireLease grants the election to participant if no live lease exists or the live
	// lease already belongs to participant. A holder that acquires again keeps its AcquiredAt.
	TryAcquireLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error)

	// TryRenewLease extends a live lease held by participant. A nil metadata keeps the stored one.
	TryRenewLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error)

	// ReleaseLease deletes the lease if participant holds it and reports whether it did.
	ReleaseLease(ctx context.Context, election, participant string) (bool, error)

	// GetCurrentLease returns the live lease of the election, if any.
	GetCurrentLease(ctx context.Context, election string) (*LeaderInfo, error)

	// HasValidLease reports whether the election has a live lease.
	HasValidLease(ctx context.Context, election string) (bool, error)
}

// storeOptions configures the bundled lease stores (internal only).
type storeOptions struct {
	clock     clockwork.Clock
	keyPrefix string
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		clock:     clockwork.NewRealClock(),
		keyPrefix: "election",
	}
}

// StoreOption is a functional option for configuring a lease store.
type StoreOption func(*storeOptions)

// WithStoreClock sets the clock used for lease timestamps.
// DEFAULT: the real clock
func WithStoreClock(clock clockwork.Clock) StoreOption {
	return func(o *storeOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithKeyPrefix sets the key prefix used by RedisStore.
// DEFAULT: "election"
func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.keyPrefix = prefix
	}
}

func validateElection(election string) error {
	if strings.TrimSpace(election) == "" {
		return ErrInvalidElection
	}
	return nil
}

func validateLeaseArgs(election, participant string, duration time.Duration) error {
	if err := validateElection(election); err != nil {
		return err
	}
	if strings.TrimSpace(participant) == "" {
		return ErrInvalidParticipant
	}
	if duration <= 0 {
		return ErrInvalidDuration
	}
	return nil
}
