package election

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStore is returned when an engine is built without a lease store.
	ErrInvalidStore = errors.New("lease store cannot be nil")

	// ErrInvalidElection is returned for an empty election name.
	ErrInvalidElection = errors.New("election name cannot be empty")

	// ErrInvalidParticipant is returned for an empty participant id.
	ErrInvalidParticipant = errors.New("participant id cannot be empty")

	// ErrInvalidDuration is returned when a lease duration is not positive.
	ErrInvalidDuration = errors.New("lease duration must be positive")

	// ErrLeaseHeld is returned by AcquireLeadership when another participant holds the lease.
	ErrLeaseHeld = errors.New("lease is held by another participant")

	// ErrNotLeader is returned by RenewLeadership when the participant does not lead.
	ErrNotLeader = errors.New("participant is not the leader")

	// ErrDisposed is returned by every operation on a closed service.
	ErrDisposed = errors.New("election service is disposed")
)

// StoreError reports a failed lease store call made by an Engine.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("lease store %s failed: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
