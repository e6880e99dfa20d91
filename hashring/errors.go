package hashring

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidServer is returned when a server identifier is empty.
	ErrInvalidServer = errors.New("server identifier cannot be empty")

	// ErrInvalidVirtualNodeCount is returned when a virtual node count is less than 1.
	ErrInvalidVirtualNodeCount = errors.New("virtual node count must be at least 1")

	// ErrInvalidCount is returned when a requested server or candidate count is less than 1.
	ErrInvalidCount = errors.New("count must be at least 1")

	// ErrInvalidHistorySize is returned when a history is configured with a max size below 1.
	ErrInvalidHistorySize = errors.New("max history size must be at least 1")

	// ErrInvalidHashAlgorithm is returned when no hash algorithm is configured.
	ErrInvalidHashAlgorithm = errors.New("hash algorithm cannot be nil")

	// ErrInvalidSnapshot is returned when a nil snapshot is added to a history.
	ErrInvalidSnapshot = errors.New("snapshot cannot be nil")

	// ErrDigestTooShort is returned when a hash algorithm produces fewer than 4 bytes.
	ErrDigestTooShort = errors.New("hash digest must be at least 4 bytes")

	// ErrNoServers is returned when a lookup runs against a ring without servers.
	ErrNoServers = errors.New("ring has no servers")

	// ErrNoServersAnywhere is returned when neither the current configuration nor the
	// history can resolve a key.
	ErrNoServersAnywhere = errors.New("no servers in current configuration or history")

	// ErrHistoryDisabled is returned by history operations on a ring built without history.
	ErrHistoryDisabled = errors.New("configuration history is not enabled")

	// ErrHistoryLimitExceeded is wrapped by HistoryLimitExceededError.
	ErrHistoryLimitExceeded = errors.New("configuration history limit exceeded")
)

// HistoryLimitExceededError reports a rejected snapshot when the history is full.
type HistoryLimitExceededError struct {
	MaxSize      int
	CurrentCount int
}

func (e *HistoryLimitExceededError) Error() string {
	return fmt.Sprintf("%s: max size %d, current count %d", ErrHistoryLimitExceeded, e.MaxSize, e.CurrentCount)
}

func (e *HistoryLimitExceededError) Unwrap() error {
	return ErrHistoryLimitExceeded
}
