package election

import (
	"fmt"
	"maps"
	"time"
)

const (
	// MinLeaseDuration is the floor applied to Config.LeaseDuration.
	MinLeaseDuration = 100 * time.Millisecond

	// DefaultOperationTimeout bounds a single lease store call when none is configured.
	DefaultOperationTimeout = 5 * time.Second
)

// Config holds the timing and metadata of one participant in an election.
type Config struct {
	// LeaseDuration is how long an acquired or renewed lease stays valid.
	LeaseDuration time.Duration `yaml:"leaseDuration" default:"15s"`

	// RenewalInterval is how often the leader renews. Must be below LeaseDuration.
	RenewalInterval time.Duration `yaml:"renewalInterval" default:"5s"`

	// RetryInterval is how often a follower retries acquisition. Must be below LeaseDuration.
	RetryInterval time.Duration `yaml:"retryInterval" default:"2s"`

	// OperationTimeout bounds each lease store call.
	OperationTimeout time.Duration `yaml:"operationTimeout" default:"5s"`

	// DisableContinuousCheck stops followers from retrying after the first attempt.
	// The leader still renews.
	DisableContinuousCheck bool `yaml:"disableContinuousCheck"`

	// Metadata is attached to the lease while held.
	Metadata map[string]string `yaml:"metadata"`
}

// DefaultConfig returns the default election timings.
func DefaultConfig() Config {
	var leaseDuration = 15 * time.Second
	return Config{
		LeaseDuration:    leaseDuration,
		RenewalInterval:  leaseDuration / 3,
		RetryInterval:    2 * time.Second,
		OperationTimeout: DefaultOperationTimeout,
	}
}

// Normalize corrects invalid values instead of rejecting them and reports each correction.
//   - LeaseDuration below MinLeaseDuration is raised to MinLeaseDuration.
//   - RenewalInterval that is not positive or not below LeaseDuration becomes LeaseDuration/3.
//   - RetryInterval that is not positive or not below LeaseDuration becomes LeaseDuration/2.
//   - OperationTimeout that is not positive becomes DefaultOperationTimeout.
func (c Config) Normalize() (Config, []string) {
	var (
		normalized  = c
		corrections []string
	)
	normalized.Metadata = maps.Clone(c.Metadata)

	if normalized.LeaseDuration < MinLeaseDuration {
		corrections = append(corrections, fmt.Sprintf("lease duration %s raised to %s", normalized.LeaseDuration, MinLeaseDuration))
		normalized.LeaseDuration = MinLeaseDuration
	}

	if normalized.RenewalInterval <= 0 || normalized.RenewalInterval >= normalized.LeaseDuration {
		var corrected = normalized.LeaseDuration / 3
		corrections = append(corrections, fmt.Sprintf("renewal interval %s corrected to %s", normalized.RenewalInterval, corrected))
		normalized.RenewalInterval = corrected
	}

	if normalized.RetryInterval <= 0 || normalized.RetryInterval >= normalized.LeaseDuration {
		var corrected = normalized.LeaseDuration / 2
		corrections = append(corrections, fmt.Sprintf("retry interval %s corrected to %s", normalized.RetryInterval, corrected))
		normalized.RetryInterval = corrected
	}

	if normalized.OperationTimeout <= 0 {
		corrections = append(corrections, fmt.Sprintf("operation timeout %s corrected to %s", normalized.OperationTimeout, DefaultOperationTimeout))
		normalized.OperationTimeout = DefaultOperationTimeout
	}

	return normalized, corrections
}
