package hashring

import (
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"go-coordination/metrics"
)

// DefaultVirtualNodeCount is the virtual node count used when Add is called without one.
const DefaultVirtualNodeCount = 42

// DefaultMaxHistorySize is the history bound used by WithHistory when given a size below 1.
const DefaultMaxHistorySize = 3

// options configures the Ring behavior (internal only).
type options struct {
	name             string
	virtualNodeCount int
	algorithm        HashAlgorithm
	historyEnabled   bool
	maxHistorySize   int
	overflowPolicy   OverflowPolicy
	logger           *slog.Logger
	clock            clockwork.Clock
	metrics          metrics.RingMetrics
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		name:             "default",
		virtualNodeCount: DefaultVirtualNodeCount,
		algorithm:        MD5,
		historyEnabled:   false,
		maxHistorySize:   DefaultMaxHistorySize,
		overflowPolicy:   RejectOnOverflow,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:            clockwork.NewRealClock(),
		metrics:          metrics.NewNop(),
	}
}

// Option is a functional option for configuring a Ring.
type Option func(*options)

// WithName sets the ring name used in logs and metric labels.
// DEFAULT: "default"
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithVirtualNodeCount sets the virtual node count used by Add when no count is given.
// DEFAULT: 42
func WithVirtualNodeCount(count int) Option {
	return func(o *options) {
		o.virtualNodeCount = count
	}
}

// WithHashAlgorithm sets the algorithm for both virtual node positions and keys.
// DEFAULT: MD5
func WithHashAlgorithm(alg HashAlgorithm) Option {
	return func(o *options) {
		o.algorithm = alg
	}
}

// WithHistory enables configuration snapshots bounded by maxSize.
// A maxSize below 1 keeps the default bound of 3.
// DEFAULT: history disabled
func WithHistory(maxSize int) Option {
	return func(o *options) {
		o.historyEnabled = true
		if maxSize >= 1 {
			o.maxHistorySize = maxSize
		}
	}
}

// WithOverflowPolicy sets what CreateConfigurationSnapshot does when the history is full.
// DEFAULT: RejectOnOverflow
func WithOverflowPolicy(policy OverflowPolicy) Option {
	return func(o *options) {
		o.overflowPolicy = policy
	}
}

// WithLogger sets the logger for the ring.
// If the logger is nil, the ring will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}

// WithClock sets the clock used to timestamp snapshots.
// DEFAULT: the real clock
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics sets the metrics collector.
// DEFAULT: metrics.Nop
func WithMetrics(collector metrics.RingMetrics) Option {
	return func(o *options) {
		if collector != nil {
			o.metrics = collector
		}
	}
}
