package election

import (
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"go-coordination/metrics"
)

// options configures the Engine and Service behavior (internal only).
type options struct {
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics metrics.ElectionMetrics
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:   clockwork.NewRealClock(),
		metrics: metrics.NewNop(),
	}
}

// Option is a functional option for configuring an Engine or Service.
type Option func(*options)

// WithLogger sets the logger for the election.
// If the logger is nil, the election will use a no-op logger.
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

// WithClock sets the clock driving lease validity checks and the control loop timers.
// DEFAULT: the real clock
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics sets the collector receiving election metrics.
// DEFAULT: metrics.Nop
func WithMetrics(m metrics.ElectionMetrics) Option {
	return func(o *options) {
		if m == nil {
			o.metrics = metrics.NewNop()
			return
		}

		o.metrics = m
	}
}
