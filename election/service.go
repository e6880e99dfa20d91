package election

import (
	"context"
	"sync"
	"time"
)

// Service runs an Engine in a background control loop: a follower retries acquisition every
// RetryInterval and the leader renews every RenewalInterval. A failed renewal demotes
// immediately; acquisition is retried on the next tick.
//
// Start and Stop are idempotent and may be called concurrently. After Close every operation
// returns ErrDisposed.
type Service struct {
	engine *Engine

	runMu    sync.Mutex
	loop     *controlLoop
	disposed bool
}

type controlLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a stopped service for participant in election.
func NewService(store LeaseStore, election, participant string, config Config, opts ...Option) (*Service, error) {
	var engine, err = NewEngine(store, election, participant, config, opts...)
	if err != nil {
		return nil, err
	}

	return &Service{engine: engine}, nil
}

// Start launches the control loop. It returns without waiting for the first attempt.
//
// Context handling: the caller's context is only checked for cancellation. The loop runs
// with a separate context.Background() and is stopped by Stop or Close.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.loop != nil {
		return nil
	}

	var loopCtx, cancel = context.WithCancel(context.Background())
	s.loop = &controlLoop{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(loopCtx, s.loop.done)

	s.engine.options.logger.Info("started leader election",
		"lease_duration", s.engine.config.LeaseDuration,
		"renewal_interval", s.engine.config.RenewalInterval,
		"retry_interval", s.engine.config.RetryInterval)

	return nil
}

// Stop ends the control loop, waits for an in-flight tick within ctx, then releases the
// lease if held. When ctx ends before the loop does, Stop stops waiting, still attempts the
// release within OperationTimeout, and returns the context error.
func (s *Service) Stop(ctx context.Context) error {
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.stop(ctx)
}

// Close stops the service, releases its lease and closes subscriber channels.
// Closing twice is a no-op.
func (s *Service) Close() error {
	s.runMu.Lock()
	if s.disposed {
		s.runMu.Unlock()
		return nil
	}
	s.disposed = true
	s.runMu.Unlock()

	var ctx, cancel = context.WithTimeout(context.Background(), 2*s.engine.config.OperationTimeout)
	defer cancel()

	var err = s.stop(ctx)
	s.engine.notifier.closeAll()

	return err
}

// IsRunning reports whether the control loop is running.
func (s *Service) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	return s.loop != nil
}

// Election returns the election name.
func (s *Service) Election() string {
	return s.engine.Election()
}

// ParticipantID returns this participant's id.
func (s *Service) ParticipantID() string {
	return s.engine.ParticipantID()
}

// IsLeader reports whether this participant currently leads.
func (s *Service) IsLeader() bool {
	return s.engine.IsLeader()
}

// CurrentLeader returns the lease held by this participant, if it leads.
func (s *Service) CurrentLeader() (LeaderInfo, bool) {
	return s.engine.CurrentLeader()
}

// GetCurrentLeader asks the store who leads the election.
func (s *Service) GetCurrentLeader(ctx context.Context) (*LeaderInfo, error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	return s.engine.GetCurrentLeader(ctx)
}

// TryAcquireLeadership makes one acquisition attempt outside the control loop.
func (s *Service) TryAcquireLeadership(ctx context.Context) (bool, error) {
	if s.isDisposed() {
		return false, ErrDisposed
	}
	return s.engine.TryAcquireLeadership(ctx)
}

// AcquireLeadership makes one acquisition attempt and fails with ErrLeaseHeld when another
// participant leads.
func (s *Service) AcquireLeadership(ctx context.Context) error {
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.engine.AcquireLeadership(ctx)
}

// ReleaseLeadership gives up leadership. A running loop keeps competing and may acquire
// again on its next tick.
func (s *Service) ReleaseLeadership(ctx context.Context) error {
	if s.isDisposed() {
		return ErrDisposed
	}
	return s.engine.ReleaseLeadership(ctx)
}

// OnLeadershipChanged registers a callback and returns a function that removes it.
func (s *Service) OnLeadershipChanged(callback LeadershipCallback) (func(), error) {
	if s.isDisposed() {
		return nil, ErrDisposed
	}
	return s.engine.OnLeadershipChanged(callback), nil
}

// Subscribe returns a bounded channel of leadership events and a function that closes it.
// The channel is also closed by Close.
func (s *Service) Subscribe(buffer int) (<-chan LeadershipChangedEvent, func(), error) {
	if s.isDisposed() {
		return nil, nil, ErrDisposed
	}
	var events, unsubscribe = s.engine.Subscribe(buffer)
	return events, unsubscribe, nil
}

func (s *Service) isDisposed() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	return s.disposed
}

func (s *Service) stop(ctx context.Context) error {
	s.runMu.Lock()
	var loop = s.loop
	s.loop = nil
	s.runMu.Unlock()

	var stopErr error
	if loop != nil {
		loop.cancel()

		select {
		case <-loop.done:
			s.engine.options.logger.Info("stopped leader election")
		case <-ctx.Done():
			stopErr = ctx.Err()
			s.engine.options.logger.Warn("control loop did not stop in time", "error", stopErr)
		}
	}

	var releaseCtx = ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.engine.config.OperationTimeout)
		defer cancel()
	}

	if err := s.engine.ReleaseLeadership(releaseCtx); err != nil {
		s.engine.options.logger.Warn("failed to release leadership on stop", "error", err)
	}

	return stopErr
}

// run is the control loop. Only cancellation ends it.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var first = true
	for {
		s.tick(ctx, first)
		first = false

		var timer = s.engine.options.clock.NewTimer(s.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

func (s *Service) tick(ctx context.Context, first bool) {
	var engine = s.engine

	if engine.holdsLease() {
		if _, err := engine.TryRenewLeadership(ctx); err != nil && ctx.Err() == nil {
			engine.options.logger.Error("renewal attempt failed", "error", err)
		}
		return
	}

	if first || !engine.config.DisableContinuousCheck {
		if _, err := engine.TryAcquireLeadership(ctx); err != nil && ctx.Err() == nil {
			engine.options.logger.Error("acquisition attempt failed", "error", err)
		}
	}
}

func (s *Service) nextInterval() time.Duration {
	if s.engine.IsLeader() {
		return s.engine.config.RenewalInterval
	}
	return s.engine.config.RetryInterval
}
