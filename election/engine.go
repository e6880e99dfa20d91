package election

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine drives one participant's leadership of a named election against a LeaseStore.
// It makes single attempts only; Service adds the background control loop.
//
// Transitions (acquire, renew, release) are serialized, and leadership notifications are
// delivered while the transition is still held, so observers see them in order.
type Engine struct {
	store       LeaseStore
	election    string
	participant string
	config      Config
	options     options
	notifier    *notifier

	// transition is a one-slot semaphore so waiting for it can honor a context.
	transition chan struct{}

	mu          sync.RWMutex
	isLeader    bool
	lease       *LeaderInfo
	leaderSince time.Time
}

// NewEngine creates an engine for participant in election. The config is normalized and
// every correction is logged.
func NewEngine(store LeaseStore, election, participant string, config Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrInvalidStore
	}
	if err := validateElection(election); err != nil {
		return nil, err
	}
	if strings.TrimSpace(participant) == "" {
		return nil, ErrInvalidParticipant
	}

	var o = defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("election", election, "participant_id", participant)

	var normalized, corrections = config.Normalize()
	for _, correction := range corrections {
		o.logger.Warn("corrected election config", "correction", correction)
	}

	o.metrics.RecordLeaderStatus(election, participant, false)

	return &Engine{
		store:       store,
		election:    election,
		participant: participant,
		config:      normalized,
		options:     o,
		notifier:    newNotifier(o.logger),
		transition:  make(chan struct{}, 1),
	}, nil
}

// NewParticipantID returns a participant id made of the host name and a random suffix.
func NewParticipantID() string {
	var host, err = os.Hostname()
	if err != nil || host == "" {
		host = "participant"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[0:8])
}

// Election returns the election name.
func (e *Engine) Election() string {
	return e.election
}

// ParticipantID returns this participant's id.
func (e *Engine) ParticipantID() string {
	return e.participant
}

// Config returns the normalized config.
func (e *Engine) Config() Config {
	return e.config
}

// IsLeader reports whether this participant holds a lease that has not expired locally.
func (e *Engine) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader && e.lease.IsValid(e.options.clock.Now())
}

// holdsLease reports the leadership flag, ignoring local expiry.
func (e *Engine) holdsLease() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}

// CurrentLeader returns the lease held by this participant, if it leads.
func (e *Engine) CurrentLeader() (LeaderInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.isLeader || !e.lease.IsValid(e.options.clock.Now()) {
		return LeaderInfo{}, false
	}
	return *e.lease.clone(), true
}

// GetCurrentLeader asks the store for the live lease of the election, whoever holds it.
func (e *Engine) GetCurrentLeader(ctx context.Context) (*LeaderInfo, error) {
	var lease, err = callStore(ctx, e.config.OperationTimeout, func(ctx context.Context) (*LeaderInfo, error) {
		return e.store.GetCurrentLease(ctx, e.election)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get current leader: %w", err)
	}
	return lease, nil
}

// OnLeadershipChanged registers a callback and returns a function that removes it.
func (e *Engine) OnLeadershipChanged(callback LeadershipCallback) func() {
	var _, unsubscribe = e.notifier.subscribe(callback)
	return unsubscribe
}

// Subscribe returns a channel receiving leadership events and a function that closes it.
// Events are dropped when the channel is full.
func (e *Engine) Subscribe(buffer int) (<-chan LeadershipChangedEvent, func()) {
	return e.notifier.subscribeChannel(buffer)
}

// TryAcquireLeadership makes one acquisition attempt. Store failures are logged and reported
// as false; only cancellation of ctx is returned as an error.
func (e *Engine) TryAcquireLeadership(ctx context.Context) (bool, error) {
	var err = e.AcquireLeadership(ctx)
	var storeErr *StoreError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &storeErr), errors.Is(err, ErrLeaseHeld):
		return false, nil
	default:
		return false, err
	}
}

// AcquireLeadership makes one acquisition attempt and fails with ErrLeaseHeld when another
// participant leads, or a *StoreError when the store call fails. It succeeds without a store
// call when this participant already leads.
func (e *Engine) AcquireLeadership(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	return e.acquire(ctx)
}

// TryRenewLeadership extends the held lease. A failed renewal demotes this participant
// immediately and fires a lost notification. It returns false without a store call when
// the participant does not lead.
func (e *Engine) TryRenewLeadership(ctx context.Context) (bool, error) {
	var err = e.RenewLeadership(ctx)
	var storeErr *StoreError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &storeErr), errors.Is(err, ErrNotLeader):
		return false, nil
	default:
		return false, err
	}
}

// RenewLeadership extends the held lease, failing with ErrNotLeader when there is nothing
// to renew or the store no longer grants it.
func (e *Engine) RenewLeadership(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	return e.renew(ctx)
}

// ReleaseLeadership gives up leadership. Store failures are logged, never returned, and the
// local state is demoted either way. It is a no-op when this participant does not lead.
func (e *Engine) ReleaseLeadership(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	e.release(ctx)
	return ctx.Err()
}

func (e *Engine) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case e.transition <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) unlock() {
	<-e.transition
}

func (e *Engine) acquire(ctx context.Context) error {
	e.expireStale()
	if e.IsLeader() {
		return nil
	}

	e.options.logger.Debug("attempting to acquire leadership", "lease_duration", e.config.LeaseDuration)

	var lease, err = callStore(ctx, e.config.OperationTimeout, func(ctx context.Context) (*LeaderInfo, error) {
		return e.store.TryAcquireLease(ctx, e.election, e.participant, e.config.LeaseDuration, e.config.Metadata)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		if err == nil && lease != nil {
			e.abandon()
		}
		return ctxErr
	}
	if err != nil {
		e.options.logger.Error("failed to acquire leadership", "error", err)
		e.options.metrics.RecordElectionError(e.election, e.participant, "acquire")
		return &StoreError{Operation: "acquire", Err: err}
	}
	if lease == nil {
		e.options.logger.Debug("failed to acquire leadership, another participant is leader")
		return ErrLeaseHeld
	}

	e.gain(lease)
	return nil
}

func (e *Engine) renew(ctx context.Context) error {
	e.expireStale()
	if !e.IsLeader() {
		return ErrNotLeader
	}

	var lease, err = callStore(ctx, e.config.OperationTimeout, func(ctx context.Context) (*LeaderInfo, error) {
		return e.store.TryRenewLease(ctx, e.election, e.participant, e.config.LeaseDuration, e.config.Metadata)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		if err == nil && lease != nil {
			e.setLease(lease)
		}
		return ctxErr
	}
	if err != nil {
		e.options.logger.Error("failed to renew leadership", "error", err)
		e.options.metrics.RecordElectionError(e.election, e.participant, "renew")
		e.demote("renewal failed", false)
		return &StoreError{Operation: "renew", Err: err}
	}
	if lease == nil {
		e.options.logger.Warn("failed to renew leadership, lease not owned by this participant")
		e.options.metrics.RecordElectionError(e.election, e.participant, "renew")
		e.demote("lease not owned", false)
		return ErrNotLeader
	}

	e.setLease(lease)
	e.options.logger.Debug("renewed leadership", "expires_at", lease.ExpiresAt)
	return nil
}

func (e *Engine) release(ctx context.Context) {
	e.mu.RLock()
	var wasLeader = e.isLeader
	e.mu.RUnlock()
	if !wasLeader {
		return
	}

	var released, err = callStore(ctx, e.config.OperationTimeout, func(ctx context.Context) (bool, error) {
		return e.store.ReleaseLease(ctx, e.election, e.participant)
	})
	switch {
	case err != nil:
		e.options.logger.Error("failed to release leadership", "error", err)
		e.options.metrics.RecordElectionError(e.election, e.participant, "release")
	case !released:
		e.options.logger.Warn("could not release leadership, lease not owned by this participant")
	}

	e.demote("released", true)
}

// abandon releases a lease granted to an acquisition whose caller had already gone away.
func (e *Engine) abandon() {
	var ctx, cancel = context.WithTimeout(context.Background(), e.config.OperationTimeout)
	defer cancel()

	var _, err = callStore(ctx, e.config.OperationTimeout, func(ctx context.Context) (bool, error) {
		return e.store.ReleaseLease(ctx, e.election, e.participant)
	})
	if err != nil {
		e.options.logger.Warn("failed to release lease of a cancelled acquisition", "error", err)
	}
}

// expireStale demotes a leader whose lease ran out without a successful renewal.
func (e *Engine) expireStale() {
	e.mu.RLock()
	var stale = e.isLeader && !e.lease.IsValid(e.options.clock.Now())
	e.mu.RUnlock()

	if stale {
		e.demote("lease expired before renewal", false)
	}
}

func (e *Engine) setLease(lease *LeaderInfo) {
	e.mu.Lock()
	e.lease = lease
	e.mu.Unlock()
}

func (e *Engine) gain(lease *LeaderInfo) {
	e.mu.Lock()
	var previous = e.lease
	e.isLeader = true
	e.lease = lease
	e.leaderSince = e.options.clock.Now()
	e.mu.Unlock()

	e.options.metrics.RecordLeaderStatus(e.election, e.participant, true)
	e.options.metrics.RecordLeaderTransition(e.election, e.participant, "gained")
	e.options.logger.Info("gained leadership", "expires_at", lease.ExpiresAt)

	e.notifier.notify(LeadershipChangedEvent{
		IsLeader: true,
		Previous: previous.clone(),
		Current:  lease.clone(),
	})
}

func (e *Engine) demote(reason string, voluntary bool) {
	e.mu.Lock()
	if !e.isLeader {
		e.mu.Unlock()
		return
	}
	var (
		previous = e.lease
		held     = e.options.clock.Since(e.leaderSince)
	)
	e.isLeader = false
	e.lease = nil
	e.mu.Unlock()

	e.options.metrics.RecordLeaderStatus(e.election, e.participant, false)
	e.options.metrics.RecordLeaderTransition(e.election, e.participant, "lost")
	e.options.metrics.RecordLeadershipDuration(e.election, e.participant, held)

	if voluntary {
		e.options.logger.Info("released leadership", "held", held)
	} else {
		e.options.logger.Warn("lost leadership", "reason", reason, "held", held)
	}

	e.notifier.notify(LeadershipChangedEvent{
		IsLeader: false,
		Previous: previous.clone(),
	})
}

// callStore bounds a store call by timeout and turns a panicking store into an error.
func callStore[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (result T, err error) {
	var opCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lease store panicked: %v", r)
		}
	}()

	return call(opCtx)
}
