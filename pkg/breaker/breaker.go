// Package breaker implements the circuit breaker that guards outbound calls
// to the WhatsApp provider. It tracks consecutive failures, trips to OPEN
// when the configured threshold is reached, and allows a single trial call
// through after the recovery timeout has elapsed.
package breaker

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// State represents the current mode of the circuit.
type State int32

const (
	// StateClosed allows calls to pass through normally.
	StateClosed State = iota
	// StateOpen rejects calls without attempting them.
	StateOpen
	// StateHalfOpen permits exactly one trial call to test recovery.
	StateHalfOpen
)

// String returns the canonical upper-case name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the state by name so status payloads carry OPEN
// rather than a bare integer.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// ErrOpen is returned by Allow when the circuit rejects the call.
// Callers must not invoke the unit of work after receiving it.
var ErrOpen = errors.New("breaker: circuit is open")

// Default thresholds, matching the service configuration defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// Config holds the trip policy parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures required to
	// trip from CLOSED to OPEN.
	FailureThreshold int32
	// RecoveryTimeout is the minimum time the circuit stays OPEN before a
	// trial call is permitted.
	RecoveryTimeout time.Duration
	// IsFailure classifies an error returned by the unit of work. When nil,
	// every non-nil error counts as a failure. Excluding every error
	// disables failure counting entirely, which is almost never what an
	// operator wants; see ExcludeErrors.
	IsFailure func(err error) bool
}

// Snapshot is a consistent read of the breaker's observable state, exposed
// on the status endpoint for operational monitoring.
type Snapshot struct {
	State    State     `json:"current_state"`
	Failures int32     `json:"failure_count"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// StateChangeHook is invoked after every state transition, outside the
// breaker's lock. Used to feed alerting; must not call back into the breaker
// synchronously from another goroutine holding references to it.
type StateChangeHook func(from, to State, snap Snapshot)

// Breaker is the shared state tracker plus trip policy. A single instance is
// shared by every dispatch path; all read-modify-write sequences on the
// (state, failures, openedAt) triple happen under one mutex.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failures int32
	openedAt time.Time

	cfg           Config
	now           func() time.Time
	onStateChange StateChangeHook
	logger        *log.Helper
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source. Tests use this to step through the
// recovery timeout without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChangeHook registers a hook called on every state transition.
func WithStateChangeHook(hook StateChangeHook) Option {
	return func(b *Breaker) {
		b.onStateChange = hook
	}
}

// New creates a circuit breaker in the CLOSED state.
func New(cfg Config, logger log.Logger, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}

	b := &Breaker{
		state:  StateClosed,
		cfg:    cfg,
		now:    time.Now,
		logger: log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ExcludeErrors builds a failure predicate that counts every error except
// those matching (errors.Is) one of the excluded ones. Passing an exclusion
// that matches all errors disables the breaker; the original service shipped
// exactly that misconfiguration, so callers should keep the list narrow.
func ExcludeErrors(excluded ...error) func(error) bool {
	return func(err error) bool {
		for _, ex := range excluded {
			if errors.Is(err, ex) {
				return false
			}
		}
		return true
	}
}

// Allow consults the trip policy and reserves the call slot.
//
// CLOSED always permits. OPEN permits only once the recovery timeout has
// elapsed, in which case the caller atomically becomes the HALF_OPEN trial;
// every other caller racing on the same instant observes HALF_OPEN and is
// denied, so at most one trial is in flight per OPEN window. Callers that
// receive nil MUST report the outcome via RecordSuccess or RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			transition := b.transitionLocked(StateHalfOpen)
			b.mu.Unlock()
			transition()
			return nil
		}
		b.mu.Unlock()
		return ErrOpen
	default: // StateHalfOpen: the trial slot is taken
		b.mu.Unlock()
		return ErrOpen
	}
}

// RecordSuccess resets the failure counter and closes the circuit if a
// HALF_OPEN trial just succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()

	b.failures = 0
	transition := func() {}
	if b.state == StateHalfOpen {
		transition = b.transitionLocked(StateClosed)
	}
	b.mu.Unlock()
	transition()
}

// RecordFailure increments the failure counter and trips the circuit when
// the threshold is reached. A failed HALF_OPEN trial reopens the circuit and
// restarts the recovery window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()

	transition := func() {}
	switch b.state {
	case StateHalfOpen:
		b.failures++
		b.openedAt = b.now()
		transition = b.transitionLocked(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			transition = b.transitionLocked(StateOpen)
		}
	}
	b.mu.Unlock()
	transition()
}

// Rejecting reports whether a call made right now would be denied. Unlike
// Allow it never reserves the HALF_OPEN trial slot, so transport-level
// guards can fast-reject without interfering with recovery.
func (b *Breaker) Rejecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a consistent view of state, failure count and openedAt.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:    b.state,
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}

// isFailure applies the configured predicate to a unit-of-work result.
func (b *Breaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if b.cfg.IsFailure == nil {
		return true
	}
	return b.cfg.IsFailure(err)
}

// transitionLocked switches the state and returns a closure that performs
// logging and hook invocation. The caller runs the closure after releasing
// the mutex so hooks never execute under the breaker's lock.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	b.state = to
	snap := Snapshot{State: to, Failures: b.failures, OpenedAt: b.openedAt}

	return func() {
		b.logger.Warnw("circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
			"failure_count", snap.Failures)
		if b.onStateChange != nil {
			b.onStateChange(from, to, snap)
		}
	}
}
