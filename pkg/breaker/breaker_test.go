package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

var errProvider = errors.New("provider unavailable")

// newTestBreaker creates a breaker with a controllable clock.
func newTestBreaker(threshold int32, timeout time.Duration, clock func() time.Time) *Breaker {
	logger := log.NewStdLogger(os.Stdout)
	return New(Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  timeout,
	}, logger, WithClock(clock))
}

// stepClock returns a clock function plus a setter to advance it.
func stepClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	current := start
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}

// Test that a new breaker starts CLOSED and permits calls.
func TestAllow_ClosedByDefault(t *testing.T) {
	b := newTestBreaker(3, time.Minute, time.Now)

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

// Test that the circuit trips after the threshold of consecutive failures
// and that denied calls never invoke the unit of work: with threshold=3 and
// five dispatches, the provider is reached exactly 3 times, not 5.
func TestTrip_AfterConsecutiveFailures(t *testing.T) {
	now, _ := stepClock(time.Unix(1000, 0))
	b := newTestBreaker(3, time.Minute, now)

	calls := 0
	work := func(context.Context) (string, error) {
		calls++
		return "", errProvider
	}
	fallback := func(_ context.Context, err error) (string, error) {
		return "fallback", err
	}

	for i := 0; i < 5; i++ {
		v, err := Do(context.Background(), b, work, fallback)
		assert.Error(t, err)
		if i >= 3 {
			assert.Equal(t, "fallback", v)
			assert.ErrorIs(t, err, ErrOpen)
		}
	}

	assert.Equal(t, 3, calls)
	assert.Equal(t, StateOpen, b.State())
}

// Test the recovery scenario: threshold=2, recovery_timeout=60s. Two
// failures open the circuit at t=0; a call at t=30s is denied; a call at
// t=61s runs as the trial and its success closes the circuit and resets the
// failure counter.
func TestRecovery_TrialSuccessCloses(t *testing.T) {
	now, advance := stepClock(time.Unix(1000, 0))
	b := newTestBreaker(2, 60*time.Second, now)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	advance(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	advance(31 * time.Second)
	calls := 0
	v, err := Do(context.Background(), b, func(context.Context) (string, error) {
		calls++
		return "wamid.test", nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "wamid.test", v)
	assert.Equal(t, 1, calls)

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, int32(0), snap.Failures)
}

// Test that a failed HALF_OPEN trial reopens the circuit and restarts the
// recovery window from the moment of the trial failure.
func TestRecovery_TrialFailureReopens(t *testing.T) {
	now, advance := stepClock(time.Unix(1000, 0))
	b := newTestBreaker(1, 60*time.Second, now)

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	advance(61 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordFailure()
	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	// The failed trial counts: one trip failure plus one trial failure.
	assert.Equal(t, int32(2), snap.Failures)

	// The window restarted: 30s later is still inside the new timeout.
	advance(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	advance(31 * time.Second)
	assert.NoError(t, b.Allow())
}

// Test that at most one caller wins the OPEN to HALF_OPEN transition when
// the recovery timeout has elapsed; all concurrent losers are denied.
func TestHalfOpen_SingleTrialInFlight(t *testing.T) {
	now, advance := stepClock(time.Unix(1000, 0))
	b := newTestBreaker(1, 60*time.Second, now)

	b.RecordFailure()
	advance(61 * time.Second)

	const callers = 32
	var wg sync.WaitGroup
	allowed := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() == nil {
				allowed <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(allowed)

	assert.Len(t, allowed, 1)
	assert.Equal(t, StateHalfOpen, b.State())
}

// Test that reading state repeatedly never changes it.
func TestState_ReadsAreIdempotent(t *testing.T) {
	b := newTestBreaker(2, time.Minute, time.Now)
	b.RecordFailure()

	for i := 0; i < 10; i++ {
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, int32(1), b.Snapshot().Failures)
	}
}

// Test that a success while CLOSED resets the consecutive failure counter.
func TestRecordSuccess_ResetsCounter(t *testing.T) {
	b := newTestBreaker(3, time.Minute, time.Now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, int32(0), b.Snapshot().Failures)

	// Two more failures stay below threshold after the reset.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

// Test that errors matched by the exclusion predicate do not count against
// circuit health while still propagating to the caller.
func TestExcludeErrors_NotCounted(t *testing.T) {
	errIgnorable := errors.New("recipient opted out")
	logger := log.NewStdLogger(os.Stdout)
	b := New(Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		IsFailure:        ExcludeErrors(errIgnorable),
	}, logger)

	_, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "", errIgnorable
	}, nil)
	assert.ErrorIs(t, err, errIgnorable)
	assert.Equal(t, StateClosed, b.State())

	_, err = Do(context.Background(), b, func(context.Context) (string, error) {
		return "", errProvider
	}, nil)
	assert.ErrorIs(t, err, errProvider)
	assert.Equal(t, StateOpen, b.State())
}

// Test that Do propagates the unit of work's own result unchanged and only
// substitutes the fallback when the call is denied.
func TestDo_PropagatesResult(t *testing.T) {
	b := newTestBreaker(1, time.Hour, time.Now)

	v, err := Do(context.Background(), b, func(context.Context) (int, error) {
		return 42, nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	b.RecordFailure()
	v, err = Do(context.Background(), b, func(context.Context) (int, error) {
		t.Fatal("unit of work must not run while OPEN")
		return 0, nil
	}, func(_ context.Context, err error) (int, error) {
		return -1, err
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, -1, v)
}

// Test that the state change hook fires outside the lock with the
// transition endpoints.
func TestStateChangeHook(t *testing.T) {
	var transitions []string
	var b *Breaker
	logger := log.NewStdLogger(os.Stdout)
	b = New(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}, logger,
		WithStateChangeHook(func(from, to State, _ Snapshot) {
			transitions = append(transitions, from.String()+">"+to.String())
			// Re-entrant reads must not deadlock.
			_ = b.State()
		}))

	b.RecordFailure()
	assert.Equal(t, []string{"CLOSED>OPEN"}, transitions)
}

// Test that Rejecting mirrors denial without consuming the trial slot.
func TestRejecting(t *testing.T) {
	now, advance := stepClock(time.Unix(1000, 0))
	logger := log.NewStdLogger(os.Stdout)
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}, logger, WithClock(now))

	assert.False(t, b.Rejecting())

	b.RecordFailure()
	assert.True(t, b.Rejecting())

	// Recovery elapsed: a trial would be admitted, so transport guards
	// must let the request through. Rejecting must not itself take the
	// trial slot.
	advance(61 * time.Second)
	assert.False(t, b.Rejecting())
	assert.Equal(t, StateOpen, b.State())
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Rejecting())
}

func TestState_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Snapshot{State: StateHalfOpen, Failures: 3})
	assert.NoError(t, err)
	assert.Contains(t, string(out), `"current_state":"HALF_OPEN"`)
	assert.Contains(t, string(out), `"failure_count":3`)
}
