package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBreaker(c *clock) *CircuitBreaker {
	return New("1inch", Thresholds{MaxConsecutiveFailures: 3}).
		WithResetDelay(time.Minute).
		WithClock(c.Now)
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	cb := newBreaker(c)
	assert.Equal(t, StateClosed, cb.GetState(), "Circuit breaker should start closed")

	cb.RecordFailure("timeout")
	cb.RecordFailure("timeout")
	cb.RecordSuccess()
	cb.RecordFailure("timeout")
	cb.RecordFailure("timeout")
	assert.Equal(t, StateClosed, cb.GetState(), "a success resets the streak")

	cb.RecordFailure("status 500")
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "1inch")
}

func TestCircuitBreaker_Recovery(t *testing.T) {
	tests := []struct {
		name      string
		probeOK   bool
		wantState State
	}{
		{"probe succeeds", true, StateClosed},
		{"probe fails", false, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{now: time.Unix(1_700_000_000, 0)}
			cb := newBreaker(c)
			for i := 0; i < 3; i++ {
				cb.RecordFailure("boom")
			}
			require.Equal(t, StateOpen, cb.GetState())

			c.Advance(30 * time.Second)
			assert.Error(t, cb.Allow(), "still cooling down")

			c.Advance(31 * time.Second)
			require.NoError(t, cb.Allow())
			assert.Equal(t, StateHalfOpen, cb.GetState())

			if tt.probeOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure("boom")
			}
			assert.Equal(t, tt.wantState, cb.GetState())
		})
	}
}

func TestCircuitBreaker_SuccessThreshold(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	cb := newBreaker(c).WithSuccessThreshold(2)
	for i := 0; i < 3; i++ {
		cb.RecordFailure("boom")
	}
	c.Advance(2 * time.Minute)
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.GetState())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_CallbackExecution(t *testing.T) {
	done := make(chan string, 1)
	cb := New("paraswap", Thresholds{MaxConsecutiveFailures: 1}).WithTripCallback(func(name, reason string) {
		done <- name + ": " + reason
	})

	cb.RecordFailure("bad gateway")

	select {
	case got := <-done:
		assert.Contains(t, got, "paraswap")
		assert.Contains(t, got, "bad gateway")
	case <-time.After(time.Second):
		t.Fatal("trip callback was not invoked")
	}
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	cb := New("0x", Thresholds{MaxConsecutiveFailures: 1})
	cb.RecordFailure("boom")
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Allow())
}

func TestGroup(t *testing.T) {
	g := NewGroup(func(name string) *CircuitBreaker {
		return New(name, Thresholds{MaxConsecutiveFailures: 1})
	})
	a := g.Get("1inch")
	assert.Same(t, a, g.Get("1inch"))
	assert.Equal(t, "1inch", a.Name())

	g.Get("0x").RecordFailure("boom")
	assert.Equal(t, map[string]State{"1inch": StateClosed, "0x": StateOpen}, g.States())
	assert.Equal(t, "open", StateOpen.String())
}
