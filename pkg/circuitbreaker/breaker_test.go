package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proofrail/proofrail-agent/pkg/logger"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(enabled bool) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(enabled, 3, time.Minute, 5*time.Minute, &logger.EmptyLogger{})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(true)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	state := cb.Snapshot()
	assert.True(t, state.Open)
	assert.Equal(t, 3, state.FailureCount)
}

func TestCircuitBreakerWindowExpiry(t *testing.T) {
	cb, clock := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.advance(2 * time.Minute)

	// count restarts outside the window
	assert.False(t, cb.RecordFailure())
	assert.Equal(t, 1, cb.Snapshot().FailureCount)
}

func TestCircuitBreakerResetTimeout(t *testing.T) {
	cb, clock := newTestBreaker(true)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.True(t, cb.IsOpen())

	clock.advance(6 * time.Minute)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb, _ := newTestBreaker(true)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	cb.Reset()
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreakerSuccessClearsCount(t *testing.T) {
	cb, _ := newTestBreaker(true)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())
	assert.Equal(t, 1, cb.Snapshot().FailureCount)
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb, _ := newTestBreaker(false)

	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}
