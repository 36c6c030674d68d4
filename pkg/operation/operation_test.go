package operation

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geebinge/iot-hub-device-update/pkg/retry"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestContext(name string, clock *fakeClock, params retry.ParamSet) *Context {
	return NewContext(Config{Name: name, Params: params, Now: clock.Now})
}

func TestContextInitialState(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext("initial", clock, nil)

	assert.Equal(t, "initial", c.Name())
	assert.Equal(t, StatusActive, c.Status())
	assert.True(t, c.IsActive())
	assert.False(t, c.IsCancelled())
	assert.True(t, c.Due(), "new operation should be due immediately")
	assert.Equal(t, 0, c.Attempts(retry.ClassDefault))
}

func TestContextRetry(t *testing.T) {
	t.Run("SchedulesNextAttempt", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-schedule", clock, nil)

		require.NoError(t, c.Retry(retry.ClassDefault))

		assert.Equal(t, clock.Now().Add(time.Second), c.NextAttemptAt())
		assert.False(t, c.Due())

		clock.Advance(999 * time.Millisecond)
		assert.False(t, c.Due())

		clock.Advance(time.Millisecond)
		assert.True(t, c.Due())
	})

	t.Run("ExponentialGrowth", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-growth", clock, nil)

		for _, want := range []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second} {
			start := clock.Now()
			require.NoError(t, c.Retry(retry.ClassDefault))
			assert.Equal(t, want, c.NextAttemptAt().Sub(start))
		}
		assert.Equal(t, 3, c.Attempts(retry.ClassDefault))
	})

	t.Run("ClassesAreIndependent", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-independent", clock, nil)

		require.NoError(t, c.Retry(retry.ClassDefault))
		require.NoError(t, c.Retry(retry.ClassDefault))
		require.NoError(t, c.Retry(retry.ClassClientTransient))

		assert.Equal(t, 2, c.Attempts(retry.ClassDefault))
		assert.Equal(t, 1, c.Attempts(retry.ClassClientTransient))
		assert.Equal(t, retry.ClassClientTransient, c.LastRetryClass())

		// The first CLIENT_TRANSIENT delay starts at its own initial value.
		delay := c.NextAttemptAt().Sub(clock.Now())
		assert.GreaterOrEqual(t, delay, retry.ClientTransientParams.Initial)
		assert.LessOrEqual(t, delay, time.Duration(float64(retry.ClientTransientParams.Initial)*1.25))
	})

	t.Run("UnknownClassFallsBackToDefault", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-unknown", clock, nil)

		err := c.Retry(retry.Class("NOPE"))
		assert.ErrorIs(t, err, retry.ErrUnknownRetryClass)
		assert.Equal(t, 1, c.Attempts(retry.ClassDefault))
		assert.False(t, c.Due())
	})

	t.Run("Exhausted", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-exhausted", clock, retry.ParamSet{
			retry.ClassDefault: {Initial: time.Second, Max: time.Second, MaxAttempts: 1},
		})

		require.NoError(t, c.Retry(retry.ClassDefault))
		err := c.Retry(retry.ClassDefault)

		assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
		assert.Equal(t, StatusFailed, c.Status())
		assert.ErrorIs(t, c.Err(), retry.ErrRetriesExhausted)
		assert.False(t, c.Due())
		assert.Equal(t, 1.0, testutil.ToFloat64(failuresTotal.WithLabelValues("retry-exhausted")))
	})

	t.Run("CountsMetric", func(t *testing.T) {
		clock := newFakeClock()
		c := newTestContext("retry-metric", clock, nil)

		_ = c.Retry(retry.ClassDefault)
		_ = c.Retry(retry.ClassDefault)

		assert.Equal(t, 2.0, testutil.ToFloat64(retriesTotal.WithLabelValues("retry-metric", "DEFAULT")))
	})
}

func TestContextReset(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext("reset", clock, nil)

	_ = c.Retry(retry.ClassDefault)
	_ = c.Retry(retry.ClassDefault)
	_ = c.Retry(retry.ClassClientTransient)

	c.ResetRetries()

	assert.Equal(t, 0, c.Attempts(retry.ClassDefault))
	assert.Equal(t, 0, c.Attempts(retry.ClassClientTransient))

	start := clock.Now()
	_ = c.Retry(retry.ClassDefault)
	assert.Equal(t, time.Second, c.NextAttemptAt().Sub(start))
}

func TestContextSchedule(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext("schedule", clock, nil)

	c.ScheduleAfter(time.Minute)
	assert.False(t, c.Due())
	assert.Equal(t, 0, c.Attempts(retry.ClassDefault))

	c.ScheduleNow()
	assert.True(t, c.Due())
}

func TestContextCancel(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext("cancel", clock, nil)

	c.Cancel()
	c.Cancel() // idempotent

	assert.True(t, c.IsCancelled())
	assert.False(t, c.IsActive())
	assert.False(t, c.Due())
	assert.ErrorIs(t, c.Retry(retry.ClassDefault), ErrCancelled)
	assert.Equal(t, 1.0, testutil.ToFloat64(cancellationsTotal.WithLabelValues("cancel")))
}

func TestContextDestroy(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext("destroy", clock, nil)

	_ = c.Retry(retry.ClassDefault)
	c.Destroy()
	c.Destroy()

	assert.Equal(t, StatusDestroyed, c.Status())
	assert.True(t, c.IsCancelled())
	assert.Equal(t, 0, c.Attempts(retry.ClassDefault))
	assert.ErrorIs(t, c.Retry(retry.ClassDefault), ErrDestroyed)

	// Cancel after destroy does not resurrect the status.
	c.Cancel()
	assert.Equal(t, StatusDestroyed, c.Status())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ACTIVE", StatusActive.String())
	assert.Equal(t, "CANCELLED", StatusCancelled.String())
	assert.Equal(t, "FAILED", StatusFailed.String())
	assert.Equal(t, "DESTROYED", StatusDestroyed.String())
	assert.Equal(t, "UNKNOWN", Status(99).String())
}
