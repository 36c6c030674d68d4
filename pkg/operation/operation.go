package operation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/geebinge/iot-hub-device-update/pkg/retry"
)

// Operation errors.
var (
	ErrCancelled = errors.New("operation cancelled")
	ErrDestroyed = errors.New("operation destroyed")
	ErrFailed    = errors.New("operation failed")
)

// Operation is a long-running, retriable unit of work driven by the module host.
type Operation interface {
	// Name identifies the operation in logs and metrics.
	Name() string

	// DoWork advances the operation by one step. It must not block.
	DoWork(ctx context.Context) error

	// Retry schedules the next attempt using the backoff of the given class.
	Retry(class retry.Class) error

	// Cancel requests cooperative cancellation.
	Cancel()

	// Destroy releases all resources held by the operation.
	Destroy()
}

// Status is the lifecycle status of an operation.
type Status uint8

const (
	// StatusActive indicates the operation is running.
	StatusActive Status = iota

	// StatusCancelled indicates cancellation was requested.
	StatusCancelled

	// StatusFailed indicates the operation ran out of retries.
	StatusFailed

	// StatusDestroyed indicates the operation has been torn down.
	StatusDestroyed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	case StatusDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Context.
type Config struct {
	// Name identifies the operation.
	Name string

	// Params overrides retry parameters per class. Classes not present use
	// the built-in table.
	Params retry.ParamSet

	// Logger receives retry and cancellation logs. Nil discards.
	Logger *slog.Logger

	// Now overrides the clock. Nil uses time.Now.
	Now func() time.Time
}

// Context holds the state shared by every retriable operation: its status,
// one backoff per retry class and the time of the next attempt.
//
// Concrete operations embed *Context and add their own DoWork. Operations that
// hold resources override Cancel and Destroy and call through to Context.
type Context struct {
	mu sync.Mutex

	name   string
	status Status
	params retry.ParamSet

	backoffs map[retry.Class]*retry.Backoff

	nextAttemptAt time.Time
	lastClass     retry.Class
	lastErr       error

	now    func() time.Time
	logger *slog.Logger
}

// NewContext creates an active operation context that is due immediately.
func NewContext(cfg Config) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Context{
		name:     cfg.Name,
		status:   StatusActive,
		params:   retry.DefaultParamSet().Merge(cfg.Params),
		backoffs: make(map[retry.Class]*retry.Backoff),
		now:      now,
		logger:   logger.With("operation", cfg.Name),
	}
}

// Name returns the operation name.
func (c *Context) Name() string {
	return c.name
}

// Logger returns the operation-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Now returns the current time from the operation clock.
func (c *Context) Now() time.Time {
	return c.now()
}

// Status returns the lifecycle status.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsActive returns true while the operation has not been cancelled, failed or destroyed.
func (c *Context) IsActive() bool {
	return c.Status() == StatusActive
}

// IsCancelled returns true once cancellation was requested or the operation was destroyed.
func (c *Context) IsCancelled() bool {
	s := c.Status()
	return s == StatusCancelled || s == StatusDestroyed
}

// Err returns the error that ended the operation, if any.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Due returns true when the operation is active and its next attempt time has passed.
func (c *Context) Due() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusActive && !c.now().Before(c.nextAttemptAt)
}

// NextAttemptAt returns the time of the next scheduled attempt.
func (c *Context) NextAttemptAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextAttemptAt
}

// Retry advances the backoff of class and schedules the next attempt.
// An unknown class falls back to DEFAULT and returns ErrUnknownRetryClass
// after scheduling. When the class has no attempts left the operation fails
// with ErrRetriesExhausted.
func (c *Context) Retry(class retry.Class) error {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return c.inactiveErr()
	}

	var classErr error
	if _, ok := c.params[class]; !ok {
		classErr = retry.ErrUnknownRetryClass
		class = retry.ClassDefault
	}

	b := c.backoff(class)
	delay, ok := b.Next()
	if !ok {
		c.status = StatusFailed
		c.lastErr = retry.ErrRetriesExhausted
		c.mu.Unlock()

		c.logger.Error("retries exhausted", "class", class, "attempts", b.Attempts())
		failuresTotal.WithLabelValues(c.name).Inc()
		return retry.ErrRetriesExhausted
	}

	c.nextAttemptAt = c.now().Add(delay)
	c.lastClass = class
	attempts := b.Attempts()
	c.mu.Unlock()

	c.logger.Debug("retry scheduled", "class", class, "attempt", attempts, "delay", delay)
	retriesTotal.WithLabelValues(c.name, string(class)).Inc()

	return classErr
}

// ScheduleAfter sets the next attempt to now+d without touching retry counters.
func (c *Context) ScheduleAfter(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextAttemptAt = c.now().Add(d)
}

// ScheduleNow makes the operation due on the next tick.
func (c *Context) ScheduleNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextAttemptAt = time.Time{}
}

// ResetRetries resets the counters of every retry class.
func (c *Context) ResetRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.backoffs {
		b.Reset()
	}
}

// Attempts returns the number of retries taken for class since the last reset.
func (c *Context) Attempts(class retry.Class) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.backoffs[class]; ok {
		return b.Attempts()
	}
	return 0
}

// LastRetryClass returns the class used by the most recent Retry call.
func (c *Context) LastRetryClass() retry.Class {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastClass
}

// Cancel requests cancellation. DoWork observes it on its next call.
func (c *Context) Cancel() {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return
	}
	c.status = StatusCancelled
	c.lastErr = ErrCancelled
	c.mu.Unlock()

	c.logger.Info("operation cancelled")
	cancellationsTotal.WithLabelValues(c.name).Inc()
}

// Destroy marks the operation destroyed. It is safe to call more than once.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusDestroyed {
		return
	}
	c.status = StatusDestroyed
	c.backoffs = make(map[retry.Class]*retry.Backoff)
}

// backoff returns the backoff for class, creating it lazily. Caller holds mu.
func (c *Context) backoff(class retry.Class) *retry.Backoff {
	b, ok := c.backoffs[class]
	if !ok {
		b = retry.NewBackoff(c.params[class])
		c.backoffs[class] = b
	}
	return b
}

// inactiveErr maps a non-active status to its error. Caller holds mu.
func (c *Context) inactiveErr() error {
	switch c.status {
	case StatusCancelled:
		return ErrCancelled
	case StatusDestroyed:
		return ErrDestroyed
	default:
		return ErrFailed
	}
}
