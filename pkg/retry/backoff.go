package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Delay returns the un-jittered wait before retry n, counting from zero:
// Initial * Multiplier^n, capped at Max.
func (p Params) Delay(n int) time.Duration {
	p = p.normalize()
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(n))
	if d >= float64(p.Max) || math.IsInf(d, 0) {
		return p.Max
	}
	return time.Duration(d)
}

// jitter adds up to Jitter*d on top of d.
func (p Params) jitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*p.Jitter*rand.Float64())
}

// Backoff walks the delay sequence of one Params for successive failures.
// It is safe for concurrent use.
type Backoff struct {
	params Params

	mu       sync.Mutex
	attempts int
}

// NewBackoff returns a Backoff for p. Zero fields take DEFAULT values.
func NewBackoff(p Params) *Backoff {
	return &Backoff{params: p.normalize()}
}

// Next returns the jittered delay for the next retry and counts it. ok is
// false, with a zero delay, once MaxAttempts retries have been handed out.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.params.MaxAttempts > 0 && b.attempts >= b.params.MaxAttempts {
		return 0, false
	}
	delay = b.params.jitter(b.params.Delay(b.attempts))
	b.attempts++
	return delay, true
}

// Reset starts the sequence over after a successful exchange.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns how many delays Next has handed out since the last
// Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Params returns the normalized parameters.
func (b *Backoff) Params() Params {
	return b.params
}
