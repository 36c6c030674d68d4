package retry

import (
	"errors"
	"time"
)

// Retry errors.
var (
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrUnknownRetryClass = errors.New("unknown retry class")
)

// Class names a failure category. Each class has its own parameters and its
// own attempt counter.
type Class string

const (
	// ClassDefault is used while waiting for a prerequisite to become ready.
	ClassDefault Class = "DEFAULT"

	// ClassClientTransient is used after a transient local client failure,
	// such as a rejected subscribe or publish.
	ClassClientTransient Class = "CLIENT_TRANSIENT"

	// ClassClientUnrecoverable is used after a client failure that needs
	// operator attention. Retries are slow and bounded.
	ClassClientUnrecoverable Class = "CLIENT_UNRECOVERABLE"

	// ClassServiceTransient is used when the service reports a transient error.
	ClassServiceTransient Class = "SERVICE_TRANSIENT"
)

// Params describes the backoff curve of one retry class.
type Params struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `yaml:"initial"`

	// Multiplier is the factor applied after each attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Max caps the delay before jitter.
	Max time.Duration `yaml:"max"`

	// Jitter is the maximum jitter as a fraction of the base delay.
	Jitter float64 `yaml:"jitter"`

	// MaxAttempts bounds the number of retries. Zero means unbounded.
	MaxAttempts int `yaml:"maxAttempts"`
}

// Default retry parameters.
var (
	DefaultParams = Params{
		Initial:    1 * time.Second,
		Multiplier: 2.0,
		Max:        60 * time.Second,
	}

	ClientTransientParams = Params{
		Initial:    5 * time.Second,
		Multiplier: 2.0,
		Max:        10 * time.Minute,
		Jitter:     0.25,
	}

	ClientUnrecoverableParams = Params{
		Initial:     30 * time.Minute,
		Multiplier:  2.0,
		Max:         4 * time.Hour,
		MaxAttempts: 10,
	}

	ServiceTransientParams = Params{
		Initial:    30 * time.Second,
		Multiplier: 2.0,
		Max:        30 * time.Minute,
		Jitter:     0.25,
	}
)

// ParamSet maps retry classes to their parameters.
type ParamSet map[Class]Params

// DefaultParamSet returns a fresh copy of the built-in parameter table.
func DefaultParamSet() ParamSet {
	return ParamSet{
		ClassDefault:             DefaultParams,
		ClassClientTransient:     ClientTransientParams,
		ClassClientUnrecoverable: ClientUnrecoverableParams,
		ClassServiceTransient:    ServiceTransientParams,
	}
}

// Merge returns a copy of s with the entries of other laid over it.
func (s ParamSet) Merge(other ParamSet) ParamSet {
	out := make(ParamSet, len(s)+len(other))
	for c, p := range s {
		out[c] = p
	}
	for c, p := range other {
		out[c] = p
	}
	return out
}

func (p Params) normalize() Params {
	if p.Initial <= 0 {
		p.Initial = DefaultParams.Initial
	}
	if p.Max <= 0 {
		p.Max = DefaultParams.Max
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultParams.Multiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}
