// Package breaker wraps sony/gobreaker with the exact thresholds the
// original gateway's CircuitBreaker used (common/grpc/grpc_client.py):
// failure_threshold 5, recovery_timeout 30s, success_threshold 3. The
// breaker trips on consecutive failures only; it keeps no sliding window
// of recent calls, and Config.WindowSize is defaulted but not used.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultFailureThreshold uint32 = 5
	DefaultRecoveryTimeout         = 30 * time.Second
	DefaultSuccessThreshold uint32 = 3
	DefaultWindowSize       uint32 = 100
)

// ErrOpen is surfaced to callers when the breaker is open and short-
// circuiting calls, matching the original's CircuitBreakerOpenError: a
// non-retryable, immediate failure distinct from a transport error.
var ErrOpen = errors.New("breaker: circuit open")

type Config struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	SuccessThreshold uint32
	WindowSize       uint32
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	return c
}

// Breaker is a per-target circuit breaker guarding calls to one backend
// instance.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0, // counts never reset on a timer; only on state transition
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn if the breaker is closed or half-open-and-probing;
// returns ErrOpen immediately otherwise without invoking fn.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return result, err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

type Stats struct {
	State   string
	Counts  gobreaker.Counts
}

func (b *Breaker) Stats() Stats {
	return Stats{State: b.cb.State().String(), Counts: b.cb.Counts()}
}
