package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests is the number of trial calls let through while half-open.
	MaxRequests uint32
	// Interval clears the failure streak of a closed breaker. Zero never clears it.
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying again.
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	// IsSuccessful decides whether an error counts against the breaker.
	// Context cancellation by the caller is not a dependency failure.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from State, to State)
	Logger        *zap.Logger
	Clock         func() time.Time
}

// CircuitBreaker stops calling a failing dependency for Timeout after
// FailureThreshold consecutive failures, then lets a few trial calls through.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	inFlight  uint32
	deadline  time.Time
}

func defaultIsSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = defaultIsSuccessful
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	cb := &CircuitBreaker{name: name, cfg: cfg}
	cb.enter(StateClosed, cfg.Clock())
	return cb
}

// Execute runs fn unless the breaker is open. A panic in fn counts as a
// failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trial, err := cb.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			cb.settle(trial, false)
		}
	}()

	err = fn()
	ok = true
	cb.settle(trial, cb.cfg.IsSuccessful(err))
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.cfg.Clock())
	return cb.state
}

// admit reports whether the call is a half-open trial.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.cfg.Clock())

	switch cb.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.MaxRequests {
			return false, ErrTooManyRequests
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) settle(trial, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.cfg.Clock()
	cb.advance(now)

	// a trial that outlived its half-open window says nothing about the new state
	if cb.state == StateOpen || trial != (cb.state == StateHalfOpen) {
		return
	}
	if trial {
		cb.inFlight--
	}

	if !success {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.enter(StateOpen, now)
		}
		return
	}

	cb.failures = 0
	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.cfg.SuccessThreshold {
		cb.enter(StateClosed, now)
	}
}

// advance applies time-based transitions: open expires into half-open and a
// closed breaker forgets its failure streak every Interval.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.deadline.IsZero() || now.Before(cb.deadline) {
		return
	}
	switch cb.state {
	case StateOpen:
		cb.enter(StateHalfOpen, now)
	case StateClosed:
		cb.failures, cb.successes = 0, 0
		cb.deadline = now.Add(cb.cfg.Interval)
	}
}

func (cb *CircuitBreaker) enter(state State, now time.Time) {
	prev := cb.state
	streak := cb.failures

	cb.state = state
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	cb.deadline = time.Time{}
	switch {
	case state == StateOpen:
		cb.deadline = now.Add(cb.cfg.Timeout)
	case state == StateClosed && cb.cfg.Interval > 0:
		cb.deadline = now.Add(cb.cfg.Interval)
	}

	if prev == state {
		return
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, prev, state)
	}
	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
		zap.Uint32("failures", streak),
	)
}
