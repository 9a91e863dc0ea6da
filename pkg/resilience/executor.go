// Package resilience wraps outbound calls in retry-with-backoff and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// State represents the state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without invoking the call while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// TransportError is a non-success HTTP status from an outbound call.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that it is returned without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Config configures retry and breaker behavior.
type Config struct {
	// Name identifies the executor in logs and metrics
	Name string
	// MaxRetries is the number of attempts after the first one
	MaxRetries int
	// BaseDelay is the lower bound of every backoff sleep
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep
	MaxDelay time.Duration
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// BreakDuration is how long the circuit stays open before a trial call
	BreakDuration time.Duration
}

// DefaultConfig returns the defaults used for every upstream.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRetries:       3,
		BaseDelay:        200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		FailureThreshold: 5,
		BreakDuration:    30 * time.Second,
	}
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithStateChange registers a hook called on every breaker transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(e *Executor) { e.onStateChange = fn }
}

// WithRetryHook registers a hook called before every retry attempt.
func WithRetryHook(fn func(name string)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

// Executor applies retry and circuit breaking to outbound calls. It is safe for
// concurrent use.
type Executor struct {
	cfg           Config
	logger        *slog.Logger
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	onStateChange func(name string, from, to State)
	onRetry       func(name string)

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// New creates an Executor in the closed state.
func New(cfg Config, opts ...Option) *Executor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	e := &Executor{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
		state:  StateClosed,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the configured executor name.
func (e *Executor) Name() string { return e.cfg.Name }

// State returns the current breaker state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Do runs call under the executor's retry and breaker policy.
func Do[T any](ctx context.Context, e *Executor, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := e.allow(); err != nil {
		return zero, err
	}

	var lastErr error
	delay := e.cfg.BaseDelay
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if e.onRetry != nil {
				e.onRetry(e.cfg.Name)
			}
			delay = e.nextDelay(delay)
			if err := e.sleep(ctx, delay); err != nil {
				e.release()
				return zero, err
			}
		}

		value, err := call(ctx)
		if err == nil {
			e.recordSuccess()
			return value, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			e.release()
			return zero, err
		}
		if !retryable(err) {
			break
		}
		e.logger.Debug("Retrying outbound call", "executor", e.cfg.Name, "attempt", attempt+1, "error", err)
	}

	e.recordFailure()
	var perm *permanentError
	if errors.As(lastErr, &perm) {
		return zero, perm.err
	}
	return zero, lastErr
}

// Execute runs an HTTP call, classifying any non-2xx status as a TransportError.
// On success the caller owns the response body.
func (e *Executor) Execute(ctx context.Context, call func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	return Do(ctx, e, func(ctx context.Context) (*http.Response, error) {
		resp, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
}

func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}

// nextDelay implements decorrelated jitter: min(cap, rand[base, prev*3)).
func (e *Executor) nextDelay(prev time.Duration) time.Duration {
	base := e.cfg.BaseDelay
	upper := prev * 3
	if upper <= base {
		upper = base + 1
	}
	e.rndMu.Lock()
	d := base + time.Duration(e.rnd.Int63n(int64(upper-base)))
	e.rndMu.Unlock()
	if d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	return d
}

func (e *Executor) allow() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateOpen:
		if e.now().Sub(e.openedAt) < e.cfg.BreakDuration {
			return ErrCircuitOpen
		}
		e.transition(StateHalfOpen)
		e.trialInFlight = true
		return nil
	case StateHalfOpen:
		if e.trialInFlight {
			return ErrCircuitOpen
		}
		e.trialInFlight = true
		return nil
	}
	return nil
}

func (e *Executor) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures = 0
	e.trialInFlight = false
	if e.state != StateClosed {
		e.transition(StateClosed)
	}
}

func (e *Executor) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trialInFlight = false
	switch e.state {
	case StateClosed:
		e.failures++
		if e.failures >= e.cfg.FailureThreshold {
			e.transition(StateOpen)
		}
	case StateHalfOpen:
		e.transition(StateOpen)
	}
}

// release frees a half-open trial slot abandoned by cancellation.
func (e *Executor) release() {
	e.mu.Lock()
	e.trialInFlight = false
	e.mu.Unlock()
}

// transition must be called with mu held.
func (e *Executor) transition(to State) {
	from := e.state
	e.state = to

	switch to {
	case StateOpen:
		e.openedAt = e.now()
		e.logger.Warn("Circuit breaker opened", "executor", e.cfg.Name, "failures", e.failures, "breakDuration", e.cfg.BreakDuration)
	case StateHalfOpen:
		e.logger.Info("Circuit breaker half-open, allowing trial call", "executor", e.cfg.Name)
	case StateClosed:
		e.failures = 0
		e.logger.Info("Circuit breaker reset", "executor", e.cfg.Name)
	}

	if e.onStateChange != nil {
		e.onStateChange(e.cfg.Name, from, to)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
