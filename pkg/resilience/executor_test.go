package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestExecutor(cfg Config, clock *fakeClock, opts ...Option) *Executor {
	opts = append([]Option{WithClock(clock.Now), WithSleep(noSleep)}, opts...)
	return New(cfg, opts...)
}

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	exec := newTestExecutor(DefaultConfig("test"), &fakeClock{now: time.Unix(0, 0)})

	calls := 0
	got, err := Do(context.Background(), exec, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, exec.State())
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 3
	retries := 0
	exec := newTestExecutor(cfg, &fakeClock{now: time.Unix(0, 0)}, WithRetryHook(func(string) { retries++ }))

	calls := 0
	got, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &TransportError{StatusCode: http.StatusServiceUnavailable}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ExhaustedRetriesSurfaceTransportError(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 2
	exec := newTestExecutor(cfg, &fakeClock{now: time.Unix(0, 0)})

	calls := 0
	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		return 0, &TransportError{StatusCode: http.StatusBadGateway}
	})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryClientErrorsOrPermanent(t *testing.T) {
	exec := newTestExecutor(DefaultConfig("test"), &fakeClock{now: time.Unix(0, 0)})

	calls := 0
	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		return 0, &TransportError{StatusCode: http.StatusBadRequest}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	sentinel := errors.New("bad payload")
	_, err = Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreaker_OpensAndFailsFast(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 3
	cfg.BreakDuration = time.Minute
	clock := &fakeClock{now: time.Unix(0, 0)}

	var transitions []State
	exec := newTestExecutor(cfg, clock, WithStateChange(func(_ string, _, to State) {
		transitions = append(transitions, to)
	}))

	failing := func(context.Context) (int, error) {
		return 0, &TransportError{StatusCode: http.StatusInternalServerError}
	}
	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), exec, failing)
		var te *TransportError
		require.ErrorAs(t, err, &te)
	}
	require.Equal(t, StateOpen, exec.State())

	invoked := 0
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
			invoked++
			return 1, nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Zero(t, invoked, "wrapped function must not run while open")
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	cfg.BreakDuration = time.Minute
	clock := &fakeClock{now: time.Unix(0, 0)}
	exec := newTestExecutor(cfg, clock)

	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, StateOpen, exec.State())

	clock.Advance(time.Minute)
	invoked := 0
	_, err = Do(context.Background(), exec, func(context.Context) (int, error) {
		invoked++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, invoked)
	assert.Equal(t, StateClosed, exec.State())
}

func TestCircuitBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	cfg.BreakDuration = time.Minute
	clock := &fakeClock{now: time.Unix(0, 0)}
	exec := newTestExecutor(cfg, clock)

	failing := func(context.Context) (int, error) { return 0, errors.New("boom") }
	_, _ = Do(context.Background(), exec, failing)
	clock.Advance(time.Minute)

	_, err := Do(context.Background(), exec, failing)
	require.EqualError(t, err, "boom")
	assert.Equal(t, StateOpen, exec.State())

	_, err = Do(context.Background(), exec, failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenAllowsExactlyOneTrial(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	cfg.BreakDuration = time.Minute
	clock := &fakeClock{now: time.Unix(0, 0)}
	exec := newTestExecutor(cfg, clock)

	_, _ = Do(context.Background(), exec, func(context.Context) (int, error) { return 0, errors.New("boom") })
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	_, err := Do(context.Background(), exec, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, exec.State())
}

func TestDo_HonorsCancellation(t *testing.T) {
	exec := New(DefaultConfig("test"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	_, err := Do(ctx, exec, func(context.Context) (int, error) {
		invoked = true
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, invoked)
}

func TestExecute_ClassifiesStatus(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("fine"))
	}))
	defer srv.Close()

	exec := newTestExecutor(DefaultConfig("http"), &fakeClock{now: time.Unix(0, 0)})
	resp, err := exec.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return nil, err
		}
		return http.DefaultClient.Do(req)
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "fine", string(body))
	assert.Equal(t, 2, hits)
}

func TestTransportError_Message(t *testing.T) {
	err := &TransportError{StatusCode: 404, Body: "missing"}
	assert.True(t, strings.Contains(err.Error(), "404"))
	assert.False(t, err.Retryable())
	assert.True(t, (&TransportError{StatusCode: 429}).Retryable())
}

func TestNextDelay_StaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxDelay = 80 * time.Millisecond
	exec := New(cfg)

	prev := cfg.BaseDelay
	for i := 0; i < 50; i++ {
		d := exec.nextDelay(prev)
		assert.GreaterOrEqual(t, d, cfg.BaseDelay)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		prev = d
	}
}
