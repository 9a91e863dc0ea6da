// Package contract reads and mutates the lottery contract: getter calls over
// the RPC endpoint and signed setter messages broadcast from the owner wallet.
package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/tidwall/gjson"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConfirmed is returned when a broadcast change is not observed before
	// the propagation timeout. The message may still land later.
	ErrNotConfirmed = errors.New("state change not confirmed before timeout")
	// ErrNoSender is returned by setters when the client has no wallet.
	ErrNoSender = errors.New("contract client has no message sender")
)

// ValidationError is a pre-flight check failure raised before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config configures a Client.
type Config struct {
	RPCURL             string
	APIKey             string
	Address            string
	DrawOpcode         uint32
	SetStateOpcode     uint32
	MessageFeeNano     uint64
	RequestsPerSecond  float64
	PropagationTimeout time.Duration
	PollInterval       time.Duration
}

// Client talks to a single lottery contract. It holds no per-call state.
type Client struct {
	cfg        Config
	address    ton.AccountID
	exec       *resilience.Executor
	sender     MessageSender
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
	queryID    func() uint64
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLimiter replaces the getter rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithQueryID replaces the query id generator.
func WithQueryID(fn func() uint64) Option {
	return func(c *Client) { c.queryID = fn }
}

// WithSleep replaces the wait between propagation polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a contract client. sender may be nil for read-only use.
func NewClient(cfg Config, exec *resilience.Executor, sender MessageSender, opts ...Option) (*Client, error) {
	address, err := ton.ParseAccountID(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address: %w", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		address:    address,
		exec:       exec,
		sender:     sender,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		queryID:    func() uint64 { return uint64(time.Now().UnixNano()) },
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetConfig reads the contract configuration.
func (c *Client) GetConfig(ctx context.Context) (*models.Config, error) {
	record, err := c.call(ctx, ConfigSchema)
	if err != nil {
		return nil, err
	}
	return &models.Config{
		RequiredNumbersCount:       record.Int("requiredNumbersCount"),
		MaxNumberRange:             record.Int("maxNumberRange"),
		MaxJackpotNumberRange:      record.Int("maxJackpotNumberRange"),
		MaxSupportedRepeatsPerDraw: record.Int("maxSupportedRepeatsPerDraw"),
		DefaultRepeatSelection:     record.Int("defaultRepeatSelection"),
		DaysPerDraw:                record.Int("daysPerDraw"),
		DiscountFactor: models.DiscountFactor{
			ForEvery: record.Int("discountForEvery"),
			Get:      record.Int("discountGet"),
		},
	}, nil
}

// GetState reads the mutable contract state.
func (c *Client) GetState(ctx context.Context) (*models.State, error) {
	record, err := c.call(ctx, StateSchema)
	if err != nil {
		return nil, err
	}
	draw, err := parseDraw(record.String("latestDraw"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", StateSchema.Method, ErrSchemaMismatch, err)
	}
	return &models.State{
		LatestDraw:                   draw,
		JackpotAbsoluteBalance:       record.Int("jackpotAbsoluteBalance"),
		JackpotRolloverBalance:       record.Int("jackpotRolloverBalance"),
		PastRepeatedPurchasesBalance: record.Int("pastRepeatedPurchasesBalance"),
	}, nil
}

// GetCompositeState reads config then state. The two reads are not atomic.
func (c *Client) GetCompositeState(ctx context.Context) (*models.CompositeState, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	state, err := c.GetState(ctx)
	if err != nil {
		return nil, err
	}
	return &models.CompositeState{Config: *cfg, State: *state}, nil
}

// Draw broadcasts the draw call and waits until a new draw is observed.
func (c *Client) Draw(ctx context.Context) (*models.State, error) {
	if c.sender == nil {
		return nil, ErrNoSender
	}
	prior, err := c.GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state before draw: %w", err)
	}

	queryID := c.queryID()
	body, err := BuildDrawBody(c.cfg.DrawOpcode, queryID)
	if err != nil {
		return nil, err
	}
	if err := c.broadcast(ctx, "draw", queryID, body); err != nil {
		return nil, err
	}

	return c.awaitState(ctx, func(s *models.State) bool {
		return !equalDraw(s.LatestDraw, prior.LatestDraw)
	})
}

// SetState broadcasts a balance update and waits until the contract reports it.
func (c *Client) SetState(ctx context.Context, state models.State) error {
	if err := validateBalances(state); err != nil {
		return err
	}
	if c.sender == nil {
		return ErrNoSender
	}

	queryID := c.queryID()
	body, err := BuildSetStateBody(c.cfg.SetStateOpcode, queryID, state)
	if err != nil {
		return err
	}
	if err := c.broadcast(ctx, "set_state", queryID, body); err != nil {
		return err
	}

	_, err = c.awaitState(ctx, func(s *models.State) bool {
		return s.JackpotAbsoluteBalance == state.JackpotAbsoluteBalance &&
			s.JackpotRolloverBalance == state.JackpotRolloverBalance &&
			s.PastRepeatedPurchasesBalance == state.PastRepeatedPurchasesBalance
	})
	return err
}

func validateBalances(state models.State) error {
	checks := []struct {
		name  string
		value int64
	}{
		{"jackpotAbsoluteBalance", state.JackpotAbsoluteBalance},
		{"jackpotRolloverBalance", state.JackpotRolloverBalance},
		{"pastRepeatedPurchasesBalance", state.PastRepeatedPurchasesBalance},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return &ValidationError{Field: check.name, Reason: "must be greater than zero"}
		}
	}
	return nil
}

// broadcast sends body once. A failed send is not retried since the wallet
// seqno may already have advanced.
func (c *Client) broadcast(ctx context.Context, method string, queryID uint64, body *boc.Cell) error {
	msg := newMessage(c.address, c.cfg.MessageFeeNano, body)
	_, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, resilience.Permanent(c.sender.Send(ctx, msg))
	})
	if err != nil {
		return fmt.Errorf("failed to broadcast %s: %w", method, err)
	}
	c.logger.Info("Broadcast contract message", "method", method, "queryId", queryID)
	return nil
}

// awaitState polls the state getter until confirmed holds or the propagation
// timeout elapses. A nil predicate waits the full timeout.
func (c *Client) awaitState(ctx context.Context, confirmed func(*models.State) bool) (*models.State, error) {
	if confirmed == nil {
		return nil, c.sleep(ctx, c.cfg.PropagationTimeout)
	}
	deadline := c.now().Add(c.cfg.PropagationTimeout)
	for {
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
		state, err := c.GetState(ctx)
		switch {
		case err == nil && confirmed(state):
			return state, nil
		case err != nil:
			var execErr *ExecutionError
			if errors.As(err, &execErr) || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("Propagation poll failed", "error", err)
		}
		if !c.now().Before(deadline) {
			return nil, ErrNotConfirmed
		}
	}
}

func (c *Client) call(ctx context.Context, schema Schema) (Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"address": c.cfg.Address,
		"method":  schema.Method,
		"stack":   []interface{}{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal getter request: %w", err)
	}

	resp, err := c.exec.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(payload))
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", c.cfg.APIKey)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", schema.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", schema.Method, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s returned invalid json", schema.Method)
	}
	result := gjson.ParseBytes(body)
	if inner := result.Get("result"); inner.IsObject() {
		result = inner
	}

	exit := result.Get("exit_code")
	if !exit.Exists() {
		exit = result.Get("exitCode")
	}
	if exit.Type != gjson.Number {
		return nil, fmt.Errorf("%s: %w: missing exit code", schema.Method, ErrSchemaMismatch)
	}
	if err := CheckExitCode(int(exit.Int())); err != nil {
		c.logger.Error("Getter failed", "method", schema.Method, "exitCode", exit.Int(), "error", err)
		return nil, err
	}

	var stack []StackItem
	for _, item := range result.Get("stack").Array() {
		stack = append(stack, StackItem{Type: strings.ToLower(item.Get("type").String()), Value: item.Get("value")})
	}
	return schema.Decode(stack)
}

func equalDraw(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
