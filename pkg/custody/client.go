// Package custody is a client for the custody platform that holds and disburses
// lottery funds.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"golang.org/x/exp/slog"
)

// PaymentAccount is the source account of a payout.
type PaymentAccount struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Client calls the custody REST API. Every request is signed and routed through
// the resilient executor.
type Client struct {
	baseURL    string
	apiKey     string
	signer     TokenSigner
	exec       *resilience.Executor
	httpClient *http.Client
	logger     *slog.Logger
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

// NewClient creates a new custody API client
func NewClient(baseURL, apiKey string, signer TokenSigner, exec *resilience.Executor, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		signer:     signer,
		exec:       exec,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListExternalWallets returns every external wallet on the workspace.
func (c *Client) ListExternalWallets(ctx context.Context) ([]models.ExternalWallet, error) {
	var wallets []models.ExternalWallet
	if err := c.do(ctx, http.MethodGet, "/external_wallets", nil, "", &wallets); err != nil {
		return nil, fmt.Errorf("failed to list external wallets: %w", err)
	}
	return wallets, nil
}

// CreateExternalWallet creates a wallet named name.
func (c *Client) CreateExternalWallet(ctx context.Context, name, idempotencyKey string) (*models.ExternalWallet, error) {
	request := map[string]interface{}{"name": name}
	var wallet models.ExternalWallet
	if err := c.do(ctx, http.MethodPost, "/external_wallets", request, idempotencyKey, &wallet); err != nil {
		return nil, fmt.Errorf("failed to create external wallet: %w", err)
	}
	return &wallet, nil
}

// AddExternalWalletAsset adds assetID at address to the wallet walletID.
func (c *Client) AddExternalWalletAsset(ctx context.Context, walletID, assetID, address, idempotencyKey string) (*models.ExternalWalletAsset, error) {
	path := fmt.Sprintf("/external_wallets/%s/%s", url.PathEscape(walletID), url.PathEscape(assetID))
	request := map[string]interface{}{"address": address}
	var asset models.ExternalWalletAsset
	if err := c.do(ctx, http.MethodPost, path, request, idempotencyKey, &asset); err != nil {
		return nil, fmt.Errorf("failed to add external wallet asset: %w", err)
	}
	return &asset, nil
}

// SubmitPayout submits the instruction set as a single payout and returns its id.
func (c *Client) SubmitPayout(ctx context.Context, account PaymentAccount, instructions []models.PayoutInstruction, idempotencyKey string) (string, error) {
	request := map[string]interface{}{
		"paymentAccount": account,
		"instructionSet": instructions,
	}
	var response struct {
		PayoutID string `json:"payoutId"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments/payout", request, idempotencyKey, &response); err != nil {
		return "", fmt.Errorf("failed to submit payout: %w", err)
	}
	if response.PayoutID == "" {
		return "", fmt.Errorf("failed to submit payout: response carried no payout id")
	}
	return response.PayoutID, nil
}

func (c *Client) do(ctx context.Context, method, path string, request interface{}, idempotencyKey string, out interface{}) error {
	var body []byte
	if request != nil {
		var err error
		body, err = json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	endpoint := c.baseURL + path
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid custody url: %w", err)
	}
	signPath := parsed.RequestURI()

	resp, err := c.exec.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		// Sign inside the attempt so each retry carries a fresh nonce.
		token, err := c.signer.Sign(signPath, body)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+token)
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		c.logger.Debug("Custody request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
