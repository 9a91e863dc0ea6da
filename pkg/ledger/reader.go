// Package ledger reads and decodes lottery transactions from the ledger's
// transaction index.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/utils"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/slog"
)

// DefaultPageSize is the index page size; a shorter page ends pagination.
const DefaultPageSize = 1000

// Reader pages through account transactions. It keeps no per-call state, so one
// Reader may serve concurrent callers.
type Reader struct {
	baseURL    string
	apiKey     string
	pageSize   int
	exec       *resilience.Executor
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Reader.
type Option func(*Reader)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Reader) { r.httpClient = hc }
}

// WithLogger sets the reader logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// WithClock replaces time.Now for default start dates.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// NewReader creates a Reader for the index at baseURL.
func NewReader(baseURL, apiKey string, exec *resilience.Executor, opts ...Option) *Reader {
	r := &Reader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pageSize:   DefaultPageSize,
		exec:       exec,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetTransactions returns every decodable transaction of account since start,
// oldest first.
func (r *Reader) GetTransactions(ctx context.Context, account string, start time.Time) ([]models.LotteryTransaction, error) {
	var transactions []models.LotteryTransaction
	offset := 0
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.fetchPage(ctx, account, start, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions at offset %d: %w", offset, err)
		}
		pages++
		for _, raw := range page {
			if tx, ok := DecodeTransaction(raw); ok {
				transactions = append(transactions, tx)
			}
		}
		if len(page) < r.pageSize {
			break
		}
		offset += r.pageSize
	}

	r.logger.Debug("Fetched ledger transactions", "account", utils.MaskAddress(account), "pages", pages, "decoded", len(transactions))
	return transactions, nil
}

// GetAllIncoming returns purchases since start, or since the most recent Monday
// 00:00 UTC when start is nil.
func (r *Reader) GetAllIncoming(ctx context.Context, account string, start *time.Time) ([]models.LotteryTransaction, error) {
	return r.filtered(ctx, account, start, models.TransactionTypePurchase)
}

// GetAllOutgoing returns payments since start, or since the most recent Monday
// 00:00 UTC when start is nil.
func (r *Reader) GetAllOutgoing(ctx context.Context, account string, start *time.Time) ([]models.LotteryTransaction, error) {
	return r.filtered(ctx, account, start, models.TransactionTypePayment)
}

func (r *Reader) filtered(ctx context.Context, account string, start *time.Time, kind models.TransactionType) ([]models.LotteryTransaction, error) {
	from := utils.MostRecentMonday(r.now())
	if start != nil {
		from = *start
	}
	all, err := r.GetTransactions(ctx, account, from)
	if err != nil {
		return nil, err
	}
	matched := make([]models.LotteryTransaction, 0, len(all))
	for _, tx := range all {
		if tx.Type == kind {
			matched = append(matched, tx)
		}
	}
	return matched, nil
}

func (r *Reader) fetchPage(ctx context.Context, account string, start time.Time, offset int) ([]gjson.Result, error) {
	query := url.Values{}
	query.Set("account", account)
	query.Set("limit", strconv.Itoa(r.pageSize))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("start_utime", strconv.FormatInt(start.Unix(), 10))
	query.Set("sort", "asc")
	endpoint := r.baseURL + "?" + query.Encode()

	resp, err := r.exec.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if r.apiKey != "" {
			req.Header.Set("X-API-Key", r.apiKey)
		}
		return r.httpClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("index returned invalid json")
	}
	parsed := gjson.ParseBytes(body)
	if parsed.IsArray() {
		return parsed.Array(), nil
	}
	return parsed.Get("transactions").Array(), nil
}

// memo is the JSON payload embedded in a transaction comment.
type memo struct {
	Entries []struct {
		Numbers          []int `json:"numbers"`
		EntryRepeatCount int   `json:"entryRepeatCount"`
	} `json:"entries"`
}

// DecodeTransaction turns one raw index transaction into a typed record. The
// inbound message is preferred; otherwise the first outbound message is used.
// It reports false when neither side carries a usable comment with a positive
// value. Purchases additionally need a JSON memo.
func DecodeTransaction(raw gjson.Result) (models.LotteryTransaction, bool) {
	if tx, ok := decodeMessage(raw, raw.Get("in_msg"), models.TransactionTypePurchase); ok {
		return tx, true
	}
	return decodeMessage(raw, raw.Get("out_msgs.0"), models.TransactionTypePayment)
}

func decodeMessage(raw, msg gjson.Result, kind models.TransactionType) (models.LotteryTransaction, bool) {
	if !msg.Exists() {
		return models.LotteryTransaction{}, false
	}
	comment := msg.Get("message_content.decoded.comment").String()
	if strings.TrimSpace(comment) == "" {
		return models.LotteryTransaction{}, false
	}
	nano, err := strconv.ParseInt(msg.Get("value").String(), 10, 64)
	if err != nil || nano <= 0 {
		return models.LotteryTransaction{}, false
	}

	tx := models.LotteryTransaction{
		Hash:        raw.Get("hash").String(),
		Type:        kind,
		Timestamp:   time.Unix(raw.Get("now").Int(), 0).UTC(),
		Source:      msg.Get("source").String(),
		Destination: msg.Get("destination").String(),
		Amount:      float64(nano) / models.NanoPerUnit,
		AmountNano:  nano,
		Comment:     comment,
	}
	// Payments may carry any comment; only purchases need a decodable memo.
	if kind == models.TransactionTypePurchase {
		var payload memo
		if err := json.Unmarshal([]byte(comment), &payload); err != nil {
			return models.LotteryTransaction{}, false
		}
		for _, e := range payload.Entries {
			if e.EntryRepeatCount < 0 {
				return models.LotteryTransaction{}, false
			}
			tx.Entries = append(tx.Entries, models.LotteryEntry{
				Numbers:          e.Numbers,
				EntryRepeatCount: e.EntryRepeatCount,
				Timestamp:        tx.Timestamp,
				Address:          tx.Source,
				TransactionHash:  tx.Hash,
			})
		}
	}
	return tx, true
}
