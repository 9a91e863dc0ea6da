package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testExecutor() *resilience.Executor {
	cfg := resilience.DefaultConfig("ledger-test")
	cfg.MaxRetries = 1
	return resilience.New(cfg, resilience.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
}

func purchaseTx(hash string, nano int64, comment string) map[string]interface{} {
	return map[string]interface{}{
		"hash": hash,
		"now":  1700000000,
		"in_msg": map[string]interface{}{
			"source":      "EQbuyer",
			"destination": "EQlottery",
			"value":       strconv.FormatInt(nano, 10),
			"message_content": map[string]interface{}{
				"decoded": map[string]interface{}{"type": "text_comment", "comment": comment},
			},
		},
		"out_msgs": []interface{}{},
	}
}

func paymentTx(hash string, nano int64, comment string) map[string]interface{} {
	return map[string]interface{}{
		"hash":   hash,
		"now":    1700000100,
		"in_msg": map[string]interface{}{"source": nil, "value": nil},
		"out_msgs": []interface{}{map[string]interface{}{
			"source":      "EQlottery",
			"destination": "EQwinner",
			"value":       strconv.FormatInt(nano, 10),
			"message_content": map[string]interface{}{
				"decoded": map[string]interface{}{"type": "text_comment", "comment": comment},
			},
		}},
	}
}

func TestGetTransactions_PaginatesUntilShortPage(t *testing.T) {
	sizes := []int{1000, 1000, 437}
	var mu sync.Mutex
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := len(offsets)
		offsets = append(offsets, r.URL.Query().Get("offset"))
		mu.Unlock()

		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "EQlottery", r.URL.Query().Get("account"))
		txs := make([]interface{}, 0, sizes[idx])
		for i := 0; i < sizes[idx]; i++ {
			txs = append(txs, purchaseTx(fmt.Sprintf("h-%d-%d", idx, i), 1_000_000_000, `{"entries":[]}`))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"transactions": txs})
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "key", testExecutor())
	txs, err := reader.GetTransactions(context.Background(), "EQlottery", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Len(t, txs, 2437)
	assert.Equal(t, []string{"0", "1000", "2000"}, offsets)
}

func TestGetTransactions_ConcurrentCallsKeepSeparateOffsets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := 2
		if r.URL.Query().Get("offset") != "0" {
			n = 1
		}
		txs := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			txs = append(txs, purchaseTx("h", 1_000_000_000, `{"entries":[]}`))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"transactions": txs})
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "", testExecutor(), WithPageSize(2))
	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txs, err := reader.GetTransactions(context.Background(), "EQlottery", time.Unix(0, 0))
			assert.NoError(t, err)
			results[i] = len(txs)
		}(i)
	}
	wg.Wait()
	for _, n := range results {
		assert.Equal(t, 3, n)
	}
}

func TestGetAllIncomingAndOutgoing_FilterByType(t *testing.T) {
	var startUtime string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startUtime = r.URL.Query().Get("start_utime")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"transactions": []interface{}{
			purchaseTx("p1", 2_000_000_000, `{"entries":[{"numbers":[1,2,3,4,5,6],"entryRepeatCount":1}]}`),
			paymentTx("o1", 500_000_000, `{"type":"payout"}`),
			purchaseTx("junk", 1_000_000_000, "not json"),
		}})
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC) // Thursday
	reader := NewReader(srv.URL, "", testExecutor(), WithClock(func() time.Time { return now }))

	incoming, err := reader.GetAllIncoming(context.Background(), "EQlottery", nil)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, models.TransactionTypePurchase, incoming[0].Type)
	assert.Equal(t, 2.0, incoming[0].Amount)
	require.Len(t, incoming[0].Entries, 1)
	assert.Equal(t, "EQbuyer", incoming[0].Entries[0].Address)
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, strconv.FormatInt(monday.Unix(), 10), startUtime)

	start := time.Unix(1600000000, 0)
	outgoing, err := reader.GetAllOutgoing(context.Background(), "EQlottery", &start)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, models.TransactionTypePayment, outgoing[0].Type)
	assert.Equal(t, "EQwinner", outgoing[0].Destination)
	assert.Equal(t, int64(500_000_000), outgoing[0].AmountNano)
	assert.Equal(t, "1600000000", startUtime)
}

func TestGetTransactions_SurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	reader := NewReader(srv.URL, "bad", testExecutor())
	_, err := reader.GetTransactions(context.Background(), "EQlottery", time.Unix(0, 0))
	var te *resilience.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
}

func TestDecodeTransaction_DiscardsUnparseable(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"no memo":         purchaseTx("a", 1, ""),
		"bad json":        purchaseTx("b", 1, "{entries"),
		"zero value":      purchaseTx("c", 0, `{"entries":[]}`),
		"negative repeat": purchaseTx("d", 1, `{"entries":[{"numbers":[1],"entryRepeatCount":-1}]}`),
	}
	for name, tx := range cases {
		t.Run(name, func(t *testing.T) {
			raw, err := json.Marshal(tx)
			require.NoError(t, err)
			_, ok := DecodeTransaction(gjson.ParseBytes(raw))
			assert.False(t, ok)
		})
	}
}

func TestDecodeTransaction_PaymentCommentMayBePlainText(t *testing.T) {
	raw, err := json.Marshal(paymentTx("p", 5_000_000_000, "Lottery payout"))
	require.NoError(t, err)

	tx, ok := DecodeTransaction(gjson.ParseBytes(raw))
	require.True(t, ok)
	assert.Equal(t, models.TransactionTypePayment, tx.Type)
	assert.Equal(t, int64(5_000_000_000), tx.AmountNano)
	assert.Equal(t, "Lottery payout", tx.Comment)
	assert.Empty(t, tx.Entries)

	raw, err = json.Marshal(paymentTx("q", 5_000_000_000, "  "))
	require.NoError(t, err)
	_, ok = DecodeTransaction(gjson.ParseBytes(raw))
	assert.False(t, ok)
}
