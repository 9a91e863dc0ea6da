package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"github.com/ArowuTest/lottery-settlement/pkg/contract"
	"github.com/ArowuTest/lottery-settlement/pkg/custody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeContract struct {
	composite  models.CompositeState
	reads      int
	drawResult []int
	drawErr    error
	setStates  []models.State
	setErr     error
}

func (f *fakeContract) GetCompositeState(context.Context) (*models.CompositeState, error) {
	f.reads++
	c := f.composite
	return &c, nil
}

func (f *fakeContract) Draw(context.Context) (*models.State, error) {
	if f.drawErr != nil {
		return nil, f.drawErr
	}
	f.composite.State.LatestDraw = f.drawResult
	s := f.composite.State
	return &s, nil
}

func (f *fakeContract) SetState(_ context.Context, s models.State) error {
	f.setStates = append(f.setStates, s)
	return f.setErr
}

type memoryRuns struct {
	mu   sync.Mutex
	runs map[primitive.ObjectID]models.DrawRun
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: map[primitive.ObjectID]models.DrawRun{}}
}

func (m *memoryRuns) Create(_ context.Context, run *models.DrawRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = primitive.NewObjectID()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) Update(_ context.Context, run *models.DrawRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) FindByID(_ context.Context, id primitive.ObjectID) (*models.DrawRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &run, nil
}

func (m *memoryRuns) FindRecent(_ context.Context, kind models.RunKind, limit int) ([]*models.DrawRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := []*models.DrawRun{}
	for _, run := range m.runs {
		if kind != "" && run.Kind != kind {
			continue
		}
		run := run
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ExecutionStartTime.After(runs[j].ExecutionStartTime) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

type memoryCache struct {
	values map[string][]byte
}

func (c *memoryCache) GetOrSet(ctx context.Context, key string, _ time.Duration, load repositories.Loader) ([]byte, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.values[key] = v
	return v, nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

type stubPayouts struct {
	req    PayoutRequest
	result models.PayoutResult
}

func (s *stubPayouts) Payout(_ context.Context, req PayoutRequest) models.PayoutResult {
	s.req = req
	return s.result
}

type recordingPublisher struct{ winners []models.Winner }

func (p *recordingPublisher) Publish(_ context.Context, winners []models.Winner) error {
	p.winners = winners
	return nil
}

type halfFee struct{}

func (halfFee) Deduct(_ context.Context, b int64) (int64, error) { return b / 2, nil }

type countingObserver struct{ statuses []models.RunStatus }

func (o *countingObserver) ObserveRun(_ models.RunKind, status models.RunStatus) {
	o.statuses = append(o.statuses, status)
}

type drawFixture struct {
	contract  *fakeContract
	ledger    *fakeLedger
	runs      *memoryRuns
	payouts   *stubPayouts
	publisher *recordingPublisher
	observer  *countingObserver
	service   *DrawServiceImpl
}

func newDrawFixture(opts ...DrawServiceOption) *drawFixture {
	f := &drawFixture{
		contract: &fakeContract{
			composite: models.CompositeState{
				Config: models.Config{MaxSupportedRepeatsPerDraw: 2, DaysPerDraw: 7},
				State: models.State{
					LatestDraw:                   []int{1, 2, 3, 4, 5, 6},
					JackpotAbsoluteBalance:       100,
					JackpotRolloverBalance:       40 * models.NanoPerUnit,
					PastRepeatedPurchasesBalance: 5,
				},
			},
			drawResult: []int{3, 12, 45, 7, 22, 9},
		},
		ledger: &fakeLedger{
			incoming: []models.LotteryTransaction{
				purchase(1, entry(0, thursday, 3, 12, 45)),
				purchase(1, entry(0, thursday, 40, 41, 42)),
			},
			outgoing: []models.LotteryTransaction{{Type: models.TransactionTypePayment, AmountNano: 3 * models.NanoPerUnit}},
		},
		runs:      newMemoryRuns(),
		payouts:   &stubPayouts{result: models.PayoutResult{Status: models.PayoutStatusSucceeded, TransactionID: "tx-1"}},
		publisher: &recordingPublisher{},
		observer:  &countingObserver{},
	}
	settlement := newTestSettlement(f.ledger)
	opts = append([]DrawServiceOption{WithWinnerPublisher(f.publisher), WithRunObserver(f.observer)}, opts...)
	f.service = NewDrawService(DrawServiceConfig{
		LotteryAccount:   "EQlottery",
		TicketPriceNano:  2 * models.NanoPerUnit,
		CacheTTL:         time.Minute,
		PaymentAccount:   custody.PaymentAccount{ID: "0", Type: "VAULT_ACCOUNT"},
		AffiliateAccount: custody.PaymentAccount{ID: "7", Type: "VAULT_ACCOUNT"},
		AssetID:          "TON",
	}, f.contract, f.ledger, settlement, f.payouts, f.runs, &memoryCache{values: map[string][]byte{}}, opts...)
	f.service.now = func() time.Time { return thursday }
	return f
}

func TestExecuteDraw_RecordsWinners(t *testing.T) {
	f := newDrawFixture()

	run, err := f.service.ExecuteDraw(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.TransactionCount)
	assert.Equal(t, 2, run.ValidEntryCount)
	require.Len(t, run.Winners, 1)
	assert.Equal(t, int64(10), run.Winners[0].Winnings)
	assert.Equal(t, run.Winners, f.publisher.winners)
	assert.Equal(t, []models.RunStatus{models.RunStatusCompleted}, f.observer.statuses)

	stored, err := f.service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.ExecutionLog)
}

func TestExecuteDraw_FailureIsRecorded(t *testing.T) {
	f := newDrawFixture()
	f.contract.drawErr = contract.ErrNotConfirmed

	run, err := f.service.ExecuteDraw(context.Background())
	assert.ErrorIs(t, err, contract.ErrNotConfirmed)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	stored, err := f.service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestComputeCurrentWinners_UsesCachedState(t *testing.T) {
	f := newDrawFixture()

	_, err := f.service.ComputeCurrentWinners(context.Background())
	require.NoError(t, err)
	_, err = f.service.ComputeCurrentWinners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.contract.reads)
	assert.Empty(t, f.publisher.winners)
}

func TestUpdateJackpot_WritesNewBalance(t *testing.T) {
	f := newDrawFixture(WithAdminFee(halfFee{}))

	run, err := f.service.UpdateJackpot(context.Background())
	require.NoError(t, err)

	// 2 entries x 2 - 3 paid + 40 rollover, halved by the fee hook
	want := (2*2 - 3 + 40) * int64(models.NanoPerUnit) / 2
	assert.Equal(t, want, run.JackpotBalanceNano)
	require.Len(t, f.contract.setStates, 1)
	assert.Equal(t, models.State{
		JackpotAbsoluteBalance:       want,
		JackpotRolloverBalance:       40 * models.NanoPerUnit,
		PastRepeatedPurchasesBalance: 5,
	}, f.contract.setStates[0])
	assert.Nil(t, f.ledger.gotStart)
}

func TestUpdateJackpot_ValidationErrorFailsRun(t *testing.T) {
	f := newDrawFixture()
	f.contract.setErr = &contract.ValidationError{Field: "jackpotAbsoluteBalance", Reason: "must be greater than zero"}

	run, err := f.service.UpdateJackpot(context.Background())
	var verr *contract.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestPayoutAffiliates_UsesAffiliateAccount(t *testing.T) {
	f := newDrawFixture()

	run, err := f.service.PayoutAffiliates(context.Background(), map[string]float64{"EQa": 1})
	require.NoError(t, err)
	assert.Equal(t, "7", f.payouts.req.AccountID)
	assert.Equal(t, "TON", f.payouts.req.AssetID)
	require.NotNil(t, run.Payout)
	assert.Equal(t, "tx-1", run.Payout.TransactionID)
}

func TestPayoutWinners_TypedFailure(t *testing.T) {
	f := newDrawFixture()
	f.payouts.result = models.PayoutResult{Status: models.PayoutStatusInvalidInput, Error: "no payees"}

	run, err := f.service.PayoutWinners(context.Background(), nil)
	var perr *PayoutError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, PayoutErrorInvalidInput, perr.Kind)
	assert.Equal(t, "0", f.payouts.req.AccountID)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	f := newDrawFixture()
	_, err := f.service.GetRun(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestListRuns_FiltersByKindNewestFirst(t *testing.T) {
	f := newDrawFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	for i, kind := range []models.RunKind{models.RunKindDraw, models.RunKindPayout, models.RunKindDraw} {
		require.NoError(t, f.runs.Create(ctx, &models.DrawRun{Kind: kind, ExecutionStartTime: base.Add(time.Duration(i) * time.Hour)}))
	}

	draws, err := f.service.ListRuns(ctx, models.RunKindDraw, 0)
	require.NoError(t, err)
	require.Len(t, draws, 2)
	assert.True(t, draws[0].ExecutionStartTime.After(draws[1].ExecutionStartTime))

	all, err := f.service.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, base.Add(2*time.Hour), all[0].ExecutionStartTime)

	_, err = f.service.ListRuns(ctx, "BOGUS", 10)
	assert.ErrorIs(t, err, ErrInvalidRunKind)
}
