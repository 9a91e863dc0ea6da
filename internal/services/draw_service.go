package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"github.com/ArowuTest/lottery-settlement/pkg/custody"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure DrawServiceImpl implements DrawService
var _ DrawService = (*DrawServiceImpl)(nil)

// compositeStateKey is the cache key of the contract config and state
const compositeStateKey = "composite_state"

// ContractClient is the contract access the draw service needs
type ContractClient interface {
	GetCompositeState(ctx context.Context) (*models.CompositeState, error)
	Draw(ctx context.Context) (*models.State, error)
	SetState(ctx context.Context, state models.State) error
}

// RunObserver is told about every finished run
type RunObserver interface {
	ObserveRun(kind models.RunKind, status models.RunStatus)
}

// DrawServiceConfig holds the accounts and amounts used by the draw service
type DrawServiceConfig struct {
	LotteryAccount   string
	TicketPriceNano  int64
	CacheTTL         time.Duration
	PaymentAccount   custody.PaymentAccount
	AffiliateAccount custody.PaymentAccount
	AssetID          string
}

// DrawServiceImpl runs the settlement triggers and records each as a DrawRun
type DrawServiceImpl struct {
	cfg        DrawServiceConfig
	contract   ContractClient
	ledger     TransactionReader
	settlement SettlementService
	payouts    PayoutService
	runs       repositories.DrawRunRepository
	cache      repositories.Cache
	publisher  WinnerPublisher
	adminFee   AdminFeeHook
	observer   RunObserver
	now        func() time.Time
}

// DrawServiceOption customizes a DrawServiceImpl
type DrawServiceOption func(*DrawServiceImpl)

// WithWinnerPublisher replaces the no-op winner publisher
func WithWinnerPublisher(p WinnerPublisher) DrawServiceOption {
	return func(s *DrawServiceImpl) { s.publisher = p }
}

// WithAdminFee replaces the no-op admin fee hook
func WithAdminFee(h AdminFeeHook) DrawServiceOption {
	return func(s *DrawServiceImpl) { s.adminFee = h }
}

// WithRunObserver reports finished runs to o
func WithRunObserver(o RunObserver) DrawServiceOption {
	return func(s *DrawServiceImpl) { s.observer = o }
}

// NewDrawService creates a new DrawServiceImpl
func NewDrawService(
	cfg DrawServiceConfig,
	contract ContractClient,
	ledger TransactionReader,
	settlement SettlementService,
	payouts PayoutService,
	runs repositories.DrawRunRepository,
	cache repositories.Cache,
	opts ...DrawServiceOption,
) *DrawServiceImpl {
	if cache == nil {
		cache = repositories.NopCache{}
	}
	s := &DrawServiceImpl{
		cfg:        cfg,
		contract:   contract,
		ledger:     ledger,
		settlement: settlement,
		payouts:    payouts,
		runs:       runs,
		cache:      cache,
		publisher:  NopWinnerPublisher{},
		adminFee:   NopAdminFee{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCompositeState returns config and state through the cache
func (s *DrawServiceImpl) GetCompositeState(ctx context.Context) (*models.CompositeState, error) {
	raw, err := s.cache.GetOrSet(ctx, compositeStateKey, s.cfg.CacheTTL, func(ctx context.Context) ([]byte, error) {
		composite, err := s.contract.GetCompositeState(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(composite)
	})
	if err != nil {
		return nil, err
	}
	var composite models.CompositeState
	if err := json.Unmarshal(raw, &composite); err != nil {
		return nil, fmt.Errorf("failed to decode cached state: %w", err)
	}
	return &composite, nil
}

// freshCompositeState drops the cached state and reads it again
func (s *DrawServiceImpl) freshCompositeState(ctx context.Context) (*models.CompositeState, error) {
	s.invalidateState(ctx)
	return s.GetCompositeState(ctx)
}

func (s *DrawServiceImpl) invalidateState(ctx context.Context) {
	if err := s.cache.Delete(ctx, compositeStateKey); err != nil {
		slog.Warn("Failed to invalidate cached state", "error", err)
	}
}

// GetIncomingTransactions returns purchases since start
func (s *DrawServiceImpl) GetIncomingTransactions(ctx context.Context, start *time.Time) ([]models.LotteryTransaction, error) {
	return s.ledger.GetAllIncoming(ctx, s.cfg.LotteryAccount, start)
}

// GetOutgoingTransactions returns payments since start
func (s *DrawServiceImpl) GetOutgoingTransactions(ctx context.Context, start *time.Time) ([]models.LotteryTransaction, error) {
	return s.ledger.GetAllOutgoing(ctx, s.cfg.LotteryAccount, start)
}

// GetValidEntries returns the entries eligible for the current draw
func (s *DrawServiceImpl) GetValidEntries(ctx context.Context) ([]models.LotteryEntry, error) {
	composite, err := s.GetCompositeState(ctx)
	if err != nil {
		return nil, err
	}
	return s.validEntries(ctx, composite.Config)
}

func (s *DrawServiceImpl) validEntries(ctx context.Context, cfg models.Config) ([]models.LotteryEntry, error) {
	transactions, err := s.settlement.ComputeEntries(ctx, cfg.MaxSupportedRepeatsPerDraw, cfg.DaysPerDraw)
	if err != nil {
		return nil, err
	}
	return s.settlement.ComputeValidEntries(transactions, cfg.DiscountFactor), nil
}

// ComputeCurrentWinners computes winners against the current state without drawing
func (s *DrawServiceImpl) ComputeCurrentWinners(ctx context.Context) (*models.DrawRun, error) {
	return s.record(ctx, models.RunKindWinners, func(run *models.DrawRun) error {
		composite, err := s.GetCompositeState(ctx)
		if err != nil {
			return fmt.Errorf("failed to read contract state: %w", err)
		}
		return s.settle(ctx, run, composite)
	})
}

// ExecuteDraw broadcasts the draw, then settles against the new state
func (s *DrawServiceImpl) ExecuteDraw(ctx context.Context) (*models.DrawRun, error) {
	return s.record(ctx, models.RunKindDraw, func(run *models.DrawRun) error {
		state, err := s.contract.Draw(ctx)
		s.invalidateState(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute draw: %w", err)
		}
		run.Logf(s.now(), fmt.Sprintf("Draw confirmed: %v", state.LatestDraw))

		composite, err := s.freshCompositeState(ctx)
		if err != nil {
			return fmt.Errorf("failed to read contract state after draw: %w", err)
		}
		if err := s.settle(ctx, run, composite); err != nil {
			return err
		}
		if err := s.publisher.Publish(ctx, run.Winners); err != nil {
			return fmt.Errorf("failed to publish winners: %w", err)
		}
		return nil
	})
}

// settle computes valid entries and winners of composite into run
func (s *DrawServiceImpl) settle(ctx context.Context, run *models.DrawRun, composite *models.CompositeState) error {
	run.State = composite
	transactions, err := s.settlement.ComputeEntries(ctx, composite.Config.MaxSupportedRepeatsPerDraw, composite.Config.DaysPerDraw)
	if err != nil {
		return err
	}
	run.TransactionCount = len(transactions)
	run.Logf(s.now(), fmt.Sprintf("Fetched %d transactions with entries", len(transactions)))

	valid := s.settlement.ComputeValidEntries(transactions, composite.Config.DiscountFactor)
	run.ValidEntryCount = len(valid)
	run.Logf(s.now(), fmt.Sprintf("Validated %d entries", len(valid)))

	run.Winners = s.settlement.ComputeWinners(valid, composite.State)
	run.Logf(s.now(), fmt.Sprintf("Found %d winners", len(run.Winners)))
	return nil
}

// UpdateJackpot recomputes the jackpot from this draw's entries and payments
func (s *DrawServiceImpl) UpdateJackpot(ctx context.Context) (*models.DrawRun, error) {
	return s.record(ctx, models.RunKindJackpotUpdate, func(run *models.DrawRun) error {
		composite, err := s.freshCompositeState(ctx)
		if err != nil {
			return fmt.Errorf("failed to read contract state: %w", err)
		}
		run.State = composite

		valid, err := s.validEntries(ctx, composite.Config)
		if err != nil {
			return err
		}
		run.ValidEntryCount = len(valid)

		payments, err := s.ledger.GetAllOutgoing(ctx, s.cfg.LotteryAccount, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch outgoing transactions: %w", err)
		}
		var paid int64
		for _, p := range payments {
			paid += p.AmountNano
		}
		run.TransactionCount = len(payments)

		balance := s.settlement.ComputeJackpotUpdate(len(valid), s.cfg.TicketPriceNano, paid, composite.State.JackpotRolloverBalance)
		balance, err = s.adminFee.Deduct(ctx, balance)
		if err != nil {
			return fmt.Errorf("failed to deduct admin fee: %w", err)
		}
		run.JackpotBalanceNano = balance
		run.Logf(s.now(), fmt.Sprintf("New jackpot balance %d from %d entries and %d paid", balance, len(valid), paid))

		err = s.contract.SetState(ctx, models.State{
			JackpotAbsoluteBalance:       balance,
			JackpotRolloverBalance:       composite.State.JackpotRolloverBalance,
			PastRepeatedPurchasesBalance: composite.State.PastRepeatedPurchasesBalance,
		})
		s.invalidateState(ctx)
		if err != nil {
			return fmt.Errorf("failed to update contract state: %w", err)
		}
		return nil
	})
}

// PayoutWinners pays payees from the payment account
func (s *DrawServiceImpl) PayoutWinners(ctx context.Context, payees map[string]float64) (*models.DrawRun, error) {
	return s.payout(ctx, models.RunKindPayout, s.cfg.PaymentAccount, payees)
}

// PayoutAffiliates pays payees from the affiliate account
func (s *DrawServiceImpl) PayoutAffiliates(ctx context.Context, payees map[string]float64) (*models.DrawRun, error) {
	return s.payout(ctx, models.RunKindPayoutAffiliates, s.cfg.AffiliateAccount, payees)
}

func (s *DrawServiceImpl) payout(ctx context.Context, kind models.RunKind, account custody.PaymentAccount, payees map[string]float64) (*models.DrawRun, error) {
	return s.record(ctx, kind, func(run *models.DrawRun) error {
		result := s.payouts.Payout(ctx, PayoutRequest{
			AccountID:   account.ID,
			AccountType: account.Type,
			Payees:      payees,
			AssetID:     s.cfg.AssetID,
		})
		run.Payout = &result
		if result.Succeeded() {
			run.Logf(s.now(), fmt.Sprintf("Payout %s submitted with %d instructions", result.TransactionID, len(result.Instructions)))
			return nil
		}
		kind := PayoutErrorDownstream
		if result.Status == models.PayoutStatusInvalidInput {
			kind = PayoutErrorInvalidInput
		}
		return &PayoutError{Kind: kind, Err: errors.New(result.Error)}
	})
}

// GetRun returns a recorded run
func (s *DrawServiceImpl) GetRun(ctx context.Context, id primitive.ObjectID) (*models.DrawRun, error) {
	return s.runs.FindByID(ctx, id)
}

// ErrInvalidRunKind is returned when a run listing names an unknown kind
var ErrInvalidRunKind = errors.New("invalid run kind")

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// ListRuns returns the most recent runs, newest first, optionally of one kind
func (s *DrawServiceImpl) ListRuns(ctx context.Context, kind models.RunKind, limit int) ([]*models.DrawRun, error) {
	switch kind {
	case "", models.RunKindDraw, models.RunKindWinners, models.RunKindJackpotUpdate,
		models.RunKindPayout, models.RunKindPayoutAffiliates:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunKind, kind)
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	runs, err := s.runs.FindRecent(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// record persists a run around fn and finalizes its status from fn's outcome
func (s *DrawServiceImpl) record(ctx context.Context, kind models.RunKind, fn func(run *models.DrawRun) error) (run *models.DrawRun, err error) {
	run = &models.DrawRun{
		Kind:               kind,
		Status:             models.RunStatusExecuting,
		ExecutionStartTime: s.now(),
	}
	run.Logf(s.now(), "Starting execution")
	if err := s.runs.Create(ctx, run); err != nil {
		slog.Error("Failed to record run", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			run.Status = models.RunStatusFailed
			run.ErrorMessage = fmt.Sprintf("Panic during execution: %v", r)
			run.Logf(s.now(), fmt.Sprintf("PANIC: %v", r))
			err = fmt.Errorf("panic during %s: %v", kind, r)
		} else if err != nil {
			run.Status = models.RunStatusFailed
			run.ErrorMessage = err.Error()
			run.Logf(s.now(), "ERROR: "+err.Error())
		} else {
			run.Status = models.RunStatusCompleted
			run.Logf(s.now(), "Execution completed successfully")
		}
		run.ExecutionEndTime = s.now()

		// The run is final even when the caller gave up.
		if updateErr := s.runs.Update(context.WithoutCancel(ctx), run); updateErr != nil {
			slog.Error("CRITICAL: Failed to update final run status", "error", updateErr, "runId", run.ID, "status", run.Status)
		}
		if s.observer != nil {
			s.observer.ObserveRun(kind, run.Status)
		}
		slog.Info("Settlement run finished", "runId", run.ID, "kind", kind, "status", run.Status, "winners", len(run.Winners))
	}()

	err = fn(run)
	return run, err
}
