package services

import (
	"context"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SettlementService defines the settlement engine
type SettlementService interface {
	// ComputeEntries fetches purchases old enough to still hold entries valid for the current draw
	ComputeEntries(ctx context.Context, repeats, daysPerDraw int64) ([]models.LotteryTransaction, error)

	// ComputeValidEntries applies the discount check per transaction and the weekly eligibility per entry
	ComputeValidEntries(transactions []models.LotteryTransaction, discount models.DiscountFactor) []models.LotteryEntry

	// ComputeWinners matches valid entries against the latest draw
	ComputeWinners(valid []models.LotteryEntry, state models.State) []models.Winner

	// ComputeJackpotUpdate returns the new jackpot balance
	ComputeJackpotUpdate(validEntryCount int, ticketPriceNano, totalPaymentsNano, priorRolloverNano int64) int64
}

// PayoutService defines the payout orchestrator
type PayoutService interface {
	// Payout ensures a destination per payee and submits one payout. It never
	// returns a bare failure; the outcome is in the result status.
	Payout(ctx context.Context, req PayoutRequest) models.PayoutResult
}

// DrawService defines the operations triggered from the HTTP boundary
type DrawService interface {
	// GetCompositeState returns config and state, served from cache when fresh
	GetCompositeState(ctx context.Context) (*models.CompositeState, error)

	// GetIncomingTransactions returns purchases since start (default: last Monday)
	GetIncomingTransactions(ctx context.Context, start *time.Time) ([]models.LotteryTransaction, error)

	// GetOutgoingTransactions returns payments since start (default: last Monday)
	GetOutgoingTransactions(ctx context.Context, start *time.Time) ([]models.LotteryTransaction, error)

	// GetValidEntries returns the entries eligible for the current draw
	GetValidEntries(ctx context.Context) ([]models.LotteryEntry, error)

	// ComputeCurrentWinners computes winners against the current state without drawing
	ComputeCurrentWinners(ctx context.Context) (*models.DrawRun, error)

	// ExecuteDraw broadcasts a draw and computes its winners
	ExecuteDraw(ctx context.Context) (*models.DrawRun, error)

	// UpdateJackpot recomputes the jackpot balance and writes it to the contract
	UpdateJackpot(ctx context.Context) (*models.DrawRun, error)

	// PayoutWinners pays payees from the payment account
	PayoutWinners(ctx context.Context, payees map[string]float64) (*models.DrawRun, error)

	// PayoutAffiliates pays payees from the affiliate account
	PayoutAffiliates(ctx context.Context, payees map[string]float64) (*models.DrawRun, error)

	// GetRun returns a recorded run
	GetRun(ctx context.Context, id primitive.ObjectID) (*models.DrawRun, error)

	// ListRuns returns recent runs, newest first; an empty kind lists every kind
	ListRuns(ctx context.Context, kind models.RunKind, limit int) ([]*models.DrawRun, error)
}
