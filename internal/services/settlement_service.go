package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/utils"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure SettlementServiceImpl implements SettlementService
var _ SettlementService = (*SettlementServiceImpl)(nil)

// TransactionReader is the ledger access the engine needs
type TransactionReader interface {
	GetAllIncoming(ctx context.Context, account string, start *time.Time) ([]models.LotteryTransaction, error)
	GetAllOutgoing(ctx context.Context, account string, start *time.Time) ([]models.LotteryTransaction, error)
}

// prize is one row of the winnings table
type prize struct {
	base, withJackpot int64
}

// prizeTable maps match count to winnings. Six matches only pay with the jackpot.
var prizeTable = map[int]prize{
	3: {base: 10, withJackpot: 100},
	4: {base: 100, withJackpot: 1000},
	5: {base: 1000, withJackpot: 10000},
	6: {base: 0, withJackpot: 100000},
}

// SettlementServiceImpl computes entries, winners and jackpot balances
type SettlementServiceImpl struct {
	ledger  TransactionReader
	account string
	now     func() time.Time
}

// NewSettlementService creates a new SettlementServiceImpl for the lottery account
func NewSettlementService(ledger TransactionReader, account string) *SettlementServiceImpl {
	return &SettlementServiceImpl{ledger: ledger, account: account, now: time.Now}
}

// ComputeEntries returns incoming transactions carrying entries since the lookback start
func (s *SettlementServiceImpl) ComputeEntries(ctx context.Context, repeats, daysPerDraw int64) ([]models.LotteryTransaction, error) {
	start := utils.LookbackStart(s.now(), daysPerDraw, repeats)
	incoming, err := s.ledger.GetAllIncoming(ctx, s.account, &start)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incoming transactions: %w", err)
	}

	withEntries := make([]models.LotteryTransaction, 0, len(incoming))
	for _, tx := range incoming {
		if len(tx.Entries) > 0 {
			withEntries = append(withEntries, tx)
		}
	}
	slog.Info("Computed entries", "since", start, "transactions", len(incoming), "withEntries", len(withEntries))
	return withEntries, nil
}

// ComputeValidEntries keeps entries of transactions whose paid amount matches
// their ticket units, and of those only entries still eligible this week
func (s *SettlementServiceImpl) ComputeValidEntries(transactions []models.LotteryTransaction, discount models.DiscountFactor) []models.LotteryEntry {
	monday := utils.MostRecentMonday(s.now())
	var valid []models.LotteryEntry
	rejected := 0
	for _, tx := range transactions {
		if !amountMatches(tx, discount) {
			rejected++
			slog.Debug("Discarding transaction with mismatched amount", "hash", tx.Hash, "amountNano", tx.AmountNano)
			continue
		}
		for _, entry := range tx.Entries {
			if utils.WeeksSince(monday, entry.Timestamp) <= entry.EntryRepeatCount+1 {
				valid = append(valid, entry)
			}
		}
	}
	slog.Info("Computed valid entries", "transactions", len(transactions), "rejected", rejected, "valid", len(valid))
	return valid
}

// maxUnits is the largest unit count whose nano amount fits in an int64
const maxUnits = math.MaxInt64 / models.NanoPerUnit

// amountMatches checks the paid amount against the entry units, with or without
// discount. A unit count that cannot be priced in int64 never matches.
func amountMatches(tx models.LotteryTransaction, discount models.DiscountFactor) bool {
	var units int64
	for _, entry := range tx.Entries {
		if entry.EntryRepeatCount < 0 || int64(entry.EntryRepeatCount) >= maxUnits-units {
			return false
		}
		units += int64(entry.EntryRepeatCount) + 1
	}
	if units*models.NanoPerUnit == tx.AmountNano {
		return true
	}
	if discount.ForEvery <= 0 {
		return false
	}
	discounted := units - (units/discount.ForEvery)*discount.Get
	return discounted*models.NanoPerUnit == tx.AmountNano
}

// ComputeWinners returns every valid entry with non-zero winnings
func (s *SettlementServiceImpl) ComputeWinners(valid []models.LotteryEntry, state models.State) []models.Winner {
	jackpot, drawn := state.JackpotNumber()
	if !drawn {
		return nil
	}
	inDraw := make(map[int]bool, len(state.LatestDraw))
	for _, n := range state.LatestDraw {
		inDraw[n] = true
	}

	var winners []models.Winner
	for _, entry := range valid {
		matches := 0
		jackpotMatched := false
		seen := make(map[int]bool, len(entry.Numbers))
		for _, n := range entry.Numbers {
			if seen[n] {
				continue
			}
			seen[n] = true
			if inDraw[n] {
				matches++
			}
			if n == jackpot {
				jackpotMatched = true
			}
		}

		row := prizeTable[matches]
		winnings := row.base
		if jackpotMatched {
			winnings = row.withJackpot
		}
		if winnings == 0 {
			continue
		}
		winners = append(winners, models.Winner{
			Entry:          entry,
			Matches:        matches,
			JackpotMatched: jackpotMatched,
			Winnings:       winnings,
		})
	}
	return winners
}

// ComputeJackpotUpdate returns validEntryCount x ticketPrice - payments + prior rollover
func (s *SettlementServiceImpl) ComputeJackpotUpdate(validEntryCount int, ticketPriceNano, totalPaymentsNano, priorRolloverNano int64) int64 {
	return int64(validEntryCount)*ticketPriceNano - totalPaymentsNano + priorRolloverNano
}

// WinnerPublisher announces the winners of a draw
type WinnerPublisher interface {
	Publish(ctx context.Context, winners []models.Winner) error
}

// AdminFeeHook adjusts a new jackpot balance before it is written
type AdminFeeHook interface {
	Deduct(ctx context.Context, balanceNano int64) (int64, error)
}

// NopWinnerPublisher publishes nothing. No announcement channel is defined yet.
type NopWinnerPublisher struct{}

// Publish does nothing
func (NopWinnerPublisher) Publish(context.Context, []models.Winner) error { return nil }

// NopAdminFee deducts nothing. No fee rule is defined yet.
type NopAdminFee struct{}

// Deduct returns balanceNano unchanged
func (NopAdminFee) Deduct(_ context.Context, balanceNano int64) (int64, error) { return balanceNano, nil }
