package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/utils"
	"github.com/ArowuTest/lottery-settlement/pkg/custody"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure PayoutServiceImpl implements PayoutService
var _ PayoutService = (*PayoutServiceImpl)(nil)

// walletNamePrefix names the external wallet of a payee address
const walletNamePrefix = "lottery-"

// externalWalletType is the payee account type of custody external wallets
const externalWalletType = "EXTERNAL_WALLET"

// CustodyAPI is the custody platform surface used for payouts
type CustodyAPI interface {
	ListExternalWallets(ctx context.Context) ([]models.ExternalWallet, error)
	CreateExternalWallet(ctx context.Context, name, idempotencyKey string) (*models.ExternalWallet, error)
	AddExternalWalletAsset(ctx context.Context, walletID, assetID, address, idempotencyKey string) (*models.ExternalWalletAsset, error)
	SubmitPayout(ctx context.Context, account custody.PaymentAccount, instructions []models.PayoutInstruction, idempotencyKey string) (string, error)
}

// PayoutRequest describes one payout from a custody account
type PayoutRequest struct {
	AccountID   string
	AccountType string
	Payees      map[string]float64
	AssetID     string
}

// PayoutErrorKind distinguishes bad input from downstream failure
type PayoutErrorKind string

const (
	PayoutErrorInvalidInput PayoutErrorKind = "invalid_input"
	PayoutErrorDownstream   PayoutErrorKind = "downstream"
)

// PayoutError is a typed payout failure
type PayoutError struct {
	Kind PayoutErrorKind
	Err  error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout %s: %v", e.Kind, e.Err)
}

func (e *PayoutError) Unwrap() error { return e.Err }

func invalidInput(format string, args ...interface{}) error {
	return &PayoutError{Kind: PayoutErrorInvalidInput, Err: fmt.Errorf(format, args...)}
}

func downstream(err error) error {
	return &PayoutError{Kind: PayoutErrorDownstream, Err: err}
}

// ParsePayees decodes a JSON object of address to amount
func ParsePayees(raw []byte) (map[string]float64, error) {
	var payees map[string]float64
	if err := json.Unmarshal(raw, &payees); err != nil {
		return nil, invalidInput("payees must be an object of address to amount: %v", err)
	}
	if err := validatePayees(payees); err != nil {
		return nil, err
	}
	return payees, nil
}

func validatePayees(payees map[string]float64) error {
	if len(payees) == 0 {
		return invalidInput("no payees")
	}
	for address, amount := range payees {
		if strings.TrimSpace(address) == "" {
			return invalidInput("empty payee address")
		}
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
			return invalidInput("amount for %s must be positive", utils.MaskAddress(address))
		}
	}
	return nil
}

// PayoutServiceImpl orchestrates destination setup and payout submission
type PayoutServiceImpl struct {
	custody CustodyAPI
	newKey  func() string
}

// NewPayoutService creates a new PayoutServiceImpl
func NewPayoutService(api CustodyAPI) *PayoutServiceImpl {
	return &PayoutServiceImpl{custody: api, newKey: uuid.NewString}
}

// Payout ensures a wallet and asset per payee, then submits all instructions at once
func (s *PayoutServiceImpl) Payout(ctx context.Context, req PayoutRequest) models.PayoutResult {
	instructions, txID, err := s.payout(ctx, req)
	if err != nil {
		status := models.PayoutStatusRejected
		var perr *PayoutError
		if errors.As(err, &perr) && perr.Kind == PayoutErrorInvalidInput {
			status = models.PayoutStatusInvalidInput
		}
		slog.Error("Payout failed", "status", status, "account", req.AccountID, "payees", len(req.Payees), "error", err)
		return models.PayoutResult{Status: status, Error: err.Error(), Instructions: instructions}
	}
	slog.Info("Payout submitted", "transactionId", txID, "account", req.AccountID, "instructions", len(instructions))
	return models.PayoutResult{Status: models.PayoutStatusSucceeded, TransactionID: txID, Instructions: instructions}
}

func (s *PayoutServiceImpl) payout(ctx context.Context, req PayoutRequest) ([]models.PayoutInstruction, string, error) {
	if req.AccountID == "" || req.AccountType == "" {
		return nil, "", invalidInput("payment account is required")
	}
	if req.AssetID == "" {
		return nil, "", invalidInput("asset id is required")
	}
	if err := validatePayees(req.Payees); err != nil {
		return nil, "", err
	}

	wallets, err := s.custody.ListExternalWallets(ctx)
	if err != nil {
		return nil, "", downstream(err)
	}
	byName := make(map[string]*models.ExternalWallet, len(wallets))
	for i := range wallets {
		byName[wallets[i].Name] = &wallets[i]
	}

	addresses := make([]string, 0, len(req.Payees))
	for address := range req.Payees {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	instructions := make([]models.PayoutInstruction, 0, len(addresses))
	for _, address := range addresses {
		wallet, err := s.ensureWallet(ctx, byName, address)
		if err != nil {
			return instructions, "", downstream(err)
		}
		if err := s.ensureAsset(ctx, wallet, req.AssetID, address); err != nil {
			return instructions, "", downstream(err)
		}
		instructions = append(instructions, models.PayoutInstruction{
			ID:           s.newKey(),
			PayeeAccount: models.PayeeAccount{ID: wallet.ID, Type: externalWalletType},
			Amount: models.PayoutAmount{
				Value:   strconv.FormatFloat(req.Payees[address], 'f', -1, 64),
				AssetID: req.AssetID,
			},
		})
	}

	account := custody.PaymentAccount{ID: req.AccountID, Type: req.AccountType}
	txID, err := s.custody.SubmitPayout(ctx, account, instructions, s.newKey())
	if err != nil {
		return instructions, "", downstream(err)
	}
	return instructions, txID, nil
}

// ensureWallet returns the payee wallet from byName, creating and caching it when absent
func (s *PayoutServiceImpl) ensureWallet(ctx context.Context, byName map[string]*models.ExternalWallet, address string) (*models.ExternalWallet, error) {
	name := walletNamePrefix + address
	if wallet, ok := byName[name]; ok {
		return wallet, nil
	}
	wallet, err := s.custody.CreateExternalWallet(ctx, name, s.newKey())
	if err != nil {
		return nil, err
	}
	slog.Info("Created external wallet", "walletId", wallet.ID, "payee", utils.MaskAddress(address))
	byName[name] = wallet
	return wallet, nil
}

// ensureAsset adds the payee address as an asset of wallet when it is not there yet
func (s *PayoutServiceImpl) ensureAsset(ctx context.Context, wallet *models.ExternalWallet, assetID, address string) error {
	for _, asset := range wallet.Assets {
		if asset.Address == address {
			return nil
		}
	}
	asset, err := s.custody.AddExternalWalletAsset(ctx, wallet.ID, assetID, address, s.newKey())
	if err != nil {
		return err
	}
	wallet.Assets = append(wallet.Assets, *asset)
	return nil
}
