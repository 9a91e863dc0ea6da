package contract

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
)

// MessageSender signs and broadcasts an internal message to the contract.
type MessageSender interface {
	Send(ctx context.Context, msg wallet.Message) error
}

// BuildDrawBody encodes the draw call: opcode then query id.
func BuildDrawBody(opcode uint32, queryID uint64) (*boc.Cell, error) {
	cell := boc.NewCell()
	if err := writeHeader(cell, opcode, queryID); err != nil {
		return nil, err
	}
	return cell, nil
}

// BuildSetStateBody encodes the state update call: opcode, query id, then the
// three balances as 64 bit unsigned integers.
func BuildSetStateBody(opcode uint32, queryID uint64, state models.State) (*boc.Cell, error) {
	cell := boc.NewCell()
	if err := writeHeader(cell, opcode, queryID); err != nil {
		return nil, err
	}
	for _, v := range []int64{
		state.JackpotAbsoluteBalance,
		state.JackpotRolloverBalance,
		state.PastRepeatedPurchasesBalance,
	} {
		if err := cell.WriteUint(uint64(v), 64); err != nil {
			return nil, fmt.Errorf("failed to write balance: %w", err)
		}
	}
	return cell, nil
}

func writeHeader(cell *boc.Cell, opcode uint32, queryID uint64) error {
	if err := cell.WriteUint(uint64(opcode), 32); err != nil {
		return fmt.Errorf("failed to write opcode: %w", err)
	}
	if err := cell.WriteUint(queryID, 64); err != nil {
		return fmt.Errorf("failed to write query id: %w", err)
	}
	return nil
}

// newMessage wraps body as a bounceable message to address carrying fee.
func newMessage(address ton.AccountID, fee uint64, body *boc.Cell) wallet.Message {
	return wallet.Message{
		Amount:  tlb.Grams(fee),
		Address: address,
		Bounce:  true,
		Mode:    wallet.DefaultMessageMode,
		Body:    body,
	}
}

// WalletSender broadcasts messages from a wallet reconstructed from its key.
type WalletSender struct {
	wallet wallet.Wallet
}

// NewWalletSender connects to mainnet lite servers and opens the wallet of key.
func NewWalletSender(key ed25519.PrivateKey, version string) (*WalletSender, error) {
	ver, err := parseWalletVersion(version)
	if err != nil {
		return nil, err
	}
	client, err := liteapi.NewClientWithDefaultMainnet()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lite servers: %w", err)
	}
	w, err := wallet.New(key, ver, client)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}
	return &WalletSender{wallet: w}, nil
}

// Send signs msg with the wallet key and broadcasts it.
func (s *WalletSender) Send(ctx context.Context, msg wallet.Message) error {
	return s.wallet.Send(ctx, msg)
}

func parseWalletVersion(v string) (wallet.Version, error) {
	switch strings.ToLower(v) {
	case "", "v4r2":
		return wallet.V4R2, nil
	case "v3r2":
		return wallet.V3R2, nil
	case "v3r1":
		return wallet.V3R1, nil
	}
	return 0, fmt.Errorf("unsupported wallet version %q", v)
}
