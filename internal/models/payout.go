package models

// PayeeAccount identifies the destination of a payout instruction.
type PayeeAccount struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// PayoutAmount is the value and asset of a payout instruction.
type PayoutAmount struct {
	Value   string `json:"value"`
	AssetID string `json:"assetId"`
}

// PayoutInstruction is one independently idempotent leg of a payout.
type PayoutInstruction struct {
	ID           string       `json:"id"`
	PayeeAccount PayeeAccount `json:"payeeAccount"`
	Amount       PayoutAmount `json:"amount"`
}

// PayoutStatus is the outcome of a payout request.
type PayoutStatus string

const (
	PayoutStatusSucceeded    PayoutStatus = "succeeded"
	PayoutStatusInvalidInput PayoutStatus = "invalid_input"
	PayoutStatusRejected     PayoutStatus = "rejected"
)

// PayoutResult is what the payout orchestrator returns instead of a bare string.
type PayoutResult struct {
	Status        PayoutStatus        `json:"status" bson:"status"`
	TransactionID string              `json:"transactionId,omitempty" bson:"transactionId,omitempty"`
	Error         string              `json:"error,omitempty" bson:"error,omitempty"`
	Instructions  []PayoutInstruction `json:"instructions,omitempty" bson:"instructions,omitempty"`
}

// Succeeded reports whether the payout was accepted by the custody platform.
func (r PayoutResult) Succeeded() bool { return r.Status == PayoutStatusSucceeded }

// ExternalWalletAsset is an asset entry on a custody external wallet.
type ExternalWalletAsset struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Status  string `json:"status,omitempty"`
}

// ExternalWallet is a name-addressed custody wallet record.
type ExternalWallet struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Assets []ExternalWalletAsset `json:"assets"`
}
