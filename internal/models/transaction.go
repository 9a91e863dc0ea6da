package models

import "time"

// TransactionType classifies a decoded ledger transaction.
type TransactionType string

const (
	TransactionTypePurchase TransactionType = "Purchase"
	TransactionTypePayment  TransactionType = "Payment"
)

// NanoPerUnit is the number of ledger minor units in one major unit.
const NanoPerUnit = 1_000_000_000

// LotteryEntry is one set of chosen numbers carried in a purchase memo.
type LotteryEntry struct {
	Numbers          []int     `json:"numbers" bson:"numbers"`
	EntryRepeatCount int       `json:"entryRepeatCount" bson:"entryRepeatCount"`
	Timestamp        time.Time `json:"timestamp" bson:"timestamp"`
	Address          string    `json:"address" bson:"address"`
	TransactionHash  string    `json:"transactionHash" bson:"transactionHash"`
}

// LotteryTransaction is a ledger transaction whose memo decoded successfully.
type LotteryTransaction struct {
	Hash        string          `json:"hash" bson:"hash"`
	Type        TransactionType `json:"type" bson:"type"`
	Timestamp   time.Time       `json:"timestamp" bson:"timestamp"`
	Source      string          `json:"source" bson:"source"`
	Destination string          `json:"destination" bson:"destination"`
	Amount      float64         `json:"amount" bson:"amount"`
	AmountNano  int64           `json:"amountNano" bson:"amountNano"`
	Comment     string          `json:"comment" bson:"comment"`
	Entries     []LotteryEntry  `json:"entries,omitempty" bson:"entries,omitempty"`
}
