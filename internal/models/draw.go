package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunStatus represents the status of a settlement run
type RunStatus string

const (
	RunStatusExecuting RunStatus = "EXECUTING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// RunKind names the boundary trigger that started a run
type RunKind string

const (
	RunKindDraw             RunKind = "DRAW"
	RunKindWinners          RunKind = "WINNERS"
	RunKindJackpotUpdate    RunKind = "JACKPOT_UPDATE"
	RunKindPayout           RunKind = "PAYOUT"
	RunKindPayoutAffiliates RunKind = "PAYOUT_AFFILIATES"
)

// DrawRun records one invocation of a settlement trigger and what it produced
type DrawRun struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Kind               RunKind            `bson:"kind" json:"kind"`
	Status             RunStatus          `bson:"status" json:"status"`
	TransactionCount   int                `bson:"transactionCount" json:"transactionCount"`
	ValidEntryCount    int                `bson:"validEntryCount" json:"validEntryCount"`
	Winners            []Winner           `bson:"winners,omitempty" json:"winners,omitempty"`
	State              *CompositeState    `bson:"state,omitempty" json:"state,omitempty"`
	JackpotBalanceNano int64              `bson:"jackpotBalanceNano,omitempty" json:"jackpotBalanceNano,omitempty"`
	Payout             *PayoutResult      `bson:"payout,omitempty" json:"payout,omitempty"`
	ExecutionStartTime time.Time          `bson:"executionStartTime" json:"executionStartTime"`
	ExecutionEndTime   time.Time          `bson:"executionEndTime,omitempty" json:"executionEndTime,omitempty"`
	ExecutionLog       []string           `bson:"executionLog,omitempty" json:"executionLog,omitempty"`
	ErrorMessage       string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Logf appends a timestamped line to the execution log
func (r *DrawRun) Logf(now time.Time, line string) {
	r.ExecutionLog = append(r.ExecutionLog, now.Format(time.RFC3339)+": "+line)
}
