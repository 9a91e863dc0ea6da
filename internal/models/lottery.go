package models

// DiscountFactor grants Get free ticket units for every ForEvery units purchased.
type DiscountFactor struct {
	ForEvery int64 `json:"forEvery" bson:"forEvery"`
	Get      int64 `json:"get" bson:"get"`
}

// Config is the lottery contract configuration as returned by its config getter.
type Config struct {
	RequiredNumbersCount       int64          `json:"requiredNumbersCount" bson:"requiredNumbersCount"`
	MaxNumberRange             int64          `json:"maxNumberRange" bson:"maxNumberRange"`
	MaxJackpotNumberRange      int64          `json:"maxJackpotNumberRange" bson:"maxJackpotNumberRange"`
	MaxSupportedRepeatsPerDraw int64          `json:"maxSupportedRepeatsPerDraw" bson:"maxSupportedRepeatsPerDraw"`
	DefaultRepeatSelection     int64          `json:"defaultRepeatSelection" bson:"defaultRepeatSelection"`
	DaysPerDraw                int64          `json:"daysPerDraw" bson:"daysPerDraw"`
	DiscountFactor             DiscountFactor `json:"discountFactor" bson:"discountFactor"`
}

// State is the mutable contract state. The last element of LatestDraw is the
// jackpot number. Balances are in nano units.
type State struct {
	LatestDraw                   []int `json:"latestDraw" bson:"latestDraw"`
	JackpotAbsoluteBalance       int64 `json:"jackpotAbsoluteBalance" bson:"jackpotAbsoluteBalance"`
	JackpotRolloverBalance       int64 `json:"jackpotRolloverBalance" bson:"jackpotRolloverBalance"`
	PastRepeatedPurchasesBalance int64 `json:"pastRepeatedPurchasesBalance" bson:"pastRepeatedPurchasesBalance"`
}

// JackpotNumber returns the last drawn number and false when no draw happened yet.
func (s State) JackpotNumber() (int, bool) {
	if len(s.LatestDraw) == 0 {
		return 0, false
	}
	return s.LatestDraw[len(s.LatestDraw)-1], true
}

// CompositeState is Config and State read back to back. The two reads are not atomic.
type CompositeState struct {
	Config Config `json:"config" bson:"config"`
	State  State  `json:"state" bson:"state"`
}
