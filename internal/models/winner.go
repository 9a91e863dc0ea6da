package models

// Winner pairs a valid entry with the amount it won.
type Winner struct {
	Entry          LotteryEntry `json:"entry" bson:"entry"`
	Matches        int          `json:"matches" bson:"matches"`
	JackpotMatched bool         `json:"jackpotMatched" bson:"jackpotMatched"`
	Winnings       int64        `json:"winnings" bson:"winnings"`
}
