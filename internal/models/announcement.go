package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnnouncementStatus represents the visibility of a winner announcement
type AnnouncementStatus string

const (
	AnnouncementStatusActive      AnnouncementStatus = "ACTIVE"
	AnnouncementStatusDeactivated AnnouncementStatus = "DEACTIVATED"
)

// Announcement publishes the winners of one draw
type Announcement struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title         string             `json:"title" bson:"title"`
	Winners       []Winner           `json:"winners" bson:"winners"`
	WinnerCount   int                `json:"winnerCount" bson:"winnerCount"`
	TotalWinnings int64              `json:"totalWinnings" bson:"totalWinnings"`
	JackpotHits   int                `json:"jackpotHits" bson:"jackpotHits"`
	Status        AnnouncementStatus `json:"status" bson:"status"`
	AnnouncedAt   time.Time          `json:"announcedAt" bson:"announcedAt"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// NewAnnouncement summarizes winners into an active announcement
func NewAnnouncement(winners []Winner, now time.Time) *Announcement {
	a := &Announcement{
		Title:       "Draw results " + now.UTC().Format("2006-01-02"),
		Winners:     winners,
		WinnerCount: len(winners),
		Status:      AnnouncementStatusActive,
		AnnouncedAt: now,
	}
	for _, w := range winners {
		a.TotalWinnings += w.Winnings
		if w.JackpotMatched {
			a.JackpotHits++
		}
	}
	return a
}
