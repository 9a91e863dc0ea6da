package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure AnnouncementService implements WinnerPublisher
var _ WinnerPublisher = (*AnnouncementService)(nil)

// AnnouncementService publishes draw winners as stored announcements
type AnnouncementService struct {
	repo repositories.AnnouncementRepository
	now  func() time.Time
}

// NewAnnouncementService creates a new AnnouncementService
func NewAnnouncementService(repo repositories.AnnouncementRepository) *AnnouncementService {
	return &AnnouncementService{repo: repo, now: time.Now}
}

// Publish stores an announcement of winners. A draw without winners is still announced.
func (s *AnnouncementService) Publish(ctx context.Context, winners []models.Winner) error {
	announcement := models.NewAnnouncement(winners, s.now())
	if err := s.repo.Create(ctx, announcement); err != nil {
		return fmt.Errorf("failed to store announcement: %w", err)
	}
	slog.Info("Winners announced", "announcementId", announcement.ID, "winners", announcement.WinnerCount, "totalWinnings", announcement.TotalWinnings)
	return nil
}

// ListAnnouncements returns a page of announcements
func (s *AnnouncementService) ListAnnouncements(ctx context.Context, page, limit int) ([]*models.Announcement, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.FindAll(ctx, page, limit)
}
