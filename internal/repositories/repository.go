package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Loader produces the value to cache on a miss
type Loader func(ctx context.Context) ([]byte, error)

// Cache defines a get-or-set cache with per-entry TTL
type Cache interface {
	// GetOrSet returns the cached value for key, calling load and storing the
	// result for ttl on a miss. Load errors are returned and nothing is stored.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error)
	// Delete removes key
	Delete(ctx context.Context, key string) error
}

// DrawRunRepository defines the interface for settlement run records
type DrawRunRepository interface {
	Create(ctx context.Context, run *models.DrawRun) error
	Update(ctx context.Context, run *models.DrawRun) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.DrawRun, error)
	FindRecent(ctx context.Context, kind models.RunKind, limit int) ([]*models.DrawRun, error)
}

// NopCache never stores anything; every call loads.
type NopCache struct{}

// GetOrSet calls load
func (NopCache) GetOrSet(ctx context.Context, _ string, _ time.Duration, load Loader) ([]byte, error) {
	return load(ctx)
}

// Delete does nothing
func (NopCache) Delete(context.Context, string) error { return nil }

// AnnouncementRepository stores published winner announcements
type AnnouncementRepository interface {
	Create(ctx context.Context, announcement *models.Announcement) error
	FindAll(ctx context.Context, page, limit int) ([]*models.Announcement, error)
}
