package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/exp/slog"
)

// CacheRepository implements repositories.Cache on a collection with a TTL index
type CacheRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewCacheRepository creates a new CacheRepository
func NewCacheRepository(db *mongo.Database) *CacheRepository {
	return &CacheRepository{
		collection: db.Collection("cache"),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique key index and the expiry TTL index
func (r *CacheRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("failed to create cache indexes: %w", err)
	}
	return nil
}

// GetOrSet returns the unexpired value for key or loads and stores it.
// Mongo's TTL monitor runs about once a minute, so expiry is also checked here.
func (r *CacheRepository) GetOrSet(ctx context.Context, key string, ttl time.Duration, load repositories.Loader) ([]byte, error) {
	now := r.now()
	var entry models.CacheEntry
	err := r.collection.FindOne(ctx, bson.M{"key": key, "expiresAt": bson.M{"$gt": now}}).Decode(&entry)
	if err == nil {
		return entry.Value, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		slog.Warn("Cache read failed, loading directly", "key", key, "error", err)
	}

	value, err := load(ctx)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": models.CacheEntry{Key: key, Value: value, ExpiresAt: now.Add(ttl), CreatedAt: now}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"key": key}, update, options.Update().SetUpsert(true)); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
	return value, nil
}

// Delete removes key
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"key": key})
	return err
}
