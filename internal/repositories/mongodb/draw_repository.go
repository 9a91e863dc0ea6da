package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DrawRunRepository implements the repositories.DrawRunRepository interface
type DrawRunRepository struct {
	collection *mongo.Collection
}

// NewDrawRunRepository creates a new DrawRunRepository
func NewDrawRunRepository(db *mongo.Database) repositories.DrawRunRepository {
	return &DrawRunRepository{
		collection: db.Collection("draw_runs"),
	}
}

// Create inserts a run and sets its ID
func (r *DrawRunRepository) Create(ctx context.Context, run *models.DrawRun) error {
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	res, err := r.collection.InsertOne(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to insert draw run: %w", err)
	}
	run.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// Update replaces a run
func (r *DrawRunRepository) Update(ctx context.Context, run *models.DrawRun) error {
	run.UpdatedAt = time.Now()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	if err != nil {
		return fmt.Errorf("failed to update draw run: %w", err)
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// FindByID finds a run by ID
func (r *DrawRunRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.DrawRun, error) {
	var run models.DrawRun
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindRecent returns the latest runs of kind, newest first. An empty kind matches all.
func (r *DrawRunRepository) FindRecent(ctx context.Context, kind models.RunKind, limit int) ([]*models.DrawRun, error) {
	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}
	opts := options.Find().SetSort(bson.M{"executionStartTime": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []*models.DrawRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*models.DrawRun{}
	}
	return runs, nil
}
