package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AnnouncementRepository stores winner announcements in MongoDB
type AnnouncementRepository struct {
	collection *mongo.Collection
}

// NewAnnouncementRepository creates a new AnnouncementRepository
func NewAnnouncementRepository(db *mongo.Database) repositories.AnnouncementRepository {
	return &AnnouncementRepository{
		collection: db.Collection("winner_announcements"),
	}
}

// Create inserts an announcement
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	announcement.ID = primitive.NewObjectID()
	announcement.CreatedAt = time.Now()
	announcement.UpdatedAt = announcement.CreatedAt
	_, err := r.collection.InsertOne(ctx, announcement)
	return err
}

// FindAll returns a page of announcements, newest first
func (r *AnnouncementRepository) FindAll(ctx context.Context, page, limit int) ([]*models.Announcement, error) {
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetSort(bson.M{"announcedAt": -1})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var announcements []*models.Announcement
	if err := cursor.All(ctx, &announcements); err != nil {
		return nil, err
	}
	if announcements == nil {
		announcements = []*models.Announcement{}
	}
	return announcements, nil
}
