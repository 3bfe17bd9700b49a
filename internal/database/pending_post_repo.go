package database

import (
	"context"
	"fmt"
	"time"

	"repost-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPendingPostRepository implements PendingPostRepository for MongoDB.
type MongoPendingPostRepository struct {
	collection *mongo.Collection
}

// NewMongoPendingPostRepository creates a pending post repository.
func NewMongoPendingPostRepository(db *mongo.Database) *MongoPendingPostRepository {
	return &MongoPendingPostRepository{
		collection: db.Collection(pendingPostCollection),
	}
}

// CreatePendingPost inserts a post in pending status. A duplicate-key
// rejection from the (scheduled_time, channel_id) unique index surfaces as
// ErrSlotTaken so the scheduler can recompute.
func (r *MongoPendingPostRepository) CreatePendingPost(ctx context.Context, post *models.PendingPost) error {
	post.ID = primitive.NewObjectID()
	post.Status = models.PostStatusPending
	post.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, post); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to insert pending post: %w", err)
	}
	return nil
}

// LatestForChannel returns the pending post with the latest scheduled time
// for a channel, the tail the scheduler chains new slots after.
func (r *MongoPendingPostRepository) LatestForChannel(ctx context.Context, channelID int64) (*models.PendingPost, error) {
	filter := bson.M{"channel_id": channelID, "status": models.PostStatusPending}
	opts := options.FindOne().SetSort(bson.D{{Key: "scheduled_time", Value: -1}})

	var post models.PendingPost
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&post); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find latest pending post for channel %d: %w", channelID, err)
	}
	return &post, nil
}

// FindDue returns up to limit pending posts whose slot has passed, earliest
// first.
func (r *MongoPendingPostRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.PendingPost, error) {
	filter := bson.M{
		"status":         models.PostStatusPending,
		"scheduled_time": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find due pending posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.PendingPost
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode due pending posts: %w", err)
	}
	return posts, nil
}

// MarkPosted transitions a post to posted, recording the channel message ID
// and publish time.
func (r *MongoPendingPostRepository) MarkPosted(ctx context.Context, id primitive.ObjectID, publishedMessageID int, postedAt time.Time) error {
	update := bson.M{"$set": bson.M{
		"status":               models.PostStatusPosted,
		"published_message_id": publishedMessageID,
		"posted_at":            postedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark post %s posted: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// MarkFailed transitions a post to failed and stores the delivery error.
func (r *MongoPendingPostRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, cause string) error {
	update := bson.M{"$set": bson.M{
		"status": models.PostStatusFailed,
		"error":  cause,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark post %s failed: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// UpcomingForChannel lists the channel's queued posts, soonest first.
func (r *MongoPendingPostRepository) UpcomingForChannel(ctx context.Context, channelID int64, limit int) ([]models.PendingPost, error) {
	filter := bson.M{"channel_id": channelID, "status": models.PostStatusPending}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming posts for channel %d: %w", channelID, err)
	}
	defer cursor.Close(ctx)

	var posts []models.PendingPost
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode upcoming posts: %w", err)
	}
	return posts, nil
}

// RecentFailures lists the most recently scheduled failed posts.
func (r *MongoPendingPostRepository) RecentFailures(ctx context.Context, limit int) ([]models.PendingPost, error) {
	filter := bson.M{"status": models.PostStatusFailed}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_time", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find failed posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.PendingPost
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode failed posts: %w", err)
	}
	return posts, nil
}

// DeleteFinishedBefore garbage-collects posted and failed posts older than
// the retention cutoff. Pending posts are never touched.
func (r *MongoPendingPostRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":         bson.M{"$in": []string{models.PostStatusPosted, models.PostStatusFailed}},
		"scheduled_time": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished posts before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.DeletedCount, nil
}
