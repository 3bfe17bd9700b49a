package database

import (
	"context"
	"fmt"
	"time"

	"repost-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoChannelRepository implements ChannelRepository for MongoDB.
type MongoChannelRepository struct {
	collection *mongo.Collection
}

// NewMongoChannelRepository creates a channel repository.
func NewMongoChannelRepository(db *mongo.Database) *MongoChannelRepository {
	return &MongoChannelRepository{
		collection: db.Collection(channelCollection),
	}
}

// UpsertChannel creates or updates a channel registration.
func (r *MongoChannelRepository) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	now := time.Now()
	filter := bson.M{"channel_id": channel.ChannelID}
	update := bson.M{
		"$set": bson.M{
			"title":      channel.Title,
			"username":   channel.Username,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"channel_id":     channel.ChannelID,
			"classification": channel.Classification,
			"added_at":       now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert channel %d: %w", channel.ChannelID, err)
	}
	return nil
}

// DeleteChannel removes a channel registration.
func (r *MongoChannelRepository) DeleteChannel(ctx context.Context, channelID int64) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"channel_id": channelID})
	if err != nil {
		return fmt.Errorf("failed to delete channel %d: %w", channelID, err)
	}
	if result.DeletedCount == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// GetChannel retrieves a channel by its Telegram ID.
func (r *MongoChannelRepository) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	var channel models.Channel
	if err := r.collection.FindOne(ctx, bson.M{"channel_id": channelID}).Decode(&channel); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find channel %d: %w", channelID, err)
	}
	return &channel, nil
}

// ListChannels returns all registered channels, oldest first.
func (r *MongoChannelRepository) ListChannels(ctx context.Context) ([]models.Channel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer cursor.Close(ctx)

	var channels []models.Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return channels, nil
}

// SetClassification moves a channel between the green/red/unclassified lists.
func (r *MongoChannelRepository) SetClassification(ctx context.Context, channelID int64, classification string) error {
	update := bson.M{"$set": bson.M{
		"classification": classification,
		"updated_at":     time.Now(),
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"channel_id": channelID}, update)
	if err != nil {
		return fmt.Errorf("failed to set classification for channel %d: %w", channelID, err)
	}
	if result.MatchedCount == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// IsGreenListed reports whether a channel is fully trusted. Unknown channels
// are simply unclassified.
func (r *MongoChannelRepository) IsGreenListed(ctx context.Context, channelID int64) (bool, error) {
	return r.hasClassification(ctx, channelID, models.ClassificationGreen)
}

// IsRedListed reports whether a channel's provenance must be hidden.
func (r *MongoChannelRepository) IsRedListed(ctx context.Context, channelID int64) (bool, error) {
	return r.hasClassification(ctx, channelID, models.ClassificationRed)
}

func (r *MongoChannelRepository) hasClassification(ctx context.Context, channelID int64, classification string) (bool, error) {
	filter := bson.M{"channel_id": channelID, "classification": classification}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check classification of channel %d: %w", channelID, err)
	}
	return count > 0, nil
}
