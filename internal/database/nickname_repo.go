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

// MongoNicknameRepository implements NicknameRepository for MongoDB.
type MongoNicknameRepository struct {
	collection *mongo.Collection
}

// NewMongoNicknameRepository creates a nickname repository.
func NewMongoNicknameRepository(db *mongo.Database) *MongoNicknameRepository {
	return &MongoNicknameRepository{
		collection: db.Collection(nicknameCollection),
	}
}

// SetNickname creates or replaces the attribution nickname for a user.
func (r *MongoNicknameRepository) SetNickname(ctx context.Context, userID int64, nickname string) error {
	now := time.Now()
	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$set": bson.M{
			"nickname":   nickname,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"created_at": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to set nickname for user %d: %w", userID, err)
	}
	return nil
}

// DeleteNickname removes a user's nickname mapping. Deleting a missing
// mapping is not an error.
func (r *MongoNicknameRepository) DeleteNickname(ctx context.Context, userID int64) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete nickname for user %d: %w", userID, err)
	}
	return nil
}

// ListNicknames returns up to limit mappings sorted by nickname.
func (r *MongoNicknameRepository) ListNicknames(ctx context.Context, limit int) ([]models.Nickname, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "nickname", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list nicknames: %w", err)
	}
	defer cursor.Close(ctx)

	var nicknames []models.Nickname
	if err := cursor.All(ctx, &nicknames); err != nil {
		return nil, fmt.Errorf("failed to decode nicknames: %w", err)
	}
	return nicknames, nil
}

// ResolveNickname returns the stored nickname for a user, or "" when none
// exists.
func (r *MongoNicknameRepository) ResolveNickname(ctx context.Context, userID int64) (string, error) {
	var record models.Nickname
	if err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve nickname for user %d: %w", userID, err)
	}
	return record.Nickname, nil
}
