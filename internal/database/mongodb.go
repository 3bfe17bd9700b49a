package database

import (
	"context"
	"fmt"
	"log"

	"repost-bot/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	sessionCollection     = "sessions"
	pendingPostCollection = "pending_posts"
	channelCollection     = "channels"
	nicknameCollection    = "nicknames"
	actionLogCollection   = "operator_actions"
)

// ConnectDB establishes a connection to MongoDB using the provided
// configuration and verifies it with a ping. It returns the client and the
// application database.
func ConnectDB(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(cfg.MongoDBURI).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("Successfully connected and pinged MongoDB!")

	return client, client.Database(cfg.MongoDBDatabase), nil
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// indexes are load-bearing: (operator_id, message_id) keeps one session per
// captured message, and (scheduled_time, channel_id) is what makes concurrent
// slot assignment race-free. The TTL index lets MongoDB purge expired
// sessions on its own.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "operator_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := db.Collection(sessionCollection).Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	postIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "scheduled_time", Value: 1},
				{Key: "channel_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "scheduled_time", Value: 1},
			},
		},
	}
	if _, err := db.Collection(pendingPostCollection).Indexes().CreateMany(ctx, postIndexes); err != nil {
		return fmt.Errorf("failed to create pending post indexes: %w", err)
	}

	channelIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(channelCollection).Indexes().CreateOne(ctx, channelIndex); err != nil {
		return fmt.Errorf("failed to create channel index: %w", err)
	}

	nicknameIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(nicknameCollection).Indexes().CreateOne(ctx, nicknameIndex); err != nil {
		return fmt.Errorf("failed to create nickname index: %w", err)
	}

	return nil
}
