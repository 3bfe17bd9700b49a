package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoActionLogger implements OperatorActionLogger using MongoDB.
type MongoActionLogger struct {
	collection *mongo.Collection
}

// NewMongoActionLogger creates an operator action logger.
func NewMongoActionLogger(db *mongo.Database) *MongoActionLogger {
	return &MongoActionLogger{
		collection: db.Collection(actionLogCollection),
	}
}

// LogOperatorAction writes one audit entry: who did what, with free-form
// details.
func (l *MongoActionLogger) LogOperatorAction(ctx context.Context, operatorID int64, action string, details interface{}) error {
	_, err := l.collection.InsertOne(ctx, map[string]interface{}{
		"operator_id": operatorID,
		"action":      action,
		"details":     details,
		"time":        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert operator action log: %w", err)
	}
	return nil
}
