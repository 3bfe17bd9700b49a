package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"repost-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSessionRepository implements SessionRepository for MongoDB.
type MongoSessionRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewMongoSessionRepository creates a session repository. Sessions expire ttl
// after creation.
func NewMongoSessionRepository(db *mongo.Database, ttl time.Duration) *MongoSessionRepository {
	return &MongoSessionRepository{
		collection: db.Collection(sessionCollection),
		ttl:        ttl,
	}
}

// CreateSession inserts a new session, stamping the lifecycle timestamps.
func (r *MongoSessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	now := time.Now()
	session.ID = primitive.NewObjectID()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(r.ttl)

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session for operator %d message %d already exists: %w", session.OperatorID, session.MessageID, err)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindSession looks a session up by operator and captured message ID. An
// expired session is deleted on sight and reported as missing; it must never
// be advanced again.
func (r *MongoSessionRepository) FindSession(ctx context.Context, operatorID int64, messageID int) (*models.Session, error) {
	filter := bson.M{"operator_id": operatorID, "message_id": messageID}

	var session models.Session
	if err := r.collection.FindOne(ctx, filter).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session for operator %d message %d: %w", operatorID, messageID, err)
	}

	if session.Expired(time.Now()) {
		if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": session.ID}); err != nil {
			log.Printf("[SessionRepo] Failed to purge expired session %s: %v", session.ID.Hex(), err)
		}
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// FindSessionByID retrieves a session by its ObjectID, with the same expiry
// handling as FindSession.
func (r *MongoSessionRepository) FindSessionByID(ctx context.Context, id primitive.ObjectID) (*models.Session, error) {
	var session models.Session
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session %s: %w", id.Hex(), err)
	}

	if session.Expired(time.Now()) {
		if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": session.ID}); err != nil {
			log.Printf("[SessionRepo] Failed to purge expired session %s: %v", session.ID.Hex(), err)
		}
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// FindSessionAwaitingText returns the chat's session currently waiting for a
// custom-text reply. The durable flag is what makes custom-text routing
// survive a restart; the handler's in-memory map is only the fast path.
func (r *MongoSessionRepository) FindSessionAwaitingText(ctx context.Context, chatID int64) (*models.Session, error) {
	filter := bson.M{"chat_id": chatID, "waiting_for_custom_text": true}

	var session models.Session
	if err := r.collection.FindOne(ctx, filter).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find waiting session for chat %d: %w", chatID, err)
	}

	if session.Expired(time.Now()) {
		if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": session.ID}); err != nil {
			log.Printf("[SessionRepo] Failed to purge expired session %s: %v", session.ID.Hex(), err)
		}
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// PatchSession applies the supplied field changes as one atomic update and
// stamps updated_at.
func (r *MongoSessionRepository) PatchSession(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) error {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set[k] = v
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to patch session %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session, e.g. on cancellation or completion.
func (r *MongoSessionRepository) DeleteSession(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpiredSessions purges sessions past their TTL. The Mongo TTL index
// does this too, but only on its own sweep cadence.
func (r *MongoSessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.DeletedCount, nil
}
