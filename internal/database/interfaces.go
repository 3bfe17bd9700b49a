package database

import (
	"context"
	"errors"
	"time"

	"repost-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel errors returned by the repositories.
var (
	// ErrSessionNotFound is returned when a wizard session does not exist
	// or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSlotTaken is returned when a pending post insert loses the race
	// for a (scheduled_time, channel_id) slot.
	ErrSlotTaken = errors.New("publish slot already taken")
	// ErrPostNotFound is returned when no pending post matches a query.
	ErrPostNotFound = errors.New("pending post not found")
	// ErrChannelNotFound is returned for unknown channel IDs.
	ErrChannelNotFound = errors.New("channel not found")
)

// SessionRepository stores in-flight wizard sessions, one per captured
// message, unique per (operator, message).
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	// FindSession looks a session up by its compound key. Expired sessions
	// are treated as missing.
	FindSession(ctx context.Context, operatorID int64, messageID int) (*models.Session, error)
	FindSessionByID(ctx context.Context, id primitive.ObjectID) (*models.Session, error)
	// FindSessionAwaitingText returns the chat's session whose wizard is
	// waiting for a custom-text reply, so routing survives a restart.
	FindSessionAwaitingText(ctx context.Context, chatID int64) (*models.Session, error)
	// PatchSession applies a partial update. Callers supply only the
	// changed fields; updated_at is stamped on every write.
	PatchSession(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) error
	DeleteSession(ctx context.Context, id primitive.ObjectID) error
	// DeleteExpiredSessions purges sessions past their TTL and returns the
	// number removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PendingPostRepository stores scheduled publications. The storage layer
// enforces uniqueness of (scheduled_time, channel_id).
type PendingPostRepository interface {
	// CreatePendingPost inserts a post in "pending" status. Returns
	// ErrSlotTaken when the slot is already occupied.
	CreatePendingPost(ctx context.Context, post *models.PendingPost) error
	// LatestForChannel returns the channel's pending post with the latest
	// scheduled time, or ErrPostNotFound.
	LatestForChannel(ctx context.Context, channelID int64) (*models.PendingPost, error)
	// FindDue returns up to limit pending posts due at or before now,
	// earliest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.PendingPost, error)
	MarkPosted(ctx context.Context, id primitive.ObjectID, publishedMessageID int, postedAt time.Time) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, cause string) error
	UpcomingForChannel(ctx context.Context, channelID int64, limit int) ([]models.PendingPost, error)
	RecentFailures(ctx context.Context, limit int) ([]models.PendingPost, error)
	// DeleteFinishedBefore removes posted/failed posts older than cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChannelRepository manages outbound channels and their trust classification.
type ChannelRepository interface {
	UpsertChannel(ctx context.Context, channel *models.Channel) error
	DeleteChannel(ctx context.Context, channelID int64) error
	GetChannel(ctx context.Context, channelID int64) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
	SetClassification(ctx context.Context, channelID int64, classification string) error
	IsGreenListed(ctx context.Context, channelID int64) (bool, error)
	IsRedListed(ctx context.Context, channelID int64) (bool, error)
}

// NicknameRepository maps sender identities to attribution nicknames.
type NicknameRepository interface {
	SetNickname(ctx context.Context, userID int64, nickname string) error
	DeleteNickname(ctx context.Context, userID int64) error
	// ResolveNickname returns the persisted nickname for a user, or ""
	// when none is stored.
	ResolveNickname(ctx context.Context, userID int64) (string, error)
	// ListNicknames returns up to limit mappings, alphabetically.
	ListNicknames(ctx context.Context, limit int) ([]models.Nickname, error)
}

// OperatorActionLogger records operator activity for auditing.
type OperatorActionLogger interface {
	LogOperatorAction(ctx context.Context, operatorID int64, action string, details interface{}) error
}
