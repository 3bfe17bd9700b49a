package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingPost statuses.
const (
	PostStatusPending = "pending"
	PostStatusPosted  = "posted"
	PostStatusFailed  = "failed"
)

// Content types carried by a pending post.
const (
	ContentText       = "text"
	ContentPhoto      = "photo"
	ContentVideo      = "video"
	ContentDocument   = "document"
	ContentAnimation  = "animation"
	ContentMediaGroup = "media_group"
)

// MediaItem is one photo or video inside a media-group payload.
type MediaItem struct {
	Type   string `bson:"type"` // "photo" or "video"
	FileID string `bson:"file_id"`
}

// PostContent is the typed payload delivered by the publish worker.
// Transform posts carry file IDs plus the already-rendered final text;
// forward posts carry the source chat and message IDs to re-forward.
type PostContent struct {
	Type   string      `bson:"type"`
	Text   string      `bson:"text,omitempty"`
	FileID string      `bson:"file_id,omitempty"`
	Items  []MediaItem `bson:"items,omitempty"`

	SourceChatID     int64 `bson:"source_chat_id,omitempty"`
	SourceMessageIDs []int `bson:"source_message_ids,omitempty"`
}

// PendingPost is one scheduled publication. At most one post may occupy a
// given (scheduled_time, channel_id) pair; the Mongo unique index on that pair
// is what makes concurrent slot assignment safe.
type PendingPost struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ScheduledTime time.Time          `bson:"scheduled_time"`
	ChannelID     int64              `bson:"channel_id"`
	Status        string             `bson:"status"`
	Action        string             `bson:"action"` // "transform" or "forward"

	Content         PostContent  `bson:"content"`
	OriginalForward *ForwardInfo `bson:"original_forward,omitempty"`

	Error              string     `bson:"error,omitempty"`
	PublishedMessageID int        `bson:"published_message_id,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	PostedAt           *time.Time `bson:"posted_at,omitempty"`
}
