package models

import "time"

// Channel trust classifications. A channel carries at most one.
const (
	ClassificationGreen = "green"
	ClassificationRed   = "red"
	// Unclassified channels have an empty classification field.
)

// Channel is an outbound publishing target registered by the operator.
type Channel struct {
	ChannelID      int64     `bson:"channel_id"`
	Title          string    `bson:"title,omitempty"`
	Username       string    `bson:"username,omitempty"`
	Classification string    `bson:"classification,omitempty"`
	AddedAt        time.Time `bson:"added_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}
