package models

import "time"

// Nickname maps a Telegram user to the attribution name shown in published
// posts. Used by the automatic lookup when the operator made no explicit
// selection in the wizard.
type Nickname struct {
	UserID    int64     `bson:"user_id"`
	Nickname  string    `bson:"nickname"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}
