package models

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session actions chosen by the operator during the wizard.
const (
	ActionTransform = "transform"
	ActionForward   = "forward"
)

// Text handling modes for the captured text.
const (
	TextKeep   = "keep"
	TextRemove = "remove"
	TextQuote  = "quote"
)

// CapturedMessage is an opaque snapshot of a message the operator sent to the
// bot. It carries everything later steps need so the original Telegram update
// does not have to be kept around.
type CapturedMessage struct {
	MessageID int    `bson:"message_id"`
	ChatID    int64  `bson:"chat_id"`
	Text      string `bson:"text,omitempty"`
	Caption   string `bson:"caption,omitempty"`

	// Media references. PhotoFileID holds the largest-resolution variant.
	PhotoFileID     string `bson:"photo_file_id,omitempty"`
	VideoFileID     string `bson:"video_file_id,omitempty"`
	DocumentFileID  string `bson:"document_file_id,omitempty"`
	AnimationFileID string `bson:"animation_file_id,omitempty"`
	MediaGroupID    string `bson:"media_group_id,omitempty"`

	Forward *ForwardInfo `bson:"forward,omitempty"`
}

// ForwardInfo describes where a captured message originally came from.
type ForwardInfo struct {
	FromChannelID    int64  `bson:"from_channel_id,omitempty"`
	ChannelTitle     string `bson:"channel_title,omitempty"`
	ChannelUsername  string `bson:"channel_username,omitempty"`
	ChannelMessageID int    `bson:"channel_message_id,omitempty"`
	FromUserID       int64  `bson:"from_user_id,omitempty"`
	UserName         string `bson:"user_name,omitempty"`
}

// HasChannel reports whether the provenance points at a channel.
func (f *ForwardInfo) HasChannel() bool {
	return f != nil && f.FromChannelID != 0
}

// HasUser reports whether the provenance points at a user.
func (f *ForwardInfo) HasUser() bool {
	return f != nil && f.FromUserID != 0
}

// Permalink returns a t.me link to the original channel post, or "" when the
// channel has no public username.
func (f *ForwardInfo) Permalink() string {
	if f == nil || f.ChannelUsername == "" || f.ChannelMessageID == 0 {
		return ""
	}
	return "https://t.me/" + f.ChannelUsername + "/" + strconv.Itoa(f.ChannelMessageID)
}

// Session is the persisted state of one forwarding wizard, keyed by the
// operator and the captured message. It is owned by the session repository;
// handlers mutate it only through patch updates.
type Session struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	OperatorID int64              `bson:"operator_id"`
	ChatID     int64              `bson:"chat_id"`
	MessageID  int                `bson:"message_id"`

	State string `bson:"state"`

	OriginalMessage    CapturedMessage   `bson:"original_message"`
	MediaGroupMessages []CapturedMessage `bson:"media_group_messages,omitempty"`
	ReplyChainMessages []CapturedMessage `bson:"reply_chain_messages,omitempty"`

	SelectedChannelID int64  `bson:"selected_channel_id,omitempty"`
	SelectedAction    string `bson:"selected_action,omitempty"`
	TextHandling      string `bson:"text_handling,omitempty"`

	// SelectedNickname is the operator's explicit choice. NicknameChosen
	// distinguishes "not asked yet" from an explicit "no attribution"
	// (NicknameChosen true, SelectedNickname nil).
	SelectedNickname *string `bson:"selected_nickname,omitempty"`
	NicknameChosen   bool    `bson:"nickname_chosen"`

	CustomText           string `bson:"custom_text,omitempty"`
	WaitingForCustomText bool   `bson:"waiting_for_custom_text"`
	PreviewMessageIDs    []int  `bson:"preview_message_ids,omitempty"`

	// PromptMessageID is the bot's wizard prompt, edited in place as the
	// operator steps through.
	PromptMessageID int `bson:"prompt_message_id,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Expired reports whether the session passed its TTL and must not advance.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsReplyChain reports whether the session captured a multi-message reply
// chain, which bypasses the transform steps entirely.
func (s *Session) IsReplyChain() bool {
	return len(s.ReplyChainMessages) > 1
}

// HasText reports whether there is any text the wizard could rewrite.
func (s *Session) HasText() bool {
	return s.Text() != ""
}

// Text returns the captured text, preferring message text over caption.
func (s *Session) Text() string {
	if s.OriginalMessage.Text != "" {
		return s.OriginalMessage.Text
	}
	return s.OriginalMessage.Caption
}
