package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"
	"repost-bot/internal/locales"
	"repost-bot/internal/mediagroups"
	"repost-bot/internal/wizard"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleMessage is the capture entry point for non-command messages. It
// routes custom-text replies to their waiting session, media-group parts to
// the aggregator, reply-chain parts to their root session, and everything
// else into a fresh wizard.
func (h *MessageHandler) HandleMessage(ctx context.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	if !h.gate.IsOperator(message.From.ID) {
		log.Printf("[Capture User:%d] Ignoring message from non-operator", message.From.ID)
		return h.notify(ctx, message.Chat.ID, "MsgErrorNotOperator", nil)
	}

	// A session waiting for custom text consumes the next plain text
	// message in its chat. The in-memory map is only the fast path; the
	// persisted waiting flag keeps routing correct across restarts.
	if message.Text != "" && message.MediaGroupID == "" && message.ForwardOrigin == nil {
		if sid, ok := h.awaitingText.Load(message.Chat.ID); ok {
			return h.handleCustomTextReply(ctx, message, sid.(primitive.ObjectID))
		}
		waiting, err := h.sessions.FindSessionAwaitingText(ctx, message.Chat.ID)
		if err == nil {
			return h.handleCustomTextReply(ctx, message, waiting.ID)
		}
		if !errors.Is(err, database.ErrSessionNotFound) {
			log.Printf("[Capture Chat:%d] Failed to look up waiting session: %v", message.Chat.ID, err)
			sentry.CaptureException(err)
		}
	}

	if message.MediaGroupID != "" {
		h.mediaGroups.HandleMessage(message, h.processMediaGroup)
		return nil
	}

	// A reply to a message that has an open wizard extends its chain
	// instead of opening a new one.
	if message.ReplyToMessage != nil {
		appended, err := h.appendToReplyChain(ctx, message)
		if err != nil {
			return err
		}
		if appended {
			return nil
		}
	}

	captured := captureMessage(message)
	if !supportedContent(captured) {
		return h.notify(ctx, message.Chat.ID, "MsgUnsupportedContent", nil)
	}

	return h.startWizard(ctx, message.Chat.ID, captured, nil)
}

// startWizard creates a session in channel_select and sends the channel
// prompt.
func (h *MessageHandler) startWizard(ctx context.Context, chatID int64, captured models.CapturedMessage, groupMessages []models.CapturedMessage) error {
	channels, err := h.channels.ListChannels(ctx)
	if err != nil {
		h.notifyError(ctx, chatID)
		return fmt.Errorf("failed to list channels for wizard: %w", err)
	}
	if len(channels) == 0 {
		return h.notify(ctx, chatID, "MsgNoChannelsConfigured", nil)
	}

	session := &models.Session{
		OperatorID:         h.gate.OperatorID(),
		ChatID:             chatID,
		MessageID:          captured.MessageID,
		State:              string(wizard.StateChannelSelect),
		OriginalMessage:    captured,
		MediaGroupMessages: groupMessages,
	}
	if err := h.sessions.CreateSession(ctx, session); err != nil {
		h.notifyError(ctx, chatID)
		return fmt.Errorf("failed to create session: %w", err)
	}

	prompt := locales.GetMessage(h.localizer(), "MsgPromptChannel", nil, nil)
	promptID := h.editOrSend(ctx, chatID, 0, prompt, h.channelKeyboard(session.ID, channels))
	if promptID != 0 {
		if err := h.sessions.PatchSession(ctx, session.ID, map[string]interface{}{
			"prompt_message_id": promptID,
		}); err != nil {
			log.Printf("[Wizard Session:%s] Failed to store prompt id: %v", session.ID.Hex(), err)
		}
	}
	log.Printf("[Wizard Session:%s] Started for message %d", session.ID.Hex(), captured.MessageID)
	return nil
}

// handleCustomTextReply consumes the operator's custom text and advances the
// waiting session to preview.
func (h *MessageHandler) handleCustomTextReply(ctx context.Context, message telego.Message, sessionID primitive.ObjectID) error {
	h.awaitingText.Delete(message.Chat.ID)

	session, err := h.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return h.notify(ctx, message.Chat.ID, "MsgSessionExpired", nil)
		}
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to load session for custom text: %w", err)
	}

	session.CustomText = message.Text
	session.WaitingForCustomText = false
	return h.advance(ctx, session, wizard.StatePreview, map[string]interface{}{
		"custom_text":             message.Text,
		"waiting_for_custom_text": false,
	})
}

// appendToReplyChain extends an open wizard whose captured message the new
// one replies to. Returns false when no such wizard exists.
func (h *MessageHandler) appendToReplyChain(ctx context.Context, message telego.Message) (bool, error) {
	root, err := h.sessions.FindSession(ctx, h.gate.OperatorID(), message.ReplyToMessage.MessageID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up reply chain root: %w", err)
	}
	if root.State != string(wizard.StateChannelSelect) {
		// Chains only grow while the channel is still being chosen.
		return false, nil
	}

	chain := root.ReplyChainMessages
	if len(chain) == 0 {
		chain = []models.CapturedMessage{root.OriginalMessage}
	}
	chain = append(chain, captureMessage(message))

	if err := h.sessions.PatchSession(ctx, root.ID, map[string]interface{}{
		"reply_chain_messages": chain,
	}); err != nil {
		return false, fmt.Errorf("failed to extend reply chain: %w", err)
	}
	log.Printf("[Wizard Session:%s] Reply chain extended to %d message(s)", root.ID.Hex(), len(chain))
	return true, nil
}

// processMediaGroup is the aggregator flush handler: it collapses a flushed
// group into one wizard session.
func (h *MessageHandler) processMediaGroup(ctx context.Context, groupID string, messages []telego.Message) error {
	primary := messages[0]

	items, caption := mediagroups.ExtractContent(messages)
	if len(items) == 0 {
		log.Printf("[Capture Group:%s] No extractable media, treating as unsupported", groupID)
		return h.notify(ctx, primary.Chat.ID, "MsgUnsupportedContent", nil)
	}

	captured := captureMessage(primary)
	captured.Caption = caption

	groupMessages := make([]models.CapturedMessage, 0, len(messages))
	for _, msg := range messages {
		groupMessages = append(groupMessages, captureMessage(msg))
	}

	return h.startWizard(ctx, primary.Chat.ID, captured, groupMessages)
}

// notifyError sends the generic localized error, best effort.
func (h *MessageHandler) notifyError(ctx context.Context, chatID int64) {
	_ = h.notify(ctx, chatID, "MsgErrorGeneral", nil)
}

// captureMessage snapshots the parts of a Telegram message the wizard needs.
func captureMessage(message telego.Message) models.CapturedMessage {
	captured := models.CapturedMessage{
		MessageID:    message.MessageID,
		ChatID:       message.Chat.ID,
		Text:         message.Text,
		Caption:      message.Caption,
		MediaGroupID: message.MediaGroupID,
		Forward:      extractForward(message),
	}
	if len(message.Photo) > 0 {
		captured.PhotoFileID = mediagroups.LargestPhoto(message.Photo).FileID
	}
	if message.Video != nil {
		captured.VideoFileID = message.Video.FileID
	}
	if message.Document != nil {
		captured.DocumentFileID = message.Document.FileID
	}
	if message.Animation != nil {
		captured.AnimationFileID = message.Animation.FileID
		// Telegram sends animations with a stub document attached.
		captured.DocumentFileID = ""
	}
	return captured
}

// extractForward maps Telegram forward origins onto provenance.
func extractForward(message telego.Message) *models.ForwardInfo {
	switch origin := message.ForwardOrigin.(type) {
	case *telego.MessageOriginChannel:
		return &models.ForwardInfo{
			FromChannelID:    origin.Chat.ID,
			ChannelTitle:     origin.Chat.Title,
			ChannelUsername:  origin.Chat.Username,
			ChannelMessageID: origin.MessageID,
		}
	case *telego.MessageOriginUser:
		return &models.ForwardInfo{
			FromUserID: origin.SenderUser.ID,
			UserName:   origin.SenderUser.FirstName,
		}
	case *telego.MessageOriginHiddenUser:
		return &models.ForwardInfo{UserName: origin.SenderUserName}
	default:
		return nil
	}
}

func supportedContent(captured models.CapturedMessage) bool {
	return captured.Text != "" ||
		captured.PhotoFileID != "" ||
		captured.VideoFileID != "" ||
		captured.DocumentFileID != "" ||
		captured.AnimationFileID != ""
}
