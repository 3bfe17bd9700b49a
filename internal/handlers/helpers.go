package handlers

import (
	"context"
	"log"

	"repost-bot/internal/locales"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// localizer returns the localizer for the configured default language. The
// bot serves a single operator, so per-user language negotiation is not
// needed.
func (h *MessageHandler) localizer() *i18n.Localizer {
	return locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
}

// sendMessage sends a plain text message, logging failures.
func (h *MessageHandler) sendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		log.Printf("Error sending message to chat %d: %v", chatID, err)
	}
	return err
}

// notify sends a localized message by ID.
func (h *MessageHandler) notify(ctx context.Context, chatID int64, msgID string, data map[string]interface{}) error {
	text := locales.GetMessage(h.localizer(), msgID, data, nil)
	return h.sendMessage(ctx, chatID, text)
}

// editOrSend replaces the wizard prompt in place; when the edit fails (the
// prompt may have been deleted) it falls back to a fresh message. A failed
// notification must never crash the handler.
func (h *MessageHandler) editOrSend(ctx context.Context, chatID int64, messageID int, text string, keyboard *telego.InlineKeyboardMarkup) int {
	if messageID != 0 {
		params := &telego.EditMessageTextParams{
			ChatID:    tu.ID(chatID),
			MessageID: messageID,
			Text:      text,
		}
		if keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		if _, err := h.bot.EditMessageText(ctx, params); err == nil {
			return messageID
		} else {
			log.Printf("Error editing prompt %d in chat %d: %v", messageID, chatID, err)
		}
	}

	msg := tu.Message(tu.ID(chatID), text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	sent, err := h.bot.SendMessage(ctx, msg)
	if err != nil {
		log.Printf("Error sending prompt to chat %d: %v", chatID, err)
		return 0
	}
	return sent.MessageID
}
