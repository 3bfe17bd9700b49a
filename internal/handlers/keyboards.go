package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"repost-bot/internal/database/models"
	"repost-bot/internal/locales"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wizard callback steps. Callback data is "wiz:<session-id>:<step>:<value>",
// well within Telegram's 64-byte payload limit.
const (
	callbackPrefix = "wiz"

	stepChannel  = "chan"
	stepAction   = "act"
	stepText     = "txt"
	stepNickname = "nick"
	stepCustom   = "cust"
	stepPreview  = "prev"
)

// nicknameNone marks the explicit "no attribution" choice.
const nicknameNone = "none"

// errInvalidCallback reports malformed or foreign callback payloads.
var errInvalidCallback = errors.New("invalid wizard callback data")

type wizardCallback struct {
	SessionID primitive.ObjectID
	Step      string
	Value     string
}

func callbackData(sessionID primitive.ObjectID, step, value string) string {
	return fmt.Sprintf("%s:%s:%s:%s", callbackPrefix, sessionID.Hex(), step, value)
}

func parseCallback(data string) (*wizardCallback, error) {
	parts := strings.SplitN(data, ":", 4)
	if len(parts) != 4 || parts[0] != callbackPrefix {
		return nil, errInvalidCallback
	}
	sessionID, err := primitive.ObjectIDFromHex(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad session id", errInvalidCallback)
	}
	return &wizardCallback{SessionID: sessionID, Step: parts[2], Value: parts[3]}, nil
}

func (h *MessageHandler) channelKeyboard(sessionID primitive.ObjectID, channels []models.Channel) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(channels))
	for _, channel := range channels {
		title := channel.Title
		if title == "" {
			title = strconv.FormatInt(channel.ChannelID, 10)
		}
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(title).
				WithCallbackData(callbackData(sessionID, stepChannel, strconv.FormatInt(channel.ChannelID, 10))),
		))
	}
	return tu.InlineKeyboard(rows...)
}

func (h *MessageHandler) actionKeyboard(sessionID primitive.ObjectID) *telego.InlineKeyboardMarkup {
	localizer := h.localizer()
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnForwardAsIs", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepAction, models.ActionForward)),
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnTransform", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepAction, models.ActionTransform)),
		),
	)
}

func (h *MessageHandler) textHandlingKeyboard(sessionID primitive.ObjectID) *telego.InlineKeyboardMarkup {
	localizer := h.localizer()
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnTextKeep", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepText, models.TextKeep)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnTextRemove", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepText, models.TextRemove)),
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnTextQuote", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepText, models.TextQuote)),
		),
	)
}

func (h *MessageHandler) nicknameKeyboard(sessionID primitive.ObjectID, nicknames []models.Nickname) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(nicknames)+1)
	for _, n := range nicknames {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(n.Nickname).
				WithCallbackData(callbackData(sessionID, stepNickname, strconv.FormatInt(n.UserID, 10))),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(locales.GetMessage(h.localizer(), "BtnNoAttribution", nil, nil)).
			WithCallbackData(callbackData(sessionID, stepNickname, nicknameNone)),
	))
	return tu.InlineKeyboard(rows...)
}

func (h *MessageHandler) customTextKeyboard(sessionID primitive.ObjectID) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.GetMessage(h.localizer(), "BtnSkip", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepCustom, "skip")),
		),
	)
}

func (h *MessageHandler) previewKeyboard(sessionID primitive.ObjectID) *telego.InlineKeyboardMarkup {
	localizer := h.localizer()
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnSchedule", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepPreview, "go")),
			tu.InlineKeyboardButton(locales.GetMessage(localizer, "BtnCancel", nil, nil)).
				WithCallbackData(callbackData(sessionID, stepPreview, "cancel")),
		),
	)
}
