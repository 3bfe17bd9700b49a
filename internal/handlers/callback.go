package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"
	"repost-bot/internal/locales"
	"repost-bot/internal/wizard"

	"github.com/mymmrac/telego"
)

// HandleCallbackQuery drives the wizard: every inline button press lands
// here, is validated against the session's current state, applied as a patch,
// and answered by editing the prompt into the next step.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error {
	ack := func(text string) {
		params := &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}
		if text != "" {
			params.Text = text
		}
		if err := h.bot.AnswerCallbackQuery(ctx, params); err != nil {
			log.Printf("Error answering callback query %s: %v", query.ID, err)
		}
	}

	if !h.gate.IsOperator(query.From.ID) {
		ack(locales.GetMessage(h.localizer(), "MsgErrorNotOperator", nil, nil))
		return nil
	}

	cb, err := parseCallback(query.Data)
	if err != nil {
		ack(locales.GetMessage(h.localizer(), "MsgInvalidSelection", nil, nil))
		return nil
	}

	var promptChatID int64
	var promptMessageID int
	if msg, ok := query.Message.(*telego.Message); ok && msg != nil {
		promptChatID = msg.Chat.ID
		promptMessageID = msg.MessageID
	}

	session, err := h.sessions.FindSessionByID(ctx, cb.SessionID)
	if err != nil {
		ack("")
		if errors.Is(err, database.ErrSessionNotFound) {
			if promptChatID != 0 {
				expired := locales.GetMessage(h.localizer(), "MsgSessionExpired", nil, nil)
				h.editOrSend(ctx, promptChatID, promptMessageID, expired, nil)
			}
			return nil
		}
		return fmt.Errorf("failed to load session %s: %w", cb.SessionID.Hex(), err)
	}
	ack("")

	// The callback may arrive on a prompt the session does not know about
	// yet (races with the stored prompt id); trust Telegram's copy.
	if promptMessageID != 0 {
		session.PromptMessageID = promptMessageID
	}

	switch cb.Step {
	case stepChannel:
		return h.onChannelChosen(ctx, session, cb.Value)
	case stepAction:
		return h.onActionChosen(ctx, session, cb.Value)
	case stepText:
		return h.onTextHandlingChosen(ctx, session, cb.Value)
	case stepNickname:
		return h.onNicknameChosen(ctx, session, cb.Value)
	case stepCustom:
		return h.onCustomTextSkipped(ctx, session, cb.Value)
	case stepPreview:
		return h.onPreviewDecision(ctx, session, cb.Value)
	default:
		return h.rejectSelection(ctx, session)
	}
}

func (h *MessageHandler) onChannelChosen(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StateChannelSelect) {
		return h.rejectSelection(ctx, session)
	}

	channelID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return h.rejectSelection(ctx, session)
	}
	if _, err := h.channels.GetChannel(ctx, channelID); err != nil {
		if errors.Is(err, database.ErrChannelNotFound) {
			return h.rejectSelection(ctx, session)
		}
		return fmt.Errorf("failed to verify channel %d: %w", channelID, err)
	}

	session.SelectedChannelID = channelID
	fields := map[string]interface{}{"selected_channel_id": channelID}

	// Reply chains skip the transform questions entirely and forward
	// verbatim after confirmation.
	if session.IsReplyChain() {
		session.SelectedAction = models.ActionForward
		fields["selected_action"] = models.ActionForward
		return h.advance(ctx, session, wizard.StatePreview, fields)
	}

	wctx, err := h.wizardContext(ctx, session)
	if err != nil {
		return err
	}
	next, err := wizard.Next(wizard.StateChannelSelect, wctx)
	if err != nil {
		return err
	}

	// Fully trusted source: publish without further questions.
	if next == wizard.StateCompleted {
		session.SelectedAction = models.ActionTransform
		session.TextHandling = models.TextKeep
		fields["selected_action"] = models.ActionTransform
		fields["text_handling"] = models.TextKeep
		if err := h.sessions.PatchSession(ctx, session.ID, fields); err != nil {
			return fmt.Errorf("failed to patch session %s: %w", session.ID.Hex(), err)
		}
		return h.scheduleSession(ctx, session, "MsgGreenAutoScheduled")
	}

	if next == wizard.StateNicknameSelect && h.hasAutoNickname(ctx, session) {
		next = wizard.StateCustomText
	}
	return h.advance(ctx, session, next, fields)
}

func (h *MessageHandler) onActionChosen(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StateActionSelect) {
		return h.rejectSelection(ctx, session)
	}
	if value != models.ActionTransform && value != models.ActionForward {
		return h.rejectSelection(ctx, session)
	}

	session.SelectedAction = value
	fields := map[string]interface{}{"selected_action": value}

	wctx, err := h.wizardContext(ctx, session)
	if err != nil {
		return err
	}
	wctx.IsForward = value == models.ActionForward

	next, err := wizard.Next(wizard.StateActionSelect, wctx)
	if err != nil {
		return err
	}
	if next == wizard.StateCompleted {
		if err := h.sessions.PatchSession(ctx, session.ID, fields); err != nil {
			return fmt.Errorf("failed to patch session %s: %w", session.ID.Hex(), err)
		}
		return h.scheduleSession(ctx, session, "MsgScheduledAt")
	}
	if next == wizard.StateNicknameSelect && h.hasAutoNickname(ctx, session) {
		next = wizard.StateCustomText
	}
	return h.advance(ctx, session, next, fields)
}

func (h *MessageHandler) onTextHandlingChosen(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StateTextHandling) {
		return h.rejectSelection(ctx, session)
	}
	switch value {
	case models.TextKeep, models.TextRemove, models.TextQuote:
	default:
		return h.rejectSelection(ctx, session)
	}

	session.TextHandling = value
	fields := map[string]interface{}{"text_handling": value}

	wctx, err := h.wizardContext(ctx, session)
	if err != nil {
		return err
	}
	next, err := wizard.Next(wizard.StateTextHandling, wctx)
	if err != nil {
		return err
	}
	if next == wizard.StateNicknameSelect && h.hasAutoNickname(ctx, session) {
		next = wizard.StateCustomText
	}
	return h.advance(ctx, session, next, fields)
}

func (h *MessageHandler) onNicknameChosen(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StateNicknameSelect) {
		return h.rejectSelection(ctx, session)
	}

	fields := map[string]interface{}{"nickname_chosen": true}
	session.NicknameChosen = true

	if value == nicknameNone {
		session.SelectedNickname = nil
		fields["selected_nickname"] = nil
	} else {
		userID, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return h.rejectSelection(ctx, session)
		}
		nickname, err := h.nicknames.ResolveNickname(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to resolve nickname for user %d: %w", userID, err)
		}
		if nickname == "" {
			return h.rejectSelection(ctx, session)
		}
		session.SelectedNickname = &nickname
		fields["selected_nickname"] = nickname
	}

	return h.advance(ctx, session, wizard.StateCustomText, fields)
}

func (h *MessageHandler) onCustomTextSkipped(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StateCustomText) || value != "skip" {
		return h.rejectSelection(ctx, session)
	}
	h.awaitingText.Delete(session.ChatID)
	session.WaitingForCustomText = false
	return h.advance(ctx, session, wizard.StatePreview, map[string]interface{}{
		"waiting_for_custom_text": false,
	})
}

func (h *MessageHandler) onPreviewDecision(ctx context.Context, session *models.Session, value string) error {
	if session.State != string(wizard.StatePreview) {
		return h.rejectSelection(ctx, session)
	}
	switch value {
	case "go":
		return h.scheduleSession(ctx, session, "MsgScheduledAt")
	case "cancel":
		return h.cancelSession(ctx, session)
	default:
		return h.rejectSelection(ctx, session)
	}
}

// advance persists the transition and redraws the prompt for the new state.
func (h *MessageHandler) advance(ctx context.Context, session *models.Session, next wizard.State, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["state"] = string(next)
	if next == wizard.StateCustomText {
		fields["waiting_for_custom_text"] = true
	}
	if err := h.sessions.PatchSession(ctx, session.ID, fields); err != nil {
		return fmt.Errorf("failed to patch session %s: %w", session.ID.Hex(), err)
	}
	session.State = string(next)
	log.Printf("[Wizard Session:%s] Advanced to %s", session.ID.Hex(), next)
	return h.showPrompt(ctx, session, next)
}

// showPrompt edits the wizard prompt into the UI for state.
func (h *MessageHandler) showPrompt(ctx context.Context, session *models.Session, state wizard.State) error {
	localizer := h.localizer()

	var text string
	var keyboard *telego.InlineKeyboardMarkup

	switch state {
	case wizard.StateActionSelect:
		text = locales.GetMessage(localizer, "MsgPromptAction", nil, nil)
		keyboard = h.actionKeyboard(session.ID)
	case wizard.StateTextHandling:
		text = locales.GetMessage(localizer, "MsgPromptTextHandling", nil, nil)
		keyboard = h.textHandlingKeyboard(session.ID)
	case wizard.StateNicknameSelect:
		nicknames, err := h.nicknames.ListNicknames(ctx, 20)
		if err != nil {
			return fmt.Errorf("failed to list nicknames: %w", err)
		}
		text = locales.GetMessage(localizer, "MsgPromptNickname", nil, nil)
		keyboard = h.nicknameKeyboard(session.ID, nicknames)
	case wizard.StateCustomText:
		h.awaitingText.Store(session.ChatID, session.ID)
		session.WaitingForCustomText = true
		text = locales.GetMessage(localizer, "MsgPromptCustomText", nil, nil)
		keyboard = h.customTextKeyboard(session.ID)
	case wizard.StatePreview:
		return h.showPreview(ctx, session)
	default:
		return &wizard.InvalidStateError{State: state}
	}

	promptID := h.editOrSend(ctx, session.ChatID, session.PromptMessageID, text, keyboard)
	h.rememberPrompt(ctx, session, promptID)
	return nil
}

// rememberPrompt stores a changed prompt message id back on the session.
func (h *MessageHandler) rememberPrompt(ctx context.Context, session *models.Session, promptID int) {
	if promptID == 0 || promptID == session.PromptMessageID {
		return
	}
	session.PromptMessageID = promptID
	if err := h.sessions.PatchSession(ctx, session.ID, map[string]interface{}{
		"prompt_message_id": promptID,
	}); err != nil {
		log.Printf("[Wizard Session:%s] Failed to store prompt id: %v", session.ID.Hex(), err)
	}
}

// wizardContext resolves the captured message's properties against the
// channel trust lists. Classification follows the source channel the message
// was forwarded from, never the selected target.
func (h *MessageHandler) wizardContext(ctx context.Context, session *models.Session) (wizard.Context, error) {
	wctx := wizard.Context{HasText: session.HasText()}

	fwd := session.OriginalMessage.Forward
	if !fwd.HasChannel() {
		return wctx, nil
	}

	green, err := h.channels.IsGreenListed(ctx, fwd.FromChannelID)
	if err != nil {
		return wctx, fmt.Errorf("failed to check green list for channel %d: %w", fwd.FromChannelID, err)
	}
	wctx.IsGreenListed = green

	red, err := h.channels.IsRedListed(ctx, fwd.FromChannelID)
	if err != nil {
		return wctx, fmt.Errorf("failed to check red list for channel %d: %w", fwd.FromChannelID, err)
	}
	wctx.IsRedListed = red
	return wctx, nil
}

// hasAutoNickname reports whether the attribution lookup already resolves,
// which lets the wizard pass through the nickname step without prompting.
func (h *MessageHandler) hasAutoNickname(ctx context.Context, session *models.Session) bool {
	fwd := session.OriginalMessage.Forward
	if !fwd.HasUser() {
		return false
	}
	nickname, err := h.nicknames.ResolveNickname(ctx, fwd.FromUserID)
	if err != nil {
		log.Printf("[Wizard Session:%s] Nickname lookup failed: %v", session.ID.Hex(), err)
		return false
	}
	return nickname != ""
}

// rejectSelection answers a stale or malformed button press without
// disturbing the session.
func (h *MessageHandler) rejectSelection(ctx context.Context, session *models.Session) error {
	return h.notify(ctx, session.ChatID, "MsgInvalidSelection", nil)
}

// cancelSession abandons the wizard and cleans up its prompt.
func (h *MessageHandler) cancelSession(ctx context.Context, session *models.Session) error {
	h.awaitingText.Delete(session.ChatID)
	if err := h.sessions.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", session.ID.Hex(), err)
	}
	cancelled := locales.GetMessage(h.localizer(), "MsgCancelled", nil, nil)
	h.editOrSend(ctx, session.ChatID, session.PromptMessageID, cancelled, nil)
	h.recordAction(ctx, ActionWizardCancelled, map[string]interface{}{
		"session_id": session.ID.Hex(),
	})
	log.Printf("[Wizard Session:%s] Cancelled", session.ID.Hex())
	return nil
}
