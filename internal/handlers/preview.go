package handlers

import (
	"context"
	"fmt"
	"log"
	"time"

	"repost-bot/internal/database/models"
	"repost-bot/internal/locales"
	"repost-bot/internal/render"
)

const scheduleTimeFormat = "02.01.2006 15:04"

// showPreview edits the prompt into the final-post preview with
// schedule/cancel buttons.
func (h *MessageHandler) showPreview(ctx context.Context, session *models.Session) error {
	localizer := h.localizer()
	header := locales.GetMessage(localizer, "MsgPreviewHeader", nil, nil)

	var body string
	if session.SelectedAction == models.ActionForward {
		body = locales.GetMessage(localizer, "MsgPreviewForwardChain", map[string]interface{}{
			"Count": len(h.forwardMessageIDs(session)),
		}, nil)
	} else {
		text, err := h.renderFinal(ctx, session)
		if err != nil {
			return err
		}
		body = text
		if body == "" {
			body = locales.GetMessage(localizer, "MsgPreviewNoText", nil, nil)
		}
	}

	promptID := h.editOrSend(ctx, session.ChatID, session.PromptMessageID, header+"\n\n"+body, h.previewKeyboard(session.ID))
	h.rememberPrompt(ctx, session, promptID)
	return nil
}

// renderFinal resolves the source classification and the attribution lookup,
// then renders the final text for a transform post.
func (h *MessageHandler) renderFinal(ctx context.Context, session *models.Session) (string, error) {
	fwd := session.OriginalMessage.Forward

	classification := render.ClassUnclassified
	if fwd.HasChannel() {
		green, err := h.channels.IsGreenListed(ctx, fwd.FromChannelID)
		if err != nil {
			return "", fmt.Errorf("failed to check green list for channel %d: %w", fwd.FromChannelID, err)
		}
		red, err := h.channels.IsRedListed(ctx, fwd.FromChannelID)
		if err != nil {
			return "", fmt.Errorf("failed to check red list for channel %d: %w", fwd.FromChannelID, err)
		}
		switch {
		case green:
			classification = render.ClassGreen
		case red:
			classification = render.ClassRed
		}
	}

	lookedUp := ""
	if fwd.HasUser() && !session.NicknameChosen {
		nickname, err := h.nicknames.ResolveNickname(ctx, fwd.FromUserID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve nickname for user %d: %w", fwd.FromUserID, err)
		}
		lookedUp = nickname
	}

	action := session.SelectedAction
	if action == "" {
		action = models.ActionTransform
	}

	return render.Render(render.Input{
		OriginalText:   session.Text(),
		TextHandling:   session.TextHandling,
		CustomText:     session.CustomText,
		Forward:        fwd,
		Action:         action,
		Classification: classification,
		Selection: render.NicknameSelection{
			Chosen:   session.NicknameChosen,
			Nickname: session.SelectedNickname,
		},
		LookedUpNickname: lookedUp,
	}), nil
}

// buildPost turns a finished session into the pending post the scheduler and
// publish worker consume.
func (h *MessageHandler) buildPost(ctx context.Context, session *models.Session) (*models.PendingPost, error) {
	if session.SelectedChannelID == 0 {
		return nil, fmt.Errorf("session %s has no selected channel", session.ID.Hex())
	}

	post := &models.PendingPost{
		ChannelID:       session.SelectedChannelID,
		Action:          session.SelectedAction,
		OriginalForward: session.OriginalMessage.Forward,
	}
	if post.Action == "" {
		post.Action = models.ActionTransform
	}

	if post.Action == models.ActionForward {
		post.Content = models.PostContent{
			SourceChatID:     session.ChatID,
			SourceMessageIDs: h.forwardMessageIDs(session),
		}
		return post, nil
	}

	text, err := h.renderFinal(ctx, session)
	if err != nil {
		return nil, err
	}

	original := session.OriginalMessage
	switch {
	case len(session.MediaGroupMessages) > 0:
		items := make([]models.MediaItem, 0, len(session.MediaGroupMessages))
		for _, msg := range session.MediaGroupMessages {
			switch {
			case msg.PhotoFileID != "":
				items = append(items, models.MediaItem{Type: "photo", FileID: msg.PhotoFileID})
			case msg.VideoFileID != "":
				items = append(items, models.MediaItem{Type: "video", FileID: msg.VideoFileID})
			}
		}
		post.Content = models.PostContent{Type: models.ContentMediaGroup, Text: text, Items: items}
	case original.PhotoFileID != "":
		post.Content = models.PostContent{Type: models.ContentPhoto, Text: text, FileID: original.PhotoFileID}
	case original.VideoFileID != "":
		post.Content = models.PostContent{Type: models.ContentVideo, Text: text, FileID: original.VideoFileID}
	case original.AnimationFileID != "":
		post.Content = models.PostContent{Type: models.ContentAnimation, Text: text, FileID: original.AnimationFileID}
	case original.DocumentFileID != "":
		post.Content = models.PostContent{Type: models.ContentDocument, Text: text, FileID: original.DocumentFileID}
	default:
		if text == "" {
			return nil, fmt.Errorf("session %s renders to an empty post", session.ID.Hex())
		}
		post.Content = models.PostContent{Type: models.ContentText, Text: text}
	}
	return post, nil
}

// scheduleSession is the wizard's terminal step: it builds the post, grabs a
// slot, nudges the worker, and retires the session.
func (h *MessageHandler) scheduleSession(ctx context.Context, session *models.Session, confirmKey string) error {
	if session.SelectedChannelID == 0 {
		return h.notify(ctx, session.ChatID, "MsgNoChannelSelected", nil)
	}

	post, err := h.buildPost(ctx, session)
	if err != nil {
		h.notifyError(ctx, session.ChatID)
		return err
	}

	if err := h.scheduler.Schedule(ctx, post); err != nil {
		h.notifyError(ctx, session.ChatID)
		return fmt.Errorf("failed to schedule post for channel %d: %w", post.ChannelID, err)
	}
	if h.worker != nil {
		h.worker.Trigger()
	}

	h.awaitingText.Delete(session.ChatID)
	if err := h.sessions.DeleteSession(ctx, session.ID); err != nil {
		log.Printf("[Wizard Session:%s] Failed to delete finished session: %v", session.ID.Hex(), err)
	}

	data := map[string]interface{}{
		"Time":    post.ScheduledTime.In(h.location).Format(scheduleTimeFormat),
		"Channel": h.channelTitle(ctx, post.ChannelID),
	}
	confirm := locales.GetMessage(h.localizer(), confirmKey, data, nil)
	h.editOrSend(ctx, session.ChatID, session.PromptMessageID, confirm, nil)

	h.recordAction(ctx, ActionPostScheduled, map[string]interface{}{
		"channel_id":     post.ChannelID,
		"action":         post.Action,
		"content_type":   post.Content.Type,
		"scheduled_time": post.ScheduledTime,
	})
	log.Printf("[Wizard Session:%s] Scheduled %s post for channel %d at %s",
		session.ID.Hex(), post.Action, post.ChannelID, post.ScheduledTime.Format(time.RFC3339))
	return nil
}

// forwardMessageIDs lists the source message ids a forward post re-forwards,
// in capture order.
func (h *MessageHandler) forwardMessageIDs(session *models.Session) []int {
	switch {
	case len(session.ReplyChainMessages) > 0:
		ids := make([]int, 0, len(session.ReplyChainMessages))
		for _, msg := range session.ReplyChainMessages {
			ids = append(ids, msg.MessageID)
		}
		return ids
	case len(session.MediaGroupMessages) > 0:
		ids := make([]int, 0, len(session.MediaGroupMessages))
		for _, msg := range session.MediaGroupMessages {
			ids = append(ids, msg.MessageID)
		}
		return ids
	default:
		return []int{session.OriginalMessage.MessageID}
	}
}

// channelTitle is best-effort display sugar for confirmations.
func (h *MessageHandler) channelTitle(ctx context.Context, channelID int64) string {
	channel, err := h.channels.GetChannel(ctx, channelID)
	if err != nil || channel.Title == "" {
		return fmt.Sprintf("%d", channelID)
	}
	return channel.Title
}
