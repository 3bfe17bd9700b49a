package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"
	"repost-bot/internal/locales"

	"github.com/mymmrac/telego"
)

// setupCommands registers the command menu with Telegram.
func (h *MessageHandler) setupCommands(ctx context.Context) error {
	localizer := h.localizer()
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil, nil),
		})
	}
	if err := h.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// commandArgs splits everything after the command itself.
func commandArgs(message telego.Message) []string {
	fields := strings.Fields(message.Text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// HandleStart registers the command menu and greets the operator.
func (h *MessageHandler) HandleStart(ctx context.Context, message telego.Message) error {
	if err := h.setupCommands(ctx); err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return err
	}
	h.recordAction(ctx, ActionCommandStart, map[string]interface{}{"chat_id": message.Chat.ID})
	return h.notify(ctx, message.Chat.ID, "MsgStart", nil)
}

// HandleHelp lists the commands with their localized descriptions.
func (h *MessageHandler) HandleHelp(ctx context.Context, message telego.Message) error {
	localizer := h.localizer()

	var help strings.Builder
	help.WriteString(locales.GetMessage(localizer, "MsgHelpHeader", nil, nil) + "\n\n")
	for _, cmd := range h.commands {
		desc := locales.GetMessage(localizer, cmd.Description, nil, nil)
		help.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, desc))
	}
	help.WriteString("\n" + locales.GetMessage(localizer, "MsgHelpFooter", nil, nil))

	h.recordAction(ctx, ActionCommandHelp, map[string]interface{}{"chat_id": message.Chat.ID})
	return h.sendMessage(ctx, message.Chat.ID, help.String())
}

// HandleStatus reports the operator, channel count and timezone.
func (h *MessageHandler) HandleStatus(ctx context.Context, message telego.Message) error {
	channels, err := h.channels.ListChannels(ctx)
	if err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to list channels for status: %w", err)
	}

	h.recordAction(ctx, ActionCommandStatus, map[string]interface{}{"chat_id": message.Chat.ID})
	return h.notify(ctx, message.Chat.ID, "MsgStatus", map[string]interface{}{
		"OperatorID": h.gate.OperatorID(),
		"Channels":   len(channels),
		"Timezone":   h.location.String(),
	})
}

// HandleVersion reports the build version.
func (h *MessageHandler) HandleVersion(ctx context.Context, message telego.Message) error {
	version := h.version
	if version == "" {
		version = "dev"
	}
	h.recordAction(ctx, ActionCommandVersion, map[string]interface{}{"chat_id": message.Chat.ID})
	return h.notify(ctx, message.Chat.ID, "MsgVersion", map[string]interface{}{"Version": version})
}

// HandleChannels lists the registered channels with their classification.
func (h *MessageHandler) HandleChannels(ctx context.Context, message telego.Message) error {
	channels, err := h.channels.ListChannels(ctx)
	if err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to list channels: %w", err)
	}
	if len(channels) == 0 {
		return h.notify(ctx, message.Chat.ID, "MsgChannelListEmpty", nil)
	}

	var list strings.Builder
	list.WriteString(locales.GetMessage(h.localizer(), "MsgChannelListHeader", nil, nil) + "\n")
	for _, channel := range channels {
		line := fmt.Sprintf("%d — %s", channel.ChannelID, channel.Title)
		if channel.Classification != "" {
			line += " [" + channel.Classification + "]"
		}
		list.WriteString(line + "\n")
	}

	h.recordAction(ctx, ActionCommandChannels, map[string]interface{}{"count": len(channels)})
	return h.sendMessage(ctx, message.Chat.ID, list.String())
}

// HandleAddChannel registers an outbound channel: /addchannel <id> <title>.
func (h *MessageHandler) HandleAddChannel(ctx context.Context, message telego.Message) error {
	args := commandArgs(message)
	if len(args) < 2 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageAddChannel", nil)
	}
	channelID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageAddChannel", nil)
	}
	title := strings.Join(args[1:], " ")

	if err := h.channels.UpsertChannel(ctx, &models.Channel{ChannelID: channelID, Title: title}); err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to upsert channel %d: %w", channelID, err)
	}

	h.recordAction(ctx, ActionChannelUpserted, map[string]interface{}{"channel_id": channelID, "title": title})
	return h.notify(ctx, message.Chat.ID, "MsgChannelAdded", map[string]interface{}{"Title": title})
}

// HandleDelChannel removes a channel: /delchannel <id>.
func (h *MessageHandler) HandleDelChannel(ctx context.Context, message telego.Message) error {
	args := commandArgs(message)
	if len(args) != 1 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageDelChannel", nil)
	}
	channelID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageDelChannel", nil)
	}

	if err := h.channels.DeleteChannel(ctx, channelID); err != nil {
		if errors.Is(err, database.ErrChannelNotFound) {
			return h.notify(ctx, message.Chat.ID, "MsgChannelNotFound", nil)
		}
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to delete channel %d: %w", channelID, err)
	}

	h.recordAction(ctx, ActionChannelDeleted, map[string]interface{}{"channel_id": channelID})
	return h.notify(ctx, message.Chat.ID, "MsgChannelRemoved", nil)
}

// HandleGreenlist marks a source channel fully trusted.
func (h *MessageHandler) HandleGreenlist(ctx context.Context, message telego.Message) error {
	return h.classify(ctx, message, "/greenlist", models.ClassificationGreen)
}

// HandleRedlist marks a source channel as never-attribute.
func (h *MessageHandler) HandleRedlist(ctx context.Context, message telego.Message) error {
	return h.classify(ctx, message, "/redlist", models.ClassificationRed)
}

// HandleUnlist clears a channel's classification.
func (h *MessageHandler) HandleUnlist(ctx context.Context, message telego.Message) error {
	return h.classify(ctx, message, "/unlist", "")
}

func (h *MessageHandler) classify(ctx context.Context, message telego.Message, command, classification string) error {
	args := commandArgs(message)
	if len(args) != 1 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageClassify", map[string]interface{}{"Command": command})
	}
	channelID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageClassify", map[string]interface{}{"Command": command})
	}

	if err := h.channels.SetClassification(ctx, channelID, classification); err != nil {
		if errors.Is(err, database.ErrChannelNotFound) {
			return h.notify(ctx, message.Chat.ID, "MsgChannelNotFound", nil)
		}
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to classify channel %d: %w", channelID, err)
	}

	display := classification
	if display == "" {
		display = "unclassified"
	}
	h.recordAction(ctx, ActionChannelListed, map[string]interface{}{
		"channel_id":     channelID,
		"classification": display,
	})
	return h.notify(ctx, message.Chat.ID, "MsgClassificationSet", map[string]interface{}{
		"ChannelID":      channelID,
		"Classification": display,
	})
}

// HandleSetNick maps a user to an attribution nickname: /setnick <id> <nick>.
func (h *MessageHandler) HandleSetNick(ctx context.Context, message telego.Message) error {
	args := commandArgs(message)
	if len(args) < 2 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageSetNick", nil)
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageSetNick", nil)
	}
	nickname := strings.Join(args[1:], " ")

	if err := h.nicknames.SetNickname(ctx, userID, nickname); err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to set nickname for user %d: %w", userID, err)
	}

	h.recordAction(ctx, ActionNicknameSet, map[string]interface{}{"user_id": userID, "nickname": nickname})
	return h.notify(ctx, message.Chat.ID, "MsgNickSet", map[string]interface{}{
		"UserID":   userID,
		"Nickname": nickname,
	})
}

// HandleDelNick removes a nickname mapping: /delnick <id>.
func (h *MessageHandler) HandleDelNick(ctx context.Context, message telego.Message) error {
	args := commandArgs(message)
	if len(args) != 1 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageDelNick", nil)
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageDelNick", nil)
	}

	if err := h.nicknames.DeleteNickname(ctx, userID); err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to delete nickname for user %d: %w", userID, err)
	}

	h.recordAction(ctx, ActionNicknameDeleted, map[string]interface{}{"user_id": userID})
	return h.notify(ctx, message.Chat.ID, "MsgNickRemoved", nil)
}

// HandleQueue shows a channel's upcoming posts plus recent failures:
// /queue <channel_id>.
func (h *MessageHandler) HandleQueue(ctx context.Context, message telego.Message) error {
	args := commandArgs(message)
	if len(args) != 1 {
		return h.notify(ctx, message.Chat.ID, "MsgUsageQueue", nil)
	}
	channelID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return h.notify(ctx, message.Chat.ID, "MsgUsageQueue", nil)
	}

	upcoming, err := h.posts.UpcomingForChannel(ctx, channelID, 10)
	if err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to list queue for channel %d: %w", channelID, err)
	}
	failures, err := h.posts.RecentFailures(ctx, 5)
	if err != nil {
		h.notifyError(ctx, message.Chat.ID)
		return fmt.Errorf("failed to list recent failures: %w", err)
	}

	localizer := h.localizer()
	var report strings.Builder
	if len(upcoming) == 0 {
		report.WriteString(locales.GetMessage(localizer, "MsgQueueEmpty", nil, nil) + "\n")
	} else {
		report.WriteString(locales.GetMessage(localizer, "MsgQueueHeader", map[string]interface{}{
			"ChannelID": channelID,
		}, nil) + "\n")
		for _, post := range upcoming {
			report.WriteString(locales.GetMessage(localizer, "MsgQueueEntry", map[string]interface{}{
				"Time": post.ScheduledTime.In(h.location).Format(scheduleTimeFormat),
				"Type": queueEntryType(post),
			}, nil) + "\n")
		}
	}
	if len(failures) > 0 {
		report.WriteString("\n" + locales.GetMessage(localizer, "MsgQueueFailuresHeader", nil, nil) + "\n")
		for _, post := range failures {
			report.WriteString(fmt.Sprintf("%s — %s\n",
				post.ScheduledTime.In(h.location).Format(scheduleTimeFormat), post.Error))
		}
	}

	h.recordAction(ctx, ActionCommandQueue, map[string]interface{}{"channel_id": channelID})
	return h.sendMessage(ctx, message.Chat.ID, report.String())
}

func queueEntryType(post models.PendingPost) string {
	if post.Action == models.ActionForward {
		return models.ActionForward
	}
	if post.Content.Type != "" {
		return post.Content.Type
	}
	return post.Action
}

// HandleUnknownCommand answers anything not in the command table.
func (h *MessageHandler) HandleUnknownCommand(ctx context.Context, message telego.Message) error {
	return h.notify(ctx, message.Chat.ID, "MsgErrorUnknownCommand", nil)
}
