package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"repost-bot/internal/auth"
	"repost-bot/internal/database"
	"repost-bot/internal/mediagroups"
	"repost-bot/internal/scheduler"
	telegoapi "repost-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Action types for the operator audit log.
const (
	ActionCommandStart    = "command_start"
	ActionCommandHelp     = "command_help"
	ActionCommandStatus   = "command_status"
	ActionCommandVersion  = "command_version"
	ActionCommandChannels = "command_channels"
	ActionCommandQueue    = "command_queue"
	ActionChannelUpserted = "channel_upserted"
	ActionChannelDeleted  = "channel_deleted"
	ActionChannelListed   = "channel_classified"
	ActionNicknameSet     = "nickname_set"
	ActionNicknameDeleted = "nickname_deleted"
	ActionPostScheduled   = "post_scheduled"
	ActionWizardCancelled = "wizard_cancelled"
)

// PublishTrigger requests an immediate publish worker cycle.
type PublishTrigger interface {
	Trigger()
}

// Command represents a bot command, mapping the command string to its
// description locale key and handler function.
type Command struct {
	Command     string
	Description string
	Handler     func(context.Context, telego.Message) error
}

// MessageHandler drives the forwarding wizard: it captures inbound messages,
// walks the operator through the channel/action/text/attribution steps, and
// hands finished posts to the slot scheduler.
type MessageHandler struct {
	bot  telegoapi.BotAPI
	gate *auth.OperatorGate

	sessions  database.SessionRepository
	posts     database.PendingPostRepository
	channels  database.ChannelRepository
	nicknames database.NicknameRepository
	actionLog database.OperatorActionLogger

	scheduler   *scheduler.SlotScheduler
	worker      PublishTrigger
	mediaGroups *mediagroups.Manager

	// awaitingText maps chat IDs to the session currently waiting for a
	// custom-text message. The durable flag lives on the session; this is
	// just the fast path for routing the next inbound text.
	awaitingText sync.Map // map[int64]primitive.ObjectID

	location *time.Location
	version  string

	commands []Command
}

// Deps bundles the MessageHandler dependencies.
type Deps struct {
	Bot         telegoapi.BotAPI
	Gate        *auth.OperatorGate
	Sessions    database.SessionRepository
	Posts       database.PendingPostRepository
	Channels    database.ChannelRepository
	Nicknames   database.NicknameRepository
	ActionLog   database.OperatorActionLogger
	Scheduler   *scheduler.SlotScheduler
	Worker      PublishTrigger
	MediaGroups *mediagroups.Manager
	Location    *time.Location
	Version     string
}

// NewMessageHandler creates and initializes a new MessageHandler instance.
func NewMessageHandler(deps Deps) *MessageHandler {
	if deps.Bot == nil {
		log.Fatal("MessageHandler: bot is nil")
	}
	if deps.Gate == nil {
		log.Fatal("MessageHandler: operator gate is nil")
	}
	if deps.Sessions == nil || deps.Posts == nil || deps.Channels == nil || deps.Nicknames == nil {
		log.Fatal("MessageHandler: repository dependency is nil")
	}
	if deps.Scheduler == nil {
		log.Fatal("MessageHandler: scheduler is nil")
	}
	if deps.MediaGroups == nil {
		log.Fatal("MessageHandler: media group manager is nil")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	h := &MessageHandler{
		bot:         deps.Bot,
		gate:        deps.Gate,
		sessions:    deps.Sessions,
		posts:       deps.Posts,
		channels:    deps.Channels,
		nicknames:   deps.Nicknames,
		actionLog:   deps.ActionLog,
		scheduler:   deps.Scheduler,
		worker:      deps.Worker,
		mediaGroups: deps.MediaGroups,
		location:    deps.Location,
		version:     deps.Version,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "status", Description: "CmdStatusDesc", Handler: h.HandleStatus},
		{Command: "version", Description: "CmdVersionDesc", Handler: h.HandleVersion},
		{Command: "channels", Description: "CmdChannelsDesc", Handler: h.HandleChannels},
		{Command: "addchannel", Description: "CmdAddChannelDesc", Handler: h.HandleAddChannel},
		{Command: "delchannel", Description: "CmdDelChannelDesc", Handler: h.HandleDelChannel},
		{Command: "greenlist", Description: "CmdGreenlistDesc", Handler: h.HandleGreenlist},
		{Command: "redlist", Description: "CmdRedlistDesc", Handler: h.HandleRedlist},
		{Command: "unlist", Description: "CmdUnlistDesc", Handler: h.HandleUnlist},
		{Command: "setnick", Description: "CmdSetNickDesc", Handler: h.HandleSetNick},
		{Command: "delnick", Description: "CmdDelNickDesc", Handler: h.HandleDelNick},
		{Command: "queue", Description: "CmdQueueDesc", Handler: h.HandleQueue},
	}
	return h
}

// GetCommandHandler returns the handler for a command string, or nil.
func (h *MessageHandler) GetCommandHandler(command string) func(context.Context, telego.Message) error {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}

// IsOperator reports whether userID may drive this bot.
func (h *MessageHandler) IsOperator(userID int64) bool {
	return h.gate.IsOperator(userID)
}

// recordAction logs an operator action, best effort.
func (h *MessageHandler) recordAction(ctx context.Context, action string, details map[string]interface{}) {
	if h.actionLog == nil {
		return
	}
	if err := h.actionLog.LogOperatorAction(ctx, h.gate.OperatorID(), action, details); err != nil {
		log.Printf("Error logging operator action %s: %v", action, err)
	}
}
