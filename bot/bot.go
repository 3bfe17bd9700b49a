// Package bot wraps the telego update loop: it rate limits, recovers panics,
// and routes updates to the message handler.
package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"repost-bot/internal/handlers"
	"repost-bot/internal/locales"
	telegoapi "repost-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// updateTimeout bounds the processing of a single update.
const updateTimeout = 30 * time.Second

// Bot runs the update loop and dispatches to the wizard handler.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	handler     *handlers.MessageHandler
	debug       bool
	ratelimiter ratelimit.Limiter
}

// Deps holds the dependencies required by the Bot.
type Deps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Handler     *handlers.MessageHandler
	Debug       bool
}

// New creates a Bot from its dependencies.
func New(deps Deps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		handler:     deps.Handler,
		debug:       deps.Debug,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// handleCommandUpdate processes a message identified as a command.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	command := "unknown"
	if len(message.Text) > 1 && strings.HasPrefix(message.Text, "/") {
		command = strings.Split(message.Text, " ")[0][1:]
	}
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", command, message.From.ID)

	if !b.handler.IsOperator(message.From.ID) {
		log.Printf("%s Rejecting command from non-operator", logPrefix)
		localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
		notOperator := locales.GetMessage(localizer, "MsgErrorNotOperator", nil, nil)
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), notOperator)); err != nil {
			log.Printf("%s Failed to send rejection: %v", logPrefix, err)
		}
		return
	}

	handlerFunc := b.handler.GetCommandHandler(command)
	if handlerFunc == nil {
		log.Printf("%s No handler found", logPrefix)
		if err := b.handler.HandleUnknownCommand(ctx, message); err != nil {
			log.Printf("%s Failed to send unknown command message: %v", logPrefix, err)
		}
		return
	}

	if b.debug {
		log.Printf("%s Executing handler", logPrefix)
	}
	if err := handlerFunc(ctx, message); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
	}
}

// handleMessageUpdate processes a non-command message through the capture
// flow.
func (b *Bot) handleMessageUpdate(ctx context.Context, message telego.Message) {
	logPrefix := fmt.Sprintf("[Capture User:%d Msg:%d]", message.From.ID, message.MessageID)
	if b.debug {
		log.Printf("%s Processing message", logPrefix)
	}
	if err := b.handler.HandleMessage(ctx, message); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
	}
}

// handleCallbackQuery processes a wizard button press.
func (b *Bot) handleCallbackQuery(ctx context.Context, query telego.CallbackQuery) {
	logPrefix := fmt.Sprintf("[Callback User:%d QueryID:%s]", query.From.ID, query.ID)
	if b.debug {
		log.Printf("%s Received callback query with data: %q", logPrefix, query.Data)
	}

	if err := b.handler.HandleCallbackQuery(ctx, query); err != nil {
		log.Printf("%s Callback handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s callback handler error: %w", logPrefix, err))
		localizer := locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
		errorMsg := locales.GetMessage(localizer, "MsgErrorGeneral", nil, nil)
		_ = b.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID, Text: errorMsg})
	}
}

// processUpdate routes incoming updates to the appropriate handlers.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	// Apply global rate limiting
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := *update.Message
		if message.From == nil {
			log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
			return
		}
		if strings.HasPrefix(message.Text, "/") {
			b.handleCommandUpdate(processingCtx, message)
			return
		}
		b.handleMessageUpdate(processingCtx, message)

	case update.CallbackQuery != nil:
		b.handleCallbackQuery(processingCtx, *update.CallbackQuery)

	default:
		if b.debug {
			log.Printf("Ignoring unhandled update type: %+v", update)
		}
	}
}

// Start begins the bot's update processing loop and blocks until ctx is
// cancelled or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
