// Package publisher delivers due pending posts to their channels. One polling
// loop, no overlapping cycles, sequential delivery within a batch.
package publisher

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"
	"repost-bot/pkg/retry"
	"repost-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	// DefaultPollInterval is how often the worker looks for due posts.
	DefaultPollInterval = 30 * time.Second
	// DefaultBatchSize caps how many posts one cycle delivers.
	DefaultBatchSize = 10
)

// Worker polls for due pending posts and executes delivery.
type Worker struct {
	bot      telegoapi.BotAPI
	posts    database.PendingPostRepository
	interval time.Duration
	batch    int

	// retryCfg, when non-nil, wraps each delivery in exponential backoff.
	// The default nil keeps the mark-failed-on-first-error behavior.
	retryCfg *retry.Config

	inProgress atomic.Bool
	trigger    chan struct{}
	now        func() time.Time
}

// NewWorker creates a publish worker. retryCfg may be nil to disable backoff.
func NewWorker(bot telegoapi.BotAPI, posts database.PendingPostRepository, retryCfg *retry.Config) *Worker {
	return &Worker{
		bot:      bot,
		posts:    posts,
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
		retryCfg: retryCfg,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Trigger requests an immediate poll cycle, e.g. right after a green-listed
// capture schedules a post. Non-blocking; a cycle already queued is enough.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("[Worker] Started, polling every %s", w.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] Stopped")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		case <-w.trigger:
			w.runCycle(ctx)
		}
	}
}

// runCycle delivers one batch of due posts. If a previous cycle is still
// running the cycle is skipped, never queued.
func (w *Worker) runCycle(ctx context.Context) {
	if !w.inProgress.CompareAndSwap(false, true) {
		log.Println("[Worker] Previous cycle still running, skipping")
		return
	}
	defer w.inProgress.Store(false)

	due, err := w.posts.FindDue(ctx, w.now(), w.batch)
	if err != nil {
		log.Printf("[Worker] Failed to fetch due posts: %v", err)
		sentry.CaptureException(err)
		return
	}
	if len(due) == 0 {
		return
	}

	log.Printf("[Worker] Delivering %d due post(s)", len(due))
	for i := range due {
		post := &due[i]
		w.deliver(ctx, post)
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, post *models.PendingPost) {
	publish := func(ctx context.Context) error {
		messageID, err := w.publish(ctx, post)
		if err != nil {
			return err
		}
		post.PublishedMessageID = messageID
		return nil
	}

	var err error
	if w.retryCfg != nil {
		err = retry.Do(ctx, *w.retryCfg, publish)
	} else {
		err = publish(ctx)
	}

	if err != nil {
		log.Printf("[Worker Post:%s] Delivery failed: %v", post.ID.Hex(), err)
		sentry.CaptureException(fmt.Errorf("delivery of post %s failed: %w", post.ID.Hex(), err))
		if markErr := w.posts.MarkFailed(ctx, post.ID, err.Error()); markErr != nil {
			log.Printf("[Worker Post:%s] Failed to record failure: %v", post.ID.Hex(), markErr)
		}
		return
	}

	if err := w.posts.MarkPosted(ctx, post.ID, post.PublishedMessageID, w.now()); err != nil {
		log.Printf("[Worker Post:%s] Failed to record success: %v", post.ID.Hex(), err)
		sentry.CaptureException(err)
		return
	}
	log.Printf("[Worker Post:%s] Published to channel %d as message %d", post.ID.Hex(), post.ChannelID, post.PublishedMessageID)
}

// publish dispatches one post to the channel and returns the resulting
// channel message ID.
func (w *Worker) publish(ctx context.Context, post *models.PendingPost) (int, error) {
	if post.Action == models.ActionForward {
		return w.forward(ctx, post)
	}
	return w.send(ctx, post)
}

// forward re-forwards the captured message(s), preserving the original
// provenance header.
func (w *Worker) forward(ctx context.Context, post *models.PendingPost) (int, error) {
	content := post.Content
	if content.SourceChatID == 0 || len(content.SourceMessageIDs) == 0 {
		return 0, fmt.Errorf("forward post %s has no source messages", post.ID.Hex())
	}

	firstID := 0
	for _, messageID := range content.SourceMessageIDs {
		sent, err := w.bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
			ChatID:     tu.ID(post.ChannelID),
			FromChatID: tu.ID(content.SourceChatID),
			MessageID:  messageID,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to forward message %d: %w", messageID, err)
		}
		if firstID == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, nil
}

// send delivers transformed content with the already-rendered final text.
func (w *Worker) send(ctx context.Context, post *models.PendingPost) (int, error) {
	content := post.Content
	channel := tu.ID(post.ChannelID)

	switch content.Type {
	case models.ContentText:
		msg := tu.Message(channel, content.Text)
		msg.ParseMode = telego.ModeHTML
		sent, err := w.bot.SendMessage(ctx, msg)
		if err != nil {
			return 0, fmt.Errorf("failed to send text: %w", err)
		}
		return sent.MessageID, nil

	case models.ContentPhoto:
		params := tu.Photo(channel, tu.FileFromID(content.FileID)).
			WithCaption(content.Text).WithParseMode(telego.ModeHTML)
		sent, err := w.bot.SendPhoto(ctx, params)
		if err != nil {
			return 0, fmt.Errorf("failed to send photo: %w", err)
		}
		return sent.MessageID, nil

	case models.ContentVideo:
		params := tu.Video(channel, tu.FileFromID(content.FileID)).
			WithCaption(content.Text).WithParseMode(telego.ModeHTML)
		sent, err := w.bot.SendVideo(ctx, params)
		if err != nil {
			return 0, fmt.Errorf("failed to send video: %w", err)
		}
		return sent.MessageID, nil

	case models.ContentDocument:
		params := tu.Document(channel, tu.FileFromID(content.FileID)).
			WithCaption(content.Text).WithParseMode(telego.ModeHTML)
		sent, err := w.bot.SendDocument(ctx, params)
		if err != nil {
			return 0, fmt.Errorf("failed to send document: %w", err)
		}
		return sent.MessageID, nil

	case models.ContentAnimation:
		params := tu.Animation(channel, tu.FileFromID(content.FileID)).
			WithCaption(content.Text).WithParseMode(telego.ModeHTML)
		sent, err := w.bot.SendAnimation(ctx, params)
		if err != nil {
			return 0, fmt.Errorf("failed to send animation: %w", err)
		}
		return sent.MessageID, nil

	case models.ContentMediaGroup:
		media := make([]telego.InputMedia, 0, len(content.Items))
		for i, item := range content.Items {
			switch item.Type {
			case "video":
				input := tu.MediaVideo(tu.FileFromID(item.FileID))
				if i == 0 && content.Text != "" {
					input = input.WithCaption(content.Text).WithParseMode(telego.ModeHTML)
				}
				media = append(media, input)
			default:
				input := tu.MediaPhoto(tu.FileFromID(item.FileID))
				if i == 0 && content.Text != "" {
					input = input.WithCaption(content.Text).WithParseMode(telego.ModeHTML)
				}
				media = append(media, input)
			}
		}
		if len(media) == 0 {
			return 0, fmt.Errorf("media group post %s has no items", post.ID.Hex())
		}
		sent, err := w.bot.SendMediaGroup(ctx, tu.MediaGroup(channel, media...))
		if err != nil {
			return 0, fmt.Errorf("failed to send media group: %w", err)
		}
		return sent[0].MessageID, nil

	default:
		return 0, fmt.Errorf("unsupported content type %q", content.Type)
	}
}
