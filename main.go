package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repost-bot/internal/auth"
	"repost-bot/internal/cleanup"
	"repost-bot/internal/config"
	"repost-bot/internal/database"
	"repost-bot/internal/handlers"
	"repost-bot/internal/locales"
	"repost-bot/internal/mediagroups"
	"repost-bot/internal/publisher"
	"repost-bot/internal/scheduler"
	"repost-bot/pkg/retry"

	telegoBot "repost-bot/bot"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	locales.Init(cfg.DefaultLanguage)

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()
	if err = database.EnsureIndexes(ctx, db); err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	// Create repository instances
	sessionRepo := database.NewMongoSessionRepository(db, cfg.SessionTTL)
	postRepo := database.NewMongoPendingPostRepository(db)
	channelRepo := database.NewMongoChannelRepository(db)
	nicknameRepo := database.NewMongoNicknameRepository(db)
	actionLogger := database.NewMongoActionLogger(db)

	// Create the raw telego bot instance
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	gate, err := auth.NewOperatorGate(cfg.OperatorID)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create operator gate: %v", err)
	}

	// Publish worker, optionally with backoff retries
	var retryCfg *retry.Config
	if cfg.PublishRetryEnabled {
		c := retry.DefaultConfig()
		c.MaxAttempts = cfg.PublishRetryAttempts
		c.BaseDelay = cfg.PublishRetryBase
		retryCfg = &c
	}
	worker := publisher.NewWorker(bot, postRepo, retryCfg)
	go worker.Run(ctx)

	// Daily storage maintenance
	janitor := cleanup.New(sessionRepo, postRepo, cfg.RetentionDays, cfg.Timezone)
	if err = janitor.Start(ctx); err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start cleanup job: %v", err)
	}
	defer janitor.Stop()

	// Wizard handler with its slot scheduler and media-group aggregator
	messageHandler := handlers.NewMessageHandler(handlers.Deps{
		Bot:         bot,
		Gate:        gate,
		Sessions:    sessionRepo,
		Posts:       postRepo,
		Channels:    channelRepo,
		Nicknames:   nicknameRepo,
		ActionLog:   actionLogger,
		Scheduler:   scheduler.New(postRepo, cfg.Timezone),
		Worker:      worker,
		MediaGroups: mediagroups.NewManager(mediagroups.DefaultFlushDelay),
		Location:    cfg.Timezone,
		Version:     cfg.Version,
	})

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	appBot, err := telegoBot.New(telegoBot.Deps{
		Bot:         bot,
		UpdatesChan: updates,
		Handler:     messageHandler,
		Debug:       cfg.Debug,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	// Blocks until the context is cancelled (SIGINT, SIGTERM)
	appBot.Start(ctx)

	log.Println("Bot shutdown complete.")
}
