// Package cleanup runs the periodic storage maintenance: purging finished
// posts past retention and sweeping expired wizard sessions. Mongo's TTL
// monitor removes expired sessions on its own; the sweep here just keeps the
// collection tidy when the TTL monitor lags.
package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"repost-bot/internal/database"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
)

// Janitor owns the cron schedule for storage maintenance.
type Janitor struct {
	sessions      database.SessionRepository
	posts         database.PendingPostRepository
	retentionDays int
	cron          *cron.Cron
}

// New creates a Janitor. retentionDays bounds how long posted and failed
// posts are kept.
func New(sessions database.SessionRepository, posts database.PendingPostRepository, retentionDays int, location *time.Location) *Janitor {
	if location == nil {
		location = time.UTC
	}
	return &Janitor{
		sessions:      sessions,
		posts:         posts,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithLocation(location)),
	}
}

// Start registers the daily run and launches the cron scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc("15 4 * * *", func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		j.Run(runCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}
	j.cron.Start()
	log.Printf("[Cleanup] Daily job scheduled, retention %d day(s)", j.retentionDays)
	return nil
}

// Stop halts the cron scheduler and waits for a running job to finish.
func (j *Janitor) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
}

// Run executes one maintenance pass.
func (j *Janitor) Run(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	removed, err := j.posts.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Cleanup] Failed to purge finished posts: %v", err)
		sentry.CaptureException(fmt.Errorf("cleanup: failed to purge finished posts: %w", err))
	} else if removed > 0 {
		log.Printf("[Cleanup] Purged %d finished post(s) older than %s", removed, cutoff.Format(time.RFC3339))
	}

	expired, err := j.sessions.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		log.Printf("[Cleanup] Failed to sweep expired sessions: %v", err)
		sentry.CaptureException(fmt.Errorf("cleanup: failed to sweep expired sessions: %w", err))
	} else if expired > 0 {
		log.Printf("[Cleanup] Swept %d expired session(s)", expired)
	}
}
