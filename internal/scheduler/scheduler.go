// Package scheduler assigns pending posts their publish slots. Slots sit on a
// half-hour grid (minute 00 or 30, second 01) in a fixed configured timezone;
// at most one post per channel may occupy a slot, enforced by the storage
// layer's unique index rather than by this code.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"
)

const (
	// slotInterval is the spacing of the publish grid.
	slotInterval = 30 * time.Minute
	// maxAttempts bounds collision recomputation. Hitting it means
	// something is deeply wrong, not that the queue is busy.
	maxAttempts = 50
)

// ErrTooManyCollisions is returned when slot assignment keeps losing races
// past the retry ceiling.
var ErrTooManyCollisions = errors.New("slot scheduling exceeded retry limit")

// SlotScheduler maps "ready to publish" requests to collision-free slots.
type SlotScheduler struct {
	posts    database.PendingPostRepository
	location *time.Location
	now      func() time.Time
}

// New creates a scheduler computing slots in the given timezone.
func New(posts database.PendingPostRepository, location *time.Location) *SlotScheduler {
	if location == nil {
		location = time.UTC
	}
	return &SlotScheduler{
		posts:    posts,
		location: location,
		now:      time.Now,
	}
}

// NextSlot returns the earliest grid instant strictly after t: minute 00 or
// 30, second 01, millisecond 0. The grid is built from wall-clock components
// in the scheduler's timezone, so non-whole-hour offsets like +05:45 still
// land on :00/:30 local time.
func (s *SlotScheduler) NextSlot(t time.Time) time.Time {
	local := t.In(s.location)
	minute := 0
	if local.Minute() >= 30 {
		minute = 30
	}
	slot := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 1, 0, s.location)
	if !slot.After(t) {
		slot = slot.Add(slotInterval)
	}
	return slot
}

// Schedule assigns post the next free slot for its channel and persists it.
// The candidate is the first grid instant after now, pushed past the
// channel's current queue tail so posts keep the order operators finished
// scheduling them. A unique-index rejection means a concurrent wizard won the
// slot; recompute and try again.
func (s *SlotScheduler) Schedule(ctx context.Context, post *models.PendingPost) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate := s.NextSlot(s.now())

		tail, err := s.posts.LatestForChannel(ctx, post.ChannelID)
		switch {
		case err == nil:
			if !tail.ScheduledTime.Before(candidate) {
				candidate = tail.ScheduledTime.Add(slotInterval)
			}
		case errors.Is(err, database.ErrPostNotFound):
			// Empty queue, keep the candidate.
		default:
			return fmt.Errorf("failed to find queue tail for channel %d: %w", post.ChannelID, err)
		}

		post.ScheduledTime = candidate
		err = s.posts.CreatePendingPost(ctx, post)
		if err == nil {
			log.Printf("[Sched Chan:%d] Scheduled post for %s (attempt %d)", post.ChannelID, candidate.Format(time.RFC3339), attempt)
			return nil
		}
		if !errors.Is(err, database.ErrSlotTaken) {
			return fmt.Errorf("failed to persist pending post for channel %d: %w", post.ChannelID, err)
		}
		log.Printf("[Sched Chan:%d] Slot %s taken, recomputing (attempt %d)", post.ChannelID, candidate.Format(time.RFC3339), attempt)
	}
	return fmt.Errorf("%w for channel %d after %d attempts", ErrTooManyCollisions, post.ChannelID, maxAttempts)
}
