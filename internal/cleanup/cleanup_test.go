package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// stubPosts keeps pending posts in memory and applies the same purge filter
// the Mongo repository does: finished statuses, scheduled strictly before
// the cutoff.
type stubPosts struct {
	mu     sync.Mutex
	posts  []models.PendingPost
	cutoff time.Time
}

func (s *stubPosts) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	var kept []models.PendingPost
	var removed int64
	for _, p := range s.posts {
		finished := p.Status == models.PostStatusPosted || p.Status == models.PostStatusFailed
		if finished && p.ScheduledTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.posts = kept
	return removed, nil
}

func (s *stubPosts) CreatePendingPost(context.Context, *models.PendingPost) error { return nil }

func (s *stubPosts) LatestForChannel(context.Context, int64) (*models.PendingPost, error) {
	return nil, database.ErrPostNotFound
}

func (s *stubPosts) FindDue(context.Context, time.Time, int) ([]models.PendingPost, error) {
	return nil, nil
}

func (s *stubPosts) MarkPosted(context.Context, primitive.ObjectID, int, time.Time) error {
	return nil
}

func (s *stubPosts) MarkFailed(context.Context, primitive.ObjectID, string) error { return nil }

func (s *stubPosts) UpcomingForChannel(context.Context, int64, int) ([]models.PendingPost, error) {
	return nil, nil
}

func (s *stubPosts) RecentFailures(context.Context, int) ([]models.PendingPost, error) {
	return nil, nil
}

// stubSessions keeps wizard sessions in memory; only the expiry sweep does
// anything.
type stubSessions struct {
	mu       sync.Mutex
	sessions []models.Session
}

func (s *stubSessions) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.Session
	var removed int64
	for _, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			removed++
			continue
		}
		kept = append(kept, sess)
	}
	s.sessions = kept
	return removed, nil
}

func (s *stubSessions) CreateSession(context.Context, *models.Session) error { return nil }

func (s *stubSessions) FindSession(context.Context, int64, int) (*models.Session, error) {
	return nil, database.ErrSessionNotFound
}

func (s *stubSessions) FindSessionByID(context.Context, primitive.ObjectID) (*models.Session, error) {
	return nil, database.ErrSessionNotFound
}

func (s *stubSessions) FindSessionAwaitingText(context.Context, int64) (*models.Session, error) {
	return nil, database.ErrSessionNotFound
}

func (s *stubSessions) PatchSession(context.Context, primitive.ObjectID, map[string]interface{}) error {
	return nil
}

func (s *stubSessions) DeleteSession(context.Context, primitive.ObjectID) error { return nil }

func TestJanitorRun(t *testing.T) {
	const retentionDays = 7
	now := time.Now()

	posts := &stubPosts{posts: []models.PendingPost{
		{ChannelID: 1, Status: models.PostStatusPosted, ScheduledTime: now.AddDate(0, 0, -10)},
		{ChannelID: 1, Status: models.PostStatusFailed, ScheduledTime: now.AddDate(0, 0, -8)},
		{ChannelID: 1, Status: models.PostStatusPosted, ScheduledTime: now.AddDate(0, 0, -2)},
		{ChannelID: 2, Status: models.PostStatusPending, ScheduledTime: now.AddDate(0, 0, -30)},
	}}
	sessions := &stubSessions{sessions: []models.Session{
		{ChatID: 42, ExpiresAt: now.Add(-time.Hour)},
		{ChatID: 42, ExpiresAt: now.Add(time.Hour)},
	}}

	j := New(sessions, posts, retentionDays, time.UTC)
	j.Run(context.Background())

	posts.mu.Lock()
	defer posts.mu.Unlock()
	expected := now.AddDate(0, 0, -retentionDays)
	assert.WithinDuration(t, expected, posts.cutoff, time.Minute, "cutoff must be retention days back")

	require.Len(t, posts.posts, 2)
	for _, p := range posts.posts {
		switch p.Status {
		case models.PostStatusPosted:
			assert.True(t, p.ScheduledTime.After(posts.cutoff), "inside-retention post must survive")
		case models.PostStatusPending:
			// Pending posts are never purged, no matter how old.
		default:
			t.Fatalf("unexpected surviving post with status %q", p.Status)
		}
	}

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	require.Len(t, sessions.sessions, 1)
	assert.True(t, sessions.sessions[0].ExpiresAt.After(now), "live session must survive the sweep")
}

func TestJanitorRunEmptyStores(t *testing.T) {
	j := New(&stubSessions{}, &stubPosts{}, 7, nil)
	j.Run(context.Background())
}
