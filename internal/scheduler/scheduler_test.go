package scheduler

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

// fakePostRepo is an in-memory PendingPostRepository enforcing the same
// (scheduled_time, channel_id) uniqueness the Mongo index does.
type fakePostRepo struct {
	mu    sync.Mutex
	posts []models.PendingPost
	// createDelay widens the race window between tail lookup and insert.
	createDelay time.Duration
}

type slotKey struct {
	at      int64
	channel int64
}

func (f *fakePostRepo) CreatePendingPost(_ context.Context, post *models.PendingPost) error {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.posts {
		if existing.ChannelID == post.ChannelID && existing.ScheduledTime.Equal(post.ScheduledTime) {
			return database.ErrSlotTaken
		}
	}
	post.ID = primitive.NewObjectID()
	post.Status = models.PostStatusPending
	f.posts = append(f.posts, *post)
	return nil
}

func (f *fakePostRepo) LatestForChannel(_ context.Context, channelID int64) (*models.PendingPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PendingPost
	for i := range f.posts {
		p := &f.posts[i]
		if p.ChannelID != channelID || p.Status != models.PostStatusPending {
			continue
		}
		if latest == nil || p.ScheduledTime.After(latest.ScheduledTime) {
			latest = p
		}
	}
	if latest == nil {
		return nil, database.ErrPostNotFound
	}
	copied := *latest
	return &copied, nil
}

func (f *fakePostRepo) FindDue(context.Context, time.Time, int) ([]models.PendingPost, error) {
	return nil, nil
}

func (f *fakePostRepo) MarkPosted(context.Context, primitive.ObjectID, int, time.Time) error {
	return nil
}

func (f *fakePostRepo) MarkFailed(context.Context, primitive.ObjectID, string) error {
	return nil
}

func (f *fakePostRepo) UpcomingForChannel(context.Context, int64, int) ([]models.PendingPost, error) {
	return nil, nil
}

func (f *fakePostRepo) RecentFailures(context.Context, int) ([]models.PendingPost, error) {
	return nil, nil
}

func (f *fakePostRepo) DeleteFinishedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestScheduler(repo *fakePostRepo, now time.Time) *SlotScheduler {
	s := New(repo, time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func TestNextSlotGrid(t *testing.T) {
	s := New(&fakePostRepo{}, time.UTC)

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid half-hour rounds up to 30",
			in:   time.Date(2026, 8, 30, 10, 12, 0, 0, time.UTC),
			want: time.Date(2026, 8, 30, 10, 30, 1, 0, time.UTC),
		},
		{
			name: "just after half-hour rounds to next hour",
			in:   time.Date(2026, 8, 30, 10, 31, 0, 0, time.UTC),
			want: time.Date(2026, 8, 30, 11, 0, 1, 0, time.UTC),
		},
		{
			name: "exactly on slot instant is not reused",
			in:   time.Date(2026, 8, 30, 10, 30, 1, 0, time.UTC),
			want: time.Date(2026, 8, 30, 11, 0, 1, 0, time.UTC),
		},
		{
			name: "one nanosecond before slot still lands on it",
			in:   time.Date(2026, 8, 30, 10, 30, 0, 999999999, time.UTC),
			want: time.Date(2026, 8, 30, 10, 30, 1, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, s.NextSlot(tc.in).Equal(tc.want), "got %s", s.NextSlot(tc.in))
		})
	}
}

func TestNextSlotFractionalOffsetZone(t *testing.T) {
	// +05:45 has no whole-hour relation to UTC; the grid must still sit on
	// local :00/:30.
	npt := time.FixedZone("NPT", 5*3600+45*60)
	s := New(&fakePostRepo{}, npt)

	in := time.Date(2026, 8, 30, 10, 12, 0, 0, time.UTC)
	slot := s.NextSlot(in)

	assert.True(t, slot.After(in))
	assert.Contains(t, []int{0, 30}, slot.Minute(), "got %s", slot)
	assert.Equal(t, 1, slot.Second())
	assert.Equal(t, npt, slot.Location())

	// 10:12 UTC is 15:57 NPT, so the next local half-hour is 16:00:01.
	assert.True(t, slot.Equal(time.Date(2026, 8, 30, 16, 0, 1, 0, npt)), "got %s", slot)
}

func TestScheduleChainsAfterChannelTail(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 12, 0, 0, time.UTC)
	repo := &fakePostRepo{}
	s := newTestScheduler(repo, now)

	first := &models.PendingPost{ChannelID: 1, Action: models.ActionTransform}
	require.NoError(t, s.Schedule(context.Background(), first))
	assert.True(t, first.ScheduledTime.Equal(time.Date(2026, 8, 30, 10, 30, 1, 0, time.UTC)))

	second := &models.PendingPost{ChannelID: 1, Action: models.ActionTransform}
	require.NoError(t, s.Schedule(context.Background(), second))
	assert.Equal(t, 30*time.Minute, second.ScheduledTime.Sub(first.ScheduledTime))
}

func TestScheduleIndependentChannels(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 12, 0, 0, time.UTC)
	repo := &fakePostRepo{}
	s := newTestScheduler(repo, now)

	a := &models.PendingPost{ChannelID: 1}
	b := &models.PendingPost{ChannelID: 2}
	require.NoError(t, s.Schedule(context.Background(), a))
	require.NoError(t, s.Schedule(context.Background(), b))

	// Different channels may share the same instant.
	assert.True(t, a.ScheduledTime.Equal(b.ScheduledTime))
}

func TestScheduleConcurrentRequestsGetDistinctSlots(t *testing.T) {
	const n = 16
	now := time.Date(2026, 8, 30, 10, 12, 0, 0, time.UTC)
	repo := &fakePostRepo{createDelay: time.Millisecond}
	s := newTestScheduler(repo, now)

	// Pre-existing queue entry the new posts must not collide with.
	existing := &models.PendingPost{ChannelID: 7}
	require.NoError(t, s.Schedule(context.Background(), existing))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Schedule(context.Background(), &models.PendingPost{ChannelID: 7})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.posts, n+1)

	seen := make(map[slotKey]bool, n+1)
	var times []time.Time
	for _, p := range repo.posts {
		key := slotKey{at: p.ScheduledTime.UnixNano(), channel: p.ChannelID}
		assert.False(t, seen[key], "slot %s assigned twice", p.ScheduledTime)
		seen[key] = true
		times = append(times, p.ScheduledTime)
	}

	// The queue is a contiguous 30-minute chain starting at the first slot.
	first := time.Date(2026, 8, 30, 10, 30, 1, 0, time.UTC)
	for _, at := range times {
		offset := at.Sub(first)
		assert.Zero(t, offset%(30*time.Minute), "slot %s off-grid", at)
		assert.GreaterOrEqual(t, offset, time.Duration(0))
		assert.Less(t, offset, time.Duration(n+1)*30*time.Minute)
	}
}

// failingRepo always rejects inserts with a slot collision.
type failingRepo struct {
	fakePostRepo
	attempts int
}

func (f *failingRepo) CreatePendingPost(context.Context, *models.PendingPost) error {
	f.attempts++
	return database.ErrSlotTaken
}

func TestScheduleFailsLoudlyAfterRetryCeiling(t *testing.T) {
	repo := &failingRepo{}
	s := New(repo, time.UTC)

	err := s.Schedule(context.Background(), &models.PendingPost{ChannelID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyCollisions)
	assert.Equal(t, 50, repo.attempts)
}
