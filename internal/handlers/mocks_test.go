package handlers

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"repost-bot/internal/database"
	"repost-bot/internal/database/models"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) ForwardMessage(ctx context.Context, params *telego.ForwardMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeSessions is an in-memory SessionRepository.
type fakeSessions struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*models.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[primitive.ObjectID]*models.Session{}}
}

func (f *fakeSessions) CreateSession(_ context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(24 * time.Hour)
	copied := *session
	f.byID[session.ID] = &copied
	return nil
}

func (f *fakeSessions) FindSession(_ context.Context, operatorID int64, messageID int) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.OperatorID == operatorID && s.MessageID == messageID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, database.ErrSessionNotFound
}

func (f *fakeSessions) FindSessionByID(_ context.Context, id primitive.ObjectID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, database.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) FindSessionAwaitingText(_ context.Context, chatID int64) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.ChatID == chatID && s.WaitingForCustomText {
			copied := *s
			return &copied, nil
		}
	}
	return nil, database.ErrSessionNotFound
}

func (f *fakeSessions) PatchSession(_ context.Context, id primitive.ObjectID, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return database.ErrSessionNotFound
	}
	for key, value := range fields {
		switch key {
		case "state":
			s.State = value.(string)
		case "selected_channel_id":
			s.SelectedChannelID = value.(int64)
		case "selected_action":
			s.SelectedAction = value.(string)
		case "text_handling":
			s.TextHandling = value.(string)
		case "selected_nickname":
			if value == nil {
				s.SelectedNickname = nil
			} else {
				nick := value.(string)
				s.SelectedNickname = &nick
			}
		case "nickname_chosen":
			s.NicknameChosen = value.(bool)
		case "custom_text":
			s.CustomText = value.(string)
		case "waiting_for_custom_text":
			s.WaitingForCustomText = value.(bool)
		case "prompt_message_id":
			s.PromptMessageID = value.(int)
		case "reply_chain_messages":
			s.ReplyChainMessages = value.([]models.CapturedMessage)
		}
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeSessions) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, s := range f.byID {
		if now.After(s.ExpiresAt) {
			delete(f.byID, id)
			removed++
		}
	}
	return removed, nil
}

// single returns the only stored session, failing the test otherwise.
func (f *fakeSessions) single(t *testing.T) *models.Session {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.byID) != 1 {
		t.Fatalf("expected exactly one session, have %d", len(f.byID))
	}
	for _, s := range f.byID {
		copied := *s
		return &copied
	}
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type slotKey struct {
	at      int64
	channel int64
}

// fakePosts is an in-memory PendingPostRepository enforcing slot uniqueness.
type fakePosts struct {
	mu    sync.Mutex
	posts []*models.PendingPost
	slots map[slotKey]bool
}

func newFakePosts() *fakePosts {
	return &fakePosts{slots: map[slotKey]bool{}}
}

func (f *fakePosts) CreatePendingPost(_ context.Context, post *models.PendingPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey{at: post.ScheduledTime.Unix(), channel: post.ChannelID}
	if f.slots[key] {
		return database.ErrSlotTaken
	}
	f.slots[key] = true
	post.ID = primitive.NewObjectID()
	post.Status = models.PostStatusPending
	post.CreatedAt = time.Now()
	copied := *post
	f.posts = append(f.posts, &copied)
	return nil
}

func (f *fakePosts) LatestForChannel(_ context.Context, channelID int64) (*models.PendingPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PendingPost
	for _, p := range f.posts {
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

func (f *fakePosts) FindDue(_ context.Context, now time.Time, limit int) ([]models.PendingPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.PendingPost
	for _, p := range f.posts {
		if p.Status == models.PostStatusPending && !p.ScheduledTime.After(now) {
			due = append(due, *p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime.Before(due[j].ScheduledTime) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakePosts) MarkPosted(_ context.Context, id primitive.ObjectID, publishedMessageID int, postedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.ID == id {
			p.Status = models.PostStatusPosted
			p.PublishedMessageID = publishedMessageID
			p.PostedAt = &postedAt
			return nil
		}
	}
	return database.ErrPostNotFound
}

func (f *fakePosts) MarkFailed(_ context.Context, id primitive.ObjectID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.ID == id {
			p.Status = models.PostStatusFailed
			p.Error = cause
			return nil
		}
	}
	return database.ErrPostNotFound
}

func (f *fakePosts) UpcomingForChannel(_ context.Context, channelID int64, limit int) ([]models.PendingPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var upcoming []models.PendingPost
	for _, p := range f.posts {
		if p.ChannelID == channelID && p.Status == models.PostStatusPending {
			upcoming = append(upcoming, *p)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].ScheduledTime.Before(upcoming[j].ScheduledTime) })
	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming, nil
}

func (f *fakePosts) RecentFailures(_ context.Context, limit int) ([]models.PendingPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var failed []models.PendingPost
	for _, p := range f.posts {
		if p.Status == models.PostStatusFailed {
			failed = append(failed, *p)
		}
	}
	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (f *fakePosts) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakePosts) single(t *testing.T) *models.PendingPost {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) != 1 {
		t.Fatalf("expected exactly one pending post, have %d", len(f.posts))
	}
	copied := *f.posts[0]
	return &copied
}

func (f *fakePosts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

// fakeChannels is an in-memory ChannelRepository.
type fakeChannels struct {
	mu   sync.Mutex
	byID map[int64]*models.Channel
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{byID: map[int64]*models.Channel{}}
}

func (f *fakeChannels) UpsertChannel(_ context.Context, channel *models.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *channel
	f.byID[channel.ChannelID] = &copied
	return nil
}

func (f *fakeChannels) DeleteChannel(_ context.Context, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[channelID]; !ok {
		return database.ErrChannelNotFound
	}
	delete(f.byID, channelID)
	return nil
}

func (f *fakeChannels) GetChannel(_ context.Context, channelID int64) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[channelID]
	if !ok {
		return nil, database.ErrChannelNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeChannels) ListChannels(_ context.Context) ([]models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var channels []models.Channel
	for _, c := range f.byID {
		channels = append(channels, *c)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ChannelID < channels[j].ChannelID })
	return channels, nil
}

func (f *fakeChannels) SetClassification(_ context.Context, channelID int64, classification string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[channelID]
	if !ok {
		return database.ErrChannelNotFound
	}
	c.Classification = classification
	return nil
}

func (f *fakeChannels) IsGreenListed(_ context.Context, channelID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[channelID]
	return ok && c.Classification == models.ClassificationGreen, nil
}

func (f *fakeChannels) IsRedListed(_ context.Context, channelID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[channelID]
	return ok && c.Classification == models.ClassificationRed, nil
}

// fakeNicknames is an in-memory NicknameRepository.
type fakeNicknames struct {
	mu     sync.Mutex
	byUser map[int64]string
}

func newFakeNicknames() *fakeNicknames {
	return &fakeNicknames{byUser: map[int64]string{}}
}

func (f *fakeNicknames) SetNickname(_ context.Context, userID int64, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[userID] = nickname
	return nil
}

func (f *fakeNicknames) DeleteNickname(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byUser, userID)
	return nil
}

func (f *fakeNicknames) ResolveNickname(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser[userID], nil
}

func (f *fakeNicknames) ListNicknames(_ context.Context, limit int) ([]models.Nickname, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var nicknames []models.Nickname
	for userID, nickname := range f.byUser {
		nicknames = append(nicknames, models.Nickname{UserID: userID, Nickname: nickname})
	}
	sort.Slice(nicknames, func(i, j int) bool { return nicknames[i].Nickname < nicknames[j].Nickname })
	if len(nicknames) > limit {
		nicknames = nicknames[:limit]
	}
	return nicknames, nil
}

// fakeTrigger counts publish worker nudges.
type fakeTrigger struct {
	mu    sync.Mutex
	count int
}

func (f *fakeTrigger) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func (f *fakeTrigger) triggered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
