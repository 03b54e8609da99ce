package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pokerjest/animerss/internal/db"
	"github.com/pokerjest/animerss/internal/logging"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	mu        sync.Mutex
	tasks     map[string]string
	triggered []string
	stopped   bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: map[string]string{}}
}

func (s *fakeScheduler) ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

func (s *fakeScheduler) StartTask(sub model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[sub.Name] = sub.Cron
	s.triggered = append(s.triggered, sub.Name)
	return nil
}

func (s *fakeScheduler) StopTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	delete(s.tasks, name)
	return ok
}

func (s *fakeScheduler) StartAllTasks(ctx context.Context) error {
	s.stopped = false
	return nil
}

func (s *fakeScheduler) StopAllTasks() {
	s.stopped = true
	s.tasks = map[string]string{}
}

func (s *fakeScheduler) Trigger(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = append(s.triggered, name)
}

func newSubscriptionService(t *testing.T) (*SubscriptionService, *db.Store, *fakeScheduler) {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	sched := newFakeScheduler()
	return NewSubscriptionService(store, sched, "*/30 * * * *", logging.Discard()), store, sched
}

func TestSubscribe(t *testing.T) {
	svc, _, sched := newSubscriptionService(t)

	sub, err := svc.Subscribe(context.Background(), SubscribeInput{
		Name: "frieren", URL: "https://mikanani.me/RSS/Bangumi?bangumiId=3141", SourceType: model.SourceMikan, Cron: "0 * * * *",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateIdle, sub.State)
	assert.Equal(t, "0 * * * *", sched.tasks["frieren"])
	assert.Equal(t, []string{"frieren"}, sched.triggered)
}

func TestSubscribe_DefaultCron(t *testing.T) {
	svc, _, sched := newSubscriptionService(t)
	_, err := svc.Subscribe(context.Background(), SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa})
	require.NoError(t, err)
	assert.Equal(t, "*/30 * * * *", sched.tasks["a"])
}

func TestSubscribe_InvalidCronPersistsNothing(t *testing.T) {
	svc, store, sched := newSubscriptionService(t)

	_, err := svc.Subscribe(context.Background(), SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "every tuesday"})
	require.Error(t, err)
	assert.True(t, IsInvalid(err))

	_, err = store.GetSubscription(context.Background(), "a")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Empty(t, sched.tasks)
}

func TestSubscribe_Validation(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)
	cases := []SubscribeInput{
		{Name: "", URL: "https://x", SourceType: model.SourceNyaa, Cron: "@hourly"},
		{Name: "a", URL: "ftp://x", SourceType: model.SourceNyaa, Cron: "@hourly"},
		{Name: "a", URL: "https://x", SourceType: "dmhy", Cron: "@hourly"},
	}
	for _, in := range cases {
		_, err := svc.Subscribe(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestSubscribe_Duplicate(t *testing.T) {
	svc, _, _ := newSubscriptionService(t)
	in := SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "@hourly"}
	_, err := svc.Subscribe(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.Subscribe(context.Background(), in)
	assert.ErrorIs(t, err, db.ErrConflict)
}

func TestUpdate_RenameReschedules(t *testing.T) {
	ctx := context.Background()
	svc, store, sched := newSubscriptionService(t)
	_, err := svc.Subscribe(ctx, SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "@hourly"})
	require.NoError(t, err)

	newName, newCron := "b", "@daily"
	sub, err := svc.Update(ctx, "a", UpdateInput{Name: &newName, Cron: &newCron})
	require.NoError(t, err)
	assert.Equal(t, "b", sub.Name)

	_, ok := sched.tasks["a"]
	assert.False(t, ok)
	assert.Equal(t, "@daily", sched.tasks["b"])

	got, err := store.GetSubscription(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "@daily", got.Cron)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	svc, store, sched := newSubscriptionService(t)
	sub, err := svc.Subscribe(ctx, SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "@hourly"})
	require.NoError(t, err)
	require.NoError(t, store.CreateAnime(ctx, sub.ID, &model.Anime{Hash: "x"}))

	removed, err := svc.Unsubscribe(ctx, "a", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Empty(t, sched.tasks)
}

func TestUnsubscribe_RefusesWhileRefreshing(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newSubscriptionService(t)
	sub, err := svc.Subscribe(ctx, SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "@hourly"})
	require.NoError(t, err)
	require.NoError(t, store.SetState(ctx, sub.ID, model.StateRefreshing))

	_, err = svc.Unsubscribe(ctx, "a", false)
	assert.True(t, errors.Is(err, ErrRefreshing))

	_, err = svc.Unsubscribe(ctx, "a", true)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc, _, sched := newSubscriptionService(t)
	_, err := svc.Subscribe(ctx, SubscribeInput{Name: "a", URL: "https://nyaa.si/?page=rss", SourceType: model.SourceNyaa, Cron: "@hourly"})
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(ctx, "a"))
	assert.Equal(t, []string{"a", "a"}, sched.triggered)

	assert.ErrorIs(t, svc.Refresh(ctx, "ghost"), db.ErrNotFound)
}
