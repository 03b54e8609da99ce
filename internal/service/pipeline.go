package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pokerjest/animerss/internal/db"
	"github.com/pokerjest/animerss/internal/event"
	"github.com/pokerjest/animerss/internal/model"
	"github.com/pokerjest/animerss/internal/notify"
	"github.com/pokerjest/animerss/internal/source"
	"github.com/pokerjest/animerss/pkg/rss"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type PipelineStore interface {
	GetSubscription(ctx context.Context, name string) (*model.Subscription, error)
	SetState(ctx context.Context, id uint, state model.SubscriptionState) error
	FinishRefresh(ctx context.Context, id uint, at time.Time, success bool) error
	FindAnimeByHash(ctx context.Context, hash string) (*model.Anime, error)
	LinkAnime(ctx context.Context, subID, animeID uint) error
	CreateAnime(ctx context.Context, subID uint, a *model.Anime) error
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url string, mappings []rss.FieldMapping) ([]rss.Item, error)
}

type Notifier interface {
	NotifyAll(ctx context.Context, ev notify.Event)
}

// RunResult summarises one refresh.
type RunResult struct {
	Items   int
	Created int
	Linked  int
	Failed  int
}

// Pipeline implements parseRSS: fetch, identify, link or enrich, persist,
// notify.
type Pipeline struct {
	store    PipelineStore
	fetcher  FeedFetcher
	plugins  *source.Registry
	notifier Notifier
	bus      event.Bus
	log      *logrus.Entry
	now      func() time.Time

	mu    sync.Mutex
	locks map[uint]*runLock
}

type runLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewPipeline(store PipelineStore, fetcher FeedFetcher, plugins *source.Registry, notifier Notifier, bus event.Bus, log *logrus.Entry) *Pipeline {
	if bus == nil {
		bus = event.Nop{}
	}
	return &Pipeline{
		store:    store,
		fetcher:  fetcher,
		plugins:  plugins,
		notifier: notifier,
		bus:      bus,
		log:      log,
		now:      time.Now,
		locks:    make(map[uint]*runLock),
	}
}

// lock 按订阅 ID 串行化刷新，改名前后的两次刷新也互斥。
// 没有等待者时条目即被删除。
func (p *Pipeline) lock(ctx context.Context, id uint) (func(), error) {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &runLock{sem: semaphore.NewWeighted(1)}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	unref := func() {
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		unref()
		return nil, err
	}
	return func() {
		l.sem.Release(1)
		unref()
	}, nil
}

// Refresh runs the pipeline and drops the summary.
func (p *Pipeline) Refresh(ctx context.Context, name string) error {
	_, err := p.Run(ctx, name)
	return err
}

// Run refreshes one subscription. The subscription is always back to idle
// when Run returns; the refresh counter only moves when the feed was
// fetched and walked completely.
func (p *Pipeline) Run(ctx context.Context, name string) (RunResult, error) {
	var res RunResult

	sub, err := p.store.GetSubscription(ctx, name)
	if err != nil {
		return res, fmt.Errorf("load subscription %q: %w", name, err)
	}
	lockedID := sub.ID
	release, err := p.lock(ctx, lockedID)
	if err != nil {
		return res, err
	}
	defer release()

	// 等锁期间订阅可能被改名、修改或删除
	sub, err = p.store.GetSubscription(ctx, name)
	if err != nil {
		return res, fmt.Errorf("load subscription %q: %w", name, err)
	}
	if sub.ID != lockedID {
		return res, fmt.Errorf("subscription %q was replaced: %w", name, db.ErrNotFound)
	}
	log := p.log.WithFields(logrus.Fields{"subscription": sub.Name, "source_type": sub.SourceType})

	if err := p.store.SetState(ctx, sub.ID, model.StateRefreshing); err != nil {
		return res, fmt.Errorf("mark %q refreshing: %w", name, err)
	}
	p.bus.Publish(event.EventRefreshStarted, event.RefreshPayload{Subscription: sub.Name})

	success := false
	var runErr error
	defer func() {
		// 即使调用方已取消也要把状态复位
		finishCtx := context.WithoutCancel(ctx)
		if err := p.store.FinishRefresh(finishCtx, sub.ID, p.now(), success); err != nil {
			log.WithError(err).Error("reset subscription state")
		}
		payload := event.RefreshPayload{Subscription: sub.Name, Created: res.Created, Linked: res.Linked, Failed: res.Failed}
		if runErr != nil {
			payload.Error = runErr.Error()
		}
		p.bus.Publish(event.EventRefreshFinished, payload)
	}()

	plugin, err := p.plugins.Get(sub.SourceType)
	if err != nil {
		runErr = err
		log.WithError(err).Error("refresh failed")
		return res, err
	}

	items, err := p.fetcher.Fetch(ctx, sub.URL, plugin.FieldMappings())
	if err != nil {
		runErr = err
		log.WithError(err).Error("refresh failed")
		return res, err
	}
	res.Items = len(items)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			runErr = err
			log.WithError(err).Warn("refresh cancelled")
			return res, err
		}
		created, err := p.processItem(ctx, sub, plugin, item)
		switch {
		case err != nil:
			res.Failed++
			log.WithError(err).WithField("title", item.Title).Warn("skip item")
		case created:
			res.Created++
		default:
			res.Linked++
		}
	}

	success = true
	log.WithFields(logrus.Fields{
		"items":   res.Items,
		"created": res.Created,
		"linked":  res.Linked,
		"failed":  res.Failed,
	}).Info("refresh finished")
	return res, nil
}

// processItem returns created=true when a new release was stored.
func (p *Pipeline) processItem(ctx context.Context, sub *model.Subscription, plugin source.Plugin, item rss.Item) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			created, err = false, fmt.Errorf("panic: %v", r)
		}
	}()

	hash, err := plugin.IdentityHash(item)
	if err != nil {
		return false, err
	}

	if existing, err := p.store.FindAnimeByHash(ctx, hash); err == nil {
		return false, p.store.LinkAnime(ctx, sub.ID, existing.ID)
	} else if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	anime, err := plugin.Enrich(ctx, item)
	if err != nil {
		return false, err
	}
	anime.Hash = hash

	if err := p.store.CreateAnime(ctx, sub.ID, anime); err != nil {
		if !errors.Is(err, db.ErrConflict) {
			return false, err
		}
		// 并发写入同一 hash，改为关联
		existing, ferr := p.store.FindAnimeByHash(ctx, hash)
		if ferr != nil {
			return false, fmt.Errorf("%w (lookup after conflict: %v)", err, ferr)
		}
		return false, p.store.LinkAnime(ctx, sub.ID, existing.ID)
	}

	p.bus.Publish(event.EventReleaseCreated, *anime)
	if p.notifier != nil {
		p.notifier.NotifyAll(ctx, notify.Event{Subscription: sub.Name, Anime: *anime})
	}
	return true, nil
}
