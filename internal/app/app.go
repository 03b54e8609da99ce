// Package app wires configuration, storage, clients and the ingestion
// pipeline into one value shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pokerjest/animerss/internal/ai"
	"github.com/pokerjest/animerss/internal/anilist"
	"github.com/pokerjest/animerss/internal/bangumi"
	"github.com/pokerjest/animerss/internal/config"
	"github.com/pokerjest/animerss/internal/db"
	"github.com/pokerjest/animerss/internal/event"
	"github.com/pokerjest/animerss/internal/logging"
	"github.com/pokerjest/animerss/internal/mikan"
	"github.com/pokerjest/animerss/internal/notify"
	"github.com/pokerjest/animerss/internal/ratelimit"
	"github.com/pokerjest/animerss/internal/scheduler"
	"github.com/pokerjest/animerss/internal/service"
	"github.com/pokerjest/animerss/internal/source"
	"github.com/pokerjest/animerss/pkg/rss"
	"github.com/sirupsen/logrus"
)

type App struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Store         *db.Store
	Bus           *event.InMemoryBus
	Fetcher       *rss.Fetcher
	Plugins       *source.Registry
	Pipeline      *service.Pipeline
	Scheduler     *scheduler.Manager
	Subscriptions *service.SubscriptionService
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// New opens the database and builds every component. The scheduler is
// created stopped; callers that want cron runs must Start it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	timeout := seconds(cfg.HTTP.TimeoutSeconds)
	proxy := cfg.HTTP.Proxy

	alLimiter := ratelimit.New("anilist", cfg.Anilist.Rate, seconds(cfg.Anilist.WindowSeconds))
	bgmLimiter := ratelimit.New("bangumi", cfg.Bangumi.Rate, seconds(cfg.Bangumi.WindowSeconds))
	mikanLimiter := ratelimit.New("mikan", cfg.Mikan.Rate, seconds(cfg.Mikan.WindowSeconds))

	al := anilist.NewClient(alLimiter,
		anilist.WithEndpoint(cfg.Anilist.Endpoint),
		anilist.WithProxy(proxy),
		anilist.WithTimeout(timeout),
	)
	bgm := bangumi.NewClient(bgmLimiter,
		bangumi.WithEndpoint(cfg.Bangumi.Endpoint),
		bangumi.WithProxy(proxy),
		bangumi.WithTimeout(timeout),
		bangumi.WithUserAgent(cfg.HTTP.UserAgent),
	)
	scraper := mikan.NewScraper(mikanLimiter, timeout, proxy)

	extractor := service.NewTitleExtractor(
		ai.NewClient(seconds(cfg.AI.TimeoutSeconds), proxy),
		store,
		ai.Config{Endpoint: cfg.AI.Endpoint, APIKey: cfg.AI.APIKey, Model: cfg.AI.Model},
		logging.Source(logger, "extractor"),
	)

	plugins := source.NewRegistry(
		source.NewNyaa(extractor, al, bgm, store),
		source.NewMikan(scraper, bgm, al, store),
	)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Bus:     event.NewInMemoryBus(),
		Fetcher: rss.NewFetcher(timeout, proxy),
		Plugins: plugins,
	}

	dispatcher := notify.NewDispatcher(store, timeout, logging.Source(logger, "notify"))
	a.Pipeline = service.NewPipeline(store, a.Fetcher, plugins, dispatcher, a.Bus, logging.Source(logger, "pipeline"))
	a.Scheduler = scheduler.NewManager(ctx, a.Pipeline, store, logging.Source(logger, "scheduler"))
	a.Subscriptions = service.NewSubscriptionService(store, a.Scheduler, cfg.Scheduler.DefaultCron, logging.Source(logger, "subscription"))
	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
