package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pokerjest/animerss/internal/model"
	"github.com/sirupsen/logrus"
)

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, name string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	SaveSubscription(ctx context.Context, sub *model.Subscription) error
	DeleteSubscription(ctx context.Context, name string) (int64, error)
	ListAnimes(ctx context.Context, subID uint) ([]model.Anime, error)
}

// Scheduler is the job registry the service drives.
type Scheduler interface {
	ValidateCron(expr string) error
	StartTask(sub model.Subscription) error
	StopTask(name string) bool
	StartAllTasks(ctx context.Context) error
	StopAllTasks()
	Trigger(name string)
}

type SubscriptionService struct {
	store       SubscriptionStore
	scheduler   Scheduler
	defaultCron string
	log         *logrus.Entry
}

func NewSubscriptionService(store SubscriptionStore, scheduler Scheduler, defaultCron string, log *logrus.Entry) *SubscriptionService {
	return &SubscriptionService{store: store, scheduler: scheduler, defaultCron: defaultCron, log: log}
}

type SubscribeInput struct {
	Name       string           `json:"name"`
	URL        string           `json:"url"`
	SourceType model.SourceType `json:"source_type"`
	Cron       string           `json:"cron"`
}

// UpdateInput carries optional edits; nil fields are left alone.
type UpdateInput struct {
	Name       *string           `json:"name"`
	URL        *string           `json:"url"`
	SourceType *model.SourceType `json:"source_type"`
	Cron       *string           `json:"cron"`
}

func (s *SubscriptionService) validate(sub *model.Subscription) error {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.URL = strings.TrimSpace(sub.URL)
	sub.Cron = strings.TrimSpace(sub.Cron)

	if sub.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	u, err := url.Parse(sub.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an http(s) address", ErrInvalidInput)
	}
	if !sub.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, sub.SourceType)
	}
	if err := s.scheduler.ValidateCron(sub.Cron); err != nil {
		return fmt.Errorf("%w: cron %q: %v", ErrInvalidInput, sub.Cron, err)
	}
	return nil
}

// Subscribe persists a subscription and schedules it. Nothing is stored
// when validation fails.
func (s *SubscriptionService) Subscribe(ctx context.Context, in SubscribeInput) (*model.Subscription, error) {
	sub := &model.Subscription{
		Name:       in.Name,
		URL:        in.URL,
		SourceType: in.SourceType,
		Cron:       in.Cron,
		State:      model.StateIdle,
	}
	if strings.TrimSpace(sub.Cron) == "" {
		sub.Cron = s.defaultCron
	}
	if err := s.validate(sub); err != nil {
		return nil, err
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.scheduler.StartTask(*sub); err != nil {
		return sub, fmt.Errorf("schedule %q: %w", sub.Name, err)
	}
	s.log.WithField("subscription", sub.Name).Info("subscribed")
	return sub, nil
}

func (s *SubscriptionService) Update(ctx context.Context, name string, in UpdateInput) (*model.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, name)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.URL != nil {
		sub.URL = *in.URL
	}
	if in.SourceType != nil {
		sub.SourceType = *in.SourceType
	}
	if in.Cron != nil {
		sub.Cron = *in.Cron
	}
	if err := s.validate(sub); err != nil {
		return nil, err
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.scheduler.StopTask(name)
	if err := s.scheduler.StartTask(*sub); err != nil {
		return sub, fmt.Errorf("schedule %q: %w", sub.Name, err)
	}
	return sub, nil
}

// Unsubscribe stops the job and deletes the subscription with its orphaned
// releases. A refreshing subscription is only deleted with force.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, name string, force bool) (int64, error) {
	sub, err := s.store.GetSubscription(ctx, name)
	if err != nil {
		return 0, err
	}
	if sub.State == model.StateRefreshing && !force {
		return 0, fmt.Errorf("%q: %w", name, ErrRefreshing)
	}

	s.scheduler.StopTask(name)
	removed, err := s.store.DeleteSubscription(ctx, name)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"subscription": name, "removed_releases": removed}).Info("unsubscribed")
	return removed, nil
}

// Refresh queues an immediate run.
func (s *SubscriptionService) Refresh(ctx context.Context, name string) error {
	if _, err := s.store.GetSubscription(ctx, name); err != nil {
		return err
	}
	s.scheduler.Trigger(name)
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, name string) (*model.Subscription, error) {
	return s.store.GetSubscription(ctx, name)
}

func (s *SubscriptionService) List(ctx context.Context) ([]model.Subscription, error) {
	return s.store.ListSubscriptions(ctx)
}

func (s *SubscriptionService) Animes(ctx context.Context, name string) ([]model.Anime, error) {
	sub, err := s.store.GetSubscription(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.store.ListAnimes(ctx, sub.ID)
}

func (s *SubscriptionService) PauseAll() {
	s.scheduler.StopAllTasks()
}

func (s *SubscriptionService) ResumeAll(ctx context.Context) error {
	return s.scheduler.StartAllTasks(ctx)
}

// IsInvalid reports whether err was caused by bad caller input.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
