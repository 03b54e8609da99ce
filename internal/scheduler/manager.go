package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pokerjest/animerss/internal/model"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner refreshes one subscription.
type Runner interface {
	Refresh(ctx context.Context, name string) error
}

type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
}

// Manager keeps at most one cron job per subscription name. Removing a
// job never interrupts a run that already started.
type Manager struct {
	ctx    context.Context
	cron   *cron.Cron
	runner Runner
	subs   SubscriptionLister
	log    *logrus.Entry

	mu      sync.Mutex
	entries map[string]cron.EntryID
	wg      sync.WaitGroup
}

// NewManager returns a stopped manager. Runs inherit ctx.
func NewManager(ctx context.Context, runner Runner, subs SubscriptionLister, log *logrus.Entry) *Manager {
	logger := cron.PrintfLogger(log)
	return &Manager{
		ctx: ctx,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		runner:  runner,
		subs:    subs,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

func (m *Manager) Start() {
	m.cron.Start()
	m.log.Info("scheduler started")
}

// Stop halts the clock and waits for running jobs.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.wg.Wait()
	m.log.Info("scheduler stopped")
}

// ValidateCron accepts standard five-field expressions and descriptors
// such as @hourly or @every 10m.
func (m *Manager) ValidateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// StartTask (re)schedules sub and triggers one immediate run.
func (m *Manager) StartTask(sub model.Subscription) error {
	schedule, err := cron.ParseStandard(sub.Cron)
	if err != nil {
		return fmt.Errorf("cron %q: %w", sub.Cron, err)
	}

	name := sub.Name
	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(m.log))).
		Then(cron.FuncJob(func() { m.run(name) }))

	m.mu.Lock()
	if id, ok := m.entries[name]; ok {
		m.cron.Remove(id)
	}
	m.entries[name] = m.cron.Schedule(schedule, job)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"subscription": name, "cron": sub.Cron}).Info("task scheduled")
	m.Trigger(name)
	return nil
}

// StopTask reports whether a job was removed.
func (m *Manager) StopTask(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.entries[name]
	if !ok {
		return false
	}
	m.cron.Remove(id)
	delete(m.entries, name)
	m.log.WithField("subscription", name).Info("task stopped")
	return true
}

func (m *Manager) StartAllTasks(ctx context.Context) error {
	subs, err := m.subs.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, sub := range subs {
		if err := m.StartTask(sub); err != nil {
			m.log.WithError(err).WithField("subscription", sub.Name).Error("schedule failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) StopAllTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, id := range m.entries {
		m.cron.Remove(id)
		delete(m.entries, name)
	}
	m.log.Info("all tasks stopped")
}

// Trigger runs a refresh now, in the background.
func (m *Manager) Trigger(name string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(name)
	}()
}

// Tasks lists scheduled subscription names.
func (m *Manager) Tasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) run(name string) {
	if err := m.runner.Refresh(m.ctx, name); err != nil {
		m.log.WithError(err).WithField("subscription", name).Error("refresh failed")
	}
}
