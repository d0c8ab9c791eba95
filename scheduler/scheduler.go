// Package scheduler triggers workflows on their crontab expressions. It
// ticks once a minute, checks every scheduled workflow's expression against
// the time it last ran, and pushes an empty message for each due workflow.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"flowforge/backend"
	"flowforge/client"
	"flowforge/log"
)

// trigger is the message a due schedule pushes into its workflow.
var trigger = []byte(`{}`)

type Options struct {
	// Interval is how often schedules are evaluated.
	Interval time.Duration

	// Clock drives the ticks; tests inject a mock.
	Clock clock.Clock
}

var DefaultOptions = Options{
	Interval: time.Minute,
	Clock:    clock.New(),
}

// Scheduler evaluates workflow schedules until its context is canceled.
type Scheduler struct {
	store   backend.Store
	client  *client.Client
	options Options
	ambient backend.Options

	wg sync.WaitGroup
}

func New(store backend.Store, c *client.Client, options *Options, opts ...backend.BackendOption) *Scheduler {
	if options == nil {
		options = &DefaultOptions
	}
	if options.Interval <= 0 {
		options.Interval = DefaultOptions.Interval
	}
	if options.Clock == nil {
		options.Clock = clock.New()
	}

	return &Scheduler{
		store:   store,
		client:  c,
		options: *options,
		ambient: backend.ApplyOptions(opts...),
	}
}

// Start launches the tick loop. It returns immediately; cancel the context
// to stop and WaitForCompletion to drain.
func (s *Scheduler) Start(ctx context.Context) error {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := s.options.Clock.Ticker(s.options.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()

	return nil
}

func (s *Scheduler) WaitForCompletion() error {
	s.wg.Wait()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	workflows, err := s.store.ListScheduled(ctx)
	if err != nil {
		s.ambient.Logger.ErrorContext(ctx, "could not list scheduled workflows", log.ErrorKey, err)
		return
	}

	now := s.options.Clock.Now()

	for _, workflow := range workflows {
		due, err := s.isDue(workflow, now)
		if err != nil {
			s.ambient.Logger.ErrorContext(ctx, "invalid crontab expression",
				log.WorkflowIDKey, workflow.ID,
				log.ErrorKey, err)
			continue
		}
		if !due {
			continue
		}

		// Record the trigger first so a failing push does not retrigger on
		// every tick.
		if err := s.store.TouchLastRun(ctx, workflow.ID); err != nil {
			s.ambient.Logger.ErrorContext(ctx, "could not record trigger time",
				log.WorkflowIDKey, workflow.ID,
				log.ErrorKey, err)
			continue
		}

		run, err := s.client.PushMessage(ctx, workflow.ID, trigger)
		if err != nil {
			s.ambient.Logger.ErrorContext(ctx, "scheduled trigger failed",
				log.WorkflowIDKey, workflow.ID,
				log.ErrorKey, err)
			continue
		}

		s.ambient.Logger.InfoContext(ctx, "triggered scheduled workflow",
			log.WorkflowIDKey, workflow.ID,
			log.RunIDKey, run.ID)
	}
}

// isDue reports whether the workflow's next scheduled time since its last
// trigger has passed.
func (s *Scheduler) isDue(workflow *backend.Workflow, now time.Time) (bool, error) {
	schedule, err := cron.ParseStandard(workflow.CrontabExpression)
	if err != nil {
		return false, err
	}

	last := workflow.CreatedAt
	if workflow.LastRunAt != nil {
		last = *workflow.LastRunAt
	}

	return !schedule.Next(last).After(now), nil
}
