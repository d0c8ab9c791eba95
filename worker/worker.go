// Package worker polls the broker for dispatched jobs and executes them:
// every input item is threaded through the job's plan, the terminal outputs
// are persisted as run results, and the run ends in a status aggregated over
// its lineage branches.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flowforge/backend"
	"flowforge/executor"
	"flowforge/log"
	"flowforge/metrics"
	"flowforge/registry"
)

type Options struct {
	// Pollers is the number of concurrent dequeue loops. Each poller
	// processes its job before polling again, so this bounds job parallelism.
	Pollers int

	// PollingInterval is the pause after an empty dequeue.
	PollingInterval time.Duration

	// HeartbeatInterval is how often the lock of a job being processed is
	// extended. It should be well below the broker's lock timeout.
	HeartbeatInterval time.Duration

	// Clock drives polling and heartbeats; tests inject a mock.
	Clock clock.Clock
}

var DefaultOptions = Options{
	Pollers:           2,
	PollingInterval:   time.Second,
	HeartbeatInterval: time.Second * 30,
	Clock:             clock.New(),
}

// Worker executes dispatched jobs until its context is canceled.
type Worker struct {
	store    backend.Store
	broker   backend.Broker
	executor *executor.Executor
	options  Options
	ambient  backend.Options
	tracer   trace.Tracer

	wg sync.WaitGroup
}

func New(store backend.Store, broker backend.Broker, reg *registry.Registry, options *Options, opts ...backend.BackendOption) *Worker {
	if options == nil {
		options = &DefaultOptions
	}
	if options.Pollers <= 0 {
		options.Pollers = DefaultOptions.Pollers
	}
	if options.PollingInterval <= 0 {
		options.PollingInterval = DefaultOptions.PollingInterval
	}
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = DefaultOptions.HeartbeatInterval
	}
	if options.Clock == nil {
		options.Clock = clock.New()
	}

	ambient := backend.ApplyOptions(opts...)

	return &Worker{
		store:    store,
		broker:   broker,
		executor: executor.New(reg, opts...),
		options:  *options,
		ambient:  ambient,
		tracer:   ambient.TracerProvider.Tracer(backend.TracerName),
	}
}

// Start launches the poll loops. It returns immediately; cancel the context
// to stop and WaitForCompletion to drain.
func (w *Worker) Start(ctx context.Context) error {
	w.ambient.Logger.InfoContext(ctx, "starting job pollers", "count", w.options.Pollers)

	for i := 0; i < w.options.Pollers; i++ {
		w.wg.Add(1)

		go func() {
			defer w.wg.Done()
			w.poll(ctx)
		}()
	}

	return nil
}

// WaitForCompletion blocks until all pollers have finished their current job
// and exited.
func (w *Worker) WaitForCompletion() error {
	w.wg.Wait()
	return nil
}

func (w *Worker) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.broker.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.ambient.Logger.ErrorContext(ctx, "dequeue failed", log.ErrorKey, err)
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-w.options.Clock.After(w.options.PollingInterval):
			}
			continue
		}

		if err := w.process(ctx, job); err != nil {
			w.ambient.Logger.ErrorContext(ctx, "job processing failed",
				log.JobIDKey, job.ID,
				log.RunIDKey, job.RunID,
				log.ErrorKey, err)
		}
	}
}

// process executes one job and records the run outcome. The job's lock is
// extended on a heartbeat for as long as processing takes.
func (w *Worker) process(ctx context.Context, job *backend.Job) error {
	ctx, span := w.tracer.Start(ctx, "job.process", trace.WithAttributes(
		attribute.String(log.JobIDKey, job.ID),
		attribute.String(log.RunIDKey, job.RunID),
		attribute.Int64(log.WorkflowIDKey, job.WorkflowID),
	))
	defer span.End()

	stopHeartbeat := w.heartbeat(ctx, job)
	defer stopHeartbeat()

	timer := metrics.Timer(w.ambient.Metrics, "job.duration", metrics.Tags{})
	defer timer.Stop()

	if err := w.store.StartRun(ctx, job.RunID); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	var succeeded, failed int

	for _, in := range job.Items {
		results, _ := w.executor.Run(ctx, job.Plan, in)

		for _, result := range results {
			saved := &backend.Result{
				RunID:        job.RunID,
				LineageIndex: in.LineageIndex,
			}

			if result.Err != nil {
				failed++
				saved.Error = result.Err.Error()

				var taskFailure *executor.TaskFailure
				if errors.As(result.Err, &taskFailure) {
					saved.NodeID = taskFailure.NodeID
				}
			} else {
				succeeded++
				saved.Item = result.Item
				if result.Item != nil && result.Item.LineageIndex != nil {
					saved.LineageIndex = result.Item.LineageIndex
				}
			}

			if err := w.store.SaveResult(ctx, saved); err != nil {
				return fmt.Errorf("save result: %w", err)
			}
		}
	}

	status := runStatus(succeeded, failed)
	if err := w.store.CompleteRun(ctx, job.RunID, status); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	w.ambient.Metrics.Counter("run.completed", metrics.Tags{"status": string(status)}, 1)
	w.ambient.Logger.InfoContext(ctx, "run finished",
		log.RunIDKey, job.RunID,
		log.WorkflowIDKey, job.WorkflowID,
		"status", status)

	if err := w.broker.Complete(ctx, job); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	return nil
}

// runStatus aggregates branch outcomes: failures never abort sibling
// branches, they only degrade the run status.
func runStatus(succeeded, failed int) backend.RunStatus {
	switch {
	case failed == 0:
		return backend.RunStatusCompleted
	case succeeded == 0:
		return backend.RunStatusFailed
	default:
		return backend.RunStatusPartial
	}
}

func (w *Worker) heartbeat(ctx context.Context, job *backend.Job) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := w.options.Clock.Ticker(w.options.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.broker.Extend(ctx, job); err != nil {
					w.ambient.Logger.ErrorContext(ctx, "could not extend job lock",
						log.JobIDKey, job.ID,
						log.ErrorKey, err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
