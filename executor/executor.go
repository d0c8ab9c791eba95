// Package executor walks a compiled plan and drives the registered task
// handlers over a workflow item. Parallel groups run their branches
// concurrently on cloned items; merges combine the branch outputs.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/go-errors/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flowforge/backend"
	"flowforge/compile"
	"flowforge/item"
	"flowforge/log"
	"flowforge/metrics"
	"flowforge/registry"
)

// defaultMaxAttempts bounds retries for retryable tasks that do not set
// their own limit.
const defaultMaxAttempts = 3

// Result is one terminal output of a plan execution. Plans whose branches
// never converge produce one result per leaf branch.
type Result struct {
	Item *item.Item
	Err  error
}

// Executor resolves task names against a registry and executes plans.
type Executor struct {
	registry *registry.Registry
	options  backend.Options
	tracer   trace.Tracer
}

func New(reg *registry.Registry, opts ...backend.BackendOption) *Executor {
	options := backend.ApplyOptions(opts...)

	return &Executor{
		registry: reg,
		options:  options,
		tracer:   options.TracerProvider.Tracer(backend.TracerName),
	}
}

// Run threads one item through the plan and returns its terminal outputs. A
// returned error means the item failed somewhere in the plan; partial
// results from sibling branches are still returned.
func (e *Executor) Run(ctx context.Context, plan *compile.Plan, in *item.Item) ([]Result, error) {
	if plan == nil || plan.Root == nil {
		return nil, fmt.Errorf("plan has no root step")
	}

	ctx, span := e.tracer.Start(ctx, "plan.run")
	defer span.End()

	results := e.runStep(ctx, plan.Root, in)

	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			firstErr = r.Err
			break
		}
	}

	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
	}

	return results, firstErr
}

func (e *Executor) runStep(ctx context.Context, step *compile.Step, in *item.Item) []Result {
	if ctx.Err() != nil {
		return []Result{{Err: ctx.Err()}}
	}

	switch step.Kind {
	case compile.KindInvoke:
		out, err := e.invoke(ctx, step, in)
		return []Result{{Item: out, Err: err}}

	case compile.KindSequence:
		return e.runSequence(ctx, step, in)

	case compile.KindParallel:
		// A parallel group outside a merge pairing fans out terminally.
		return e.runBranches(ctx, step, in)

	case compile.KindRoute:
		return e.runRoute(ctx, step, in)

	case compile.KindMerge:
		// Merges are consumed by the preceding parallel step in runSequence;
		// a bare merge has nothing to combine.
		return []Result{{Err: fmt.Errorf("merge %q has no parallel inputs", step.NodeID)}}

	default:
		return []Result{{Err: fmt.Errorf("unknown step kind %q", step.Kind)}}
	}
}

// runSequence threads the item through the steps in order. A parallel step
// followed by a merge executes as one unit; a trailing parallel without a
// merge ends the sequence with fanned-out results.
func (e *Executor) runSequence(ctx context.Context, step *compile.Step, in *item.Item) []Result {
	cur := in

	for i := 0; i < len(step.Steps); i++ {
		s := step.Steps[i]

		if s.Kind == compile.KindParallel {
			if i+1 < len(step.Steps) && step.Steps[i+1].Kind == compile.KindMerge {
				merged, err := e.runJoin(ctx, s, step.Steps[i+1], cur)
				if err != nil {
					return []Result{{Err: err}}
				}
				cur = merged
				i++
				continue
			}

			// Terminal fan-out: the remaining sequence would be unreachable,
			// the compiler never emits steps after an unmerged parallel.
			return e.runBranches(ctx, s, cur)
		}

		results := e.runStep(ctx, s, cur)
		if len(results) != 1 {
			return results
		}
		if results[0].Err != nil {
			return results
		}
		cur = results[0].Item
	}

	return []Result{{Item: cur}}
}

// runBranches executes each branch of a parallel group concurrently, every
// branch on its own clone of the item.
func (e *Executor) runBranches(ctx context.Context, step *compile.Step, in *item.Item) []Result {
	out := make([][]Result, len(step.Branches))

	var wg sync.WaitGroup
	for i, branch := range step.Branches {
		i, branch := i, branch
		wg.Add(1)

		go func() {
			defer wg.Done()
			out[i] = e.runStep(ctx, branch, in.Clone())
		}()
	}
	wg.Wait()

	var flat []Result
	for _, results := range out {
		flat = append(flat, results...)
	}

	return flat
}

// runJoin executes a parallel group and combines its branch outputs through
// the paired merge step. All expected inputs must arrive; branch failures
// surface as a JoinIncompleteError instead of a silent partial merge.
func (e *Executor) runJoin(ctx context.Context, parallel, merge *compile.Step, in *item.Item) (*item.Item, error) {
	results := e.runBranches(ctx, parallel, in)

	inputs := make([]*item.Item, 0, len(results))
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		inputs = append(inputs, r.Item)
	}

	if len(errs) > 0 || len(inputs) != merge.ExpectedInputs {
		return nil, &JoinIncompleteError{
			NodeID:   merge.NodeID,
			Expected: merge.ExpectedInputs,
			Received: len(inputs),
			Errs:     errs,
		}
	}

	// The join node's own task follows as a separate invoke step; the merged
	// item carries the combination provenance for handlers that report it.
	merged := mergeItems(merge.Policy, inputs)
	merged = merged.WithMetadataValue(item.MergedFromMetadataKey, len(inputs))

	return merged, nil
}

// runRoute evaluates the routes in order and executes the first matching
// branch. With no match the item passes through unchanged.
func (e *Executor) runRoute(ctx context.Context, step *compile.Step, in *item.Item) []Result {
	for _, route := range step.Routes {
		if !matches(route.Condition, in) {
			continue
		}
		return e.runStep(ctx, route.Branch, in)
	}

	e.options.Logger.DebugContext(ctx, "no route matched, passing item through",
		log.NodeIDKey, step.NodeID)

	return []Result{{Item: in}}
}

// invoke runs one task handler, retrying retryable steps with exponential
// backoff. Panics inside a handler are captured with their stack and
// reported as a task failure.
func (e *Executor) invoke(ctx context.Context, step *compile.Step, in *item.Item) (*item.Item, error) {
	handler, err := e.registry.GetTask(step.Task)
	if err != nil {
		return nil, &TaskFailure{NodeID: step.NodeID, Task: step.Task, Err: err}
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("task: %s", step.Task), trace.WithAttributes(
		attribute.String(log.NodeIDKey, step.NodeID),
		attribute.String(log.TaskNameKey, step.Task),
	))
	defer span.End()

	tags := metrics.Tags{"task": step.Task}
	timer := metrics.Timer(e.options.Metrics, "task.duration", tags)
	defer timer.Stop()

	maxAttempts := 1
	if step.Retryable {
		maxAttempts = step.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = defaultMaxAttempts
		}
	}

	attempt := 0
	var out *item.Item

	operation := func() error {
		attempt++

		result, handlerErr := e.callHandler(ctx, handler, step, in)
		if handlerErr != nil {
			e.options.Logger.ErrorContext(ctx, "task attempt failed",
				log.NodeIDKey, step.NodeID,
				log.TaskNameKey, step.Task,
				log.AttemptKey, attempt,
				log.ErrorKey, handlerErr)

			if attempt >= maxAttempts {
				return backoff.Permanent(handlerErr)
			}
			return handlerErr
		}

		out = result
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		e.options.Metrics.Counter("task.failed", tags, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, &TaskFailure{NodeID: step.NodeID, Task: step.Task, Err: err}
	}

	e.options.Metrics.Counter("task.executed", tags, 1)

	return out, nil
}

func (e *Executor) callHandler(ctx context.Context, handler registry.Handler, step *compile.Step, in *item.Item) (out *item.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %w", goerrors.Wrap(r, 2))
		}
	}()

	return handler(ctx, in, step.Config)
}
