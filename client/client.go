// Package client is the trigger-side API of the engine: it manages stored
// workflows and turns ingress events (document uploads, structured messages)
// into runs dispatched through the broker.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flowforge/backend"
	"flowforge/compile"
	"flowforge/item"
	"flowforge/log"
)

// planCacheTTL bounds how long a compiled plan is served from cache before
// the store is consulted again.
const planCacheTTL = time.Minute

// Client manages workflows and dispatches runs.
type Client struct {
	store   backend.Store
	broker  backend.Broker
	options backend.Options
	tracer  trace.Tracer

	// plans caches the runnable plan per workflow so hot trigger paths skip
	// the store. Updates and deletes invalidate eagerly.
	plans *ttlcache.Cache[int64, *compile.Plan]
}

func New(store backend.Store, broker backend.Broker, opts ...backend.BackendOption) *Client {
	options := backend.ApplyOptions(opts...)

	plans := ttlcache.New[int64, *compile.Plan](
		ttlcache.WithTTL[int64, *compile.Plan](planCacheTTL),
	)
	go plans.Start()

	return &Client{
		store:   store,
		broker:  broker,
		options: options,
		tracer:  options.TracerProvider.Tracer(backend.TracerName),
		plans:   plans,
	}
}

// CreateWorkflow compiles the definition (when present) and stores the
// workflow. A malformed graph is rejected here, before anything is persisted.
func (c *Client) CreateWorkflow(ctx context.Context, workflow *backend.Workflow) error {
	if workflow.Definition != nil {
		plan, err := compile.Compile(workflow.Definition)
		if err != nil {
			return err
		}
		workflow.Plan = plan
	}

	if err := c.store.CreateWorkflow(ctx, workflow); err != nil {
		return err
	}

	c.options.Logger.DebugContext(ctx, "created workflow",
		log.WorkflowIDKey, workflow.ID,
		log.WorkflowNameKey, workflow.Name)

	return nil
}

// UpdateWorkflow applies a partial update. A changed definition is recompiled
// and the cached plan invalidated.
func (c *Client) UpdateWorkflow(ctx context.Context, id int64, update *backend.WorkflowUpdate) (*backend.Workflow, error) {
	if update.Definition != nil {
		plan, err := compile.Compile(update.Definition)
		if err != nil {
			return nil, err
		}
		update.Plan = plan
	}

	workflow, err := c.store.UpdateWorkflow(ctx, id, update)
	if err != nil {
		return nil, err
	}

	c.plans.Delete(id)

	return workflow, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id int64) (*backend.Workflow, error) {
	return c.store.GetWorkflow(ctx, id)
}

func (c *Client) ListWorkflows(ctx context.Context, options backend.ListWorkflowsOptions) ([]*backend.Workflow, error) {
	return c.store.ListWorkflows(ctx, options)
}

func (c *Client) DeleteWorkflow(ctx context.Context, id int64) error {
	if err := c.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}

	c.plans.Delete(id)

	return nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	return c.store.GetRun(ctx, id)
}

func (c *Client) ListRuns(ctx context.Context, workflowID int64) ([]*backend.Run, error) {
	return c.store.ListRuns(ctx, workflowID)
}

func (c *Client) GetResults(ctx context.Context, runID string) ([]*backend.Result, error) {
	return c.store.GetResults(ctx, runID)
}

// PushDocument triggers a workflow with a single uploaded document.
func (c *Client) PushDocument(ctx context.Context, workflowID int64, file item.File) (*backend.Run, error) {
	return c.PushDocuments(ctx, workflowID, []item.File{file})
}

// PushDocuments triggers a workflow with a batch of documents; each document
// becomes one lineage branch of the run.
func (c *Client) PushDocuments(ctx context.Context, workflowID int64, files []item.File) (*backend.Run, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("push requires at least one document")
	}

	input := item.InputFromFiles(files, map[string]any{
		"workflow_id": workflowID,
	})

	return c.dispatch(ctx, workflowID, input)
}

// PushMessage triggers a workflow with a structured JSON message. An object
// becomes one item, an array one item per element.
func (c *Client) PushMessage(ctx context.Context, workflowID int64, raw []byte) (*backend.Run, error) {
	input, err := item.InputFromStructured(raw)
	if err != nil {
		return nil, err
	}

	return c.dispatch(ctx, workflowID, input)
}

func (c *Client) dispatch(ctx context.Context, workflowID int64, input *item.Input) (*backend.Run, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.dispatch", trace.WithAttributes(
		attribute.Int64(log.WorkflowIDKey, workflowID),
	))
	defer span.End()

	plan, err := c.loadPlan(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run := &backend.Run{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	job := &backend.Job{
		ID:         uuid.NewString(),
		RunID:      run.ID,
		WorkflowID: workflowID,
		Plan:       plan,
		Items:      input.Items,
	}
	if err := c.broker.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	c.options.Logger.DebugContext(ctx, "dispatched run",
		log.WorkflowIDKey, workflowID,
		log.RunIDKey, run.ID,
		log.JobIDKey, job.ID)

	return run, nil
}

// loadPlan returns the runnable plan of a workflow, served from cache when
// fresh.
func (c *Client) loadPlan(ctx context.Context, workflowID int64) (*compile.Plan, error) {
	if cached := c.plans.Get(workflowID); cached != nil {
		return cached.Value(), nil
	}

	workflow, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	switch {
	case workflow.Draft:
		return nil, &WorkflowNotRunnableError{ID: workflowID, Reason: "workflow is a draft"}
	case workflow.Status != backend.StatusActive:
		return nil, &WorkflowNotRunnableError{ID: workflowID, Reason: fmt.Sprintf("workflow status is %s", workflow.Status)}
	case workflow.Plan == nil:
		return nil, &WorkflowNotRunnableError{ID: workflowID, Reason: "workflow has no compiled plan"}
	}

	c.plans.Set(workflowID, workflow.Plan, ttlcache.DefaultTTL)

	return workflow.Plan, nil
}

// Close stops the plan cache's eviction loop.
func (c *Client) Close() {
	c.plans.Stop()
}
