package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"flowforge/backend"
	"flowforge/compile"
	"flowforge/graph"
)

func (b *Backend) CreateWorkflow(ctx context.Context, workflow *backend.Workflow) error {
	if workflow.Status == "" {
		workflow.Status = backend.StatusEdit
	}

	definitionJSON, err := marshalNullable(workflow.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	planJSON, err := marshalNullable(workflow.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	now := formatTime(nowUTC())

	res, err := b.db.ExecContext(
		ctx,
		`INSERT INTO workflows (name, description, status, draft, definition, plan, crontab_expression, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workflow.Name,
		nullableString(workflow.Description),
		string(workflow.Status),
		workflow.Draft,
		definitionJSON,
		planJSON,
		nullableString(workflow.CrontabExpression),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	created, err := b.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	*workflow = *created

	return nil
}

func (b *Backend) GetWorkflow(ctx context.Context, id int64) (*backend.Workflow, error) {
	row := b.db.QueryRowContext(
		ctx,
		`SELECT id, name, description, status, draft, definition, plan, crontab_expression, last_run_at, created_at, updated_at
			FROM workflows WHERE id = ?`,
		id,
	)

	workflow, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, backend.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	return workflow, nil
}

func (b *Backend) ListWorkflows(ctx context.Context, options backend.ListWorkflowsOptions) ([]*backend.Workflow, error) {
	query := `SELECT id, name, description, status, draft, definition, plan, crontab_expression, last_run_at, created_at, updated_at
		FROM workflows`
	var args []any

	if options.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(options.Status))
	}

	if options.SortDesc {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*backend.Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

func (b *Backend) UpdateWorkflow(ctx context.Context, id int64, update *backend.WorkflowUpdate) (*backend.Workflow, error) {
	var fields []string
	var args []any

	if update.Name != nil {
		fields = append(fields, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		fields = append(fields, "description = ?")
		args = append(args, nullableString(*update.Description))
	}
	if update.Status != nil {
		fields = append(fields, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Draft != nil {
		fields = append(fields, "draft = ?")
		args = append(args, *update.Draft)
	}
	if update.Definition != nil {
		definitionJSON, err := marshalNullable(update.Definition)
		if err != nil {
			return nil, fmt.Errorf("marshal definition: %w", err)
		}
		fields = append(fields, "definition = ?")
		args = append(args, definitionJSON)

		planJSON, err := marshalNullable(update.Plan)
		if err != nil {
			return nil, fmt.Errorf("marshal plan: %w", err)
		}
		fields = append(fields, "plan = ?")
		args = append(args, planJSON)
	}
	if update.CrontabExpression != nil {
		fields = append(fields, "crontab_expression = ?")
		args = append(args, nullableString(*update.CrontabExpression))
	}

	fields = append(fields, "updated_at = ?")
	args = append(args, formatTime(nowUTC()))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(fields, ", "))

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, backend.ErrWorkflowNotFound
	}

	return b.GetWorkflow(ctx, id)
}

func (b *Backend) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := b.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return backend.ErrWorkflowNotFound
	}

	return nil
}

func (b *Backend) TouchLastRun(ctx context.Context, id int64) error {
	res, err := b.db.ExecContext(
		ctx,
		"UPDATE workflows SET last_run_at = ? WHERE id = ?",
		formatTime(nowUTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch last run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return backend.ErrWorkflowNotFound
	}

	return nil
}

func (b *Backend) ListScheduled(ctx context.Context) ([]*backend.Workflow, error) {
	rows, err := b.db.QueryContext(
		ctx,
		`SELECT id, name, description, status, draft, definition, plan, crontab_expression, last_run_at, created_at, updated_at
			FROM workflows
			WHERE status = ? AND draft = 0 AND crontab_expression IS NOT NULL
			ORDER BY id ASC`,
		string(backend.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*backend.Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*backend.Workflow, error) {
	var (
		w                 backend.Workflow
		description       sql.NullString
		status            string
		definitionJSON    sql.NullString
		planJSON          sql.NullString
		crontabExpression sql.NullString
		lastRunAt         sql.NullString
		createdAt         string
		updatedAt         string
	)

	if err := row.Scan(
		&w.ID, &w.Name, &description, &status, &w.Draft,
		&definitionJSON, &planJSON, &crontabExpression, &lastRunAt,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	w.Description = description.String
	w.Status = backend.WorkflowStatus(status)
	w.CrontabExpression = crontabExpression.String

	if definitionJSON.Valid {
		w.Definition = &graph.Definition{}
		if err := json.Unmarshal([]byte(definitionJSON.String), w.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
	}
	if planJSON.Valid {
		w.Plan = &compile.Plan{}
		if err := json.Unmarshal([]byte(planJSON.String), w.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}

	var err error
	if w.LastRunAt, err = parseNullTime(lastRunAt); err != nil {
		return nil, fmt.Errorf("parse last_run_at: %w", err)
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &w, nil
}

func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case *graph.Definition:
		if t == nil {
			return nil, nil
		}
	case *compile.Plan:
		if t == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
