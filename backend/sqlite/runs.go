package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"flowforge/backend"
	"flowforge/item"
)

func (b *Backend) CreateRun(ctx context.Context, run *backend.Run) error {
	if run.Status == "" {
		run.Status = backend.RunStatusPending
	}
	run.CreatedAt = nowUTC()

	_, err := b.db.ExecContext(
		ctx,
		"INSERT INTO runs (id, workflow_id, status, created_at) VALUES (?, ?, ?, ?)",
		run.ID,
		run.WorkflowID,
		string(run.Status),
		formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

func (b *Backend) GetRun(ctx context.Context, id string) (*backend.Run, error) {
	row := b.db.QueryRowContext(
		ctx,
		"SELECT id, workflow_id, status, created_at, started_at, finished_at FROM runs WHERE id = ?",
		id,
	)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, backend.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	return run, nil
}

func (b *Backend) ListRuns(ctx context.Context, workflowID int64) ([]*backend.Run, error) {
	rows, err := b.db.QueryContext(
		ctx,
		"SELECT id, workflow_id, status, created_at, started_at, finished_at FROM runs WHERE workflow_id = ? ORDER BY created_at DESC",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*backend.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (b *Backend) StartRun(ctx context.Context, id string) error {
	return b.updateRunStatus(ctx, id, "UPDATE runs SET status = ?, started_at = ? WHERE id = ?", backend.RunStatusRunning)
}

func (b *Backend) CompleteRun(ctx context.Context, id string, status backend.RunStatus) error {
	return b.updateRunStatus(ctx, id, "UPDATE runs SET status = ?, finished_at = ? WHERE id = ?", status)
}

func (b *Backend) updateRunStatus(ctx context.Context, id, query string, status backend.RunStatus) error {
	res, err := b.db.ExecContext(ctx, query, string(status), formatTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return backend.ErrRunNotFound
	}

	return nil
}

func (b *Backend) SaveResult(ctx context.Context, result *backend.Result) error {
	var itemJSON any
	if result.Item != nil {
		data, err := json.Marshal(result.Item)
		if err != nil {
			return fmt.Errorf("marshal result item: %w", err)
		}
		itemJSON = string(data)
	}

	var lineage any
	if result.LineageIndex != nil {
		lineage = *result.LineageIndex
	}

	result.CreatedAt = nowUTC()

	_, err := b.db.ExecContext(
		ctx,
		"INSERT INTO results (run_id, lineage_index, node_id, item, error, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		result.RunID,
		lineage,
		nullableString(result.NodeID),
		itemJSON,
		nullableString(result.Error),
		formatTime(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	return nil
}

func (b *Backend) GetResults(ctx context.Context, runID string) ([]*backend.Result, error) {
	rows, err := b.db.QueryContext(
		ctx,
		"SELECT run_id, lineage_index, node_id, item, error, created_at FROM results WHERE run_id = ? ORDER BY id ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var results []*backend.Result
	for rows.Next() {
		var (
			r         backend.Result
			lineage   sql.NullInt64
			nodeID    sql.NullString
			itemJSON  sql.NullString
			errMsg    sql.NullString
			createdAt string
		)

		if err := rows.Scan(&r.RunID, &lineage, &nodeID, &itemJSON, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		if lineage.Valid {
			idx := int(lineage.Int64)
			r.LineageIndex = &idx
		}
		r.NodeID = nodeID.String
		r.Error = errMsg.String

		if itemJSON.Valid {
			r.Item = &item.Item{}
			if err := json.Unmarshal([]byte(itemJSON.String), r.Item); err != nil {
				return nil, fmt.Errorf("unmarshal result item: %w", err)
			}
		}

		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		results = append(results, &r)
	}

	return results, rows.Err()
}

func scanRun(row rowScanner) (*backend.Run, error) {
	var (
		r          backend.Run
		status     string
		createdAt  string
		startedAt  sql.NullString
		finishedAt sql.NullString
	)

	if err := row.Scan(&r.ID, &r.WorkflowID, &status, &createdAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	r.Status = backend.RunStatus(status)

	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &r, nil
}
