package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"flowforge/backend"
)

func (b *Backend) Enqueue(ctx context.Context, job *backend.Job) error {
	job.EnqueuedAt = nowUTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = b.db.ExecContext(
		ctx,
		"INSERT INTO jobs (id, run_id, workflow_id, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)",
		job.ID,
		job.RunID,
		job.WorkflowID,
		string(payload),
		formatTime(job.EnqueuedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (b *Backend) Dequeue(ctx context.Context) (*backend.Job, error) {
	now := nowUTC()

	// Lock the next job by claiming an unlocked row (work around missing
	// LIMIT support for UPDATE by selecting in a sub-query).
	row := b.db.QueryRowContext(
		ctx,
		`UPDATE jobs
			SET locked_by = ?, locked_until = ?
			WHERE id = (
				SELECT id FROM jobs
					WHERE locked_until IS NULL OR locked_until < ?
					ORDER BY enqueued_at ASC
					LIMIT 1
			) RETURNING payload, locked_until`,
		b.workerName,
		formatTime(now.Add(b.options.JobLockTimeout)),
		formatTime(now),
	)

	var payload string
	var lockedUntil string
	if err := row.Scan(&payload, &lockedUntil); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lock job: %w", err)
	}

	var job backend.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	job.LockedBy = b.workerName
	until, err := parseTime(lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("parse locked_until: %w", err)
	}
	job.LockedUntil = &until

	return &job, nil
}

func (b *Backend) Extend(ctx context.Context, job *backend.Job) error {
	until := nowUTC().Add(b.options.JobLockTimeout)

	res, err := b.db.ExecContext(
		ctx,
		"UPDATE jobs SET locked_until = ? WHERE id = ? AND locked_by = ?",
		formatTime(until),
		job.ID,
		b.workerName,
	)
	if err != nil {
		return fmt.Errorf("extend job lock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("job %s is no longer locked by this worker", job.ID)
	}

	job.LockedUntil = &until

	return nil
}

func (b *Backend) Complete(ctx context.Context, job *backend.Job) error {
	res, err := b.db.ExecContext(
		ctx,
		"DELETE FROM jobs WHERE id = ? AND locked_by = ?",
		job.ID,
		b.workerName,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("job %s is no longer locked by this worker", job.ID)
	}

	return nil
}
