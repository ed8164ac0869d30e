package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emezac/dawn-sub002/internal/engine"
	"github.com/emezac/dawn-sub002/internal/errctx"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

// RunSummary is the list view of a stored run, without timings.
type RunSummary struct {
	RunID        string
	WorkflowID   string
	WorkflowName string
	Status       workflow.Status
	Success      bool
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
}

// SaveReport writes a run report and its task timings in one
// transaction. Saving the same run id twice replaces the earlier report.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *engine.RunReport) error {
	path, err := json.Marshal(report.ExecutionPath)
	if err != nil {
		return fmt.Errorf("failed to encode execution path: %w", err)
	}
	errSummary, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode error summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, workflow_id, workflow_name, status, success, error,
			 execution_path, errors, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.WorkflowID, report.WorkflowName,
		string(report.Status), report.Success, report.Error,
		string(path), string(errSummary),
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	// Replace semantics extend to the timing rows.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM task_executions WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear task executions: %w", err)
	}
	for _, t := range report.TaskTimings {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_executions
				(run_id, task_id, status, success, attempts,
				 start_time, end_time, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, t.TaskID, string(t.Status), t.Success, t.Attempts,
			t.StartTime.UTC(), t.EndTime.UTC(), t.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save task execution: %w", err)
		}
	}

	return tx.Commit()
}

// GetReport loads one run report with its task timings.
func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*engine.RunReport, error) {
	var (
		report     engine.RunReport
		status     string
		path       string
		errSummary string
		durationMS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, workflow_id, workflow_name, status, success, error,
		       execution_path, errors, started_at, finished_at, duration_ms
		FROM runs WHERE run_id = ?`, runID).Scan(
		&report.RunID, &report.WorkflowID, &report.WorkflowName,
		&status, &report.Success, &report.Error,
		&path, &errSummary, &report.StartedAt, &report.FinishedAt, &durationMS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	report.Status = workflow.Status(status)
	report.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(path), &report.ExecutionPath); err != nil {
		return nil, fmt.Errorf("failed to decode execution path: %w", err)
	}
	report.Errors = errctx.Summary{}
	if err := json.Unmarshal([]byte(errSummary), &report.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode error summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, success, attempts, start_time, end_time, duration_ms
		FROM task_executions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t          engine.TaskTiming
			taskStatus string
			ms         int64
		)
		if err := rows.Scan(&t.TaskID, &taskStatus, &t.Success, &t.Attempts,
			&t.StartTime, &t.EndTime, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan task execution: %w", err)
		}
		t.Status = workflow.TaskStatus(taskStatus)
		t.Duration = time.Duration(ms) * time.Millisecond
		report.TaskTimings = append(report.TaskTimings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task executions: %w", err)
	}

	return &report, nil
}

// ListRuns returns stored runs newest first, optionally filtered by
// workflow id. limit <= 0 means no limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]RunSummary, error) {
	query := `
		SELECT run_id, workflow_id, workflow_name, status, success, error,
		       started_at, duration_ms
		FROM runs`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r      RunSummary
			status string
			ms     int64
		)
		if err := rows.Scan(&r.RunID, &r.WorkflowID, &r.WorkflowName,
			&status, &r.Success, &r.Error, &r.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Status = workflow.Status(status)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
