package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertExecutionLog records the outcome of one sandbox step attempt.
func (db *DB) InsertExecutionLog(ctx context.Context, in ExecutionLogInput) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO execution_logs (pipeline_id, step_id, succeeded, stdout, stderr, exit_code, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.PipelineID, in.StepID, in.Succeeded, in.Stdout, in.Stderr, in.ExitCode, in.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert execution log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read execution log id: %w", err)
	}
	return id, nil
}

// GetExecutionLog retrieves an execution log joined with its step so failure
// diagnostics carry the content that produced them. Returns (nil, nil) if not found.
func (db *DB) GetExecutionLog(ctx context.Context, logID int64) (*ExecutionLog, error) {
	l, err := db.scanExecutionLog(db.conn.QueryRowContext(ctx,
		executionLogSelect+` WHERE l.id = ?`, logID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get execution log: %w", err)
	}
	return l, nil
}

// LatestFailure retrieves the most recent failed execution log for a pipeline.
// Returns (nil, nil) if the pipeline has no recorded failures.
func (db *DB) LatestFailure(ctx context.Context, pipelineID int64) (*ExecutionLog, error) {
	l, err := db.scanExecutionLog(db.conn.QueryRowContext(ctx,
		executionLogSelect+` WHERE l.pipeline_id = ? AND l.succeeded = 0 ORDER BY l.id DESC LIMIT 1`,
		pipelineID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest failure: %w", err)
	}
	return l, nil
}

// ListExecutionLogs retrieves all execution logs for a pipeline in order.
func (db *DB) ListExecutionLogs(ctx context.Context, pipelineID int64) ([]ExecutionLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		executionLogSelect+` WHERE l.pipeline_id = ? ORDER BY l.id`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var logs []ExecutionLog
	for rows.Next() {
		l, err := db.scanExecutionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

const executionLogSelect = `
	SELECT l.id, l.pipeline_id, l.step_id, l.run_time, l.succeeded,
	       l.stdout, l.stderr, l.exit_code, l.duration_ms,
	       s.step_number, s.kind, s.content
	FROM execution_logs l
	JOIN pipeline_steps s ON s.id = l.step_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanExecutionLog(row rowScanner) (*ExecutionLog, error) {
	var l ExecutionLog
	var stdout, stderr sql.NullString
	var exitCode, durationMs sql.NullInt64
	err := row.Scan(&l.ID, &l.PipelineID, &l.StepID, &l.RunTime, &l.Succeeded,
		&stdout, &stderr, &exitCode, &durationMs,
		&l.StepNumber, &l.StepKind, &l.StepContent)
	if err != nil {
		return nil, err
	}
	l.Stdout = stdout.String
	l.Stderr = stderr.String
	l.ExitCode = int(exitCode.Int64)
	l.DurationMs = durationMs.Int64
	return &l, nil
}
