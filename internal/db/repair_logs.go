package db

import (
	"context"
	"fmt"
)

// InsertRepairLog records one oracle-assisted repair attempt.
func (db *DB) InsertRepairLog(ctx context.Context, in RepairLogInput) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO repair_logs (pipeline_id, attempt_number, original_error, fix_rationale, patched_content, content_hash, succeeded)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.PipelineID, in.AttemptNumber, in.OriginalError, in.FixRationale, in.PatchedContent, in.ContentHash, in.Succeeded,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert repair log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read repair log id: %w", err)
	}
	return id, nil
}

// CountRepairAttempts returns how many repair attempts a pipeline has consumed.
func (db *DB) CountRepairAttempts(ctx context.Context, pipelineID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM repair_logs WHERE pipeline_id = ?`, pipelineID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count repair attempts: %w", err)
	}
	return count, nil
}

// ListRepairLogs retrieves all repair attempts for a pipeline in attempt order.
func (db *DB) ListRepairLogs(ctx context.Context, pipelineID int64) ([]RepairLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, pipeline_id, attempt_number, original_error, fix_rationale, patched_content, content_hash, succeeded, repaired_at
		 FROM repair_logs WHERE pipeline_id = ? ORDER BY attempt_number`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list repair logs: %w", err)
	}
	defer rows.Close()

	var logs []RepairLog
	for rows.Next() {
		var l RepairLog
		if err := rows.Scan(&l.ID, &l.PipelineID, &l.AttemptNumber, &l.OriginalError,
			&l.FixRationale, &l.PatchedContent, &l.ContentHash, &l.Succeeded, &l.RepairedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repair log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// HasRepairHash reports whether a fix with the same content hash was already
// proposed for this pipeline. Used to reject duplicate patches from the oracle.
func (db *DB) HasRepairHash(ctx context.Context, pipelineID int64, contentHash string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM repair_logs WHERE pipeline_id = ? AND content_hash = ?`,
		pipelineID, contentHash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up repair hash: %w", err)
	}
	return count > 0, nil
}
