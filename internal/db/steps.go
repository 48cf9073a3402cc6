package db

import (
	"context"
	"database/sql"
	"fmt"
)

// ListSteps retrieves all steps for a pipeline ordered by step number.
func (db *DB) ListSteps(ctx context.Context, pipelineID int64) ([]PipelineStep, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, pipeline_id, step_number, kind, content, description, created_at
		 FROM pipeline_steps WHERE pipeline_id = ? ORDER BY step_number`,
		pipelineID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []PipelineStep
	for rows.Next() {
		var s PipelineStep
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.StepNumber, &s.Kind, &s.Content, &desc, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Description = desc.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// GetStep retrieves a single step by pipeline and step number.
// Returns (nil, nil) if not found.
func (db *DB) GetStep(ctx context.Context, pipelineID int64, stepNumber int) (*PipelineStep, error) {
	var s PipelineStep
	var desc sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, pipeline_id, step_number, kind, content, description, created_at
		 FROM pipeline_steps WHERE pipeline_id = ? AND step_number = ?`,
		pipelineID, stepNumber,
	).Scan(&s.ID, &s.PipelineID, &s.StepNumber, &s.Kind, &s.Content, &desc, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	s.Description = desc.String
	return &s, nil
}

// UpdateStepContent replaces a step's content in place after a repair patch.
func (db *DB) UpdateStepContent(ctx context.Context, stepID int64, content string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE pipeline_steps SET content = ? WHERE id = ?`,
		content, stepID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step content: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("step not found: %d", stepID)
	}
	return nil
}
