package db

import (
	"context"
	"database/sql"
	"fmt"
)

// CreatePipeline inserts a pipeline, its steps, and the generation-time
// resource snapshot in a single transaction, and returns the pipeline ID.
func (db *DB) CreatePipeline(ctx context.Context, ownerID int64, request string, steps []StepInput, schemaJSON, fileListJSON string) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO pipelines (owner_id, original_request, status) VALUES (?, ?, ?)`,
		ownerID, request, StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create pipeline: %w", err)
	}
	pipelineID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pipeline id: %w", err)
	}

	for _, step := range steps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pipeline_steps (pipeline_id, step_number, kind, content, description)
			 VALUES (?, ?, ?, ?, ?)`,
			pipelineID, step.StepNumber, step.Kind, step.Content, nullIfEmpty(step.Description),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create step %d: %w", step.StepNumber, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resource_snapshots (pipeline_id, schema_json, file_list_json)
		 VALUES (?, ?, ?)`,
		pipelineID, schemaJSON, fileListJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create resource snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pipeline creation: %w", err)
	}
	return pipelineID, nil
}

// GetPipeline retrieves a pipeline by ID. Returns (nil, nil) if not found.
func (db *DB) GetPipeline(ctx context.Context, pipelineID int64) (*Pipeline, error) {
	var p Pipeline
	var committedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, original_request, status, committed_at, created_at, updated_at
		 FROM pipelines WHERE id = ?`,
		pipelineID,
	).Scan(&p.ID, &p.OwnerID, &p.OriginalRequest, &p.Status, &committedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	if committedAt.Valid {
		p.CommittedAt = &committedAt.Time
	}
	return &p, nil
}

// UpdatePipelineStatus transitions a pipeline to the given status
func (db *DB) UpdatePipelineStatus(ctx context.Context, pipelineID int64, status string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE pipelines SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, pipelineID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pipeline status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pipeline not found: %d", pipelineID)
	}
	return nil
}

// MarkCommitted transitions a pipeline to committed and stamps the commit time
func (db *DB) MarkCommitted(ctx context.Context, pipelineID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE pipelines SET status = ?, committed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		StatusCommitted, pipelineID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark pipeline committed: %w", err)
	}
	return nil
}

// ListPipelines retrieves recent pipelines for an owner
func (db *DB) ListPipelines(ctx context.Context, ownerID int64, limit int) ([]Pipeline, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, original_request, status, committed_at, created_at, updated_at
		 FROM pipelines WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		var p Pipeline
		var committedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.OriginalRequest, &p.Status, &committedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		if committedAt.Valid {
			p.CommittedAt = &committedAt.Time
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
