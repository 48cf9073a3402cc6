package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertSnapshot records a point-in-time resource snapshot for a pipeline.
func (db *DB) InsertSnapshot(ctx context.Context, pipelineID int64, schemaJSON, fileListJSON string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO resource_snapshots (pipeline_id, schema_json, file_list_json)
		 VALUES (?, ?, ?)`,
		pipelineID, schemaJSON, fileListJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	return id, nil
}

// LatestSnapshot retrieves the most recent resource snapshot for a pipeline.
// Returns (nil, nil) if none exists.
func (db *DB) LatestSnapshot(ctx context.Context, pipelineID int64) (*ResourceSnapshot, error) {
	var s ResourceSnapshot
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, pipeline_id, schema_json, file_list_json, taken_at
		 FROM resource_snapshots WHERE pipeline_id = ? ORDER BY id DESC LIMIT 1`,
		pipelineID,
	).Scan(&s.ID, &s.PipelineID, &s.SchemaJSON, &s.FileListJSON, &s.TakenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &s, nil
}
