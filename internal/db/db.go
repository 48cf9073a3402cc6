// Package db provides SQLite storage for pipeline state, steps, and audit logs.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database handle
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite store at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Path returns the filesystem path of the store. The sandbox copies this file
// to build its private store.
func (db *DB) Path() string {
	return db.path
}

// Conn exposes the underlying handle for components that manage their own
// transactions (commit service, sandbox query execution).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database handle
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
