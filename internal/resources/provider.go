// Package resources inspects the live database schema and data directory to
// build the resource context used by generation, validation, and repair.
package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a gathered context stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Provider gathers and caches the resource context.
type Provider struct {
	conn    *sql.DB
	dataDir string
	ttl     time.Duration

	mu       sync.Mutex
	cached   *Context
	cachedAt time.Time
}

// NewProvider creates a Provider over the given store connection and data
// directory. A non-positive ttl falls back to DefaultCacheTTL.
func NewProvider(conn *sql.DB, dataDir string, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Provider{conn: conn, dataDir: dataDir, ttl: ttl}
}

// Context returns the resource context, reusing the cached copy while fresh.
func (p *Provider) Context(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cachedAt) < p.ttl {
		return p.cached, nil
	}
	return p.refreshLocked(ctx)
}

// Refresh discards the cache and gathers a fresh context.
func (p *Provider) Refresh(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

func (p *Provider) refreshLocked(ctx context.Context) (*Context, error) {
	schema, err := InspectSchema(ctx, p.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	files, err := ScanFiles(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan data directory: %w", err)
	}

	rc := &Context{
		Database:    *schema,
		Filesystem:  *files,
		GeneratedAt: time.Now().UTC(),
	}
	p.cached = rc
	p.cachedAt = time.Now()
	return rc, nil
}

// Snapshot serializes a context into the schema and file-list JSON blobs
// stored alongside a pipeline.
func Snapshot(rc *Context) (schemaJSON, fileListJSON string, err error) {
	sb, err := json.Marshal(rc.Database)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	fb, err := json.Marshal(rc.Filesystem)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal file list: %w", err)
	}
	return string(sb), string(fb), nil
}
