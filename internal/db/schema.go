package db

// schemaSQL defines the engine's own tables. User data tables live in the same
// store file so the sandbox can copy production state in one operation.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipelines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id INTEGER NOT NULL,
    original_request TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    committed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (status IN ('pending', 'running', 'success', 'failed', 'repaired',
                      'commit_in_progress', 'committed', 'commit_failed', 'rolled_back'))
);

CREATE INDEX IF NOT EXISTS idx_pipelines_owner ON pipelines(owner_id);
CREATE INDEX IF NOT EXISTS idx_pipelines_status ON pipelines(status);

CREATE TABLE IF NOT EXISTS pipeline_steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pipeline_id INTEGER NOT NULL,
    step_number INTEGER NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    description TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE,
    CHECK (kind IN ('shell', 'query')),
    UNIQUE (pipeline_id, step_number)
);

CREATE INDEX IF NOT EXISTS idx_steps_pipeline ON pipeline_steps(pipeline_id);

CREATE TABLE IF NOT EXISTS execution_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pipeline_id INTEGER NOT NULL,
    step_id INTEGER NOT NULL,
    run_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    succeeded BOOLEAN NOT NULL,
    stdout TEXT,
    stderr TEXT,
    exit_code INTEGER,
    duration_ms INTEGER,
    FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE,
    FOREIGN KEY (step_id) REFERENCES pipeline_steps(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_execution_pipeline ON execution_logs(pipeline_id);
CREATE INDEX IF NOT EXISTS idx_execution_step ON execution_logs(step_id);

CREATE TABLE IF NOT EXISTS repair_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pipeline_id INTEGER NOT NULL,
    attempt_number INTEGER NOT NULL,
    original_error TEXT NOT NULL,
    fix_rationale TEXT NOT NULL,
    patched_content TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    succeeded BOOLEAN NOT NULL,
    repaired_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE,
    CHECK (attempt_number >= 1),
    UNIQUE (pipeline_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_repair_pipeline ON repair_logs(pipeline_id);

CREATE TABLE IF NOT EXISTS resource_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pipeline_id INTEGER NOT NULL,
    schema_json TEXT NOT NULL,
    file_list_json TEXT NOT NULL,
    taken_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE
);
`

// EngineTables lists the engine's own tables so schema inspection can exclude
// them from the resource context handed to the oracle.
var EngineTables = map[string]bool{
	"pipelines":          true,
	"pipeline_steps":     true,
	"execution_logs":     true,
	"repair_logs":        true,
	"resource_snapshots": true,
}
