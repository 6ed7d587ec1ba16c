package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS executions (
    execution_id  TEXT PRIMARY KEY,
    rule_id       TEXT,
    workflow_id   TEXT,
    pack_id       TEXT,
    tenant_id     TEXT NOT NULL,
    status        TEXT NOT NULL,
    duration_ms   BIGINT NOT NULL,
    error         TEXT,
    action_results JSONB,
    started_at    TIMESTAMPTZ NOT NULL,
    archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_executions_rule ON executions (rule_id, started_at);
CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id, started_at);
CREATE INDEX IF NOT EXISTS idx_executions_tenant ON executions (tenant_id, started_at);

CREATE TABLE IF NOT EXISTS archive_cursors (
    rule_id      TEXT PRIMARY KEY,
    cursor_value TEXT NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
