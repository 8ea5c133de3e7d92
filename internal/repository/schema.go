package repository

// Schema definitions for the Kite database.
// Compatible with both SQLite and PostgreSQL.

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    doc_type TEXT NOT NULL,
    entity_name TEXT NOT NULL,
    score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    disposition TEXT NOT NULL,
    system_error INTEGER NOT NULL DEFAULT 0,
    finding TEXT,
    reasons TEXT NOT NULL,
    advisory_reasons TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_entity ON decisions(entity_name);
CREATE INDEX IF NOT EXISTS idx_decisions_disposition ON decisions(disposition);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
`

// entity_history is append-only. Each row carries the cumulative counts
// as of its submission; seq is assigned at insert from the current
// maximum, so a concurrent writer from another process collides on the
// primary key instead of silently interleaving.
const schemaEntityHistory = `
CREATE TABLE IF NOT EXISTS entity_history (
    entity_name TEXT NOT NULL,
    seq INTEGER NOT NULL,
    reject_count INTEGER NOT NULL,
    escalate_count INTEGER NOT NULL,
    disposition TEXT NOT NULL,
    seen_at TIMESTAMP NOT NULL,
    PRIMARY KEY (entity_name, seq)
);

CREATE INDEX IF NOT EXISTS idx_entity_history_seen ON entity_history(entity_name, seen_at);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    doc_type TEXT NOT NULL,
    expression TEXT NOT NULL,
    fraud_type TEXT NOT NULL,
    severity INTEGER NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_doc_type ON custom_rules(doc_type);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDecisions,
		schemaEntityHistory,
		schemaCustomRules,
	}
}
