package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// fraud_thresholds is temporally versioned: updating a rule key closes
// the current row (effective_until set) and inserts version+1. The
// partial unique index enforces one current row per rule key while
// keeping full history queryable.
const schemaThresholds = `
CREATE TABLE IF NOT EXISTS fraud_thresholds (
    id TEXT PRIMARY KEY,
    rule_key TEXT NOT NULL,
    display_name TEXT NOT NULL,
    rule_category TEXT NOT NULL,
    threshold_value REAL NOT NULL,
    weight REAL,
    severity_floor TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    effective_from TIMESTAMP NOT NULL,
    effective_until TIMESTAMP,
    version INTEGER NOT NULL DEFAULT 1,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    notes TEXT,
    UNIQUE (rule_key, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_fraud_thresholds_current
    ON fraud_thresholds(rule_key) WHERE effective_until IS NULL;
CREATE INDEX IF NOT EXISTS idx_fraud_thresholds_category ON fraud_thresholds(rule_category);
CREATE INDEX IF NOT EXISTS idx_fraud_thresholds_key ON fraud_thresholds(rule_key);
`

// fraud_detections is append-only from the engine's perspective; the
// review columns are reserved for the external review workflow.
const schemaDetections = `
CREATE TABLE IF NOT EXISTS fraud_detections (
    id TEXT PRIMARY KEY,
    submission_id TEXT NOT NULL,
    enumerator_id TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    config_snapshot_version INTEGER NOT NULL,
    gps_score REAL NOT NULL DEFAULT 0,
    speed_score REAL NOT NULL DEFAULT 0,
    straightline_score REAL NOT NULL DEFAULT 0,
    duplicate_score REAL NOT NULL DEFAULT 0,
    timing_score REAL NOT NULL DEFAULT 0,
    total_score REAL NOT NULL,
    severity TEXT NOT NULL,
    details TEXT NOT NULL,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP,
    resolution TEXT,
    resolution_notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_fraud_detections_submission ON fraud_detections(submission_id);
CREATE INDEX IF NOT EXISTS idx_fraud_detections_enumerator ON fraud_detections(enumerator_id);
CREATE INDEX IF NOT EXISTS idx_fraud_detections_severity ON fraud_detections(severity);
CREATE INDEX IF NOT EXISTS idx_fraud_detections_computed ON fraud_detections(computed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaThresholds,
		schemaDetections,
	}
}
