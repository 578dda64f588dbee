package observability

import "database/sql"

// Schema holds the run history tables.
const Schema = `
-- One row per fill run
CREATE TABLE IF NOT EXISTS fill_runs (
    run_id TEXT PRIMARY KEY,
    url TEXT NOT NULL DEFAULT '',
    host TEXT NOT NULL DEFAULT '',
    strategy TEXT NOT NULL,
    filled INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    oracle_unavailable INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fill_runs_started ON fill_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_fill_runs_host ON fill_runs(host, started_at DESC);

-- Per-field outcomes of a run
CREATE TABLE IF NOT EXISTS fill_outcomes (
    run_id TEXT NOT NULL REFERENCES fill_runs(run_id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    label TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    pass TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);
`

// Init applies the run history schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
