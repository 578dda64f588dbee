// CLAUDE:SUMMARY SQLite fill-run history: record finished runs with per-field outcomes, list and fetch them, retention cleanup.
// Package observability keeps the history of fill runs. Recording never
// fails a run: a broken history store is logged and ignored.
package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/formfill/dbopen"
	"github.com/hazyhaar/formfill/idgen"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("observability: run not found")

// RunRecord is one finished fill run.
type RunRecord struct {
	RunID             string          `json:"run_id"`
	URL               string          `json:"url,omitempty"`
	Host              string          `json:"host"`
	Strategy          string          `json:"strategy"`
	Filled            int             `json:"filled"`
	Total             int             `json:"total"`
	Status            string          `json:"status"`
	OracleUnavailable bool            `json:"oracle_unavailable,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	Outcomes          []OutcomeRecord `json:"outcomes,omitempty"`
}

// Duration is FinishedAt minus StartedAt.
func (r *RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// OutcomeRecord is the result for one field of a run.
type OutcomeRecord struct {
	Label  string `json:"label"`
	Kind   string `json:"kind,omitempty"`
	Pass   string `json:"pass,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunFilter narrows List. Zero values match everything.
type RunFilter struct {
	Host  string
	Since time.Time
	Limit int
}

// RunLog writes and reads the fill_runs and fill_outcomes tables.
type RunLog struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// RunLogOption configures a RunLog.
type RunLogOption func(*RunLog)

// WithRunIDGenerator sets the generator used for records without a run id.
func WithRunIDGenerator(gen idgen.Generator) RunLogOption {
	return func(l *RunLog) { l.newID = gen }
}

// WithLogger sets the logger used for swallowed write errors.
func WithLogger(logger *slog.Logger) RunLogOption {
	return func(l *RunLog) { l.logger = logger }
}

// NewRunLog creates a run log backed by db. The schema must be applied
// (Init or dbopen.WithSchema(Schema)).
func NewRunLog(db *sql.DB, opts ...RunLogOption) *RunLog {
	l := &RunLog{
		db:     db,
		newID:  idgen.RunID,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record stores rec. Non-blocking: errors are logged via slog but do not
// propagate.
func (l *RunLog) Record(ctx context.Context, rec *RunRecord) {
	if err := l.Save(ctx, rec); err != nil {
		l.logger.Error("observability: record run failed", "error", err, "run_id", rec.RunID)
	}
}

// Save stores rec and its outcomes in one transaction, replacing any
// previous record with the same run id.
func (l *RunLog) Save(ctx context.Context, rec *RunRecord) error {
	if rec.RunID == "" {
		rec.RunID = l.newID()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fill_outcomes WHERE run_id = ?`, rec.RunID); err != nil {
			return fmt.Errorf("observability: clear outcomes: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO fill_runs (
				run_id, url, host, strategy, filled, total, status,
				oracle_unavailable, started_at, finished_at, duration_ms
			) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			rec.RunID, rec.URL, rec.Host, rec.Strategy, rec.Filled, rec.Total, rec.Status,
			rec.OracleUnavailable, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
			rec.Duration().Milliseconds())
		if err != nil {
			return fmt.Errorf("observability: insert run: %w", err)
		}
		if len(rec.Outcomes) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fill_outcomes (run_id, seq, label, kind, pass, status, error)
			VALUES (?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("observability: prepare outcome: %w", err)
		}
		defer stmt.Close()
		for i, o := range rec.Outcomes {
			if _, err := stmt.ExecContext(ctx, rec.RunID, i, o.Label, o.Kind, o.Pass, o.Status, o.Error); err != nil {
				return fmt.Errorf("observability: insert outcome: %w", err)
			}
		}
		return nil
	})
}

// List returns runs newest first, without their outcomes.
func (l *RunLog) List(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	q := `SELECT run_id, url, host, strategy, filled, total, status,
		oracle_unavailable, started_at, finished_at
		FROM fill_runs WHERE 1=1`
	var args []any
	if f.Host != "" {
		q += " AND host = ?"
		args = append(args, f.Host)
	}
	if !f.Since.IsZero() {
		q += " AND started_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := 50
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY started_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Get returns one run with its outcomes.
func (l *RunLog) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := l.db.QueryRowContext(ctx, `SELECT run_id, url, host, strategy, filled, total, status,
		oracle_unavailable, started_at, finished_at
		FROM fill_runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `SELECT label, kind, pass, status, error
		FROM fill_outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("observability: outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o OutcomeRecord
		if err := rows.Scan(&o.Label, &o.Kind, &o.Pass, &o.Status, &o.Error); err != nil {
			return nil, fmt.Errorf("observability: scan outcome: %w", err)
		}
		rec.Outcomes = append(rec.Outcomes, o)
	}
	return rec, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var started, finished int64
	err := s.Scan(&rec.RunID, &rec.URL, &rec.Host, &rec.Strategy, &rec.Filled, &rec.Total,
		&rec.Status, &rec.OracleUnavailable, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("observability: scan run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(started)
	rec.FinishedAt = time.UnixMilli(finished)
	return &rec, nil
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	RunsDays       int
	RunVacuumAfter bool
}

// Cleanup deletes runs older than the retention threshold together with
// their outcomes.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) (int64, error) {
	if cfg.RunsDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.RunsDays).UnixMilli()
	var deleted int64
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fill_outcomes WHERE run_id IN
			(SELECT run_id FROM fill_runs WHERE started_at < ?)`, cutoff); err != nil {
			return fmt.Errorf("observability: cleanup outcomes: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM fill_runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("observability: cleanup runs: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return deleted, fmt.Errorf("observability: vacuum: %w", err)
		}
	}
	return deleted, nil
}
