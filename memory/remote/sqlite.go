package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/formfill/dbopen"
	"github.com/hazyhaar/formfill/memory"
)

// Schema creates the table used by SQLite.
const Schema = `CREATE TABLE IF NOT EXISTS remote_answers (
	normalized_key TEXT PRIMARY KEY,
	question       TEXT NOT NULL,
	answer         TEXT NOT NULL,
	field_tag      TEXT NOT NULL DEFAULT 'input',
	last_used      INTEGER NOT NULL DEFAULT 0,
	use_count      INTEGER NOT NULL DEFAULT 0
)`

// SQLite keeps the shared copy in one row per entry.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps db and creates the table if needed.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("remote/sqlite: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) PullAll(ctx context.Context) ([]memory.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_key, question, answer, field_tag, last_used, use_count
		 FROM remote_answers ORDER BY normalized_key`)
	if err != nil {
		return nil, fmt.Errorf("remote/sqlite: pull: %w", err)
	}
	defer rows.Close()
	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		if err := rows.Scan(&e.Key, &e.Question, &e.Answer, &e.FieldTag, &e.LastUsed, &e.UseCount); err != nil {
			return nil, fmt.Errorf("remote/sqlite: pull: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertMany writes every entry with a key in one transaction.
func (s *SQLite) UpsertMany(ctx context.Context, entries []memory.Entry) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO remote_answers (normalized_key, question, answer, field_tag, last_used, use_count)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(normalized_key) DO UPDATE SET
			   question = excluded.question, answer = excluded.answer,
			   field_tag = excluded.field_tag, last_used = excluded.last_used,
			   use_count = excluded.use_count`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if e.Key == "" {
				continue
			}
			tag := e.FieldTag
			if tag == "" {
				tag = memory.DefaultFieldTag
			}
			if _, err := stmt.ExecContext(ctx, e.Key, e.Question, e.Answer, tag, e.LastUsed, e.UseCount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remote/sqlite: upsert: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteOne(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM remote_answers WHERE normalized_key = ?`, key); err != nil {
		return fmt.Errorf("remote/sqlite: delete: %w", err)
	}
	return nil
}
