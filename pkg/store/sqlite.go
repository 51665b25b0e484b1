package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Journal backed by a sqlite database file
type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// OpenSQLite opens (or creates) the journal at path. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`
CREATE TABLE IF NOT EXISTS executions (
  job_id INTEGER PRIMARY KEY,
  state TEXT NOT NULL,
  execute_tx_id TEXT,
  claim_tx_id TEXT,
  last_error TEXT,
  updated_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS executions_state ON executions (state);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, jobID uint64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, state, execute_tx_id, claim_tx_id, last_error, updated_at
       FROM executions WHERE job_id = ?`, int64(jobID),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

func (s *SQLite) Upsert(ctx context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (job_id, state, execute_tx_id, claim_tx_id, last_error, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
           state = excluded.state,
           execute_tx_id = excluded.execute_tx_id,
           claim_tx_id = excluded.claim_tx_id,
           last_error = excluded.last_error,
           updated_at = excluded.updated_at`,
		int64(entry.JobID),
		string(entry.State),
		nullString(entry.ExecuteTxID),
		nullString(entry.ClaimTxID),
		nullString(entry.LastError),
		entry.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLite) ListByState(ctx context.Context, states ...State) ([]Entry, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := make([]any, 0, len(states))
	for _, st := range states {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, state, execute_tx_id, claim_tx_id, last_error, updated_at
       FROM executions WHERE state IN (`+placeholders+`) ORDER BY job_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		jobID                         int64
		state                         string
		executeTx, claimTx, lastError sql.NullString
		updatedMs                     int64
	)
	if err := row.Scan(&jobID, &state, &executeTx, &claimTx, &lastError, &updatedMs); err != nil {
		return Entry{}, err
	}
	return Entry{
		JobID:       uint64(jobID),
		State:       State(state),
		ExecuteTxID: executeTx.String,
		ClaimTxID:   claimTx.String,
		LastError:   lastError.String,
		UpdatedAt:   time.UnixMilli(updatedMs),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
