package approval

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists approval records in SQLite. Every resolved record is
// appended; Lookup only ever matches remembered records whose scope is
// permanent, so durable matches survive restarts while session-scoped
// memory stays in the in-process cache. Safe for concurrent use from
// multiple runs' action checks.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the approval database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("approval store: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("approval store: open database: %w", err)
	}
	// Serialized access keeps the pure-Go driver simple under the
	// read-mostly load this store sees.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("approval store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		phase_id TEXT,
		signature TEXT NOT NULL,
		context TEXT NOT NULL,
		reason TEXT,
		decision TEXT NOT NULL,
		decided_at DATETIME NOT NULL,
		remember INTEGER NOT NULL DEFAULT 0,
		remember_scope TEXT,
		comment TEXT,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_approvals_signature
		ON approvals(signature, remember, remember_scope)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_approvals_run
		ON approvals(run_id, created_at)`)
	return err
}

// Put appends a resolved record.
func (s *Store) Put(rec Record) error {
	ctxJSON, err := json.Marshal(rec.Request.Context)
	if err != nil {
		return fmt.Errorf("approval store: marshal context: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO approvals
		(id, run_id, phase_id, signature, context, reason, decision,
		 decided_at, remember, remember_scope, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Request.ID,
		rec.Request.RunID,
		rec.Request.PhaseID,
		Signature(rec.Request.Context),
		string(ctxJSON),
		rec.Request.Reason,
		string(rec.Decision),
		rec.DecidedAt.UTC(),
		boolToInt(rec.Remember),
		string(rec.RememberScope),
		rec.Comment,
		rec.Request.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("approval store: insert: %w", err)
	}
	return nil
}

// Lookup returns the most recent permanently remembered record for the
// signature, if any.
func (s *Store) Lookup(sig string) (Record, bool, error) {
	row := s.db.QueryRow(`SELECT id, run_id, phase_id, context, reason,
		decision, decided_at, remember, remember_scope, comment, created_at
		FROM approvals
		WHERE signature = ? AND remember = 1 AND remember_scope = ?
		ORDER BY decided_at DESC LIMIT 1`, sig, string(ScopePermanent))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("approval store: lookup: %w", err)
	}
	return rec, true, nil
}

// History returns every record for a run, oldest first.
func (s *Store) History(runID string) ([]Record, error) {
	rows, err := s.db.Query(`SELECT id, run_id, phase_id, context, reason,
		decision, decided_at, remember, remember_scope, comment, created_at
		FROM approvals WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("approval store: history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("approval store: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var ctxJSON, decision, scope string
	var remember int
	var decidedAt, createdAt time.Time
	err := row.Scan(
		&rec.Request.ID,
		&rec.Request.RunID,
		&rec.Request.PhaseID,
		&ctxJSON,
		&rec.Request.Reason,
		&decision,
		&decidedAt,
		&remember,
		&scope,
		&rec.Comment,
		&createdAt,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(ctxJSON), &rec.Request.Context); err != nil {
		return Record{}, err
	}
	rec.Decision = Decision(decision)
	rec.DecidedAt = decidedAt
	rec.Remember = remember != 0
	rec.RememberScope = RememberScope(scope)
	rec.Request.CreatedAt = createdAt
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
