// Package history persists validation runs so past results survive the
// process and can be listed and inspected later.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"devcheck"
)

// Store is a sqlite-backed archive of validation runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS validation_runs (
	run_id TEXT PRIMARY KEY,
	image TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	report_json TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize validation runs schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records one finished run. Saving the same run id again replaces
// the stored report.
func (s *Store) Save(run devcheck.Validation) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal validation run: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO validation_runs (run_id, image, status, started_at, report_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		 image = excluded.image,
		 status = excluded.status,
		 started_at = excluded.started_at,
		 report_json = excluded.report_json`,
		run.RunID,
		run.Image,
		run.Status.String(),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save validation run %q: %w", run.RunID, err)
	}
	return nil
}

// List returns the most recent runs, newest first. A limit of 0 returns
// everything.
func (s *Store) List(limit int) ([]devcheck.Validation, error) {
	query := `SELECT report_json FROM validation_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}
	defer rows.Close()

	out := make([]devcheck.Validation, 0)
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("scan validation run row: %w", err)
		}
		var run devcheck.Validation
		if err := json.Unmarshal([]byte(reportJSON), &run); err != nil {
			return nil, fmt.Errorf("unmarshal validation run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation run rows: %w", err)
	}
	return out, nil
}

// Get loads one run by id.
func (s *Store) Get(runID string) (devcheck.Validation, bool, error) {
	var reportJSON string
	err := s.db.QueryRow(`SELECT report_json FROM validation_runs WHERE run_id = ?`, runID).Scan(&reportJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return devcheck.Validation{}, false, nil
		}
		return devcheck.Validation{}, false, fmt.Errorf("query validation run %q: %w", runID, err)
	}

	var run devcheck.Validation
	if err := json.Unmarshal([]byte(reportJSON), &run); err != nil {
		return devcheck.Validation{}, false, fmt.Errorf("unmarshal validation run %q: %w", runID, err)
	}
	return run, true, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.Exec(
		`DELETE FROM validation_runs WHERE run_id NOT IN (
			SELECT run_id FROM validation_runs ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune validation runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned validation runs: %w", err)
	}
	return int(n), nil
}
