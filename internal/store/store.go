// Package store persists scan runs and their findings to SQLite so
// consecutive runs can be diffed.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cachescope/internal/findings"
	"cachescope/internal/logging"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	command       TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL,
	file_count    INTEGER NOT NULL,
	finding_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS findings (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	code     TEXT NOT NULL,
	severity TEXT NOT NULL,
	app      TEXT NOT NULL DEFAULT '',
	file     TEXT NOT NULL DEFAULT '',
	line     INTEGER NOT NULL DEFAULT 0,
	ref      TEXT NOT NULL DEFAULT '',
	message  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
`

// Run is one recorded scan.
type Run struct {
	ID           string
	Command      string
	StartedAt    time.Time
	FinishedAt   time.Time
	FileCount    int
	FindingCount int
}

// Store wraps the scan history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the history database at path.
// An unusable schema is discarded and rebuilt: history is a convenience,
// never worth failing a scan over.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := openAndInit(path)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("store unusable (%v), rebuilding %s", err, path)
		os.Remove(path)
		db, err = openAndInit(path)
		if err != nil {
			return nil, fmt.Errorf("open store %s: %w", path, err)
		}
	}

	return &Store{db: db, path: path}, nil
}

func openAndInit(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun creates a Run record for the given command.
func NewRun(command string, started time.Time, fileCount int, fs []findings.Finding) Run {
	return Run{
		ID:           uuid.NewString(),
		Command:      command,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		FileCount:    fileCount,
		FindingCount: len(fs),
	}
}

// SaveRun persists a run and its findings in one transaction.
func (s *Store) SaveRun(run Run, fs []findings.Finding) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveRun")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, command, started_at, finished_at, file_count, finding_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.FileCount, run.FindingCount,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO findings (run_id, code, severity, app, file, line, ref, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range fs {
		if _, err := stmt.Exec(run.ID, f.Code, string(f.Severity), f.App, f.File, f.Line, f.Ref, f.Message); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.StoreDebug("saved run %s: %d findings", run.ID, len(fs))
	return nil
}

// LastRuns returns the most recent n runs, newest first. Ties on started_at
// fall back to insertion order so same-instant runs diff the right way.
func (s *Store) LastRuns(n int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, command, started_at, finished_at, file_count, finding_count
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Command, &started, &finished, &r.FileCount, &r.FindingCount); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Findings returns the findings recorded for a run, in stored order.
func (s *Store) Findings(runID string) ([]findings.Finding, error) {
	rows, err := s.db.Query(
		`SELECT code, severity, app, file, line, ref, message
		 FROM findings WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fs []findings.Finding
	for rows.Next() {
		var f findings.Finding
		var sev string
		if err := rows.Scan(&f.Code, &sev, &f.App, &f.File, &f.Line, &f.Ref, &f.Message); err != nil {
			return nil, err
		}
		f.Severity = findings.Severity(sev)
		fs = append(fs, f)
	}
	return fs, rows.Err()
}

// Diff is the change in findings between two runs.
type Diff struct {
	Base     Run
	Head     Run
	New      []findings.Finding
	Resolved []findings.Finding
}

// DiffLastRuns compares the two most recent runs. Findings are matched by
// (code, file, ref) so line drift does not show up as churn.
// Returns an error when fewer than two runs exist.
func (s *Store) DiffLastRuns() (*Diff, error) {
	runs, err := s.LastRuns(2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("need at least two saved runs to diff, have %d", len(runs))
	}

	head, base := runs[0], runs[1]
	headFs, err := s.Findings(head.ID)
	if err != nil {
		return nil, err
	}
	baseFs, err := s.Findings(base.ID)
	if err != nil {
		return nil, err
	}

	baseKeys := make(map[string]bool, len(baseFs))
	for _, f := range baseFs {
		baseKeys[f.Key()] = true
	}
	headKeys := make(map[string]bool, len(headFs))
	for _, f := range headFs {
		headKeys[f.Key()] = true
	}

	d := &Diff{Base: base, Head: head}
	for _, f := range headFs {
		if !baseKeys[f.Key()] {
			d.New = append(d.New, f)
		}
	}
	for _, f := range baseFs {
		if !headKeys[f.Key()] {
			d.Resolved = append(d.Resolved, f)
		}
	}
	findings.Sort(d.New)
	findings.Sort(d.Resolved)
	return d, nil
}
