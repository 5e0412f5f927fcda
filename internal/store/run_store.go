// Package store persists collapse runs in SQLite so that earlier runs can be
// listed, re-verified and explained after the process exits.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"collapse/internal/collapse"
	"collapse/internal/logging"
)

// slowSave is the SaveRun duration above which the store log warns.
const slowSave = 250 * time.Millisecond

// RunRecord is one persisted run.
type RunRecord struct {
	ID        string
	Scenario  string
	Text      string
	Digest    string
	Verified  bool
	CreatedAt time.Time
	Trace     []collapse.TraceRow
	Ledger    []collapse.LedgerEntry
}

// RecordFromRun builds a record for a finished run.
func RecordFromRun(scenario string, run *collapse.Run, verified bool) RunRecord {
	return RunRecord{
		ID:       run.ID,
		Scenario: scenario,
		Text:     run.Text(),
		Digest:   run.Digest(),
		Verified: verified,
		Trace:    run.Trace,
		Ledger:   run.Ledger,
	}
}

// RunStore keeps run history in a single SQLite file.
type RunStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewRunStore opens (or creates) the database at path.
func NewRunStore(path string) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewRunStore")
	defer timer.Stop()

	logging.Store("Opening run store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &RunStore{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Run store schema ready")
	return s, nil
}

func (s *RunStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		text TEXT NOT NULL,
		digest TEXT NOT NULL,
		verified BOOLEAN NOT NULL,
		steps INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS trace_rows (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		candidates TEXT NOT NULL,
		survivors TEXT NOT NULL,
		choice TEXT NOT NULL,
		mode TEXT NOT NULL,
		residual REAL NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS ledger_rows (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		step INTEGER NOT NULL,
		token TEXT NOT NULL,
		reasons TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_step ON ledger_rows(run_id, step);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun writes the record and its trace and ledger in one transaction.
// An empty ID gets a fresh one; the stored ID is returned.
func (s *RunStore) SaveRun(ctx context.Context, rec RunRecord) (string, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SaveRun")
	defer timer.StopWithThreshold(slowSave)

	if rec.ID == "" {
		rec.ID = "run-" + uuid.New().String()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, scenario, text, digest, verified, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Scenario, rec.Text, rec.Digest, rec.Verified, len(rec.Trace), rec.CreatedAt,
	); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store run %s: %v", rec.ID, err)
		return "", err
	}

	for _, table := range []string{"trace_rows", "ledger_rows"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", rec.ID); err != nil {
			return "", err
		}
	}

	for _, row := range rec.Trace {
		cands, _ := json.Marshal(row.Candidates)
		survs, _ := json.Marshal(row.Survivors)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trace_rows (run_id, step, candidates, survivors, choice, mode, residual)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, row.Step, string(cands), string(survs), row.Choice, string(row.Mode), row.Residual,
		); err != nil {
			return "", fmt.Errorf("trace row %d: %w", row.Step, err)
		}
	}

	for i, e := range rec.Ledger {
		reasons, _ := json.Marshal(e.Reasons)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_rows (run_id, seq, step, token, reasons)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, e.Step, e.Token, string(reasons),
		); err != nil {
			return "", fmt.Errorf("ledger row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", rec.ID, err)
	}
	logging.StoreDebug("Stored run %s (%s): %d trace rows, %d ledger rows", rec.ID, rec.Scenario, len(rec.Trace), len(rec.Ledger))
	return rec.ID, nil
}

// ListRuns returns the most recent runs first, without trace or ledger.
// limit <= 0 means no limit.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, scenario, text, digest, verified, created_at FROM runs ORDER BY created_at DESC, id`
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Scenario, &r.Text, &r.Digest, &r.Verified, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRun returns the full record for id, or sql.ErrNoRows.
func (s *RunStore) LoadRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	var r RunRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, text, digest, verified, created_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Scenario, &r.Text, &r.Digest, &r.Verified, &r.CreatedAt)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if r.Trace, err = s.LoadTrace(ctx, id); err != nil {
		return nil, err
	}
	if r.Ledger, err = s.LoadLedger(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadTrace returns the trace rows of a run in step order.
func (s *RunStore) LoadTrace(ctx context.Context, id string) ([]collapse.TraceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, candidates, survivors, choice, mode, residual
		FROM trace_rows WHERE run_id = ? ORDER BY step`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	defer rows.Close()

	var out []collapse.TraceRow
	for rows.Next() {
		var row collapse.TraceRow
		var cands, survs, mode string
		if err := rows.Scan(&row.Step, &cands, &survs, &row.Choice, &mode, &row.Residual); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cands), &row.Candidates); err != nil {
			return nil, fmt.Errorf("trace row %d candidates: %w", row.Step, err)
		}
		if err := json.Unmarshal([]byte(survs), &row.Survivors); err != nil {
			return nil, fmt.Errorf("trace row %d survivors: %w", row.Step, err)
		}
		row.Mode = collapse.Mode(mode)
		out = append(out, row)
	}
	return out, rows.Err()
}

// LoadLedger returns the ledger of a run in append order.
func (s *RunStore) LoadLedger(ctx context.Context, id string) ([]collapse.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, token, reasons FROM ledger_rows WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	defer rows.Close()

	var out []collapse.LedgerEntry
	for rows.Next() {
		var e collapse.LedgerEntry
		var reasons string
		if err := rows.Scan(&e.Step, &e.Token, &reasons); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reasons), &e.Reasons); err != nil {
			return nil, fmt.Errorf("ledger row (%d, %q): %w", e.Step, e.Token, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *RunStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
