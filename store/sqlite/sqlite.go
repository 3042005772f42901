/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements grid.SnapshotStore, grid.RunStore, and grid.SuggestionAudit
  using SQLite. In production the same patterns apply to PostgreSQL — only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  Snapshots, run records, and suggestion events are append-only:
  - No UPDATE statements except workflow run completion
  - No DELETE statements anywhere
  - Corrections are new snapshots

KEY TABLES:
  grid_snapshots:    Persisted grid states (columns + rows as JSON)
  workflow_runs:     Audit trail of executed batches
  suggestion_events: Accept/reject decisions

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/matrix.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - grid/snapshot.go: Interface definitions
  - store/memory.go (package gridstore): In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/matrix-engine/grid"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Persisted grid states (append-only)
	CREATE TABLE IF NOT EXISTS grid_snapshots (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		reason TEXT,
		grid_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_fund_taken
		ON grid_snapshots(fund_id, taken_at DESC);

	-- Workflow run audit trail
	CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL,
		fields_updated INTEGER NOT NULL DEFAULT 0,
		services_run INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		summary TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_fund_started
		ON workflow_runs(fund_id, started_at DESC);

	-- Suggestion lifecycle decisions (append-only)
	CREATE TABLE IF NOT EXISTS suggestion_events (
		id TEXT PRIMARY KEY,
		suggestion_id TEXT NOT NULL,
		row_id TEXT,
		column_id TEXT,
		action TEXT NOT NULL,
		actor_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_suggestion_events_suggestion
		ON suggestion_events(suggestion_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// Save persists a grid snapshot. Append-only.
func (s *Store) Save(ctx context.Context, rec grid.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gridJSON, err := json.Marshal(rec.Grid)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grid_snapshots (id, fund_id, taken_at, reason, grid_json)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.FundID, rec.TakenAt.UTC().Format(time.RFC3339Nano),
		rec.Reason, string(gridJSON))
	return err
}

// Latest returns the most recent snapshot for the fund, or nil.
func (s *Store) Latest(ctx context.Context, fundID string) (*grid.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, fund_id, taken_at, reason, grid_json
		FROM grid_snapshots WHERE fund_id = ?
		ORDER BY taken_at DESC LIMIT 1`, fundID)

	rec, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns up to limit snapshots, newest first.
func (s *Store) List(ctx context.Context, fundID string, limit int) ([]grid.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fund_id, taken_at, reason, grid_json
		FROM grid_snapshots WHERE fund_id = ?
		ORDER BY taken_at DESC LIMIT ?`, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grid.SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*grid.SnapshotRecord, error) {
	var rec grid.SnapshotRecord
	var takenAt, gridJSON string
	if err := sc.Scan(&rec.ID, &rec.FundID, &takenAt, &rec.Reason, &gridJSON); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return nil, fmt.Errorf("parse taken_at: %w", err)
	}
	rec.TakenAt = t
	if err := json.Unmarshal([]byte(gridJSON), &rec.Grid); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

// SaveRun inserts or updates a workflow run record. The only UPDATE in this
// store: a run transitions running -> completed/failed.
func (s *Store) SaveRun(ctx context.Context, rec grid.WorkflowRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(id, fund_id, started_at, completed_at, status,
			 fields_updated, services_run, failed, summary, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			status = excluded.status,
			fields_updated = excluded.fields_updated,
			services_run = excluded.services_run,
			failed = excluded.failed,
			summary = excluded.summary,
			error = excluded.error`,
		rec.ID, rec.FundID, rec.StartedAt.UTC().Format(time.RFC3339Nano),
		completedAt, rec.Status, rec.FieldsUpdated, rec.ServicesRun,
		rec.Failed, rec.Summary, rec.Error)
	return err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, fundID string, limit int) ([]grid.WorkflowRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fund_id, started_at, completed_at, status,
		       fields_updated, services_run, failed, summary, error
		FROM workflow_runs WHERE fund_id = ?
		ORDER BY started_at DESC LIMIT ?`, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grid.WorkflowRunRecord
	for rows.Next() {
		var rec grid.WorkflowRunRecord
		var startedAt string
		var completedAt, summary, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.FundID, &startedAt, &completedAt,
			&rec.Status, &rec.FieldsUpdated, &rec.ServicesRun, &rec.Failed,
			&summary, &errMsg); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		rec.StartedAt = t
		if completedAt.Valid {
			c, err := time.Parse(time.RFC3339Nano, completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse completed_at: %w", err)
			}
			rec.CompletedAt = &c
		}
		rec.Summary = summary.String
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SUGGESTION AUDIT
// =============================================================================

// AppendEvent records one accept/reject decision. Append-only.
func (s *Store) AppendEvent(ctx context.Context, ev grid.SuggestionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_events
			(id, suggestion_id, row_id, column_id, action, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SuggestionID, ev.RowID, ev.ColumnID, ev.Action,
		ev.ActorID, ev.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListEvents returns the decision history for a suggestion, oldest first.
func (s *Store) ListEvents(ctx context.Context, suggestionID string) ([]grid.SuggestionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suggestion_id, row_id, column_id, action, actor_id, created_at
		FROM suggestion_events WHERE suggestion_id = ?
		ORDER BY created_at`, suggestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grid.SuggestionEvent
	for rows.Next() {
		var ev grid.SuggestionEvent
		var createdAt string
		var rowID, columnID, actorID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SuggestionID, &rowID, &columnID,
			&ev.Action, &actorID, &createdAt); err != nil {
			return nil, err
		}
		ev.RowID = rowID.String
		ev.ColumnID = columnID.String
		ev.ActorID = actorID.String
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		ev.CreatedAt = t
		out = append(out, ev)
	}
	return out, rows.Err()
}
