/*
snapshot.go - Serializable snapshots and persistence interfaces

PURPOSE:
  A Snapshot is the portable form of a Grid: plain structs, JSON-friendly,
  detached from the internal indexes. Used for persistence (store/sqlite),
  for the reload merge, and for the HTTP surface.

  The persistence interfaces live here, next to the domain, so the engine
  depends on capabilities and store/sqlite depends on the engine — never
  the other way around.

SEE ALSO:
  - store/sqlite: Production implementation
  - store/memory.go (package gridstore): In-memory implementation for tests
*/
package grid

import (
	"context"
	"time"
)

// =============================================================================
// SNAPSHOT - Portable grid state
// =============================================================================

// Snapshot is the serializable form of a Grid.
type Snapshot struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Snapshot exports the grid's current state.
func (g *Grid) Snapshot() Snapshot {
	return Snapshot{Columns: g.Columns(), Rows: g.Rows()}
}

// FromSnapshot rebuilds a Grid from its portable form.
func FromSnapshot(s Snapshot) *Grid {
	g := New(s.Columns)
	for _, r := range s.Rows {
		g = g.UpsertRow(r.Clone())
	}
	return g
}

// =============================================================================
// PERSISTENCE INTERFACES
// =============================================================================

// SnapshotRecord is one persisted grid state.
type SnapshotRecord struct {
	ID      string
	FundID  string
	TakenAt time.Time
	Reason  string
	Grid    Snapshot
}

// SnapshotStore persists grid snapshots. Append-only: corrections are new
// snapshots, never updates.
type SnapshotStore interface {
	Save(ctx context.Context, rec SnapshotRecord) error
	Latest(ctx context.Context, fundID string) (*SnapshotRecord, error)
	List(ctx context.Context, fundID string, limit int) ([]SnapshotRecord, error)
}

// WorkflowRunRecord is the audit record of one executed batch.
type WorkflowRunRecord struct {
	ID            string
	FundID        string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        string // "running", "completed", "failed"
	FieldsUpdated int
	ServicesRun   int
	Failed        int
	Summary       string
	Error         string
}

// RunStore records workflow runs for audit and UI display.
type RunStore interface {
	SaveRun(ctx context.Context, rec WorkflowRunRecord) error
	ListRuns(ctx context.Context, fundID string, limit int) ([]WorkflowRunRecord, error)
}

// SuggestionEvent is the audit trail of accept/reject decisions.
type SuggestionEvent struct {
	ID           string
	SuggestionID string
	RowID        string
	ColumnID     string
	Action       string // "accepted", "rejected"
	ActorID      string
	CreatedAt    time.Time
}

// SuggestionAudit stores suggestion lifecycle events. Append-only.
type SuggestionAudit interface {
	AppendEvent(ctx context.Context, ev SuggestionEvent) error
	ListEvents(ctx context.Context, suggestionID string) ([]SuggestionEvent, error)
}
