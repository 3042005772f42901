// Package store provides in-memory implementations of the persistence
// interfaces, for testing and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/matrix-engine/grid"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements grid.SnapshotStore, grid.RunStore, and
// grid.SuggestionAudit without persistence.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]grid.SnapshotRecord
	runs      map[string][]grid.WorkflowRunRecord
	events    map[string][]grid.SuggestionEvent
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string][]grid.SnapshotRecord),
		runs:      make(map[string][]grid.WorkflowRunRecord),
		events:    make(map[string][]grid.SuggestionEvent),
	}
}

// Save appends a snapshot record. Append-only.
func (m *Memory) Save(_ context.Context, rec grid.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[rec.FundID] = append(m.snapshots[rec.FundID], rec)
	return nil
}

// Latest returns the newest snapshot for the fund, or nil.
func (m *Memory) Latest(_ context.Context, fundID string) (*grid.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.snapshots[fundID]
	if len(recs) == 0 {
		return nil, nil
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if r.TakenAt.After(latest.TakenAt) {
			latest = r
		}
	}
	return &latest, nil
}

// List returns up to limit snapshots, newest first.
func (m *Memory) List(_ context.Context, fundID string, limit int) ([]grid.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := append([]grid.SnapshotRecord(nil), m.snapshots[fundID]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].TakenAt.After(recs[j].TakenAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// SaveRun inserts or replaces a run record by id.
func (m *Memory) SaveRun(_ context.Context, rec grid.WorkflowRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[rec.FundID]
	for i, r := range runs {
		if r.ID == rec.ID {
			runs[i] = rec
			return nil
		}
	}
	m.runs[rec.FundID] = append(runs, rec)
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (m *Memory) ListRuns(_ context.Context, fundID string, limit int) ([]grid.WorkflowRunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := append([]grid.WorkflowRunRecord(nil), m.runs[fundID]...)
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// AppendEvent records a suggestion decision. Append-only.
func (m *Memory) AppendEvent(_ context.Context, ev grid.SuggestionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.SuggestionID] = append(m.events[ev.SuggestionID], ev)
	return nil
}

// ListEvents returns the decision history for a suggestion, oldest first.
func (m *Memory) ListEvents(_ context.Context, suggestionID string) ([]grid.SuggestionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]grid.SuggestionEvent(nil), m.events[suggestionID]...), nil
}
