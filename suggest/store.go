/*
store.go - Suggestion lifecycle with optimistic hiding

PURPOSE:
  Keeps the last server list plus a client-local hide-set. Accepting or
  rejecting a suggestion hides it immediately (optimistic), calls the
  server, and rolls the optimism back on failure. Reconcile prunes hidden
  ids the server no longer knows about, so the hide-set cannot grow without
  bound and a stale poll cannot resurrect an already-resolved item.

ACCEPT PROTOCOL (order matters):
  1. Optimistically patch the grid cell to {value: suggested, source: agent}
  2. Hide the suggestion id and its rowID::columnID::source composite key
  3. Increment the guard's in-flight counter
  4. Call the server accept endpoint (document or service path, by source)
  5a. Failure: restore the exact prior cell, unhide, surface the error
  5b. Success: release the counter AFTER a cooldown (replication lag), then
      schedule a delayed suggestion refresh

FETCH PROTOCOL:
  Last request wins. A new Fetch supersedes the previous one through the
  guard's generation tracking; a superseded fetch is dropped silently.

SEE ALSO:
  - types.go: Entities and the server API capability
  - guard/: Counter and generation semantics
*/
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
)

// Store tracks the server list and the optimistic hide-set for one grid.
type Store struct {
	api   API
	ref   *grid.GridRef
	guard *guard.Guard
	log   *slog.Logger

	// AcceptCooldown holds the in-flight counter after a successful accept.
	AcceptCooldown time.Duration
	// RefreshDelay schedules the post-accept feed refresh.
	RefreshDelay time.Duration

	mu       sync.Mutex
	fundID   string
	list     []Suggestion
	insights []Insight
	hidden   map[string]struct{}
}

// NewStore wires the store to its collaborators. The guard must be the same
// instance the rest of the engine uses.
func NewStore(api API, ref *grid.GridRef, g *guard.Guard, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		api:            api,
		ref:            ref,
		guard:          g,
		log:            log,
		AcceptCooldown: guard.DefaultAcceptCooldown,
		RefreshDelay:   3 * time.Second,
		hidden:         make(map[string]struct{}),
	}
}

// =============================================================================
// FETCH / RECONCILE
// =============================================================================

// Fetch loads the feed for the fund. A newer Fetch supersedes this one; the
// superseded call returns grid.ErrSuperseded, which callers swallow.
func (s *Store) Fetch(ctx context.Context, fundID string) (Feed, error) {
	ctx, seq := s.guard.NextGeneration(ctx, guard.OpSuggestionFetch)

	feed, err := s.api.Fetch(ctx, fundID)
	if err != nil {
		return Feed{}, grid.CancellationError(ctx, err)
	}

	// Commit under the store lock, re-checking the generation there: a newer
	// fetch that started while this one was suspended must win even when it
	// commits first.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guard.CurrentGeneration(guard.OpSuggestionFetch) != seq {
		return Feed{}, grid.ErrSuperseded
	}
	s.fundID = fundID
	s.list = feed.Suggestions
	s.insights = feed.Insights
	s.reconcileLocked(feed.Suggestions)
	return feed, nil
}

// Reconcile prunes hidden entries no longer present on the server: the
// resolution is durable, so the optimistic flag is no longer needed.
func (s *Store) Reconcile(serverList []Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = serverList
	s.reconcileLocked(serverList)
}

func (s *Store) reconcileLocked(serverList []Suggestion) {
	live := make(map[string]struct{}, 2*len(serverList))
	for _, sg := range serverList {
		live[sg.ID] = struct{}{}
		live[sg.CompositeKey()] = struct{}{}
	}
	for key := range s.hidden {
		if _, ok := live[key]; !ok {
			delete(s.hidden, key)
		}
	}
}

// Visible returns the server list minus the hide-set.
func (s *Store) Visible() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Suggestion, 0, len(s.list))
	for _, sg := range s.list {
		if _, hidden := s.hidden[sg.ID]; hidden {
			continue
		}
		if _, hidden := s.hidden[sg.CompositeKey()]; hidden {
			continue
		}
		out = append(out, sg)
	}
	return out
}

// Insights returns the insights from the last fetch.
func (s *Store) Insights() []Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Insight(nil), s.insights...)
}

// MarkHidden hides a suggestion id (and its composite key) locally.
func (s *Store) MarkHidden(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hideLocked(id)
}

func (s *Store) hideLocked(id string) {
	s.hidden[id] = struct{}{}
	if sg, ok := s.findLocked(id); ok {
		s.hidden[sg.CompositeKey()] = struct{}{}
	}
}

func (s *Store) unhideLocked(id string) {
	delete(s.hidden, id)
	if sg, ok := s.findLocked(id); ok {
		delete(s.hidden, sg.CompositeKey())
	}
}

func (s *Store) findLocked(id string) (Suggestion, bool) {
	for _, sg := range s.list {
		if sg.ID == id {
			return sg, true
		}
	}
	return Suggestion{}, false
}

func (s *Store) find(id string) (Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(id)
}

// =============================================================================
// ACCEPT / REJECT
// =============================================================================

// Accept applies the suggested value optimistically and confirms with the
// server, rolling back on failure. See the protocol in the file header.
func (s *Store) Accept(ctx context.Context, id string) error {
	sg, ok := s.find(id)
	if !ok {
		return fmt.Errorf("accept %s: %w", id, grid.ErrSuggestionNotFound)
	}

	idx := grid.BuildRowIndex(s.ref.Load())
	rowID, ok := idx.Resolve(sg.RowID)
	if !ok {
		return &grid.CellError{RowID: grid.RowID(sg.RowID), ColumnID: sg.ColumnID, Err: grid.ErrRowNotFound}
	}

	// Save the exact prior cell for rollback before any optimism.
	prevCell, prevExisted := s.ref.Load().GetCell(rowID, sg.ColumnID)

	err := s.ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.SetCell(rowID, sg.ColumnID, grid.CellPatch{
			Value:            sg.SuggestedValue,
			Source:           grid.SourceAgent,
			SourceDocumentID: sg.SourceDocumentID,
			Metadata: &grid.CellMetadata{
				Explanation: sg.Reasoning,
				Confidence:  &sg.Confidence,
			},
			AgentEdit: true,
		})
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.hideLocked(id)
	s.mu.Unlock()

	s.guard.Acquire()

	if err := s.api.Accept(ctx, id, s.acceptPayload(sg, rowID)); err != nil {
		// Full rollback: exact prior cell, unhide, counter released now.
		s.ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
			return g.RestoreCell(rowID, sg.ColumnID, prevCell, prevExisted), nil
		})
		s.mu.Lock()
		s.unhideLocked(id)
		s.mu.Unlock()
		s.guard.Release()
		return fmt.Errorf("accept %s: %w", id, err)
	}

	s.guard.ReleaseAfter(s.AcceptCooldown)
	s.scheduleRefresh()
	return nil
}

// acceptPayload routes by producer: suggestions with a source document go
// through the document-accept path, everything else through the service
// path. An unset document id with source=service must NOT route document.
func (s *Store) acceptPayload(sg Suggestion, rowID grid.RowID) AcceptPayload {
	p := AcceptPayload{
		Route:         RouteService,
		Value:         sg.SuggestedValue,
		RowID:         string(rowID),
		ColumnID:      string(sg.ColumnID),
		SourceService: sg.SourceService,
	}
	if sg.Source == SourceDocument && sg.SourceDocumentID != "" {
		p.Route = RouteDocument
		p.DocumentID = sg.SourceDocumentID
	}
	return p
}

// Reject hides the suggestion optimistically and confirms with the server,
// unhiding on failure. The grid is never touched.
func (s *Store) Reject(ctx context.Context, id string, reason map[string]any) error {
	if _, ok := s.find(id); !ok {
		return fmt.Errorf("reject %s: %w", id, grid.ErrSuggestionNotFound)
	}

	s.mu.Lock()
	s.hideLocked(id)
	s.mu.Unlock()

	if err := s.api.Reject(ctx, id, reason); err != nil {
		s.mu.Lock()
		s.unhideLocked(id)
		s.mu.Unlock()
		return fmt.Errorf("reject %s: %w", id, err)
	}
	return nil
}

// AcceptBatch applies Accept sequentially over ids, preserving the per-item
// optimistic/rollback contract. A failure does not stop the remainder; the
// returned error aggregates the failures.
func (s *Store) AcceptBatch(ctx context.Context, ids []string) (accepted int, err error) {
	var failures []error
	for _, id := range ids {
		if e := s.Accept(ctx, id); e != nil {
			failures = append(failures, e)
			continue
		}
		accepted++
	}
	if len(failures) > 0 {
		return accepted, fmt.Errorf("batch accept: %d of %d failed: %w",
			len(failures), len(ids), failures[0])
	}
	return accepted, nil
}

// Add forwards a new suggestion to the server (used by the action gateway
// and document extraction collaborators), then refreshes the feed.
func (s *Store) Add(ctx context.Context, fundID string, sg Suggestion) error {
	if err := s.api.Add(ctx, fundID, sg); err != nil {
		return err
	}
	s.scheduleRefresh()
	return nil
}

// scheduleRefresh re-fetches the feed after RefreshDelay, skipping when
// edits are still in flight (the next natural trigger will catch up).
func (s *Store) scheduleRefresh() {
	s.mu.Lock()
	fundID := s.fundID
	delay := s.RefreshDelay
	s.mu.Unlock()
	if fundID == "" {
		return
	}
	time.AfterFunc(delay, func() {
		if !s.guard.AllowRefresh("suggestion_refresh") {
			return
		}
		if _, err := s.Fetch(context.Background(), fundID); err != nil && !grid.IsSuperseded(err) {
			s.log.Warn("suggestion refresh failed", "error", err)
		}
	})
}
