/*
handlers.go - HTTP API handlers for the grid reconciliation engine

PURPOSE:
  Exposes the grid engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Grid:
    GET    /api/grid                    Current snapshot
    POST   /api/grid/cells              Manual cell edit
    POST   /api/grid/rows               Add row
    DELETE /api/grid/rows/{id}          Delete row
    POST   /api/grid/columns            Add column
    DELETE /api/grid/columns/{id}       Delete column
    POST   /api/grid/reload             Reload from server with protected merge

  Suggestions:
    GET    /api/suggestions             Visible suggestions + insights
    POST   /api/suggestions/{id}/accept Accept (optimistic + confirm)
    POST   /api/suggestions/{id}/reject Reject (optimistic + confirm)
    POST   /api/suggestions/accept-batch Sequential batch accept

  Workflows:
    POST   /api/workflows               Run a formula or command batch
    GET    /api/workflows/runs          Run audit trail

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (client errors rejected before any network call)
  3. Route the write through the reconciliation guard
  4. Call domain logic
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflicts (row id already exists; reload dropped mid-edit)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background suggestion refresh
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
	"github.com/warp/matrix-engine/suggest"
	"github.com/warp/matrix-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// PortfolioLoader fetches the server's authoritative grid snapshot.
type PortfolioLoader interface {
	Load(ctx context.Context, fundID string) (grid.Snapshot, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ref         *grid.GridRef
	Guard       *guard.Guard
	Suggestions *suggest.Store
	Interpreter *workflow.Interpreter
	Portfolio   PortfolioLoader

	// Persist confirms manual edits with the backend (optional; nil keeps
	// edits in-memory only).
	Persist workflow.CellPersister

	// Persistence (optional; nil disables the concern)
	Snapshots grid.SnapshotStore
	Runs      grid.RunStore
	Audit     grid.SuggestionAudit

	FundID string
	Log    *slog.Logger
}

// NewHandler creates a handler. Ref, Guard, Suggestions, and Interpreter
// must share the same guard and grid ref instances.
func NewHandler(ref *grid.GridRef, g *guard.Guard, sugg *suggest.Store, in *workflow.Interpreter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Ref:         ref,
		Guard:       g,
		Suggestions: sugg,
		Interpreter: in,
		Log:         log,
	}
}

// =============================================================================
// GRID HANDLERS
// =============================================================================

// GetGrid returns the current snapshot.
func (h *Handler) GetGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toGridDTO(h.Ref.Load()))
}

// EditCell applies a manual cell edit through the guard: optimistic grid
// patch first, then backend confirmation. A persistence failure restores the
// exact prior cell and surfaces one error.
func (h *Handler) EditCell(w http.ResponseWriter, r *http.Request) {
	var req EditCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	idx := grid.BuildRowIndex(h.Ref.Load())
	rowID, ok := idx.Resolve(req.RowID)
	if !ok {
		writeError(w, http.StatusNotFound, "Row not found", nil)
		return
	}
	colID := grid.ColumnID(req.ColumnID)

	// Saved before the optimistic patch so a failed confirmation can put the
	// cell back exactly as it was.
	prevCell, prevExisted := h.Ref.Load().GetCell(rowID, colID)

	err := h.Guard.WithEditLock(func() error {
		if err := h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
			return g.SetCell(rowID, colID, grid.CellPatch{
				Value:    req.Value,
				Source:   grid.SourceManual,
				EditedBy: req.EditedBy,
			})
		}); err != nil {
			return err
		}
		if h.Persist == nil {
			return nil
		}
		if err := h.Persist.PersistEdit(r.Context(), string(rowID), req.ColumnID, req.Value, workflow.EditOptions{
			DataSource: string(grid.SourceManual),
		}); err != nil {
			h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
				return g.RestoreCell(rowID, colID, prevCell, prevExisted), nil
			})
			return fmt.Errorf("persist edit: %w", err)
		}
		return nil
	})
	if err != nil {
		status := http.StatusInternalServerError
		if grid.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Edit rejected", err)
		return
	}

	cell, _ := h.Ref.Load().GetCell(rowID, colID)
	writeJSON(w, http.StatusOK, toCellDTO(cell))
}

// AddRow creates a row.
func (h *Handler) AddRow(w http.ResponseWriter, r *http.Request) {
	var req AddRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := grid.RowID(req.ID)
	if id == "" {
		id = grid.RowID(uuid.NewString())
	} else if _, exists := h.Ref.Load().Row(id); exists {
		// Re-adding an id would wipe the existing row's cells.
		writeError(w, http.StatusConflict, "Row already exists", nil)
		return
	}
	h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.UpsertRow(grid.Row{
			ID:          id,
			CompanyID:   grid.CompanyID(req.CompanyID),
			CompanyName: req.CompanyName,
		}), nil
	})
	row, _ := h.Ref.Load().Row(id)
	writeJSON(w, http.StatusCreated, toRowDTO(row))
}

// DeleteRow removes a row.
func (h *Handler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	id := grid.RowID(chi.URLParam(r, "id"))
	if _, ok := h.Ref.Load().Row(id); !ok {
		writeError(w, http.StatusNotFound, "Row not found", nil)
		return
	}
	h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.DeleteRow(id), nil
	})
	w.WriteHeader(http.StatusNoContent)
}

// AddColumn creates a column.
func (h *Handler) AddColumn(w http.ResponseWriter, r *http.Request) {
	var req AddColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err := h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.AddColumn(grid.Column{
			ID:       grid.ColumnID(req.ID),
			Name:     req.Name,
			Type:     grid.ColumnType(req.Type),
			Editable: req.Editable,
		})
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Column rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteColumn removes a column, cascading to all rows' cells.
func (h *Handler) DeleteColumn(w http.ResponseWriter, r *http.Request) {
	id := grid.ColumnID(chi.URLParam(r, "id"))
	if _, ok := h.Ref.Load().Column(id); !ok {
		writeError(w, http.StatusNotFound, "Column not found", nil)
		return
	}
	h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.DeleteColumn(id), nil
	})
	w.WriteHeader(http.StatusNoContent)
}

// ReloadGrid fetches the server snapshot and merges it through the
// protected-source rule. Skipped entirely when edits are in flight.
func (h *Handler) ReloadGrid(w http.ResponseWriter, r *http.Request) {
	if h.Portfolio == nil {
		writeError(w, http.StatusNotImplemented, "No portfolio source configured", nil)
		return
	}
	var req ReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fundID := req.FundID
	if fundID == "" {
		fundID = h.FundID
	}

	if !h.Guard.AllowRefresh("portfolio_reload") {
		writeError(w, http.StatusConflict, "Edits in flight, reload dropped", grid.ErrEditInFlight)
		return
	}

	// A newer reload supersedes this one.
	ctx, seq := h.Guard.NextGeneration(r.Context(), guard.OpPortfolioReload)

	snap, err := h.Portfolio.Load(ctx, fundID)
	if err != nil {
		if grid.IsSuperseded(grid.CancellationError(ctx, err)) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusBadGateway, "Portfolio load failed", err)
		return
	}
	if h.Guard.CurrentGeneration(guard.OpPortfolioReload) != seq {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return guard.MergeSnapshot(grid.FromSnapshot(snap), g), nil
	})

	if h.Snapshots != nil {
		rec := grid.SnapshotRecord{
			ID:      uuid.NewString(),
			FundID:  fundID,
			TakenAt: time.Now().UTC(),
			Reason:  "reload",
			Grid:    h.Ref.Load().Snapshot(),
		}
		if err := h.Snapshots.Save(r.Context(), rec); err != nil {
			h.Log.Warn("snapshot save failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, toGridDTO(h.Ref.Load()))
}

// =============================================================================
// SUGGESTION HANDLERS
// =============================================================================

// ListSuggestions returns the visible feed, fetching fresh state first.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	fundID := r.URL.Query().Get("fund_id")
	if fundID == "" {
		fundID = h.FundID
	}

	if _, err := h.Suggestions.Fetch(r.Context(), fundID); err != nil && !grid.IsSuperseded(err) {
		writeError(w, http.StatusBadGateway, "Suggestion fetch failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SuggestionFeedDTO{
		Suggestions: toSuggestionDTOs(h.Suggestions.Visible()),
		Insights:    h.Suggestions.Insights(),
	})
}

// AcceptSuggestion accepts one suggestion.
func (h *Handler) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Suggestions.Accept(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, grid.ErrSuggestionNotFound):
			status = http.StatusNotFound
		case grid.IsClientError(err):
			status = http.StatusBadRequest
		}
		writeError(w, status, "Accept failed", err)
		return
	}

	h.auditEvent(r, id, "accepted")
	w.WriteHeader(http.StatusNoContent)
}

// RejectSuggestion rejects one suggestion.
func (h *Handler) RejectSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RejectRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // optional body
	}

	if err := h.Suggestions.Reject(r.Context(), id, req.Reason); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, grid.ErrSuggestionNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "Reject failed", err)
		return
	}

	h.auditEvent(r, id, "rejected")
	w.WriteHeader(http.StatusNoContent)
}

// AcceptBatch accepts suggestions sequentially with per-item rollback.
func (h *Handler) AcceptBatch(w http.ResponseWriter, r *http.Request) {
	var req AcceptBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	accepted, err := h.Suggestions.AcceptBatch(r.Context(), req.IDs)
	result := map[string]any{"accepted": accepted, "requested": len(req.IDs)}
	if err != nil {
		result["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) auditEvent(r *http.Request, suggestionID, action string) {
	if h.Audit == nil {
		return
	}
	ev := grid.SuggestionEvent{
		ID:           uuid.NewString(),
		SuggestionID: suggestionID,
		Action:       action,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Audit.AppendEvent(r.Context(), ev); err != nil {
		h.Log.Warn("suggestion audit failed", "suggestion", suggestionID, "error", err)
	}
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// RunWorkflow executes a formula or command batch and records the run.
func (h *Handler) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	h.saveRun(r, grid.WorkflowRunRecord{
		ID: runID, FundID: h.FundID, StartedAt: startedAt, Status: "running",
	})

	var summary workflow.Summary
	var err error
	if req.Formula != "" {
		selection := make([]grid.RowID, len(req.Selection))
		for i, s := range req.Selection {
			selection[i] = grid.RowID(s)
		}
		summary, err = h.Interpreter.RunFormula(r.Context(), req.Formula,
			grid.RowID(req.TriggerRow), grid.ColumnID(req.TriggerCol), selection)
	} else {
		summary, err = h.Interpreter.Run(r.Context(), req.Commands)
	}

	completedAt := time.Now().UTC()
	rec := grid.WorkflowRunRecord{
		ID:            runID,
		FundID:        h.FundID,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
		Status:        "completed",
		FieldsUpdated: summary.FieldsUpdated,
		ServicesRun:   summary.ServicesRun,
		Failed:        summary.Failed,
		Summary:       summary.Message(),
	}
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
	}
	h.saveRun(r, rec)

	if err != nil {
		status := http.StatusInternalServerError
		if grid.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Workflow failed", err)
		return
	}

	writeJSON(w, http.StatusOK, WorkflowResultDTO{
		RunID:         runID,
		FieldsUpdated: summary.FieldsUpdated,
		ServicesRun:   summary.ServicesRun,
		Failed:        summary.Failed,
		Summary:       summary.Message(),
	})
}

// ListRuns returns the workflow run audit trail.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []WorkflowRunDTO{})
		return
	}
	runs, err := h.Runs.ListRuns(r.Context(), h.FundID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]WorkflowRunDTO, len(runs))
	for i, rec := range runs {
		dtos[i] = toRunDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) saveRun(r *http.Request, rec grid.WorkflowRunRecord) {
	if h.Runs == nil {
		return
	}
	if err := h.Runs.SaveRun(r.Context(), rec); err != nil {
		h.Log.Warn("run record save failed", "run", rec.ID, "error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
