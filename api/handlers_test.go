package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/matrix-engine/action"
	"github.com/warp/matrix-engine/api"
	"github.com/warp/matrix-engine/grid"
	gridstore "github.com/warp/matrix-engine/grid/store"
	"github.com/warp/matrix-engine/guard"
	"github.com/warp/matrix-engine/suggest"
	"github.com/warp/matrix-engine/workflow"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type stubSuggestAPI struct {
	feed      suggest.Feed
	acceptErr error
}

func (s *stubSuggestAPI) Fetch(ctx context.Context, fundID string) (suggest.Feed, error) {
	return s.feed, nil
}

func (s *stubSuggestAPI) Accept(ctx context.Context, id string, p suggest.AcceptPayload) error {
	return s.acceptErr
}

func (s *stubSuggestAPI) Reject(ctx context.Context, id string, reason map[string]any) error {
	return nil
}

func (s *stubSuggestAPI) Add(ctx context.Context, fundID string, sg suggest.Suggestion) error {
	return nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, req action.Request) (action.Response, error) {
	return action.Response{Success: true, Value: 42.0}, nil
}

type persistCall struct {
	rowID    string
	columnID string
	value    any
	opts     workflow.EditOptions
}

// stubPersister records backend edit confirmations and can refuse them.
type stubPersister struct {
	calls []persistCall
	err   error
}

func (p *stubPersister) PersistEdit(ctx context.Context, rowID, columnID string, value any, opts workflow.EditOptions) error {
	p.calls = append(p.calls, persistCall{rowID: rowID, columnID: columnID, value: value, opts: opts})
	return p.err
}

type stubPortfolio struct {
	snap grid.Snapshot
}

func (s *stubPortfolio) Load(ctx context.Context, fundID string) (grid.Snapshot, error) {
	return s.snap, nil
}

type testEnv struct {
	handler *api.Handler
	router  http.Handler
	ref     *grid.GridRef
	guard   *guard.Guard
	suggest *stubSuggestAPI
	store   *gridstore.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	g := grid.New([]grid.Column{
		{ID: "company_name", Name: "Company", Type: grid.ColumnText, Editable: true},
		{ID: "arr", Name: "ARR", Type: grid.ColumnCurrency, Editable: true},
		{ID: "nav", Name: "NAV", Type: grid.ColumnCurrency},
	})
	g = g.UpsertRow(grid.Row{ID: "row-1", CompanyID: "co-1", CompanyName: "Acme Capital"})
	ref := grid.NewRef(g)

	rg := guard.New(nil)
	t.Cleanup(rg.Dispose)

	sapi := &stubSuggestAPI{}
	sugg := suggest.NewStore(sapi, ref, rg, nil)
	sugg.AcceptCooldown = 0
	sugg.RefreshDelay = time.Hour

	interp := &workflow.Interpreter{
		Gateway: action.NewGateway(stubExecutor{}),
		Ref:     ref,
		Guard:   rg,
		FundID:  "fund-1",
	}

	mem := gridstore.NewMemory()
	h := api.NewHandler(ref, rg, sugg, interp, nil)
	h.FundID = "fund-1"
	h.Runs = mem
	h.Audit = mem
	h.Snapshots = mem

	return &testEnv{
		handler: h,
		router:  api.NewRouter(h),
		ref:     ref,
		guard:   rg,
		suggest: sapi,
		store:   mem,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// GRID ENDPOINTS
// =============================================================================

func TestGetGrid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/grid/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decode[api.GridDTO](t, rec)
	assert.Len(t, dto.Columns, 3)
	require.Len(t, dto.Rows, 1)
	assert.Equal(t, "row-1", dto.Rows[0].ID)
}

func TestEditCell_ManualSourceAndCoercion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID:    "Acme Capital", // loose key
		ColumnID: "arr",
		Value:    "$2,500,000",
		EditedBy: "analyst-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cell, ok := env.ref.Load().GetCell("row-1", "arr")
	require.True(t, ok)
	assert.Equal(t, 2500000.0, cell.Value)
	assert.Equal(t, grid.SourceManual, cell.Source)
	assert.Equal(t, "analyst-1", cell.EditedBy)
}

func TestEditCell_ConfirmedWithBackend(t *testing.T) {
	// GIVEN: A cell persister wired to the handler
	// WHEN: A manual edit succeeds
	// THEN: The backend saw exactly one confirmation carrying the manual source

	env := newTestEnv(t)
	p := &stubPersister{}
	env.handler.Persist = p

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "row-1", ColumnID: "arr", Value: 1500.0, EditedBy: "analyst-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, p.calls, 1)
	assert.Equal(t, "row-1", p.calls[0].rowID)
	assert.Equal(t, "arr", p.calls[0].columnID)
	assert.Equal(t, 1500.0, p.calls[0].value)
	assert.Equal(t, string(grid.SourceManual), p.calls[0].opts.DataSource)
}

func TestEditCell_PersistFailure_RestoresPriorCell(t *testing.T) {
	// GIVEN: A cell with committed prior state and a backend that refuses
	// WHEN: The manual edit fails to persist
	// THEN: The exact prior cell comes back and one error surfaces

	env := newTestEnv(t)
	require.NoError(t, env.ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.SetCell("row-1", "arr", grid.CellPatch{
			Value: 100000.0, Source: grid.SourceManual, EditedBy: "analyst-1",
		})
	}))
	prev, _ := env.ref.Load().GetCell("row-1", "arr")

	env.handler.Persist = &stubPersister{err: errors.New("backend down")}

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "row-1", ColumnID: "arr", Value: 500.0,
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	cell, ok := env.ref.Load().GetCell("row-1", "arr")
	require.True(t, ok)
	assert.Equal(t, prev, cell, "failed persistence must restore the prior cell exactly")
}

func TestEditCell_PersistFailure_PreviouslyEmptyCellRemoved(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Persist = &stubPersister{err: errors.New("backend down")}

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "row-1", ColumnID: "arr", Value: 500.0,
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, ok := env.ref.Load().GetCell("row-1", "arr")
	assert.False(t, ok, "a cell that did not exist before must not survive the rollback")
}

func TestEditCell_ReadOnlyColumn_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "row-1", ColumnID: "nav", Value: 1.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditCell_UnknownRow_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "nowhere", ColumnID: "arr", Value: 1.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddAndDeleteRow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/grid/rows", api.AddRowRequest{
		ID: "row-new", CompanyName: "Birch Holdings",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	_, ok := env.ref.Load().Row("row-new")
	assert.True(t, ok)

	rec = env.do(t, http.MethodDelete, "/api/grid/rows/row-new", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = env.ref.Load().Row("row-new")
	assert.False(t, ok)
}

func TestAddRow_ExistingID_Conflict(t *testing.T) {
	// Re-posting an existing row id must not silently wipe its cells.
	env := newTestEnv(t)
	require.NoError(t, env.ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.SetCell("row-1", "arr", grid.CellPatch{
			Value: 123.0, Source: grid.SourceManual,
		})
	}))

	rec := env.do(t, http.MethodPost, "/api/grid/rows", api.AddRowRequest{
		ID: "row-1", CompanyName: "Imposter Capital",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	cell, ok := env.ref.Load().GetCell("row-1", "arr")
	require.True(t, ok)
	assert.Equal(t, 123.0, cell.Value, "existing row's cells are untouched")
	row, _ := env.ref.Load().Row("row-1")
	assert.Equal(t, "Acme Capital", row.CompanyName)
}

func TestReloadGrid_PreservesProtectedCells(t *testing.T) {
	// GIVEN: A manual edit, then a server snapshot that disagrees
	// WHEN: The reload endpoint merges
	// THEN: The manual cell survives; unprotected cells take server values

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/grid/cells", api.EditCellRequest{
		RowID: "row-1", ColumnID: "arr", Value: 999.0,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	server := grid.New(env.ref.Load().Columns())
	server = server.UpsertRow(grid.Row{
		ID: "row-1", CompanyID: "co-1", CompanyName: "Acme Capital",
		Cells: map[grid.ColumnID]grid.Cell{
			"arr": {Value: 100.0, Source: grid.SourceAPI},
			"nav": {Value: 55.0, Source: grid.SourceAPI},
		},
	})
	env.handler.Portfolio = &stubPortfolio{snap: server.Snapshot()}

	rec = env.do(t, http.MethodPost, "/api/grid/reload", api.ReloadRequest{FundID: "fund-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	cell, _ := env.ref.Load().GetCell("row-1", "arr")
	assert.Equal(t, 999.0, cell.Value, "manual edit survives the reload")
	cell, _ = env.ref.Load().GetCell("row-1", "nav")
	assert.Equal(t, 55.0, cell.Value, "server value lands where nothing is protected")

	snaps, err := env.store.List(context.Background(), "fund-1", 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "merged state is snapshotted")
}

func TestReloadGrid_DroppedWhileEditsInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Portfolio = &stubPortfolio{}

	env.guard.Acquire()
	defer env.guard.Release()

	rec := env.do(t, http.MethodPost, "/api/grid/reload", api.ReloadRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code, "reloads drop, never queue")
}

// =============================================================================
// SUGGESTION ENDPOINTS
// =============================================================================

func TestListSuggestions(t *testing.T) {
	env := newTestEnv(t)
	env.suggest.feed = suggest.Feed{
		Suggestions: []suggest.Suggestion{{
			ID: "sg-1", RowID: "row-1", ColumnID: "arr",
			SuggestedValue: 5.0, Confidence: 0.7, Source: suggest.SourceService,
		}},
		Insights: []suggest.Insight{{ID: "in-1", Title: "ARR trending up"}},
	}

	rec := env.do(t, http.MethodGet, "/api/suggestions/?fund_id=fund-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	feed := decode[api.SuggestionFeedDTO](t, rec)
	require.Len(t, feed.Suggestions, 1)
	assert.Equal(t, "sg-1", feed.Suggestions[0].ID)
	assert.Len(t, feed.Insights, 1)
}

func TestAcceptSuggestion_AuditTrail(t *testing.T) {
	env := newTestEnv(t)
	env.suggest.feed = suggest.Feed{
		Suggestions: []suggest.Suggestion{{
			ID: "sg-1", RowID: "row-1", ColumnID: "arr",
			SuggestedValue: 5.0, Confidence: 0.7, Source: suggest.SourceService,
		}},
	}
	// Prime the store with the feed.
	rec := env.do(t, http.MethodGet, "/api/suggestions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/suggestions/sg-1/accept", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cell, ok := env.ref.Load().GetCell("row-1", "arr")
	require.True(t, ok)
	assert.Equal(t, grid.SourceAgent, cell.Source)

	events, err := env.store.ListEvents(context.Background(), "sg-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "accepted", events[0].Action)
}

func TestAcceptSuggestion_Unknown_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/suggestions/sg-ghost/accept", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// WORKFLOW ENDPOINTS
// =============================================================================

func TestRunWorkflow_CommandBatch_RecordsRun(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/workflows/", api.WorkflowRequest{
		Commands: []workflow.GridCommand{
			{Action: workflow.ActionEdit, RowID: "row-1", ColumnID: "arr", Value: 3.0},
			{Action: workflow.ActionRun, RowID: "row-1", ColumnID: "nav", ActionID: "compute_nav"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[api.WorkflowResultDTO](t, rec)
	assert.Equal(t, 1, result.FieldsUpdated)
	assert.Equal(t, 1, result.ServicesRun)
	assert.Equal(t, "1 fields updated, 1 services run", result.Summary)

	runs, err := env.store.ListRuns(context.Background(), "fund-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestRunWorkflow_InvalidFormula_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/workflows/", api.WorkflowRequest{
		Formula:    `=WORKFLOW("", "all")`,
		TriggerRow: "row-1",
		TriggerCol: "nav",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	runs, err := env.store.ListRuns(context.Background(), "fund-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/workflows/", api.WorkflowRequest{
		Commands: []workflow.GridCommand{
			{Action: workflow.ActionEdit, RowID: "row-1", ColumnID: "arr", Value: 1.0},
		},
	})

	rec := env.do(t, http.MethodGet, "/api/workflows/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	runs := decode[[]api.WorkflowRunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
}
