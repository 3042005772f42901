/*
run.go - Plan execution with barriers, bounded parallelism, and chaining

PURPOSE:
  Executes a Plan against the grid and the action gateway under the
  reconciliation guard. Guarantees, in order of importance:

  1. Strict barriers: group N's effects are fully committed (grid updated,
     suggestion feed refreshed when N contained edits) before N+1 starts
  2. Structural commands serialize; edits run in parallel batches of at
     most MaxParallelEdits; runs execute after the group's edits settle
  3. Chaining: each run's inputs carry a _workflow_context object with
     every prior group's result for the same row, so action N+1 reads
     action N's output without a second round trip
  4. Partial failures never abort the batch; they are counted into the one
     aggregate summary ("{n} fields updated, {m} services run")
  5. The guard's in-flight counter is held for the whole run, so no
     background refresh interleaves with a half-applied plan

SEE ALSO:
  - plan.go: Phase ordering
  - action/apply.go: Result application
  - guard/: Counter semantics
*/
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/matrix-engine/action"
	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
	"github.com/warp/matrix-engine/notify"
)

// workflowContextKey is the inputs key carrying chained prior results.
const workflowContextKey = "_workflow_context"

// =============================================================================
// COLLABORATOR CAPABILITIES
// =============================================================================

// CellPersister persists a committed cell edit to the backend. Optional; a
// nil persister keeps edits in-memory only.
type CellPersister interface {
	PersistEdit(ctx context.Context, rowID, columnID string, value any, opts EditOptions) error
}

// EditOptions carries provenance for a persisted edit.
type EditOptions struct {
	DataSource       string
	Metadata         map[string]any
	SourceDocumentID string
}

// SuggestionRefresher re-fetches the suggestion feed between groups.
// Optional; typically an adapter over suggest.Store.Fetch.
type SuggestionRefresher interface {
	Refresh(ctx context.Context) error
}

// DocumentAttacher handles add_document commands. Optional.
type DocumentAttacher interface {
	AttachDocument(ctx context.Context, rowID, documentID string) error
}

// =============================================================================
// INTERPRETER
// =============================================================================

// Interpreter runs workflow plans. All collaborators are passed by
// reference; Guard and Ref must be the instances shared with the rest of
// the engine.
type Interpreter struct {
	Gateway     *action.Gateway
	Ref         *grid.GridRef
	Guard       *guard.Guard
	Persist     CellPersister
	Suggestions SuggestionRefresher
	Documents   DocumentAttacher
	Notify      notify.Port
	Log         *slog.Logger

	// FundID and Mode ride along on every action request.
	FundID string
	Mode   string
}

// Summary is the single aggregate result of a batch.
type Summary struct {
	FieldsUpdated int
	ServicesRun   int
	Failed        int
	RowsAdded     int
	RowsDeleted   int
}

// Message renders the user-facing aggregate line.
func (s Summary) Message() string {
	msg := fmt.Sprintf("%d fields updated, %d services run", s.FieldsUpdated, s.ServicesRun)
	if s.Failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	return msg
}

// RunFormula parses, expands, and runs a =WORKFLOW formula from a cell.
func (in *Interpreter) RunFormula(ctx context.Context, formula string, triggerRow grid.RowID, triggerCol grid.ColumnID, selection []grid.RowID) (Summary, error) {
	f, err := ParseFormula(formula)
	if err != nil {
		return Summary{}, err
	}
	cmds, err := f.Expand(in.Ref.Load(), triggerRow, triggerCol, selection)
	if err != nil {
		return Summary{}, err
	}
	return in.Run(ctx, cmds)
}

// Run executes a command batch and emits the aggregate summary through the
// notification port. Only a validation or context error aborts the run;
// per-command failures are counted and reported.
func (in *Interpreter) Run(ctx context.Context, commands []GridCommand) (Summary, error) {
	plan := BuildPlan(commands)
	if plan.Size() == 0 {
		return Summary{}, nil
	}
	log := in.Log
	if log == nil {
		log = slog.Default()
	}

	// Hold the in-flight counter for the whole plan so background refresh
	// drops itself instead of interleaving with a half-applied batch.
	in.Guard.Acquire()
	defer in.Guard.Release()

	run := &planRun{
		in:      in,
		log:     log,
		results: make(map[string]map[string]any),
	}

	for _, group := range plan.Groups {
		if err := ctx.Err(); err != nil {
			return run.summary, grid.CancellationError(ctx, err)
		}

		run.execStructural(ctx, group.Structural)
		run.execEdits(ctx, group.Edits)

		// Chained runs must observe freshly committed state, not a stale
		// feed, so the refresh happens before any run in or after this
		// group executes.
		if group.HasEdits() && in.Suggestions != nil {
			if err := in.Suggestions.Refresh(ctx); err != nil && !grid.IsSuperseded(err) {
				log.Warn("workflow: suggestion refresh failed", "group", group.Number, "error", err)
			}
		}

		run.execRuns(ctx, group.Runs)
	}

	if in.Notify != nil {
		level := notify.LevelInfo
		if run.summary.Failed > 0 {
			level = notify.LevelWarn
		}
		in.Notify.Notify(level, run.summary.Message())
	}
	return run.summary, nil
}

// =============================================================================
// PLAN RUN STATE
// =============================================================================

type planRun struct {
	in  *Interpreter
	log *slog.Logger

	mu      sync.Mutex
	summary Summary
	// results holds per-row chained outputs: rowID -> actionID -> result.
	results map[string]map[string]any
}

func (r *planRun) fail(cmd GridCommand, err error) {
	r.mu.Lock()
	r.summary.Failed++
	r.mu.Unlock()
	r.log.Warn("workflow: command failed",
		"action", string(cmd.Action), "row", cmd.RowID,
		"column", string(cmd.ColumnID), "action_id", cmd.ActionID, "error", err)
}

// execStructural runs add_row/delete serially: they mutate row identity and
// everything later in the group resolves rows against the result.
func (r *planRun) execStructural(ctx context.Context, cmds []GridCommand) {
	for _, cmd := range cmds {
		switch cmd.Action {
		case ActionAddRow:
			rowID := grid.RowID(cmd.RowID)
			if rowID == "" {
				rowID = grid.RowID(uuid.NewString())
			}
			r.in.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
				return g.UpsertRow(grid.Row{
					ID:          rowID,
					CompanyName: cmd.CompanyName,
				}), nil
			})
			r.mu.Lock()
			r.summary.RowsAdded++
			r.mu.Unlock()

		case ActionDelete:
			idx := grid.BuildRowIndex(r.in.Ref.Load())
			rowID, ok := idx.Resolve(cmd.RowID)
			if !ok {
				r.fail(cmd, grid.ErrRowNotFound)
				continue
			}
			r.in.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
				return g.DeleteRow(rowID), nil
			})
			r.mu.Lock()
			r.summary.RowsDeleted++
			r.mu.Unlock()
		}
	}
}

// execEdits runs edit/add_document commands in parallel, bounded at
// MaxParallelEdits. Failures are counted, never propagated.
func (r *planRun) execEdits(ctx context.Context, cmds []GridCommand) {
	if len(cmds) == 0 {
		return
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxParallelEdits)

	for _, cmd := range cmds {
		cmd := cmd
		eg.Go(func() error {
			switch cmd.Action {
			case ActionAddDocument:
				r.execAddDocument(ctx, cmd)
			default:
				r.execEdit(ctx, cmd)
			}
			return nil // failures counted, not propagated
		})
	}
	eg.Wait()
}

func (r *planRun) execEdit(ctx context.Context, cmd GridCommand) {
	idx := grid.BuildRowIndex(r.in.Ref.Load())
	rowID, ok := idx.Resolve(cmd.RowID)
	if !ok {
		r.fail(cmd, grid.ErrRowNotFound)
		return
	}

	md := &grid.CellMetadata{
		Explanation: cmd.Reasoning,
		Method:      cmd.SourceService,
		Confidence:  cmd.Confidence,
		RawOutput:   cmd.Metadata,
		WorkflowRun: true,
	}
	err := r.in.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return g.SetCell(rowID, cmd.ColumnID, grid.CellPatch{
			Value:     cmd.Value,
			Source:    grid.SourceAgent,
			Metadata:  md,
			AgentEdit: true,
		})
	})
	if err != nil {
		r.fail(cmd, err)
		return
	}

	if r.in.Persist != nil {
		err := r.in.Persist.PersistEdit(ctx, string(rowID), string(cmd.ColumnID), cmd.Value, EditOptions{
			DataSource: string(grid.SourceAgent),
			Metadata:   cmd.Metadata,
		})
		if err != nil {
			r.fail(cmd, err)
			return
		}
	}

	r.mu.Lock()
	r.summary.FieldsUpdated++
	r.mu.Unlock()
}

func (r *planRun) execAddDocument(ctx context.Context, cmd GridCommand) {
	if r.in.Documents == nil {
		r.fail(cmd, fmt.Errorf("no document attacher configured"))
		return
	}
	idx := grid.BuildRowIndex(r.in.Ref.Load())
	rowID, ok := idx.Resolve(cmd.RowID)
	if !ok {
		r.fail(cmd, grid.ErrRowNotFound)
		return
	}
	if err := r.in.Documents.AttachDocument(ctx, string(rowID), cmd.DocumentID); err != nil {
		r.fail(cmd, err)
		return
	}
	r.mu.Lock()
	r.summary.FieldsUpdated++
	r.mu.Unlock()
}

// execRuns executes run commands in parallel (bounded), merging each
// command's reasoning/metadata with the chained _workflow_context for its
// row. Per-row success/failure is independent.
func (r *planRun) execRuns(ctx context.Context, cmds []GridCommand) {
	if len(cmds) == 0 {
		return
	}

	// The chained context is frozen at the group barrier: runs in the same
	// group see every PRIOR group's results, never each other's.
	frozen := r.freezeResults()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(MaxParallelEdits)

	for _, cmd := range cmds {
		cmd := cmd
		eg.Go(func() error {
			r.execRun(ctx, cmd, frozen)
			return nil
		})
	}
	eg.Wait()
}

func (r *planRun) execRun(ctx context.Context, cmd GridCommand, frozen map[string]map[string]any) {
	idx := grid.BuildRowIndex(r.in.Ref.Load())
	rowID, ok := idx.Resolve(cmd.RowID)
	if !ok {
		r.fail(cmd, grid.ErrRowNotFound)
		return
	}

	inputs := make(map[string]any, len(cmd.Metadata)+2)
	for k, v := range cmd.Metadata {
		inputs[k] = v
	}
	if cmd.Reasoning != "" {
		inputs["reasoning"] = cmd.Reasoning
	}
	if chained := frozen[string(rowID)]; len(chained) > 0 {
		inputs[workflowContextKey] = chained
	}

	var companyID string
	if row, ok := r.in.Ref.Load().Row(rowID); ok {
		companyID = string(row.CompanyID)
	}

	resp, err := r.in.Gateway.Execute(ctx, action.Request{
		ActionID:  cmd.ActionID,
		RowID:     string(rowID),
		ColumnID:  string(cmd.ColumnID),
		Inputs:    inputs,
		Mode:      r.in.Mode,
		FundID:    r.in.FundID,
		CompanyID: companyID,
	})
	if err != nil {
		r.fail(cmd, err)
		return
	}

	err = r.in.Ref.Update(func(g *grid.Grid) (*grid.Grid, error) {
		return action.ApplyResult(g, rowID, cmd.ColumnID, resp)
	})
	if err != nil {
		r.fail(cmd, err)
		return
	}

	r.record(string(rowID), cmd.ActionID, map[string]any{
		"value":    resp.Value,
		"metadata": resp.Metadata,
	})
	r.mu.Lock()
	r.summary.ServicesRun++
	r.mu.Unlock()
}

// freezeResults deep-copies the chained results at a group barrier.
func (r *planRun) freezeResults() map[string]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]any, len(r.results))
	for rowID, byAction := range r.results {
		cp := make(map[string]any, len(byAction))
		for k, v := range byAction {
			cp[k] = v
		}
		out[rowID] = cp
	}
	return out
}

func (r *planRun) record(rowID, actionID string, result map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results[rowID] == nil {
		r.results[rowID] = make(map[string]any)
	}
	r.results[rowID][actionID] = result
}
