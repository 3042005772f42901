package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/workflow"
)

// =============================================================================
// PARSING
// =============================================================================

func TestIsFormula(t *testing.T) {
	assert.True(t, workflow.IsFormula(`=WORKFLOW("a","all")`))
	assert.True(t, workflow.IsFormula(`  =workflow("a","current")`))
	assert.False(t, workflow.IsFormula(`=SUM(A1:A2)`))
	assert.False(t, workflow.IsFormula(`plain text`))
}

func TestIsFormula_MatchesEveryFormTheParserAccepts(t *testing.T) {
	// Anything ParseFormula accepts must pass the cheap pre-check too, or the
	// formula would be committed as a plain cell value instead of executed.
	for _, s := range []string{
		`= WORKFLOW("rev", "all")`,
		`  =  WORKFLOW("rev", "current")`,
		`=WORKFLOW("rev","all")`,
	} {
		_, err := workflow.ParseFormula(s)
		require.NoError(t, err, "formula %q", s)
		assert.True(t, workflow.IsFormula(s), "pre-check must accept %q", s)
	}
}

func TestParseFormula_Valid(t *testing.T) {
	f, err := workflow.ParseFormula(`=WORKFLOW("rev, growth", "all")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"rev", "growth"}, f.ActionIDs)
	assert.Equal(t, workflow.TargetAll, f.Target)
}

func TestParseFormula_ZeroActionIDs_Rejected(t *testing.T) {
	// Empty and comma-only id lists are validation errors, caught before any
	// network call.
	for _, s := range []string{
		`=WORKFLOW("", "all")`,
		`=WORKFLOW(" , ,", "current")`,
	} {
		_, err := workflow.ParseFormula(s)
		assert.ErrorIs(t, err, grid.ErrEmptyWorkflow, "formula %q", s)
	}
}

func TestParseFormula_UnknownTarget_Rejected(t *testing.T) {
	_, err := workflow.ParseFormula(`=WORKFLOW("rev", "everything")`)
	assert.ErrorIs(t, err, grid.ErrUnknownTarget)
}

func TestParseFormula_Malformed_Rejected(t *testing.T) {
	_, err := workflow.ParseFormula(`=WORKFLOW(rev, all)`)
	assert.Error(t, err)
}

// =============================================================================
// EXPANSION
// =============================================================================

func expandGrid() *grid.Grid {
	g := grid.New([]grid.Column{
		{ID: "nav", Name: "NAV", Type: grid.ColumnCurrency},
	})
	g = g.UpsertRow(grid.Row{ID: "row-1", CompanyName: "Acme"})
	g = g.UpsertRow(grid.Row{ID: "row-2", CompanyName: "Birch"})
	g = g.UpsertRow(grid.Row{ID: "row-3", CompanyName: "Cedar"})
	return g
}

func TestExpand_All_FullCrossProduct(t *testing.T) {
	// GIVEN: 2 action ids targeting "all" over a 3-row grid
	// WHEN: Expanded
	// THEN: 6 run commands, one per (action, row) pair

	f, err := workflow.ParseFormula(`=WORKFLOW("rev,growth", "all")`)
	require.NoError(t, err)

	cmds, err := f.Expand(expandGrid(), "row-1", "nav", nil)
	require.NoError(t, err)
	require.Len(t, cmds, 6)

	seen := make(map[string]int)
	for _, c := range cmds {
		assert.Equal(t, workflow.ActionRun, c.Action)
		assert.Equal(t, grid.ColumnID("nav"), c.ColumnID)
		seen[c.RowID+"/"+c.ActionID]++
	}
	assert.Len(t, seen, 6, "each pair exactly once")
}

func TestExpand_Current_TriggerRowOnly(t *testing.T) {
	f, err := workflow.ParseFormula(`=WORKFLOW("rev,growth", "current")`)
	require.NoError(t, err)

	cmds, err := f.Expand(expandGrid(), "row-2", "nav", nil)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	for _, c := range cmds {
		assert.Equal(t, "row-2", c.RowID)
	}
}

func TestExpand_Selected_UsesSelection(t *testing.T) {
	f, err := workflow.ParseFormula(`=WORKFLOW("rev", "selected")`)
	require.NoError(t, err)

	cmds, err := f.Expand(expandGrid(), "row-1", "nav", []grid.RowID{"row-2", "row-3"})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "row-2", cmds[0].RowID)
	assert.Equal(t, "row-3", cmds[1].RowID)
}
