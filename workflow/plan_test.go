package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/matrix-engine/workflow"
)

func intp(n int) *int { return &n }

func TestEffectiveGroup_Defaulting(t *testing.T) {
	// Ungrouped edits land in group 0, ungrouped runs in group 1, so a bare
	// "edit then run" batch orders itself.
	assert.Equal(t, 0, workflow.GridCommand{Action: workflow.ActionEdit}.EffectiveGroup())
	assert.Equal(t, 0, workflow.GridCommand{Action: workflow.ActionAddRow}.EffectiveGroup())
	assert.Equal(t, 1, workflow.GridCommand{Action: workflow.ActionRun}.EffectiveGroup())
	assert.Equal(t, 5, workflow.GridCommand{Action: workflow.ActionRun, Group: intp(5)}.EffectiveGroup())
}

func TestBuildPlan_GroupsAscendingPhasesFixed(t *testing.T) {
	// GIVEN: A shuffled batch across groups 0, 1, and 3
	// WHEN: Compiled
	// THEN: Groups come out ascending with structural/edit/run phases split

	cmds := []workflow.GridCommand{
		{Action: workflow.ActionRun, RowID: "r1", ActionID: "late", Group: intp(3)},
		{Action: workflow.ActionEdit, RowID: "r1", ColumnID: "arr", Value: 1},
		{Action: workflow.ActionRun, RowID: "r1", ActionID: "mid"},
		{Action: workflow.ActionAddRow, CompanyName: "Cedar"},
		{Action: workflow.ActionAddDocument, RowID: "r1", DocumentID: "doc-1"},
	}

	plan := workflow.BuildPlan(cmds)
	require.Len(t, plan.Groups, 3)
	assert.Equal(t, 5, plan.Size())

	g0 := plan.Groups[0]
	assert.Equal(t, 0, g0.Number)
	assert.Len(t, g0.Structural, 1)
	assert.Len(t, g0.Edits, 2, "edit and add_document share the parallel phase")
	assert.Empty(t, g0.Runs)
	assert.True(t, g0.HasEdits())

	g1 := plan.Groups[1]
	assert.Equal(t, 1, g1.Number)
	require.Len(t, g1.Runs, 1)
	assert.Equal(t, "mid", g1.Runs[0].ActionID)
	assert.False(t, g1.HasEdits())

	g3 := plan.Groups[2]
	assert.Equal(t, 3, g3.Number)
	require.Len(t, g3.Runs, 1)
	assert.Equal(t, "late", g3.Runs[0].ActionID)
}

func TestBuildPlan_Empty(t *testing.T) {
	plan := workflow.BuildPlan(nil)
	assert.Empty(t, plan.Groups)
	assert.Equal(t, 0, plan.Size())
}
