package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/guard"
)

func mergeColumns() []grid.Column {
	return []grid.Column{
		{ID: "company_name", Name: "Company", Type: grid.ColumnText, Editable: true},
		{ID: "arr", Name: "ARR", Type: grid.ColumnCurrency, Editable: true},
		{ID: "nav", Name: "NAV", Type: grid.ColumnCurrency},
	}
}

func rowWith(id grid.RowID, cells map[grid.ColumnID]grid.Cell) grid.Row {
	return grid.Row{ID: id, Cells: cells}
}

// =============================================================================
// PROTECTED-SOURCE MERGE
// =============================================================================

func TestPreserveProtected_ManualAndAgentCellsWin(t *testing.T) {
	// GIVEN: A server row disagreeing with local manual/agent/api cells
	// WHEN: Merged
	// THEN: Manual and agent cells keep the local value; api takes the server's

	server := rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"company_name": {Value: "Server Name", Source: grid.SourceAPI},
		"arr":          {Value: 100.0, Source: grid.SourceAPI},
		"nav":          {Value: 50.0, Source: grid.SourceAPI},
	})
	local := rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"company_name": {Value: "Local Name", Source: grid.SourceManual},
		"arr":          {Value: 200.0, Source: grid.SourceAgent},
		"nav":          {Value: 60.0, Source: grid.SourceAPI},
	})

	merged := guard.PreserveProtected(server, local)

	assert.Equal(t, "Local Name", merged.Cells["company_name"].Value, "manual survives")
	assert.Equal(t, 200.0, merged.Cells["arr"].Value, "agent survives")
	assert.Equal(t, 50.0, merged.Cells["nav"].Value, "api takes the server value")
}

func TestPreserveProtected_DoesNotMutateInputs(t *testing.T) {
	server := rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"arr": {Value: 100.0, Source: grid.SourceAPI},
	})
	local := rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"arr": {Value: 200.0, Source: grid.SourceManual},
	})

	guard.PreserveProtected(server, local)

	assert.Equal(t, 100.0, server.Cells["arr"].Value, "server row untouched")
}

// =============================================================================
// FULL-SNAPSHOT MERGE
// =============================================================================

func TestMergeSnapshot_ReloadScenario(t *testing.T) {
	// GIVEN: A local grid with a manual edit and a locally added row, and a
	//        server snapshot that is missing the new row and has stale values
	// WHEN: A reload merges server into local
	// THEN: The manual edit and the local-only row survive; server-only rows
	//       and unprotected values come in

	local := grid.New(mergeColumns())
	local = local.UpsertRow(rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"arr": {Value: 999.0, Source: grid.SourceManual},
		"nav": {Value: 10.0, Source: grid.SourceAPI},
	}))
	local = local.UpsertRow(rowWith("row-local", map[grid.ColumnID]grid.Cell{
		"company_name": {Value: "Fresh Add", Source: grid.SourceManual},
	}))

	server := grid.New(mergeColumns())
	server = server.UpsertRow(rowWith("row-1", map[grid.ColumnID]grid.Cell{
		"arr": {Value: 100.0, Source: grid.SourceAPI},
		"nav": {Value: 42.0, Source: grid.SourceAPI},
	}))
	server = server.UpsertRow(rowWith("row-2", map[grid.ColumnID]grid.Cell{
		"arr": {Value: 7.0, Source: grid.SourceAPI},
	}))

	merged := guard.MergeSnapshot(server, local)

	r1, ok := merged.Row("row-1")
	require.True(t, ok)
	assert.Equal(t, 999.0, r1.Cells["arr"].Value, "manual edit survives the reload")
	assert.Equal(t, 42.0, r1.Cells["nav"].Value, "unprotected cell takes the server value")

	_, ok = merged.Row("row-2")
	assert.True(t, ok, "server-only row comes in")

	_, ok = merged.Row("row-local")
	assert.True(t, ok, "local-only row survives; deletion is never a reload side effect")
}
