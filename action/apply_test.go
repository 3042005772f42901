package action_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/matrix-engine/action"
	"github.com/warp/matrix-engine/grid"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newApplyGrid() *grid.Grid {
	g := grid.New([]grid.Column{
		{ID: "company_name", Name: "Company", Type: grid.ColumnText, Editable: true},
		{ID: "arr", Name: "ARR", Type: grid.ColumnCurrency},
		{ID: "nav", Name: "NAV", Type: grid.ColumnCurrency},
		{ID: "trend", Name: "Trend", Type: grid.ColumnSparkline},
		{ID: "notes", Name: "Notes", Type: grid.ColumnText},
	})
	return g.UpsertRow(grid.Row{ID: "row-1", CompanyName: "Acme Capital"})
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestApplyResult_Failure_IsNoOp(t *testing.T) {
	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "arr", action.Response{
		Success: false,
		Error:   "valuation service unavailable",
	})
	require.NoError(t, err)
	assert.Same(t, g, out, "a failed response must not touch the grid")
}

func TestApplyResult_Scalar_ValueDisplayAndExplanation(t *testing.T) {
	// GIVEN: A successful scalar result with free-form metadata
	// WHEN: Applied to a currency column
	// THEN: Value stored, display derived, explanation lifted from "reasoning"

	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "arr", action.Response{
		Success: true,
		Value:   1200000.0,
		Metadata: map[string]any{
			"reasoning":  "trailing twelve months from Q2 filings",
			"confidence": 0.9,
			"method":     "ttm",
		},
	})
	require.NoError(t, err)

	cell, ok := out.GetCell("row-1", "arr")
	require.True(t, ok)
	assert.Equal(t, 1200000.0, cell.Value)
	assert.Equal(t, "$1,200,000", cell.DisplayValue)
	assert.Equal(t, grid.SourceAPI, cell.Source)
	require.NotNil(t, cell.Metadata)
	assert.Equal(t, "trailing twelve months from Q2 filings", cell.Metadata.Explanation)
	require.NotNil(t, cell.Metadata.Confidence)
	assert.Equal(t, 0.9, *cell.Metadata.Confidence)
	assert.Equal(t, "ttm", cell.Metadata.Method)
}

func TestApplyResult_Idempotent(t *testing.T) {
	g := newApplyGrid()
	resp := action.Response{Success: true, Value: 500.0}

	once, err := action.ApplyResult(g, "row-1", "arr", resp)
	require.NoError(t, err)
	twice, err := action.ApplyResult(once, "row-1", "arr", resp)
	require.NoError(t, err)

	c1, _ := once.GetCell("row-1", "arr")
	c2, _ := twice.GetCell("row-1", "arr")
	assert.Equal(t, c1.Value, c2.Value)
	assert.Equal(t, c1.DisplayValue, c2.DisplayValue)
}

// =============================================================================
// SPARKLINES
// =============================================================================

func TestApplyResult_Series_OnlyOnSparklineOrNavColumns(t *testing.T) {
	g := newApplyGrid()
	md := map[string]any{"nav_series": []any{1.0, 2.0, 3.0}}

	out, err := action.ApplyResult(g, "row-1", "nav", action.Response{
		Success: true, Value: 3.0, Metadata: md,
	})
	require.NoError(t, err)
	cell, _ := out.GetCell("row-1", "nav")
	assert.Equal(t, []float64{1, 2, 3}, cell.Sparkline, "nav column carries the series")

	out, err = action.ApplyResult(g, "row-1", "arr", action.Response{
		Success: true, Value: 3.0, Metadata: md,
	})
	require.NoError(t, err)
	cell, _ = out.GetCell("row-1", "arr")
	assert.Nil(t, cell.Sparkline, "ordinary columns ignore the series")
}

// =============================================================================
// ARRAYS
// =============================================================================

func TestApplyResult_Array_FlattenedForDisplay(t *testing.T) {
	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "notes", action.Response{
		Success:  true,
		Value:    []any{"fund I", "fund II", map[string]any{"nested": true}, "fund III"},
		Metadata: map[string]any{"output_type": "array"},
	})
	require.NoError(t, err)

	cell, _ := out.GetCell("row-1", "notes")
	assert.Equal(t, "fund I, fund II, fund III", cell.Value, "scalars joined, nested structures dropped")
}

// =============================================================================
// CHARTS
// =============================================================================

func TestApplyResult_Chart_NormalizedToCanonicalShape(t *testing.T) {
	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "notes", action.Response{
		Success: true,
		Metadata: map[string]any{
			"output_type": "chart",
			"chart_config": map[string]any{
				"type":   "bar",
				"title":  "Quarterly NAV",
				"labels": []any{"Q1", "Q2"},
				"series": []any{
					map[string]any{"name": "NAV", "data": []any{10.0, 12.0}},
				},
			},
		},
	})
	require.NoError(t, err)

	cell, _ := out.GetCell("row-1", "notes")
	assert.Equal(t, "Quarterly NAV", cell.Value, "cell value falls back to the chart title")
	require.NotNil(t, cell.Metadata)
	cfg := cell.Metadata.ChartConfig
	require.NotNil(t, cfg)
	assert.Equal(t, "bar", cfg.Type)
	assert.Equal(t, []string{"Q1", "Q2"}, cfg.Labels)
	require.Len(t, cfg.Series, 1)
	assert.Equal(t, "NAV", cfg.Series[0].Name)
	assert.Equal(t, []float64{10, 12}, cfg.Series[0].Points)
}

func TestApplyResult_Chart_TopLevelFieldsAccepted(t *testing.T) {
	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "notes", action.Response{
		Success: true,
		Value:   "trend",
		Metadata: map[string]any{
			"output_type": "chart",
			"labels":      []any{"2023", "2024"},
			"values":      []any{5.0, 9.0},
		},
	})
	require.NoError(t, err)

	cell, _ := out.GetCell("row-1", "notes")
	cfg := cell.Metadata.ChartConfig
	require.NotNil(t, cfg)
	assert.Equal(t, "line", cfg.Type, "type defaults to line")
	require.Len(t, cfg.Series, 1)
	assert.Equal(t, []float64{5, 9}, cfg.Series[0].Points)
}

// =============================================================================
// MULTI-COLUMN FAN-OUT
// =============================================================================

func TestApplyResult_MultiColumn_DerivesSiblingsIdempotently(t *testing.T) {
	// GIVEN: A multi_column result naming two new columns
	// WHEN: Applied twice
	// THEN: Columns exist once, both cells are populated on the row

	g := newApplyGrid()
	resp := action.Response{
		Success: true,
		Metadata: map[string]any{
			"output_type": "multi_column",
			"columns_to_create": []any{
				map[string]any{"id": "revenue_2023", "name": "Revenue 2023", "type": "currency", "value": 100.0},
				map[string]any{"id": "revenue_2024", "name": "Revenue 2024", "type": "currency", "value": 140.0},
			},
		},
	}

	out, err := action.ApplyResult(g, "row-1", "arr", resp)
	require.NoError(t, err)
	out, err = action.ApplyResult(out, "row-1", "arr", resp)
	require.NoError(t, err)

	assert.Len(t, out.Columns(), len(g.Columns())+2, "columns created exactly once")

	c23, ok := out.GetCell("row-1", "revenue_2023")
	require.True(t, ok)
	assert.Equal(t, 100.0, c23.Value)
	assert.Equal(t, "$100", c23.DisplayValue)

	c24, ok := out.GetCell("row-1", "revenue_2024")
	require.True(t, ok)
	assert.Equal(t, 140.0, c24.Value)
}

func TestApplyResult_MultiColumn_MalformedEntriesSkipped(t *testing.T) {
	g := newApplyGrid()

	out, err := action.ApplyResult(g, "row-1", "arr", action.Response{
		Success: true,
		Metadata: map[string]any{
			"output_type": "multi_column",
			"columns_to_create": []any{
				"not an object",
				map[string]any{"name": "no id"},
				map[string]any{"id": "ok_col", "value": "x"},
			},
		},
	})
	require.NoError(t, err)

	assert.Len(t, out.Columns(), len(g.Columns())+1, "only the well-formed entry lands")
	_, ok := out.Column("ok_col")
	assert.True(t, ok)
}
