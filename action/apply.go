/*
apply.go - Pure application of action results to the grid

PURPOSE:
  Given a successful Response, fold it into a grid snapshot:
  (a) extract a display value via the column's type-aware formatter
  (b) extract an explanation string from free-form metadata
  (c) normalize any chart payload into the canonical ChartConfig shape
  (d) multi_column: derive sibling columns from columns_to_create and fan
      the values out across the same row
  (e) update the sparkline only when the target column is sparkline-typed
      or a NAV column and the metadata carries a time series

  Unsuccessful responses are no-ops on the grid; user-visible error
  reporting belongs to the caller. The function is pure and idempotent —
  applying the same response to the same snapshot twice produces the same
  snapshot both times.

SEE ALSO:
  - types.go: Output tag and ColumnSpec
  - workflow/run.go: Calls ApplyResult per completed run command
*/
package action

import (
	"fmt"
	"strings"

	"github.com/warp/matrix-engine/grid"
)

// navColumn is the computed column that also carries a sparkline series.
const navColumn grid.ColumnID = "nav"

// ApplyResult folds resp into g at (rowID, columnID) and returns the new
// snapshot. A failed response returns g unchanged with no error; the
// response's own error string is the caller's to surface.
func ApplyResult(g *grid.Grid, rowID grid.RowID, columnID grid.ColumnID, resp Response) (*grid.Grid, error) {
	if !resp.Success {
		return g, nil
	}

	switch OutputTypeOf(resp) {
	case OutputMultiColumn:
		return applyMultiColumn(g, rowID, resp)
	case OutputChart:
		return applyChart(g, rowID, columnID, resp)
	case OutputArray:
		return applyScalar(g, rowID, columnID, resp, flattenArray(resp.Value))
	default:
		return applyScalar(g, rowID, columnID, resp, resp.Value)
	}
}

// applyScalar writes one cell with normalized metadata.
func applyScalar(g *grid.Grid, rowID grid.RowID, columnID grid.ColumnID, resp Response, value any) (*grid.Grid, error) {
	col, ok := g.Column(columnID)
	if !ok {
		return nil, &grid.CellError{RowID: rowID, ColumnID: columnID, Err: grid.ErrColumnNotFound}
	}

	patch := grid.CellPatch{
		Value:     value,
		Source:    grid.SourceAPI,
		Metadata:  normalizeMetadata(resp),
		AgentEdit: true,
	}
	if coerced, ok := grid.Coerce(col.Type, value); ok {
		patch.DisplayValue = grid.FormatDisplay(col.Type, coerced)
	}
	if series, ok := extractSeries(resp.Metadata); ok && (col.Type == grid.ColumnSparkline || columnID == navColumn) {
		patch.Sparkline = series
	}
	return g.SetCell(rowID, columnID, patch)
}

// applyChart normalizes the chart payload and stores it as cell metadata;
// the cell value becomes the chart title so the grid has something to show.
func applyChart(g *grid.Grid, rowID grid.RowID, columnID grid.ColumnID, resp Response) (*grid.Grid, error) {
	cfg := normalizeChart(resp)
	md := normalizeMetadata(resp)
	md.ChartConfig = cfg

	value := resp.Value
	if value == nil && cfg != nil {
		value = cfg.Title
	}
	return g.SetCell(rowID, columnID, grid.CellPatch{
		Value:     value,
		Source:    grid.SourceAPI,
		Metadata:  md,
		AgentEdit: true,
	})
}

// applyMultiColumn derives sibling columns and fans values out on the row.
// Column derivation is idempotent (AddColumn no-ops on an existing id).
func applyMultiColumn(g *grid.Grid, rowID grid.RowID, resp Response) (*grid.Grid, error) {
	specs := parseColumnSpecs(resp.Metadata)
	if len(specs) == 0 {
		return g, nil
	}

	md := normalizeMetadata(resp)
	out := g
	var err error
	for _, spec := range specs {
		out, err = out.AddColumn(grid.Column{
			ID:       spec.ID,
			Name:     spec.Name,
			Type:     spec.Type,
			Editable: false,
		})
		if err != nil {
			return nil, err
		}
		out, err = out.SetCell(rowID, spec.ID, grid.CellPatch{
			Value:     spec.Value,
			Source:    grid.SourceAPI,
			Metadata:  md,
			AgentEdit: true,
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parseColumnSpecs reads metadata.columns_to_create into fan-out instructions.
// Entries missing an id are skipped; name defaults to the id and type to text.
func parseColumnSpecs(m map[string]any) []ColumnSpec {
	if m == nil {
		return nil
	}
	items, ok := m["columns_to_create"].([]any)
	if !ok {
		return nil
	}
	specs := make([]ColumnSpec, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := entry["id"].(string)
		if id == "" {
			continue
		}
		spec := ColumnSpec{
			ID:    grid.ColumnID(id),
			Name:  id,
			Type:  grid.ColumnText,
			Value: entry["value"],
		}
		if name, ok := entry["name"].(string); ok && name != "" {
			spec.Name = name
		}
		if t, ok := entry["type"].(string); ok && t != "" {
			spec.Type = grid.ColumnType(t)
		}
		specs = append(specs, spec)
	}
	return specs
}

// =============================================================================
// METADATA NORMALIZATION
// =============================================================================

// normalizeMetadata lifts the free-form service payload into CellMetadata.
func normalizeMetadata(resp Response) *grid.CellMetadata {
	m := resp.Metadata
	if m == nil {
		return nil
	}
	md := &grid.CellMetadata{
		Explanation: ExtractExplanation(m),
		RawOutput:   m,
	}
	if s, ok := m["method"].(string); ok {
		md.Method = s
	}
	if c, ok := toFloat(m["confidence"]); ok {
		md.Confidence = &c
	}
	if t, ok := m["output_type"].(string); ok {
		md.OutputType = t
	}
	if s, ok := m["output_structure"].(string); ok {
		md.OutputStructure = s
	}
	if arr, ok := m["structured_array"].([]any); ok {
		md.StructuredArray = arr
	}
	md.Citations = parseCitations(m["citations"])
	return md
}

// ExtractExplanation pulls a human-readable explanation out of the metadata,
// trying the conventional keys in order.
func ExtractExplanation(m map[string]any) string {
	for _, k := range []string{"explanation", "reasoning", "summary", "description"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseCitations(v any) []grid.Citation {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []grid.Citation
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := grid.Citation{}
		if s, ok := m["document_id"].(string); ok {
			c.DocumentID = s
		}
		if p, ok := toFloat(m["page"]); ok {
			c.Page = int(p)
		}
		if s, ok := m["section"].(string); ok {
			c.Section = s
		}
		if s, ok := m["quote"].(string); ok {
			c.Quote = s
		}
		out = append(out, c)
	}
	return out
}

// =============================================================================
// CHART NORMALIZATION
// =============================================================================

// normalizeChart accepts the several shapes services emit charts in
// (chart_config object, labels+values arrays, bare series) and produces the
// one canonical shape.
func normalizeChart(resp Response) *grid.ChartConfig {
	m := resp.Metadata
	if m == nil {
		return nil
	}
	raw, ok := m["chart_config"].(map[string]any)
	if !ok {
		// Some services put the chart fields at the top level.
		raw = m
	}

	cfg := &grid.ChartConfig{Type: "line"}
	if t, ok := raw["type"].(string); ok && t != "" {
		cfg.Type = t
	}
	if t, ok := raw["title"].(string); ok {
		cfg.Title = t
	}
	if labels, ok := raw["labels"].([]any); ok {
		for _, l := range labels {
			cfg.Labels = append(cfg.Labels, fmt.Sprintf("%v", l))
		}
	}

	switch series := raw["series"].(type) {
	case []any:
		for _, s := range series {
			sm, ok := s.(map[string]any)
			if !ok {
				// A bare numeric array is a single unnamed series.
				if pts, ok := toFloatSlice(series); ok {
					cfg.Series = []grid.ChartSeries{{Points: pts}}
				}
				break
			}
			cs := grid.ChartSeries{}
			if n, ok := sm["name"].(string); ok {
				cs.Name = n
			}
			if pts, ok := toFloatSlice(sm["points"]); ok {
				cs.Points = pts
			} else if pts, ok := toFloatSlice(sm["data"]); ok {
				cs.Points = pts
			}
			cfg.Series = append(cfg.Series, cs)
		}
	default:
		if pts, ok := toFloatSlice(raw["values"]); ok {
			cfg.Series = []grid.ChartSeries{{Points: pts}}
		}
	}

	if cfg.Title == "" && len(cfg.Series) == 0 && len(cfg.Labels) == 0 {
		return nil
	}
	return cfg
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// flattenArray renders an array result as a display string: scalars joined
// by comma. Structured arrays keep their full shape in metadata.
func flattenArray(v any) any {
	items, ok := v.([]any)
	if !ok {
		return v
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			// Nested structure: the scalar rendering would be noise.
			continue
		default:
			parts = append(parts, fmt.Sprintf("%v", item))
		}
	}
	return strings.Join(parts, ", ")
}

// extractSeries looks for a numeric time series in the metadata, under the
// keys services conventionally use.
func extractSeries(m map[string]any) ([]float64, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range []string{"series", "time_series", "sparkline", "nav_series"} {
		if pts, ok := toFloatSlice(m[k]); ok && len(pts) > 0 {
			return pts, true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toFloatSlice(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
