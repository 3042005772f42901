/*
Package grid provides the core investment-matrix engine.

PURPOSE:
  This package contains the canonical in-memory representation of an
  investment data matrix: columns (metrics), rows (companies), and cells,
  plus the invariant-preserving mutators that every write path goes through.
  Four competing writers populate the same cells — manual user entry,
  document extraction, backend compute services, and a conversational
  agent — and this package is what keeps them from clobbering each other.

KEY CONCEPTS IN THIS FILE (types.go):
  - Column: A metric definition (type + editability)
  - Cell: A value with provenance (who wrote it, and therefore who may
    overwrite it)
  - Row: A company with its cell map
  - CellSource: Provenance tag; manual and agent sources are "protected"
  - CellMetadata: Free-form explanatory payload from services

DESIGN PRINCIPLES:
  1. Immutability: Grid snapshots are copy-on-write; mutators return a new
     snapshot and never modify one in place
  2. Provenance: Cell.Source is the single source of truth for overwrite
     permission
  3. Type Safety: Strong typing for row/column/suggestion IDs
  4. Precision: decimal.Decimal for all numeric coercion, never float math

USAGE:
  g := grid.New([]grid.Column{{ID: "arr", Name: "ARR", Type: grid.ColumnCurrency, Editable: true}})
  g = g.UpsertRow(grid.Row{ID: "r1", CompanyName: "Acme"})
  g2, err := g.SetCell("r1", "arr", grid.CellPatch{Value: "$5,000,000", Source: grid.SourceManual})

SEE ALSO:
  - model.go: Grid snapshot and mutators
  - coerce.go: Value coercion rules per column type
  - lookup.go: Three-way row resolution (id / company id / company name)
*/
package grid

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RowID string
type ColumnID string
type CompanyID string

// =============================================================================
// COLUMN - Metric definition
// =============================================================================

type ColumnType string

const (
	ColumnText       ColumnType = "text"
	ColumnNumber     ColumnType = "number"
	ColumnCurrency   ColumnType = "currency"
	ColumnPercentage ColumnType = "percentage"
	ColumnDate       ColumnType = "date"
	ColumnBoolean    ColumnType = "boolean"
	ColumnFormula    ColumnType = "formula"
	ColumnSparkline  ColumnType = "sparkline"
)

// Column is immutable once created except for display metadata.
// Deleting a column cascades to every row's cell map.
type Column struct {
	ID       ColumnID   `json:"id"`
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Editable bool       `json:"editable"`
}

// =============================================================================
// CELL - Value with provenance
// =============================================================================

type CellSource string

const (
	SourceManual   CellSource = "manual"
	SourceDocument CellSource = "document"
	SourceAPI      CellSource = "api"
	SourceFormula  CellSource = "formula"
	SourceScenario CellSource = "scenario"
	SourceAgent    CellSource = "agent"
)

// Protected reports whether background reconciliation must never silently
// overwrite a cell carrying this source.
func (s CellSource) Protected() bool {
	return s == SourceManual || s == SourceAgent
}

// CellMetadata carries provenance and explanatory payload attached to a cell
// by the service that produced it: confidence, citations, chart config,
// raw service output, and output-shape hints.
type CellMetadata struct {
	Explanation     string         `json:"explanation,omitempty"`
	Method          string         `json:"method,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Citations       []Citation     `json:"citations,omitempty"`
	ChartConfig     *ChartConfig   `json:"chart_config,omitempty"`
	RawOutput       map[string]any `json:"raw_output,omitempty"`
	OutputType      string         `json:"output_type,omitempty"`
	OutputStructure string         `json:"output_structure,omitempty"`
	StructuredArray []any          `json:"structured_array,omitempty"`
	WorkflowRun     bool           `json:"workflow_run,omitempty"`
	QueryGenerated  bool           `json:"query_generated,omitempty"`
}

// Citation points back into a source document.
type Citation struct {
	DocumentID string `json:"document_id,omitempty"`
	Page       int    `json:"page,omitempty"`
	Section    string `json:"section,omitempty"`
	Quote      string `json:"quote,omitempty"`
}

// ChartConfig is the canonical chart payload shape. Heterogeneous service
// outputs are normalized into this before touching a cell.
type ChartConfig struct {
	Type   string         `json:"type"`
	Title  string         `json:"title,omitempty"`
	Labels []string       `json:"labels,omitempty"`
	Series []ChartSeries  `json:"series,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

type ChartSeries struct {
	Name   string    `json:"name,omitempty"`
	Points []float64 `json:"points"`
}

// Cell holds a committed value plus everything needed to decide who may
// overwrite it.
type Cell struct {
	Value            any           `json:"value"`
	DisplayValue     string        `json:"display_value,omitempty"`
	Source           CellSource    `json:"source"`
	SourceDocumentID string        `json:"source_document_id,omitempty"`
	LastUpdated      time.Time     `json:"last_updated,omitempty"`
	EditedBy         string        `json:"edited_by,omitempty"`
	Formula          string        `json:"formula,omitempty"`
	Sparkline        []float64     `json:"sparkline,omitempty"`
	Metadata         *CellMetadata `json:"metadata,omitempty"`
}

// =============================================================================
// ROW - Company with cell map
// =============================================================================

// Row keys cells by column. ID and CompanyID are often but not always equal:
// portfolio rows key on company id, ad hoc rows get generated ids. Suggestion
// and action matching must resolve a row by id, company id, OR case-
// insensitive company name (see lookup.go).
type Row struct {
	ID          RowID             `json:"id"`
	CompanyID   CompanyID         `json:"company_id,omitempty"`
	CompanyName string            `json:"company_name,omitempty"`
	Cells       map[ColumnID]Cell `json:"cells"`
}

// Clone returns a deep copy of the row (cell map copied; cells are values).
func (r Row) Clone() Row {
	out := r
	out.Cells = make(map[ColumnID]Cell, len(r.Cells))
	for k, v := range r.Cells {
		out.Cells[k] = v
	}
	return out
}

// =============================================================================
// CELL PATCH - Input to SetCell
// =============================================================================

// CellPatch describes a single cell write. AgentEdit asserts that the write
// originates from a workflow or chat agent, which bypasses the column
// editable flag (an agent may populate a read-only computed column once and
// mark it formula/api-sourced).
type CellPatch struct {
	Value            any
	DisplayValue     string
	Source           CellSource
	SourceDocumentID string
	EditedBy         string
	Formula          string
	Sparkline        []float64
	Metadata         *CellMetadata
	AgentEdit        bool
}
