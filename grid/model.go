/*
model.go - Immutable grid snapshot and invariant-preserving mutators

PURPOSE:
  The Grid is the only shared mutable resource in the system, so it is not
  mutable at all: every mutator returns a new snapshot and leaves the old one
  untouched. Concurrent readers never observe a half-applied write, and the
  reconciliation guard can roll back an optimistic edit by simply restoring
  the previous snapshot pointer.

INVARIANTS:
  1. SetCell requires the column to exist and be editable, unless the patch
     asserts AgentEdit (workflow/chat writes may populate read-only columns)
  2. Values are coerced per column type before commit; a raw object never
     lands in a cell
  3. Company-name edits that look like internal identifiers are rejected
  4. Column deletion cascades to every row's cell map

SEE ALSO:
  - types.go: Column/Cell/Row definitions
  - coerce.go: Coercion rules
  - guard/: The concurrency controller that sequences writers
*/
package grid

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// companyNameColumn is the column id whose edits are subject to the
// identifier-as-name validation.
const companyNameColumn ColumnID = "company_name"

var companySlugPattern = regexp.MustCompile(`^company[a-z0-9]+$`)

// =============================================================================
// GRID - Immutable snapshot
// =============================================================================

// Grid is a copy-on-write snapshot of the full matrix. Safe for concurrent
// reads; all writes go through mutators that return a fresh snapshot.
type Grid struct {
	columns  []Column
	rows     []Row
	colIndex map[ColumnID]int
	rowIndex map[RowID]int
}

// New creates a grid with the given columns and no rows.
func New(columns []Column) *Grid {
	g := &Grid{columns: append([]Column(nil), columns...)}
	g.reindex()
	return g
}

func (g *Grid) reindex() {
	g.colIndex = make(map[ColumnID]int, len(g.columns))
	for i, c := range g.columns {
		g.colIndex[c.ID] = i
	}
	g.rowIndex = make(map[RowID]int, len(g.rows))
	for i, r := range g.rows {
		g.rowIndex[r.ID] = i
	}
}

// clone copies the snapshot structure. Rows are shallow-copied; a mutator
// deep-copies only the row it touches.
func (g *Grid) clone() *Grid {
	out := &Grid{
		columns: append([]Column(nil), g.columns...),
		rows:    append([]Row(nil), g.rows...),
	}
	out.reindex()
	return out
}

// Columns returns the column definitions in order.
func (g *Grid) Columns() []Column { return append([]Column(nil), g.columns...) }

// Rows returns the rows in order. Cell maps are shared with the snapshot;
// callers must treat them as read-only.
func (g *Grid) Rows() []Row { return append([]Row(nil), g.rows...) }

// Column looks up a column definition.
func (g *Grid) Column(id ColumnID) (Column, bool) {
	i, ok := g.colIndex[id]
	if !ok {
		return Column{}, false
	}
	return g.columns[i], true
}

// Row looks up a row by its grid id.
func (g *Grid) Row(id RowID) (Row, bool) {
	i, ok := g.rowIndex[id]
	if !ok {
		return Row{}, false
	}
	return g.rows[i], true
}

// GetCell returns the cell at (rowID, columnID).
func (g *Grid) GetCell(rowID RowID, columnID ColumnID) (Cell, bool) {
	r, ok := g.Row(rowID)
	if !ok {
		return Cell{}, false
	}
	c, ok := r.Cells[columnID]
	return c, ok
}

// =============================================================================
// MUTATORS - All return a new snapshot
// =============================================================================

// SetCell writes one cell and returns the updated snapshot.
func (g *Grid) SetCell(rowID RowID, columnID ColumnID, patch CellPatch) (*Grid, error) {
	col, ok := g.Column(columnID)
	if !ok {
		return nil, &CellError{RowID: rowID, ColumnID: columnID, Err: ErrColumnNotFound}
	}
	if !col.Editable && !patch.AgentEdit {
		return nil, &CellError{RowID: rowID, ColumnID: columnID, Err: ErrColumnNotEditable}
	}
	i, ok := g.rowIndex[rowID]
	if !ok {
		return nil, &CellError{RowID: rowID, ColumnID: columnID, Err: ErrRowNotFound}
	}

	if columnID == companyNameColumn {
		if s, ok := patch.Value.(string); ok && looksLikeIdentifier(s) {
			return nil, &CellError{RowID: rowID, ColumnID: columnID, Err: ErrIdentifierAsName}
		}
	}

	value, ok := Coerce(col.Type, patch.Value)
	if !ok {
		value = ""
	}

	display := patch.DisplayValue
	if display == "" && value != "" {
		display = FormatDisplay(col.Type, value)
	}

	cell := Cell{
		Value:            value,
		DisplayValue:     display,
		Source:           patch.Source,
		SourceDocumentID: patch.SourceDocumentID,
		LastUpdated:      time.Now().UTC(),
		EditedBy:         patch.EditedBy,
		Formula:          patch.Formula,
		Sparkline:        patch.Sparkline,
		Metadata:         patch.Metadata,
	}

	out := g.clone()
	row := out.rows[i].Clone()
	if row.Cells == nil {
		row.Cells = make(map[ColumnID]Cell)
	}
	row.Cells[columnID] = cell
	out.rows[i] = row
	return out, nil
}

// UpsertRow inserts or replaces a row by id.
func (g *Grid) UpsertRow(row Row) *Grid {
	out := g.clone()
	if row.Cells == nil {
		row.Cells = make(map[ColumnID]Cell)
	}
	if i, ok := out.rowIndex[row.ID]; ok {
		out.rows[i] = row
		return out
	}
	out.rows = append(out.rows, row)
	out.rowIndex[row.ID] = len(out.rows) - 1
	return out
}

// DeleteRow removes a row. Deleting an absent row is a no-op.
func (g *Grid) DeleteRow(rowID RowID) *Grid {
	i, ok := g.rowIndex[rowID]
	if !ok {
		return g
	}
	out := g.clone()
	out.rows = append(out.rows[:i], out.rows[i+1:]...)
	out.reindex()
	return out
}

// AddColumn appends a column definition.
func (g *Grid) AddColumn(col Column) (*Grid, error) {
	if _, exists := g.colIndex[col.ID]; exists {
		// Idempotent: re-adding the same column is a no-op, which lets
		// multi-column fan-out apply repeatedly without drift.
		return g, nil
	}
	out := g.clone()
	out.columns = append(out.columns, col)
	out.colIndex[col.ID] = len(out.columns) - 1
	return out, nil
}

// DeleteColumn removes a column and cascades removal to every row's cells.
func (g *Grid) DeleteColumn(columnID ColumnID) *Grid {
	i, ok := g.colIndex[columnID]
	if !ok {
		return g
	}
	out := g.clone()
	out.columns = append(out.columns[:i], out.columns[i+1:]...)
	for ri, row := range out.rows {
		if _, has := row.Cells[columnID]; !has {
			continue
		}
		cp := row.Clone()
		delete(cp.Cells, columnID)
		out.rows[ri] = cp
	}
	out.reindex()
	return out
}

// RestoreCell writes an exact cell back without coercion or editability
// checks. This is the rollback primitive: optimistic writers save the prior
// cell and restore it bitwise when the server call fails.
func (g *Grid) RestoreCell(rowID RowID, columnID ColumnID, cell Cell, existed bool) *Grid {
	i, ok := g.rowIndex[rowID]
	if !ok {
		return g
	}
	out := g.clone()
	row := out.rows[i].Clone()
	if existed {
		row.Cells[columnID] = cell
	} else {
		delete(row.Cells, columnID)
	}
	out.rows[i] = row
	return out
}

// looksLikeIdentifier reports whether a proposed company name is actually an
// internal identifier (UUID-like or a company slug).
func looksLikeIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	return companySlugPattern.MatchString(strings.ToLower(s))
}

// =============================================================================
// GRID REF - Latest-snapshot holder
// =============================================================================
// Every mutation must read the latest snapshot immediately before writing.
// GridRef is the fresh accessor: holding a *Grid across a network call and
// writing through it later loses concurrent updates.

type GridRef struct {
	mu sync.RWMutex
	g  *Grid
}

// NewRef wraps a snapshot in a ref.
func NewRef(g *Grid) *GridRef { return &GridRef{g: g} }

// Load returns the current snapshot.
func (r *GridRef) Load() *Grid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.g
}

// Store replaces the current snapshot.
func (r *GridRef) Store(g *Grid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g = g
}

// Update applies fn to the latest snapshot atomically. fn must be pure; it
// may be retried only if it returns an error and the caller decides to.
func (r *GridRef) Update(fn func(*Grid) (*Grid, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := fn(r.g)
	if err != nil {
		return err
	}
	r.g = next
	return nil
}
