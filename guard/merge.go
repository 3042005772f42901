/*
merge.go - Protected-source merge for background reloads

PURPOSE:
  When a background poll fetches a fresh portfolio snapshot, the server's
  copy of a cell may disagree with a local edit the user or agent just made.
  The non-negotiable rule: for every cell whose LOCAL source is manual or
  agent, the local cell wins. Everything else takes the server value.

  This is what makes optimistic editing safe to combine with polling — the
  poll can never silently discard a human's or agent's work. The server
  catches up when the pending cell edit persists.

SEE ALSO:
  - guard.go: The counter that gates when reloads may run at all
  - api/handlers.go: Reload endpoint applying this merge row by row
*/
package guard

import "github.com/warp/matrix-engine/grid"

// PreserveProtected merges a freshly fetched server row into the local row:
// server wins except where the local cell's source is protected (manual or
// agent), in which case the local cell is overlaid unchanged.
func PreserveProtected(serverRow, localRow grid.Row) grid.Row {
	merged := serverRow.Clone()
	for colID, localCell := range localRow.Cells {
		if localCell.Source.Protected() {
			merged.Cells[colID] = localCell
		}
	}
	return merged
}

// MergeSnapshot applies PreserveProtected across an entire reload: rows
// present locally keep their protected cells; rows only on the server come
// in as-is; local rows missing from the server survive untouched (row
// deletion is an explicit operation, never a reload side effect).
func MergeSnapshot(server, local *grid.Grid) *grid.Grid {
	out := server
	for _, serverRow := range server.Rows() {
		if localRow, ok := local.Row(serverRow.ID); ok {
			out = out.UpsertRow(PreserveProtected(serverRow, localRow))
		}
	}
	for _, localRow := range local.Rows() {
		if _, ok := server.Row(localRow.ID); !ok {
			out = out.UpsertRow(localRow.Clone())
		}
	}
	return out
}
