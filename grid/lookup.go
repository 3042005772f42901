/*
lookup.go - Three-way row resolution

PURPOSE:
  A suggestion or action result identifies its target row loosely: the
  server-side rowId may be a grid row id, a company id, or a company name
  (any casing). Resolution must try all three keys through a prebuilt map —
  O(rows) preprocessing, O(1) per lookup — never a linear scan per
  suggestion. This is a correctness property: the same cell must be found no
  matter which key a collaborator used.

SEE ALSO:
  - suggest/store.go: Builds an index once per server list
  - workflow/run.go: Resolves command targets through the same index
*/
package grid

import "strings"

// RowIndex resolves rows by grid id, company id, or case-insensitive
// company name. Build once per snapshot; cheap to rebuild after mutation.
type RowIndex struct {
	byID   map[RowID]RowID
	byCo   map[CompanyID]RowID
	byName map[string]RowID
}

// BuildRowIndex preprocesses the grid's rows into the three lookup maps.
func BuildRowIndex(g *Grid) *RowIndex {
	idx := &RowIndex{
		byID:   make(map[RowID]RowID),
		byCo:   make(map[CompanyID]RowID),
		byName: make(map[string]RowID),
	}
	for _, r := range g.Rows() {
		idx.byID[r.ID] = r.ID
		if r.CompanyID != "" {
			idx.byCo[r.CompanyID] = r.ID
		}
		if r.CompanyName != "" {
			idx.byName[strings.ToLower(strings.TrimSpace(r.CompanyName))] = r.ID
		}
	}
	return idx
}

// Resolve maps a loose row key to the grid row id. The key is tried as a
// grid id, then a company id, then a case-insensitive company name.
func (idx *RowIndex) Resolve(key string) (RowID, bool) {
	if id, ok := idx.byID[RowID(key)]; ok {
		return id, true
	}
	if id, ok := idx.byCo[CompanyID(key)]; ok {
		return id, true
	}
	if id, ok := idx.byName[strings.ToLower(strings.TrimSpace(key))]; ok {
		return id, true
	}
	return "", false
}
