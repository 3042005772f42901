/*
Package suggest tracks proposed cell changes awaiting human accept/reject.

PURPOSE:
  Suggestions come from two producers — document extraction and compute
  services — and target cells loosely (by row id, company id, or company
  name). The server list is the eventual source of truth; the client only
  layers a transient hide-set on top, so a suggestion entity is immutable
  and carries no lifecycle state of its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - Suggestion: An immutable proposed change with provenance and confidence
  - Insight: A non-actionable observation riding the same feed
  - Feed: One fetch result (suggestions + insights)
  - AcceptPayload: What the server needs to durably resolve an accept,
    including which accept path (document vs service) to route through

SEE ALSO:
  - store.go: Lifecycle, optimistic hiding, reconcile
*/
package suggest

import (
	"context"

	"github.com/warp/matrix-engine/grid"
)

// =============================================================================
// SUGGESTION - Immutable proposed change
// =============================================================================

type Source string

const (
	SourceDocument Source = "document"
	SourceService  Source = "service"
)

type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
	ChangeNew      ChangeType = "new"
	ChangeUpdate   ChangeType = "update"
)

// Suggestion is a proposed cell value change. RowID is the server's loose
// key: it may be a grid row id, a company id, or a company name. Never
// mutated after creation; lifecycle state lives in the Store's hide-set.
type Suggestion struct {
	ID               string        `json:"id"`
	RowID            string        `json:"row_id"`
	ColumnID         grid.ColumnID `json:"column_id"`
	SuggestedValue   any           `json:"suggested_value"`
	CurrentValue     any           `json:"current_value,omitempty"`
	Reasoning        string        `json:"reasoning,omitempty"`
	Confidence       float64       `json:"confidence"`
	Source           Source        `json:"source"`
	SourceService    string        `json:"source_service,omitempty"`
	SourceDocumentID string        `json:"source_document_id,omitempty"`
	ChangeType       ChangeType    `json:"change_type"`
	ChangeAmount     *float64      `json:"change_amount,omitempty"`
	ChangePercentage *float64      `json:"change_percentage,omitempty"`
	CitationPage     int           `json:"citation_page,omitempty"`
	CitationSection  string        `json:"citation_section,omitempty"`
}

// CompositeKey identifies the targeted cell-and-producer. Duplicate
// suggestions for the same cell from the same source share this key, so
// hiding one hides its duplicates too.
func (s Suggestion) CompositeKey() string {
	return s.RowID + "::" + string(s.ColumnID) + "::" + string(s.Source)
}

// Insight is a non-actionable observation delivered alongside suggestions.
type Insight struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Feed is one suggestion fetch result.
type Feed struct {
	Suggestions []Suggestion `json:"suggestions"`
	Insights    []Insight    `json:"insights"`
}

// =============================================================================
// SERVER API - Consumed capability
// =============================================================================

// AcceptRoute selects the server-side accept path.
type AcceptRoute string

const (
	RouteDocument AcceptRoute = "document"
	RouteService  AcceptRoute = "service"
)

// AcceptPayload is the body of the server accept call.
type AcceptPayload struct {
	Route         AcceptRoute `json:"route"`
	Value         any         `json:"value"`
	RowID         string      `json:"row_id"`
	ColumnID      string      `json:"column_id"`
	SourceService string      `json:"source_service,omitempty"`
	DocumentID    string      `json:"document_id,omitempty"`
}

// API is the suggestion feed capability. Implemented over HTTP by
// client.SuggestionClient; tests substitute stubs.
type API interface {
	Fetch(ctx context.Context, fundID string) (Feed, error)
	Accept(ctx context.Context, suggestionID string, payload AcceptPayload) error
	Reject(ctx context.Context, suggestionID string, reason map[string]any) error
	Add(ctx context.Context, fundID string, s Suggestion) error
}
