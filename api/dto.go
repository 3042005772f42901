/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing field
  renaming without breaking clients, API-specific validation, and version
  evolution.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/matrix-engine/grid"
	"github.com/warp/matrix-engine/suggest"
	"github.com/warp/matrix-engine/workflow"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// GridDTO is the full grid snapshot in API responses.
type GridDTO struct {
	Columns []ColumnDTO `json:"columns"`
	Rows    []RowDTO    `json:"rows"`
}

// ColumnDTO represents a column definition.
type ColumnDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Editable bool   `json:"editable"`
}

// RowDTO represents a company row with its cells.
type RowDTO struct {
	ID          string             `json:"id"`
	CompanyID   string             `json:"company_id,omitempty"`
	CompanyName string             `json:"company_name,omitempty"`
	Cells       map[string]CellDTO `json:"cells"`
}

// CellDTO represents a single cell.
type CellDTO struct {
	Value        any       `json:"value"`
	DisplayValue string    `json:"display_value,omitempty"`
	Source       string    `json:"source"`
	LastUpdated  string    `json:"last_updated,omitempty"`
	EditedBy     string    `json:"edited_by,omitempty"`
	Sparkline    []float64 `json:"sparkline,omitempty"`
	Explanation  string    `json:"explanation,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
}

// EditCellRequest is a manual cell edit.
type EditCellRequest struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	Value    any    `json:"value"`
	EditedBy string `json:"edited_by,omitempty"`
}

// AddRowRequest creates a row.
type AddRowRequest struct {
	ID          string `json:"id,omitempty"`
	CompanyID   string `json:"company_id,omitempty"`
	CompanyName string `json:"company_name"`
}

// AddColumnRequest creates a column.
type AddColumnRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Editable bool   `json:"editable"`
}

// SuggestionDTO represents a visible suggestion.
type SuggestionDTO struct {
	ID             string  `json:"id"`
	RowID          string  `json:"row_id"`
	ColumnID       string  `json:"column_id"`
	SuggestedValue any     `json:"suggested_value"`
	CurrentValue   any     `json:"current_value,omitempty"`
	Reasoning      string  `json:"reasoning,omitempty"`
	Confidence     float64 `json:"confidence"`
	Source         string  `json:"source"`
	SourceService  string  `json:"source_service,omitempty"`
	ChangeType     string  `json:"change_type,omitempty"`
}

// SuggestionFeedDTO is the visible feed.
type SuggestionFeedDTO struct {
	Suggestions []SuggestionDTO   `json:"suggestions"`
	Insights    []suggest.Insight `json:"insights"`
}

// AcceptBatchRequest accepts several suggestions sequentially.
type AcceptBatchRequest struct {
	IDs []string `json:"ids"`
}

// RejectRequest carries the optional rejection context.
type RejectRequest struct {
	Reason map[string]any `json:"reason,omitempty"`
}

// WorkflowRequest runs either a formula or an explicit command batch.
type WorkflowRequest struct {
	Formula    string                 `json:"formula,omitempty"`
	TriggerRow string                 `json:"trigger_row,omitempty"`
	TriggerCol string                 `json:"trigger_col,omitempty"`
	Selection  []string               `json:"selection,omitempty"`
	Commands   []workflow.GridCommand `json:"commands,omitempty"`
}

// WorkflowResultDTO is the aggregate batch result.
type WorkflowResultDTO struct {
	RunID         string `json:"run_id"`
	FieldsUpdated int    `json:"fields_updated"`
	ServicesRun   int    `json:"services_run"`
	Failed        int    `json:"failed"`
	Summary       string `json:"summary"`
}

// ReloadRequest triggers a portfolio reload and protected merge.
type ReloadRequest struct {
	FundID string `json:"fund_id"`
}

// WorkflowRunDTO is one audit record.
type WorkflowRunDTO struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	Status        string `json:"status"`
	FieldsUpdated int    `json:"fields_updated"`
	ServicesRun   int    `json:"services_run"`
	Failed        int    `json:"failed"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toGridDTO(g *grid.Grid) GridDTO {
	cols := g.Columns()
	dto := GridDTO{Columns: make([]ColumnDTO, len(cols))}
	for i, c := range cols {
		dto.Columns[i] = ColumnDTO{
			ID:       string(c.ID),
			Name:     c.Name,
			Type:     string(c.Type),
			Editable: c.Editable,
		}
	}
	for _, r := range g.Rows() {
		dto.Rows = append(dto.Rows, toRowDTO(r))
	}
	return dto
}

func toRowDTO(r grid.Row) RowDTO {
	dto := RowDTO{
		ID:          string(r.ID),
		CompanyID:   string(r.CompanyID),
		CompanyName: r.CompanyName,
		Cells:       make(map[string]CellDTO, len(r.Cells)),
	}
	for colID, cell := range r.Cells {
		dto.Cells[string(colID)] = toCellDTO(cell)
	}
	return dto
}

func toCellDTO(c grid.Cell) CellDTO {
	dto := CellDTO{
		Value:        c.Value,
		DisplayValue: c.DisplayValue,
		Source:       string(c.Source),
		EditedBy:     c.EditedBy,
		Sparkline:    c.Sparkline,
	}
	if !c.LastUpdated.IsZero() {
		dto.LastUpdated = c.LastUpdated.Format(time.RFC3339)
	}
	if c.Metadata != nil {
		dto.Explanation = c.Metadata.Explanation
		dto.Confidence = c.Metadata.Confidence
	}
	return dto
}

func toSuggestionDTOs(list []suggest.Suggestion) []SuggestionDTO {
	dtos := make([]SuggestionDTO, len(list))
	for i, s := range list {
		dtos[i] = SuggestionDTO{
			ID:             s.ID,
			RowID:          s.RowID,
			ColumnID:       string(s.ColumnID),
			SuggestedValue: s.SuggestedValue,
			CurrentValue:   s.CurrentValue,
			Reasoning:      s.Reasoning,
			Confidence:     s.Confidence,
			Source:         string(s.Source),
			SourceService:  s.SourceService,
			ChangeType:     string(s.ChangeType),
		}
	}
	return dtos
}

func toRunDTO(rec grid.WorkflowRunRecord) WorkflowRunDTO {
	dto := WorkflowRunDTO{
		ID:            rec.ID,
		StartedAt:     rec.StartedAt.Format(time.RFC3339),
		Status:        rec.Status,
		FieldsUpdated: rec.FieldsUpdated,
		ServicesRun:   rec.ServicesRun,
		Failed:        rec.Failed,
		Summary:       rec.Summary,
		Error:         rec.Error,
	}
	if rec.CompletedAt != nil {
		dto.CompletedAt = rec.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
