/*
Package action provides the gateway between the grid and the external
action-execution service.

PURPOSE:
  An "action" is a named, externally executed computation (a valuation
  method, a chart generator, a document extraction pass) invoked with row
  and column context. This package owns the two halves of the round trip:

  - Execute: the network call, through an injected Executor capability
  - ApplyResult: a pure function folding a heterogeneous result (scalar,
    array, multi-column fan-out, chart payload) into a grid snapshot

  ApplyResult is deliberately side-effect-free and idempotent so the
  workflow interpreter can call it repeatedly during a multi-step plan
  without accumulating drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - Request/Response: The wire contract with the execution service
  - Metadata: Free-form service payload, normalized via a tagged union on
    output_type rather than ad hoc field probing
  - ColumnSpec: Multi-column fan-out instruction

SEE ALSO:
  - apply.go: Result application and chart/series normalization
  - gateway.go: Execution wrapper
  - client/actions.go: HTTP Executor implementation
*/
package action

import "github.com/warp/matrix-engine/grid"

// =============================================================================
// WIRE CONTRACT
// =============================================================================

// Request identifies one action execution against one cell.
type Request struct {
	ActionID  string         `json:"action_id"`
	RowID     string         `json:"row_id"`
	ColumnID  string         `json:"column_id"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	FundID    string         `json:"fund_id,omitempty"`
	CompanyID string         `json:"company_id,omitempty"`
}

// Response is the service's answer. Metadata is free-form; normalization
// happens in apply.go.
type Response struct {
	Success  bool           `json:"success"`
	Value    any            `json:"value,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// OUTPUT SHAPE - Tagged union over metadata.output_type
// =============================================================================

type OutputType string

const (
	OutputScalar      OutputType = "scalar"
	OutputArray       OutputType = "array"
	OutputMultiColumn OutputType = "multi_column"
	OutputChart       OutputType = "chart"
)

// OutputTypeOf reads the output_type tag from response metadata, defaulting
// to scalar. Dispatch happens on this tag, never on probing which fields
// happen to be present.
func OutputTypeOf(resp Response) OutputType {
	if resp.Metadata == nil {
		return OutputScalar
	}
	if t, ok := resp.Metadata["output_type"].(string); ok {
		switch OutputType(t) {
		case OutputScalar, OutputArray, OutputMultiColumn, OutputChart:
			return OutputType(t)
		}
	}
	return OutputScalar
}

// ColumnSpec is one entry of metadata.columns_to_create: a sibling column to
// derive, plus the value to fan out into it on the same row.
type ColumnSpec struct {
	ID    grid.ColumnID
	Name  string
	Type  grid.ColumnType
	Value any
}
