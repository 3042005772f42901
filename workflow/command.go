/*
Package workflow interprets declarative multi-action batches against the grid.

PURPOSE:
  Two surfaces produce work for this package:

  1. The formula surface: "=WORKFLOW(\"id1,id2\", \"all\")" typed into any
     editable cell (formula.go)
  2. The command surface: a GridCommand[] batch from the chat/agent
     collaborator — the sole channel through which an external agent
     mutates the grid

  Both compile into the same ordered execution plan (plan.go) and run with
  the same guarantees (run.go): groups are strict barriers, structural
  changes serialize before parallel edits, chained runs observe every prior
  group's result for their row, and a single aggregate summary is produced.

KEY CONCEPTS IN THIS FILE (command.go):
  - GridCommand: One unit of work with its ordering group
  - Group defaulting: Edits default to group 0, runs to group 1, so a bare
    batch "edit some cells then run the services" just works

SEE ALSO:
  - formula.go: The =WORKFLOW grammar
  - plan.go: Grouping and phase ordering
  - run.go: Execution with bounded parallelism and context chaining
*/
package workflow

import "github.com/warp/matrix-engine/grid"

// CommandAction enumerates what a GridCommand does.
type CommandAction string

const (
	ActionEdit        CommandAction = "edit"
	ActionRun         CommandAction = "run"
	ActionAddDocument CommandAction = "add_document"
	ActionAddRow      CommandAction = "add_row"
	ActionDelete      CommandAction = "delete"
)

// GridCommand is one unit of a workflow batch. Group defines a total order
// across batches; a nil Group defaults to 0 for edits and structural
// commands and 1 for runs.
type GridCommand struct {
	Action        CommandAction  `json:"action"`
	RowID         string         `json:"row_id,omitempty"`
	ColumnID      grid.ColumnID  `json:"column_id,omitempty"`
	Value         any            `json:"value,omitempty"`
	ActionID      string         `json:"action_id,omitempty"`
	Group         *int           `json:"group,omitempty"`
	SourceService string         `json:"source_service,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// CompanyName lets add_row commands create a named row.
	CompanyName string `json:"company_name,omitempty"`
	// DocumentID is the attachment for add_document commands.
	DocumentID string `json:"document_id,omitempty"`
}

// EffectiveGroup resolves the defaulting rule.
func (c GridCommand) EffectiveGroup() int {
	if c.Group != nil {
		return *c.Group
	}
	if c.Action == ActionRun {
		return 1
	}
	return 0
}

// structural reports whether the command mutates row identity and therefore
// must serialize before anything else in its group.
func (c GridCommand) structural() bool {
	return c.Action == ActionAddRow || c.Action == ActionDelete
}
