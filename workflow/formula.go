/*
formula.go - The =WORKFLOW cell formula grammar

PURPOSE:
  Grammar: =WORKFLOW("id1,id2,...", "current"|"all"|"selected")
  Entered into any editable cell; parsing yields the action ids and the
  target scope. Zero action ids is a hard validation error, rejected before
  any network call.

TARGET EXPANSION:
  current  -> each action against the triggering row only
  all      -> full cross product of action ids x grid rows
  selected -> restricted to the externally supplied selection set

SEE ALSO:
  - command.go: The commands expansion produces
  - run.go: Execution
*/
package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/warp/matrix-engine/grid"
)

// Target scopes a formula invocation.
type Target string

const (
	TargetCurrent  Target = "current"
	TargetAll      Target = "all"
	TargetSelected Target = "selected"
)

// Formula is a parsed =WORKFLOW invocation.
type Formula struct {
	ActionIDs []string
	Target    Target
}

var (
	formulaPattern = regexp.MustCompile(
		`^\s*=\s*WORKFLOW\s*\(\s*"([^"]*)"\s*,\s*"([^"]*)"\s*\)\s*$`)
	formulaPrefix = regexp.MustCompile(`^\s*=\s*WORKFLOW`)
)

// IsFormula reports whether a cell value looks like a workflow formula,
// before strict parsing. Accepts every leading-whitespace form the strict
// pattern does.
func IsFormula(s string) bool {
	return formulaPrefix.MatchString(strings.ToUpper(s))
}

// ParseFormula parses the grammar strictly. Zero action ids or an unknown
// target are validation errors.
func ParseFormula(s string) (Formula, error) {
	m := formulaPattern.FindStringSubmatch(s)
	if m == nil {
		return Formula{}, fmt.Errorf("malformed workflow formula %q: %w", s, grid.ErrEmptyWorkflow)
	}

	var ids []string
	for _, part := range strings.Split(m[1], ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Formula{}, fmt.Errorf("workflow formula %q: %w", s, grid.ErrEmptyWorkflow)
	}

	target := Target(strings.ToLower(strings.TrimSpace(m[2])))
	switch target {
	case TargetCurrent, TargetAll, TargetSelected:
	default:
		return Formula{}, fmt.Errorf("workflow target %q: %w", m[2], grid.ErrUnknownTarget)
	}

	return Formula{ActionIDs: ids, Target: target}, nil
}

// Expand turns a parsed formula into run commands against concrete rows.
// triggerRow is the row whose cell held the formula; selection is the
// external selection set, required for target=selected.
func (f Formula) Expand(g *grid.Grid, triggerRow grid.RowID, triggerCol grid.ColumnID, selection []grid.RowID) ([]GridCommand, error) {
	var rows []grid.RowID
	switch f.Target {
	case TargetCurrent:
		rows = []grid.RowID{triggerRow}
	case TargetAll:
		for _, r := range g.Rows() {
			rows = append(rows, r.ID)
		}
	case TargetSelected:
		rows = selection
	default:
		return nil, grid.ErrUnknownTarget
	}

	cmds := make([]GridCommand, 0, len(rows)*len(f.ActionIDs))
	for _, rowID := range rows {
		for _, actionID := range f.ActionIDs {
			cmds = append(cmds, GridCommand{
				Action:   ActionRun,
				RowID:    string(rowID),
				ColumnID: triggerCol,
				ActionID: actionID,
			})
		}
	}
	return cmds, nil
}
