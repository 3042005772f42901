/*
plan.go - Compiling a command batch into an ordered execution plan

PURPOSE:
  Ordering is the whole point of workflows. The plan groups commands by
  their (defaulted) group number ascending and splits each group into three
  phases with fixed ordering:

    phase 1: add_row / delete   - serial (they mutate row identity)
    phase 2: edit / add_document - parallel, bounded at MaxParallelEdits
    phase 3: run                 - after the group's edits settle

  Group N+1 never starts before group N has fully settled (grid committed,
  suggestion feed refreshed when the group contained edits). That barrier
  is enforced by the runner; the plan just fixes the order.

SEE ALSO:
  - run.go: Executes the plan
*/
package workflow

import "sort"

// MaxParallelEdits bounds concurrent edit/add_document operations per group.
const MaxParallelEdits = 8

// Group is one barrier-delimited slice of the plan.
type Group struct {
	Number     int
	Structural []GridCommand // add_row, delete: serial
	Edits      []GridCommand // edit, add_document: parallel <= MaxParallelEdits
	Runs       []GridCommand // run: after edits settle
}

// HasEdits reports whether the group mutates cells (and therefore requires
// a suggestion refresh before the next group).
func (g Group) HasEdits() bool {
	return len(g.Structural) > 0 || len(g.Edits) > 0
}

// Plan is the full ordered execution plan.
type Plan struct {
	Groups []Group
}

// BuildPlan compiles commands into a plan: group ascending, phases fixed.
func BuildPlan(commands []GridCommand) Plan {
	byNumber := make(map[int]*Group)
	var numbers []int

	for _, cmd := range commands {
		n := cmd.EffectiveGroup()
		g, ok := byNumber[n]
		if !ok {
			g = &Group{Number: n}
			byNumber[n] = g
			numbers = append(numbers, n)
		}
		switch {
		case cmd.structural():
			g.Structural = append(g.Structural, cmd)
		case cmd.Action == ActionRun:
			g.Runs = append(g.Runs, cmd)
		default:
			g.Edits = append(g.Edits, cmd)
		}
	}

	sort.Ints(numbers)
	plan := Plan{Groups: make([]Group, 0, len(numbers))}
	for _, n := range numbers {
		plan.Groups = append(plan.Groups, *byNumber[n])
	}
	return plan
}

// Size returns the total command count.
func (p Plan) Size() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Structural) + len(g.Edits) + len(g.Runs)
	}
	return n
}
