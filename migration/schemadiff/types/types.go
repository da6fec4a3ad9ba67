package types

import "fmt"

// StateDiff represents the line-level differences between two schema states.
//
// Schema states are canonical dumps, so every line stands for a column, key,
// constraint or statement fragment. A diff is computed from the earlier
// (previous) state towards the later (current) one.
//
// # Example Usage
//
//	diff := schemadiff.Compare(previous, current)
//	if diff.HasChanges() {
//		fmt.Println(diff.Summary())
//	}
type StateDiff struct {
	// LinesRemoved contains lines present in the previous state but missing
	// from the current one, in previous-state order
	LinesRemoved []string `json:"lines_removed"`

	// LinesAdded contains lines present in the current state but missing from
	// the previous one, in current-state order
	LinesAdded []string `json:"lines_added"`
}

// HasChanges reports whether the two states differ.
func (d *StateDiff) HasChanges() bool {
	return len(d.LinesRemoved) > 0 || len(d.LinesAdded) > 0
}

// Summary returns a one-line description suitable for logs.
func (d *StateDiff) Summary() string {
	if !d.HasChanges() {
		return "no changes"
	}
	return fmt.Sprintf("%d line(s) removed, %d line(s) added", len(d.LinesRemoved), len(d.LinesAdded))
}
