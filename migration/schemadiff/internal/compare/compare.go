// Package compare holds the line matching used by schemadiff.
package compare

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/stokaro/migcheck/migration/schemadiff/types"
)

// Line operations of a Hunk.
const (
	OpEqual  = ' '
	OpRemove = '-'
	OpAdd    = '+'
)

// Line is one rendered line of a hunk.
type Line struct {
	Op   byte
	Text string
}

// Hunk is a group of changes with surrounding context. Starts are 1-based
// like unified diff headers.
type Hunk struct {
	PreviousStart, PreviousCount int
	CurrentStart, CurrentCount   int
	Lines                        []Line
}

// newMatcher disables the popularity heuristic: blank lines and closing
// parens are frequent in dumps and must still anchor the match.
func newMatcher(previous, current []string) *difflib.SequenceMatcher {
	return difflib.NewMatcherWithJunk(previous, current, false, nil)
}

// Lines records in diff the lines that have to be removed from previous and
// added to reach current. A moved line shows up as both removed and added.
func Lines(previous, current []string, diff *types.StateDiff) {
	for _, op := range newMatcher(previous, current).GetOpCodes() {
		switch op.Tag {
		case 'r':
			diff.LinesRemoved = append(diff.LinesRemoved, previous[op.I1:op.I2]...)
			diff.LinesAdded = append(diff.LinesAdded, current[op.J1:op.J2]...)
		case 'd':
			diff.LinesRemoved = append(diff.LinesRemoved, previous[op.I1:op.I2]...)
		case 'i':
			diff.LinesAdded = append(diff.LinesAdded, current[op.J1:op.J2]...)
		}
	}
}

// Hunks groups the changes from previous to current with up to context
// unchanged lines around each of them.
func Hunks(previous, current []string, context int) []Hunk {
	var hunks []Hunk
	for _, group := range newMatcher(previous, current).GetGroupedOpCodes(context) {
		first, last := group[0], group[len(group)-1]
		h := Hunk{
			PreviousStart: first.I1 + 1,
			PreviousCount: last.I2 - first.I1,
			CurrentStart:  first.J1 + 1,
			CurrentCount:  last.J2 - first.J1,
		}
		for _, op := range group {
			if op.Tag == 'e' {
				for _, text := range previous[op.I1:op.I2] {
					h.Lines = append(h.Lines, Line{Op: OpEqual, Text: text})
				}
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				for _, text := range previous[op.I1:op.I2] {
					h.Lines = append(h.Lines, Line{Op: OpRemove, Text: text})
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for _, text := range current[op.J1:op.J2] {
					h.Lines = append(h.Lines, Line{Op: OpAdd, Text: text})
				}
			}
		}
		hunks = append(hunks, h)
	}
	return hunks
}
