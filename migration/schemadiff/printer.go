package schemadiff

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/stokaro/migcheck/dbschema/types"
	"github.com/stokaro/migcheck/migration/schemadiff/internal/compare"
)

// contextLines is the number of unchanged lines shown around a change.
const contextLines = 3

// TextPrinter writes a human readable diff of two schema states.
type TextPrinter struct {
	w       io.Writer
	removed *color.Color
	added   *color.Color
	header  *color.Color
	hunk    *color.Color
}

// NewTextPrinter creates a printer writing to w. Colors are disabled when
// noColor is set, independently of the terminal detection done by
// fatih/color.
func NewTextPrinter(w io.Writer, noColor bool) *TextPrinter {
	p := &TextPrinter{
		w:       w,
		removed: color.New(color.FgRed),
		added:   color.New(color.FgGreen),
		header:  color.New(color.FgYellow, color.Bold),
		hunk:    color.New(color.FgCyan),
	}
	if noColor {
		p.removed.DisableColor()
		p.added.DisableColor()
		p.header.DisableColor()
		p.hunk.DisableColor()
	}
	return p
}

// DisplayDiff prints the differences between the state before a migration
// was applied and the state after it was rolled back. Write errors are
// ignored.
func (p *TextPrinter) DisplayDiff(previous, current types.State) {
	diff := Compare(previous, current)

	_, _ = p.header.Fprintf(p.w, "Schema before migration differs from schema after rollback (%s)\n", diff.Summary())
	if !diff.HasChanges() {
		return
	}

	hunks := compare.Hunks(splitLines(previous), splitLines(current), contextLines)
	for _, h := range hunks {
		_, _ = p.hunk.Fprintf(p.w, "@@ -%d,%d +%d,%d @@\n", h.PreviousStart, h.PreviousCount, h.CurrentStart, h.CurrentCount)
		for _, line := range h.Lines {
			switch line.Op {
			case compare.OpRemove:
				_, _ = p.removed.Fprintf(p.w, "-%s\n", line.Text)
			case compare.OpAdd:
				_, _ = p.added.Fprintf(p.w, "+%s\n", line.Text)
			default:
				_, _ = fmt.Fprintf(p.w, " %s\n", line.Text)
			}
		}
	}
}
