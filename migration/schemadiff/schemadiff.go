// Package schemadiff keeps the two most recent schema snapshots of a database
// and reports how they differ.
package schemadiff

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/migcheck/dbschema/types"
	"github.com/stokaro/migcheck/migration/schemadiff/internal/compare"
	difftypes "github.com/stokaro/migcheck/migration/schemadiff/types"
)

// Compare returns the line-level differences from previous to current.
func Compare(previous, current types.State) *difftypes.StateDiff {
	diff := &difftypes.StateDiff{}
	if previous.Equal(current) {
		return diff
	}
	compare.Lines(splitLines(previous), splitLines(current), diff)
	return diff
}

// splitLines keeps whitespace so that Compare agrees with State.Equal.
func splitLines(s types.State) []string {
	if s.String() == "" {
		return nil
	}
	return strings.Split(s.String(), "\n")
}

// Comparer holds a two-slot history of snapshots taken by a dumper. It is
// the only writer of that history and is not meant for concurrent use.
type Comparer struct {
	dumper   types.Dumper
	previous types.State
	current  types.State
}

// NewComparer creates a comparer with an empty history.
func NewComparer(dumper types.Dumper) *Comparer {
	return &Comparer{dumper: dumper}
}

// SaveState takes a new snapshot: current moves to previous and the new
// snapshot becomes current. On error the history is left untouched.
func (c *Comparer) SaveState(ctx context.Context) error {
	state, err := c.dumper.Dump(ctx)
	if err != nil {
		return fmt.Errorf("failed to dump schema: %w", err)
	}
	c.previous = c.current
	c.current = state
	return nil
}

// StatesEqual reports whether the two last snapshots are textually equal.
func (c *Comparer) StatesEqual() bool {
	return c.current.Equal(c.previous)
}

// CurrentState returns the latest snapshot.
func (c *Comparer) CurrentState() types.State {
	return c.current
}

// PreviousState returns the snapshot taken before the latest one.
func (c *Comparer) PreviousState() types.State {
	return c.previous
}

// Diff compares the two last snapshots.
func (c *Comparer) Diff() *difftypes.StateDiff {
	return Compare(c.previous, c.current)
}
