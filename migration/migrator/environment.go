package migrator

import (
	"context"
	"fmt"
)

// Environment prepares a database for a migration check and restores it to
// the empty state afterwards.
type Environment struct {
	m *Migrator
}

// NewEnvironment creates an environment backed by the migrator's
// bookkeeping table.
func NewEnvironment(m *Migrator) *Environment {
	return &Environment{m: m}
}

// Prepare creates the migrations table.
func (e *Environment) Prepare(ctx context.Context) error {
	return e.m.Initialize(ctx)
}

// Cleanup rolls back every applied migration and drops the migrations table.
func (e *Environment) Cleanup(ctx context.Context) error {
	if err := e.m.MigrateDownTo(ctx, 0); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return e.m.Drop(ctx)
}
