// Package checker verifies that every migration's down step exactly reverts
// its up step.
//
// For each pending migration the checker snapshots the schema, applies the
// migration, rolls it back and snapshots again. The two snapshots must be
// identical; the migration is then re-applied so the next one starts from
// the cumulative schema. The check requires an empty database.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stokaro/migcheck/dbschema/detect"
	"github.com/stokaro/migcheck/dbschema/types"
)

var (
	// ErrDatabaseNotEmpty is returned when the database already holds schema
	// objects before the check starts.
	ErrDatabaseNotEmpty = errors.New("the check should only be run on an empty database")

	// ErrSchemaDiffers is returned when rolling a migration back does not
	// restore the schema it started from.
	ErrSchemaDiffers = errors.New("the up and down migrations have resulted in a different schema state after rollback")
)

// Migration steps through the pending migrations one at a time.
type Migration interface {
	// CanUp reports whether there is another migration to apply.
	CanUp(ctx context.Context) (bool, error)
	// Up applies the next migration.
	Up(ctx context.Context) error
	// Down rolls back the last applied migration.
	Down(ctx context.Context) error
}

// Environment prepares the database before the check and cleans it up after
// a successful one. Both calls must be idempotent.
type Environment interface {
	Prepare(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Printer shows the difference between two states. It must not fail.
type Printer interface {
	DisplayDiff(previous, current types.State)
}

// StateComparer keeps the two most recent schema snapshots.
type StateComparer interface {
	SaveState(ctx context.Context) error
	StatesEqual() bool
	CurrentState() types.State
	PreviousState() types.State
}

// Detector reports the database kind and version for logging.
type Detector interface {
	Detect(ctx context.Context) (detect.Result, error)
}

// DivergenceError is returned when a migration fails the round trip. It
// carries both snapshots.
type DivergenceError struct {
	// Step is the 1-based position of the failing migration in this run.
	Step     int
	Previous types.State
	Current  types.State
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("migration #%d: %s", e.Step, ErrSchemaDiffers)
}

// Unwrap makes errors.Is(err, ErrSchemaDiffers) hold.
func (e *DivergenceError) Unwrap() error {
	return ErrSchemaDiffers
}

// Report summarises a successful check.
type Report struct {
	// Migrations is the number of migrations that passed the round trip.
	Migrations int
	// Database is the detected database, when a detector was configured.
	Database *detect.Result
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger receiving progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithDetector makes the checker log the database kind and version.
func WithDetector(detector Detector) Option {
	return func(c *Checker) {
		c.detector = detector
	}
}

// Checker runs the up/down round trip for every pending migration.
type Checker struct {
	env       Environment
	migration Migration
	comparer  StateComparer
	printer   Printer
	detector  Detector
	logger    *slog.Logger
}

// New creates a checker.
func New(env Environment, migration Migration, comparer StateComparer, printer Printer, opts ...Option) *Checker {
	c := &Checker{
		env:       env,
		migration: migration,
		comparer:  comparer,
		printer:   printer,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs the whole check.
func (c *Checker) Check(ctx context.Context) error {
	_, err := c.CheckWithReport(ctx)
	return err
}

// CheckWithReport runs the whole check and reports what was validated.
//
// On divergence the printer is called with both snapshots before a
// *DivergenceError is returned, and the environment is left as is for
// inspection.
func (c *Checker) CheckWithReport(ctx context.Context) (*Report, error) {
	c.logger.Info("Migration check started")
	report := &Report{}

	if c.detector != nil {
		result, err := c.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to detect database: %w", err)
		}
		version := result.Version
		if version == "" {
			version = "n/a"
		}
		c.logger.Info("Database detected", "type", result.Kind.String(), "version", version)
		report.Database = &result
	}

	c.logger.Info("Checking if database is empty before running migrations")
	empty, err := c.isEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if !empty {
		return nil, ErrDatabaseNotEmpty
	}

	c.logger.Info("Preparing migration environment")
	if err := c.env.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare environment: %w", err)
	}

	for {
		ok, err := c.canMigrate(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		step := report.Migrations + 1

		if err := c.roundTrip(ctx, step); err != nil {
			return nil, err
		}
		report.Migrations = step

		c.logger.Info("Applying the up migration before the next step", "step", step)
		if err := c.migration.Up(ctx); err != nil {
			return nil, fmt.Errorf("failed to re-apply migration #%d: %w", step, err)
		}
	}

	c.logger.Info("Cleaning up migration environment")
	if err := c.env.Cleanup(ctx); err != nil {
		return nil, fmt.Errorf("failed to clean up environment: %w", err)
	}

	c.logger.Info("Migration check completed successfully", "migrations", report.Migrations)
	return report, nil
}

// roundTrip applies and reverts one migration and compares the schema before
// and after.
func (c *Checker) roundTrip(ctx context.Context, step int) error {
	c.logger.Info("Saving the current state", "step", step)
	if err := c.comparer.SaveState(ctx); err != nil {
		return fmt.Errorf("failed to save state before migration #%d: %w", step, err)
	}

	c.logger.Info("Applying the up migration", "step", step)
	if err := c.migration.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migration #%d: %w", step, err)
	}

	c.logger.Info("Applying the down migration", "step", step)
	if err := c.migration.Down(ctx); err != nil {
		return fmt.Errorf("failed to roll back migration #%d: %w", step, err)
	}

	c.logger.Info("Saving the state after up and down migrations", "step", step)
	if err := c.comparer.SaveState(ctx); err != nil {
		return fmt.Errorf("failed to save state after migration #%d: %w", step, err)
	}

	c.logger.Info("Comparing the states", "step", step)
	if !c.comparer.StatesEqual() {
		c.logger.Error("The down migration has resulted in a different schema state after rollback", "step", step)
		previous, current := c.comparer.PreviousState(), c.comparer.CurrentState()
		c.printer.DisplayDiff(previous, current)
		return &DivergenceError{Step: step, Previous: previous, Current: current}
	}

	c.logger.Info("The up and down migrations have been applied successfully without any state changes", "step", step)
	return nil
}

func (c *Checker) canMigrate(ctx context.Context) (bool, error) {
	c.logger.Info("Checking if another migration can be applied")
	ok, err := c.migration.CanUp(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check for pending migrations: %w", err)
	}
	if !ok {
		c.logger.Info("There are no migrations available")
	}
	return ok, nil
}

func (c *Checker) isEmpty(ctx context.Context) (bool, error) {
	if err := c.comparer.SaveState(ctx); err != nil {
		return false, fmt.Errorf("failed to save initial state: %w", err)
	}
	return c.comparer.CurrentState().IsEmpty(), nil
}
