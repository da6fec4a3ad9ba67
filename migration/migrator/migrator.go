// Package migrator applies versioned SQL migrations and records them in a
// bookkeeping table. Besides whole-range migrations it can step one
// migration at a time, which is what the up/down check drives.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sort"
	"strconv"

	"github.com/stokaro/migcheck/dbschema"
)

// DefaultMigrationsTable is the bookkeeping table name.
const DefaultMigrationsTable = "schema_migrations"

// ErrNoAppliedMigrations is returned when a rollback is requested on a
// database without applied migrations.
var ErrNoAppliedMigrations = errors.New("no applied migrations")

// MigrationStatus represents the current state of migrations
type MigrationStatus struct {
	CurrentVersion    int   `json:"current_version"`
	PendingMigrations []int `json:"pending_migrations"`
	TotalMigrations   int   `json:"total_migrations"`
	HasPendingChanges bool  `json:"has_pending_changes"`
}

// Migrator handles database migrations
type Migrator struct {
	conn              *dbschema.DatabaseConnection
	migrationProvider MigrationProvider
	table             string
	initialized       bool
	logger            *slog.Logger
}

// NewFSMigrator creates a new migrator that loads migrations from a filesystem.
// It scans the provided filesystem for migration files following the naming convention
// NNNNNNNNNN_description.up.sql and NNNNNNNNNN_description.down.sql.
func NewFSMigrator(conn *dbschema.DatabaseConnection, fsys fs.FS) (*Migrator, error) {
	provider, err := NewFSMigrationProvider(fsys)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn, provider), nil
}

// NewMigrator creates a new migrator with the given database connection
func NewMigrator(conn *dbschema.DatabaseConnection, provider MigrationProvider) *Migrator {
	return &Migrator{
		conn:              conn,
		migrationProvider: provider,
		table:             DefaultMigrationsTable,
		logger:            slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithTable sets the bookkeeping table name. Empty means DefaultMigrationsTable.
func (m *Migrator) WithTable(name string) *Migrator {
	tmp := *m
	tmp.table = name
	if tmp.table == "" {
		tmp.table = DefaultMigrationsTable
	}
	tmp.initialized = false
	return &tmp
}

// Table returns the bookkeeping table name.
func (m *Migrator) Table() string {
	return m.table
}

// MigrationProvider returns the migration provider
func (m *Migrator) MigrationProvider() MigrationProvider {
	return m.migrationProvider
}

func (m *Migrator) sql(template string) string {
	return m.conn.Rebind(fmt.Sprintf(template, m.table))
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	if m.initialized {
		return nil
	}
	if _, err := m.conn.ExecContext(ctx, m.sql(migrationsSchemaSQL)); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	m.initialized = true
	return nil
}

// Drop removes the migrations table.
func (m *Migrator) Drop(ctx context.Context) error {
	if _, err := m.conn.ExecContext(ctx, m.sql(dropSchemaSQL)); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	m.initialized = false
	return nil
}

// GetCurrentVersion returns the current migration version from the database
func (m *Migrator) GetCurrentVersion(ctx context.Context) (int, error) {
	if err := m.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	rows, err := m.conn.Execute(ctx, m.sql(getVersionSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	version, err := strconv.Atoi(rows[0].First())
	if err != nil {
		return 0, fmt.Errorf("failed to parse current version: %w", err)
	}
	return version, nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	rows, err := m.conn.Execute(ctx, m.sql(appliedVersionsSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make([]int, 0, len(rows))
	for _, row := range rows {
		version, err := strconv.Atoi(row.First())
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// GetPendingMigrations returns a list of pending migration versions
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]int, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var pending []int
	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version > currentVersion {
			pending = append(pending, migration.Version)
		}
	}

	sort.Ints(pending)
	return pending, nil
}

// GetMigrationStatus returns information about the current migration status
func (m *Migrator) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending migrations: %w", err)
	}

	return &MigrationStatus{
		CurrentVersion:    currentVersion,
		PendingMigrations: pendingMigrations,
		TotalMigrations:   len(m.migrationProvider.Migrations()),
		HasPendingChanges: len(pendingMigrations) > 0,
	}, nil
}

// CanUp reports whether there is a migration newer than the current version.
func (m *Migrator) CanUp(ctx context.Context) (bool, error) {
	next, err := m.nextMigration(ctx)
	if err != nil {
		return false, err
	}
	return next != nil, nil
}

// Up applies exactly one migration: the first one newer than the current
// version. It is a no-op when nothing is pending.
func (m *Migrator) Up(ctx context.Context) error {
	next, err := m.nextMigration(ctx)
	if err != nil {
		return err
	}
	if next == nil {
		m.logger.Info("No pending migrations")
		return nil
	}
	return m.apply(ctx, next)
}

// Down rolls back exactly one migration: the one recorded as the current
// version.
func (m *Migrator) Down(ctx context.Context) error {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		return ErrNoAppliedMigrations
	}
	migration, ok := m.find(currentVersion)
	if !ok {
		return fmt.Errorf("applied migration %d is not known to the provider", currentVersion)
	}
	return m.revert(ctx, migration)
}

func (m *Migrator) nextMigration(ctx context.Context) (*Migration, error) {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version > currentVersion {
			return migration, nil
		}
	}
	return nil, nil
}

func (m *Migrator) find(version int) (*Migration, bool) {
	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version == version {
			return migration, true
		}
	}
	return nil, false
}

// MigrateUp migrates the database up to the latest version
func (m *Migrator) MigrateUp(ctx context.Context) error {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := m.migrationProvider.Migrations()
	m.logger.Info("Migrating up", "currentVersion", currentVersion, "totalMigrations", len(migrations))

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return err
		}
	}

	m.logger.Info("All migrations applied successfully")
	return nil
}

// MigrateDown migrates the database down to the previous version
func (m *Migrator) MigrateDown(ctx context.Context) error {
	return m.Down(ctx)
}

// MigrateDownTo migrates the database down to the specified target version
func (m *Migrator) MigrateDownTo(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if targetVersion >= currentVersion {
		m.logger.Info("Already at or below target version", "targetVersion", targetVersion, "currentVersion", currentVersion)
		return nil
	}

	migrations := slices.Clone(m.migrationProvider.Migrations())
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version > migrations[j].Version
	})

	m.logger.Info("Migrating down", "targetVersion", targetVersion, "currentVersion", currentVersion)
	for _, migration := range migrations {
		if migration.Version <= targetVersion || migration.Version > currentVersion {
			continue
		}
		if err := m.revert(ctx, migration); err != nil {
			return err
		}
	}

	m.logger.Info("Migrated down successfully", "targetVersion", targetVersion)
	return nil
}

// MigrateTo migrates the database to a specific version (up or down)
func (m *Migrator) MigrateTo(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	switch {
	case targetVersion == currentVersion:
		m.logger.Info("Already at target version", "version", targetVersion)
		return nil
	case targetVersion < currentVersion:
		return m.MigrateDownTo(ctx, targetVersion)
	}

	for _, migration := range m.migrationProvider.Migrations() {
		if migration.Version <= currentVersion || migration.Version > targetVersion {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return err
		}
	}
	m.logger.Info("Migrated successfully", "targetVersion", targetVersion)
	return nil
}

// apply runs the up step and records the version in one transaction.
func (m *Migrator) apply(ctx context.Context, migration *Migration) error {
	m.logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
	}
	if err := migration.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, m.sql(recordMigrationSQL), migration.Version, migration.Description); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for migration %d: %w", migration.Version, err)
	}

	m.logger.Info("Applied migration", "version", migration.Version, "description", migration.Description)
	return nil
}

// revert runs the down step and removes the version record in one transaction.
func (m *Migrator) revert(ctx context.Context, migration *Migration) error {
	m.logger.Info("Rolling back migration", "version", migration.Version, "description", migration.Description)

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
	}
	if err := migration.Down(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to revert migration %d: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx, m.sql(deleteMigrationSQL), migration.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration reversion %d: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for migration %d: %w", migration.Version, err)
	}

	m.logger.Info("Rolled back migration", "version", migration.Version, "description", migration.Description)
	return nil
}
