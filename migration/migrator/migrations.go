package migrator

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io/fs"

	"github.com/stokaro/migcheck/core/sqlutil"
)

//go:embed base/schema.sql
var migrationsSchemaSQL string

//go:embed base/get_version.sql
var getVersionSQL string

//go:embed base/applied_versions.sql
var appliedVersionsSQL string

//go:embed base/record_migration.sql
var recordMigrationSQL string

//go:embed base/delete_migration.sql
var deleteMigrationSQL string

//go:embed base/drop_schema.sql
var dropSchemaSQL string

// Execer executes statements inside the transaction of a migration.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MigrationFunc represents a migration step executed inside a transaction
type MigrationFunc func(context.Context, Execer) error

// SplitSQLStatements splits a SQL script into individual statements.
// MySQL doesn't accept multiple statements in one Exec call unless
// multiStatements is enabled, so scripts are always executed one statement
// at a time.
func SplitSQLStatements(sql string) []string {
	return sqlutil.SplitSQLStatements(sqlutil.StripComments(sql))
}

// MigrationFuncFromSQLFilename returns a migration function that reads SQL from a file
// in the provided filesystem and executes it statement by statement
func MigrationFuncFromSQLFilename(filename string, fsys fs.FS) MigrationFunc {
	return func(ctx context.Context, tx Execer) error {
		script, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		return executeSQLStatements(ctx, tx, string(script))
	}
}

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(_ context.Context, _ Execer) error {
	return nil
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// CreateMigrationFromSQL creates a migration from SQL strings
// This is useful for programmatically creating migrations
func CreateMigrationFromSQL(version int, description, upSQL, downSQL string) *Migration {
	return &Migration{
		Version:     version,
		Description: description,
		Up: func(ctx context.Context, tx Execer) error {
			return executeSQLStatements(ctx, tx, upSQL)
		},
		Down: func(ctx context.Context, tx Execer) error {
			return executeSQLStatements(ctx, tx, downSQL)
		},
	}
}

// executeSQLStatements splits SQL into individual statements and executes them
func executeSQLStatements(ctx context.Context, tx Execer, script string) error {
	for _, stmt := range SplitSQLStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
