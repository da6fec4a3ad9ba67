// Package gomigrate drives golang-migrate migration directories one step at
// a time, so that they can be checked the same way as native migrations.
package gomigrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/stokaro/migcheck/core/platform"
	"github.com/stokaro/migcheck/dbschema"
)

// DefaultMigrationsTable is the golang-migrate version table name.
const DefaultMigrationsTable = "schema_migrations"

var (
	// ErrNotPrepared is returned when stepping before Prepare.
	ErrNotPrepared = errors.New("migration driver is not prepared")

	// ErrDirty is returned when a previous migration failed half way.
	ErrDirty = errors.New("database is in a dirty migration state")
)

// Stepper is the subset of *migrate.Migrate used to step through migrations.
type Stepper interface {
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

// OpenFunc creates a Stepper once the environment is prepared.
type OpenFunc func(src source.Driver) (Stepper, error)

// Driver steps through a golang-migrate source directory. It implements both
// the migration and the environment side of a check: the version table is
// only created by Prepare, so the database stays empty until then.
type Driver struct {
	src     source.Driver
	open    OpenFunc
	cleanup func(ctx context.Context) error
	stepper Stepper
	logger  *slog.Logger
}

// Options configures New.
type Options struct {
	// MigrationsTable overrides DefaultMigrationsTable.
	MigrationsTable string
	// Schema is the PostgreSQL schema holding the version table.
	Schema string
	// Logger receives golang-migrate's verbose output at debug level.
	Logger *slog.Logger
}

// New creates a driver for the migrations in fsys running against conn.
func New(conn *dbschema.DatabaseConnection, fsys fs.FS, opts Options) (*Driver, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	table := opts.MigrationsTable
	if table == "" {
		table = DefaultMigrationsTable
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	info := conn.Info()
	open := func(src source.Driver) (Stepper, error) {
		db, err := databaseDriver(conn, table, opts.Schema)
		if err != nil {
			return nil, err
		}
		m, err := migrate.NewWithInstance("iofs", src, info.Driver, db)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrate instance: %w", err)
		}
		m.Log = &migrateLogger{logger: logger}
		return m, nil
	}

	d := NewWithStepper(src, open, logger)
	d.cleanup = func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteTable(conn.Kind(), table))
		return err
	}
	return d, nil
}

// NewWithStepper creates a driver over an already opened source and a custom
// stepper factory.
func NewWithStepper(src source.Driver, open OpenFunc, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Driver{
		src:     src,
		open:    open,
		cleanup: func(context.Context) error { return nil },
		logger:  logger,
	}
}

func databaseDriver(conn *dbschema.DatabaseConnection, table, schema string) (database.Driver, error) {
	info := conn.Info()
	switch conn.Kind() {
	case platform.PostgreSQL:
		if info.Driver == "pgx" {
			return pgxmigrate.WithInstance(conn.DB(), &pgxmigrate.Config{MigrationsTable: table, SchemaName: schema})
		}
		return postgres.WithInstance(conn.DB(), &postgres.Config{MigrationsTable: table, SchemaName: schema})
	case platform.MySQL, platform.MariaDB:
		return mysql.WithInstance(conn.DB(), &mysql.Config{MigrationsTable: table})
	case platform.SQLite:
		return sqlite.WithInstance(conn.DB(), &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("golang-migrate driver does not support %s", conn.Kind())
	}
}

func quoteTable(kind platform.Kind, table string) string {
	if kind.IsMySQLFamily() {
		return "`" + strings.ReplaceAll(table, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
}

// Prepare opens the migrate instance, which creates the version table.
func (d *Driver) Prepare(ctx context.Context) error {
	if d.stepper != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stepper, err := d.open(d.src)
	if err != nil {
		return err
	}
	d.stepper = stepper
	return nil
}

// Cleanup rolls back everything and removes the version table.
func (d *Driver) Cleanup(ctx context.Context) error {
	if d.stepper == nil {
		return nil
	}
	for {
		version, ok, err := d.version()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		d.logger.Info("Rolling back migration", "version", version)
		if err := d.step(ctx, -1); err != nil {
			return err
		}
	}
	if err := d.cleanup(ctx); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	d.stepper = nil
	return nil
}

// CanUp reports whether the source has a migration after the current version.
func (d *Driver) CanUp(ctx context.Context) (bool, error) {
	if d.stepper == nil {
		return false, ErrNotPrepared
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	version, ok, err := d.version()
	if err != nil {
		return false, err
	}
	if !ok {
		_, err = d.src.First()
	} else {
		_, err = d.src.Next(version)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read migration source: %w", err)
	}
	return true, nil
}

// Up applies the next migration.
func (d *Driver) Up(ctx context.Context) error {
	return d.step(ctx, 1)
}

// Down rolls back the current migration.
func (d *Driver) Down(ctx context.Context) error {
	return d.step(ctx, -1)
}

func (d *Driver) step(ctx context.Context, n int) error {
	if d.stepper == nil {
		return ErrNotPrepared
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.stepper.Steps(n); err != nil {
		return fmt.Errorf("failed to step %+d: %w", n, err)
	}
	return nil
}

// version returns the applied version; ok is false when nothing is applied.
func (d *Driver) version() (uint, bool, error) {
	version, dirty, err := d.stepper.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	if dirty {
		return version, true, fmt.Errorf("%w: version %d", ErrDirty, version)
	}
	return version, true, nil
}

// migrateLogger forwards golang-migrate's log lines to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
