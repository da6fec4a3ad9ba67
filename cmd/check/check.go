package check

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/migcheck/cmd/internal/cliutil"
	"github.com/stokaro/migcheck/config"
	"github.com/stokaro/migcheck/dbschema"
	"github.com/stokaro/migcheck/dbschema/detect"
	"github.com/stokaro/migcheck/migration/checker"
	"github.com/stokaro/migcheck/migration/gomigrate"
	"github.com/stokaro/migcheck/migration/migrator"
	"github.com/stokaro/migcheck/migration/schemadiff"
)

const (
	migrationsDirFlag   = "migrations-dir"
	driverFlag          = "driver"
	migrationsTableFlag = "migrations-table"
	noColorFlag         = "no-color"
)

func checkFlags() map[string]cobraflags.Flag {
	defaults := config.DefaultCheckOptions()
	flags := cliutil.ConnectionFlags()
	flags[migrationsDirFlag] = &cobraflags.StringFlag{
		Name:  migrationsDirFlag,
		Value: defaults.MigrationsDir,
		Usage: "Directory with NNN_name.up.sql and NNN_name.down.sql files",
	}
	flags[driverFlag] = &cobraflags.StringFlag{
		Name:  driverFlag,
		Value: defaults.Driver,
		Usage: "Migration runner (ptah, golang-migrate)",
	}
	flags[migrationsTableFlag] = &cobraflags.StringFlag{
		Name:  migrationsTableFlag,
		Value: "",
		Usage: "Bookkeeping table used by the migration runner (defaults to the runner's own)",
	}
	flags[noColorFlag] = &cobraflags.BoolFlag{
		Name:  noColorFlag,
		Value: false,
		Usage: "Disable coloured diff output",
	}
	return flags
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every down migration reverts its up migration",
		Long: `Run every migration against an empty scratch database one step at a time.
For each step the schema is dumped, the up and down migrations are applied and
the schema is dumped again. Any difference between the two dumps is printed and
the command fails.

The database must be empty. On success every migration is rolled back and the
runner's bookkeeping table is dropped. On failure the database is left as is.

Examples:
  migcheck check --db-url postgres://localhost/scratch --migrations-dir ./migrations
  migcheck check --db-url mysql://root@localhost/scratch --driver golang-migrate`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         checkCommand,
	}

	cobraflags.RegisterMap(checkCmd, checkFlags())
	return checkCmd
}

func checkCommand(cmd *cobra.Command, _ []string) error {
	opts, err := cliutil.LoadOptions(cmd)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if info, err := os.Stat(opts.MigrationsDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory does not exist: %s", opts.MigrationsDir)
	}

	conn, err := cliutil.Connect(opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := cliutil.Logger(cmd)
	migration, env, err := newRunner(conn, opts, logger)
	if err != nil {
		return err
	}

	detector := detect.New(conn).WithLogger(logger)
	dumper := dbschema.NewDumper(conn, detector, dbschema.DumpOptions{PostgresSchema: opts.PostgresSchema}).
		WithLogger(logger)
	printer := schemadiff.NewTextPrinter(cmd.OutOrStdout(), opts.NoColor)

	c := checker.New(env, migration, schemadiff.NewComparer(dumper), printer,
		checker.WithLogger(logger),
		checker.WithDetector(detector),
	)
	report, err := c.CheckWithReport(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) checked on %s: every down migration restores the schema\n",
		report.Migrations, report.Database)
	return nil
}

// newRunner builds the migration and its environment for the selected driver.
func newRunner(conn *dbschema.DatabaseConnection, opts *config.CheckOptions, logger *slog.Logger) (checker.Migration, checker.Environment, error) {
	fsys := os.DirFS(opts.MigrationsDir)

	switch opts.Driver {
	case config.DriverGolangMigrate:
		d, err := gomigrate.New(conn, fsys, gomigrate.Options{
			MigrationsTable: opts.MigrationsTable,
			Schema:          opts.PostgresSchema,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	default:
		m, err := migrator.NewFSMigrator(conn, fsys)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading migrations: %w", err)
		}
		m = m.WithLogger(logger).WithTable(opts.MigrationsTable)
		return m, migrator.NewEnvironment(m), nil
	}
}
