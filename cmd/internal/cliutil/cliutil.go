// Package cliutil holds the pieces shared by the migcheck subcommands.
package cliutil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stokaro/migcheck/config"
	"github.com/stokaro/migcheck/dbschema"
)

// Flags common to every subcommand.
const (
	DBURLFlag          = "db-url"
	SchemaFlag         = "schema"
	PostgresDriverFlag = "postgres-driver"
	VerboseFlag        = "verbose"
)

// ConnectionFlags returns a fresh set of the flags needed to reach a database.
func ConnectionFlags() map[string]cobraflags.Flag {
	defaults := config.DefaultCheckOptions()
	return map[string]cobraflags.Flag{
		DBURLFlag: &cobraflags.StringFlag{
			Name:  DBURLFlag,
			Value: "",
			Usage: "Database URL (postgres://, mysql://, mariadb://, sqlite://). Falls back to MIGCHECK_DATABASE_URL and DATABASE_URL",
		},
		SchemaFlag: &cobraflags.StringFlag{
			Name:  SchemaFlag,
			Value: defaults.PostgresSchema,
			Usage: "PostgreSQL schema to dump",
		},
		PostgresDriverFlag: &cobraflags.StringFlag{
			Name:  PostgresDriverFlag,
			Value: defaults.PostgresDriver,
			Usage: "database/sql driver for postgres URLs (pgx, pq)",
		},
		VerboseFlag: &cobraflags.BoolFlag{
			Name:  VerboseFlag,
			Value: false,
			Usage: "Log progress to stderr",
		},
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	DBURLFlag:          config.KeyDatabaseURL,
	SchemaFlag:         config.KeyPostgresSchema,
	PostgresDriverFlag: config.KeyPostgresDriver,
	"migrations-dir":   config.KeyMigrationsDir,
	"driver":           config.KeyDriver,
	"migrations-table": config.KeyMigrationsTable,
	"no-color":         config.KeyNoColor,
}

// LoadOptions binds the flags registered on cmd to their configuration keys
// and loads the options. Flags given on the command line win over the
// environment and the config file.
func LoadOptions(cmd *cobra.Command) (*config.CheckOptions, error) {
	v := viper.New()
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return config.Load(v)
}

// Connect opens and verifies the connection described by opts.
func Connect(opts *config.CheckOptions) (*dbschema.DatabaseConnection, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database URL is required (use --%s)", config.ErrInvalidOptions, DBURLFlag)
	}
	conn, err := dbschema.ConnectToDatabase(opts.DatabaseURL, dbschema.WithPostgresDriver(opts.PostgresDriver))
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return conn, nil
}

// Logger returns a text logger writing to w, or a discarding one unless
// verbose output was requested.
func Logger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool(VerboseFlag)
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return NewTextLogger(cmd.ErrOrStderr())
}

// NewTextLogger returns a debug level text logger writing to w.
func NewTextLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
