// Package config provides configuration options for the migration checker.
//
// Options can be built programmatically through DefaultCheckOptions or loaded
// from a migcheck.yaml file, MIGCHECK_* environment variables and a local .env
// file through Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Migration drivers understood by the check command.
const (
	DriverPtah          = "ptah"
	DriverGolangMigrate = "golang-migrate"
)

// Configuration keys. Environment variables use the upper-cased key with the
// MIGCHECK_ prefix, e.g. MIGCHECK_DATABASE_URL.
const (
	KeyDatabaseURL     = "database_url"
	KeyMigrationsDir   = "migrations_dir"
	KeyDriver          = "driver"
	KeyPostgresSchema  = "postgres_schema"
	KeyPostgresDriver  = "postgres_driver"
	KeyMigrationsTable = "migrations_table"
	KeyNoColor         = "no_color"
)

const (
	configName = "migcheck"
	envPrefix  = "MIGCHECK"
	dotEnvFile = ".env"
)

// ErrInvalidOptions is returned by Validate for any rejected option.
var ErrInvalidOptions = errors.New("invalid options")

// CheckOptions contains everything needed to run a migration check against a
// live database.
type CheckOptions struct {
	// DatabaseURL is the connection URL of a scratch database. The database
	// must be empty when the check starts.
	DatabaseURL string

	// MigrationsDir holds the NNN_name.up.sql / NNN_name.down.sql pairs.
	MigrationsDir string

	// Driver selects the migration runner: DriverPtah or DriverGolangMigrate.
	Driver string

	// PostgresSchema restricts PostgreSQL dumps to a single schema.
	PostgresSchema string

	// PostgresDriver is the database/sql driver used for postgres:// URLs
	// ("pgx" or "pq").
	PostgresDriver string

	// MigrationsTable overrides the bookkeeping table of the selected runner.
	// Empty means the runner's default.
	MigrationsTable string

	// NoColor disables coloured diff output.
	NoColor bool
}

// DefaultCheckOptions returns options with defaults for everything but the
// database URL.
func DefaultCheckOptions() *CheckOptions {
	return &CheckOptions{
		MigrationsDir:  "./migrations",
		Driver:         DriverPtah,
		PostgresSchema: "public",
		PostgresDriver: "pgx",
	}
}

// SetDefaults registers the DefaultCheckOptions values on v.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultCheckOptions()
	v.SetDefault(KeyMigrationsDir, defaults.MigrationsDir)
	v.SetDefault(KeyDriver, defaults.Driver)
	v.SetDefault(KeyPostgresSchema, defaults.PostgresSchema)
	v.SetDefault(KeyPostgresDriver, defaults.PostgresDriver)
	v.SetDefault(KeyMigrationsTable, defaults.MigrationsTable)
	v.SetDefault(KeyNoColor, defaults.NoColor)
}

// Load reads the options from v. A .env file in the working directory is
// loaded into the environment first without overriding variables that are
// already set. A migcheck.yaml in the working directory is read when present;
// a missing file is not an error. DATABASE_URL is used when no database URL
// was configured otherwise.
func Load(v *viper.Viper) (*CheckOptions, error) {
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
		}
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	opts := &CheckOptions{
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		MigrationsDir:   v.GetString(KeyMigrationsDir),
		Driver:          strings.ToLower(v.GetString(KeyDriver)),
		PostgresSchema:  v.GetString(KeyPostgresSchema),
		PostgresDriver:  strings.ToLower(v.GetString(KeyPostgresDriver)),
		MigrationsTable: v.GetString(KeyMigrationsTable),
		NoColor:         v.GetBool(KeyNoColor),
	}
	if opts.DatabaseURL == "" {
		opts.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	return opts, nil
}

// Validate reports the first problem found in the options.
func (o *CheckOptions) Validate() error {
	if o.DatabaseURL == "" {
		return fmt.Errorf("%w: database URL is required", ErrInvalidOptions)
	}
	if o.MigrationsDir == "" {
		return fmt.Errorf("%w: migrations directory is required", ErrInvalidOptions)
	}
	switch o.Driver {
	case DriverPtah, DriverGolangMigrate:
	default:
		return fmt.Errorf("%w: unknown migration driver %q (expected %s or %s)",
			ErrInvalidOptions, o.Driver, DriverPtah, DriverGolangMigrate)
	}
	switch o.PostgresDriver {
	case "pgx", "pq":
	default:
		return fmt.Errorf("%w: unknown postgres driver %q (expected pgx or pq)", ErrInvalidOptions, o.PostgresDriver)
	}
	return nil
}
