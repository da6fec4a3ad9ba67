package dbschema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stokaro/migcheck/core/platform"
	"github.com/stokaro/migcheck/dbschema/detect"
	"github.com/stokaro/migcheck/dbschema/mysql"
	"github.com/stokaro/migcheck/dbschema/postgres"
	"github.com/stokaro/migcheck/dbschema/sqlite"
	"github.com/stokaro/migcheck/dbschema/types"
)

// ErrUnsupportedDatabaseKind is returned when no dump generator exists for
// the detected database kind.
var ErrUnsupportedDatabaseKind = errors.New("unsupported database kind")

// DumpOptions tunes the per-dialect generators.
type DumpOptions struct {
	// PostgresSchema restricts PostgreSQL dumps to one schema. Empty means
	// postgres.DefaultSchema.
	PostgresSchema string
}

// NewDumperFor returns the generator for a database kind.
func NewDumperFor(kind platform.Kind, exec types.Executor, opts DumpOptions) (types.Dumper, error) {
	switch kind {
	case platform.MySQL, platform.MariaDB:
		return mysql.NewDumper(exec), nil
	case platform.PostgreSQL:
		return postgres.NewDumper(exec, opts.PostgresSchema), nil
	case platform.SQLite:
		return sqlite.NewDumper(exec), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseKind, kind)
	}
}

// KindDetector reports the kind of the database behind an executor.
type KindDetector interface {
	Detect(ctx context.Context) (detect.Result, error)
}

// Dumper detects the database kind on first use and delegates to the matching
// generator. The detected kind is remembered for the lifetime of the Dumper.
type Dumper struct {
	exec     types.Executor
	detector KindDetector
	opts     DumpOptions
	logger   *slog.Logger

	mu       sync.Mutex
	detected detect.Result
	dumper   types.Dumper
}

// NewDumper creates a dispatching dumper. A nil detector means the default
// strategy table run against exec.
func NewDumper(exec types.Executor, detector KindDetector, opts DumpOptions) *Dumper {
	if detector == nil {
		detector = detect.New(exec)
	}
	return &Dumper{
		exec:     exec,
		detector: detector,
		opts:     opts,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// WithLogger returns a copy of the dumper that logs the detection. A kind
// already resolved by d carries over to the copy.
func (d *Dumper) WithLogger(logger *slog.Logger) *Dumper {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Dumper{
		exec:     d.exec,
		detector: d.detector,
		opts:     d.opts,
		logger:   logger,
		detected: d.detected,
		dumper:   d.dumper,
	}
}

// Dump produces a snapshot with the generator matching the database kind.
func (d *Dumper) Dump(ctx context.Context) (types.State, error) {
	dumper, err := d.resolve(ctx)
	if err != nil {
		return types.State{}, err
	}
	return dumper.Dump(ctx)
}

// Detected returns the detection result once Dump has run successfully.
func (d *Dumper) Detected() (detect.Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected, d.dumper != nil
}

func (d *Dumper) resolve(ctx context.Context) (types.Dumper, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dumper != nil {
		return d.dumper, nil
	}

	result, err := d.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}
	dumper, err := NewDumperFor(result.Kind, d.exec, d.opts)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Database detected", "kind", result.Kind.String(), "version", result.Version)
	d.detected = result
	d.dumper = dumper
	return dumper, nil
}
