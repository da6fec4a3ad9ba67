// Package detect identifies the database product and version behind an
// executor by probing it with vendor specific version queries.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/stokaro/migcheck/core/platform"
	"github.com/stokaro/migcheck/dbschema/types"
)

// Strategy is a single probe: if Query answers with a first scalar that
// contains Keyword (case-insensitively), the database is Kind.
type Strategy struct {
	Kind    platform.Kind
	Query   string
	Keyword string
}

// strategies is the probe table in evaluation order. MariaDB goes before
// MySQL since both answer VERSION(); SQLite's "." matches any dotted version
// string so it has to run before the catch-all.
var strategies = []Strategy{
	{Kind: platform.Oracle, Query: "SELECT * FROM v$version", Keyword: "Oracle"},
	{Kind: platform.SQLite, Query: "SELECT sqlite_version()", Keyword: "."},
	{Kind: platform.SQLServer, Query: "SELECT @@VERSION", Keyword: "Microsoft"},
	{Kind: platform.PostgreSQL, Query: "SELECT version()", Keyword: "PostgreSQL"},
	{Kind: platform.MariaDB, Query: "SELECT VERSION()", Keyword: "MariaDB"},
	{Kind: platform.MySQL, Query: "SELECT VERSION()", Keyword: ""},
}

// Strategies returns a copy of the probe table in evaluation order.
func Strategies() []Strategy {
	return slices.Clone(strategies)
}

var versionPattern = regexp.MustCompile(`\d+\.\d+`)

// Result is the outcome of a detection. Version is in X.Y form, empty when
// the server response carried no recognizable version.
type Result struct {
	Kind    platform.Kind
	Version string
}

// String renders the result for logs, e.g. "MariaDB 10.11".
func (r Result) String() string {
	if r.Version == "" {
		return r.Kind.String()
	}
	return r.Kind.String() + " " + r.Version
}

// Detector runs the strategy table against an executor.
type Detector struct {
	exec   types.Executor
	logger *slog.Logger
}

// New creates a detector.
func New(exec types.Executor) *Detector {
	return &Detector{
		exec:   exec,
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger returns a copy of the detector that logs probe outcomes.
func (d *Detector) WithLogger(logger *slog.Logger) *Detector {
	cp := *d
	cp.logger = logger
	return &cp
}

// Detect returns the kind and version of the database. Probes that fail are
// skipped, except when the failure means the database is unreachable: then
// detection stops and the error is returned.
func (d *Detector) Detect(ctx context.Context) (Result, error) {
	for _, s := range strategies {
		result, ok, err := d.try(ctx, s)
		if err != nil {
			return Result{Kind: platform.Unknown}, err
		}
		if ok {
			return result, nil
		}
	}
	return Result{Kind: platform.Unknown}, nil
}

// Kind returns only the detected kind.
func (d *Detector) Kind(ctx context.Context) (platform.Kind, error) {
	r, err := d.Detect(ctx)
	return r.Kind, err
}

// Version returns only the detected version.
func (d *Detector) Version(ctx context.Context) (string, error) {
	r, err := d.Detect(ctx)
	return r.Version, err
}

func (d *Detector) try(ctx context.Context, s Strategy) (Result, bool, error) {
	rows, err := d.exec.Execute(ctx, s.Query)
	if err != nil {
		if errors.Is(err, types.ErrConnectionFailed) {
			return Result{}, false, fmt.Errorf("failed to detect database kind: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, false, ctxErr
		}
		d.logger.Debug("Probe not supported", "kind", s.Kind, "query", s.Query, "error", err)
		return Result{}, false, nil
	}

	var answer string
	if len(rows) > 0 {
		answer = rows[0].First()
	}
	if !containsFold(answer, s.Keyword) {
		d.logger.Debug("Probe did not match", "kind", s.Kind, "answer", answer)
		return Result{}, false, nil
	}

	return Result{Kind: s.Kind, Version: versionPattern.FindString(answer)}, true, nil
}

func containsFold(s, substr string) bool {
	folder := cases.Fold()
	return strings.Contains(folder.String(s), folder.String(substr))
}
