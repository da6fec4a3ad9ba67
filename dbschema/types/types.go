package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrConnectionFailed is returned when the database cannot be reached at all.
// Detection treats every other probe failure as "strategy does not apply",
// but this one aborts it.
var ErrConnectionFailed = errors.New("database connection failed")

// Row is a single result row. Columns keeps the order reported by the driver,
// which is needed to extract "the first column" of a probe response.
type Row struct {
	Columns []string
	Values  map[string]any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	row := Row{
		Columns: make([]string, len(columns)),
		Values:  make(map[string]any, len(columns)),
	}
	copy(row.Columns, columns)
	for i, name := range columns {
		if i < len(values) {
			row.Values[name] = values[i]
		}
	}
	return row
}

// First returns the first scalar of the row as text.
func (r Row) First() string {
	if len(r.Columns) == 0 {
		return ""
	}
	return r.String(r.Columns[0])
}

// String returns the named scalar as text. NULL and missing columns yield "".
func (r Row) String(name string) string {
	return FormatScalar(r.Values[name])
}

// Has reports whether the row carries the named column.
func (r Row) Has(name string) bool {
	_, ok := r.Values[name]
	return ok
}

// Without returns a copy of the row with the named column removed.
func (r Row) Without(name string) Row {
	out := Row{Values: make(map[string]any, len(r.Values))}
	for _, col := range r.Columns {
		if col == name {
			continue
		}
		out.Columns = append(out.Columns, col)
		out.Values[col] = r.Values[col]
	}
	return out
}

// With returns a copy of the row with the named column set to value. The
// column keeps its position when it already exists.
func (r Row) With(name string, value any) Row {
	out := Row{
		Columns: make([]string, len(r.Columns)),
		Values:  make(map[string]any, len(r.Values)+1),
	}
	copy(out.Columns, r.Columns)
	for k, v := range r.Values {
		out.Values[k] = v
	}
	if _, ok := out.Values[name]; !ok {
		out.Columns = append(out.Columns, name)
	}
	out.Values[name] = value
	return out
}

// FormatScalar renders a driver value as text.
func FormatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Executor runs a query and returns all rows. Implementations must return an
// error wrapping ErrConnectionFailed when the database is unreachable.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) ([]Row, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, query string, args ...any) ([]Row, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	return f(ctx, query, args...)
}

// State is an immutable schema snapshot. The zero value is the empty state.
type State struct {
	dump string
}

// NewState wraps a dump text.
func NewState(dump string) State {
	return State{dump: dump}
}

// String returns the dump text.
func (s State) String() string {
	return s.dump
}

// IsEmpty reports whether the dump contains nothing but whitespace.
func (s State) IsEmpty() bool {
	return strings.TrimSpace(s.dump) == ""
}

// Equal compares two states textually.
func (s State) Equal(other State) bool {
	return s.dump == other.dump
}

// Dumper produces a deterministic schema snapshot.
type Dumper interface {
	Dump(ctx context.Context) (State, error)
}

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string `json:"dialect"` // postgres, mysql, mariadb, sqlite
	Driver  string `json:"driver"`  // database/sql driver name
	Schema  string `json:"schema"`  // database name for MySQL, file for SQLite
	URL     string `json:"url"`     // database connection URL (for reference)
}
