// Package sqlite produces canonical schema dumps for SQLite.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/migcheck/dbschema/internal/normalize"
	"github.com/stokaro/migcheck/dbschema/types"
)

// dumpSQL lists user objects by type rank (table, index, view, trigger),
// then name, then statement text.
const dumpSQL = `
SELECT type, name, "sql"
FROM sqlite_master
WHERE "sql" IS NOT NULL
AND name NOT LIKE 'sqlite_%'
ORDER BY
	CASE type
		WHEN 'table' THEN 0
		WHEN 'index' THEN 1
		WHEN 'view' THEN 2
		WHEN 'trigger' THEN 3
		ELSE 4
	END,
	name,
	"sql"`

// Dumper dumps an SQLite database.
type Dumper struct {
	exec types.Executor
}

// NewDumper creates a new SQLite dumper
func NewDumper(exec types.Executor) *Dumper {
	return &Dumper{exec: exec}
}

// Dump returns every statement from sqlite_master, terminated with ";".
func (d *Dumper) Dump(ctx context.Context) (types.State, error) {
	rows, err := d.exec.Execute(ctx, dumpSQL)
	if err != nil {
		return types.State{}, fmt.Errorf("failed to read sqlite_master: %w", err)
	}

	statements := make([]string, 0, len(rows))
	for _, row := range rows {
		statements = append(statements, normalize.Terminate(row.String("sql")))
	}

	return types.NewState(strings.TrimSpace(strings.Join(statements, "\n\n"))), nil
}
