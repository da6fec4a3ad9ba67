// Package mysql produces canonical schema dumps for MySQL and MariaDB.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/migcheck/dbschema/internal/normalize"
	"github.com/stokaro/migcheck/dbschema/types"
)

// ErrNoDatabaseSelected is returned when the connection has no default
// database, so there is no schema to dump.
var ErrNoDatabaseSelected = errors.New("no database selected")

const (
	tablesSQL = `
		SELECT table_name AS table_name, table_type AS table_type
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	viewsSQL = `
		SELECT table_name AS table_name, table_type AS table_type
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'VIEW'
		ORDER BY table_name`

	triggersSQL = `
		SELECT trigger_name AS trigger_name, event_object_table AS event_object_table
		FROM information_schema.triggers
		WHERE trigger_schema = ?
		ORDER BY trigger_name, event_object_table`

	routinesSQL = `
		SELECT routine_type AS routine_type, routine_name AS routine_name
		FROM information_schema.routines
		WHERE routine_schema = ?
		ORDER BY routine_type, routine_name`

	eventsSQL = `
		SELECT event_name AS event_name, event_definition AS event_definition, status AS status
		FROM information_schema.events
		WHERE event_schema = ?
		ORDER BY event_name, event_definition, status`
)

// Dumper dumps the currently selected MySQL/MariaDB database.
type Dumper struct {
	exec types.Executor
}

// NewDumper creates a new MySQL dumper
func NewDumper(exec types.Executor) *Dumper {
	return &Dumper{exec: exec}
}

type section struct {
	title string
	dump  func(ctx context.Context, dbName string) (string, error)
}

// Dump returns the tables, views, triggers, routines and events of the current
// database in that order, each section sorted by object name.
func (d *Dumper) Dump(ctx context.Context) (types.State, error) {
	dbName, err := d.databaseName(ctx)
	if err != nil {
		return types.State{}, err
	}

	sections := []section{
		{"Tables", d.dumpTables},
		{"Views", d.dumpViews},
		{"Triggers", d.dumpTriggers},
		{"Procedures and functions", d.dumpRoutines},
		{"Events", d.dumpEvents},
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		body, err := s.dump(ctx, dbName)
		if err != nil {
			return types.State{}, fmt.Errorf("failed to dump %s: %w", strings.ToLower(s.title), err)
		}
		parts = append(parts, fmt.Sprintf("-- ### %s ###\n%s", s.title, body))
	}

	return types.NewState(strings.TrimSpace(strings.Join(parts, "\n\n"))), nil
}

func (d *Dumper) databaseName(ctx context.Context) (string, error) {
	rows, err := d.exec.Execute(ctx, "SELECT DATABASE()")
	if err != nil {
		return "", fmt.Errorf("failed to get current database: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: use a database first", ErrNoDatabaseSelected)
	}
	name := rows[0].First()
	if name == "" {
		return "", fmt.Errorf("%w: cannot get the database name", ErrNoDatabaseSelected)
	}
	return name, nil
}

func (d *Dumper) dumpTables(ctx context.Context, dbName string) (string, error) {
	return d.dumpObjects(ctx, tablesSQL, dbName, func(row types.Row) string {
		return "SHOW CREATE TABLE " + quoteIdentifier(row.String("table_name"))
	}, func(entry types.Row) string {
		if entry.Has("Create Table") {
			entry = entry.With("Create Table", CanonicalizeCreateTable(entry.String("Create Table")))
		}
		return normalize.StripAutoIncrement(formatRow(entry))
	})
}

func (d *Dumper) dumpViews(ctx context.Context, dbName string) (string, error) {
	return d.dumpObjects(ctx, viewsSQL, dbName, func(row types.Row) string {
		return "SHOW CREATE VIEW " + quoteIdentifier(row.String("table_name"))
	}, formatRow)
}

func (d *Dumper) dumpTriggers(ctx context.Context, dbName string) (string, error) {
	return d.dumpObjects(ctx, triggersSQL, dbName, func(row types.Row) string {
		return "SHOW CREATE TRIGGER " + quoteIdentifier(row.String("trigger_name"))
	}, func(entry types.Row) string {
		return formatRow(normalize.DropField(entry, normalize.TriggerCreatedField))
	})
}

func (d *Dumper) dumpRoutines(ctx context.Context, dbName string) (string, error) {
	return d.dumpObjects(ctx, routinesSQL, dbName, func(row types.Row) string {
		routineType := "PROCEDURE"
		if strings.EqualFold(row.String("routine_type"), "FUNCTION") {
			routineType = "FUNCTION"
		}
		return "SHOW CREATE " + routineType + " " + quoteIdentifier(row.String("routine_name"))
	}, formatRow)
}

func (d *Dumper) dumpEvents(ctx context.Context, dbName string) (string, error) {
	return d.dumpObjects(ctx, eventsSQL, dbName, func(row types.Row) string {
		return "SHOW CREATE EVENT " + quoteIdentifier(row.String("event_name"))
	}, formatRow)
}

// dumpObjects lists objects with listSQL, then renders SHOW CREATE output for
// each of them. Objects are separated by a blank line.
func (d *Dumper) dumpObjects(
	ctx context.Context,
	listSQL, dbName string,
	showSQL func(types.Row) string,
	render func(types.Row) string,
) (string, error) {
	objects, err := d.exec.Execute(ctx, listSQL, dbName)
	if err != nil {
		return "", err
	}

	dumps := make([]string, 0, len(objects))
	for _, obj := range objects {
		query := showSQL(obj)
		rows, err := d.exec.Execute(ctx, query)
		if err != nil {
			return "", fmt.Errorf("failed to run %q: %w", query, err)
		}
		var entry types.Row
		if len(rows) > 0 {
			entry = rows[0]
		}
		dumps = append(dumps, render(entry))
	}
	return strings.Join(dumps, "\n\n"), nil
}

// formatRow renders every column as "-- <name>:\n<value>\n".
func formatRow(row types.Row) string {
	fields := make([]string, 0, len(row.Columns))
	for _, col := range row.Columns {
		fields = append(fields, fmt.Sprintf("-- %s:\n%s\n", col, row.String(col)))
	}
	return strings.Join(fields, "\n")
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
