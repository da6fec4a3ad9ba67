// Package postgres produces canonical schema dumps for PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/stokaro/migcheck/dbschema/types"
)

// DefaultSchema is the schema dumped when none is configured.
const DefaultSchema = "public"

// dumpSQL renders every object of schema $1 as DDL. Works on PostgreSQL 11+.
// Rows are ordered by category, object name and finally the DDL text itself so
// that same-named objects in different categories still get a total order.
const dumpSQL = `
WITH schema_dump AS (
	-- sequences
	SELECT
		0 AS sort_order,
		sequencename::text AS sort_name,
		'CREATE SEQUENCE IF NOT EXISTS ' || sequencename ||
		' START WITH ' || start_value ||
		' INCREMENT BY ' || increment_by ||
		' MINVALUE ' || min_value ||
		' MAXVALUE ' || max_value ||
		' CACHE ' || cache_size ||
		CASE WHEN cycle THEN ' CYCLE' ELSE ' NO CYCLE' END || ';' AS ddl
	FROM pg_sequences
	WHERE schemaname = $1::text
	UNION ALL
	-- functions
	SELECT
		1 AS sort_order,
		p.proname::text AS sort_name,
		pg_get_functiondef(p.oid) || ';' AS ddl
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname = $1::text
	AND p.proname NOT LIKE 'pg_%'
	AND p.prokind = 'f'
	AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
	UNION ALL
	-- procedures
	SELECT
		1.5 AS sort_order,
		p.proname::text AS sort_name,
		pg_get_functiondef(p.oid) || ';' AS ddl
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname = $1::text
	AND p.proname NOT LIKE 'pg_%'
	AND p.prokind = 'p'
	AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
	UNION ALL
	-- tables
	SELECT
		2 AS sort_order,
		table_name::text AS sort_name,
		'CREATE TABLE IF NOT EXISTS ' || table_name || ' (' ||
		string_agg(
			column_name || ' ' ||
			data_type ||
			CASE
				WHEN character_maximum_length IS NOT NULL THEN '(' || character_maximum_length || ')'
				ELSE ''
			END ||
			CASE
				WHEN column_default IS NOT NULL THEN ' DEFAULT ' || column_default
				ELSE ''
			END ||
			CASE
				WHEN is_nullable = 'NO' THEN ' NOT NULL'
				ELSE ''
			END,
			', ' ORDER BY ordinal_position
		) || ');' AS ddl
	FROM information_schema.columns
	WHERE table_schema = $1::text
	GROUP BY table_name
	UNION ALL
	-- constraints
	SELECT
		3 AS sort_order,
		(c.relname || '_' || con.conname)::text AS sort_name,
		'ALTER TABLE ' || n.nspname || '.' || c.relname ||
		' ADD CONSTRAINT ' || con.conname || ' ' ||
		pg_get_constraintdef(con.oid) || ';' AS ddl
	FROM pg_constraint con
	JOIN pg_class c ON con.conrelid = c.oid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1::text
	UNION ALL
	-- indexes, primary keys are covered by the constraints above
	SELECT
		4 AS sort_order,
		(tablename || '_' || indexname)::text AS sort_name,
		indexdef || ';' AS ddl
	FROM pg_indexes
	WHERE schemaname = $1::text
	AND indexname NOT LIKE '%\_pkey'
	UNION ALL
	-- views
	SELECT
		5 AS sort_order,
		c.relname::text AS sort_name,
		'CREATE OR REPLACE VIEW ' || c.relname || ' AS ' || pg_get_viewdef(c.oid) AS ddl
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1::text AND c.relkind = 'v'
	UNION ALL
	-- triggers
	SELECT
		6 AS sort_order,
		(c.relname || '_' || t.tgname)::text AS sort_name,
		pg_get_triggerdef(t.oid) || ';' AS ddl
	FROM pg_trigger t
	JOIN pg_class c ON t.tgrelid = c.oid
	JOIN pg_namespace n ON c.relnamespace = n.oid
	WHERE n.nspname = $1::text AND t.tgisinternal = FALSE
)
SELECT ddl
FROM schema_dump
ORDER BY sort_order, sort_name, ddl`

// Dumper dumps a single PostgreSQL schema.
type Dumper struct {
	exec   types.Executor
	schema string
}

// NewDumper creates a new PostgreSQL dumper. An empty schema means "public".
func NewDumper(exec types.Executor, schema string) *Dumper {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Dumper{
		exec:   exec,
		schema: schema,
	}
}

// Schema returns the dumped schema name.
func (d *Dumper) Schema() string {
	return d.schema
}

// Dump runs the catalog query and joins the DDL fragments.
func (d *Dumper) Dump(ctx context.Context) (types.State, error) {
	rows, err := d.exec.Execute(ctx, dumpSQL, d.schema)
	if err != nil {
		return types.State{}, fmt.Errorf("failed to dump schema %s: %w", d.schema, err)
	}

	ddl := make([]string, 0, len(rows))
	for _, row := range rows {
		ddl = append(ddl, row.String("ddl"))
	}

	return types.NewState(strings.TrimSpace(strings.Join(ddl, "\n\n"))), nil
}
