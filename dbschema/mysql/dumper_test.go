package mysql_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/migcheck/dbschema/mysql"
	"github.com/stokaro/migcheck/dbschema/types"
)

// fakeExecutor answers queries by their first line keyword match.
type fakeExecutor struct {
	responses map[string][]types.Row
	queries   []string
	args      [][]any
}

func (f *fakeExecutor) Execute(_ context.Context, query string, args ...any) ([]types.Row, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	for key, rows := range f.responses {
		if strings.Contains(query, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func row(pairs ...string) types.Row {
	cols := make([]string, 0, len(pairs)/2)
	vals := make([]any, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		cols = append(cols, pairs[i])
		vals = append(vals, []byte(pairs[i+1]))
	}
	return types.NewRow(cols, vals)
}

func TestDumper_Dump(t *testing.T) {
	c := qt.New(t)

	exec := &fakeExecutor{responses: map[string][]types.Row{
		"SELECT DATABASE()": {row("DATABASE()", "shop")},
		"table_type = 'BASE TABLE'": {
			row("table_name", "account", "table_type", "BASE TABLE"),
		},
		"table_type = 'VIEW'": {
			row("table_name", "v_accounts", "table_type", "VIEW"),
		},
		"information_schema.triggers": {
			row("trigger_name", "trg_account_bi", "event_object_table", "account"),
		},
		"SHOW CREATE TABLE `account`": {
			row("Table", "account", "Create Table",
				"CREATE TABLE `account` (\n"+
					"  `id` int NOT NULL AUTO_INCREMENT,\n"+
					"  `email` varchar(190) NOT NULL,\n"+
					"  UNIQUE KEY `uq_email` (`email`),\n"+
					"  PRIMARY KEY (`id`)\n"+
					") ENGINE=InnoDB AUTO_INCREMENT=17 DEFAULT CHARSET=utf8mb4"),
		},
		"SHOW CREATE VIEW `v_accounts`": {
			row("View", "v_accounts", "Create View", "CREATE VIEW `v_accounts` AS select `account`.`id` AS `id` from `account`"),
		},
		"SHOW CREATE TRIGGER `trg_account_bi`": {
			row("Trigger", "trg_account_bi", "sql_mode", "STRICT_TRANS_TABLES",
				"SQL Original Statement", "CREATE TRIGGER `trg_account_bi` BEFORE INSERT ON `account` FOR EACH ROW SET NEW.email = LOWER(NEW.email)",
				"Created", "2025-06-01 12:00:00.10"),
		},
	}}

	state, err := mysql.NewDumper(exec).Dump(context.Background())
	c.Assert(err, qt.IsNil)

	expected := "-- ### Tables ###\n" +
		"-- Table:\naccount\n\n" +
		"-- Create Table:\n" +
		"CREATE TABLE `account` (\n" +
		"  `id` int NOT NULL AUTO_INCREMENT,\n" +
		"  `email` varchar(190) NOT NULL,\n" +
		"  PRIMARY KEY (`id`),\n" +
		"  UNIQUE KEY `uq_email` (`email`)\n" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4\n" +
		"\n\n" +
		"-- ### Views ###\n" +
		"-- View:\nv_accounts\n\n" +
		"-- Create View:\nCREATE VIEW `v_accounts` AS select `account`.`id` AS `id` from `account`\n" +
		"\n\n" +
		"-- ### Triggers ###\n" +
		"-- Trigger:\ntrg_account_bi\n\n" +
		"-- sql_mode:\nSTRICT_TRANS_TABLES\n\n" +
		"-- SQL Original Statement:\nCREATE TRIGGER `trg_account_bi` BEFORE INSERT ON `account` FOR EACH ROW SET NEW.email = LOWER(NEW.email)\n" +
		"\n\n" +
		"-- ### Procedures and functions ###\n" +
		"\n\n" +
		"-- ### Events ###"

	c.Assert(state.String(), qt.Equals, expected)

	// every listing query is bound to the resolved database name
	for i, q := range exec.queries {
		if strings.Contains(q, "information_schema") {
			c.Assert(exec.args[i], qt.DeepEquals, []any{"shop"})
		}
	}
}

func TestDumper_DumpIsStableAcrossKeyOrder(t *testing.T) {
	c := qt.New(t)

	dumpWith := func(createTable string) types.State {
		exec := &fakeExecutor{responses: map[string][]types.Row{
			"SELECT DATABASE()":         {row("DATABASE()", "shop")},
			"table_type = 'BASE TABLE'": {row("table_name", "t", "table_type", "BASE TABLE")},
			"SHOW CREATE TABLE":         {row("Table", "t", "Create Table", createTable)},
		}}
		state, err := mysql.NewDumper(exec).Dump(context.Background())
		c.Assert(err, qt.IsNil)
		return state
	}

	first := dumpWith("CREATE TABLE `t` (\n  `a` int,\n  `b` int,\n  KEY `ka` (`a`),\n  KEY `kb` (`b`)\n) ENGINE=InnoDB AUTO_INCREMENT=1 DEFAULT CHARSET=utf8mb4")
	second := dumpWith("CREATE TABLE `t` (\n  `a` int,\n  `b` int,\n  KEY `kb` (`b`),\n  KEY `ka` (`a`)\n) ENGINE=InnoDB AUTO_INCREMENT=99 DEFAULT CHARSET=utf8mb4")

	c.Assert(first.Equal(second), qt.IsTrue, qt.Commentf("first:\n%s\nsecond:\n%s", first, second))
}

func TestDumper_RoutinesUseReportedType(t *testing.T) {
	c := qt.New(t)

	exec := &fakeExecutor{responses: map[string][]types.Row{
		"SELECT DATABASE()": {row("DATABASE()", "shop")},
		"information_schema.routines": {
			row("routine_type", "FUNCTION", "routine_name", "fn_total"),
			row("routine_type", "PROCEDURE", "routine_name", "sp_cleanup"),
		},
	}}

	_, err := mysql.NewDumper(exec).Dump(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(exec.queries, qt.Contains, "SHOW CREATE FUNCTION `fn_total`")
	c.Assert(exec.queries, qt.Contains, "SHOW CREATE PROCEDURE `sp_cleanup`")
}

func TestDumper_NoDatabaseSelected(t *testing.T) {
	tests := []struct {
		name string
		rows []types.Row
	}{
		{name: "no rows", rows: nil},
		{name: "NULL database", rows: []types.Row{types.NewRow([]string{"DATABASE()"}, []any{nil})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			exec := types.ExecutorFunc(func(_ context.Context, query string, _ ...any) ([]types.Row, error) {
				c.Assert(query, qt.Equals, "SELECT DATABASE()")
				return tt.rows, nil
			})

			_, err := mysql.NewDumper(exec).Dump(context.Background())
			c.Assert(errors.Is(err, mysql.ErrNoDatabaseSelected), qt.IsTrue)
		})
	}
}

func TestDumper_PropagatesQueryErrors(t *testing.T) {
	c := qt.New(t)

	boom := errors.New("boom")
	exec := types.ExecutorFunc(func(_ context.Context, query string, _ ...any) ([]types.Row, error) {
		if query == "SELECT DATABASE()" {
			return []types.Row{row("DATABASE()", "shop")}, nil
		}
		return nil, boom
	})

	_, err := mysql.NewDumper(exec).Dump(context.Background())
	c.Assert(errors.Is(err, boom), qt.IsTrue)
	c.Assert(err.Error(), qt.Contains, "failed to dump tables")
}
