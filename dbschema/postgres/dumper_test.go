package postgres_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/migcheck/dbschema/postgres"
	"github.com/stokaro/migcheck/dbschema/types"
)

func ddlRows(ddl ...string) []types.Row {
	rows := make([]types.Row, 0, len(ddl))
	for _, d := range ddl {
		rows = append(rows, types.NewRow([]string{"ddl"}, []any{d}))
	}
	return rows
}

func TestDumper_Dump(t *testing.T) {
	c := qt.New(t)

	var gotArgs []any
	exec := types.ExecutorFunc(func(_ context.Context, query string, args ...any) ([]types.Row, error) {
		gotArgs = args
		c.Assert(query, qt.Contains, "ORDER BY sort_order, sort_name, ddl")
		return ddlRows(
			"CREATE SEQUENCE IF NOT EXISTS users_id_seq START WITH 1 INCREMENT BY 1 MINVALUE 1 MAXVALUE 2147483647 CACHE 1 NO CYCLE;",
			"CREATE TABLE IF NOT EXISTS users (id integer DEFAULT nextval('users_id_seq'::regclass) NOT NULL, email character varying(255) NOT NULL);",
			"ALTER TABLE public.users ADD CONSTRAINT users_pkey PRIMARY KEY (id);",
		), nil
	})

	state, err := postgres.NewDumper(exec, "").Dump(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(gotArgs, qt.DeepEquals, []any{"public"})
	c.Assert(state.String(), qt.Equals,
		"CREATE SEQUENCE IF NOT EXISTS users_id_seq START WITH 1 INCREMENT BY 1 MINVALUE 1 MAXVALUE 2147483647 CACHE 1 NO CYCLE;\n\n"+
			"CREATE TABLE IF NOT EXISTS users (id integer DEFAULT nextval('users_id_seq'::regclass) NOT NULL, email character varying(255) NOT NULL);\n\n"+
			"ALTER TABLE public.users ADD CONSTRAINT users_pkey PRIMARY KEY (id);")
}

func TestDumper_CustomSchema(t *testing.T) {
	c := qt.New(t)

	var gotArgs []any
	exec := types.ExecutorFunc(func(_ context.Context, _ string, args ...any) ([]types.Row, error) {
		gotArgs = args
		return nil, nil
	})

	d := postgres.NewDumper(exec, "billing")
	c.Assert(d.Schema(), qt.Equals, "billing")

	state, err := d.Dump(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(state.IsEmpty(), qt.IsTrue)
	c.Assert(gotArgs, qt.DeepEquals, []any{"billing"})
}

func TestDumper_Error(t *testing.T) {
	c := qt.New(t)

	boom := errors.New("relation does not exist")
	exec := types.ExecutorFunc(func(context.Context, string, ...any) ([]types.Row, error) {
		return nil, boom
	})

	_, err := postgres.NewDumper(exec, "").Dump(context.Background())
	c.Assert(errors.Is(err, boom), qt.IsTrue)
}
