package gomigrate_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/stokaro/migcheck/dbschema"
	"github.com/stokaro/migcheck/migration/checker"
	"github.com/stokaro/migcheck/migration/gomigrate"
	"github.com/stokaro/migcheck/migration/schemadiff"
)

// fakeStepper walks a fixed version list; position -1 means nothing applied.
type fakeStepper struct {
	versions []uint
	pos      int
	dirty    bool
	steps    []int
}

func (f *fakeStepper) Steps(n int) error {
	f.steps = append(f.steps, n)
	next := f.pos + n
	if next < -1 || next >= len(f.versions) {
		return errors.New("file does not exist")
	}
	f.pos = next
	return nil
}

func (f *fakeStepper) Version() (uint, bool, error) {
	if f.pos < 0 {
		return 0, false, migrate.ErrNilVersion
	}
	return f.versions[f.pos], f.dirty, nil
}

func migrationsFS() fstest.MapFS {
	return fstest.MapFS{
		"1_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY);")},
		"1_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"3_add_posts.up.sql":      {Data: []byte("CREATE TABLE posts (id INTEGER PRIMARY KEY);\nCREATE INDEX idx_posts_id ON posts (id);")},
		"3_add_posts.down.sql":    {Data: []byte("DROP TABLE posts;")},
	}
}

func newFakeDriver(c *qt.C) (*gomigrate.Driver, *fakeStepper) {
	src, err := iofs.New(migrationsFS(), ".")
	c.Assert(err, qt.IsNil)

	stepper := &fakeStepper{versions: []uint{1, 3}, pos: -1}
	d := gomigrate.NewWithStepper(src, func(source.Driver) (gomigrate.Stepper, error) {
		return stepper, nil
	}, nil)
	return d, stepper
}

func TestDriver_NotPrepared(t *testing.T) {
	c := qt.New(t)

	d, _ := newFakeDriver(c)

	_, err := d.CanUp(context.Background())
	c.Assert(errors.Is(err, gomigrate.ErrNotPrepared), qt.IsTrue)
	c.Assert(errors.Is(d.Up(context.Background()), gomigrate.ErrNotPrepared), qt.IsTrue)
	c.Assert(d.Cleanup(context.Background()), qt.IsNil)
}

func TestDriver_Stepping(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	d, stepper := newFakeDriver(c)
	c.Assert(d.Prepare(ctx), qt.IsNil)

	ok, err := d.CanUp(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	c.Assert(d.Up(ctx), qt.IsNil)
	ok, err = d.CanUp(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	c.Assert(d.Up(ctx), qt.IsNil)
	ok, err = d.CanUp(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	c.Assert(d.Down(ctx), qt.IsNil)
	c.Assert(stepper.steps, qt.DeepEquals, []int{1, 1, -1})

	c.Assert(d.Cleanup(ctx), qt.IsNil)
	c.Assert(stepper.pos, qt.Equals, -1)
	c.Assert(stepper.steps, qt.DeepEquals, []int{1, 1, -1, -1})
}

func TestDriver_Dirty(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	d, stepper := newFakeDriver(c)
	c.Assert(d.Prepare(ctx), qt.IsNil)
	c.Assert(d.Up(ctx), qt.IsNil)
	stepper.dirty = true

	_, err := d.CanUp(ctx)
	c.Assert(errors.Is(err, gomigrate.ErrDirty), qt.IsTrue)
}

func TestDriver_StepError(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	d, _ := newFakeDriver(c)
	c.Assert(d.Prepare(ctx), qt.IsNil)

	err := d.Down(ctx)
	c.Assert(err, qt.ErrorMatches, "failed to step -1: file does not exist")
}

func TestDriver_CanceledContext(t *testing.T) {
	c := qt.New(t)

	d, stepper := newFakeDriver(c)
	c.Assert(d.Prepare(context.Background()), qt.IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(errors.Is(d.Up(ctx), context.Canceled), qt.IsTrue)
	c.Assert(stepper.steps, qt.HasLen, 0)
}

func TestCheck_SQLite(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	conn, err := dbschema.Connect("sqlite://:memory:")
	c.Assert(err, qt.IsNil)
	defer conn.Close()

	d, err := gomigrate.New(conn, migrationsFS(), gomigrate.Options{})
	c.Assert(err, qt.IsNil)

	ch := checker.New(d, d,
		schemadiff.NewComparer(dbschema.NewDumper(conn, nil, dbschema.DumpOptions{})),
		schemadiff.NewTextPrinter(io.Discard, true))

	report, err := ch.CheckWithReport(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(report.Migrations, qt.Equals, 2)

	rows, err := conn.Execute(ctx, "SELECT name FROM sqlite_master")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 0)
}

func TestCheck_SQLiteDivergence(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	conn, err := dbschema.Connect("sqlite://:memory:")
	c.Assert(err, qt.IsNil)
	defer conn.Close()

	fsys := migrationsFS()
	fsys["3_add_posts.down.sql"] = &fstest.MapFile{Data: []byte("DROP INDEX idx_posts_id;")}

	d, err := gomigrate.New(conn, fsys, gomigrate.Options{MigrationsTable: "app_versions"})
	c.Assert(err, qt.IsNil)

	ch := checker.New(d, d,
		schemadiff.NewComparer(dbschema.NewDumper(conn, nil, dbschema.DumpOptions{})),
		schemadiff.NewTextPrinter(io.Discard, true))

	err = ch.Check(ctx)
	var divergence *checker.DivergenceError
	c.Assert(errors.As(err, &divergence), qt.IsTrue)
	c.Assert(divergence.Step, qt.Equals, 2)
	c.Assert(divergence.Current.String(), qt.Contains, "CREATE TABLE posts")
	c.Assert(divergence.Current.String(), qt.Contains, "app_versions")
}
