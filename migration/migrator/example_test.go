package migrator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing/fstest"

	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/migcheck/dbschema"
	"github.com/stokaro/migcheck/migration/checker"
	"github.com/stokaro/migcheck/migration/migrator"
	"github.com/stokaro/migcheck/migration/schemadiff"
)

// Example demonstrates stepping through migrations one at a time
func ExampleMigrator_Up() {
	ctx := context.Background()
	conn := must.Must(dbschema.Connect("sqlite://:memory:"))
	defer conn.Close()

	m := migrator.NewMigrator(conn, migrator.NewRegisteredMigrationProvider(
		migrator.CreateMigrationFromSQL(1, "Create users",
			"CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL)",
			"DROP TABLE users"),
		migrator.CreateMigrationFromSQL(2, "Add email index",
			"CREATE UNIQUE INDEX idx_users_email ON users (email)",
			"DROP INDEX idx_users_email"),
	))

	for {
		ok := must.Must(m.CanUp(ctx))
		if !ok {
			break
		}
		if err := m.Up(ctx); err != nil {
			fmt.Println("up failed:", err)
			return
		}
		fmt.Println("version", must.Must(m.GetCurrentVersion(ctx)))
	}

	if err := m.Down(ctx); err != nil {
		fmt.Println("down failed:", err)
		return
	}
	fmt.Println("version", must.Must(m.GetCurrentVersion(ctx)))

	// Output:
	// version 1
	// version 2
	// version 1
}

// Example demonstrates checking that every down migration reverts its up migration
func Example_checkMigrations() {
	ctx := context.Background()
	conn := must.Must(dbschema.Connect("sqlite://:memory:"))
	defer conn.Close()

	fsys := fstest.MapFS{
		"0000000001_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY);")},
		"0000000001_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"0000000002_add_notes.up.sql":      {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY);\nCREATE INDEX idx_notes_id ON notes (id);")},
		// forgets to drop the table
		"0000000002_add_notes.down.sql": {Data: []byte("DROP INDEX idx_notes_id;")},
	}

	m := must.Must(migrator.NewFSMigrator(conn, fsys))
	comparer := schemadiff.NewComparer(dbschema.NewDumper(conn, nil, dbschema.DumpOptions{}))
	printer := schemadiff.NewTextPrinter(io.Discard, true)

	err := checker.New(migrator.NewEnvironment(m), m, comparer, printer).Check(ctx)

	var divergence *checker.DivergenceError
	if errors.As(err, &divergence) {
		fmt.Println("diverged at migration", divergence.Step)
		fmt.Println(schemadiff.Compare(divergence.Previous, divergence.Current).Summary())
	}

	// Output:
	// diverged at migration 2
	// 0 line(s) removed, 2 line(s) added
}

// Example demonstrates parsing migration file names
func ExampleParseMigrationFileName() {
	filenames := []string{
		"0000000001_create_users_table.up.sql",
		"0000000002_add_email_index.down.sql",
		"invalid_filename.sql",
	}

	for _, filename := range filenames {
		migrationFile, err := migrator.ParseMigrationFileName(filename)
		if err != nil {
			fmt.Printf("Invalid filename: %s\n", filename)
			continue
		}

		fmt.Printf("File: %s\n", filename)
		fmt.Printf("  Version: %d\n", migrationFile.Version)
		fmt.Printf("  Name: %s\n", migrationFile.Name)
		fmt.Printf("  Direction: %s\n", migrationFile.Direction)
	}

	// Output:
	// File: 0000000001_create_users_table.up.sql
	//   Version: 1
	//   Name: Create Users Table
	//   Direction: up
	// File: 0000000002_add_email_index.down.sql
	//   Version: 2
	//   Name: Add Email Index
	//   Direction: down
	// Invalid filename: invalid_filename.sql
}

// Example demonstrates the error reported for incomplete migrations
func ExampleNewFSMigrator_errorHandling() {
	fsys := fstest.MapFS{
		"0000000001_create_users.up.sql": {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY);")},
	}

	_, err := migrator.NewFSMigrator(nil, fsys)
	fmt.Println(err)

	// Output:
	// incomplete migrations found (missing up or down files): [1]
}
