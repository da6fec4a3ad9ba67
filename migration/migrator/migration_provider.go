package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidMigrationFileName is returned for files that do not follow the
// NNNNNNNNNN_name.(up|down).sql convention.
var ErrInvalidMigrationFileName = errors.New("invalid migration file name")

var migrationFileRe = regexp.MustCompile(`^(\d+)_([^.]+)\.(up|down)\.sql$`)

// MigrationFile is the parsed name of a migration script.
type MigrationFile struct {
	Version   int
	Name      string
	Direction string
}

// ParseMigrationFileName parses names like "0000000001_create_users.up.sql".
// The returned Name is human readable: "Create Users".
func ParseMigrationFileName(name string) (MigrationFile, error) {
	m := migrationFileRe.FindStringSubmatch(name)
	if m == nil {
		return MigrationFile{}, fmt.Errorf("%w: %s", ErrInvalidMigrationFileName, name)
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return MigrationFile{}, fmt.Errorf("%w: %s: %w", ErrInvalidMigrationFileName, name, err)
	}
	return MigrationFile{
		Version:   version,
		Name:      cases.Title(language.English).String(strings.ReplaceAll(m[2], "_", " ")),
		Direction: m[3],
	}, nil
}

// MigrationProvider provides a list of migrations
type MigrationProvider interface {
	// Migrations provides a list of migrations sorted by version in ascending order
	Migrations() []*Migration
}

// RegisteredMigrationProvider is a simple in-memory implementation of MigrationProvider
type RegisteredMigrationProvider struct {
	migrations []*Migration
	sorted     bool
}

// NewRegisteredMigrationProvider creates a new in-memory migration provider with the given migrations.
// The migrations will be sorted by version when accessed through the Migrations() method.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	return &RegisteredMigrationProvider{
		migrations: migrations,
	}
}

// Register adds a migration to the provider
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	p.migrations = append(p.migrations, migration)
	p.sorted = false
}

// Migrations returns the list of migrations sorted by version in ascending order
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	if !p.sorted {
		sortMigrations(p.migrations)
		p.sorted = true
	}
	return p.migrations
}

// FSMigrationProvider loads migrations from pairs of up and down SQL files.
type FSMigrationProvider struct {
	fsys       fs.FS
	migrations []*Migration
}

// NewFSMigrationProvider scans fsys for migration files. Files that do not
// follow the naming convention are ignored; a version without both an up and
// a down file is an error.
func NewFSMigrationProvider(fsys fs.FS) (*FSMigrationProvider, error) {
	p := &FSMigrationProvider{fsys: fsys}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrations returns the loaded migrations sorted by version in ascending order.
func (p *FSMigrationProvider) Migrations() []*Migration {
	return p.migrations
}

func (p *FSMigrationProvider) load() error {
	type halves struct {
		up, down bool
	}
	migrationsMap := make(map[int]*Migration) // version -> migration
	seen := make(map[int]*halves)

	err := fs.WalkDir(p.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		migrationFile, err := ParseMigrationFileName(d.Name())
		if err != nil {
			return nil
		}

		if _, exists := migrationsMap[migrationFile.Version]; !exists {
			migrationsMap[migrationFile.Version] = &Migration{
				Version:     migrationFile.Version,
				Description: migrationFile.Name,
				Up:          NoopMigrationFunc,
				Down:        NoopMigrationFunc,
			}
			seen[migrationFile.Version] = &halves{}
		}

		switch migrationFile.Direction {
		case "up":
			migrationsMap[migrationFile.Version].Up = MigrationFuncFromSQLFilename(path, p.fsys)
			seen[migrationFile.Version].up = true
		case "down":
			migrationsMap[migrationFile.Version].Down = MigrationFuncFromSQLFilename(path, p.fsys)
			seen[migrationFile.Version].down = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan migrations directory: %w", err)
	}

	var incomplete []int
	for version, h := range seen {
		if !h.up || !h.down {
			incomplete = append(incomplete, version)
		}
	}
	if len(incomplete) > 0 {
		sort.Ints(incomplete)
		return fmt.Errorf("incomplete migrations found (missing up or down files): %v", incomplete)
	}

	p.migrations = slices.Collect(maps.Values(migrationsMap))
	sortMigrations(p.migrations)
	return nil
}

func sortMigrations(migrations []*Migration) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}
