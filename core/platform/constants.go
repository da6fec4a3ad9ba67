package platform

import (
	"strings"
)

// Kind identifies a database engine family.
type Kind string

const (
	MySQL      Kind = "mysql"
	MariaDB    Kind = "mariadb"
	PostgreSQL Kind = "postgres"
	Oracle     Kind = "oracle"
	SQLServer  Kind = "sqlserver"
	SQLite     Kind = "sqlite"
	Unknown    Kind = "unknown"
)

var displayNames = map[Kind]string{
	MySQL:      "MySQL",
	MariaDB:    "MariaDB",
	PostgreSQL: "PostgreSQL",
	Oracle:     "Oracle",
	SQLServer:  "SQL Server",
	SQLite:     "SQLite",
	Unknown:    "Unknown",
}

// String returns the human readable engine name, e.g. "SQL Server".
func (k Kind) String() string {
	if name, ok := displayNames[k]; ok {
		return name
	}
	return displayNames[Unknown]
}

// IsMySQLFamily reports whether the kind speaks the MySQL dialect.
func (k Kind) IsMySQLFamily() bool {
	return k == MySQL || k == MariaDB
}

// NormalizeDialect maps driver names and URL schemes onto a Kind.
// Unrecognised values yield Unknown.
func NormalizeDialect(dialect string) Kind {
	switch strings.ToLower(dialect) {
	case "pgx", "postgresql", "postgres", "pq":
		return PostgreSQL
	case "mysql":
		return MySQL
	case "mariadb":
		return MariaDB
	case "sqlite", "sqlite3":
		return SQLite
	case "oracle":
		return Oracle
	case "sqlserver", "mssql":
		return SQLServer
	default:
		return Unknown
	}
}
