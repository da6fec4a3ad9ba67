// Package dbschema connects to databases and produces canonical schema dumps.
//
// A DatabaseConnection is the query executor used by detection and by the
// per-dialect dumpers; Dumper ties detection and dumping together.
package dbschema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stokaro/migcheck/core/platform"
	"github.com/stokaro/migcheck/dbschema/types"
)

// Driver names understood by WithPostgresDriver.
const (
	PostgresDriverPgx = "pgx"
	PostgresDriverPq  = "pq"
)

// DatabaseConnection wraps a *sql.DB together with information about the
// database it points to. The first query verifies that the database is
// reachable; failures are reported as types.ErrConnectionFailed.
type DatabaseConnection struct {
	db   *sql.DB
	info types.DBInfo

	mu       sync.Mutex
	verified bool
}

type connectOptions struct {
	postgresDriver string
}

// ConnectOption customises Connect and ConnectToDatabase.
type ConnectOption func(*connectOptions)

// WithPostgresDriver selects the database/sql driver used for postgres URLs:
// PostgresDriverPgx (default) or PostgresDriverPq.
func WithPostgresDriver(name string) ConnectOption {
	return func(o *connectOptions) {
		o.postgresDriver = name
	}
}

// Connect prepares a connection for the given URL without dialing the server.
// Supported schemes: postgres://, postgresql://, mysql://, mariadb://,
// sqlite:// (sqlite3://, sqlite:, file:).
func Connect(dbURL string, opts ...ConnectOption) (*DatabaseConnection, error) {
	o := connectOptions{postgresDriver: PostgresDriverPgx}
	for _, opt := range opts {
		opt(&o)
	}

	driverName, dsn, info, err := parseDatabaseURL(dbURL, o)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", info.Dialect, err)
	}
	if platform.Kind(info.Dialect) == platform.SQLite {
		// an in-memory database lives and dies with its single connection
		db.SetMaxOpenConns(1)
	}

	return newConnection(db, info, false), nil
}

// ConnectToDatabase connects to the database and verifies it is reachable.
func ConnectToDatabase(dbURL string, opts ...ConnectOption) (*DatabaseConnection, error) {
	conn, err := Connect(dbURL, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewDatabaseConnection wraps an already opened *sql.DB. The caller is
// responsible for the handle being usable.
func NewDatabaseConnection(db *sql.DB, info types.DBInfo) *DatabaseConnection {
	return newConnection(db, info, true)
}

func newConnection(db *sql.DB, info types.DBInfo, verified bool) *DatabaseConnection {
	return &DatabaseConnection{
		db:       db,
		info:     info,
		verified: verified,
	}
}

// Info returns connection metadata.
func (c *DatabaseConnection) Info() types.DBInfo {
	return c.info
}

// Kind returns the dialect the connection was opened for. The server may
// still turn out to be a different member of the family, e.g. MariaDB behind
// a mysql:// URL; use detection for the authoritative answer.
func (c *DatabaseConnection) Kind() platform.Kind {
	return platform.NormalizeDialect(c.info.Dialect)
}

// DB exposes the underlying handle.
func (c *DatabaseConnection) DB() *sql.DB {
	return c.db
}

// Close closes the underlying handle.
func (c *DatabaseConnection) Close() error {
	return c.db.Close()
}

// Ping verifies that the database is reachable.
func (c *DatabaseConnection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrConnectionFailed, err)
	}
	c.verified = true
	return nil
}

func (c *DatabaseConnection) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	verified := c.verified
	c.mu.Unlock()
	if verified {
		return nil
	}
	return c.Ping(ctx)
}

// Execute runs a query and returns all rows with column order preserved.
func (c *DatabaseConnection) Execute(ctx context.Context, query string, args ...any) ([]types.Row, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", classifyError(err))
	}

	var result []types.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", classifyError(err))
		}
		for i, v := range values {
			// drivers may reuse byte buffers between rows
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		result = append(result, types.NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", classifyError(err))
	}

	return result, nil
}

// ExecContext executes a statement that returns no rows.
func (c *DatabaseConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	return res, nil
}

// BeginTx starts a transaction.
func (c *DatabaseConnection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, classifyError(err)
	}
	return tx, nil
}

// Rebind rewrites "?" placeholders into the connection's native style.
func (c *DatabaseConnection) Rebind(query string) string {
	if c.Kind() != platform.PostgreSQL {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// classifyError marks errors that mean the server is unreachable.
func classifyError(err error) error {
	if err == nil || errors.Is(err, types.ErrConnectionFailed) {
		return err
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %w", types.ErrConnectionFailed, err)
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	// SQLSTATE class 08: connection exception
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	return false
}

func parseDatabaseURL(dbURL string, o connectOptions) (driverName, dsn string, info types.DBInfo, err error) {
	scheme, rest, ok := strings.Cut(dbURL, "://")
	if !ok {
		// sqlite:path and file:path forms
		scheme, rest, ok = strings.Cut(dbURL, ":")
		if !ok {
			return "", "", info, fmt.Errorf("invalid database URL %q: missing scheme", dbURL)
		}
		if strings.EqualFold(scheme, "file") {
			rest = dbURL
		}
	}

	info.URL = dbURL
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		info.Dialect = string(platform.PostgreSQL)
		switch o.postgresDriver {
		case PostgresDriverPgx, "":
			driverName = "pgx"
		case PostgresDriverPq:
			driverName = "postgres"
		default:
			return "", "", info, fmt.Errorf("unsupported postgres driver %q", o.postgresDriver)
		}
		info.Driver = driverName
		return driverName, removePostgresPoolParams(dbURL), info, nil

	case "mysql", "mariadb":
		info.Dialect = string(platform.NormalizeDialect(scheme))
		info.Driver = "mysql"
		cfg, err := mysqlConfig(rest)
		if err != nil {
			return "", "", info, fmt.Errorf("invalid %s URL: %w", scheme, err)
		}
		info.Schema = cfg.DBName
		return "mysql", cfg.FormatDSN(), info, nil

	case "sqlite", "sqlite3", "file":
		info.Dialect = string(platform.SQLite)
		info.Driver = "sqlite"
		if rest == "" {
			return "", "", info, fmt.Errorf("invalid sqlite URL %q: missing path", dbURL)
		}
		info.Schema = rest
		return "sqlite", rest, info, nil

	default:
		return "", "", info, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// mysqlConfig accepts both "user:pass@host:port/db?opts" and the native
// "user:pass@tcp(host:port)/db?opts" forms.
func mysqlConfig(rest string) (*mysql.Config, error) {
	if strings.Contains(rest, "@tcp(") || strings.Contains(rest, "@unix(") {
		return mysql.ParseDSN(rest)
	}

	u, err := url.Parse("mysql://" + rest)
	if err != nil {
		return nil, err
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "3306")
	}

	var userInfo string
	if u.User != nil {
		userInfo = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			userInfo += ":" + pass
		}
		userInfo += "@"
	}

	dsn := fmt.Sprintf("%stcp(%s)/%s", userInfo, host, strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return mysql.ParseDSN(dsn)
}

// removePostgresPoolParams strips pgxpool-only parameters that database/sql
// drivers reject.
func removePostgresPoolParams(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return dbURL
	}
	if u.RawQuery == "" {
		return dbURL
	}

	q := u.Query()
	q.Del("pool_max_conns")
	q.Del("pool_min_conns")
	u.RawQuery = q.Encode()
	return u.String()
}
