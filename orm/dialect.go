package orm

import (
	"database/sql"
	"fmt"
	"strings"
)

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Name returns the dialect name used in logs and errors.
	Name() string

	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                  { return "mysql" }
func (mysqlDialect) Placeholder(_ int) string      { return "?" }
func (mysqlDialect) QuoteIdent(name string) string { return "`" + name + "`" }

type postgresDialect struct{}

func (postgresDialect) Name() string                  { return "postgres" }
func (postgresDialect) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }

type sqliteDialect struct{}

func (sqliteDialect) Name() string                  { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string      { return "?" }
func (sqliteDialect) QuoteIdent(name string) string { return `"` + name + `"` }

// DialectFor returns the Dialect matching a database/sql driver name.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "pgx", "postgres", "postgresql":
		return PostgreSQL, nil
	default:
		return nil, fmt.Errorf("orm: unsupported driver %q", driverName)
	}
}

// Open opens a database with the named driver and wraps it with the
// matching Dialect. The driver must be registered by the caller.
// In-memory SQLite databases are pinned to a single connection.
func Open(driverName, dsn string) (*DB, error) {
	d, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	raw, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err //nolint:wrapcheck // thin wrapper
	}
	if d == SQLite && isMemoryDSN(dsn) {
		raw.SetMaxOpenConns(1)
	}
	return New(raw, d), nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
