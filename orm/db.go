package orm

import (
	"context"
	"database/sql"
	"log/slog"
)

// Querier runs the statements a Query builds. *DB and *Tx implement it,
// so the same Query runs inside or outside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	dialect() Dialect
}

// Logger receives every statement before it runs.
type Logger interface {
	Log(ctx context.Context, query string, args ...any)
}

// SlogLogger logs statements at debug level. A nil L uses slog.Default().
type SlogLogger struct {
	L *slog.Logger
}

func (l SlogLogger) Log(ctx context.Context, query string, args ...any) {
	logger := l.L
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "orm: exec", "sql", query, "args", args)
}

// handle is the statement surface shared by *sql.DB and *sql.Tx.
type handle interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn runs statements on a handle in one dialect.
type conn struct {
	h      handle
	d      Dialect
	logger Logger
}

func (c conn) trace(ctx context.Context, query string, args []any) {
	if c.logger != nil {
		c.logger.Log(ctx, query, args...)
	}
}

// QueryContext runs a statement that returns rows.
func (c conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.trace(ctx, query, args)
	return c.h.QueryContext(ctx, query, args...) //nolint:wrapcheck // pass through
}

// ExecContext runs a statement that returns no rows.
func (c conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.trace(ctx, query, args)
	return c.h.ExecContext(ctx, query, args...) //nolint:wrapcheck // pass through
}

func (c conn) dialect() Dialect { return c.d }

// DB is a database handle bound to a Dialect.
type DB struct {
	conn
	raw *sql.DB
}

// New binds db to d.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{conn: conn{h: db, d: d}, raw: db}
}

// Debug returns a copy of db that hands every statement to l.
func (db *DB) Debug(l Logger) *DB {
	c := *db
	c.logger = l
	return &c
}

// Dialect reports the Dialect db was bound to.
func (db *DB) Dialect() Dialect { return db.d }

// Close closes the underlying *sql.DB.
func (db *DB) Close() error { return db.raw.Close() } //nolint:wrapcheck // pass through

// Begin starts a transaction. Its statements are logged like db's.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	raw, err := db.raw.BeginTx(ctx, nil)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return &Tx{conn: conn{h: raw, d: db.d, logger: db.logger}, raw: raw}, nil
}

// Transaction runs fn in a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including when fn panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	done = true
	return nil
}

// Tx is a transaction started by DB.Begin.
type Tx struct {
	conn
	raw *sql.Tx
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.raw.Commit() } //nolint:wrapcheck // pass through

// Rollback aborts the transaction.
func (tx *Tx) Rollback() error { return tx.raw.Rollback() } //nolint:wrapcheck // pass through
