// Package sqlstore persists a store.Store in a SQL database through the
// orm package. Every collection maps to one table named after it
// (Blog → blogs); fields and foreign keys map to snake_case columns.
package sqlstore

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/scope"
	"github.com/mickamy/relmodel/store"
)

// Backend implements store.Backend on an *orm.DB. The caller owns the
// database and closes it.
type Backend struct {
	db       *orm.DB
	logger   *slog.Logger
	pageSize int
}

// DefaultPageSize is the number of rows Load reads per statement.
const DefaultPageSize = 1000

var _ store.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithPageSize sets the number of rows Load reads per statement.
// Values below 1 keep DefaultPageSize.
func WithPageSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// New returns a Backend writing to db.
func New(db *orm.DB, opts ...Option) *Backend {
	b := &Backend{db: db, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// EnsureCreated creates a table per collection, principals first.
func (b *Backend) EnsureCreated(ctx context.Context, m *store.Model) error {
	d := b.db.Dialect()
	for _, t := range tables(m) {
		if _, err := b.db.ExecContext(ctx, t.createSQL(d)); err != nil {
			return errors.Wrapf(err, "sqlstore: create table %s", t.name)
		}
	}
	return nil
}

// EnsureDeleted drops the tables of m, dependents first.
func (b *Backend) EnsureDeleted(ctx context.Context, m *store.Model) error {
	d := b.db.Dialect()
	ts := tables(m)
	slices.Reverse(ts)
	for _, t := range ts {
		if _, err := b.db.ExecContext(ctx, t.dropSQL(d)); err != nil {
			return errors.Wrapf(err, "sqlstore: drop table %s", t.name)
		}
	}
	return nil
}

// Load reads every row in one transaction, principals first. Rows of a
// table come back in identity order, read a page at a time.
func (b *Backend) Load(ctx context.Context, m *store.Model) ([]store.Row, error) {
	var rows []store.Row
	err := b.db.Transaction(ctx, func(tx *orm.Tx) error {
		ids := make(map[string][]uuid.UUID)
		for _, t := range tables(m) {
			if t.join {
				links, err := loadJoin(ctx, tx, t, ids[t.principal(t.leftKey)])
				if err != nil {
					return err
				}
				rows = append(rows, links...)
				continue
			}
			loaded, err := b.loadTable(ctx, tx, t)
			if err != nil {
				return err
			}
			for _, r := range loaded {
				ids[t.collection] = append(ids[t.collection], r.ID)
			}
			rows = append(rows, loaded...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *Backend) loadTable(ctx context.Context, tx *orm.Tx, t *table) ([]store.Row, error) {
	q := rowQuery(tx, t).OrderBy(idColumn)
	total, err := q.Count(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: count %s", t.name)
	}
	rows := make([]store.Row, 0, total)
	for {
		page, err := q.Limit(b.pageSize).Offset(len(rows)).All(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "sqlstore: load %s", t.name)
		}
		rows = append(rows, page...)
		if len(page) < b.pageSize {
			return rows, nil
		}
	}
}

func loadJoin(ctx context.Context, tx *orm.Tx, t *table, left []uuid.UUID) ([]store.Row, error) {
	links, err := orm.QueryLinks[uuid.UUID, uuid.UUID](
		ctx, tx, t.name, t.fkColumn(t.leftKey), t.fkColumn(t.rightKey), left,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: load %s", t.name)
	}
	rows := make([]store.Row, 0, len(links))
	for _, l := range links {
		rows = append(rows, store.Row{
			Collection: t.collection,
			Fields:     map[string]string{},
			ForeignKeys: map[string]uuid.NullUUID{
				t.leftKey:  {UUID: l.Source, Valid: true},
				t.rightKey: {UUID: l.Target, Valid: true},
			},
		})
	}
	return rows, nil
}

// Apply runs cs in one transaction. Consecutive inserts into the same
// table are batched into one statement. An update or delete whose row is
// gone fails with a store.NotFoundError and nothing is written.
func (b *Backend) Apply(ctx context.Context, m *store.Model, cs store.ChangeSet) error {
	byName := make(map[string]*table)
	for _, t := range tables(m) {
		byName[t.collection] = t
	}

	err := b.db.Transaction(ctx, func(tx *orm.Tx) error {
		for i := 0; i < len(cs); {
			c := cs[i]
			t, ok := byName[c.Row.Collection]
			if !ok {
				return errors.Errorf("sqlstore: unknown collection %s", c.Row.Collection)
			}
			q := rowQuery(tx, t)

			switch c.Op {
			case store.OpInsert:
				batch := []*store.Row{&cs[i].Row}
				for i++; i < len(cs) && cs[i].Op == store.OpInsert && cs[i].Row.Collection == c.Row.Collection; i++ {
					batch = append(batch, &cs[i].Row)
				}
				if err := q.CreateAll(ctx, batch); err != nil {
					return errors.Wrapf(err, "sqlstore: insert into %s", t.name)
				}
				continue
			case store.OpUpdate:
				if t.join {
					return errors.Errorf("sqlstore: %s rows cannot be updated", t.name)
				}
				if err := t.mustExist(ctx, q, c.Row); err != nil {
					return err
				}
				if err := q.Update(ctx, &cs[i].Row); err != nil {
					return errors.Wrapf(err, "sqlstore: update %s %s", t.name, c.Row.ID)
				}
			case store.OpDelete:
				if err := t.mustExist(ctx, q, c.Row); err != nil {
					return err
				}
				if err := q.Scopes(t.keyScopes(c.Row)...).Delete(ctx); err != nil {
					return errors.Wrapf(err, "sqlstore: delete from %s", t.name)
				}
			default:
				return errors.Errorf("sqlstore: unsupported change %v", c.Op)
			}
			i++
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.logger.DebugContext(ctx, "sqlstore: changes applied",
		"inserts", cs.Count(store.OpInsert),
		"updates", cs.Count(store.OpUpdate),
		"deletes", cs.Count(store.OpDelete),
	)
	return nil
}

// mustExist fails with a store.NotFoundError when the row of r is gone.
func (t *table) mustExist(ctx context.Context, q *orm.Query[store.Row], r store.Row) error {
	ok, err := q.Scopes(t.keyScopes(r)...).Exists(ctx)
	if err != nil {
		return errors.Wrapf(err, "sqlstore: look up %s", t.name)
	}
	if ok {
		return nil
	}
	key := r.ID.String()
	if t.join {
		key = r.ForeignKeys[t.leftKey].UUID.String() + "/" + r.ForeignKeys[t.rightKey].UUID.String()
	}
	return &store.NotFoundError{Collection: r.Collection, Key: key}
}

// keyScopes selects the row of r by its identity.
func (t *table) keyScopes(r store.Row) []scope.Scope {
	if !t.join {
		return []scope.Scope{scope.Eq(idColumn, r.ID)}
	}
	return []scope.Scope{
		scope.Eq(t.fkColumn(t.leftKey), r.ForeignKeys[t.leftKey].UUID),
		scope.Eq(t.fkColumn(t.rightKey), r.ForeignKeys[t.rightKey].UUID),
	}
}

// rowQuery builds the orm query of t over store rows.
func rowQuery(db orm.Querier, t *table) *orm.Query[store.Row] {
	return orm.NewQuery[store.Row](db, t.name, t.columns(), idColumn, t.scan, t.values)
}

func (t *table) scan(rows *sql.Rows) (store.Row, error) {
	r := store.Row{
		Collection:  t.collection,
		Fields:      make(map[string]string, len(t.fields)),
		ForeignKeys: make(map[string]uuid.NullUUID, len(t.fks)),
	}
	fields := make([]sql.NullString, len(t.fields))
	fks := make([]uuid.NullUUID, len(t.fks))

	var dest []any
	if !t.join {
		dest = append(dest, &r.ID)
	}
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	for i := range fks {
		dest = append(dest, &fks[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return store.Row{}, err //nolint:wrapcheck // pass through
	}

	for i, f := range fields {
		if f.Valid {
			r.Fields[t.fields[i]] = f.String
		}
	}
	for i, fk := range fks {
		r.ForeignKeys[t.fks[i].Name] = fk
	}
	return r, nil
}

func (t *table) values(r *store.Row) ([]string, []any) {
	var vals []any
	if !t.join {
		vals = append(vals, r.ID.String())
	}
	for _, f := range t.fields {
		if v, ok := r.Fields[f]; ok {
			vals = append(vals, v)
		} else {
			vals = append(vals, nil)
		}
	}
	for _, fk := range t.fks {
		if v := r.ForeignKeys[fk.Name]; v.Valid {
			vals = append(vals, v.UUID.String())
		} else {
			vals = append(vals, nil)
		}
	}
	return t.columns(), vals
}
