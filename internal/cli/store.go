package cli

import (
	"fmt"

	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/samples"
	"github.com/mickamy/relmodel/sqlstore"
	"github.com/mickamy/relmodel/store"
)

// openDB opens the configured database with statement logging.
func (o *options) openDB() (*orm.DB, error) {
	db, err := orm.Open(o.cfg.Database.Driver, o.cfg.Database.DSN)
	if err != nil {
		return nil, wrapError(fmt.Sprintf("open database: %v", err), err, "Use --driver sqlite, mysql or pgx.", 1)
	}
	return db.Debug(orm.SlogLogger{L: o.logger}), nil
}

// openStore builds a store for m backed by the configured database. The
// returned close func releases the database.
func (o *options) openStore(m *store.Model) (*store.Store, func(), error) {
	db, err := o.openDB()
	if err != nil {
		return nil, nil, err
	}
	backend := sqlstore.New(db, sqlstore.WithLogger(o.logger))
	st, err := store.New(m, store.WithBackend(backend), store.WithLogger(o.logger))
	if err != nil {
		_ = db.Close()
		return nil, nil, wrapError("", err, "", 1)
	}
	return st, func() { _ = db.Close() }, nil
}

// sampleModel returns the model of a sample family by command name.
func sampleModel(name string, p samples.Principal, required bool) (*store.Model, error) {
	switch name {
	case "onetoone":
		return samples.OneToOneModel(p, required), nil
	case "onetomany":
		return samples.OneToManyModel(required), nil
	case "manytomany":
		return samples.ManyToManyModel(), nil
	default:
		return nil, wrapError(fmt.Sprintf("unknown sample %q", name), nil, "Use onetoone, onetomany or manytomany.", 2)
	}
}
