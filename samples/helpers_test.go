package samples_test

import (
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/samples"
	"github.com/mickamy/relmodel/sqlstore"
	"github.com/mickamy/relmodel/store"
)

// backends lists the ways a sample store is opened: held in memory
// only, or mirrored to a private in-memory SQLite database.
var backends = []struct {
	name string
	open func(t *testing.T, m *store.Model) *store.Store
}{
	{name: "memory", open: openMemory},
	{name: "sqlite", open: openSQLite},
}

func openMemory(t *testing.T, m *store.Model) *store.Store {
	t.Helper()

	st, err := store.New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

func openSQLite(t *testing.T, m *store.Model) *store.Store {
	t.Helper()

	db, err := orm.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(m, store.WithBackend(sqlstore.New(db)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.EnsureCreated(t.Context()); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	return st
}

// seed adds entities in one session and commits them.
func seed(t *testing.T, st *store.Store, entities ...*store.Entity) {
	t.Helper()

	err := st.Do(t.Context(), func(sess *store.Session) error {
		for _, e := range entities {
			if err := sess.Add(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func count(t *testing.T, st *store.Store, collection string) int {
	t.Helper()

	var n int
	err := st.Do(t.Context(), func(sess *store.Session) error {
		var err error
		n, err = sess.Count(t.Context(), collection)
		return err
	})
	if err != nil {
		t.Fatalf("Count(%s): %v", collection, err)
	}
	return n
}

func failed(steps []samples.Step) []string {
	var out []string
	for _, s := range steps {
		if s.Err != nil {
			out = append(out, s.Name)
		}
	}
	return out
}
