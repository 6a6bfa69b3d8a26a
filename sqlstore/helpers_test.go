package sqlstore_test

import (
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/sqlstore"
	"github.com/mickamy/relmodel/store"
)

func blogModel(required bool) *store.Model {
	return store.NewModel().
		Entity("Blog", "Url").
		Entity("Post", "Title", "Content").
		OneToMany(store.Relation{Principal: "Blog", PrincipalNav: "Posts", Dependent: "Post", DependentNav: "Blog", Required: required})
}

func studentModel(required bool) *store.Model {
	return store.NewModel().
		Entity("Student", "Name").
		Entity("Address", "City").
		OneToOne(store.Relation{Principal: "Student", PrincipalNav: "Address", Dependent: "Address", DependentNav: "Student", Required: required})
}

func bookModel() *store.Model {
	return store.NewModel().
		Entity("Book", "Name").
		Entity("Author", "FullName").
		ManyToMany(store.JoinSpec{
			Name:     "BookAuthorLink",
			Left:     "Book",
			LeftNav:  "BookAuthorLinks",
			LeftRef:  "Book",
			Right:    "Author",
			RightNav: "BookAuthorLinks",
			RightRef: "Author",
		})
}

// openDB opens a private in-memory SQLite database.
func openDB(t *testing.T) *orm.DB {
	t.Helper()

	db, err := orm.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// openStore builds a store over db and creates its schema.
func openStore(t *testing.T, db *orm.DB, m *store.Model) *store.Store {
	t.Helper()

	st, err := store.New(m, store.WithBackend(sqlstore.New(db)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.EnsureCreated(t.Context()); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	return st
}

func countRows(t *testing.T, db *orm.DB, table string) int {
	t.Helper()

	rows, err := db.QueryContext(t.Context(), "SELECT COUNT(*) FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	defer func() { _ = rows.Close() }()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	return n
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
