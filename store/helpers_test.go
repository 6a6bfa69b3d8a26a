package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mickamy/relmodel/scope"
	"github.com/mickamy/relmodel/store"
)

func blogModel(required bool) *store.Model {
	return store.NewModel().
		Entity("Blog", "Url").
		Entity("Post", "Title", "Content").
		OneToMany(store.Relation{
			Principal:    "Blog",
			PrincipalNav: "Posts",
			Dependent:    "Post",
			DependentNav: "Blog",
			Required:     required,
		})
}

func studentModel(required bool) *store.Model {
	return store.NewModel().
		Entity("Student", "Name").
		Entity("Address", "City").
		OneToOne(store.Relation{
			Principal:    "Student",
			PrincipalNav: "Address",
			Dependent:    "Address",
			DependentNav: "Student",
			Required:     required,
		})
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

func newStore(t *testing.T, m *store.Model, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.New(m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

func openSession(t *testing.T, st *store.Store) *store.Session {
	t.Helper()

	sess, err := st.Session(t.Context())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

func blog(url string, titles ...string) *store.Entity {
	b := store.NewEntity("Blog", map[string]string{"Url": url})
	for _, title := range titles {
		b.Link("Posts", store.NewEntity("Post", map[string]string{"Title": title}))
	}
	return b
}

// seedBlogs commits two blogs with posts.
func seedBlogs(t *testing.T, st *store.Store) {
	t.Helper()

	err := st.Do(t.Context(), func(sess *store.Session) error {
		return errors.Join(
			sess.Add(blog("https://swift.org/blog/", "Swift 5.2 Released!", "Announcing ArgumentParser")),
			sess.Add(blog("https://timheuer.com/blog/", "Deploying .NET Core 3 apps as self-contained", "Skipping CI in GitHub Actions Workflows")),
		)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func count(t *testing.T, st *store.Store, collection string, scopes ...scope.Scope) int {
	t.Helper()

	var n int
	err := st.Do(t.Context(), func(sess *store.Session) error {
		var err error
		n, err = sess.Count(t.Context(), collection, scopes...)
		return err
	})
	if err != nil {
		t.Fatalf("Count(%s): %v", collection, err)
	}
	return n
}

// recordingBackend records applied change sets and can be told to fail.
type recordingBackend struct {
	applied []store.ChangeSet
	rows    []store.Row
	err     error
}

func (b *recordingBackend) EnsureCreated(context.Context, *store.Model) error { return nil }
func (b *recordingBackend) EnsureDeleted(context.Context, *store.Model) error { return nil }

func (b *recordingBackend) Load(context.Context, *store.Model) ([]store.Row, error) {
	return b.rows, nil
}

func (b *recordingBackend) Apply(_ context.Context, _ *store.Model, cs store.ChangeSet) error {
	if b.err != nil {
		return b.err
	}
	b.applied = append(b.applied, cs)
	return nil
}
