package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mickamy/relmodel/store"
)

func TestSessionIsExclusive(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	sess := openSession(t, st)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if _, err := st.Session(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Session err = %v, want DeadlineExceeded", err)
	}

	sess.Close()
	next, err := st.Session(t.Context())
	if err != nil {
		t.Fatalf("Session after Close: %v", err)
	}
	next.Close()
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	sess := openSession(t, st)
	sess.Close()
	sess.Close()

	if err := sess.Add(blog("x")); !errors.Is(err, store.ErrSessionClosed) {
		t.Errorf("Add err = %v, want ErrSessionClosed", err)
	}
	if err := sess.Remove(blog("x")); !errors.Is(err, store.ErrSessionClosed) {
		t.Errorf("Remove err = %v, want ErrSessionClosed", err)
	}
	if err := sess.Commit(t.Context()); !errors.Is(err, store.ErrSessionClosed) {
		t.Errorf("Commit err = %v, want ErrSessionClosed", err)
	}
	if _, err := sess.Query(t.Context(), "Blog"); !errors.Is(err, store.ErrSessionClosed) {
		t.Errorf("Query err = %v, want ErrSessionClosed", err)
	}
	if _, err := sess.Count(t.Context(), "Blog"); !errors.Is(err, store.ErrSessionClosed) {
		t.Errorf("Count err = %v, want ErrSessionClosed", err)
	}
}

func TestCloseDiscardsStagedWork(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	sess := openSession(t, st)
	if err := sess.Add(blog("https://swift.org/blog/")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sess.Close()

	if got := count(t, st, "Blog"); got != 0 {
		t.Errorf("blogs = %d, want 0", got)
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))

	errAbort := errors.New("abort")
	err := st.Do(t.Context(), func(sess *store.Session) error {
		if err := sess.Add(blog("https://swift.org/blog/")); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Do err = %v, want %v", err, errAbort)
	}
	if got := count(t, st, "Blog"); got != 0 {
		t.Errorf("blogs after abort = %d, want 0", got)
	}

	err = st.Do(t.Context(), func(sess *store.Session) error {
		return sess.Add(blog("https://swift.org/blog/"))
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := count(t, st, "Blog"); got != 1 {
		t.Errorf("blogs = %d, want 1", got)
	}
}

func TestAddUnknownCollection(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	sess := openSession(t, st)
	if err := sess.Add(store.NewEntity("Blogs", nil)); !errors.Is(err, store.ErrUnknownCollection) {
		t.Errorf("err = %v, want ErrUnknownCollection", err)
	}
}

func TestAddCancelsRemoval(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	seedBlogs(t, st)

	sess := openSession(t, st)
	b, err := sess.First(t.Context(), "Blog")
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if err := sess.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := sess.State(b); got != store.Deleted {
		t.Errorf("State = %v, want Deleted", got)
	}
	if err := sess.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := sess.State(b); got != store.Unchanged {
		t.Errorf("State = %v, want Unchanged", got)
	}
	if err := sess.Commit(t.Context()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	sess.Close()

	if got := count(t, st, "Blog"); got != 2 {
		t.Errorf("blogs = %d, want 2", got)
	}
}

func TestAddEntityFromEarlierSession(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	seedBlogs(t, st)

	var b *store.Entity
	err := st.Do(t.Context(), func(sess *store.Session) error {
		var err error
		b, err = sess.First(t.Context(), "Blog")
		return err
	})
	if err != nil {
		t.Fatalf("First: %v", err)
	}

	b.Set("Url", "https://example.com/")
	err = st.Do(t.Context(), func(sess *store.Session) error {
		if err := sess.Add(b); err != nil {
			return err
		}
		if got := sess.State(b); got != store.Unchanged {
			t.Errorf("State = %v, want Unchanged", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if got := count(t, st, "Blog"); got != 2 {
		t.Errorf("blogs = %d, want 2", got)
	}
}

func TestEnsureWithoutBackend(t *testing.T) {
	t.Parallel()

	st := newStore(t, blogModel(true))
	seedBlogs(t, st)

	if err := st.EnsureCreated(t.Context()); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if got := count(t, st, "Blog"); got != 2 {
		t.Errorf("blogs after EnsureCreated = %d, want 2", got)
	}

	if err := st.EnsureDeleted(t.Context()); err != nil {
		t.Fatalf("EnsureDeleted: %v", err)
	}
	if got := count(t, st, "Blog"); got != 0 {
		t.Errorf("blogs after EnsureDeleted = %d, want 0", got)
	}
	if got := count(t, st, "Post"); got != 0 {
		t.Errorf("posts after EnsureDeleted = %d, want 0", got)
	}
}

func TestEnsureCreatedLoadsBackendRows(t *testing.T) {
	t.Parallel()

	source := &recordingBackend{}
	st := newStore(t, blogModel(true), store.WithBackend(source))
	seedBlogs(t, st)

	var rows []store.Row
	for _, cs := range source.applied {
		for _, c := range cs {
			rows = append(rows, c.Row)
		}
	}

	reopened := newStore(t, blogModel(true), store.WithBackend(&recordingBackend{rows: rows}))
	if err := reopened.EnsureCreated(t.Context()); err != nil {
		t.Fatalf("EnsureCreated: %v", err)
	}
	if got := count(t, reopened, "Blog"); got != 2 {
		t.Errorf("blogs = %d, want 2", got)
	}
	if got := count(t, reopened, "Post"); got != 4 {
		t.Errorf("posts = %d, want 4", got)
	}

	if err := reopened.EnsureDeleted(t.Context()); err != nil {
		t.Fatalf("EnsureDeleted: %v", err)
	}
	if got := count(t, reopened, "Blog"); got != 0 {
		t.Errorf("blogs after EnsureDeleted = %d, want 0", got)
	}
}
