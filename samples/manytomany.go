package samples

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/mickamy/relmodel/scope"
	"github.com/mickamy/relmodel/store"
)

const hydroelasticity = "Hydroelasticity of Ships"

// RunManyToMany resets st, which must hold ManyToManyModel, and walks
// the book/author relation through create, query, update and delete.
func RunManyToMany(ctx context.Context, st *store.Store, w io.Writer) ([]Step, error) {
	wt := newWalkthrough(ctx, st, w)
	wt.printf("---- Many-to-Many Relationship -----\n\n")
	if err := wt.reset(); err != nil {
		return nil, err
	}

	err := wt.session(func(sess *store.Session) {
		wt.begin("CREATE")
		bishop := Author("R.E.D. Bishop")
		_ = wt.commitStep(sess, "Creating a book w/ single author", func() error {
			return sess.Add(Link(Book("Vibration"), bishop))
		})
		_ = wt.commitStep(sess, "Creating a book w/ multiple authors", func() error {
			hydro := Book(hydroelasticity)
			if err := sess.Add(Link(hydro, bishop)); err != nil {
				return err
			}
			return sess.Add(Link(hydro, Author("W.G. Price")))
		})
		_ = wt.commitStep(sess, "Creating a book w/o author", func() error {
			return sess.Add(Link(Book("What Went Wrong ?"), nil))
		})
		_ = wt.commitStep(sess, "Creating an author w/o book", func() error {
			return sess.Add(Link(nil, Author("Bernard Lewis")))
		})
		_ = wt.commitStep(sess, "Create another record", func() error {
			return sess.Add(Link(Book("Open"), Author("Andre Agasi")))
		})
		_ = wt.commitStep(sess, "Create another record", func() error {
			return sess.Add(Link(Book("What Went Wrong ?"), Author("Bernard Lewis")))
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("QUERY")
		_ = wt.step("Query a book w/ single author", func() error {
			b, err := sess.First(ctx, "Book", scope.Eq("Name", "Open"), scope.Include("BookAuthorLinks"))
			if err != nil {
				return err
			}
			links := b.Related("BookAuthorLinks")
			if len(links) != 1 {
				return fmt.Errorf("%d join records, want 1", len(links))
			}
			wt.printf(": same book %t, author loaded %t", links[0].Ref("Book") == b, links[0].Ref("Author") != nil)
			return nil
		})
		_ = wt.step("Query authors of a book from the book", func() error {
			b, err := sess.First(ctx, "Book", scope.Eq("Name", hydroelasticity), scope.Include("BookAuthorLinks.Author"))
			if err != nil {
				return err
			}
			wt.printf(": %s", names(linked(b, "Author"), "FullName"))
			return nil
		})
		_ = wt.step("Query authors of a book from the authors", func() error {
			authors, err := sess.Query(ctx, "Author", scope.Include("BookAuthorLinks.Book"))
			if err != nil {
				return err
			}
			authors = slices.DeleteFunc(authors, func(a *store.Entity) bool {
				return !slices.ContainsFunc(linked(a, "Book"), func(b *store.Entity) bool {
					return b.Get("Name") == hydroelasticity
				})
			})
			wt.printf(": %s", names(authors, "FullName"))
			return nil
		})
		_ = wt.step("Query books of an author from the author", func() error {
			a, err := sess.First(ctx, "Author", scope.Eq("FullName", "R.E.D. Bishop"), scope.Include("BookAuthorLinks.Book"))
			if err != nil {
				return err
			}
			wt.printf(": %s", names(linked(a, "Book"), "Name"))
			return nil
		})
		_ = wt.step("Query books of an author from the books", func() error {
			books, err := sess.Query(ctx, "Book", scope.Include("BookAuthorLinks.Author"))
			if err != nil {
				return err
			}
			books = slices.DeleteFunc(books, func(b *store.Entity) bool {
				return !slices.ContainsFunc(linked(b, "Author"), func(a *store.Entity) bool {
					return a.Get("FullName") == "R.E.D. Bishop"
				})
			})
			wt.printf(": %s", names(books, "Name"))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("UPDATE")
		_ = wt.commitStep(sess, "Update book author", func() error {
			b, err := sess.First(ctx, "Book", scope.Eq("Name", "Open"), scope.Include("BookAuthorLinks.Author"))
			if err != nil {
				return err
			}
			authors := linked(b, "Author")
			if len(authors) == 0 {
				return errNotLoaded
			}
			authors[0].Set("FullName", "Andre Agassi")
			return nil
		})
		_ = wt.commitStep(sess, "Update author's book name", func() error {
			a, err := sess.First(ctx, "Author", scope.Eq("FullName", "Andre Agassi"), scope.Include("BookAuthorLinks.Book"))
			if err != nil {
				return err
			}
			books := linked(a, "Book")
			if len(books) == 0 {
				return errNotLoaded
			}
			books[0].Set("Name", "Open II")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("DELETE")
		_ = wt.commitStep(sess, "Remove author only", func() error {
			a, err := sess.First(ctx, "Author", scope.Eq("FullName", "Andre Agassi"))
			if err != nil {
				return err
			}
			return sess.Remove(a)
		})
		_ = wt.commitStep(sess, "Remove book only", func() error {
			b, err := sess.First(ctx, "Book", scope.Eq("Name", "What Went Wrong ?"), scope.Include("BookAuthorLinks"))
			if err != nil {
				return err
			}
			return sess.Remove(b)
		})
	})
	if err != nil {
		return nil, err
	}
	return wt.steps, nil
}

// linked returns the entities on the far side of e's join records.
func linked(e *store.Entity, ref string) []*store.Entity {
	var out []*store.Entity
	for _, l := range e.Related("BookAuthorLinks") {
		if o := l.Ref(ref); o != nil {
			out = append(out, o)
		}
	}
	return out
}

func names(entities []*store.Entity, field string) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Get(field))
	}
	return out
}
