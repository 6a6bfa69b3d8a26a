package samples

import (
	"context"
	"io"

	"github.com/mickamy/relmodel/scope"
	"github.com/mickamy/relmodel/store"
)

const (
	adonetURL    = "http://blogs.msdn.com/adonet"
	wordpressURL = "https://wordpress.com/"
	mediumURL    = "https://medium.com/@bc/swift"
)

// RunOneToMany resets st, which must hold OneToManyModel(required), and
// walks the blog/post relation through create, query, update and
// delete.
func RunOneToMany(ctx context.Context, st *store.Store, w io.Writer, required bool) ([]Step, error) {
	wt := newWalkthrough(ctx, st, w)
	wt.printf("---- One-to-Many Relationship -----\nRequired: %t\n\n", required)
	if err := wt.reset(); err != nil {
		return nil, err
	}

	err := wt.session(func(sess *store.Session) {
		wt.begin("CREATE")
		_ = wt.commitStep(sess, "Creating a new blog w/o posts", func() error {
			return sess.Add(Blog(adonetURL))
		})
		_ = wt.commitStep(sess, "Creating a new blog w/ posts", func() error {
			return sess.Add(Blog(wordpressURL,
				Post("My first app", "I wrote an app using EF Core!"),
				Post("My second app", "I wrote another app using EF Core!"),
			))
		})
		_ = wt.commitStep(sess, "Creating a post w/o blog", func() error {
			return sess.Add(Post("EF Core Tutorial", "Getting started with EF Core"))
		})
		_ = wt.commitStep(sess, "Creating a post w/ blog", func() error {
			p := Post("Swift tutorial", "Getting started with Swift")
			p.SetRef("Blog", Blog(mediumURL))
			return sess.Add(p)
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("QUERY")
		wt.count(sess, "Blog")
		wt.count(sess, "Post")
		_ = wt.step("Querying for a blog w/o post", func() error {
			_, err := sess.First(ctx, "Blog", scope.Eq("Url", adonetURL))
			return err
		})
		_ = wt.step("Querying for a blog w/ posts", func() error {
			b, err := sess.First(ctx, "Blog", scope.Eq("Url", wordpressURL), scope.Include("Posts"))
			if err != nil {
				return err
			}
			wt.printf(": %d posts", len(b.Related("Posts")))
			return nil
		})
		_ = wt.step("Querying for a post w/o blog", func() error {
			_, err := sess.First(ctx, "Post", scope.Eq("Title", "EF Core Tutorial"))
			return err
		})
		_ = wt.step("Querying for a post w/ blog", func() error {
			b, err := sess.First(ctx, "Blog", scope.Eq("Url", mediumURL), scope.Include("Posts"))
			if err != nil {
				return err
			}
			posts := b.Related("Posts")
			if len(posts) == 0 {
				return errNotLoaded
			}
			wt.printf(": %s", posts[0].Get("Title"))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("UPDATE")
		_ = wt.commitStep(sess, "Update a blog w/o post by adding a post", func() error {
			b, err := sess.First(ctx, "Blog", scope.Eq("Url", adonetURL))
			if err != nil {
				return err
			}
			b.Link("Posts", Post("How to create Hello, World app in C++", "Lorem ipsum"))
			return nil
		})
		_ = wt.commitStep(sess, "Update a blog by adding a post", func() error {
			b, err := sess.First(ctx, "Blog", scope.Eq("Url", wordpressURL), scope.Include("Posts"))
			if err != nil {
				return err
			}
			b.Link("Posts", Post("Smart pointers", "unique_ptr and shared_ptr"))
			return nil
		})
		_ = wt.commitStep(sess, "Update a post w/o blog by adding a blog", func() error {
			p, err := sess.First(ctx, "Post", scope.Eq("Title", "EF Core Tutorial"))
			if err != nil {
				return err
			}
			p.SetRef("Blog", Blog("https://do-coding.com/blog"))
			return nil
		})
		_ = wt.commitStep(sess, "Update a post w/ blog", func() error {
			b, err := sess.First(ctx, "Blog", scope.Eq("Url", mediumURL), scope.Include("Posts"))
			if err != nil {
				return err
			}
			posts := b.Related("Posts")
			if len(posts) == 0 {
				return errNotLoaded
			}
			posts[0].Set("Title", "Do some Swift stuff")
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("DELETE")
		_ = wt.commitStep(sess, "Delete a blog w/ posts", func() error {
			p, err := sess.First(ctx, "Post", scope.Eq("Title", "How to create Hello, World app in C++"))
			if err != nil {
				return err
			}
			id, ok := p.ForeignKey("BlogId")
			if !ok {
				return &store.NotFoundError{Collection: "Blog"}
			}
			b, err := sess.Find(ctx, "Blog", id, "Posts")
			if err != nil {
				return err
			}
			return sess.Remove(b)
		})
		_ = wt.commitStep(sess, "Delete a post w/ blog", func() error {
			p, err := sess.First(ctx, "Post", scope.Eq("Title", "My first app"))
			if err != nil {
				return err
			}
			return sess.Remove(p)
		})
	})
	if err != nil {
		return nil, err
	}
	return wt.steps, nil
}
