package samples

import (
	"context"
	"fmt"
	"io"

	"github.com/mickamy/relmodel/store"
)

// Step is the outcome of one walkthrough step. Err is nil when the step
// succeeded.
type Step struct {
	Section string
	Name    string
	Err     error
}

// walkthrough prints numbered sections and records every step.
type walkthrough struct {
	ctx     context.Context
	st      *store.Store
	w       io.Writer
	section string
	steps   []Step
}

func newWalkthrough(ctx context.Context, st *store.Store, w io.Writer) *walkthrough {
	return &walkthrough{ctx: ctx, st: st, w: w}
}

func (wt *walkthrough) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(wt.w, format, args...)
}

func (wt *walkthrough) begin(section string) {
	wt.section = section
	wt.printf("----- %s -----\n", section)
}

// step runs fn and reports its outcome on the line named after it.
func (wt *walkthrough) step(name string, fn func() error) error {
	wt.printf("%s", name)
	err := fn()
	if err != nil {
		wt.printf(" ==> FAILED: %v\n", err)
	} else {
		wt.printf(" ==> Done\n")
	}
	wt.steps = append(wt.steps, Step{Section: wt.section, Name: name, Err: err})
	return err
}

// session runs fn in a session that stays open for every step fn
// takes, like one unit of work spanning several commits.
func (wt *walkthrough) session(fn func(sess *store.Session)) error {
	sess, err := wt.st.Session(wt.ctx)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}
	defer sess.Close()
	fn(sess)
	return nil
}

// commitStep runs fn and commits when it succeeds.
func (wt *walkthrough) commitStep(sess *store.Session, name string, fn func() error) error {
	return wt.step(name, func() error {
		if err := fn(); err != nil {
			return err
		}
		return sess.Commit(wt.ctx)
	})
}

func (wt *walkthrough) reset() error {
	if err := wt.st.EnsureDeleted(wt.ctx); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	return wt.st.EnsureCreated(wt.ctx) //nolint:wrapcheck // pass through
}

func (wt *walkthrough) count(sess *store.Session, collection string) int {
	n, err := sess.Count(wt.ctx, collection)
	if err != nil {
		wt.printf("%s.Count: %v\n", collection, err)
		return 0
	}
	wt.printf("%s.Count: %d\n", collection, n)
	return n
}
