package samples

import (
	"context"
	"errors"
	"io"

	"github.com/mickamy/relmodel/scope"
	"github.com/mickamy/relmodel/store"
)

var errNotLoaded = errors.New("navigation not loaded")

// RunOneToOne resets st, which must hold OneToOneModel(p, required), and
// walks the student/address relation through create, query, update and
// delete. Failed steps are reported in the returned steps; the error is
// reserved for setup failures.
func RunOneToOne(ctx context.Context, st *store.Store, w io.Writer, p Principal, required bool) ([]Step, error) {
	wt := newWalkthrough(ctx, st, w)
	wt.printf("---- One-to-One Relationship -----\nPrincipal: %s\nRequired: %t\n\n", p, required)
	if err := wt.reset(); err != nil {
		return nil, err
	}

	err := wt.session(func(sess *store.Session) {
		wt.begin("CREATE")
		_ = wt.commitStep(sess, "Creating a student w/o address", func() error {
			return sess.Add(Student("Micheal", ""))
		})
		_ = wt.commitStep(sess, "Creating a student w/ address", func() error {
			return sess.Add(Student("John", "LA"))
		})
		_ = wt.commitStep(sess, "Creating an address w/ student", func() error {
			a := Address("Chicago")
			a.SetRef("Student", Student("Karl", ""))
			return sess.Add(a)
		})
		_ = wt.commitStep(sess, "Creating an address w/o student", func() error {
			return sess.Add(Address("Istanbul"))
		})

		wt.begin("QUERY")
		wt.count(sess, "Student")
		wt.count(sess, "Address")
		_ = wt.step("Querying for student Micheal", func() error {
			_, err := sess.First(ctx, "Student", scope.Eq("Name", "Micheal"))
			return err
		})
		_ = wt.step("Querying for address Chicago", func() error {
			_, err := sess.First(ctx, "Address", scope.Eq("City", "Chicago"))
			return err
		})
		// Entities added in this session keep the navigations they were
		// created with, so no include is needed.
		_ = wt.step("Querying for student w/ address", func() error {
			s, err := sess.First(ctx, "Student", scope.Eq("Name", "John"))
			if err != nil {
				return err
			}
			a := s.Ref("Address")
			if a == nil {
				return errNotLoaded
			}
			wt.printf(": city for John is %s", a.Get("City"))
			return nil
		})
		_ = wt.step("Querying for address w/ student", func() error {
			a, err := sess.First(ctx, "Address", scope.Eq("City", "Chicago"))
			if err != nil {
				return err
			}
			s := a.Ref("Student")
			if s == nil {
				return errNotLoaded
			}
			wt.printf(": student for Chicago is %s", s.Get("Name"))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("UPDATE")
		_ = wt.commitStep(sess, "Update name for a student", func() error {
			s, err := sess.First(ctx, "Student", scope.Eq("Name", "John"))
			if err != nil {
				return err
			}
			s.Set("Name", "Julia")
			return nil
		})
		_ = wt.commitStep(sess, "Update city for an address", func() error {
			a, err := sess.First(ctx, "Address", scope.Eq("City", "Chicago"))
			if err != nil {
				return err
			}
			a.Set("City", "New York")
			return nil
		})
		_ = wt.commitStep(sess, "Query a student w/o address and update Address", func() error {
			s, err := sess.First(ctx, "Student", scope.Eq("Name", "Micheal"))
			if err != nil {
				return err
			}
			s.SetRef("Address", Address("London"))
			return nil
		})
		_ = wt.commitStep(sess, "Query an address w/o student and update Student", func() error {
			a, err := sess.First(ctx, "Address", scope.Eq("City", "Istanbul"))
			if err != nil {
				return err
			}
			a.SetRef("Student", Student("Mert", ""))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("QUERY FOR NAVIGATION PROPERTIES AFTER UPDATES")
		wt.count(sess, "Student")
		wt.count(sess, "Address")
		_ = wt.step("Query for the student record with the new address", func() error {
			s, err := sess.First(ctx, "Student", scope.Eq("Name", "Micheal"), scope.Include("Address"))
			if err != nil {
				return err
			}
			a := s.Ref("Address")
			if a == nil {
				return errNotLoaded
			}
			wt.printf(": city for Micheal is %s", a.Get("City"))
			return nil
		})
		_ = wt.step("Query for the address record with new student info", func() error {
			a, err := sess.First(ctx, "Address", scope.Eq("City", "Istanbul"), scope.Include("Student"))
			if err != nil {
				return err
			}
			s := a.Ref("Student")
			if s == nil {
				return errNotLoaded
			}
			wt.printf(": student for Istanbul is %s", s.Get("Name"))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	wt.printf("\n")
	err = wt.session(func(sess *store.Session) {
		wt.begin("DELETE")
		_ = wt.commitStep(sess, "Deleting student w/ address", func() error {
			scopes := []scope.Scope{scope.Eq("Name", "Karl")}
			if !required && p == PrincipalStudent {
				scopes = append(scopes, scope.Include("Address"))
			}
			s, err := sess.First(ctx, "Student", scopes...)
			if err != nil {
				return err
			}
			return sess.Remove(s)
		})
		_ = wt.commitStep(sess, "Deleting address w/ student", func() error {
			scopes := []scope.Scope{scope.Eq("City", "LA")}
			if !required && p == PrincipalAddress {
				scopes = append(scopes, scope.Include("Student"))
			}
			a, err := sess.First(ctx, "Address", scopes...)
			if err != nil {
				return err
			}
			return sess.Remove(a)
		})
	})
	if err != nil {
		return nil, err
	}
	return wt.steps, nil
}
