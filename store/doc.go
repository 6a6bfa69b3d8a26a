// Package store provides an in-memory relational entity store with
// one-to-one, one-to-many and many-to-many relationships.
//
// A [Model] declares collections and relations. Each relation is either
// required, so dependents are deleted with their principal, or optional,
// so dependents are disassociated instead. A [Store] holds the committed
// rows and optionally mirrors them to a [Backend]. Work happens in a
// [Session]:
//
//	err := st.Do(ctx, func(sess *store.Session) error {
//	    blog := store.NewEntity("Blog", map[string]string{"Url": "https://blog.afach.de/"})
//	    blog.Link("Posts", store.NewEntity("Post", map[string]string{"Title": "A simple, lock-free object-pool"}))
//	    return sess.Add(blog)
//	})
//
// # Loading
//
// Reads never populate navigations implicitly. Pass [scope.Include] to
// load them:
//
//	blogs, err := sess.Query(ctx, "Blog", scope.Include("Posts"))
//
// # Commit
//
// [Session.Commit] is all or nothing. A failed commit leaves the store
// untouched, detaches staged inserts, cancels staged removals and
// reverts modified entities to their committed values.
//
// # Errors
//
//   - [ConstraintViolation] - a required reference is null, a reference
//     points at a missing principal, or an identity is duplicated
//   - [StaleReferenceError] - removing a principal needs optional
//     dependents that were not loaded into the session
//   - [NotFoundError] - the identity does not exist
//
// Use [KindOf] to branch on the kind of an error.
package store
