package store

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mickamy/relmodel/scope"
)

// queryPlan collects scope fragments for an in-memory read.
type queryPlan struct {
	conds    []scope.Condition
	orders   []ordering
	limit    *int
	offset   int
	includes []string
}

type ordering struct {
	field string
	desc  bool
}

func (q *queryPlan) ApplyCondition(c scope.Condition) { q.conds = append(q.conds, c) }
func (q *queryPlan) ApplyOrderBy(field string, desc bool) {
	q.orders = append(q.orders, ordering{field, desc})
}
func (q *queryPlan) ApplyLimit(n int)         { q.limit = &n }
func (q *queryPlan) ApplyOffset(n int)        { q.offset = n }
func (q *queryPlan) ApplyInclude(path string) { q.includes = append(q.includes, path) }

var _ scope.Applier = (*queryPlan)(nil)

// Query returns the committed entities of collection that satisfy the
// conditions among scopes. Navigations are populated only for the
// paths passed with scope.Include; every other navigation stays
// unloaded. Entities already tracked by the session are returned as
// the same instances.
func (s *Session) Query(ctx context.Context, collection string, scopes ...scope.Scope) (result []*Entity, err error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	_, span := s.st.tracer.Start(ctx, "store.Query",
		trace.WithAttributes(attribute.String("relmodel.collection", collection)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("relmodel.results", len(result)))
		span.End()
	}()

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, q, err := s.prepare(collection, scopes)
	if err != nil {
		return nil, err
	}
	for _, rec := range s.match(c, q, true) {
		result = append(result, s.materialize(c, rec))
	}
	for _, path := range q.includes {
		if err := s.include(c, result, path); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// First returns the first entity Query would return, or a NotFoundError.
func (s *Session) First(ctx context.Context, collection string, scopes ...scope.Scope) (*Entity, error) {
	list, err := s.Query(ctx, collection, append(slices.Clone(scopes), scope.Limit(1))...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &NotFoundError{Collection: collection}
	}
	return list[0], nil
}

// Find returns the entity with the given identity, loading includes.
func (s *Session) Find(ctx context.Context, collection string, id uuid.UUID, includes ...string) (*Entity, error) {
	scopes := []scope.Scope{scope.Eq("id", id)}
	for _, path := range includes {
		scopes = append(scopes, scope.Include(path))
	}
	list, err := s.Query(ctx, collection, scopes...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &NotFoundError{Collection: collection, Key: id.String()}
	}
	return list[0], nil
}

// Count returns the number of committed entities matching the
// conditions among scopes. Ordering, paging and includes are ignored.
func (s *Session) Count(_ context.Context, collection string, scopes ...scope.Scope) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, q, err := s.prepare(collection, scopes)
	if err != nil {
		return 0, err
	}
	return len(s.match(c, q, false)), nil
}

func (s *Session) prepare(collection string, scopes []scope.Scope) (*Collection, *queryPlan, error) {
	c, err := s.st.model.lookup(collection)
	if err != nil {
		return nil, nil, err
	}
	q := &queryPlan{}
	for _, sc := range scopes {
		sc.Apply(q)
	}
	for _, cond := range q.conds {
		if err := c.column(cond.Field); err != nil {
			return nil, nil, err
		}
	}
	for _, o := range q.orders {
		if err := c.column(o.field); err != nil {
			return nil, nil, err
		}
	}
	return c, q, nil
}

func (s *Session) match(c *Collection, q *queryPlan, paged bool) []*record {
	var out []*record
	for _, rec := range s.st.sortedRows(c.name) {
		if q.matches(c, rec) {
			out = append(out, rec)
		}
	}
	if !paged {
		return out
	}
	if len(q.orders) > 0 {
		slices.SortStableFunc(out, func(a, b *record) int {
			for _, o := range q.orders {
				av, aok := a.value(c, o.field)
				bv, bok := b.value(c, o.field)
				r := cmp.Or(compareBool(aok, bok), strings.Compare(av, bv))
				if o.desc {
					r = -r
				}
				if r != 0 {
					return r
				}
			}
			return 0
		})
	}
	if q.offset > 0 {
		out = out[min(q.offset, len(out)):]
	}
	if q.limit != nil && *q.limit >= 0 && *q.limit < len(out) {
		out = out[:*q.limit]
	}
	return out
}

func (q *queryPlan) matches(c *Collection, rec *record) bool {
	for _, cond := range q.conds {
		if !cond.Match(rec.value(c, cond.Field)) {
			return false
		}
	}
	return true
}

// compareBool orders NULL before any value.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func (r *record) value(c *Collection, field string) (string, bool) {
	if field == "id" {
		if c.join != nil {
			return "", false
		}
		return r.id.String(), true
	}
	if fk, ok := r.fks[field]; ok {
		return fk.UUID.String(), fk.Valid
	}
	v, ok := r.fields[field]
	return v, ok
}

// materialize returns the tracked instance for rec, creating and
// tracking one when the session has none.
func (s *Session) materialize(c *Collection, rec *record) *Entity {
	key, _ := c.key(rec.id, rec.fks)
	if e, ok := s.byKey[trackKey(c.name, key)]; ok {
		return e
	}
	e := newEntity(c.name)
	e.id = rec.id
	e.persisted = true
	for k, v := range rec.fields {
		e.fields[k] = v
	}
	for k, v := range rec.fks {
		e.fks[k] = v
	}
	s.track(e, Unchanged, key)
	return e
}

// include loads the navigation path for entities; dotted paths continue
// from the entities loaded by the previous segment.
func (s *Session) include(c *Collection, entities []*Entity, path string) error {
	for _, part := range strings.Split(path, ".") {
		n, err := c.navigation(part)
		if err != nil {
			return err
		}
		entities = s.load(n, entities)
		c = s.st.model.collections[n.target]
	}
	return nil
}

// load populates navigation n on entities and returns the related
// entities, each once.
func (s *Session) load(n *navigation, entities []*Entity) []*Entity {
	target := s.st.model.collections[n.target]
	fk := n.rel.ForeignKey
	var related []*Entity
	add := func(e *Entity) {
		if !slices.Contains(related, e) {
			related = append(related, e)
		}
	}

	for _, e := range entities {
		if !n.principalSide {
			var pr *Entity
			if v := e.fks[fk]; v.Valid {
				if rec, ok := s.st.tables[target.name][v.UUID.String()]; ok {
					pr = s.materialize(target, rec)
				}
			}
			s.loadRef(e, n.name, pr)
			if pr == nil {
				continue
			}
			add(pr)
			if inv := n.inverse(); inv != "" {
				if n.rel.oneToOne {
					s.loadRef(pr, inv, e)
				} else {
					s.appendLoaded(pr, inv, e)
				}
			}
			continue
		}

		if e.id == uuid.Nil {
			continue
		}
		own := uuid.NullUUID{UUID: e.id, Valid: true}
		var deps []*Entity
		for _, rec := range s.st.sortedRows(target.name) {
			if rec.fks[fk] == own {
				deps = append(deps, s.materialize(target, rec))
			}
		}
		if n.many {
			s.loadList(e, n.name, deps)
		} else {
			var dep *Entity
			if len(deps) > 0 {
				dep = deps[0]
			}
			s.loadRef(e, n.name, dep)
		}
		for _, d := range deps {
			add(d)
			if inv := n.inverse(); inv != "" {
				s.loadRef(d, inv, e)
			}
		}
	}
	return related
}

// loadRef sets a to-one navigation unless the caller changed it since
// the last commit.
func (s *Session) loadRef(e *Entity, nav string, v *Entity) {
	en := s.entries[e]
	cur, curOK := e.refs[nav]
	old, oldOK := en.snap.refs[nav]
	if curOK == oldOK && cur == old {
		e.refs[nav] = v
		en.snap.refs[nav] = v
	}
	e.loaded[nav] = true
	en.snap.loaded[nav] = true
}

// loadList replaces a to-many navigation with the committed dependents,
// keeping entities the caller linked or unlinked since the last commit.
func (s *Session) loadList(e *Entity, nav string, deps []*Entity) {
	en := s.entries[e]
	cur, old := e.lists[nav], en.snap.lists[nav]
	merged := []*Entity{}
	for _, d := range deps {
		if slices.Contains(old, d) && !slices.Contains(cur, d) {
			continue
		}
		merged = append(merged, d)
	}
	for _, d := range cur {
		if !slices.Contains(merged, d) && !slices.Contains(old, d) {
			merged = append(merged, d)
		}
	}
	e.lists[nav] = merged
	en.snap.lists[nav] = slices.Clone(deps)
	e.loaded[nav] = true
	en.snap.loaded[nav] = true
}

// appendLoaded adds d to a to-many navigation being fixed up from the
// dependent side, without marking the navigation loaded.
func (s *Session) appendLoaded(e *Entity, nav string, d *Entity) {
	en := s.entries[e]
	if slices.Contains(e.lists[nav], d) || slices.Contains(en.snap.lists[nav], d) {
		return
	}
	e.lists[nav] = append(slices.Clone(e.lists[nav]), d)
	en.snap.lists[nav] = append(slices.Clone(en.snap.lists[nav]), d)
}
