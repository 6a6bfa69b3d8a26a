package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Commit applies every staged change as one unit. Changes are detected
// by comparing tracked entities with their last committed state, then
// cascades are expanded and the result is validated before anything is
// written. On failure nothing is applied: staged inserts are detached,
// staged removals are cancelled and modified entities are reverted.
func (s *Session) Commit(ctx context.Context) (err error) {
	if s.closed {
		return ErrSessionClosed
	}

	ctx, span := s.st.tracer.Start(ctx, "store.Commit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	p := newPlan(s)
	if err := p.build(); err != nil {
		s.rollback(p)
		s.st.logger.WarnContext(ctx, "commit rejected", "error", err, "kind", KindOf(err))
		return err
	}

	span.SetAttributes(
		attribute.Int("relmodel.inserts", p.changes.Count(OpInsert)),
		attribute.Int("relmodel.updates", p.changes.Count(OpUpdate)),
		attribute.Int("relmodel.deletes", p.changes.Count(OpDelete)),
	)

	if s.st.backend != nil && len(p.changes) > 0 {
		if err := s.st.backend.Apply(ctx, s.st.model, p.changes); err != nil {
			s.rollback(p)
			s.st.logger.WarnContext(ctx, "commit failed", "error", err)
			return fmt.Errorf("relmodel: apply changes: %w", err)
		}
	}

	s.apply(p)
	s.st.logger.DebugContext(ctx, "commit applied",
		"inserts", p.changes.Count(OpInsert),
		"updates", p.changes.Count(OpUpdate),
		"deletes", p.changes.Count(OpDelete),
	)
	return nil
}

// deletion is a row removed by the commit, tracked or not.
type deletion struct {
	c   *Collection
	key string
	id  uuid.UUID
	e   *Entity
}

type plan struct {
	s          *Session
	discovered []*Entity
	live       []*Entity
	ids        map[*Entity]uuid.UUID
	fks        map[*Entity]map[string]uuid.NullUUID
	deletes    []*deletion
	deleted    map[string]*deletion
	inserts    []*Entity
	updates    []*Entity
	changes    ChangeSet
}

func newPlan(s *Session) *plan {
	return &plan{
		s:       s,
		ids:     make(map[*Entity]uuid.UUID),
		fks:     make(map[*Entity]map[string]uuid.NullUUID),
		deleted: make(map[string]*deletion),
	}
}

func (p *plan) build() error {
	s := p.s

	var roots []*Entity
	for _, e := range s.order {
		if s.entries[e].state != Deleted {
			roots = append(roots, e)
		}
	}
	found, err := s.discover(roots...)
	p.discovered = found
	if err != nil {
		return err
	}

	for _, e := range s.order {
		en := s.entries[e]
		if en.state == Deleted {
			continue
		}
		if err := p.check(e); err != nil {
			return err
		}
		p.live = append(p.live, e)
		p.fks[e] = maps.Clone(e.fks)
		switch {
		case en.state != Added:
			p.ids[e] = e.id
		case p.collection(e).join != nil:
		case e.id != uuid.Nil:
			p.ids[e] = e.id
		default:
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("relmodel: generate identity: %w", err)
			}
			p.ids[e] = id
		}
	}

	p.resolveDependentSide()
	p.resolvePrincipalSide()

	for _, e := range s.order {
		if en := s.entries[e]; en.state == Deleted {
			p.markDeleted(p.collection(e), en.key, e)
		}
	}
	if err := p.cascade(); err != nil {
		return err
	}

	for _, e := range p.live {
		if p.isDeleted(e) {
			continue
		}
		en := s.entries[e]
		if en.state == Added {
			p.inserts = append(p.inserts, e)
			continue
		}
		rec, ok := s.st.tables[e.collection][en.key]
		if !ok {
			return &NotFoundError{Collection: e.collection, Key: en.key}
		}
		if !maps.Equal(rec.fields, e.fields) || !maps.Equal(rec.fks, p.fks[e]) {
			p.updates = append(p.updates, e)
		}
	}
	for _, d := range p.deletes {
		if _, ok := s.st.tables[d.c.name][d.key]; !ok {
			return &NotFoundError{Collection: d.c.name, Key: d.key}
		}
	}

	if err := p.validate(); err != nil {
		return err
	}
	p.changes = p.changeSet()
	return nil
}

func (p *plan) collection(e *Entity) *Collection {
	return p.s.st.model.collections[e.collection]
}

// check rejects members the model does not declare.
func (p *plan) check(e *Entity) error {
	c, err := p.s.st.model.lookup(e.collection)
	if err != nil {
		return err
	}
	for f := range e.fields {
		if !c.hasField(f) {
			return c.unknownField(f)
		}
	}
	for nav, ref := range e.refs {
		n, err := c.navigation(nav)
		if err != nil {
			return err
		}
		if n.many {
			return fmt.Errorf("%w %s.%s: collection navigation used as reference", ErrUnknownNavigation, c.name, nav)
		}
		if ref != nil && ref.collection != n.target {
			return &ConstraintViolation{Collection: c.name, Relation: n.rel.Name, Reason: fmt.Sprintf("%s expects %s, got %s", nav, n.target, ref.collection)}
		}
	}
	for nav, list := range e.lists {
		n, err := c.navigation(nav)
		if err != nil {
			return err
		}
		if !n.many {
			return fmt.Errorf("%w %s.%s: reference navigation used as collection", ErrUnknownNavigation, c.name, nav)
		}
		for _, o := range list {
			if o.collection != n.target {
				return &ConstraintViolation{Collection: c.name, Relation: n.rel.Name, Reason: fmt.Sprintf("%s expects %s, got %s", nav, n.target, o.collection)}
			}
		}
	}
	return nil
}

// snap returns the committed view of e; staged inserts have none.
func (p *plan) snap(e *Entity) snapshot {
	en := p.s.entries[e]
	if en.state == Added {
		return snapshot{}
	}
	return en.snap
}

func (p *plan) isLive(e *Entity) bool {
	_, ok := p.fks[e]
	return ok && !p.isDeleted(e)
}

func (p *plan) isDeleted(e *Entity) bool {
	en, ok := p.s.entries[e]
	if !ok || en.key == "" {
		return false
	}
	_, deleted := p.deleted[trackKey(e.collection, en.key)]
	return deleted
}

func (p *plan) idOf(e *Entity) uuid.NullUUID {
	if id, ok := p.ids[e]; ok && id != uuid.Nil {
		return uuid.NullUUID{UUID: id, Valid: true}
	}
	if e.id != uuid.Nil {
		return uuid.NullUUID{UUID: e.id, Valid: true}
	}
	return uuid.NullUUID{}
}

// resolveDependentSide copies navigations changed on a dependent into
// its foreign keys.
func (p *plan) resolveDependentSide() {
	for _, e := range p.live {
		snap := p.snap(e)
		for nav, ref := range e.refs {
			n := p.collection(e).navs[nav]
			if n.principalSide {
				continue
			}
			if old, ok := snap.refs[nav]; ok && old == ref {
				continue
			}
			if ref == nil {
				p.fks[e][n.rel.ForeignKey] = uuid.NullUUID{}
			} else {
				p.fks[e][n.rel.ForeignKey] = p.idOf(ref)
			}
		}
	}
}

// resolvePrincipalSide assigns dependents newly reachable from a
// principal, then handles the ones it let go of: required dependents are
// deleted, optional ones are disassociated.
func (p *plan) resolvePrincipalSide() {
	type orphan struct {
		d   *Entity
		n   *navigation
		own uuid.NullUUID
	}
	var orphans []orphan

	for _, pr := range p.live {
		snap := p.snap(pr)
		own := p.idOf(pr)
		for _, nav := range slices.Sorted(maps.Keys(p.collection(pr).navs)) {
			n := p.collection(pr).navs[nav]
			if !n.principalSide {
				continue
			}
			fk := n.rel.ForeignKey
			if n.many {
				cur, old := pr.lists[nav], snap.lists[nav]
				for _, d := range cur {
					if p.isLive(d) && (!slices.Contains(old, d) || p.s.entries[d].state == Added) {
						p.fks[d][fk] = own
					}
				}
				for _, d := range old {
					if !slices.Contains(cur, d) {
						orphans = append(orphans, orphan{d, n, own})
					}
				}
				continue
			}
			cur, curOK := pr.refs[nav]
			old, oldOK := snap.refs[nav]
			changed := curOK && (!oldOK || cur != old)
			if cur != nil && p.isLive(cur) && (changed || p.s.entries[cur].state == Added) {
				p.fks[cur][fk] = own
			}
			if changed && oldOK && old != nil && old != cur {
				orphans = append(orphans, orphan{old, n, own})
			}
		}
	}

	for _, o := range orphans {
		if !p.isLive(o.d) || p.s.entries[o.d].state == Added || p.fks[o.d][o.n.rel.ForeignKey] != o.own {
			continue
		}
		if o.n.rel.Required {
			en := p.s.entries[o.d]
			p.markDeleted(p.collection(o.d), en.key, o.d)
		} else {
			p.fks[o.d][o.n.rel.ForeignKey] = uuid.NullUUID{}
		}
	}
}

func (p *plan) markDeleted(c *Collection, key string, e *Entity) *deletion {
	k := trackKey(c.name, key)
	if d, ok := p.deleted[k]; ok {
		return d
	}
	d := &deletion{c: c, key: key, e: e}
	if rec, ok := p.s.st.tables[c.name][key]; ok {
		d.id = rec.id
	}
	p.deleted[k] = d
	p.deletes = append(p.deletes, d)
	return d
}

// cascade expands deletions to dependents. Required dependents are
// deleted whether loaded or not; optional dependents must be tracked so
// their reference can be cleared.
func (p *plan) cascade() error {
	s := p.s
	for i := 0; i < len(p.deletes); i++ {
		del := p.deletes[i]
		if del.c.join != nil || del.id == uuid.Nil {
			continue
		}
		own := uuid.NullUUID{UUID: del.id, Valid: true}
		for _, rel := range del.c.asPrin {
			dc := s.st.model.collections[rel.Dependent]
			for _, e := range p.live {
				if e.collection != dc.name || p.isDeleted(e) || p.fks[e][rel.ForeignKey] != own {
					continue
				}
				if s.entries[e].state == Added {
					continue
				}
				if rel.Required {
					p.markDeleted(dc, s.entries[e].key, e)
				} else {
					p.fks[e][rel.ForeignKey] = uuid.NullUUID{}
				}
			}

			unloaded := 0
			for _, rec := range s.st.sortedRows(dc.name) {
				if rec.fks[rel.ForeignKey] != own {
					continue
				}
				key, _ := dc.key(rec.id, rec.fks)
				if _, ok := s.byKey[trackKey(dc.name, key)]; ok {
					continue
				}
				if _, ok := p.deleted[trackKey(dc.name, key)]; ok {
					continue
				}
				if rel.Required {
					p.markDeleted(dc, key, nil)
				} else {
					unloaded++
				}
			}
			if unloaded > 0 {
				return &StaleReferenceError{Collection: del.c.name, Key: del.key, Relation: rel.Name, Unloaded: unloaded}
			}
		}
	}
	return nil
}

func (p *plan) keyOf(e *Entity) string {
	if p.s.entries[e].state != Added {
		return p.s.entries[e].key
	}
	key, _ := p.collection(e).key(p.ids[e], p.fks[e])
	return key
}

// validate checks references, unique one-to-one keys and identities of
// every row the commit writes.
func (p *plan) validate() error {
	s := p.s
	pending := make(map[string]bool)
	for _, e := range p.inserts {
		if id := p.idOf(e); id.Valid {
			pending[trackKey(e.collection, id.UUID.String())] = true
		}
	}

	for _, e := range slices.Concat(p.inserts, p.updates) {
		c := p.collection(e)
		key := p.keyOf(e)
		for _, fk := range c.fks {
			v := p.fks[e][fk.Name]
			rel := relationName(c, fk.Name)
			if !v.Valid {
				if fk.Required {
					return &ConstraintViolation{Collection: c.name, Key: key, Relation: rel, Reason: "required reference to " + fk.Principal + " is null"}
				}
				continue
			}
			pk := trackKey(fk.Principal, v.UUID.String())
			_, committed := s.st.tables[fk.Principal][v.UUID.String()]
			_, gone := p.deleted[pk]
			if !pending[pk] && (!committed || gone) {
				return &ConstraintViolation{Collection: c.name, Key: key, Relation: rel, Reason: "references missing " + fk.Principal + " " + v.UUID.String()}
			}
		}
		if c.join != nil && s.entries[e].state != Added {
			if newKey, _ := c.key(uuid.Nil, p.fks[e]); newKey != key {
				return &ConstraintViolation{Collection: c.name, Key: key, Reason: "the key of a join record cannot change"}
			}
		}
	}

	seen := make(map[string]bool)
	for _, e := range p.inserts {
		c := p.collection(e)
		key := p.keyOf(e)
		k := trackKey(c.name, key)
		_, committed := s.st.tables[c.name][key]
		_, gone := p.deleted[k]
		if seen[k] || (committed && !gone) {
			return &ConstraintViolation{Collection: c.name, Key: key, Reason: "an entity with the same identity already exists"}
		}
		seen[k] = true
	}

	return p.validateUnique()
}

// validateUnique rejects two dependents holding the same one-to-one
// reference after the commit.
func (p *plan) validateUnique() error {
	s := p.s
	for _, c := range s.st.model.order {
		for _, fk := range c.fks {
			if !fk.Unique {
				continue
			}
			holders := make(map[uuid.UUID]string)
			claim := func(v uuid.NullUUID, key string) error {
				if !v.Valid {
					return nil
				}
				if other, ok := holders[v.UUID]; ok {
					return &ConstraintViolation{
						Collection: c.name,
						Key:        key,
						Relation:   relationName(c, fk.Name),
						Reason:     fmt.Sprintf("%s %s already has a dependent (%s)", fk.Principal, v.UUID, other),
					}
				}
				holders[v.UUID] = key
				return nil
			}
			for _, rec := range s.st.sortedRows(c.name) {
				key, _ := c.key(rec.id, rec.fks)
				k := trackKey(c.name, key)
				if _, ok := s.byKey[k]; ok {
					continue
				}
				if _, ok := p.deleted[k]; ok {
					continue
				}
				if err := claim(rec.fks[fk.Name], key); err != nil {
					return err
				}
			}
			for _, e := range p.live {
				if e.collection != c.name || p.isDeleted(e) {
					continue
				}
				if err := claim(p.fks[e][fk.Name], p.keyOf(e)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func relationName(c *Collection, fk string) string {
	for _, r := range c.asDep {
		if r.ForeignKey == fk {
			return r.Name
		}
	}
	return ""
}

// changeSet orders the changes so that no intermediate state breaks a
// foreign key or a unique reference: updates moving rows off deleted
// principals, deletes (dependents first), other updates, inserts
// (principals first), then updates pointing at inserted rows.
func (p *plan) changeSet() ChangeSet {
	rank := make(map[string]int, len(p.s.st.model.order))
	for i, c := range p.s.st.model.order {
		rank[c.name] = i
	}
	pending := make(map[uuid.UUID]bool, len(p.inserts))
	for _, e := range p.inserts {
		if id := p.idOf(e); id.Valid {
			pending[id.UUID] = true
		}
	}
	refersTo := func(fks map[string]uuid.NullUUID, match func(uuid.UUID) bool) bool {
		for _, v := range fks {
			if v.Valid && match(v.UUID) {
				return true
			}
		}
		return false
	}
	deletedIDs := make(map[uuid.UUID]bool, len(p.deletes))
	for _, d := range p.deletes {
		if d.id != uuid.Nil {
			deletedIDs[d.id] = true
		}
	}

	var early, updates, late []*Entity
	for _, e := range p.updates {
		old := p.s.st.tables[e.collection][p.s.entries[e].key].fks
		switch {
		case refersTo(p.fks[e], func(id uuid.UUID) bool { return pending[id] }):
			late = append(late, e)
		case refersTo(old, func(id uuid.UUID) bool { return deletedIDs[id] }):
			early = append(early, e)
		default:
			updates = append(updates, e)
		}
	}

	var cs ChangeSet
	for _, e := range early {
		cs = append(cs, Change{Op: OpUpdate, Row: p.row(e)})
	}
	deletes := slices.Clone(p.deletes)
	slices.SortStableFunc(deletes, func(a, b *deletion) int { return cmp.Compare(rank[b.c.name], rank[a.c.name]) })
	for _, d := range deletes {
		cs = append(cs, Change{Op: OpDelete, Row: p.s.st.tables[d.c.name][d.key].row(d.c.name)})
	}
	for _, e := range updates {
		cs = append(cs, Change{Op: OpUpdate, Row: p.row(e)})
	}
	inserts := slices.Clone(p.inserts)
	slices.SortStableFunc(inserts, func(a, b *Entity) int { return cmp.Compare(rank[a.collection], rank[b.collection]) })
	for _, e := range inserts {
		cs = append(cs, Change{Op: OpInsert, Row: p.row(e)})
	}
	for _, e := range late {
		cs = append(cs, Change{Op: OpUpdate, Row: p.row(e)})
	}
	return cs
}

func (p *plan) row(e *Entity) Row {
	return Row{
		Collection:  e.collection,
		ID:          p.ids[e],
		Fields:      maps.Clone(e.fields),
		ForeignKeys: maps.Clone(p.fks[e]),
	}
}

// rollback returns the session to its state before Commit.
func (s *Session) rollback(p *plan) {
	for _, e := range p.discovered {
		s.untrack(e)
	}
	for _, e := range slices.Clone(s.order) {
		en := s.entries[e]
		switch en.state {
		case Added:
			s.untrack(e)
		case Deleted:
			en.state = Unchanged
			e.restore(en.snap)
		default:
			if isModified(e, en.snap) {
				e.restore(en.snap)
			}
		}
	}
}

// apply writes a successful commit to the tables and the tracked entities.
func (s *Session) apply(p *plan) {
	for _, d := range p.deletes {
		delete(s.st.tables[d.c.name], d.key)
		if d.e != nil {
			s.untrack(d.e)
		} else if tracked, ok := s.byKey[trackKey(d.c.name, d.key)]; ok {
			s.untrack(tracked)
		}
	}
	for _, e := range p.updates {
		en := s.entries[e]
		rec := s.st.tables[e.collection][en.key]
		rec.fields = maps.Clone(e.fields)
		rec.fks = maps.Clone(p.fks[e])
	}
	for _, e := range p.inserts {
		c := p.collection(e)
		key := p.keyOf(e)
		s.st.insertRow(c, p.row(e))
		if c.join == nil {
			e.id = p.ids[e]
		}
		e.persisted = true
		en := s.entries[e]
		en.state = Unchanged
		en.key = key
		s.byKey[trackKey(e.collection, en.key)] = e
		for nav := range e.refs {
			e.loaded[nav] = true
		}
		for nav := range e.lists {
			e.loaded[nav] = true
		}
	}

	for _, e := range s.order {
		if fks, ok := p.fks[e]; ok {
			e.fks = maps.Clone(fks)
		}
	}
	for _, e := range s.order {
		s.fixup(e)
	}
	for _, e := range s.order {
		s.entries[e].snap = e.snapshot()
	}
}

// fixup makes the navigations of e agree with the committed foreign keys.
func (s *Session) fixup(e *Entity) {
	c := s.st.model.collections[e.collection]
	own := uuid.NullUUID{UUID: e.id, Valid: e.id != uuid.Nil}
	for nav, n := range c.navs {
		fk := n.rel.ForeignKey
		switch {
		case !n.principalSide:
			ref, ok := e.refs[nav]
			if !ok {
				continue
			}
			v := e.fks[fk]
			if ref != nil && (!s.tracked(ref) || ref.id != v.UUID) {
				ref = nil
			}
			if ref == nil && v.Valid {
				ref = s.byKey[trackKey(n.target, v.UUID.String())]
			}
			e.refs[nav] = ref
		case n.many:
			list, ok := e.lists[nav]
			if !ok {
				continue
			}
			kept := slices.DeleteFunc(slices.Clone(list), func(d *Entity) bool {
				return !s.tracked(d) || d.fks[fk] != own
			})
			if e.loaded[nav] {
				for _, d := range s.order {
					if d.collection == n.target && d.fks[fk] == own && !slices.Contains(kept, d) {
						kept = append(kept, d)
					}
				}
			}
			e.lists[nav] = kept
		default:
			ref, ok := e.refs[nav]
			if !ok {
				continue
			}
			if ref != nil && (!s.tracked(ref) || ref.fks[fk] != own) {
				ref = nil
			}
			if ref == nil && e.loaded[nav] {
				for _, d := range s.order {
					if d.collection == n.target && d.fks[fk] == own {
						ref = d
						break
					}
				}
			}
			e.refs[nav] = ref
		}
	}
}

func (s *Session) tracked(e *Entity) bool {
	_, ok := s.entries[e]
	return ok
}
