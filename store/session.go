package store

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Session is the unit of work of a Store: it tracks the entities it has
// read or staged and applies their changes on Commit. Only one session
// is open at a time; Close releases it.
type Session struct {
	st      *Store
	entries map[*Entity]*entry
	order   []*Entity
	byKey   map[string]*Entity
	closed  bool
	once    sync.Once
}

type entry struct {
	state State // Added, Unchanged or Deleted; Modified is derived
	key   string
	snap  snapshot
}

func newSession(st *Store) *Session {
	return &Session{
		st:      st,
		entries: make(map[*Entity]*entry),
		byKey:   make(map[string]*Entity),
	}
}

// Close discards staged work and releases the session. It is safe to
// call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closed = true
		s.entries, s.order, s.byKey = nil, nil, nil
		<-s.st.sem
	})
}

// Add stages e, and every new entity reachable through its navigations,
// for insertion at the next Commit. Adding an entity staged for removal
// cancels the removal. A persisted entity whose row has been deleted is
// inserted again with its identity.
func (s *Session) Add(e *Entity) error {
	if s.closed {
		return ErrSessionClosed
	}
	if e == nil {
		return errors.New("relmodel: add nil entity")
	}
	c, err := s.st.model.lookup(e.collection)
	if err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if en, ok := s.entries[e]; ok {
		if en.state == Deleted {
			en.state = Unchanged
		}
		return nil
	}
	if e.persisted {
		if err := s.attach(c, e); err != nil {
			return err
		}
	} else {
		s.track(e, Added, "")
	}
	_, err = s.discover(e)
	return err
}

// attach tracks an entity persisted by an earlier commit as unchanged.
// When its row has been deleted since, the entity is staged for
// insertion again under the same identity.
func (s *Session) attach(c *Collection, e *Entity) error {
	key, _ := c.key(e.id, e.fks)
	if other, ok := s.byKey[trackKey(c.name, key)]; ok && other != e {
		return &ConstraintViolation{
			Collection: c.name,
			Key:        key,
			Reason:     "another instance with the same identity is already tracked",
		}
	}
	if _, ok := s.st.tables[c.name][key]; !ok {
		s.track(e, Added, "")
		return nil
	}
	s.track(e, Unchanged, key)
	return nil
}

// Remove stages the deletion of e. Removing a staged insert unstages it;
// removing an entity the store does not hold returns a NotFoundError.
func (s *Session) Remove(e *Entity) error {
	if s.closed {
		return ErrSessionClosed
	}
	if e == nil {
		return errors.New("relmodel: remove nil entity")
	}
	c, err := s.st.model.lookup(e.collection)
	if err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if en, ok := s.entries[e]; ok {
		switch en.state {
		case Added:
			s.untrack(e)
		case Unchanged:
			en.state = Deleted
		}
		return nil
	}

	key, ok := c.key(e.id, s.refKeys(c, e))
	if !ok {
		return &NotFoundError{Collection: c.name}
	}
	if tracked, ok := s.byKey[trackKey(c.name, key)]; ok {
		s.entries[tracked].state = Deleted
		return nil
	}
	if _, ok := s.st.tables[c.name][key]; !ok {
		return &NotFoundError{Collection: c.name, Key: key}
	}
	e.persisted = true
	s.track(e, Deleted, key)
	return nil
}

// State reports the lifecycle state of e in this session.
func (s *Session) State(e *Entity) State {
	en, ok := s.entries[e]
	if !ok {
		return Detached
	}
	if en.state == Unchanged && isModified(e, en.snap) {
		return Modified
	}
	return en.state
}

func (s *Session) track(e *Entity, state State, key string) {
	s.entries[e] = &entry{state: state, key: key, snap: e.snapshot()}
	s.order = append(s.order, e)
	if key != "" {
		s.byKey[trackKey(e.collection, key)] = e
	}
}

func (s *Session) untrack(e *Entity) {
	en, ok := s.entries[e]
	if !ok {
		return
	}
	if en.key != "" && s.byKey[trackKey(e.collection, en.key)] == e {
		delete(s.byKey, trackKey(e.collection, en.key))
	}
	delete(s.entries, e)
	s.order = slices.DeleteFunc(s.order, func(o *Entity) bool { return o == e })
}

// discover tracks every untracked entity reachable from roots. Entities
// persisted by an earlier commit are attached; the others are staged as
// new.
func (s *Session) discover(roots ...*Entity) ([]*Entity, error) {
	var found []*Entity
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if en := s.entries[e]; en != nil && en.state == Deleted {
			continue
		}
		for _, o := range neighbours(e) {
			if _, ok := s.entries[o]; ok {
				continue
			}
			c, err := s.st.model.lookup(o.collection)
			if err != nil {
				return found, err
			}
			if o.persisted {
				if err := s.attach(c, o); err != nil {
					return found, err
				}
			} else {
				s.track(o, Added, "")
			}
			found = append(found, o)
			queue = append(queue, o)
		}
	}
	return found, nil
}

func neighbours(e *Entity) []*Entity {
	var out []*Entity
	for _, nav := range slices.Sorted(maps.Keys(e.refs)) {
		if r := e.refs[nav]; r != nil {
			out = append(out, r)
		}
	}
	for _, nav := range slices.Sorted(maps.Keys(e.lists)) {
		out = append(out, e.lists[nav]...)
	}
	return out
}

// refKeys returns the foreign keys of e with navigations to persisted
// principals folded in.
func (s *Session) refKeys(c *Collection, e *Entity) map[string]uuid.NullUUID {
	fks := maps.Clone(e.fks)
	for nav, ref := range e.refs {
		n, ok := c.navs[nav]
		if !ok || n.principalSide {
			continue
		}
		if ref == nil || ref.id == uuid.Nil {
			fks[n.rel.ForeignKey] = uuid.NullUUID{}
			continue
		}
		fks[n.rel.ForeignKey] = uuid.NullUUID{UUID: ref.id, Valid: true}
	}
	return fks
}

func trackKey(collection, key string) string { return collection + "\x00" + key }

func isModified(e *Entity, snap snapshot) bool {
	if !maps.Equal(e.fields, snap.fields) || !maps.Equal(e.fks, snap.fks) || !maps.Equal(e.refs, snap.refs) {
		return true
	}
	if len(e.lists) != len(snap.lists) {
		return true
	}
	for nav, list := range e.lists {
		if !slices.Equal(list, snap.lists[nav]) {
			return true
		}
	}
	return false
}
