package store

import (
	"errors"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// State is the lifecycle state of an entity within a Session.
type State int

const (
	Detached State = iota
	Added
	Unchanged
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Added:
		return "Added"
	case Unchanged:
		return "Unchanged"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return "Detached"
	}
}

var errIdentityFixed = errors.New("relmodel: identity of a persisted entity cannot change")

// Entity is a row of a collection together with its navigations.
// Foreign keys are shadow values written only through navigations.
//
// An unloaded navigation is absent: Ref returns nil and Related returns
// nil. IsLoaded tells an unloaded navigation from a loaded empty one.
type Entity struct {
	collection string
	id         uuid.UUID
	persisted  bool
	fields     map[string]string
	fks        map[string]uuid.NullUUID
	refs       map[string]*Entity
	lists      map[string][]*Entity
	loaded     map[string]bool
}

// NewEntity creates a detached entity of collection. The identity is
// generated when the entity is first committed unless SetID is called.
func NewEntity(collection string, fields map[string]string) *Entity {
	e := newEntity(collection)
	maps.Copy(e.fields, fields)
	return e
}

func newEntity(collection string) *Entity {
	return &Entity{
		collection: collection,
		fields:     make(map[string]string),
		fks:        make(map[string]uuid.NullUUID),
		refs:       make(map[string]*Entity),
		lists:      make(map[string][]*Entity),
		loaded:     make(map[string]bool),
	}
}

func (e *Entity) Collection() string { return e.collection }

// ID returns the identity, or uuid.Nil before the first commit and for
// join records, whose identity is the pair of their foreign keys.
func (e *Entity) ID() uuid.UUID { return e.id }

// SetID supplies the identity of a new entity. A backend reads rows back
// in identity order, so only time-ordered identities (UUIDv7, as
// generated on commit) keep insertion order across a reload.
func (e *Entity) SetID(id uuid.UUID) error {
	if e.persisted {
		return errIdentityFixed
	}
	e.id = id
	return nil
}

// Get returns the field value, or "" when the field is NULL.
func (e *Entity) Get(field string) string { return e.fields[field] }

// Lookup returns the field value and whether it is set.
func (e *Entity) Lookup(field string) (string, bool) {
	v, ok := e.fields[field]
	return v, ok
}

func (e *Entity) Set(field, value string) { e.fields[field] = value }

// Clear sets the field to NULL.
func (e *Entity) Clear(field string) { delete(e.fields, field) }

// Fields returns a copy of the scalar fields that are set.
func (e *Entity) Fields() map[string]string { return maps.Clone(e.fields) }

// ForeignKey returns the shadow key value and whether it is set.
func (e *Entity) ForeignKey(name string) (uuid.UUID, bool) {
	v := e.fks[name]
	return v.UUID, v.Valid
}

// Ref returns the entity a to-one navigation points at.
func (e *Entity) Ref(nav string) *Entity { return e.refs[nav] }

// SetRef points a to-one navigation at other. A nil other severs the
// relationship at the next commit.
func (e *Entity) SetRef(nav string, other *Entity) {
	e.refs[nav] = other
	e.loaded[nav] = true
}

// Related returns the entities of a to-many navigation.
func (e *Entity) Related(nav string) []*Entity { return slices.Clone(e.lists[nav]) }

// Link appends entities to a to-many navigation.
func (e *Entity) Link(nav string, others ...*Entity) {
	list := e.lists[nav]
	if list == nil {
		list = []*Entity{}
	}
	for _, o := range others {
		if o != nil && !slices.Contains(list, o) {
			list = append(list, o)
		}
	}
	e.lists[nav] = list
}

// Unlink removes other from a to-many navigation and reports whether it
// was present.
func (e *Entity) Unlink(nav string, other *Entity) bool {
	list := e.lists[nav]
	i := slices.Index(list, other)
	if i < 0 {
		return false
	}
	e.lists[nav] = slices.Delete(slices.Clone(list), i, i+1)
	return true
}

// IsLoaded reports whether the navigation was loaded or assigned.
func (e *Entity) IsLoaded(nav string) bool { return e.loaded[nav] }

// snapshot is the last committed view of an entity.
type snapshot struct {
	fields map[string]string
	fks    map[string]uuid.NullUUID
	refs   map[string]*Entity
	lists  map[string][]*Entity
	loaded map[string]bool
}

func (e *Entity) snapshot() snapshot {
	lists := make(map[string][]*Entity, len(e.lists))
	for k, v := range e.lists {
		lists[k] = slices.Clone(v)
	}
	return snapshot{
		fields: maps.Clone(e.fields),
		fks:    maps.Clone(e.fks),
		refs:   maps.Clone(e.refs),
		lists:  lists,
		loaded: maps.Clone(e.loaded),
	}
}

func (e *Entity) restore(s snapshot) {
	fresh := newEntity(e.collection)
	restored := s.clone()
	maps.Copy(fresh.fields, restored.fields)
	maps.Copy(fresh.fks, restored.fks)
	maps.Copy(fresh.refs, restored.refs)
	maps.Copy(fresh.lists, restored.lists)
	maps.Copy(fresh.loaded, restored.loaded)
	e.fields, e.fks, e.refs, e.lists, e.loaded = fresh.fields, fresh.fks, fresh.refs, fresh.lists, fresh.loaded
}

func (s snapshot) clone() snapshot {
	lists := make(map[string][]*Entity, len(s.lists))
	for k, v := range s.lists {
		lists[k] = slices.Clone(v)
	}
	return snapshot{
		fields: maps.Clone(s.fields),
		fks:    maps.Clone(s.fks),
		refs:   maps.Clone(s.refs),
		lists:  lists,
		loaded: maps.Clone(s.loaded),
	}
}
