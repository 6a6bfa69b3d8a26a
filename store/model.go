package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/agnivade/levenshtein"
)

// Relation declares a one-to-one or one-to-many relationship. The
// dependent carries the foreign key; the principal is the "one" side.
type Relation struct {
	// Name identifies the relation in errors. Defaults to
	// "Principal.PrincipalNav" (or "Dependent.DependentNav").
	Name string

	Principal    string
	PrincipalNav string // on the principal: the dependent (one-to-one) or dependents (one-to-many)

	Dependent    string
	DependentNav string // on the dependent: its principal

	// ForeignKey names the shadow key on the dependent. Defaults to
	// Principal + "Id".
	ForeignKey string

	// Required dependents cannot exist without a principal and are
	// deleted with it. Optional dependents are disassociated instead.
	Required bool

	oneToOne bool
	join     bool
}

// JoinSpec declares a many-to-many relationship through an explicit join
// collection whose identity is (LeftKey, RightKey).
type JoinSpec struct {
	Name string // join collection, e.g. BookAuthorLink

	Left     string // e.g. Book
	LeftNav  string // on Left: its join records, e.g. BookAuthorLinks
	LeftRef  string // on the join record: the Left entity, e.g. Book
	LeftKey  string // defaults to Left + "Id"
	Right    string
	RightNav string
	RightRef string
	RightKey string
}

// ForeignKey describes a shadow key column carried by a dependent collection.
type ForeignKey struct {
	Name      string
	Principal string
	Required  bool
	Unique    bool
}

// Collection is a validated entity set of a Model.
type Collection struct {
	name   string
	fields []string
	fks    []ForeignKey
	join   *JoinSpec
	navs   map[string]*navigation
	asDep  []*Relation
	asPrin []*Relation
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Fields returns the scalar field names in declaration order.
func (c *Collection) Fields() []string { return slices.Clone(c.fields) }

// ForeignKeys returns the shadow keys of the collection.
func (c *Collection) ForeignKeys() []ForeignKey { return slices.Clone(c.fks) }

// JoinKeys returns the two key columns of a join collection.
func (c *Collection) JoinKeys() (left, right string, ok bool) {
	if c.join == nil {
		return "", "", false
	}
	return c.join.LeftKey, c.join.RightKey, true
}

func (c *Collection) hasField(name string) bool { return slices.Contains(c.fields, name) }

func (c *Collection) fk(name string) (ForeignKey, bool) {
	for _, fk := range c.fks {
		if fk.Name == name {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

type navigation struct {
	name string
	rel  *Relation
	// principalSide is true for navigations declared on the principal.
	principalSide bool
	many          bool
	target        string
}

func (n *navigation) inverse() string {
	if n.principalSide {
		return n.rel.DependentNav
	}
	return n.rel.PrincipalNav
}

// Model describes collections and the relations between them. Build it
// with the chained declaration methods, then pass it to New.
//
//	m := store.NewModel().
//	    Entity("Blog", "Url").
//	    Entity("Post", "Title", "Content").
//	    OneToMany(store.Relation{Principal: "Blog", PrincipalNav: "Posts", Dependent: "Post", DependentNav: "Blog", Required: true})
type Model struct {
	names       []string
	collections map[string]*Collection
	relations   []*Relation
	order       []*Collection
	errs        []error
	validated   bool
}

func NewModel() *Model {
	return &Model{collections: make(map[string]*Collection)}
}

// Entity declares a collection with its scalar fields.
func (m *Model) Entity(name string, fields ...string) *Model {
	m.validated = false
	if name == "" {
		m.errs = append(m.errs, errors.New("collection name is empty"))
		return m
	}
	if _, ok := m.collections[name]; ok {
		m.errs = append(m.errs, fmt.Errorf("collection %s declared twice", name))
		return m
	}
	m.names = append(m.names, name)
	m.collections[name] = &Collection{name: name, fields: slices.Clone(fields)}
	return m
}

// OneToOne declares a one-to-one relation. The foreign key is unique.
func (m *Model) OneToOne(r Relation) *Model {
	r.oneToOne = true
	return m.relation(r)
}

// OneToMany declares a one-to-many relation.
func (m *Model) OneToMany(r Relation) *Model {
	r.oneToOne = false
	return m.relation(r)
}

// ManyToMany declares a join collection and two required one-to-many
// relations from each side to it.
func (m *Model) ManyToMany(j JoinSpec) *Model {
	if j.LeftKey == "" {
		j.LeftKey = j.Left + "Id"
	}
	if j.RightKey == "" {
		j.RightKey = j.Right + "Id"
	}
	m.Entity(j.Name)
	if c, ok := m.collections[j.Name]; ok {
		c.join = &j
	}
	m.relation(Relation{
		Name:         j.Name + "." + j.LeftRef,
		Principal:    j.Left,
		PrincipalNav: j.LeftNav,
		Dependent:    j.Name,
		DependentNav: j.LeftRef,
		ForeignKey:   j.LeftKey,
		Required:     true,
		join:         true,
	})
	m.relation(Relation{
		Name:         j.Name + "." + j.RightRef,
		Principal:    j.Right,
		PrincipalNav: j.RightNav,
		Dependent:    j.Name,
		DependentNav: j.RightRef,
		ForeignKey:   j.RightKey,
		Required:     true,
		join:         true,
	})
	return m
}

func (m *Model) relation(r Relation) *Model {
	m.validated = false
	if r.ForeignKey == "" {
		r.ForeignKey = r.Principal + "Id"
	}
	if r.Name == "" {
		if r.PrincipalNav != "" {
			r.Name = r.Principal + "." + r.PrincipalNav
		} else {
			r.Name = r.Dependent + "." + r.DependentNav
		}
	}
	m.relations = append(m.relations, &r)
	return m
}

// Validate checks the declarations and computes the principal-first
// collection order. It is called by New; calling it again is cheap.
func (m *Model) Validate() error {
	if m.validated {
		return nil
	}
	errs := slices.Clone(m.errs)

	for _, c := range m.collections {
		c.fks, c.navs, c.asDep, c.asPrin = nil, make(map[string]*navigation), nil, nil
		seen := make(map[string]bool)
		for _, f := range c.fields {
			switch {
			case f == "" || f == "id":
				errs = append(errs, fmt.Errorf("%s: invalid field name %q", c.name, f))
			case seen[f]:
				errs = append(errs, fmt.Errorf("%s: field %s declared twice", c.name, f))
			}
			seen[f] = true
		}
	}

	for _, r := range m.relations {
		p, perr := m.lookup(r.Principal)
		d, derr := m.lookup(r.Dependent)
		if perr != nil || derr != nil {
			errs = append(errs, fmt.Errorf("relation %s: %w", r.Name, errors.Join(perr, derr)))
			continue
		}
		if p == d {
			errs = append(errs, fmt.Errorf("relation %s: %s cannot depend on itself", r.Name, p.name))
			continue
		}
		if d.hasField(r.ForeignKey) || slices.ContainsFunc(d.fks, func(fk ForeignKey) bool { return fk.Name == r.ForeignKey }) {
			errs = append(errs, fmt.Errorf("relation %s: %s.%s is already declared", r.Name, d.name, r.ForeignKey))
			continue
		}
		d.fks = append(d.fks, ForeignKey{Name: r.ForeignKey, Principal: p.name, Required: r.Required, Unique: r.oneToOne})
		d.asDep = append(d.asDep, r)
		p.asPrin = append(p.asPrin, r)

		if r.PrincipalNav != "" {
			errs = appendNav(errs, p, &navigation{name: r.PrincipalNav, rel: r, principalSide: true, many: !r.oneToOne, target: d.name})
		}
		if r.DependentNav != "" {
			errs = appendNav(errs, d, &navigation{name: r.DependentNav, rel: r, target: p.name})
		}
	}

	if len(errs) == 0 {
		order, err := m.topoSort()
		if err != nil {
			errs = append(errs, err)
		}
		m.order = order
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidModel, errors.Join(errs...))
	}
	m.validated = true
	return nil
}

func appendNav(errs []error, c *Collection, n *navigation) []error {
	if _, ok := c.navs[n.name]; ok || c.hasField(n.name) {
		return append(errs, fmt.Errorf("%s: navigation %s collides with another member", c.name, n.name))
	}
	c.navs[n.name] = n
	return errs
}

// topoSort orders collections principal first, breaking ties by
// declaration order.
func (m *Model) topoSort() ([]*Collection, error) {
	indegree := make(map[string]int, len(m.names))
	for _, r := range m.relations {
		indegree[r.Dependent]++
	}

	order := make([]*Collection, 0, len(m.names))
	done := make(map[string]bool, len(m.names))
	for len(order) < len(m.names) {
		progressed := false
		for _, name := range m.names {
			if done[name] || indegree[name] > 0 {
				continue
			}
			done[name] = true
			order = append(order, m.collections[name])
			for _, r := range m.collections[name].asPrin {
				indegree[r.Dependent]--
			}
			progressed = true
			break
		}
		if !progressed {
			var cyclic []string
			for _, name := range m.names {
				if !done[name] {
					cyclic = append(cyclic, name)
				}
			}
			return nil, fmt.Errorf("relations form a cycle between %v", cyclic)
		}
	}
	return order, nil
}

// Collections returns the collections with principals before dependents.
func (m *Model) Collections() []*Collection { return slices.Clone(m.order) }

// Collection returns the named collection.
func (m *Model) Collection(name string) (*Collection, error) {
	return m.lookup(name)
}

func (m *Model) lookup(name string) (*Collection, error) {
	if c, ok := m.collections[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w %q%s", ErrUnknownCollection, name, suggest(name, m.names))
}

func (c *Collection) navigation(name string) (*navigation, error) {
	if n, ok := c.navs[name]; ok {
		return n, nil
	}
	names := make([]string, 0, len(c.navs))
	for n := range c.navs {
		names = append(names, n)
	}
	slices.Sort(names)
	return nil, fmt.Errorf("%w %s.%s%s", ErrUnknownNavigation, c.name, name, suggest(name, names))
}

// column reports whether name is a queryable member: id, a field or a
// foreign key.
func (c *Collection) column(name string) error {
	if name == "id" || c.hasField(name) {
		return nil
	}
	if _, ok := c.fk(name); ok {
		return nil
	}
	names := append([]string{"id"}, c.fields...)
	for _, fk := range c.fks {
		names = append(names, fk.Name)
	}
	return fmt.Errorf("%w %s.%s%s", ErrUnknownField, c.name, name, suggest(name, names))
}

func (c *Collection) unknownField(name string) error {
	return fmt.Errorf("%w %s.%s%s", ErrUnknownField, c.name, name, suggest(name, c.fields))
}

// suggest returns a "did you mean" hint for the closest candidate.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
