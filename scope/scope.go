package scope

import (
	"fmt"
	"strings"
)

// Applier is implemented by query builders to receive scope fragments.
// Both the in-memory entity store and the SQL query builder implement it,
// so the same scopes drive an in-memory read and a database read.
type Applier interface {
	ApplyCondition(c Condition)
	ApplyOrderBy(field string, desc bool)
	ApplyLimit(n int)
	ApplyOffset(n int)
	ApplyInclude(path string)
}

// Op is a comparison operator of a Condition.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpContains
	OpIn
	OpIsNull
	OpNotNull
)

func (op Op) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpContains:
		return "contains"
	case OpIn:
		return "in"
	case OpIsNull:
		return "is null"
	case OpNotNull:
		return "is not null"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Condition is a single field predicate. Values are kept in their string
// form; every value the store holds is a string or an identity rendered
// as a string.
type Condition struct {
	Field  string
	Op     Op
	Values []string
}

// Match reports whether a field value satisfies the condition.
// present is false when the field is NULL.
func (c Condition) Match(value string, present bool) bool {
	switch c.Op {
	case OpEq:
		return present && len(c.Values) > 0 && value == c.Values[0]
	case OpNe:
		return present && len(c.Values) > 0 && value != c.Values[0]
	case OpContains:
		return present && len(c.Values) > 0 && strings.Contains(value, c.Values[0])
	case OpIn:
		if !present {
			return false
		}
		for _, v := range c.Values {
			if v == value {
				return true
			}
		}
		return false
	case OpIsNull:
		return !present
	case OpNotNull:
		return present
	default:
		return false
	}
}

// SQL renders the condition as a WHERE fragment with ? placeholders.
// quote is applied to the field name.
func (c Condition) SQL(quote func(string) string) (string, []any) {
	col := quote(c.Field)
	switch c.Op {
	case OpEq:
		return col + " = ?", []any{c.first()}
	case OpNe:
		return col + " <> ?", []any{c.first()}
	case OpContains:
		return col + " LIKE ?", []any{"%" + c.first() + "%"}
	case OpIn:
		if len(c.Values) == 0 {
			return "1 = 0", nil
		}
		args := make([]any, len(c.Values))
		for i, v := range c.Values {
			args[i] = v
		}
		return col + " IN (" + repeatJoin("?", len(c.Values)) + ")", args
	case OpIsNull:
		return col + " IS NULL", nil
	case OpNotNull:
		return col + " IS NOT NULL", nil
	default:
		return "1 = 0", nil
	}
}

func (c Condition) String() string {
	switch c.Op {
	case OpIsNull, OpNotNull:
		return c.Field + " " + c.Op.String()
	default:
		return fmt.Sprintf("%s %s %q", c.Field, c.Op, strings.Join(c.Values, ","))
	}
}

func (c Condition) first() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

type scopeKind int

const (
	kindCondition scopeKind = iota
	kindOrderBy
	kindLimit
	kindOffset
	kindInclude
)

// Scope represents a single query fragment.
// Scopes are immutable and safe to reuse across queries.
type Scope struct {
	kind  scopeKind
	cond  Condition
	field string
	desc  bool
	n     int
}

// Apply dispatches this Scope to the given Applier.
func (s Scope) Apply(a Applier) {
	switch s.kind {
	case kindCondition:
		a.ApplyCondition(s.cond)
	case kindOrderBy:
		a.ApplyOrderBy(s.field, s.desc)
	case kindLimit:
		a.ApplyLimit(s.n)
	case kindOffset:
		a.ApplyOffset(s.n)
	case kindInclude:
		a.ApplyInclude(s.field)
	}
}

// Eq matches rows whose field equals value.
//
//	scope.Eq("Name", "Karl")
func Eq(field string, value any) Scope {
	return where(field, OpEq, fmt.Sprint(value))
}

// Ne matches rows whose field is set and differs from value.
func Ne(field string, value any) Scope {
	return where(field, OpNe, fmt.Sprint(value))
}

// Contains matches rows whose field contains substr.
//
//	scope.Contains("Title", "Deploying .NET Core 3")
func Contains(field, substr string) Scope {
	return where(field, OpContains, substr)
}

// In matches rows whose field is one of values. No reflection is used;
// generics handle the conversion. An empty slice matches nothing.
//
//	scope.In("id", []uuid.UUID{a, b})
func In[T any](field string, values []T) Scope {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = fmt.Sprint(v)
	}
	return where(field, OpIn, strs...)
}

// IsNull matches rows whose field is NULL.
//
//	scope.IsNull("BlogId")
func IsNull(field string) Scope {
	return where(field, OpIsNull)
}

// NotNull matches rows whose field is not NULL.
func NotNull(field string) Scope {
	return where(field, OpNotNull)
}

func where(field string, op Op, values ...string) Scope {
	return Scope{kind: kindCondition, cond: Condition{Field: field, Op: op, Values: values}}
}

// OrderBy returns a Scope that orders ascending by field.
func OrderBy(field string) Scope {
	return Scope{kind: kindOrderBy, field: field}
}

// OrderByDesc returns a Scope that orders descending by field.
func OrderByDesc(field string) Scope {
	return Scope{kind: kindOrderBy, field: field, desc: true}
}

// Limit returns a Scope that sets the LIMIT.
func Limit(n int) Scope {
	return Scope{kind: kindLimit, n: n}
}

// Offset returns a Scope that sets the OFFSET.
func Offset(n int) Scope {
	return Scope{kind: kindOffset, n: n}
}

// Include requests eager loading of a navigation. Dotted paths load
// nested navigations of the included entities.
//
//	scope.Include("Posts")
//	scope.Include("BookAuthorLinks.Author")
func Include(path string) Scope {
	return Scope{kind: kindInclude, field: path}
}

// Scopes is a named slice of Scope, useful for conditionally building
// up a set of scopes.
//
//	var s scope.Scopes
//	if withPosts {
//	    s = s.Append(scope.Include("Posts"))
//	}
//	sess.Query(ctx, "Blog", s...)
type Scopes []Scope

// Append adds scopes and returns a new Scopes. The receiver is not modified.
func (ss Scopes) Append(scopes ...Scope) Scopes {
	return append(append(Scopes(nil), ss...), scopes...)
}

// Merge concatenates two Scopes and returns a new Scopes.
// Neither receiver nor argument is modified.
func (ss Scopes) Merge(other Scopes) Scopes {
	return append(append(Scopes(nil), ss...), other...)
}

// Combine creates a Scopes from the given scopes.
//
//	scope.Combine(scope.Limit(10), scope.Offset(20))
func Combine(scopes ...Scope) Scopes {
	return Scopes(scopes)
}

func repeatJoin(s string, count int) string {
	if count <= 0 {
		return ""
	}
	parts := make([]string, count)
	for i := range parts {
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}
