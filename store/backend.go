package store

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the durable collaborator behind a Store. The store
// validates every change set before handing it over; a Backend only
// has to apply it atomically.
type Backend interface {
	// EnsureCreated creates the schema for every collection of m if it
	// does not exist yet.
	EnsureCreated(ctx context.Context, m *Model) error

	// EnsureDeleted drops the schema created by EnsureCreated.
	EnsureDeleted(ctx context.Context, m *Model) error

	// Load returns every persisted row, principals first.
	Load(ctx context.Context, m *Model) ([]Row, error)

	// Apply applies cs in order, all or nothing.
	Apply(ctx context.Context, m *Model, cs ChangeSet) error
}

// Row is the persisted form of an entity. Join records have a nil ID;
// their identity is the pair of their foreign keys.
type Row struct {
	Collection  string
	ID          uuid.UUID
	Fields      map[string]string
	ForeignKeys map[string]uuid.NullUUID
}

// Op is the kind of a Change.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one row operation of a commit.
type Change struct {
	Op  Op
	Row Row
}

// ChangeSet lists the changes of one commit in application order:
// deletes (dependents first), updates, inserts (principals first), then
// updates that point at inserted principals.
type ChangeSet []Change

// Count returns the number of changes of the given kind.
func (cs ChangeSet) Count(op Op) int {
	n := 0
	for _, c := range cs {
		if c.Op == op {
			n++
		}
	}
	return n
}
