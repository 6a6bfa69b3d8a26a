package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/mickamy/relmodel/store"

// Option configures a Store.
type Option func(*Store)

// WithBackend persists commits through b.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) { s.tracerProvider = tp }
}

// Store holds the committed rows of every collection of a Model and
// hands out one Session at a time.
type Store struct {
	model          *Model
	backend        Backend
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	sem chan struct{}

	mu     sync.Mutex
	tables map[string]map[string]*record
	seq    uint64
}

type record struct {
	id     uuid.UUID
	fields map[string]string
	fks    map[string]uuid.NullUUID
	seq    uint64
}

// New validates m and returns an empty Store.
func New(m *Model, opts ...Option) (*Store, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		model: m,
		sem:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	s.resetTables()
	return s, nil
}

// Model returns the validated model of the store.
func (s *Store) Model() *Model { return s.model }

func (s *Store) resetTables() {
	s.tables = make(map[string]map[string]*record, len(s.model.order))
	for _, c := range s.model.order {
		s.tables[c.name] = make(map[string]*record)
	}
}

// EnsureCreated creates the backend schema and loads the rows it already
// holds. Without a backend it only makes sure the tables exist.
func (s *Store) EnsureCreated(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.EnsureCreated(ctx, s.model); err != nil {
		return fmt.Errorf("relmodel: ensure created: %w", err)
	}
	rows, err := s.backend.Load(ctx, s.model)
	if err != nil {
		return fmt.Errorf("relmodel: load rows: %w", err)
	}
	s.resetTables()
	for _, row := range rows {
		c, err := s.model.lookup(row.Collection)
		if err != nil {
			return fmt.Errorf("relmodel: load rows: %w", err)
		}
		s.insertRow(c, row)
	}
	s.logger.DebugContext(ctx, "schema ensured", "rows", len(rows))
	return nil
}

// EnsureDeleted drops the backend schema and empties every table.
func (s *Store) EnsureDeleted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.EnsureDeleted(ctx, s.model); err != nil {
			return fmt.Errorf("relmodel: ensure deleted: %w", err)
		}
	}
	s.resetTables()
	s.logger.DebugContext(ctx, "schema deleted")
	return nil
}

// Session opens the exclusive session, waiting until the previous one is
// closed or ctx is done.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err() //nolint:wrapcheck // pass through
	}
	return newSession(s), nil
}

// Do runs fn in a new session and commits when fn returns nil. The
// session is closed in every case.
func (s *Store) Do(ctx context.Context, fn func(sess *Session) error) error {
	sess, err := s.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := fn(sess); err != nil {
		return err
	}
	return sess.Commit(ctx)
}

func (s *Store) insertRow(c *Collection, row Row) {
	key, ok := c.key(row.ID, row.ForeignKeys)
	if !ok {
		return
	}
	s.seq++
	s.tables[c.name][key] = &record{
		id:     row.ID,
		fields: maps.Clone(row.Fields),
		fks:    maps.Clone(row.ForeignKeys),
		seq:    s.seq,
	}
}

// sortedRows returns the committed rows of a collection in insertion order.
func (s *Store) sortedRows(collection string) []*record {
	rows := slices.Collect(maps.Values(s.tables[collection]))
	slices.SortFunc(rows, func(a, b *record) int { return cmp.Compare(a.seq, b.seq) })
	return rows
}

// key returns the identity of a row: its ID, or the pair of join keys.
func (c *Collection) key(id uuid.UUID, fks map[string]uuid.NullUUID) (string, bool) {
	if c.join != nil {
		l, r := fks[c.join.LeftKey], fks[c.join.RightKey]
		if !l.Valid || !r.Valid {
			return "", false
		}
		return l.UUID.String() + "/" + r.UUID.String(), true
	}
	if id == uuid.Nil {
		return "", false
	}
	return id.String(), true
}

func (r *record) row(collection string) Row {
	return Row{Collection: collection, ID: r.id, Fields: maps.Clone(r.fields), ForeignKeys: maps.Clone(r.fks)}
}
