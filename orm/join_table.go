package orm

import (
	"context"
	"database/sql"
	"slices"

	"github.com/mickamy/relmodel/scope"
)

// Link is one row of a join table: a source key and the target key it
// points at.
type Link[S, T any] struct {
	Source S
	Target T
}

// linkChunk caps the number of keys bound in one IN list.
const linkChunk = 500

// QueryLinks reads the (sourceCol, targetCol) rows of table whose source
// is one of sources. Sources are bound linkChunk at a time and every
// chunk comes back ordered by source then target.
func QueryLinks[S, T any](
	ctx context.Context, db Querier, table, sourceCol, targetCol string, sources []S,
) ([]Link[S, T], error) {
	scan := func(rows *sql.Rows) (Link[S, T], error) {
		var l Link[S, T]
		err := rows.Scan(&l.Source, &l.Target)
		return l, err //nolint:wrapcheck // pass through
	}
	q := NewQuery[Link[S, T]](db, table, []string{sourceCol, targetCol}, "", scan, nil).
		OrderBy(sourceCol).
		OrderBy(targetCol)

	var links []Link[S, T]
	for chunk := range slices.Chunk(sources, linkChunk) {
		got, err := q.Scopes(scope.In(sourceCol, chunk)).All(ctx)
		if err != nil {
			return nil, err
		}
		links = append(links, got...)
	}
	return links, nil
}
