package orm_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/scope"
)

type testPost struct {
	ID    string
	Title string
}

var testPostColumns = []string{"id", "title"}

func scanTestPost(_ *sql.Rows) (testPost, error) {
	return testPost{}, nil
}

func testPostColValPairs(p *testPost) ([]string, []any) {
	return []string{"id", "title"}, []any{p.ID, p.Title}
}

func newTestQuery(tq *orm.TestQuerier) *orm.Query[testPost] {
	return orm.NewQuery[testPost](tq, "posts", testPostColumns, "id", scanTestPost, testPostColValPairs)
}

// --- SELECT (MySQL) ---

func TestBuildSelectAll(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_, _ = q.All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts`"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectWhere(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_, _ = q.Scopes(scope.Eq("title", "EF Core Tutorial"), scope.Ne("id", "x")).All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts` WHERE `title` = ? AND `id` <> ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 2 || got.Args[0] != "EF Core Tutorial" {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildSelectOrderBy(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_, _ = q.OrderBy("title").Scopes(scope.OrderByDesc("id")).All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts` ORDER BY `title`, `id` DESC"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectLimitOffset(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_, _ = q.Limit(10).Offset(20).All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts` LIMIT 10 OFFSET 20"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildSelectOffsetWithoutLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect orm.Dialect
		want    string
	}{
		{"sqlite", orm.SQLite, `SELECT "id", "title" FROM "posts" LIMIT -1 OFFSET 2`},
		{"postgres", orm.PostgreSQL, `SELECT "id", "title" FROM "posts" OFFSET 2`},
		{"mysql", orm.MySQL, "SELECT `id`, `title` FROM `posts` LIMIT 18446744073709551615 OFFSET 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tq := orm.NewTestQuerier(tt.dialect)
			_, _ = newTestQuery(tq).Offset(2).All(t.Context())

			if got := tq.LastQuery().SQL; got != tt.want {
				t.Errorf("SQL = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Scopes ---

func TestBuildSelectWithScopes(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_, _ = q.Scopes(
		scope.Contains("title", "NET"),
		scope.OrderByDesc("id"),
		scope.Limit(5),
		scope.Offset(10),
	).All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts` WHERE `title` LIKE ? ORDER BY `id` DESC LIMIT 5 OFFSET 10"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 1 || got.Args[0] != "%NET%" {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestScopesIncludeIsRejected(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	q := newTestQuery(tq).Scopes(scope.Include("Blog"))

	if _, err := q.All(t.Context()); err == nil {
		t.Fatal("expected error for Include, got nil")
	}
	if len(tq.Queries) != 0 {
		t.Errorf("expected no query to be sent, got %d", len(tq.Queries))
	}
}

func TestBuildSelectIsNullScope(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	_, _ = newTestQuery(tq).Scopes(scope.IsNull("blog_id")).All(t.Context())

	got := tq.LastQuery()
	want := `SELECT "id", "title" FROM "posts" WHERE "blog_id" IS NULL`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

// --- Immutability ---

func TestQueryImmutability(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	base := newTestQuery(tq)

	_ = base.Scopes(scope.Eq("title", "a"))
	_ = base.OrderBy("id")
	_ = base.Limit(10)
	_ = base.Offset(5)
	_ = base.Scopes(scope.Include("Blog"))

	_, _ = base.All(t.Context())

	got := tq.LastQuery()
	want := "SELECT `id`, `title` FROM `posts`"
	if got.SQL != want {
		t.Errorf("base query was mutated: SQL = %q", got.SQL)
	}
}

// --- COUNT ---

func TestBuildCount(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	_, _ = newTestQuery(tq).Scopes(scope.Eq("title", "a")).Count(t.Context())

	got := tq.LastQuery()
	want := `SELECT COUNT(*) FROM "posts" WHERE "title" = $1`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

// --- INSERT ---

func TestBuildInsertMySQL(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	p := testPost{ID: "p1", Title: "EF Core Tutorial"}
	if err := q.CreateAll(t.Context(), []*testPost{&p}); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}

	got := tq.LastQuery()
	want := "INSERT INTO `posts` (`id`, `title`) VALUES (?, ?)"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 2 || got.Args[0] != "p1" || got.Args[1] != "EF Core Tutorial" {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildInsertPostgreSQL(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	q := newTestQuery(tq)

	p := testPost{ID: "p1", Title: "a"}
	_ = q.CreateAll(t.Context(), []*testPost{&p})

	got := tq.LastQuery()
	want := `INSERT INTO "posts" ("id", "title") VALUES ($1, $2)`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestBuildCreateAll(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	items := []*testPost{{ID: "p1", Title: "a"}, {ID: "p2", Title: "b"}}
	if err := newTestQuery(tq).CreateAll(t.Context(), items); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}

	got := tq.LastQuery()
	want := `INSERT INTO "posts" ("id", "title") VALUES (?, ?), (?, ?)`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 4 {
		t.Errorf("Args = %v, want 4 args", got.Args)
	}
}

func TestCreateAllEmptyIsNoop(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	if err := newTestQuery(tq).CreateAll(t.Context(), nil); err != nil {
		t.Fatalf("CreateAll: %v", err)
	}
	if len(tq.Queries) != 0 {
		t.Errorf("queries = %d, want 0", len(tq.Queries))
	}
}

// --- UPDATE ---

func TestBuildUpdate(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	p := testPost{ID: "p1", Title: "b"}
	_ = q.Update(t.Context(), &p)

	got := tq.LastQuery()
	want := "UPDATE `posts` SET `title` = ? WHERE `id` = ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if len(got.Args) != 2 || got.Args[0] != "b" || got.Args[1] != "p1" {
		t.Errorf("Args = %v", got.Args)
	}
}

func TestBuildUpdatePostgreSQL(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	q := newTestQuery(tq)

	p := testPost{ID: "p1", Title: "b"}
	_ = q.Update(t.Context(), &p)

	got := tq.LastQuery()
	want := `UPDATE "posts" SET "title" = $1 WHERE "id" = $2`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

// --- DELETE ---

func TestBuildDelete(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	_ = q.Scopes(scope.Eq("id", "p1")).Delete(t.Context())

	got := tq.LastQuery()
	want := "DELETE FROM `posts` WHERE `id` = ?"
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestDeleteWithoutWhereReturnsError(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.MySQL)
	q := newTestQuery(tq)

	err := q.Delete(t.Context())
	if !errors.Is(err, orm.ErrMissingWhere) {
		t.Fatalf("err = %v, want ErrMissingWhere", err)
	}
}

// --- Rewrite (PostgreSQL placeholders) ---

func TestRewritePostgreSQLSelect(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	q := newTestQuery(tq)

	_, _ = q.Scopes(scope.In("id", []string{"a", "b"}), scope.Ne("title", "c")).All(t.Context())

	got := tq.LastQuery()
	want := `SELECT "id", "title" FROM "posts" WHERE "id" IN ($1, $2) AND "title" <> $3`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

// --- Exists ---

func TestExistsCountsMatchingRows(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	_, _ = newTestQuery(tq).Scopes(scope.Eq("id", "p1")).Exists(t.Context())

	got := tq.LastQuery()
	want := `SELECT COUNT(*) FROM "posts" WHERE "id" = ?`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

// --- Join table ---

func TestQueryLinksSQL(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	_, _ = orm.QueryLinks[string, string](t.Context(), tq, "book_author_links", "book_id", "author_id", []string{"b1", "b2"})

	got := tq.LastQuery()
	want := `SELECT "book_id", "author_id" FROM "book_author_links" WHERE "book_id" IN ($1, $2) ORDER BY "book_id", "author_id"`
	if got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
}

func TestQueryLinksChunksSources(t *testing.T) {
	t.Parallel()

	sources := make([]string, 1201)
	for i := range sources {
		sources[i] = fmt.Sprintf("b%04d", i)
	}
	tq := orm.NewTestQuerier(orm.SQLite)
	_, _ = orm.QueryLinks[string, string](t.Context(), tq, "links", "a", "b", sources)

	// The mock fails every query, so only the first chunk runs.
	if len(tq.Queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(tq.Queries))
	}
	if got := len(tq.Queries[0].Args); got != 500 {
		t.Errorf("args = %d, want 500", got)
	}
}

func TestQueryLinksNoSources(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.SQLite)
	links, err := orm.QueryLinks[string, string](t.Context(), tq, "links", "a", "b", nil)
	if err != nil {
		t.Fatalf("QueryLinks: %v", err)
	}
	if links != nil || len(tq.Queries) != 0 {
		t.Errorf("links = %v, queries = %d", links, len(tq.Queries))
	}
}

func TestCreatePassesThroughExecError(t *testing.T) {
	t.Parallel()

	boom := errors.New("UNIQUE constraint failed: posts.id")
	tq := orm.NewTestQuerier(orm.SQLite)
	tq.ExecErr = boom

	p := testPost{ID: "p1", Title: "a"}
	if err := newTestQuery(tq).CreateAll(t.Context(), []*testPost{&p}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
