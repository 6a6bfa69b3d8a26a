package store_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mickamy/relmodel/store"
)

func TestModelValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		model   *store.Model
		wantErr string
	}{
		{
			name:  "valid",
			model: blogModel(true),
		},
		{
			name: "unknown principal suggests closest name",
			model: store.NewModel().
				Entity("Blog", "Url").
				Entity("Post", "Title").
				OneToMany(store.Relation{Principal: "Blgo", PrincipalNav: "Posts", Dependent: "Post"}),
			wantErr: `did you mean "Blog"?`,
		},
		{
			name:    "duplicate collection",
			model:   store.NewModel().Entity("Blog").Entity("Blog"),
			wantErr: "collection Blog declared twice",
		},
		{
			name:    "reserved field",
			model:   store.NewModel().Entity("Blog", "id"),
			wantErr: `invalid field name "id"`,
		},
		{
			name: "navigation collides with field",
			model: store.NewModel().
				Entity("Blog", "Posts").
				Entity("Post").
				OneToMany(store.Relation{Principal: "Blog", PrincipalNav: "Posts", Dependent: "Post"}),
			wantErr: "navigation Posts collides",
		},
		{
			name: "foreign key collides with field",
			model: store.NewModel().
				Entity("Blog").
				Entity("Post", "BlogId").
				OneToMany(store.Relation{Principal: "Blog", Dependent: "Post"}),
			wantErr: "Post.BlogId is already declared",
		},
		{
			name: "cycle",
			model: store.NewModel().
				Entity("A").
				Entity("B").
				OneToMany(store.Relation{Principal: "A", PrincipalNav: "Bs", Dependent: "B"}).
				OneToMany(store.Relation{Principal: "B", PrincipalNav: "As", Dependent: "A"}),
			wantErr: "cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.model.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, store.ErrInvalidModel) {
				t.Fatalf("err = %v, want ErrInvalidModel", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestModelCollectionsPrincipalFirst(t *testing.T) {
	t.Parallel()

	m := store.NewModel().
		Entity("Post", "Title").
		Entity("Blog", "Url").
		OneToMany(store.Relation{Principal: "Blog", PrincipalNav: "Posts", Dependent: "Post", DependentNav: "Blog"})
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var got []string
	for _, c := range m.Collections() {
		got = append(got, c.Name())
	}
	want := []string{"Blog", "Post"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Collections() = %v, want %v", got, want)
	}
}

func TestModelForeignKeys(t *testing.T) {
	t.Parallel()

	m := bookModel()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	link, err := m.Collection("BookAuthorLink")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	left, right, ok := link.JoinKeys()
	if !ok || left != "BookId" || right != "AuthorId" {
		t.Errorf("JoinKeys() = %q, %q, %v", left, right, ok)
	}
	for _, fk := range link.ForeignKeys() {
		if !fk.Required || fk.Unique {
			t.Errorf("%s: Required=%v Unique=%v, want required and not unique", fk.Name, fk.Required, fk.Unique)
		}
	}

	st := studentModel(false)
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	addr, _ := st.Collection("Address")
	fks := addr.ForeignKeys()
	if len(fks) != 1 || fks[0].Name != "StudentId" || !fks[0].Unique || fks[0].Required {
		t.Errorf("ForeignKeys() = %+v, want optional unique StudentId", fks)
	}
}

func TestModelUnknownCollection(t *testing.T) {
	t.Parallel()

	_, err := blogModel(true).Collection("Posts")
	if !errors.Is(err, store.ErrUnknownCollection) {
		t.Fatalf("err = %v, want ErrUnknownCollection", err)
	}
	if !strings.Contains(err.Error(), `did you mean "Post"?`) {
		t.Errorf("err = %q, want a suggestion", err)
	}
}

func TestNewRejectsInvalidModel(t *testing.T) {
	t.Parallel()

	_, err := store.New(store.NewModel().Entity(""))
	if !errors.Is(err, store.ErrInvalidModel) {
		t.Fatalf("err = %v, want ErrInvalidModel", err)
	}
}
