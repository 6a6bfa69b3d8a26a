// Package samples declares the student/address, blog/post and
// book/author models with their seed data, and walks each one through
// create, query, update and delete.
package samples

import (
	"fmt"

	"github.com/mickamy/relmodel/store"
)

// Principal selects which side of the student/address relation owns it.
type Principal int

const (
	// PrincipalStudent makes Address carry StudentId.
	PrincipalStudent Principal = iota
	// PrincipalAddress makes Student carry AddressId.
	PrincipalAddress
)

func (p Principal) String() string {
	if p == PrincipalAddress {
		return "Address"
	}
	return "Student"
}

// ParsePrincipal parses "student" or "address".
func ParsePrincipal(s string) (Principal, error) {
	switch s {
	case "student", "Student":
		return PrincipalStudent, nil
	case "address", "Address":
		return PrincipalAddress, nil
	default:
		return 0, fmt.Errorf("samples: unknown principal %q (want student or address)", s)
	}
}

// OneToOneModel declares Student and Address in a one-to-one relation.
// Either way round, Student.Address and Address.Student navigate it.
func OneToOneModel(p Principal, required bool) *store.Model {
	m := store.NewModel().
		Entity("Student", "Name").
		Entity("Address", "City")
	if p == PrincipalAddress {
		return m.OneToOne(store.Relation{
			Principal:    "Address",
			PrincipalNav: "Student",
			Dependent:    "Student",
			DependentNav: "Address",
			Required:     required,
		})
	}
	return m.OneToOne(store.Relation{
		Principal:    "Student",
		PrincipalNav: "Address",
		Dependent:    "Address",
		DependentNav: "Student",
		Required:     required,
	})
}

// OneToManyModel declares Blog with its Posts.
func OneToManyModel(required bool) *store.Model {
	return store.NewModel().
		Entity("Blog", "Url").
		Entity("Post", "Title", "Content").
		OneToMany(store.Relation{
			Principal:    "Blog",
			PrincipalNav: "Posts",
			Dependent:    "Post",
			DependentNav: "Blog",
			Required:     required,
		})
}

// ManyToManyModel declares Book and Author joined by BookAuthorLink.
func ManyToManyModel() *store.Model {
	return store.NewModel().
		Entity("Book", "Name").
		Entity("Author", "FullName").
		ManyToMany(store.JoinSpec{
			Name:     "BookAuthorLink",
			Left:     "Book",
			LeftNav:  "BookAuthorLinks",
			LeftRef:  "Book",
			Right:    "Author",
			RightNav: "BookAuthorLinks",
			RightRef: "Author",
		})
}

// Student returns a new student, optionally with a new address.
func Student(name, city string) *store.Entity {
	s := store.NewEntity("Student", map[string]string{"Name": name})
	if city != "" {
		s.SetRef("Address", Address(city))
	}
	return s
}

// Address returns a new address.
func Address(city string) *store.Entity {
	return store.NewEntity("Address", map[string]string{"City": city})
}

// Students returns Karl without an address, and Julia and John with one.
func Students() []*store.Entity {
	return []*store.Entity{
		Student("Karl", ""),
		Student("Julia", "Utah"),
		Student("John", "Tacoma"),
	}
}

// Blog returns a new blog linked to posts.
func Blog(url string, posts ...*store.Entity) *store.Entity {
	b := store.NewEntity("Blog", map[string]string{"Url": url})
	b.Link("Posts", posts...)
	return b
}

// Post returns a new post.
func Post(title, content string) *store.Entity {
	return store.NewEntity("Post", map[string]string{"Title": title, "Content": content})
}

// Blogs returns five blogs, each with at least one post.
func Blogs() []*store.Entity {
	return []*store.Entity{
		Blog("https://swift.org/blog/",
			Post("Swift 5.2 Released!", "Swift 5.2 is now officially released!"),
			Post("Announcing ArgumentParser", "We’re delighted to announce ArgumentParser."),
		),
		Blog("https://devblogs.microsoft.com/dotnet",
			Post("EF Core Tutorial", "Getting started with EF Core"),
		),
		Blog("https://blog.afach.de/",
			Post("A simple, lock-free object-pool", "Apache Thrift is an RPC for calling functions on other ends of networks and across different languages."),
		),
		Blog("https://www.hanselman.com/blog/SelfcontainedNETCoreApplications.aspx",
			Post("Self-contained .NET Core Applications", "You can now deploy .Net Core applications as self contained."),
		),
		Blog("https://timheuer.com/blog/",
			Post("Deploying .NET Core 3 apps as self-contained", "Yay! .NET Core 3.0 is now available!  You now are migrating your apps and want to get it to your favorite cloud hosting solution"),
			Post("Skipping CI in GitHub Actions Workflows", "One of the things that I like about Azure DevOps Pipelines is the ability to make minor changes to your code/branch but not have full CI builds happening."),
		),
	}
}

// Link returns a new join record between book and author. Either may be
// nil.
func Link(book, author *store.Entity) *store.Entity {
	l := store.NewEntity("BookAuthorLink", nil)
	if book != nil {
		l.SetRef("Book", book)
	}
	if author != nil {
		l.SetRef("Author", author)
	}
	return l
}

// Book returns a new book.
func Book(name string) *store.Entity {
	return store.NewEntity("Book", map[string]string{"Name": name})
}

// Author returns a new author.
func Author(fullName string) *store.Entity {
	return store.NewEntity("Author", map[string]string{"FullName": fullName})
}

// BookAuthorLinks returns one book with two authors and one with a
// single author.
func BookAuthorLinks() []*store.Entity {
	hydro := Book("Hydroelasticity of Ships")
	lewis := Book("What Went Wrong?")
	return []*store.Entity{
		Link(hydro, Author("R.E.D. Bishop")),
		Link(hydro, Author("W. G. Price")),
		Link(lewis, Author("Bernard Lewis")),
	}
}
