package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "StudentId" → "student_id", "BookAuthorLink" → "book_author_link".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName converts a collection name to a snake_case plural table name.
// e.g. "Student" → "students", "Address" → "addresses", "BookAuthorLink" → "book_author_links".
func TableName(collection string) string {
	return inflection.Plural(CamelToSnake(collection))
}

// ColumnName converts a field or foreign key name to its column name.
func ColumnName(field string) string {
	return CamelToSnake(field)
}
