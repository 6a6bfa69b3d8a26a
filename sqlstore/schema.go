package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mickamy/relmodel/internal/naming"
	"github.com/mickamy/relmodel/orm"
	"github.com/mickamy/relmodel/store"
)

const idColumn = "id"

// table maps a collection onto its SQL table.
type table struct {
	collection string
	name       string
	join       bool
	fields     []string // member names, same order as fieldCols
	fieldCols  []string
	fks        []store.ForeignKey
	fkCols     []string
	leftKey    string
	rightKey   string
}

func newTable(c *store.Collection) *table {
	t := &table{
		collection: c.Name(),
		name:       naming.TableName(c.Name()),
		fields:     c.Fields(),
		fks:        c.ForeignKeys(),
	}
	for _, f := range t.fields {
		t.fieldCols = append(t.fieldCols, naming.ColumnName(f))
	}
	for _, fk := range t.fks {
		t.fkCols = append(t.fkCols, naming.ColumnName(fk.Name))
	}
	t.leftKey, t.rightKey, t.join = c.JoinKeys()
	return t
}

// columns returns every column in select and insert order.
func (t *table) columns() []string {
	var cols []string
	if !t.join {
		cols = append(cols, idColumn)
	}
	cols = append(cols, t.fieldCols...)
	return append(cols, t.fkCols...)
}

func (t *table) fkColumn(name string) string {
	for i, fk := range t.fks {
		if fk.Name == name {
			return t.fkCols[i]
		}
	}
	return naming.ColumnName(name)
}

func (t *table) principal(fkName string) string {
	for _, fk := range t.fks {
		if fk.Name == fkName {
			return fk.Principal
		}
	}
	return ""
}

// createSQL renders CREATE TABLE for d.
func (t *table) createSQL(d orm.Dialect) string {
	qi := d.QuoteIdent
	var defs []string
	if !t.join {
		defs = append(defs, qi(idColumn)+" VARCHAR(36) PRIMARY KEY")
	}
	for _, col := range t.fieldCols {
		defs = append(defs, qi(col)+" TEXT")
	}
	for i, fk := range t.fks {
		def := qi(t.fkCols[i]) + " VARCHAR(36)"
		if fk.Required {
			def += " NOT NULL"
		}
		if fk.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	if t.join {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s, %s)", qi(t.fkColumn(t.leftKey)), qi(t.fkColumn(t.rightKey))))
	}
	for i, fk := range t.fks {
		action := "SET NULL"
		if fk.Required {
			action = "CASCADE"
		}
		defs = append(defs, fmt.Sprintf(
			"FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
			qi(t.fkCols[i]), qi(naming.TableName(fk.Principal)), qi(idColumn), action,
		))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", qi(t.name), strings.Join(defs, ",\n\t"))
}

func (t *table) dropSQL(d orm.Dialect) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(t.name)
}

func tables(m *store.Model) []*table {
	cols := m.Collections()
	out := make([]*table, len(cols))
	for i, c := range cols {
		out[i] = newTable(c)
	}
	return out
}

// Schema returns the CREATE TABLE statements for m, principals first.
func Schema(m *store.Model, d orm.Dialect) ([]string, error) {
	if err := m.Validate(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	var stmts []string
	for _, t := range tables(m) {
		stmts = append(stmts, t.createSQL(d))
	}
	return stmts, nil
}
