package schema

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/dialect"
)

// sqlColumnType maps a column's declared type to its physical SQL type for
// adapter's dialect.
func sqlColumnType(adapter dialect.Adapter, c *column) (string, error) {
	switch c.Type {
	case Boolean:
		switch adapter.Kind() {
		case dialect.SQLite:
			return "INTEGER", nil
		default:
			return "BOOLEAN", nil
		}
	case Integer, FK:
		return "INTEGER", nil
	case Double:
		if adapter.Kind() == dialect.PostgreSQL {
			return "DOUBLE PRECISION", nil
		}
		return "DOUBLE", nil
	case String:
		return "TEXT", nil
	case StringLength:
		return fmt.Sprintf("VARCHAR(%d)", c.Length), nil
	case DateTime:
		switch adapter.Kind() {
		case dialect.SQLite:
			return "TEXT", nil
		case dialect.PostgreSQL:
			return "TIMESTAMP", nil
		default:
			return "DATETIME", nil
		}
	case Binary:
		switch adapter.Kind() {
		case dialect.PostgreSQL:
			return "BYTEA", nil
		default:
			return "BLOB", nil
		}
	case JSON:
		switch adapter.Kind() {
		case dialect.PostgreSQL:
			return "JSONB", nil
		case dialect.MySQL:
			return "JSON", nil
		default:
			return "TEXT", nil
		}
	default:
		return "", fmt.Errorf("column type %q has no physical storage", c.Type)
	}
}

// createTableSQL renders the CREATE TABLE statement for t; backref/m2m
// columns are relation-only and have no physical column of their own.
func createTableSQL(adapter dialect.Adapter, t *table) (string, error) {
	var cols []string
	var uniqueSingle []string
	for _, name := range t.ColumnOrder {
		c := t.Columns[name]
		if c.Type == Backref || c.Type == M2M {
			continue
		}
		sqlType, err := sqlColumnType(adapter, c)
		if err != nil {
			return "", fmt.Errorf("table %q: %w", t.Name, err)
		}
		def := fmt.Sprintf("%s %s", adapter.QuoteIdent(name), sqlType)
		if name == "pk" {
			switch adapter.Kind() {
			case dialect.PostgreSQL:
				def = fmt.Sprintf("%s SERIAL PRIMARY KEY", adapter.QuoteIdent(name))
			case dialect.MySQL:
				def += " PRIMARY KEY AUTO_INCREMENT"
			default:
				def += " PRIMARY KEY AUTOINCREMENT"
			}
		} else {
			if !c.Nullable {
				def += " NOT NULL"
			}
			if c.Unique {
				def += " UNIQUE"
			}
			if c.Type == FK {
				def += fmt.Sprintf(" REFERENCES %s(%s)", adapter.QuoteIdent(c.Table), adapter.QuoteIdent("pk"))
			}
		}
		cols = append(cols, def)
	}
	for _, group := range t.UniqueGroups {
		quoted := make([]string, len(group))
		for i, g := range group {
			quoted[i] = adapter.QuoteIdent(g)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoted, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", adapter.QuoteIdent(t.Name), strings.Join(cols, ", ")), nil
}

// m2mLinkTableSQL names and renders the implicit link table joining table
// and related through an m2m column. The name is canonicalized (tables
// sorted) so that a pair of complementary m2m columns declared on both
// sides of the relation (e.g. post.tagging / tag.posts) share one table
// instead of creating two.
func m2mLinkTableSQL(adapter dialect.Adapter, table, column, related string) (name string, stmt string) {
	name, fromCol, toCol := linkTableColumns(table, related)
	stmt = fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s INTEGER NOT NULL REFERENCES %s(%s), %s INTEGER NOT NULL REFERENCES %s(%s))",
		adapter.QuoteIdent(name),
		adapter.QuoteIdent(fromCol), adapter.QuoteIdent(table), adapter.QuoteIdent("pk"),
		adapter.QuoteIdent(toCol), adapter.QuoteIdent(related), adapter.QuoteIdent("pk"),
	)
	return name, stmt
}
