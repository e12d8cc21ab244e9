package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

type postgresAdapter struct{}

var _ Adapter = postgresAdapter{}

func (postgresAdapter) Kind() Kind { return PostgreSQL }

func (postgresAdapter) Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return openSQL(ctx, "pgx", dsn)
}

func (postgresAdapter) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresAdapter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// JSONExtract walks every key, the last one included, with "->", so the
// result stays jsonb; JSONExtractText is the form that ends in "->>" text.
func (postgresAdapter) JSONExtract(column string, path []string) string {
	expr := column
	for _, seg := range path {
		expr = fmt.Sprintf("%s -> %s", expr, pgKey(seg))
	}
	return expr
}

func (postgresAdapter) JSONExtractText(column string, path []string) string {
	if len(path) == 0 {
		return column
	}
	expr := column
	for i, seg := range path {
		op := "->"
		if i == len(path)-1 {
			op = "->>"
		}
		expr = fmt.Sprintf("%s %s %s", expr, op, pgKey(seg))
	}
	return expr
}

// pgKey renders a json path segment as either an integer array index or a
// quoted text key, as Postgres' -> / ->> operators require.
func pgKey(seg string) string {
	if _, err := strconv.Atoi(seg); err == nil {
		return seg
	}
	return "'" + strings.ReplaceAll(seg, "'", "''") + "'"
}

func (postgresAdapter) StringConcat(a, b string) string {
	return a + " || " + b
}

func (postgresAdapter) SupportsReturning() bool { return true }

func (postgresAdapter) UniqueStringRequiresLength() bool { return false }

func (postgresAdapter) Savepoint(name string) (save, release, rollback string) {
	return "SAVEPOINT " + name, "RELEASE SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name
}

func (postgresAdapter) RegexpMatch(column, placeholder string) string {
	return fmt.Sprintf("%s ~ %s", column, placeholder)
}

func (postgresAdapter) JSONArrayContainsExpr(column, placeholder string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS elem(value) WHERE elem.value = %s)",
		column, placeholder,
	)
}
