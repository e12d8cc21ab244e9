package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

type sqliteAdapter struct{}

var _ Adapter = sqliteAdapter{}

func (sqliteAdapter) Kind() Kind { return SQLite }

func (sqliteAdapter) Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	// https://pkg.go.dev/modernc.org/sqlite#Driver.Open
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)"
	} else {
		dsn += "&_pragma=foreign_keys(1)"
	}
	return openSQL(ctx, "sqlite", dsn)
}

func (sqliteAdapter) Placeholder(int) string { return "?" }

func (sqliteAdapter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteAdapter) JSONExtract(column string, path []string) string {
	return fmt.Sprintf("json_extract(%s, '%s')", column, jsonPath(path))
}

func (a sqliteAdapter) JSONExtractText(column string, path []string) string {
	return a.JSONExtract(column, path)
}

func (sqliteAdapter) StringConcat(a, b string) string {
	return a + " || " + b
}

func (sqliteAdapter) SupportsReturning() bool { return true }

func (sqliteAdapter) UniqueStringRequiresLength() bool { return false }

func (sqliteAdapter) Savepoint(name string) (save, release, rollback string) {
	return "SAVEPOINT " + name, "RELEASE SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name
}

func (sqliteAdapter) RegexpMatch(column, placeholder string) string {
	return fmt.Sprintf("%s REGEXP %s", column, placeholder)
}

func (sqliteAdapter) JSONArrayContainsExpr(column, placeholder string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value = %s)", column, placeholder)
}
