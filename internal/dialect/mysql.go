package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql" // registers the "mysql" database/sql driver
)

type mysqlAdapter struct{}

var _ Adapter = mysqlAdapter{}

func (mysqlAdapter) Kind() Kind { return MySQL }

func (mysqlAdapter) Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return openSQL(ctx, "mysql", dsn)
}

func (mysqlAdapter) Placeholder(int) string { return "?" }

func (mysqlAdapter) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlAdapter) JSONExtract(column string, path []string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, '%s')", column, jsonPath(path))
}

func (a mysqlAdapter) JSONExtractText(column string, path []string) string {
	return fmt.Sprintf("JSON_UNQUOTE(%s)", a.JSONExtract(column, path))
}

func (mysqlAdapter) StringConcat(a, b string) string {
	return fmt.Sprintf("CONCAT(%s, %s)", a, b)
}

func (mysqlAdapter) SupportsReturning() bool { return false }

func (mysqlAdapter) UniqueStringRequiresLength() bool { return true }

func (mysqlAdapter) Savepoint(name string) (save, release, rollback string) {
	return "SAVEPOINT " + name, "RELEASE SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name
}

func (mysqlAdapter) RegexpMatch(column, placeholder string) string {
	return fmt.Sprintf("%s REGEXP %s", column, placeholder)
}

func (mysqlAdapter) JSONArrayContainsExpr(column, placeholder string) string {
	return fmt.Sprintf("JSON_CONTAINS(%s, JSON_QUOTE(CAST(%s AS CHAR)))", column, placeholder)
}
