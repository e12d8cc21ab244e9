// Package dialect identifies the SQL backend behind a connection URL and
// supplies the handful of SQL fragments that differ between them: JSON
// column access, string concatenation, RETURNING support, and savepoint
// syntax. Each backend gets its own adapter, one per SQL dialect, following
// how a database/sql driver is opened and queried per source/sink kind.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/tunqi-go/tunqi/internal/pluralize"
)

// Kind identifies a supported SQL backend.
type Kind string

const (
	SQLite     Kind = "sqlite"
	PostgreSQL Kind = "postgresql"
	MySQL      Kind = "mysql"
)

var all = []Kind{SQLite, PostgreSQL, MySQL}

// Adapter supplies the dialect-specific SQL fragments the query compiler and
// CRUD executor need. One Adapter instance is shared by every Database
// opened against the same kind of backend; it is immutable and safe for
// concurrent use.
type Adapter interface {
	Kind() Kind

	// Open opens a *sqlx.DB for the given connection URL using this
	// dialect's driver.
	Open(ctx context.Context, dsn string) (*sqlx.DB, error)

	// Placeholder returns the bound-parameter placeholder for the n-th
	// (1-indexed) parameter in a statement.
	Placeholder(n int) string

	// QuoteIdent quotes a table/column/alias identifier.
	QuoteIdent(name string) string

	// JSONExtract returns a SQL expression that navigates json path
	// (dot-separated keys/array indices) within column and yields the
	// raw (non-unwrapped) JSON value at that path.
	JSONExtract(column string, path []string) string

	// JSONExtractText is like JSONExtract but yields the path's value
	// coerced to text, matching what `->>`/`JSON_UNQUOTE` do.
	JSONExtractText(column string, path []string) string

	// StringConcat returns a SQL expression concatenating two string
	// expressions.
	StringConcat(a, b string) string

	// SupportsReturning reports whether INSERT ... RETURNING pk is
	// available (sqlite, postgresql) or whether the executor must fall
	// back to last-insert-id + row-count offset (mysql).
	SupportsReturning() bool

	// UniqueStringRequiresLength reports whether a unique string column
	// must declare an explicit length (mysql, due to index key-length
	// limits).
	UniqueStringRequiresLength() bool

	// Savepoint returns the three statements used to open, release, and
	// roll back to a named savepoint.
	Savepoint(name string) (save, release, rollback string)

	// RegexpMatch returns a boolean SQL expression testing whether column
	// matches the regular expression bound at placeholder.
	RegexpMatch(column, placeholder string) string

	// JSONArrayContainsExpr returns a boolean SQL expression testing
	// whether the JSON array in column contains the scalar bound at
	// placeholder.
	JSONArrayContainsExpr(column, placeholder string) string
}

// Parse identifies the dialect encoded in a connection URL of the form
// "<dialect>[+driver]://[user[:pass]@]host[:port]/[dbname]" (or
// "sqlite:///<path>") and returns the matching Adapter and the driver-native
// DSN to pass to Open.
func Parse(rawURL string) (Adapter, string, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, "", fmt.Errorf("invalid connection url %q", rawURL)
	}
	// Strip a "+driver" suffix, e.g. "postgresql+psycopg2".
	dialectName, _, _ := strings.Cut(scheme, "+")

	switch Kind(dialectName) {
	case SQLite:
		return sqliteAdapter{}, rest, nil
	case PostgreSQL:
		dsn, err := dsnFromURL(rawURL, dialectName)
		if err != nil {
			return nil, "", err
		}
		return postgresAdapter{}, dsn, nil
	case MySQL:
		dsn, err := mysqlDSN(rest)
		if err != nil {
			return nil, "", err
		}
		return mysqlAdapter{}, dsn, nil
	default:
		return nil, "", fmt.Errorf(
			"dialect '%s' is not supported (available dialects are %s)",
			dialectName, pluralize.And(kindStrings()),
		)
	}
}

func kindStrings() []string {
	out := make([]string, len(all))
	for i, k := range all {
		out[i] = string(k)
	}
	return out
}

// dsnFromURL rewrites a connection URL's scheme to the driver-native one pgx
// expects, preserving user/host/port/db/query.
func dsnFromURL(rawURL, dialectName string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid %s connection url: %w", dialectName, err)
	}
	u.Scheme = "postgres"
	return u.String(), nil
}

// mysqlDSN converts "user:pass@host:port/dbname" into the go-sql-driver/mysql
// DSN form "user:pass@tcp(host:port)/dbname".
func mysqlDSN(rest string) (string, error) {
	auth, hostpart, ok := strings.Cut(rest, "@")
	if !ok {
		hostpart = auth
		auth = ""
	}
	hostport, dbname, _ := strings.Cut(hostpart, "/")
	if auth != "" {
		return fmt.Sprintf("%s@tcp(%s)/%s?parseTime=true", auth, hostport, dbname), nil
	}
	return fmt.Sprintf("tcp(%s)/%s?parseTime=true", hostport, dbname), nil
}

// jsonPath renders a dotted/indexed json path as the dialect-neutral
// "$.a.b[0]" style used by sqlite/mysql JSON functions.
func jsonPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range path {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[")
			b.WriteString(seg)
			b.WriteString("]")
		} else {
			b.WriteString(".")
			b.WriteString(seg)
		}
	}
	return b.String()
}

// openSQL is the common "sql.Open + verify" used by every adapter, mirroring
// internal/tools/sqlite/sqlitesql's Db field setup.
func openSQL(ctx context.Context, driverName, dsn string) (*sqlx.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s connection: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect: %w", err)
	}
	return sqlx.NewDb(db, driverName), nil
}
