// Package tunqi is a relational data-access engine over SQLite, PostgreSQL
// and MySQL: a schema registry, a composable filter/selector DSL, a query
// compiler and a CRUD executor, all wired through a transaction manager that
// mirrors Python's `with db.transaction():` scoping without Go having a
// context manager of its own.
package tunqi

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/tunqi-go/tunqi/internal/audit"
	"github.com/tunqi-go/tunqi/internal/compiler"
	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/exec"
	"github.com/tunqi-go/tunqi/internal/filter"
	"github.com/tunqi-go/tunqi/internal/log"
	"github.com/tunqi-go/tunqi/internal/schema"
	"github.com/tunqi-go/tunqi/internal/txn"
)

// TableSpec and ColumnSpec describe a table's shape to AddTable, the Go
// equivalent of the source's add_table(name, {"columns": {...}}) call.
type TableSpec = schema.TableSpec
type ColumnSpec = schema.ColumnSpec

// Database owns one connection pool, its schema registry and its
// transaction manager. The zero value is not usable; construct one with
// Open.
type Database struct {
	reg     *schema.Registry
	adapter dialect.Adapter
	sqldb   *sqlx.DB
	tm      *txn.Manager
	logger  log.Logger
}

type options struct {
	logger        log.Logger
	auditObserver audit.Observer
	auditBuffer   int
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the structured logger transaction/savepoint begins,
// rollback failures and audit delivery failures are reported through. Defaults to a no-op
// logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAuditObserver attaches observer for the life of the database: every
// transaction/savepoint scope's buffered statement events flush to it on
// that scope's failure, per spec.md's audit stream design.
func WithAuditObserver(observer audit.Observer) Option {
	return func(o *options) { o.auditObserver = observer }
}

// WithAuditBufferSize overrides the per-scope audit event buffer capacity
// (default 256); once full, the oldest buffered event is dropped to make
// room for the newest.
func WithAuditBufferSize(n int) Option {
	return func(o *options) { o.auditBuffer = n }
}

// Open parses url ("sqlite:///<path>" or "{postgresql|mysql}://user:pass@
// host:port/[db]"), opens the matching driver's connection pool, and
// returns a Database ready for AddTable/CreateTables.
func Open(ctx context.Context, url string, opts ...Option) (*Database, error) {
	cfg := options{logger: log.NewNopLogger(), auditBuffer: 256}
	for _, opt := range opts {
		opt(&cfg)
	}

	adapter, dsn, err := dialect.Parse(url)
	if err != nil {
		return nil, newValueError("%v", err)
	}
	sqldb, err := adapter.Open(ctx, dsn)
	if err != nil {
		return nil, newConnectionError("opening database", err)
	}

	tm := txn.NewManager(sqldb, adapter, cfg.logger)
	if cfg.auditObserver != nil {
		tm.SetAuditStream(audit.NewStream(cfg.auditObserver, cfg.logger), cfg.auditBuffer)
	}

	return &Database{
		reg:     schema.New(),
		adapter: adapter,
		sqldb:   sqldb,
		tm:      tm,
		logger:  cfg.logger,
	}, nil
}

// SetDefault marks db as the at-most-one default database consulted by
// code that resolves its transaction manager from ctx rather than holding a
// *Database handle directly, matching spec.md 4.10's per-context
// active/default database stack. A Database's own methods always operate
// against itself directly and never consult this.
func (db *Database) SetDefault() {
	txn.SetDefault(db.tm)
}

// WithActive pushes db as the innermost database ctx-resolving code
// addresses, for code running under more than one Database.
func WithActive(ctx context.Context, db *Database) context.Context {
	return txn.WithActive(ctx, db.tm)
}

// AddTable registers name with spec, prepending the implicit integer "pk"
// primary key every table gets automatically. Call before CreateTables.
func (db *Database) AddTable(name string, spec TableSpec) error {
	if err := db.reg.AddTable(name, spec); err != nil {
		return newValueError("%v", err)
	}
	return nil
}

// CreateTables emits CREATE TABLE (and m2m link table) DDL for the named
// tables (every table added so far, in declaration order, if names is
// empty). Idempotent: a table that already exists is left untouched. No
// index DDL is emitted; a column's Index flag is not acted on.
func (db *Database) CreateTables(ctx context.Context, names ...string) error {
	if err := db.reg.CreateTables(ctx, db.sqldb, db.adapter, names...); err != nil {
		return newConnectionError("creating tables", err)
	}
	return nil
}

// DropTables drops the named tables (every table added so far, in reverse
// declaration order, if names is empty).
func (db *Database) DropTables(ctx context.Context, names ...string) error {
	if err := db.reg.DropTables(ctx, db.sqldb, db.adapter, names...); err != nil {
		return newConnectionError("dropping tables", err)
	}
	return nil
}

// Transaction runs fn within a transaction scope against db: the first call
// on ctx begins a real transaction; a further nested=true call opens a
// SAVEPOINT inside it, rolling back only to that point on fn's error; a
// further nested=false call shares the nearest enclosing scope, so its
// failure rolls that whole scope back. fn's returned error is what decides
// success/failure.
func (db *Database) Transaction(ctx context.Context, nested bool, fn func(ctx context.Context) error) error {
	return db.tm.Run(ctx, nested, fn)
}

// InsertOptions controls upsert behavior for Insert, mirroring the source's
// on_conflict=.../update=... keyword arguments.
type InsertOptions = exec.InsertOptions

// Insert writes rows into table in one statement, returning their assigned
// primary keys in row order (nil when opts.ReturnPKs is false). Raises AlreadyExistsError
// on a unique violation unless opts.OnConflict names the violated columns.
func (db *Database) Insert(ctx context.Context, table string, rows []Row, opts InsertOptions) ([]int64, error) {
	return exec.Insert(ctx, db.reg, db.adapter, db.tm, table, rows, opts)
}

// Update applies assigns to every row of table matching f (nil matches
// every row), returning the number of rows affected.
func (db *Database) Update(ctx context.Context, table string, f *Query, assigns []Assignment) (int64, error) {
	return exec.Update(ctx, db.reg, db.adapter, db.tm, table, nodeOf(f), compileAssignments(assigns))
}

// Delete removes every row of table matching f (nil matches every row),
// cascading to or nulling any dependent foreign keys per their
// nullability, and returns the number of rows removed from table itself.
func (db *Database) Delete(ctx context.Context, table string, f *Query) (int64, error) {
	return exec.Delete(ctx, db.reg, db.adapter, db.tm, table, nodeOf(f))
}

// Count returns the number of rows of table matching f. When distinctCols
// is non-empty it counts distinct combinations of those columns instead of
// rows, so a multi-valued join path never inflates the count.
func (db *Database) Count(ctx context.Context, table string, distinctCols []string, f *Query) (int64, error) {
	return exec.Count(ctx, db.reg, db.adapter, db.tm, table, distinctCols, nodeOf(f))
}

// Exists reports whether any row of table matches f.
func (db *Database) Exists(ctx context.Context, table string, f *Query) (bool, error) {
	return exec.Exists(ctx, db.reg, db.adapter, db.tm, table, nodeOf(f))
}

// SelectRequest describes a select(...) call's full shape.
type SelectRequest struct {
	Table     string
	Selectors []*Select
	Filter    *Query
	Order     []string
	Limit     *int
	Offset    *int
}

// Select returns every row of req.Table matching req.Filter, with exactly
// req.Selectors as output columns (every own column, in declaration order,
// if Selectors is nil).
func (db *Database) Select(ctx context.Context, req SelectRequest) ([]Row, error) {
	return exec.Select(ctx, db.reg, db.adapter, db.tm, db.compileSelectRequest(req))
}

// SelectOne is Select narrowed to its first row (LIMIT 1), raising
// DoesNotExistError naming req.Filter's rendering if none matches. More than
// one match is not an error.
func (db *Database) SelectOne(ctx context.Context, req SelectRequest) (Row, error) {
	return exec.SelectOne(ctx, db.reg, db.adapter, db.tm, db.compileSelectRequest(req))
}

func (db *Database) compileSelectRequest(req SelectRequest) compiler.SelectRequest {
	return compiler.SelectRequest{
		Table:     req.Table,
		Selectors: selectNodes(req.Selectors),
		Filter:    nodeOf(req.Filter),
		Order:     req.Order,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
}

func nodeOf(q *Query) filter.Node {
	if q == nil {
		return nil
	}
	return q.node
}
