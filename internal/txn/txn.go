// Package txn implements scoped transaction acquisition: Run opens (or
// shares) a transaction around a callback, matching Python's
// `with db.transaction():` context-manager semantics without a context
// manager of our own — the callback's return error stands in for "did the
// body fail". A first-level call begins a real *sqlx.Tx; a second call
// entered without nested=true reuses the nearest enclosing scope instead of
// opening anything new, so its failure rolls back that whole scope; a call
// entered with nested=true always opens a new SAVEPOINT, rolling back only
// to that savepoint on failure and leaving everything above it intact.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tunqi-go/tunqi/internal/audit"
	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/log"
)

// Executor is the subset of *sqlx.DB/*sqlx.Tx the CRUD executor needs to run
// a compiled plan; Manager.Executor returns the one currently in scope.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

// Manager owns one database connection pool and mediates every transaction
// opened against it.
type Manager struct {
	db        *sqlx.DB
	adapter   dialect.Adapter
	logger    log.Logger
	auditCap  int
	auditSink *audit.Stream
}

// NewManager wraps db for scoped transaction acquisition.
func NewManager(db *sqlx.DB, adapter dialect.Adapter, logger log.Logger) *Manager {
	return &Manager{db: db, adapter: adapter, logger: logger, auditCap: 256}
}

// SetAuditStream attaches the audit observer stream for the life of this
// database: every transaction/savepoint scope Run opens from here on gets
// its own audit.Collector, buffering up to bufferSize events, flushed to
// stream only when that scope fails. A nil stream (the default) disables
// auditing at zero per-event cost beyond the *Collector nil-check.
func (m *Manager) SetAuditStream(stream *audit.Stream, bufferSize int) {
	m.auditSink = stream
	if bufferSize > 0 {
		m.auditCap = bufferSize
	}
}

type scopeKey struct{}

// scope is the state shared by every transaction() call that reuses the
// same underlying savepoint or real transaction: the sharers all read and
// write the same concluded flag, so whichever of them sees a failure first
// rolls back for all of them.
type scope struct {
	tx           *sqlx.Tx
	savepoint    string // "" for the real (outermost) transaction's scope
	releaseStmt  string
	rollbackStmt string
	concluded    bool
}

func (s *scope) rollback(ctx context.Context) error {
	if s.savepoint == "" {
		return s.tx.Rollback()
	}
	_, err := s.tx.ExecContext(ctx, s.rollbackStmt)
	return err
}

func (s *scope) finalize(ctx context.Context) error {
	if s.savepoint == "" {
		return s.tx.Commit()
	}
	_, err := s.tx.ExecContext(ctx, s.releaseStmt)
	return err
}

// Executor returns the transaction currently in scope on ctx, or the pool
// itself when no transaction is active.
func (m *Manager) Executor(ctx context.Context) Executor {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.tx
	}
	return m.db
}

// InTransaction reports whether ctx already carries an active scope.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(scopeKey{}).(*scope)
	return ok
}

// Run executes fn within a transaction scope: a first call on ctx begins a
// real transaction; a further call with nested=true opens a new SAVEPOINT
// inside it; a further call with nested=false shares the nearest enclosing
// scope instead of opening anything, so its failure rolls that whole scope
// back. fn's returned error is what Run treats as failure; a failing Run
// always returns that same error after rolling back. A panic in fn is not
// recovered: it propagates out of Run without a rollback or commit.
func (m *Manager) Run(ctx context.Context, nested bool, fn func(ctx context.Context) error) (err error) {
	existing, hasScope := ctx.Value(scopeKey{}).(*scope)

	if hasScope && !nested {
		return m.runShared(ctx, existing, fn)
	}

	var s *scope
	if !hasScope {
		s, err = m.beginReal(ctx)
	} else {
		s, err = m.beginSavepoint(ctx, existing.tx)
	}
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, scopeKey{}, s)
	collector := audit.NewCollector(m.auditSink, m.auditCap)
	ctx = audit.WithCollector(ctx, collector)

	failed := runBody(ctx, fn, &err)
	if failed {
		if !s.concluded {
			s.concluded = true
			if rerr := s.rollback(ctx); rerr != nil {
				m.logger.ErrorContext(ctx, "transaction rollback failed", "error", rerr)
			}
		}
		collector.Flush(ctx, true)
		return err
	}
	if s.concluded {
		collector.Flush(ctx, false)
		return nil
	}
	s.concluded = true
	finalizeErr := m.finalizeWithRetry(ctx, s)
	collector.Flush(ctx, finalizeErr != nil)
	return finalizeErr
}

// runShared executes fn while sharing existing's scope: on failure it rolls
// that scope back immediately (so sibling code running after this call, but
// still within the shared scope, observes the rollback), then propagates
// the error. A clean run does nothing further — only the scope's owner
// finalizes it.
func (m *Manager) runShared(ctx context.Context, existing *scope, fn func(ctx context.Context) error) error {
	var err error
	if runBody(ctx, fn, &err) {
		if !existing.concluded {
			existing.concluded = true
			if rerr := existing.rollback(ctx); rerr != nil {
				m.logger.ErrorContext(ctx, "transaction rollback failed", "error", rerr)
			}
		}
		return err
	}
	return nil
}

// runBody calls fn, stores its error in *out, and reports whether fn
// returned a non-nil error. Panics are not recovered here.
func runBody(ctx context.Context, fn func(ctx context.Context) error, out *error) (failed bool) {
	*out = fn(ctx)
	return *out != nil
}

func (m *Manager) beginReal(ctx context.Context) (*scope, error) {
	op := func() (*sqlx.Tx, error) { return m.db.BeginTxx(ctx, nil) }
	tx, err := backoff.Retry(ctx, op, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	m.logger.DebugContext(ctx, "transaction begin")
	return &scope{tx: tx}, nil
}

func (m *Manager) beginSavepoint(ctx context.Context, tx *sqlx.Tx) (*scope, error) {
	name := "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	save, release, rollback := m.adapter.Savepoint(name)
	if _, err := tx.ExecContext(ctx, save); err != nil {
		return nil, fmt.Errorf("opening savepoint: %w", err)
	}
	m.logger.DebugContext(ctx, "savepoint begin", "savepoint", name)
	return &scope{tx: tx, savepoint: name, releaseStmt: release, rollbackStmt: rollback}, nil
}

func (m *Manager) finalizeWithRetry(ctx context.Context, s *scope) error {
	op := func() (struct{}, error) { return struct{}{}, s.finalize(ctx) }
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- per-context active/default database stack (spec.md 4.10) ------------

type activeKey struct{}

// WithActive pushes m as the innermost active database on ctx.
func WithActive(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, activeKey{}, m)
}

var defaultManager *Manager

// SetDefault marks m as the at-most-one default database consulted by Get
// when no database is active on ctx.
func SetDefault(m *Manager) { defaultManager = m }

// Get resolves the database a caller means: the innermost one pushed onto
// ctx via WithActive, else the default set by SetDefault, else an error.
func Get(ctx context.Context) (*Manager, error) {
	if m, ok := ctx.Value(activeKey{}).(*Manager); ok {
		return m, nil
	}
	if defaultManager != nil {
		return defaultManager, nil
	}
	return nil, fmt.Errorf("no active nor default database")
}
