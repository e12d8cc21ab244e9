// Package exec implements the CRUD operations (insert/update/delete/select/
// count/exists) that run a internal/compiler-compiled (or, for insert,
// directly-assembled) Plan against whichever *sqlx.Tx or *sqlx.DB is
// currently in scope on ctx per internal/txn, decoding rows back through
// internal/codec and translating driver-level failures (unique-constraint
// violation, empty result set) into this package's typed errors.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tunqi-go/tunqi/internal/audit"
	"github.com/tunqi-go/tunqi/internal/codec"
	"github.com/tunqi-go/tunqi/internal/compiler"
	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/filter"
	"github.com/tunqi-go/tunqi/internal/pluralize"
	"github.com/tunqi-go/tunqi/internal/schema"
	"github.com/tunqi-go/tunqi/internal/selector"
	"github.com/tunqi-go/tunqi/internal/txn"
)

// emitAudit records one compiled statement's audit event against whatever
// collector is in scope on ctx, timing it from start to now.
func emitAudit(ctx context.Context, table, op, stmt string, args []any, start time.Time, rowsAffected int64, err error) {
	audit.Emit(ctx, audit.Event{
		Table:        table,
		Operation:    op,
		Statement:    stmt,
		Params:       args,
		Duration:     time.Since(start),
		RowsAffected: rowsAffected,
		Err:          err,
	})
}

// Row is one record's column-keyed values, on the way in (Insert) or out
// (Select).
type Row map[string]any

// InsertOptions controls Insert's conflict-handling behavior.
type InsertOptions struct {
	ReturnPKs  bool
	OnConflict []string
	UpdateCols []string
	UpdateAll  bool
}

// Insert writes rows to table in a single multi-row INSERT, returning each
// row's assigned pk in argument order (nil when opts.ReturnPKs is false).
func Insert(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, rows []Row, opts InsertOptions) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	var insertCols []string
	for _, c := range reg.Columns(table) {
		if c != "pk" {
			insertCols = append(insertCols, c)
		}
	}
	for _, row := range rows {
		for k := range row {
			if _, ok := reg.ColumnType(table, k); !ok {
				return nil, fmt.Errorf("table '%s' has no column '%s'", table, k)
			}
		}
	}

	q := adapter.QuoteIdent
	colExprs := make([]string, len(insertCols))
	for i, c := range insertCols {
		colExprs[i] = q(c)
	}

	var args []any
	rowPlaceholders := make([]string, len(rows))
	for ri, row := range rows {
		ph := make([]string, len(insertCols))
		for ci, c := range insertCols {
			var enc any
			if v, ok := row[c]; ok {
				var err error
				enc, err = codec.EncodeTop(v)
				if err != nil {
					return nil, fmt.Errorf("encoding %s.%s: %w", table, c, err)
				}
			}
			args = append(args, enc)
			ph[ci] = adapter.Placeholder(len(args))
		}
		rowPlaceholders[ri] = "(" + strings.Join(ph, ", ") + ")"
	}

	conflictClause, err := buildConflictClause(adapter, opts, insertCols)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s", q(table), strings.Join(colExprs, ", "), strings.Join(rowPlaceholders, ", "))
	b.WriteString(conflictClause)

	returning := opts.ReturnPKs && adapter.SupportsReturning()
	if returning {
		fmt.Fprintf(&b, " RETURNING %s", q("pk"))
	}
	sqlStr := b.String()
	execr := tm.Executor(ctx)
	start := time.Now()

	if returning {
		rowsx, err := execr.QueryxContext(ctx, sqlStr, args...)
		if err != nil {
			emitAudit(ctx, table, "insert", sqlStr, args, start, 0, err)
			return nil, translateInsertErr(ctx, reg, adapter, execr, table, rows, opts, err)
		}
		defer rowsx.Close()
		var pks []int64
		for rowsx.Next() {
			var pk int64
			if err := rowsx.Scan(&pk); err != nil {
				return nil, err
			}
			pks = append(pks, pk)
		}
		emitAudit(ctx, table, "insert", sqlStr, args, start, int64(len(pks)), rowsx.Err())
		return pks, rowsx.Err()
	}

	result, err := execr.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		emitAudit(ctx, table, "insert", sqlStr, args, start, 0, err)
		return nil, translateInsertErr(ctx, reg, adapter, execr, table, rows, opts, err)
	}
	affected, _ := result.RowsAffected()
	emitAudit(ctx, table, "insert", sqlStr, args, start, affected, nil)
	if !opts.ReturnPKs {
		return nil, nil
	}
	// MySQL has no RETURNING: LAST_INSERT_ID() names the first row of a
	// multi-row INSERT against an AUTO_INCREMENT pk, with the rest
	// contiguous from there.
	firstID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	pks := make([]int64, len(rows))
	for i := range rows {
		pks[i] = firstID + int64(i)
	}
	return pks, nil
}

func buildConflictClause(adapter dialect.Adapter, opts InsertOptions, insertCols []string) (string, error) {
	if len(opts.OnConflict) == 0 {
		return "", nil
	}
	q := adapter.QuoteIdent
	doNothing := !opts.UpdateAll && len(opts.UpdateCols) == 0
	updateCols := opts.UpdateCols
	if opts.UpdateAll {
		updateCols = nonConflictCols(insertCols, opts.OnConflict)
	}

	if adapter.Kind() == dialect.MySQL {
		if doNothing {
			// MySQL has no ON CONFLICT DO NOTHING; a self-assigning update
			// of the first conflict column is a reliable no-op equivalent.
			return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", q(opts.OnConflict[0]), q(opts.OnConflict[0])), nil
		}
		sets := make([]string, len(updateCols))
		for i, c := range updateCols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", q(c), q(c))
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", "), nil
	}

	conflictCols := make([]string, len(opts.OnConflict))
	for i, c := range opts.OnConflict {
		conflictCols[i] = q(c)
	}
	clause := fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(conflictCols, ", "))
	if doNothing {
		return clause + " DO NOTHING", nil
	}
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", q(c), q(c))
	}
	return clause + " DO UPDATE SET " + strings.Join(sets, ", "), nil
}

func nonConflictCols(all, conflict []string) []string {
	skip := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		skip[c] = true
	}
	var out []string
	for _, c := range all {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

// translateInsertErr turns a unique-constraint violation (when opts has no
// on_conflict handling of its own) into an AlreadyExistsError naming the
// offending column(s); any other error passes through unchanged.
func translateInsertErr(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, execr txn.Executor, table string, rows []Row, opts InsertOptions, cause error) error {
	if len(opts.OnConflict) > 0 || !isUniqueViolation(adapter, cause) {
		return cause
	}
	for _, row := range rows {
		for _, group := range reg.UniqueConstraints(table) {
			leaf := groupEqFilter(group, row)
			if leaf == nil {
				continue
			}
			plan, err := compiler.CompileExists(reg, adapter, table, leaf)
			if err != nil {
				continue
			}
			var exists bool
			if err := execr.QueryRowxContext(ctx, plan.SQL, plan.Args...).Scan(&exists); err != nil {
				continue
			}
			if exists {
				parts := make([]string, len(group))
				for i, col := range group {
					parts[i] = fmt.Sprintf("%s '%v'", col, row[col])
				}
				return NewAlreadyExistsError(fmt.Sprintf("%s with %s already exists", table, pluralize.And(parts)), cause)
			}
		}
	}
	return NewAlreadyExistsError(fmt.Sprintf("%s already exists", table), cause)
}

func groupEqFilter(group []string, row Row) filter.Node {
	leaves := make([]filter.Node, len(group))
	for i, col := range group {
		v, ok := row[col]
		if !ok {
			return nil
		}
		leaves[i] = filter.NewLeaf(col, "eq", v)
	}
	return filter.AndOf(leaves...)
}

// isUniqueViolation matches the driver-level unique/primary-key constraint
// error text for each dialect. The drivers expose their own typed error
// values (sqlite.Error, pgconn.PgError, mysql.MySQLError), but their exact
// shape shifts across driver versions more than their wire-level message
// text does, so matching on the stable substrings below is the more
// portable check across the three supported backends.
func isUniqueViolation(adapter dialect.Adapter, err error) bool {
	msg := err.Error()
	switch adapter.Kind() {
	case dialect.SQLite:
		return strings.Contains(msg, "UNIQUE constraint failed")
	case dialect.PostgreSQL:
		return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value violates unique constraint")
	case dialect.MySQL:
		return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "Duplicate entry")
	default:
		return false
	}
}

// Update compiles and runs an UPDATE, returning the affected row count.
func Update(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, f filter.Node, assignments []compiler.Assignment) (int64, error) {
	plan, err := compiler.CompileUpdate(reg, adapter, table, f, assignments)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	result, err := tm.Executor(ctx).ExecContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		emitAudit(ctx, table, "update", plan.SQL, plan.Args, start, 0, err)
		return 0, err
	}
	affected, err := result.RowsAffected()
	emitAudit(ctx, table, "update", plan.SQL, plan.Args, start, affected, err)
	return affected, err
}

// Delete removes rows matching f from table, cascading to every dependent
// table's FK per its nullability (cascade-delete when the fk is NOT NULL,
// set-null when it's nullable), walking the full dependent graph rather
// than stopping one level down.
func Delete(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, f filter.Node) (int64, error) {
	if err := cascadeDependents(ctx, reg, adapter, tm, table, f); err != nil {
		return 0, err
	}

	plan, err := compiler.CompileDelete(reg, adapter, table, f)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	result, err := tm.Executor(ctx).ExecContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		emitAudit(ctx, table, "delete", plan.SQL, plan.Args, start, 0, err)
		return 0, err
	}
	affected, err := result.RowsAffected()
	emitAudit(ctx, table, "delete", plan.SQL, plan.Args, start, affected, err)
	return affected, err
}

// cascadeDependents acts on every other table with an fk pointing at table,
// for the rows table currently selects under f: nulling out the fk when
// it's nullable, or recursively deleting the dependent row (which in turn
// cascades its own dependents first) when it isn't — the leaves of the FK
// graph unwind before their parents.
func cascadeDependents(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, f filter.Node) error {
	deps := reg.DependentFKs(table)
	if len(deps) == 0 {
		return nil
	}
	pks, err := selectMatchingPKs(ctx, reg, adapter, tm, table, f)
	if err != nil {
		return err
	}
	if len(pks) == 0 {
		return nil
	}
	ids := make([]any, len(pks))
	for i, pk := range pks {
		ids[i] = pk
	}
	for _, dep := range deps {
		depFilter := filter.NewLeaf(dep.Column, "in", ids)
		if dep.Nullable {
			if _, err := Update(ctx, reg, adapter, tm, dep.Table, depFilter, []compiler.Assignment{
				{Column: dep.Column, Value: nil},
			}); err != nil {
				return err
			}
			continue
		}
		if _, err := Delete(ctx, reg, adapter, tm, dep.Table, depFilter); err != nil {
			return err
		}
	}
	return nil
}

// selectMatchingPKs resolves the pks of table's rows currently matching f,
// the scoping set cascadeDependents hands down to each dependent table.
func selectMatchingPKs(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, f filter.Node) ([]int64, error) {
	rows, err := Select(ctx, reg, adapter, tm, compiler.SelectRequest{
		Table:     table,
		Selectors: []selector.Node{selector.C("pk")},
		Filter:    f,
	})
	if err != nil {
		return nil, err
	}
	pks := make([]int64, 0, len(rows))
	for _, r := range rows {
		switch v := r["pk"].(type) {
		case int64:
			pks = append(pks, v)
		case int:
			pks = append(pks, int64(v))
		}
	}
	return pks, nil
}

// Count compiles and runs a COUNT(*), optionally deduplicated on
// distinctCols (nil means pk-level dedup only when a to-many join forces
// it, per internal/compiler.CompileCount).
func Count(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, distinctCols []string, f filter.Node) (int64, error) {
	plan, err := compiler.CompileCount(reg, adapter, table, distinctCols, f)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	var n int64
	err = tm.Executor(ctx).QueryRowxContext(ctx, plan.SQL, plan.Args...).Scan(&n)
	emitAudit(ctx, table, "count", plan.SQL, plan.Args, start, n, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Exists compiles and runs a SELECT EXISTS(...).
func Exists(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, table string, f filter.Node) (bool, error) {
	plan, err := compiler.CompileExists(reg, adapter, table, f)
	if err != nil {
		return false, err
	}
	start := time.Now()
	var exists bool
	err = tm.Executor(ctx).QueryRowxContext(ctx, plan.SQL, plan.Args...).Scan(&exists)
	emitAudit(ctx, table, "exists", plan.SQL, plan.Args, start, 0, err)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Select compiles and runs req, decoding every returned row back through
// the value codec per its declared column type.
func Select(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, req compiler.SelectRequest) ([]Row, error) {
	plan, cols, err := compiler.CompileSelect(reg, adapter, req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rowsx, err := tm.Executor(ctx).QueryxContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		emitAudit(ctx, req.Table, "select", plan.SQL, plan.Args, start, 0, err)
		return nil, err
	}
	defer rowsx.Close()

	var out []Row
	for rowsx.Next() {
		raw, err := rowsx.SliceScan()
		if err != nil {
			return nil, err
		}
		out = append(out, decodeRow(raw, cols))
	}
	err = rowsx.Err()
	emitAudit(ctx, req.Table, "select", plan.SQL, plan.Args, start, int64(len(out)), err)
	return out, err
}

// SelectOne runs req with LIMIT 1 and returns the first matching row,
// raising DoesNotExistError("<table> with <filter> doesn't exist") (or "no
// <table>s exist" when req carries no filter) when none match. More than one
// match is not an error: only the first row is fetched.
func SelectOne(ctx context.Context, reg *schema.Registry, adapter dialect.Adapter, tm *txn.Manager, req compiler.SelectRequest) (Row, error) {
	limit := 1
	req.Limit = &limit
	rows, err := Select(ctx, reg, adapter, tm, req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if req.Filter == nil {
			return nil, NewDoesNotExistError(fmt.Sprintf("no %ss exist", req.Table))
		}
		return nil, NewDoesNotExistError(fmt.Sprintf("%s with %s doesn't exist", req.Table, req.Filter.Render()))
	}
	return rows[0], nil
}

// decodeRow converts a driver-native row (as SliceScan hands it back, one
// value per output column in selection order) into its caller-facing values
// keyed by each output column's key, per its declared type: JSON
// columns are json.Unmarshal'd then passed through codec.DecodeJSON to
// restore nested datetime/binary markers, datetime columns are parsed back
// into time.Time, and everything else passes through codec.DecodeTop.
func decodeRow(raw []any, cols []compiler.OutputColumn) Row {
	out := make(Row, len(cols))
	for i, oc := range cols {
		var v any
		if i < len(raw) {
			v = raw[i]
		}
		out[oc.Key] = decodeValue(v, oc.Type)
	}
	return out
}

func decodeValue(v any, colType string) any {
	if v == nil {
		return nil
	}
	switch schema.ColumnType(colType) {
	case schema.Boolean:
		switch t := v.(type) {
		case int64:
			return t != 0
		case bool:
			return t
		}
	case schema.DateTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed.UTC()
			}
			if parsed, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", t); err == nil {
				return parsed.UTC()
			}
		}
	case schema.JSON:
		if s, ok := v.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return codec.DecodeJSON(parsed)
			}
		}
	}
	decoded, err := codec.DecodeTop(v)
	if err != nil {
		return v
	}
	return decoded
}
