// Package pathexpr parses the path strings used to name a column for
// selection (e.g. "posts.commentary.content.length:n") or for a filter
// keyword (e.g. "posts__commentary__content__startswith"). A selector
// string is entirely "."-separated — relation hops, JSON-path navigation,
// and function chaining all use the same separator, since it's a free-form
// string with its own ":alias" suffix. A filter keyword is entirely
// "__"-separated instead, since it must double as a valid identifier; the
// trailing segment detaches as the comparison operator when it names one.
package pathexpr

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/ops"
	"github.com/tunqi-go/tunqi/internal/pluralize"
)

// Mode selects which separator convention and which "segment not found"
// error a raw string follows.
type Mode int

const (
	// Selector parses a column-selection string: every segment (relation
	// hops, JSON path, functions) separated by ".", with an optional
	// ":alias" suffix.
	Selector Mode = iota
	// Filter parses a filter keyword: every segment separated by "__",
	// with a trailing registered-operator segment detaching as Operator.
	Filter
)

// Resolver answers the schema questions path parsing needs without
// pathexpr depending on the schema package directly (schema depends on
// pathexpr for filter construction, not the other way around).
type Resolver interface {
	// Relation reports whether name is a relation from table and, if so,
	// the table it leads to.
	Relation(table, name string) (relatedTable string, ok bool)
	// Column reports whether name is a column on table and, if so, its
	// declared type (e.g. "string", "json", "fk").
	Column(table, name string) (colType string, ok bool)
	// AvailableSelectors lists every column and relation name on table,
	// for "no such selector" error messages.
	AvailableSelectors(table string) []string
	// AvailableColumns lists every column name on table (no relations),
	// for "no such column" error messages on a bare filter key.
	AvailableColumns(table string) []string
}

// Path is the fully-resolved shape of a parsed path string.
type Path struct {
	// Relations is the chain of relation names walked from the
	// originating table, in traversal order.
	Relations []string
	// Table is the table the Column/JSONPath/Functions resolve against —
	// the originating table if Relations is empty, else the table at the
	// end of the relation chain.
	Table string
	// Column is the base column name on Table, or "" when the path ends
	// in a relation hop (a selector naming a relation alone expands to
	// every column of Table; see RelationAll).
	Column string
	// ColumnType is Column's declared schema type.
	ColumnType string
	// JSONPath is the chain of keys/indices navigated inside Column when
	// Column is a JSON column.
	JSONPath []string
	// Functions is the chain of function names applied, in order, after
	// Column/JSONPath resolution.
	Functions []string
	// Operator is the trailing comparison operator name for a Filter
	// path, or "" if none was given (callers default to "eq").
	Operator string
	// Alias is the ":alias" suffix for a Selector path, or "".
	Alias string
	// RelationAll is true when raw named a bare relation chain with no
	// trailing column: the selector expands to every column of Table,
	// qualified by Relations.
	RelationAll bool
}

// Parse parses raw against table using resolver, following mode's
// separator/error conventions.
func Parse(resolver Resolver, table, raw string, mode Mode) (*Path, error) {
	name := raw
	alias := ""
	if mode == Selector {
		if i := strings.LastIndex(raw, ":"); i >= 0 {
			name, alias = raw[:i], raw[i+1:]
		}
	}

	var segments []string
	if mode == Selector {
		segments = strings.Split(name, ".")
	} else {
		segments = strings.Split(name, "__")
	}

	p := &Path{Table: table, Alias: alias}

	// Walk leading relation hops; any number of "__"/"."-separated
	// segments that resolve as relations on the current table.
	i := 0
	for ; i < len(segments); i++ {
		related, ok := resolver.Relation(p.Table, segments[i])
		if !ok {
			break
		}
		p.Relations = append(p.Relations, segments[i])
		p.Table = related
	}

	if i == len(segments) {
		if mode == Selector {
			p.RelationAll = true
			return p, nil
		}
		return nil, fmt.Errorf("empty path %q", raw)
	}

	remaining := segments[i:]
	colName := remaining[0]
	rest := remaining[1:]

	// The single-segment bare filter key (no relation, no chain) is the
	// one case that resolves against columns only; every other shape —
	// a selector of any length, or a filter with a relation/JSON/function
	// chain — resolves against the full selector namespace (columns and
	// relations), because only that namespace can explain an unresolved
	// leading segment like a typo'd relation name.
	bareFilterColumn := mode == Filter && len(p.Relations) == 0 && len(segments) == 1
	colType, ok := resolver.Column(p.Table, colName)
	if !ok {
		return nil, notFoundError(resolver, p.Table, colName, !bareFilterColumn)
	}
	p.Column = colName
	p.ColumnType = colType

	// A trailing operator name is stripped first, before the JSON
	// path/function chain is resolved, so a bare "col__op" filter (no
	// path in between) never has to look like a JSON access.
	if mode == Filter && len(rest) > 0 && ops.IsOperator(rest[len(rest)-1]) {
		p.Operator = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}

	currentType := colType
	idx := 0
	for idx < len(rest) {
		step := rest[idx]
		if ops.IsFunction(step) {
			break
		}
		if currentType != "json" {
			return nil, fmt.Errorf("column '%s.%s' is not a JSON column", p.Table, p.Column)
		}
		p.JSONPath = append(p.JSONPath, step)
		idx++
	}
	for idx < len(rest) {
		step := rest[idx]
		fn, ok := ops.LookupFunction(step)
		if !ok {
			return nil, fmt.Errorf("unknown path segment %q in %q", step, raw)
		}
		p.Functions = append(p.Functions, step)
		currentType = fn.ResultType
		idx++
	}

	return p, nil
}

func notFoundError(resolver Resolver, table, name string, asSelector bool) error {
	if asSelector {
		return fmt.Errorf(
			"table '%s' has no column '%s' (available selectors are %s)",
			table, name, pluralize.And(resolver.AvailableSelectors(table)),
		)
	}
	return fmt.Errorf(
		"table '%s' has no column '%s' (available columns are %s)",
		table, name, pluralize.And(resolver.AvailableColumns(table)),
	)
}
