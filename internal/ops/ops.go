// Package ops is the process-global operator/function registry: one map,
// one registration per builtin, matching the "kind string -> registered
// factory" shape used elsewhere in this codebase's registries. Unlike a
// plain init-time registry, registration here returns a handle whose Close
// removes the entry, so tests can register scratch operators/functions
// without leaking them into later tests.
package ops

import (
	"fmt"
	"sync"

	"github.com/tunqi-go/tunqi/internal/dialect"
)

// RenderContext is everything an Operator or Function needs to produce a SQL
// fragment: the dialect in play, the SQL expression for the column/json-path
// being acted on, the declared column type (used to disambiguate polymorphic
// operators like "contains"), and a Bind callback that registers a value as
// the next positional parameter and returns its placeholder.
type RenderContext struct {
	Adapter    dialect.Adapter
	ColumnExpr string
	ColumnType string
	Bind       func(value any) string
}

// Operator renders a (path, operator, value) filter leaf into a boolean SQL
// expression.
type Operator struct {
	// Name is the keyword/path suffix, e.g. "gt", "not_in", "startswith".
	Name string
	// Symbol is used when rendering a human-readable filter, e.g. ">".
	Symbol string
	// Unary operators (e.g. is-truthy checks) ignore Render's value arg.
	// The filter parser does not read this flag; a leaf keeps whatever
	// value it was built with.
	Unary bool
	Render func(ctx RenderContext, value any) (string, error)
}

// Function renders a column/path access through a named function, such as
// `.length()` or `.datetime()`, returning the new SQL expression and the
// type the result should be treated as (for decoding and for chaining
// further functions/operators).
type Function struct {
	Name       string
	ResultType string
	Render     func(ctx RenderContext) (string, error)
}

type registry struct {
	mu        sync.RWMutex
	operators map[string]Operator
	functions map[string]Function
}

var global = &registry{
	operators: map[string]Operator{},
	functions: map[string]Function{},
}

// Handle closes (unregisters) a single registration.
type Handle struct {
	close func()
}

// Close removes the registration. Idempotent.
func (h Handle) Close() {
	if h.close != nil {
		h.close()
	}
}

// RegisterOperator adds a named operator to the global registry. It panics
// if the name is already registered; call the returned Handle's Close to
// remove it (tests should always do this to avoid leaking state across
// cases).
func RegisterOperator(op Operator) Handle {
	global.mu.Lock()
	defer global.mu.Unlock()
	if _, exists := global.operators[op.Name]; exists {
		panic(fmt.Sprintf("operator %q already registered", op.Name))
	}
	global.operators[op.Name] = op
	return Handle{close: func() {
		global.mu.Lock()
		defer global.mu.Unlock()
		delete(global.operators, op.Name)
	}}
}

// RegisterFunction adds a named function to the global registry.
func RegisterFunction(fn Function) Handle {
	global.mu.Lock()
	defer global.mu.Unlock()
	if _, exists := global.functions[fn.Name]; exists {
		panic(fmt.Sprintf("function %q already registered", fn.Name))
	}
	global.functions[fn.Name] = fn
	return Handle{close: func() {
		global.mu.Lock()
		defer global.mu.Unlock()
		delete(global.functions, fn.Name)
	}}
}

// LookupOperator returns the operator registered under name.
func LookupOperator(name string) (Operator, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	op, ok := global.operators[name]
	return op, ok
}

// LookupFunction returns the function registered under name.
func LookupFunction(name string) (Function, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	fn, ok := global.functions[name]
	return fn, ok
}

// IsOperator reports whether name is a currently-registered operator; the
// path parser uses this to decide whether a trailing path segment is the
// comparison operator or another function/column segment.
func IsOperator(name string) bool {
	_, ok := LookupOperator(name)
	return ok
}

// IsFunction reports whether name is a currently-registered function.
func IsFunction(name string) bool {
	_, ok := LookupFunction(name)
	return ok
}
