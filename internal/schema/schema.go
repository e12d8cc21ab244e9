// Package schema is the table/column/relation registry: AddTable validates
// and stores a table's column definitions (backed by go-playground/validator
// for struct-level checks), RelationsOf lazily resolves and validates a
// table's foreign-key/backref/m2m columns plus inferred back-references,
// and CreateTables/DropTables emit the DDL for a given dialect.
package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/pathexpr"
	"github.com/tunqi-go/tunqi/internal/pluralize"
)

// ColumnType is one of the column kinds a table descriptor can declare.
type ColumnType string

const (
	Boolean      ColumnType = "boolean"
	Integer      ColumnType = "integer"
	Double       ColumnType = "double"
	String       ColumnType = "string"
	StringLength ColumnType = "string:length"
	DateTime     ColumnType = "datetime"
	Binary       ColumnType = "binary"
	JSON         ColumnType = "json"
	FK           ColumnType = "fk"
	Backref      ColumnType = "backref"
	M2M          ColumnType = "m2m"
)

var relationKindWord = map[ColumnType]string{
	FK:      "foreign key",
	Backref: "backref",
	M2M:     "many-to-many",
}

// ColumnSpec is the input shape for declaring a single column, the Go
// equivalent of the original's `{"type": "...", "nullable": true, ...}`
// dict entries.
type ColumnSpec struct {
	Name     string `validate:"required"`
	Type     string `validate:"required"`
	Nullable bool
	Unique   bool
	Length   int
	Index    bool
	Table    string
}

// TableSpec is the input shape for AddTable. Columns is an ordered list
// (not a map) because column declaration order is observable: it's the
// default order selected columns come back in and the order relations are
// listed in.
type TableSpec struct {
	Plural  string
	Columns []ColumnSpec `validate:"required,dive"`
	Unique  [][]string
}

type column struct {
	ColumnSpec
	Type ColumnType
}

type table struct {
	Name         string
	Plural       string
	ColumnOrder  []string
	Columns      map[string]*column
	UniqueGroups [][]string
}

// Relation describes one entry in a table's relation list: an explicit
// fk/backref/m2m column, or an inferred backref to a table that holds an fk
// pointing here with no explicit reverse declaration.
type Relation struct {
	Name     string
	Kind     ColumnType
	Table    string
	Inferred bool
}

// Registry is the process's table/column/relation store. Zero value is not
// usable; use New.
type Registry struct {
	mu        sync.RWMutex
	validate  *validator.Validate
	tables    map[string]*table
	order     []string
}

// New returns an empty Registry with the implicit "pk" integer primary key
// every table gets automatically.
func New() *Registry {
	return &Registry{
		validate: validator.New(),
		tables:   map[string]*table{},
	}
}

// AddTable registers name with spec, prepending the implicit "pk" primary
// key column. Returns a ValueError-shaped error if name is already taken or
// spec fails validation.
func (r *Registry) AddTable(name string, spec TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[name]; exists {
		return fmt.Errorf("table '%s' already exists", name)
	}
	if err := r.validate.Struct(spec); err != nil {
		return fmt.Errorf("invalid table '%s': %w", name, err)
	}

	t := &table{
		Name:    name,
		Plural:  spec.Plural,
		Columns: map[string]*column{},
	}
	if t.Plural == "" {
		t.Plural = pluralize.Of(name)
	}

	t.ColumnOrder = append(t.ColumnOrder, "pk")
	t.Columns["pk"] = &column{Type: Integer}

	for _, cs := range spec.Columns {
		colName := cs.Name
		ct := ColumnType(cs.Type)
		if err := validateColumnSpec(name, colName, ct, cs); err != nil {
			return err
		}
		t.ColumnOrder = append(t.ColumnOrder, colName)
		t.Columns[colName] = &column{ColumnSpec: cs, Type: ct}
	}
	t.UniqueGroups = spec.Unique

	r.tables[name] = t
	r.order = append(r.order, name)
	return nil
}

func validateColumnSpec(table, name string, ct ColumnType, cs ColumnSpec) error {
	switch ct {
	case Boolean, Integer, Double, String, DateTime, Binary, JSON:
		return nil
	case StringLength:
		if cs.Length <= 0 {
			return fmt.Errorf("invalid column '%s.%s': string:length requires a positive length", table, name)
		}
		return nil
	case FK, Backref, M2M:
		if cs.Table == "" {
			return fmt.Errorf("invalid column '%s.%s': %s requires a referenced table", table, name, ct)
		}
		return nil
	default:
		return fmt.Errorf("invalid column '%s.%s': unknown column type '%s'", table, name, cs.Type)
	}
}

// RemoveTable drops name from the registry.
func (r *Registry) RemoveTable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getLocked(name); err != nil {
		return err
	}
	delete(r.tables, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) getLocked(name string) (*table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("table '%s' doesn't exist (available tables are %s)", name, pluralize.And(r.order))
	}
	return t, nil
}

// HasTable reports whether name is registered.
func (r *Registry) HasTable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[name]
	return ok
}

// AvailableTables lists every registered table name, in registration order.
func (r *Registry) AvailableTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ColumnType returns col's declared type on table, and whether it exists.
func (r *Registry) ColumnType(table, col string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[table]
	if !ok {
		return "", false
	}
	c, ok := t.Columns[col]
	if !ok {
		return "", false
	}
	return string(c.Type), true
}

// Columns lists table's own physical column names, in declaration order
// (pk first). Backref/M2M entries are relations, not physical columns —
// RelationsOf lists those — so they're excluded here even though they
// share the same declaration list internally.
func (r *Registry) Columns(table string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[table]
	if !ok {
		return nil
	}
	var out []string
	for _, name := range t.ColumnOrder {
		c := t.Columns[name]
		if c.Type == Backref || c.Type == M2M {
			continue
		}
		out = append(out, name)
	}
	return out
}

// UniqueConstraints lists every uniqueness constraint on table for the
// insert executor's conflict-violation message building: each single
// `unique: true` column as its own one-column group, followed by the
// declared multi-column unique groups, both in declaration order.
func (r *Registry) UniqueConstraints(table string) [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[table]
	if !ok {
		return nil
	}
	var out [][]string
	for _, name := range t.ColumnOrder {
		if t.Columns[name].Unique {
			out = append(out, []string{name})
		}
	}
	out = append(out, t.UniqueGroups...)
	return out
}

// RelationsOf returns table's relations: its own fk/backref/m2m columns, in
// declaration order, plus an inferred backref (the source table's plural)
// for every other table with an fk column pointing here that isn't already
// covered by one of table's own backref/m2m columns.
func (r *Registry) RelationsOf(name string) ([]Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsOfLocked(name)
}

func (r *Registry) relationsOfLocked(name string) ([]Relation, error) {
	t, err := r.getLocked(name)
	if err != nil {
		return nil, err
	}

	var rels []Relation
	explicitlyCovers := map[string]bool{}
	for _, colName := range t.ColumnOrder {
		c := t.Columns[colName]
		kind, ok := relationKindWord[c.Type]
		if !ok {
			continue
		}
		if _, exists := r.tables[c.Table]; !exists {
			return nil, fmt.Errorf(
				"table '%s' referenced by %s '%s.%s' doesn't exist (available tables are %s)",
				c.Table, kind, name, colName, pluralize.And(r.order),
			)
		}
		rels = append(rels, Relation{Name: colName, Kind: c.Type, Table: c.Table})
		if c.Type != FK {
			explicitlyCovers[c.Table] = true
		}
	}

	for _, otherName := range r.order {
		if otherName == name {
			continue
		}
		other := r.tables[otherName]
		for _, colName := range other.ColumnOrder {
			c := other.Columns[colName]
			if c.Type == FK && c.Table == name && !explicitlyCovers[otherName] {
				rels = append(rels, Relation{
					Name: other.Plural, Kind: Backref, Table: otherName, Inferred: true,
				})
				explicitlyCovers[otherName] = true
			}
		}
	}
	return rels, nil
}

// Edge is the physical join description for one relation hop, everything
// the query compiler needs to write the ON clause without re-deriving fk
// column names or link-table naming itself.
type Edge struct {
	Name      string
	Kind      ColumnType
	FromTable string
	ToTable   string
	// FKColumn is the physical foreign-key column name; FKOnFrom reports
	// whether it lives on FromTable (a forward fk) or on ToTable (a
	// backref, explicit or inferred). Unset for M2M, which joins through
	// LinkTable instead.
	FKColumn string
	FKOnFrom bool
	// LinkTable/LinkFromCol/LinkToCol are set only for Kind == M2M.
	LinkTable   string
	LinkFromCol string
	LinkToCol   string
}

// DependentFK describes one other table's foreign-key column that points at
// a given table, the unit the delete executor walks to cascade or null out
// dependents.
type DependentFK struct {
	Table    string
	Column   string
	Nullable bool
}

// DependentFKs lists every fk column, on any other table, that targets
// table — the one-level fan-out the delete executor's cascade walk repeats
// per dependent table.
func (r *Registry) DependentFKs(table string) []DependentFK {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []DependentFK
	for _, otherName := range r.order {
		if otherName == table {
			continue
		}
		t := r.tables[otherName]
		for _, colName := range t.ColumnOrder {
			c := t.Columns[colName]
			if c.Type == FK && c.Table == table {
				out = append(out, DependentFK{Table: otherName, Column: colName, Nullable: c.Nullable})
			}
		}
	}
	return out
}

// Edge resolves table's relation name to its physical join description.
func (r *Registry) Edge(table, name string) (Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rels, err := r.relationsOfLocked(table)
	if err != nil {
		return Edge{}, err
	}
	var rel *Relation
	for i := range rels {
		if rels[i].Name == name {
			rel = &rels[i]
			break
		}
	}
	if rel == nil {
		return Edge{}, fmt.Errorf("table '%s' has no relation '%s'", table, name)
	}

	switch rel.Kind {
	case FK:
		return Edge{Name: name, Kind: FK, FromTable: table, ToTable: rel.Table, FKColumn: name, FKOnFrom: true}, nil
	case Backref:
		col, err := r.foreignKeyColumnLocked(rel.Table, table)
		if err != nil {
			return Edge{}, err
		}
		return Edge{Name: name, Kind: Backref, FromTable: table, ToTable: rel.Table, FKColumn: col, FKOnFrom: false}, nil
	case M2M:
		linkTable, fromCol, toCol := linkTableColumns(table, rel.Table)
		return Edge{Name: name, Kind: M2M, FromTable: table, ToTable: rel.Table, LinkTable: linkTable, LinkFromCol: fromCol, LinkToCol: toCol}, nil
	default:
		return Edge{}, fmt.Errorf("relation '%s.%s' has unknown kind %q", table, name, rel.Kind)
	}
}

// foreignKeyColumnLocked finds the fk column on owner that points at target,
// assuming the registry lock is already held.
func (r *Registry) foreignKeyColumnLocked(owner, target string) (string, error) {
	t, ok := r.tables[owner]
	if !ok {
		return "", fmt.Errorf("table '%s' doesn't exist", owner)
	}
	for _, colName := range t.ColumnOrder {
		c := t.Columns[colName]
		if c.Type == FK && c.Table == target {
			return colName, nil
		}
	}
	return "", fmt.Errorf("table '%s' has no foreign key to table '%s'", owner, target)
}

// linkTableColumns names the implicit m2m link table and its two fk
// columns. Canonicalized (tables sorted) so a pair of complementary m2m
// columns declared on both sides of a relation share one physical table.
func linkTableColumns(table, related string) (name, fromCol, toCol string) {
	a, b := table, related
	if b < a {
		a, b = b, a
	}
	return a + "_" + b + "_link", table + "_pk", related + "_pk"
}

// Resolver adapts Registry to pathexpr.Resolver.
func (r *Registry) Resolver() pathexpr.Resolver { return resolver{r} }

type resolver struct{ r *Registry }

func (x resolver) Relation(table, name string) (string, bool) {
	rels, err := x.r.RelationsOf(table)
	if err != nil {
		return "", false
	}
	for _, rel := range rels {
		if rel.Name == name {
			return rel.Table, true
		}
	}
	return "", false
}

func (x resolver) Column(table, name string) (string, bool) {
	return x.r.ColumnType(table, name)
}

func (x resolver) AvailableSelectors(table string) []string {
	cols := x.r.Columns(table)
	rels, _ := x.r.RelationsOf(table)
	out := append([]string(nil), cols...)
	for _, rel := range rels {
		out = append(out, rel.Name)
	}
	return out
}

func (x resolver) AvailableColumns(table string) []string {
	return x.r.Columns(table)
}

// selectOrder returns r.order filtered down to names, preserving
// registration order; an empty names selects every registered table. It
// must be called with r.mu already held.
func (r *Registry) selectOrder(names []string) []string {
	if len(names) == 0 {
		return r.order
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []string
	for _, n := range r.order {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

// CreateTables emits CREATE TABLE IF NOT EXISTS (and m2m link-table) DDL
// for the named tables (every registered table, in registration order, if
// names is empty), validating dialect-specific constraints (e.g. MySQL's
// unique-string-length requirement) first. Safe to call more than once for
// the same table.
func (r *Registry) CreateTables(ctx context.Context, db *sqlx.DB, adapter dialect.Adapter, names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := r.selectOrder(names)

	for _, name := range order {
		t := r.tables[name]
		for colName, c := range t.Columns {
			if c.Type == String && c.Unique && adapter.UniqueStringRequiresLength() {
				return fmt.Errorf("invalid column '%s.%s': MySQL requires unique string columns to have length", name, colName)
			}
		}
	}

	seenLinkTables := map[string]bool{}
	for _, name := range order {
		t := r.tables[name]
		stmt, err := createTableSQL(adapter, t)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %q: %w", name, err)
		}
		for colName, c := range t.Columns {
			if c.Type != M2M {
				continue
			}
			linkName, linkStmt := m2mLinkTableSQL(adapter, name, colName, c.Table)
			if seenLinkTables[linkName] {
				continue
			}
			seenLinkTables[linkName] = true
			if _, err := db.ExecContext(ctx, linkStmt); err != nil {
				return fmt.Errorf("creating link table %q: %w", linkName, err)
			}
		}
	}
	return nil
}

// DropTables drops the named tables (every registered table, if names is
// empty, and their m2m link tables) in reverse registration order, so a
// later table's fk doesn't outlive the table it depends on.
func (r *Registry) DropTables(ctx context.Context, db *sqlx.DB, adapter dialect.Adapter, names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := r.selectOrder(names)

	seenLinkTables := map[string]bool{}
	for i := len(order) - 1; i >= 0; i-- {
		t := r.tables[order[i]]
		for colName, c := range t.Columns {
			if c.Type != M2M {
				continue
			}
			linkName, _ := m2mLinkTableSQL(adapter, t.Name, colName, c.Table)
			if seenLinkTables[linkName] {
				continue
			}
			seenLinkTables[linkName] = true
			stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", adapter.QuoteIdent(linkName))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("dropping link table %q: %w", linkName, err)
			}
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", adapter.QuoteIdent(name))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping table %q: %w", name, err)
		}
	}
	return nil
}
