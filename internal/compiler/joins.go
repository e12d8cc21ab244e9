package compiler

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/schema"
)

// joinPlanner accumulates the distinct relation paths a compilation touches
// and assigns each one a stable alias, building the join's ON clause from
// the schema's Edge description the first time that path is seen. A path
// reached through both a filter and a selector/order key keeps whichever
// join kind the filter required (INNER), since a filter needs the match to
// exist; reached only through selectors/order it stays LEFT, since those
// must not silently drop rows with no related record.
type joinPlanner struct {
	reg     *schema.Registry
	table   string
	adapter dialect.Adapter

	order         []string
	aliasOf       map[string]string
	schemaTableOf map[string]string
	edgeOf        map[string]schema.Edge
	parentAliasOf map[string]string
	inner         map[string]bool
}

func newJoinPlanner(reg *schema.Registry, table string, adapter dialect.Adapter) *joinPlanner {
	return &joinPlanner{
		reg:           reg,
		table:         table,
		adapter:       adapter,
		aliasOf:       map[string]string{},
		schemaTableOf: map[string]string{},
		edgeOf:        map[string]schema.Edge{},
		parentAliasOf: map[string]string{},
		inner:         map[string]bool{},
	}
}

// require registers (if new) every prefix of relations and returns the
// alias for the full chain, or the root table name when relations is
// empty. inner, when true, upgrades every prefix along the way to an
// INNER join.
func (jp *joinPlanner) require(relations []string, inner bool) (string, error) {
	if len(relations) == 0 {
		return jp.table, nil
	}

	key := ""
	parentAlias := jp.table
	parentTable := jp.table
	for _, name := range relations {
		if key == "" {
			key = name
		} else {
			key = key + "." + name
		}
		if inner {
			jp.inner[key] = true
		}
		if alias, exists := jp.aliasOf[key]; exists {
			parentAlias = alias
			parentTable = jp.schemaTableOf[key]
			continue
		}
		edge, err := jp.reg.Edge(parentTable, name)
		if err != nil {
			return "", err
		}
		alias := strings.ReplaceAll(key, ".", "_")
		jp.aliasOf[key] = alias
		jp.schemaTableOf[key] = edge.ToTable
		jp.edgeOf[key] = edge
		jp.parentAliasOf[key] = parentAlias
		jp.order = append(jp.order, key)
		parentAlias = alias
		parentTable = edge.ToTable
	}
	return parentAlias, nil
}

// anyJoins reports whether any relation path has been registered.
func (jp *joinPlanner) anyJoins() bool { return len(jp.order) > 0 }

// anyToMany reports whether any registered join can multiply the root
// table's rows (a backref or m2m edge — a forward fk join is always
// one-to-one/zero from the child's perspective).
func (jp *joinPlanner) anyToMany() bool {
	for _, key := range jp.order {
		switch jp.edgeOf[key].Kind {
		case schema.Backref, schema.M2M:
			return true
		}
	}
	return false
}

// clauses renders every registered join, in first-use order, quoting
// identifiers for jp.adapter.
func (jp *joinPlanner) clauses() []string {
	q := jp.adapter.QuoteIdent
	var out []string
	for _, key := range jp.order {
		edge := jp.edgeOf[key]
		alias := jp.aliasOf[key]
		parent := jp.parentAliasOf[key]
		kind := "LEFT"
		if jp.inner[key] {
			kind = "INNER"
		}
		switch edge.Kind {
		case schema.FK:
			out = append(out, fmt.Sprintf(
				"%s JOIN %s AS %s ON %s.%s = %s.%s",
				kind, q(edge.ToTable), q(alias), q(alias), q("pk"), q(parent), q(edge.FKColumn),
			))
		case schema.Backref:
			out = append(out, fmt.Sprintf(
				"%s JOIN %s AS %s ON %s.%s = %s.%s",
				kind, q(edge.ToTable), q(alias), q(alias), q(edge.FKColumn), q(parent), q("pk"),
			))
		case schema.M2M:
			linkAlias := alias + "_link"
			out = append(out,
				fmt.Sprintf(
					"%s JOIN %s AS %s ON %s.%s = %s.%s",
					kind, q(edge.LinkTable), q(linkAlias), q(linkAlias), q(edge.LinkFromCol), q(parent), q("pk"),
				),
				fmt.Sprintf(
					"%s JOIN %s AS %s ON %s.%s = %s.%s",
					kind, q(edge.ToTable), q(alias), q(alias), q("pk"), q(linkAlias), q(edge.LinkToCol),
				),
			)
		}
	}
	return out
}
