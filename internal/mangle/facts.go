package mangle

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"collapse/internal/logging"
)

// FactTable serves binary relations held in an Engine as a
// collapse.FactTable: Lookup(relation, key) returns the second argument of
// the first relation(key, value) fact.
type FactTable struct {
	engine *Engine
}

// NewFactTable declares each relation as a string-bound binary predicate and
// loads its rows. Relations are loaded in name order and rows in key order.
func NewFactTable(cfg Config, relations map[string]map[string]string) (*FactTable, error) {
	engine := NewEngine(cfg)

	names := sortedNames(relations)
	if len(names) == 0 {
		return &FactTable{engine: engine}, nil
	}
	if err := engine.LoadSchemaString(lookupDecls(names...)); err != nil {
		return nil, err
	}

	var facts []Fact
	for _, rel := range names {
		rows := relations[rel]
		for _, key := range sortedKeys(rows) {
			facts = append(facts, Fact{Predicate: rel, Args: []interface{}{key, rows[key]}})
		}
	}
	if err := engine.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("load fact table: %w", err)
	}
	logging.FactsDebug("fact table loaded: %d relations, %d rows", len(names), len(facts))
	return &FactTable{engine: engine}, nil
}

// RelationDecls renders string-bound declarations for binary relations.
func RelationDecls(relations ...string) string {
	var sb strings.Builder
	for _, rel := range relations {
		fmt.Fprintf(&sb, "Decl %s(Key, Value) bound [/string, /string].\n", rel)
	}
	return sb.String()
}

// lookupDecls is RelationDecls with the key as query input, which is how
// Lookup reads the table.
func lookupDecls(relations ...string) string {
	var sb strings.Builder
	for _, rel := range relations {
		fmt.Fprintf(&sb, "Decl %s(Key, Value) descr [mode(\"+\", \"-\")] bound [/string, /string].\n", rel)
	}
	return sb.String()
}

// Lookup implements collapse.FactTable. It runs relation("key", Value) as a
// query, so the engine's query timeout bounds every lookup.
func (t *FactTable) Lookup(relation, key string) (string, bool) {
	if !isIdentifier(relation) {
		return "", false
	}
	query := fmt.Sprintf("%s(%s, Value)", relation, strconv.Quote(key))
	res, err := t.engine.Query(context.Background(), query)
	if err != nil {
		logging.FactsDebug("lookup %s failed: %v", query, err)
		return "", false
	}
	if len(res.Bindings) == 0 {
		return "", false
	}
	v, ok := res.Bindings[0]["Value"].(string)
	return v, ok
}

func sortedNames(m map[string]map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
