package mangle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// CheckRuleProgram rejects programs that can never admit anything: a body
// premise over a predicate that is neither declared nor derived, a premise
// with the wrong arity, or no clause deriving admit/2.
//
// Without this, an unknown relation silently evaluates to no facts and the
// kernel degrades to an unconstrained one.
func CheckRuleProgram(p RuleProgram) error {
	unit, err := parse.Unit(strings.NewReader(p.preamble() + p.Source))
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	arities := make(map[string]int)
	for _, decl := range unit.Decls {
		sym := decl.DeclaredAtom.Predicate
		arities[sym.Symbol] = sym.Arity
	}
	derivesAdmit := false
	for _, clause := range unit.Clauses {
		sym := clause.Head.Predicate
		if _, ok := arities[sym.Symbol]; !ok {
			arities[sym.Symbol] = sym.Arity
		}
		if sym.Symbol == AdmitPredicate && sym.Arity == 2 {
			derivesAdmit = true
		}
	}

	var problems []string
	for _, clause := range unit.Clauses {
		for _, premise := range clause.Premises {
			var atom ast.Atom
			switch t := premise.(type) {
			case ast.Atom:
				atom = t
			case ast.NegAtom:
				atom = t.Atom
			default:
				continue
			}
			sym := atom.Predicate
			if isBuiltinPredicate(sym.Symbol) {
				continue
			}
			want, ok := arities[sym.Symbol]
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("undefined predicate %s", sym.Symbol))
			case want != sym.Arity:
				problems = append(problems, fmt.Sprintf("%s used with %d args, declared with %d", sym.Symbol, sym.Arity, want))
			}
		}
	}
	if !derivesAdmit {
		problems = append(problems, fmt.Sprintf("no clause derives %s/2", AdmitPredicate))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s (available: %s)", strings.Join(problems, "; "), strings.Join(availablePredicates(arities), ", "))
}

// isBuiltinPredicate reports whether sym is a Mangle builtin such as :lt.
func isBuiltinPredicate(sym string) bool {
	return strings.HasPrefix(sym, ":")
}

func availablePredicates(arities map[string]int) []string {
	out := make([]string, 0, len(arities))
	for name, n := range arities {
		out = append(out, fmt.Sprintf("%s/%d", name, n))
	}
	sort.Strings(out)
	return out
}
