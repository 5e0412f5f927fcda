package mangle

import (
	"fmt"
	"strings"

	"collapse/internal/collapse"
	"collapse/internal/logging"
)

// AdmitPredicate is the predicate a rule program derives. admit(N, Token)
// admits Token at 1-based step N.
const AdmitPredicate = "admit"

// RuleProgram is the input to a rule kernel.
type RuleProgram struct {
	Name string
	// Tag is the reason tag reported for constrained steps. Unconstrained
	// steps report "<category>:any".
	Tag string
	// Source holds Mangle clauses deriving admit/2. It may read focus/1 and
	// every relation in Relations; those are declared for it.
	Source    string
	Relations map[string]map[string]string
	Focus     string
}

func (p RuleProgram) preamble() string {
	var sb strings.Builder
	sb.WriteString(RelationDecls(sortedNames(p.Relations)...))
	sb.WriteString("Decl focus(Value) bound [/string].\n")
	fmt.Fprintf(&sb, "Decl %s(Step, Token) bound [/number, /string].\n", AdmitPredicate)
	return sb.String()
}

// NewRuleKernel evaluates the program once and returns a kernel that looks
// up the derived admit facts. A step with no admit facts is unconstrained.
// The evaluation happens here, so the kernel itself is a pure lookup.
func NewRuleKernel(cfg Config, p RuleProgram) (collapse.Kernel, error) {
	if err := CheckRuleProgram(p); err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}
	engine := NewEngine(cfg)
	if err := engine.LoadSchemaString(p.preamble()); err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}
	if err := engine.LoadSchemaString(p.Source); err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}

	var facts []Fact
	if p.Focus != "" {
		facts = append(facts, Fact{Predicate: "focus", Args: []interface{}{p.Focus}})
	}
	for _, rel := range sortedNames(p.Relations) {
		rows := p.Relations[rel]
		for _, key := range sortedKeys(rows) {
			facts = append(facts, Fact{Predicate: rel, Args: []interface{}{key, rows[key]}})
		}
	}
	if err := engine.AddFacts(facts); err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}
	if err := engine.RecomputeRules(); err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}

	admitted, err := admitTable(engine)
	if err != nil {
		return collapse.Kernel{}, fmt.Errorf("rule kernel %s: %w", p.Name, err)
	}
	logging.FactsDebug("rule kernel %s: admit facts for %d steps", p.Name, len(admitted))

	anyTag := collapse.ReasonCategory(p.Tag) + ":any"
	check := func(step int, token string, _ *collapse.Context) (bool, string) {
		allowed, constrained := admitted[step+1]
		if !constrained {
			return true, anyTag
		}
		return allowed[token], p.Tag
	}
	return collapse.NewKernel(p.Name, check), nil
}

func admitTable(engine *Engine) (map[int]map[string]bool, error) {
	facts, err := engine.GetFacts(AdmitPredicate)
	if err != nil {
		return nil, err
	}
	out := make(map[int]map[string]bool)
	for _, f := range facts {
		if len(f.Args) != 2 {
			continue
		}
		n, ok := f.Args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("admit step %v is not a number", f.Args[0])
		}
		tok, ok := f.Args[1].(string)
		if !ok {
			return nil, fmt.Errorf("admit token %v is not a string", f.Args[1])
		}
		if out[int(n)] == nil {
			out[int(n)] = make(map[string]bool)
		}
		out[int(n)][tok] = true
	}
	return out, nil
}
