package scenarios

import (
	"fmt"

	"collapse/internal/collapse"
)

// Requirement pins the token a step must commit.
type Requirement struct {
	Token string `yaml:"token"`
	Tag   string `yaml:"tag"`
}

func toSet(tokens []string) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// CategoryKernel admits a token when it belongs to the category expected at
// the step. The reason tag is "grammar:<category>". Steps without an expected
// category admit anything with "grammar:any".
func CategoryKernel(name string, expect map[int]string, sets map[string][]string) collapse.Kernel {
	members := make(map[string]map[string]bool, len(sets))
	for cat, toks := range sets {
		members[cat] = toSet(toks)
	}
	return collapse.NewKernel(name, func(step int, tok string, _ *collapse.Context) (bool, string) {
		cat, ok := expect[step]
		if !ok {
			return true, "grammar:any"
		}
		return members[cat][tok], "grammar:" + cat
	})
}

// StepKernel is a CategoryKernel whose categories are named after the step
// index ("step0", "step1", ...).
func StepKernel(name string, perStep [][]string) collapse.Kernel {
	expect := make(map[int]string, len(perStep))
	sets := make(map[string][]string, len(perStep))
	for i, toks := range perStep {
		cat := fmt.Sprintf("step%d", i)
		expect[i] = cat
		sets[cat] = toks
	}
	return CategoryKernel(name, expect, sets)
}

// RequireKernel demands an exact token at the listed steps. Other steps
// admit anything with anyTag.
func RequireKernel(name string, reqs map[int]Requirement, anyTag string) collapse.Kernel {
	return collapse.NewKernel(name, func(step int, tok string, _ *collapse.Context) (bool, string) {
		req, ok := reqs[step]
		if !ok {
			return true, anyTag
		}
		return tok == req.Token, req.Tag
	})
}

// TenseRule rejects tokens that contradict the discourse tense.
type TenseRule struct {
	When   collapse.Tense
	Tokens []string
	Tag    string // reported on rejection
	OKTag  string // reported when the tense matches and the token is fine
	// NATag, when set, is reported while the discourse tense differs from
	// When. Otherwise OKTag is used.
	NATag string
}

// ForbidKernel applies a TenseRule against ctx.Discourse.Time.
func ForbidKernel(name string, rule TenseRule) collapse.Kernel {
	forbidden := toSet(rule.Tokens)
	return collapse.NewKernel(name, func(_ int, tok string, ctx *collapse.Context) (bool, string) {
		if ctx.Discourse.Time != rule.When {
			if rule.NATag != "" {
				return true, rule.NATag
			}
			return true, rule.OKTag
		}
		if forbidden[tok] {
			return false, rule.Tag
		}
		return true, rule.OKTag
	}, collapse.FieldDiscourse)
}

// FactKernel admits a token at the listed steps only when its relation
// lookup resolves to the context focus.
func FactKernel(name, relation string, steps []int, tag, anyTag string) collapse.Kernel {
	constrained := make(map[int]bool, len(steps))
	for _, s := range steps {
		constrained[s] = true
	}
	return collapse.NewKernel(name, func(step int, tok string, ctx *collapse.Context) (bool, string) {
		if !constrained[step] {
			return true, anyTag
		}
		if ctx.Facts == nil {
			return false, tag
		}
		v, ok := ctx.Facts.Lookup(relation, tok)
		return ok && v == ctx.Focus, tag
	}, collapse.FieldFacts, collapse.FieldFocus)
}
