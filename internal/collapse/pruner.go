package collapse

import (
	"collapse/internal/logging"
)

// CandidateSet is the ordered token list proposed at one step.
type CandidateSet []string

// SurvivorSet is the candidates that passed every kernel, unique and in
// first-occurrence order.
type SurvivorSet []string

// Contains reports whether tok is a survivor.
func (s SurvivorSet) Contains(tok string) bool {
	for _, v := range s {
		if v == tok {
			return true
		}
	}
	return false
}

// Elimination is a rejected token and the tags of every kernel that
// rejected it, in kernel order.
type Elimination struct {
	Token   string   `json:"token"`
	Reasons []string `json:"reasons"`
}

// Unique returns the distinct tokens of c in first-occurrence order.
func (c CandidateSet) Unique() []string {
	seen := make(map[string]struct{}, len(c))
	out := make([]string, 0, len(c))
	for _, tok := range c {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Pruner applies the kernel conjunction (T).
type Pruner struct {
	kernels KernelSet
}

// NewPruner creates a pruner over kernels.
func NewPruner(kernels KernelSet) *Pruner {
	return &Pruner{kernels: kernels}
}

// Kernels returns the pruner's kernel set.
func (p *Pruner) Kernels() KernelSet {
	return p.kernels
}

// Prune classifies every candidate at the 0-based step index. All kernels run
// for every token; failures accumulate rather than short-circuit, so each
// elimination carries the complete set of violated rules.
//
// Every unique candidate ends up either in the survivor set or in the
// eliminations. An empty survivor set yields a *ConstructionError alongside
// the eliminations.
func (p *Pruner) Prune(step int, ctx *Context, candidates CandidateSet) (SurvivorSet, []Elimination, error) {
	if len(candidates) == 0 {
		return nil, nil, ErrNoCandidates
	}

	survivors := make(SurvivorSet, 0, len(candidates))
	var eliminated []Elimination

	for _, tok := range candidates.Unique() {
		var failed []string
		for _, k := range p.kernels {
			ok, tag := k.Check(step, tok, ctx)
			if !ok {
				failed = append(failed, tag)
			}
		}
		if len(failed) == 0 {
			survivors = append(survivors, tok)
			continue
		}
		eliminated = append(eliminated, Elimination{Token: tok, Reasons: failed})
	}

	logging.PruneDebug("step %d: %d candidates -> %d survivors, %d eliminated",
		step+1, len(candidates), len(survivors), len(eliminated))

	if len(survivors) == 0 {
		return survivors, eliminated, &ConstructionError{
			Step:         step + 1,
			Candidates:   append([]string(nil), candidates...),
			Eliminations: eliminated,
		}
	}
	return survivors, eliminated, nil
}

// ReasonMap flattens eliminations into token -> reasons.
func ReasonMap(elims []Elimination) map[string][]string {
	out := make(map[string][]string, len(elims))
	for _, e := range elims {
		out[e.Token] = e.Reasons
	}
	return out
}
