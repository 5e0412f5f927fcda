package collapse

import (
	"errors"
	"fmt"

	"collapse/internal/logging"
)

// DiscourseUpdate mutates context after a token has been committed. It is the
// only mutation point allowed to depend on the selected token.
type DiscourseUpdate func(step int, token string, ctx *Context)

// PersonReferent records a committed Person entity as the most recent male
// or female referent according to its gender.
func PersonReferent(_ int, token string, ctx *Context) {
	ent, ok := ctx.Entities[token]
	if !ok || ent.Type != "Person" {
		return
	}
	switch ent.Gender {
	case "M":
		ctx.Discourse.LastPersonMale = token
	case "F":
		ctx.Discourse.LastPersonFemale = token
	}
}

// StepResult is the outcome of one engine step.
type StepResult struct {
	Token       string              `json:"token"`
	Mode        Mode                `json:"mode"`
	Survivors   SurvivorSet         `json:"survivors"`
	Eliminated  []Elimination       `json:"eliminated"`
	ElimReasons map[string][]string `json:"elim_reasons"`
}

// Engine runs one prune, eliminate, select step at a time.
type Engine struct {
	pruner     *Pruner
	eliminator *Eliminator
	selector   *Selector
	updates    []DiscourseUpdate
}

// NewEngine wires the three operators. With no updates given the engine
// applies PersonReferent.
func NewEngine(p *Pruner, e *Eliminator, s *Selector, updates ...DiscourseUpdate) *Engine {
	if len(updates) == 0 {
		updates = []DiscourseUpdate{PersonReferent}
	}
	return &Engine{pruner: p, eliminator: e, selector: s, updates: updates}
}

// Eliminator returns the engine's ledger writer.
func (e *Engine) Eliminator() *Eliminator {
	return e.eliminator
}

// Step executes the 0-based step index. On a construction error the
// eliminations are still committed to the ledger before the error is
// returned; the selector is never reached.
func (e *Engine) Step(step int, ctx *Context, candidates CandidateSet) (*StepResult, error) {
	survivors, elims, err := e.pruner.Prune(step, ctx, candidates)
	if err != nil {
		var ce *ConstructionError
		if errors.As(err, &ce) {
			e.eliminator.Apply(step, ctx, candidates, survivors, elims)
			logging.Get(logging.CategoryEngine).Error("step %d: %v", step+1, err)
		}
		return nil, err
	}

	e.eliminator.Apply(step, ctx, candidates, survivors, elims)

	tok, mode, err := e.selector.Select(ctx, survivors)
	if err != nil {
		return nil, fmt.Errorf("step %d: select: %w", step+1, err)
	}

	for _, update := range e.updates {
		update(step, tok, ctx)
	}

	logging.EngineDebug("step %d committed %q (%s) from %d survivors", step+1, tok, mode, len(survivors))

	return &StepResult{
		Token:       tok,
		Mode:        mode,
		Survivors:   survivors,
		Eliminated:  elims,
		ElimReasons: ReasonMap(elims),
	}, nil
}
