package collapse

import (
	"collapse/internal/logging"
)

// LedgerEntry records why a token was eliminated at a step.
type LedgerEntry struct {
	Step    int      `json:"step"` // 1-based
	Token   string   `json:"eliminated_token"`
	Reasons []string `json:"reasons"`
}

// Bookkeeping mutates context keyed on the 0-based step index only. It runs
// after elimination and before selection, so it can never observe the
// committed token.
type Bookkeeping func(step int, ctx *Context)

// AdvancePlanAfter returns bookkeeping that moves the plan cursor to planStep
// once the given step index has been eliminated.
func AdvancePlanAfter(step, planStep int) Bookkeeping {
	return func(s int, ctx *Context) {
		if s == step {
			ctx.Cursor.PlanStep = planStep
		}
	}
}

type ledgerKey struct {
	step  int
	token string
}

// Eliminator is the append-only, nilpotent ledger writer (Φ).
type Eliminator struct {
	ledger      []LedgerEntry
	seen        map[ledgerKey]struct{}
	processed   map[int]struct{}
	bookkeeping []Bookkeeping
	audit       *logging.AuditLogger
}

// NewEliminator creates an eliminator with optional bookkeeping hooks. Its
// audit events carry no run ID until SetAudit scopes them.
func NewEliminator(hooks ...Bookkeeping) *Eliminator {
	return &Eliminator{
		seen:        make(map[ledgerKey]struct{}),
		processed:   make(map[int]struct{}),
		bookkeeping: hooks,
		audit:       logging.AuditWithRun(""),
	}
}

// SetAudit scopes audit events to a run.
func (e *Eliminator) SetAudit(a *logging.AuditLogger) {
	e.audit = a
}

// Apply records one ledger row per unique candidate absent from survivors
// and runs bookkeeping for the step. Re-applying an already processed step
// appends no duplicate rows and does not re-run bookkeeping. It returns the
// number of rows appended.
func (e *Eliminator) Apply(step int, ctx *Context, candidates CandidateSet, survivors SurvivorSet, elims []Elimination) int {
	reasons := ReasonMap(elims)
	appended := 0

	for _, tok := range candidates.Unique() {
		if survivors.Contains(tok) {
			continue
		}
		key := ledgerKey{step: step + 1, token: tok}
		if _, dup := e.seen[key]; dup {
			continue
		}
		e.seen[key] = struct{}{}

		row := LedgerEntry{
			Step:    step + 1,
			Token:   tok,
			Reasons: append([]string(nil), reasons[tok]...),
		}
		e.ledger = append(e.ledger, row)
		e.audit.TokenEliminated(row.Step, row.Token, row.Reasons)
		appended++
	}

	if _, done := e.processed[step]; done {
		logging.EliminateDebug("step %d already processed; %d rows appended on re-apply", step+1, appended)
		return appended
	}
	e.processed[step] = struct{}{}

	for _, hook := range e.bookkeeping {
		hook(step, ctx)
	}

	logging.Eliminate("step %d: %d ledger rows", step+1, appended)
	return appended
}

// Ledger returns a copy of the ledger rows in append order.
func (e *Eliminator) Ledger() []LedgerEntry {
	out := make([]LedgerEntry, len(e.ledger))
	copy(out, e.ledger)
	return out
}

// Len returns the number of ledger rows.
func (e *Eliminator) Len() int {
	return len(e.ledger)
}
