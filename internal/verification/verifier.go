// Package verification checks the global invariants of a finished collapse run.
// Violations are values: the verifier never stops at the first failure and
// never returns an error, the caller decides what a failure means.
package verification

import (
	"fmt"
	"sort"
	"strings"

	"collapse/internal/collapse"
	"collapse/internal/logging"
)

// ViolationKind classifies an invariant violation.
type ViolationKind string

const (
	NonZeroResidual  ViolationKind = "nonzero_residual"  // residual uncertainty left after selection
	EmptySurvivors   ViolationKind = "empty_survivors"   // a step committed from nothing
	IncompleteLedger ViolationKind = "incomplete_ledger" // survivors ∪ eliminated != candidates
	DuplicateLedger  ViolationKind = "duplicate_ledger"  // same (step, token) logged twice
	MissingTraceRow  ViolationKind = "missing_trace_row" // candidate list with no trace row
)

// Violation is one failed check.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Step    int           `json:"step"`
	Message string        `json:"message"`
}

// Result is the verification outcome.
type Result struct {
	OK         bool        `json:"ok"`
	Errors     []string    `json:"errors"`
	Violations []Violation `json:"violations,omitempty"`
}

type collector struct {
	violations []Violation
}

func (c *collector) add(kind ViolationKind, step int, format string, args ...interface{}) {
	c.violations = append(c.violations, Violation{Kind: kind, Step: step, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) result() Result {
	r := Result{OK: len(c.violations) == 0, Errors: []string{}, Violations: c.violations}
	for _, v := range c.violations {
		r.Errors = append(r.Errors, v.Message)
	}
	return r
}

// Verify checks a (trace, ledger, candidates) triple. Checks run in order:
// zero residual, non-empty survivors, ledger completeness, no duplicate
// ledger rows. Trace and ledger steps are 1-based; candidates[i] belongs to
// step i+1.
func Verify(trace []collapse.TraceRow, ledger []collapse.LedgerEntry, candidates [][]string) Result {
	var c collector

	for _, row := range trace {
		if row.Residual != 0 {
			c.add(NonZeroResidual, row.Step, "Nonzero residual at step %d: %g", row.Step, row.Residual)
		}
	}

	for _, row := range trace {
		if len(row.Survivors) == 0 {
			c.add(EmptySurvivors, row.Step, "Empty survivors at step %d", row.Step)
		}
	}

	rows := make(map[int]collapse.TraceRow, len(trace))
	for _, row := range trace {
		rows[row.Step] = row
	}
	eliminated := make(map[int]map[string]bool)
	for _, e := range ledger {
		if eliminated[e.Step] == nil {
			eliminated[e.Step] = make(map[string]bool)
		}
		eliminated[e.Step][e.Token] = true
	}
	for i, cands := range candidates {
		step := i + 1
		row, ok := rows[step]
		if !ok {
			c.add(MissingTraceRow, step, "Trace missing for step %d", step)
			continue
		}
		want := toSet(cands)
		got := toSet(row.Survivors)
		for tok := range eliminated[step] {
			got[tok] = true
		}
		if !sameSet(want, got) {
			c.add(IncompleteLedger, step, "Phi completeness failed at step %d: Candidates=%v vs Survivors∪Eliminated=%v",
				step, sortedKeys(want), sortedKeys(got))
		}
	}

	seen := make(map[string]bool, len(ledger))
	for _, e := range ledger {
		key := fmt.Sprintf("%d\x00%s", e.Step, e.Token)
		if seen[key] {
			c.add(DuplicateLedger, e.Step, "Duplicate ledger row at (step, token): (%d, %q)", e.Step, e.Token)
			continue
		}
		seen[key] = true
	}

	res := c.result()
	if res.OK {
		logging.Verify("verified %d steps, %d ledger rows", len(trace), len(ledger))
	} else {
		logging.Get(logging.CategoryVerify).Warn("%d violations: %s", len(res.Errors), strings.Join(res.Errors, "; "))
	}
	return res
}

// VerifyRun verifies a completed run and records the outcome in the run's
// audit trail.
func VerifyRun(run *collapse.Run) Result {
	if run == nil {
		return Result{OK: false, Errors: []string{"no run to verify"}}
	}
	res := Verify(run.Trace, run.Ledger, run.Candidates)
	logging.AuditWithRun(run.ID).Verification(res.OK, len(res.Errors))
	logging.Get(logging.CategoryVerify).StructuredLog("INFO", "run verified", map[string]interface{}{
		"run":        run.ID,
		"ok":         res.OK,
		"violations": len(res.Errors),
	})
	return res
}

// Summary is a one-line description of the result.
func (r Result) Summary() string {
	if r.OK {
		return "all invariants hold"
	}
	return fmt.Sprintf("%d invariant violation(s)", len(r.Errors))
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
