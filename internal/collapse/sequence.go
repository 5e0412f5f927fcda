package collapse

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"collapse/internal/logging"
)

// TraceRow is one step of a run.
type TraceRow struct {
	Step       int      `json:"step"` // 1-based
	Candidates []string `json:"candidates"`
	Survivors  []string `json:"survivors"`
	Choice     string   `json:"choice"`
	Mode       Mode     `json:"mode"`
	Residual   float64  `json:"residual"`
}

// Run is the accumulated output of a sequence.
type Run struct {
	ID         string        `json:"id"`
	Emitted    []string      `json:"emitted"`
	Trace      []TraceRow    `json:"trace"`
	Ledger     []LedgerEntry `json:"ledger"`
	Candidates [][]string    `json:"candidates"`
	Steps      []StepResult  `json:"steps"`
}

// Text joins the emitted tokens with single spaces.
func (r *Run) Text() string {
	return strings.Join(r.Emitted, " ")
}

// Sequence drives an Engine over an ordered list of candidate lists.
// Each call to Run builds a fresh engine, so a Sequence can be reused.
type Sequence struct {
	Kernels     KernelSet
	Preferences Preferences
	Bookkeeping []Bookkeeping
	Updates     []DiscourseUpdate
	// Strict validates kernel field reads against the context before step 0.
	Strict bool
}

func newRunID() string {
	return "run-" + uuid.New().String()[:8]
}

// Run threads ctx through one engine step per candidate list.
//
// A step whose kernels reject every candidate aborts the run: the completed
// steps are returned together with the *ConstructionError, and the ledger
// includes the failed step's eliminations.
func (s *Sequence) Run(ctx *Context, steps [][]string) (*Run, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrContextShape)
	}
	if s.Strict {
		if err := s.Kernels.Validate(ctx); err != nil {
			return nil, err
		}
	}

	run := &Run{
		ID:         newRunID(),
		Candidates: make([][]string, len(steps)),
	}
	for i, c := range steps {
		run.Candidates[i] = append([]string(nil), c...)
	}

	elim := NewEliminator(s.Bookkeeping...)
	audit := logging.AuditWithRun(run.ID)
	elim.SetAudit(audit)
	engine := NewEngine(NewPruner(s.Kernels), elim, NewSelector(s.Preferences), s.Updates...)

	timer := logging.StartTimer(logging.CategoryEngine, "sequence "+run.ID)
	defer timer.Stop()
	audit.RunStart(len(steps))

	for i, cands := range run.Candidates {
		res, err := engine.Step(i, ctx, CandidateSet(cands))
		if err != nil {
			run.Ledger = elim.Ledger()
			audit.RunAbort(i+1, err.Error())
			var ce *ConstructionError
			if errors.As(err, &ce) {
				return run, err
			}
			return run, fmt.Errorf("step %d: %w", i+1, err)
		}

		run.Emitted = append(run.Emitted, res.Token)
		run.Steps = append(run.Steps, *res)
		run.Trace = append(run.Trace, TraceRow{
			Step:       i + 1,
			Candidates: cands,
			Survivors:  append([]string(nil), res.Survivors...),
			Choice:     res.Token,
			Mode:       res.Mode,
			Residual:   residual([]string{res.Token}),
		})
		audit.StepCommit(i+1, res.Token, string(res.Mode))
	}

	run.Ledger = elim.Ledger()
	audit.RunEnd(run.Text())
	logging.Engine("run %s: %d steps, %d eliminations: %q", run.ID, len(run.Trace), len(run.Ledger), run.Text())
	return run, nil
}

// residual is the Shannon entropy in bits of the uniform distribution over
// the committed outcomes. One committed token gives zero.
func residual(committed []string) float64 {
	n := len(committed)
	if n <= 1 {
		return 0
	}
	p := 1 / float64(n)
	h := 0.0
	for range committed {
		h -= p * math.Log2(p)
	}
	return h
}
