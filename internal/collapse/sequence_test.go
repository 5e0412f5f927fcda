package collapse

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perStep(tag string, sets ...[]string) Kernel {
	return NewKernel(tag, func(step int, tok string, _ *Context) (bool, string) {
		if step >= len(sets) {
			return true, tag
		}
		for _, s := range sets[step] {
			if s == tok {
				return true, tag
			}
		}
		return false, tag
	})
}

func smallSequence() (*Sequence, [][]string) {
	seq := &Sequence{
		Kernels: KernelSet{
			perStep("grammar:expected",
				[]string{"Alice", "Bob"},
				[]string{"emailed", "called", "texted"},
				[]string{"Bob", "Alice"},
			),
			agentKernelAt0(),
		},
		Bookkeeping: []Bookkeeping{AdvancePlanAfter(2, 2)},
		Strict:      true,
	}
	steps := [][]string{
		{"Alice", "Bob"},
		{"emailed", "called", "texted"},
		{"Bob", "Alice", "Bob"},
	}
	return seq, steps
}

func agentKernelAt0() Kernel {
	return NewKernel("role", func(step int, tok string, ctx *Context) (bool, string) {
		plan, _ := ctx.Plan(0)
		switch step {
		case 0:
			return tok == plan.Agent, "role:agent_must_be_Alice"
		case 2:
			return tok == plan.Recipient, "role:recipient_must_be_Bob"
		}
		return true, "role:any"
	}, FieldPlans)
}

func TestSequenceRun(t *testing.T) {
	seq, steps := smallSequence()
	ctx := agentContext()

	run, err := seq.Run(ctx, steps)
	require.NoError(t, err)

	assert.Equal(t, "Alice emailed Bob", run.Text())
	assert.NotEmpty(t, run.ID)
	require.Len(t, run.Trace, 3)
	assert.Equal(t, TraceRow{
		Step:       2,
		Candidates: []string{"emailed", "called", "texted"},
		Survivors:  []string{"emailed", "called", "texted"},
		Choice:     "emailed",
		Mode:       ModeRanker,
		Residual:   0,
	}, run.Trace[1])
	assert.Equal(t, ModeUnique, run.Trace[2].Mode)
	assert.Equal(t, []string{"Bob", "Alice", "Bob"}, run.Trace[2].Candidates)

	assert.Equal(t, []LedgerEntry{
		{Step: 1, Token: "Bob", Reasons: []string{"role:agent_must_be_Alice"}},
		{Step: 3, Token: "Alice", Reasons: []string{"role:recipient_must_be_Bob"}},
	}, run.Ledger)

	assert.Equal(t, 2, ctx.Cursor.PlanStep)
	assert.Equal(t, "Bob", ctx.Discourse.LastPersonMale)
	assert.Equal(t, "Alice", ctx.Discourse.LastPersonFemale)
}

func TestSequenceZeroResidual(t *testing.T) {
	seq, steps := smallSequence()
	run, err := seq.Run(agentContext(), steps)
	require.NoError(t, err)
	for _, row := range run.Trace {
		assert.Zero(t, row.Residual, "step %d", row.Step)
		assert.False(t, math.Signbit(row.Residual))
	}
}

func TestSequenceDeterminism(t *testing.T) {
	seq, steps := smallSequence()

	a, err := seq.Run(agentContext(), steps)
	require.NoError(t, err)
	b, err := seq.Run(agentContext(), steps)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(Run{}, "ID")); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSequenceAbortsOnConstructionError(t *testing.T) {
	seq := &Sequence{Kernels: KernelSet{perStep("grammar:expected",
		[]string{"Alice"},
		[]string{"nothing-matches"},
		[]string{"Bob"},
	)}}

	run, err := seq.Run(agentContext(), [][]string{{"Alice", "Bob"}, {"emailed", "called"}, {"Bob"}})
	require.ErrorIs(t, err, ErrEmptySurvivors)

	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Step)

	require.NotNil(t, run)
	assert.Equal(t, []string{"Alice"}, run.Emitted, "no token is emitted for the failed step")
	assert.Len(t, run.Trace, 1)
	assert.Len(t, run.Ledger, 3)
	assert.Len(t, run.Candidates, 3)
}

func TestSequenceEmptyCandidateList(t *testing.T) {
	seq := &Sequence{Kernels: KernelSet{}}
	run, err := seq.Run(NewContext(), [][]string{{"a"}, {}})
	require.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, []string{"a"}, run.Emitted)
}

func TestSequenceStrictValidatesContext(t *testing.T) {
	seq, steps := smallSequence()
	_, err := seq.Run(NewContext(), steps)
	require.ErrorIs(t, err, ErrContextShape)

	seq.Strict = false
	_, err = seq.Run(NewContext(), [][]string{{"Alice"}})
	require.Error(t, err, "the agent kernel rejects everything without a plan")
}

func TestResidual(t *testing.T) {
	assert.Equal(t, 0.0, residual([]string{"x"}))
	assert.Equal(t, 0.0, residual(nil))
	assert.InDelta(t, 1.0, residual([]string{"a", "b"}), 1e-12)
}

func TestDigestIgnoresRunID(t *testing.T) {
	r := &Run{ID: "one", Emitted: []string{"x"}}
	d := r.Digest()
	r.ID = "two"
	assert.Equal(t, d, r.Digest())
	assert.Len(t, d, 64)

	r.Emitted = []string{"y"}
	assert.NotEqual(t, d, r.Digest())
}
