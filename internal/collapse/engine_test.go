package collapse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentContext() *Context {
	ctx := NewContext()
	ctx.Entities["Alice"] = Entity{Type: "Person", Gender: "F"}
	ctx.Entities["Bob"] = Entity{Type: "Person", Gender: "M"}
	ctx.Plans = []Plan{{Step: 1, Action: "email", Agent: "Alice", Recipient: "Bob", Tense: TensePast}}
	ctx.Discourse.Time = TensePast
	return ctx
}

func agentKernel() Kernel {
	return NewKernel("role", func(step int, tok string, ctx *Context) (bool, string) {
		plan, _ := ctx.Plan(0)
		return tok == plan.Agent, "role:agent_must_be_Alice"
	}, FieldPlans)
}

func newTestEngine(ks KernelSet) *Engine {
	return NewEngine(NewPruner(ks), NewEliminator(), NewSelector(DefaultPreferences()))
}

func TestStepAgentIsUnique(t *testing.T) {
	e := newTestEngine(KernelSet{agentKernel()})

	res, err := e.Step(0, agentContext(), CandidateSet{"Alice", "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Token)
	assert.Equal(t, ModeUnique, res.Mode)
	assert.Equal(t, SurvivorSet{"Alice"}, res.Survivors)
	assert.Equal(t, map[string][]string{"Bob": {"role:agent_must_be_Alice"}}, res.ElimReasons)
}

func TestStepReportingVerbIsRanked(t *testing.T) {
	e := newTestEngine(KernelSet{oneOf("role:reporting_verb", "told", "informed", "notified")})

	res, err := e.Step(4, agentContext(), CandidateSet{"told", "informed", "notified"})
	require.NoError(t, err)
	assert.Equal(t, "told", res.Token)
	assert.Equal(t, ModeRanker, res.Mode)
	assert.Equal(t, SurvivorSet{"told", "informed", "notified"}, res.Survivors)
	assert.Empty(t, res.ElimReasons)
}

func TestStepDefiniteDeterminer(t *testing.T) {
	e := newTestEngine(KernelSet{exact("role:definite_budget", "the")})

	res, err := e.Step(7, agentContext(), CandidateSet{"the", "a"})
	require.NoError(t, err)
	assert.Equal(t, "the", res.Token)
	assert.Equal(t, SurvivorSet{"the"}, res.Survivors)
	require.Contains(t, res.ElimReasons, "a")
	assert.Regexp(t, `^role:definite_`, res.ElimReasons["a"][0])
}

func TestStepConstructionErrorStillLedgered(t *testing.T) {
	e := newTestEngine(KernelSet{exact("role:never", "zzz")})

	res, err := e.Step(3, agentContext(), CandidateSet{"and", "."})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrEmptySurvivors)

	ledger := e.Eliminator().Ledger()
	require.Len(t, ledger, 2)
	assert.Equal(t, 4, ledger[0].Step)
}

func TestPersonReferentRunsAfterSelection(t *testing.T) {
	var seenDuringPrune []string
	k := NewKernel("probe", func(_ int, _ string, ctx *Context) (bool, string) {
		seenDuringPrune = append(seenDuringPrune, ctx.Discourse.LastPersonMale)
		return true, "probe:any"
	})
	e := newTestEngine(KernelSet{k})
	ctx := agentContext()

	res, err := e.Step(2, ctx, CandidateSet{"Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.Token)
	assert.Equal(t, []string{""}, seenDuringPrune)
	assert.Equal(t, "Bob", ctx.Discourse.LastPersonMale)

	_, err = e.Step(3, ctx, CandidateSet{"Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", ctx.Discourse.LastPersonFemale)
	assert.Equal(t, "Bob", ctx.Discourse.LastPersonMale)
}

func TestCustomDiscourseUpdateReplacesDefault(t *testing.T) {
	var got []string
	e := NewEngine(NewPruner(KernelSet{}), NewEliminator(), NewSelector(nil),
		func(_ int, tok string, _ *Context) { got = append(got, tok) })
	ctx := agentContext()

	_, err := e.Step(0, ctx, CandidateSet{"Bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, got)
	assert.Empty(t, ctx.Discourse.LastPersonMale)
}
