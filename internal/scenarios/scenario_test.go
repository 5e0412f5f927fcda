package scenarios

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collapse/internal/collapse"
	"collapse/internal/mangle"
	"collapse/internal/verification"
)

func TestBundledScenariosEmitExactSentences(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			sc, err := Lookup(name)
			require.NoError(t, err)

			run, err := sc.Run(true, nil)
			require.NoError(t, err)
			assert.Equal(t, sc.Expected, run.Text())

			res := verification.VerifyRun(run)
			assert.True(t, res.OK, "violations: %v", res.Errors)
		})
	}
}

func TestBasicTrace(t *testing.T) {
	sc, err := Lookup("basic")
	require.NoError(t, err)
	run, err := sc.Run(true, nil)
	require.NoError(t, err)

	require.Len(t, run.Trace, 12)
	assert.Equal(t, collapse.TraceRow{
		Step:       1,
		Candidates: []string{"Alice", "Bob"},
		Survivors:  []string{"Alice"},
		Choice:     "Alice",
		Mode:       collapse.ModeUnique,
	}, run.Trace[0])

	assert.Equal(t, collapse.ModeRanker, run.Trace[1].Mode)
	assert.Equal(t, []string{"emailed", "called", "texted"}, run.Trace[1].Survivors)
	assert.Equal(t, collapse.ModeRanker, run.Trace[4].Mode)
	assert.Equal(t, "told", run.Trace[4].Choice)

	assert.Equal(t, 2, sc.Context.Cursor.PlanStep)
	assert.Equal(t, "Bob", sc.Context.Discourse.LastPersonMale)
	assert.Equal(t, "Alice", sc.Context.Discourse.LastPersonFemale)
}

func TestBasicLedgerReasons(t *testing.T) {
	sc, err := Lookup("basic")
	require.NoError(t, err)
	run, err := sc.Run(true, nil)
	require.NoError(t, err)

	byKey := map[string][]string{}
	for _, e := range run.Ledger {
		byKey[fmt.Sprintf("%s@%d", e.Token, e.Step)] = e.Reasons
	}

	assert.Equal(t, []string{"role:agent_must_be_Alice"}, byKey["Bob@1"])
	assert.Equal(t, []string{"role:definite_budget"}, byKey["a@8"])
	assert.Equal(t, []string{"grammar:AuxPast", "role:aux_past", "tense:must_be_past"}, byKey["is@10"])
	assert.Equal(t, []string{"grammar:Participle", "role:predicate_approved", "tense:must_be_past"}, byKey["approve@11"])
	assert.Equal(t, []string{"grammar:PunctEnd"}, byKey["!@12"])
	assert.Equal(t, []string{"role:pronoun_binds_to_Bob"}, byKey["her@6"])
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownScenario)
}

func TestLookupBuildsFreshContext(t *testing.T) {
	a, err := Lookup("basic")
	require.NoError(t, err)
	b, err := Lookup("basic")
	require.NoError(t, err)

	_, err = a.Run(true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Context.Cursor.PlanStep)
	assert.Equal(t, 1, b.Context.Cursor.PlanStep)
}

func TestRunsAreDeterministic(t *testing.T) {
	for _, name := range Names() {
		a, err := Lookup(name)
		require.NoError(t, err)
		b, err := Lookup(name)
		require.NoError(t, err)

		ra, err := a.Run(true, nil)
		require.NoError(t, err)
		rb, err := b.Run(true, nil)
		require.NoError(t, err)

		if diff := cmp.Diff(ra.Ledger, rb.Ledger); diff != "" {
			t.Errorf("%s ledger differs:\n%s", name, diff)
		}
		assert.Equal(t, ra.Digest(), rb.Digest(), name)
	}
}

func TestExtraPreferencesChangeRanking(t *testing.T) {
	sc, err := Lookup("basic")
	require.NoError(t, err)
	run, err := sc.Run(true, collapse.Preferences{"texted": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "texted", run.Emitted[1])
}

func TestOverConstrainedScenarioAborts(t *testing.T) {
	sc, err := Lookup("coref")
	require.NoError(t, err)
	sc.Steps[4] = []string{"!", "?"}

	run, err := sc.Run(true, nil)
	require.ErrorIs(t, err, collapse.ErrEmptySurvivors)
	assert.Equal(t, "She presented the results", run.Text())
	assert.False(t, verification.VerifyRun(run).OK)
}

func TestLoadFileReproducesBasic(t *testing.T) {
	sc, err := LoadFile(filepath.Join("testdata", "basic.yaml"), mangle.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "basic-file", sc.Name)

	run, err := sc.Run(true, nil)
	require.NoError(t, err)
	assert.Equal(t, sc.Expected, run.Text())
	assert.True(t, verification.VerifyRun(run).OK)
	assert.Equal(t, 2, sc.Context.Cursor.PlanStep)

	builtin, err := Lookup("basic")
	require.NoError(t, err)
	want, err := builtin.Run(true, nil)
	require.NoError(t, err)
	assert.Equal(t, want.Text(), run.Text())
}

func TestLoadFileMangleRules(t *testing.T) {
	sc, err := LoadFile(filepath.Join("testdata", "kb.yaml"), mangle.DefaultConfig())
	require.NoError(t, err)

	run, err := sc.Run(true, nil)
	require.NoError(t, err)
	assert.Equal(t, "Germany .", run.Text())

	for _, e := range run.Ledger {
		if e.Step == 1 {
			assert.Equal(t, []string{"kb:city_matches_country", "kb:rule_admits_country"}, e.Reasons)
		}
	}
}

func TestLoadFileNameFallsBackToFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kernels:
  - type: require
    require:
      0: {token: "yes", tag: "pick:yes"}
steps:
  - ["yes", "no"]
`), 0644))

	sc, err := LoadFile(path, mangle.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "tiny", sc.Name)

	run, err := sc.Run(false, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", run.Text())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no steps", "kernels: [{type: require, require: {0: {token: a, tag: 'x:y'}}}]", "no steps"},
		{"no kernels", "steps: [[a]]", "no kernels"},
		{"unknown type", "steps: [[a]]\nkernels: [{type: oracle}]", "unsupported kernel type"},
		{"undefined category", "steps: [[a]]\nkernels: [{type: category, expect: {0: Noun}}]", "undefined category"},
		{"forbid without tag", "steps: [[a]]\nkernels: [{type: forbid, when: past}]", "needs when and tag"},
		{"bad mangle", "steps: [[a]]\nkernels: [{type: mangle, tag: 'x:y', program: 'admit(1, '}]", "rule kernel"},
		{"bad yaml", "steps: [[a]\n", "failed to parse scenario YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), mangle.DefaultConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFactKernelNeedsFacts(t *testing.T) {
	sc, err := Parse([]byte(`
steps: [[France]]
kernels:
  - {type: fact, relation: capital_of, at: [0], tag: "kb:x"}
`), mangle.DefaultConfig())
	require.NoError(t, err)

	_, err = sc.Run(true, nil)
	require.ErrorIs(t, err, collapse.ErrContextShape)

	// Without strict validation the lookup has nothing to consult and
	// rejects the token instead of panicking.
	run, err := sc.Run(false, nil)
	require.ErrorIs(t, err, collapse.ErrEmptySurvivors)
	require.Len(t, run.Ledger, 1)
	assert.Equal(t, []string{"kb:x"}, run.Ledger[0].Reasons)
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	names := Names()
	texts := make([]string, len(names))
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc, err := Lookup(name)
			if err != nil {
				errs[i] = err
				return
			}
			run, err := sc.Run(true, nil)
			if err != nil {
				errs[i] = err
				return
			}
			texts[i] = run.Text()
		}()
	}
	wg.Wait()

	for i, name := range names {
		require.NoError(t, errs[i], name)
		sc, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, sc.Expected, texts[i], name)
	}
}
