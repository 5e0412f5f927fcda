package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collapse/internal/collapse"
)

var capitals = map[string]map[string]string{
	"capital_of": {"France": "Paris", "Germany": "Berlin", "Spain": "Madrid"},
}

func TestFactTableLookup(t *testing.T) {
	table, err := NewFactTable(DefaultConfig(), capitals)
	require.NoError(t, err)

	city, ok := table.Lookup("capital_of", "Germany")
	require.True(t, ok)
	assert.Equal(t, "Berlin", city)

	_, ok = table.Lookup("capital_of", "Italy")
	assert.False(t, ok)
	_, ok = table.Lookup("population_of", "France")
	assert.False(t, ok)

	_, ok = table.Lookup("Capital Of", "France")
	assert.False(t, ok)

	var _ collapse.FactTable = table
}

func TestFactTableKeepsLowercaseAsStrings(t *testing.T) {
	table, err := NewFactTable(DefaultConfig(), map[string]map[string]string{
		"plural_of": {"project": "projects"},
	})
	require.NoError(t, err)

	v, ok := table.Lookup("plural_of", "project")
	require.True(t, ok)
	assert.Equal(t, "projects", v)
}

func TestFactTableLookupQuotesKeys(t *testing.T) {
	table, err := NewFactTable(DefaultConfig(), map[string]map[string]string{
		"alias_of": {`say "hi"`: "greeting"},
	})
	require.NoError(t, err)

	v, ok := table.Lookup("alias_of", `say "hi"`)
	require.True(t, ok)
	assert.Equal(t, "greeting", v)
}

func TestEmptyFactTableFindsNothing(t *testing.T) {
	table, err := NewFactTable(DefaultConfig(), nil)
	require.NoError(t, err)
	_, ok := table.Lookup("capital_of", "France")
	assert.False(t, ok)
}

func TestRuleKernel(t *testing.T) {
	k, err := NewRuleKernel(DefaultConfig(), RuleProgram{
		Name: "capital",
		Tag:  "kb:city_matches_country",
		Source: `
admit(1, Country) :- capital_of(Country, City), focus(City).
admit(2, ".").
`,
		Relations: capitals,
		Focus:     "Paris",
	})
	require.NoError(t, err)
	assert.Equal(t, "capital", k.Name)

	ok, tag := k.Check(0, "France", nil)
	assert.True(t, ok)
	assert.Equal(t, "kb:city_matches_country", tag)

	ok, _ = k.Check(0, "Spain", nil)
	assert.False(t, ok)

	ok, _ = k.Check(1, "!", nil)
	assert.False(t, ok)

	ok, tag = k.Check(5, "anything", nil)
	assert.True(t, ok)
	assert.Equal(t, "kb:any", tag)
}

func TestRuleKernelBadProgram(t *testing.T) {
	_, err := NewRuleKernel(DefaultConfig(), RuleProgram{Name: "bad", Tag: "x:y", Source: `admit(1, `})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule kernel bad")
}

func TestRuleKernelDrivesSequence(t *testing.T) {
	k, err := NewRuleKernel(DefaultConfig(), RuleProgram{
		Name:      "capital",
		Tag:       "kb:city_matches_country",
		Source:    `admit(1, Country) :- capital_of(Country, City), focus(City).`,
		Relations: capitals,
		Focus:     "Madrid",
	})
	require.NoError(t, err)

	seq := &collapse.Sequence{Kernels: collapse.KernelSet{k}}
	run, err := seq.Run(collapse.NewContext(), [][]string{{"France", "Germany", "Spain"}})
	require.NoError(t, err)
	assert.Equal(t, "Spain", run.Text())
	assert.Len(t, run.Ledger, 2)
}

func TestCheckRuleProgram(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{"valid", `admit(1, Country) :- capital_of(Country, City), focus(City).`, ""},
		{"fact only", `admit(2, ".").`, ""},
		{"derived helper", "big(C) :- capital_of(C, _).\nadmit(1, C) :- big(C).", ""},
		{"negation", `admit(1, C) :- capital_of(C, _), !focus(C).`, ""},
		{"undefined", `admit(1, C) :- population_of(C, _).`, "undefined predicate population_of"},
		{"arity", `admit(1, C) :- capital_of(C).`, "capital_of used with 1 args, declared with 2"},
		{"no admit", `other(1, "x").`, "no clause derives admit/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRuleProgram(RuleProgram{Name: "p", Source: tt.source, Relations: capitals})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "capital_of/2")
		})
	}
}

func TestRuleKernelRejectsUndefinedRelation(t *testing.T) {
	_, err := NewRuleKernel(DefaultConfig(), RuleProgram{
		Name:      "typo",
		Tag:       "kb:x",
		Source:    `admit(1, C) :- capitol_of(C, _).`,
		Relations: capitals,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule kernel typo")
	assert.Contains(t, err.Error(), "undefined predicate capitol_of")
}
