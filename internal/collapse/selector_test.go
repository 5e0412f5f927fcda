package collapse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectUniqueSkipsRanking(t *testing.T) {
	// "notified" would lose a ranking; a single survivor is never ranked.
	s := NewSelector(Preferences{"notified": 0})

	tok, mode, err := s.Select(NewContext(), SurvivorSet{"notified"})
	require.NoError(t, err)
	assert.Equal(t, "notified", tok)
	assert.Equal(t, ModeUnique, mode)
}

func TestSelectRanker(t *testing.T) {
	s := NewSelector(nil)

	tok, mode, err := s.Select(NewContext(), SurvivorSet{"notified", "informed", "told"})
	require.NoError(t, err)
	assert.Equal(t, "told", tok)
	assert.Equal(t, ModeRanker, mode)
}

func TestSelectTieBreakIsLexical(t *testing.T) {
	tests := []struct {
		name      string
		prefs     Preferences
		survivors SurvivorSet
		want      string
	}{
		{"unknown tokens score zero", Preferences{}, SurvivorSet{"pear", "apple", "fig"}, "apple"},
		{"tied top scores", Preferences{"b": 0.9, "a": 0.9, "c": 0.1}, SurvivorSet{"c", "b", "a"}, "a"},
		{"score beats lexical", Preferences{"zeta": 0.5}, SurvivorSet{"alpha", "zeta"}, "zeta"},
		{"byte order not locale", Preferences{}, SurvivorSet{"b", "B"}, "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, mode, err := NewSelector(tt.prefs).Select(NewContext(), tt.survivors)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok)
			assert.Equal(t, ModeRanker, mode)
		})
	}
}

func TestSelectEmpty(t *testing.T) {
	_, _, err := NewSelector(nil).Select(NewContext(), nil)
	assert.ErrorIs(t, err, ErrEmptySurvivors)
}

func TestNewSelectorCopiesTable(t *testing.T) {
	prefs := Preferences{"a": 1}
	s := NewSelector(prefs)
	prefs["a"] = 0
	assert.Equal(t, 1.0, s.Score(nil, "a"))
	assert.Equal(t, 0.0, s.Score(nil, "missing"))
}
