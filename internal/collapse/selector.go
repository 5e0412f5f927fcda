package collapse

import (
	"sort"

	"collapse/internal/logging"
)

// Mode is how a token was selected.
type Mode string

const (
	// ModeUnique means a single survivor was committed without ranking.
	ModeUnique Mode = "unique"
	// ModeRanker means the preference table and lexical tie-break chose.
	ModeRanker Mode = "ranker"
)

// Preferences is a static token -> score table. Unknown tokens score 0.
type Preferences map[string]float64

// DefaultPreferences returns the built-in ranking table.
func DefaultPreferences() Preferences {
	return Preferences{
		"emailed":  0.9,
		"called":   0.6,
		"texted":   0.5,
		"told":     0.9,
		"informed": 0.7,
		"notified": 0.65,
	}
}

// Selector picks exactly one survivor (Ψ).
type Selector struct {
	prefs Preferences
}

// NewSelector creates a selector over prefs. A nil table uses the defaults.
func NewSelector(prefs Preferences) *Selector {
	if prefs == nil {
		prefs = DefaultPreferences()
	}
	cp := make(Preferences, len(prefs))
	for k, v := range prefs {
		cp[k] = v
	}
	return &Selector{prefs: cp}
}

// Score returns the static preference for tok.
func (s *Selector) Score(_ *Context, tok string) float64 {
	return s.prefs[tok]
}

type scored struct {
	tok   string
	score float64
}

// Select commits one token from survivors. A singleton is returned as
// ModeUnique without consulting the table. Otherwise survivors are ordered by
// descending score then ascending byte order and the first is returned as
// ModeRanker.
func (s *Selector) Select(ctx *Context, survivors SurvivorSet) (string, Mode, error) {
	switch len(survivors) {
	case 0:
		return "", "", ErrEmptySurvivors
	case 1:
		return survivors[0], ModeUnique, nil
	}

	ranked := make([]scored, len(survivors))
	for i, tok := range survivors {
		ranked[i] = scored{tok: tok, score: s.Score(ctx, tok)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tok < ranked[j].tok
	})

	logging.SelectDebug("ranked %d survivors, top=%s (%.2f)", len(ranked), ranked[0].tok, ranked[0].score)
	return ranked[0].tok, ModeRanker, nil
}
