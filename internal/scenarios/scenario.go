// Package scenarios provides the bundled harness scenarios and loads
// scenario files. A scenario is a context, a kernel set and the ordered
// candidate lists a collapse run consumes.
package scenarios

import (
	"errors"
	"fmt"

	"collapse/internal/collapse"
	"collapse/internal/logging"
)

// ErrUnknownScenario is returned by Lookup for an unregistered name.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is everything a run needs. Each Lookup builds a fresh one, so
// runs never share a Context.
type Scenario struct {
	Name        string
	Description string
	// Expected is the sentence the scenario must emit, if known.
	Expected    string
	Context     *collapse.Context
	Kernels     collapse.KernelSet
	Steps       [][]string
	Preferences collapse.Preferences
	Bookkeeping []collapse.Bookkeeping
}

// Sequence returns a driver for the scenario. Extra preferences are merged
// over the scenario's own table.
func (s *Scenario) Sequence(strict bool, extra collapse.Preferences) *collapse.Sequence {
	prefs := collapse.DefaultPreferences()
	for k, v := range s.Preferences {
		prefs[k] = v
	}
	for k, v := range extra {
		prefs[k] = v
	}
	return &collapse.Sequence{
		Kernels:     s.Kernels,
		Preferences: prefs,
		Bookkeeping: s.Bookkeeping,
		Strict:      strict,
	}
}

// Run executes the scenario against its own context.
func (s *Scenario) Run(strict bool, extra collapse.Preferences) (*collapse.Run, error) {
	logging.ScenarioDebug("running %s: %d steps, kernels %v", s.Name, len(s.Steps), s.Kernels.Names())
	return s.Sequence(strict, extra).Run(s.Context, s.Steps)
}

// Builder constructs a fresh scenario.
type Builder func() (*Scenario, error)

var order = []string{"basic", "coref", "tense", "kb"}

var registry = map[string]Builder{
	"basic": Basic,
	"coref": Coref,
	"tense": Tense,
	"kb":    KB,
}

// Lookup builds the named bundled scenario.
func Lookup(name string) (*Scenario, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownScenario, name, Names())
	}
	return build()
}

// Names lists the bundled scenarios in run order.
func Names() []string {
	return append([]string(nil), order...)
}
