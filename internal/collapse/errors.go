package collapse

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCandidates is returned when a step is given an empty candidate list.
	// This is an input error, not a scenario-construction error.
	ErrNoCandidates = errors.New("no candidates supplied")

	// ErrEmptySurvivors marks a step whose kernel conjunction rejected every
	// candidate. It is fatal for the run.
	ErrEmptySurvivors = errors.New("kernel conjunction eliminated every candidate")

	// ErrContextShape is returned when a kernel reads a context field that is
	// not populated.
	ErrContextShape = errors.New("context does not provide a field a kernel reads")
)

// ConstructionError reports an over-constrained step: the kernel set and the
// candidate list are inconsistent. It unwraps to ErrEmptySurvivors.
type ConstructionError struct {
	Step         int // 1-based
	Candidates   []string
	Eliminations []Elimination
}

func (e *ConstructionError) Error() string {
	parts := make([]string, 0, len(e.Eliminations))
	for _, el := range e.Eliminations {
		parts = append(parts, fmt.Sprintf("%s[%s]", el.Token, strings.Join(el.Reasons, ";")))
	}
	return fmt.Sprintf("step %d: %v: %s", e.Step, ErrEmptySurvivors, strings.Join(parts, ", "))
}

func (e *ConstructionError) Unwrap() error {
	return ErrEmptySurvivors
}
