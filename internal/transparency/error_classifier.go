package transparency

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"collapse/internal/collapse"
	"collapse/internal/scenarios"
)

// ErrorCategory classifies errors for user guidance.
type ErrorCategory int

const (
	// ErrorCategoryConstruction indicates an over-constrained step.
	ErrorCategoryConstruction ErrorCategory = iota

	// ErrorCategoryContext indicates a kernel reads a missing context field.
	ErrorCategoryContext

	// ErrorCategoryInput indicates malformed candidates or an unknown scenario.
	ErrorCategoryInput

	// ErrorCategoryConfig indicates a configuration issue.
	ErrorCategoryConfig

	// ErrorCategoryKernel indicates a Mangle rule program issue.
	ErrorCategoryKernel

	// ErrorCategoryFilesystem indicates a file/directory issue.
	ErrorCategoryFilesystem

	// ErrorCategoryUnknown is the fallback for unclassified errors.
	ErrorCategoryUnknown
)

// Prefix returns the display prefix for this error category.
func (c ErrorCategory) Prefix() string {
	prefixes := []string{
		"[CONSTRUCTION]",
		"[CONTEXT]",
		"[INPUT]",
		"[CONFIG]",
		"[KERNEL]",
		"[FS]",
		"[ERROR]",
	}
	if int(c) < len(prefixes) {
		return prefixes[c]
	}
	return "[ERROR]"
}

// String returns the category name.
func (c ErrorCategory) String() string {
	names := []string{
		"construction",
		"context",
		"input",
		"config",
		"kernel",
		"filesystem",
		"unknown",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// ExitCode is the process exit status for errors of this category.
// Construction errors exit 2; everything else exits 1.
func (c ErrorCategory) ExitCode() int {
	if c == ErrorCategoryConstruction {
		return 2
	}
	return 1
}

// ClassifiedError wraps an error with classification and remediation.
type ClassifiedError struct {
	Original    error
	Category    ErrorCategory
	Summary     string
	Remediation []string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Format()
}

// Unwrap returns the original error for errors.Is/As compatibility.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// Format returns a user-friendly error message with remediation.
func (ce *ClassifiedError) Format() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s\n\n", ce.Category.Prefix(), ce.Summary))
	sb.WriteString(fmt.Sprintf("Details: %s\n", ce.Original.Error()))

	if len(ce.Remediation) > 0 {
		sb.WriteString("\nSuggested fixes:\n")
		for _, r := range ce.Remediation {
			sb.WriteString(fmt.Sprintf("  - %s\n", r))
		}
	}

	return sb.String()
}

// ClassifyError analyzes an error and returns a classified version. Typed
// errors are matched first; the message is only inspected as a fallback.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{
		Original: err,
		Category: ErrorCategoryUnknown,
		Summary:  "An unexpected error occurred",
	}

	var construction *collapse.ConstructionError
	errStr := strings.ToLower(err.Error())

	switch {
	case errors.As(err, &construction):
		classified.Category = ErrorCategoryConstruction
		classified.Summary = fmt.Sprintf("Step %d is over-constrained: every candidate was rejected", construction.Step)
		classified.Remediation = []string{
			"Run `why` on the failed step to see each rejection",
			"Add a candidate the kernels admit, or relax a kernel",
		}

	case errors.Is(err, collapse.ErrEmptySurvivors):
		classified.Category = ErrorCategoryConstruction
		classified.Summary = "A step has no survivors"
		classified.Remediation = GetRecoveryGuide(ErrorCategoryConstruction)

	case errors.Is(err, collapse.ErrContextShape):
		classified.Category = ErrorCategoryContext
		classified.Summary = "A kernel reads a context field the scenario does not provide"
		classified.Remediation = []string{
			"Populate the missing field in the scenario context",
			"Disable engine.strict_context to defer the failure to the kernel",
		}

	case errors.Is(err, collapse.ErrNoCandidates), errors.Is(err, scenarios.ErrUnknownScenario):
		classified.Category = ErrorCategoryInput
		classified.Summary = "Invalid run input"
		classified.Remediation = GetRecoveryGuide(ErrorCategoryInput)

	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		classified.Category = ErrorCategoryFilesystem
		classified.Summary = "Filesystem issue"
		classified.Remediation = GetRecoveryGuide(ErrorCategoryFilesystem)

	case containsAny(errStr, "config", "configuration"):
		classified.Category = ErrorCategoryConfig
		classified.Summary = "Configuration issue detected"
		classified.Remediation = GetRecoveryGuide(ErrorCategoryConfig)

	case containsAny(errStr, "rule kernel", "mangle", "schema", "predicate"):
		classified.Category = ErrorCategoryKernel
		classified.Summary = "Rule program issue"
		classified.Remediation = GetRecoveryGuide(ErrorCategoryKernel)
	}

	return classified
}

// containsAny returns true if s contains any of the patterns.
func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// GetRecoveryGuide returns remediation steps for an error category.
func GetRecoveryGuide(category ErrorCategory) []string {
	guides := map[ErrorCategory][]string{
		ErrorCategoryConstruction: {
			"Run `why STEP TOKEN` for the failed step",
			"Check that each step lists at least one admissible token",
		},
		ErrorCategoryContext: {
			"Add the entities, plans, discourse or facts the kernels read",
		},
		ErrorCategoryInput: {
			"Run `run-all` to list the bundled scenarios",
			"Check that no step has an empty candidate list",
		},
		ErrorCategoryConfig: {
			"Check .collapse/config.yaml for syntax errors",
			"Delete the file to fall back to defaults",
		},
		ErrorCategoryKernel: {
			"Check the kernel program declares admit(Step, Token)",
			"Check that every relation the rules read is in context.facts",
		},
		ErrorCategoryFilesystem: {
			"Verify the path exists",
			"Check file permissions",
		},
	}

	if steps, ok := guides[category]; ok {
		return steps
	}
	return []string{"Re-run with -v and check .collapse/logs"}
}
