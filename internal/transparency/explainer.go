package transparency

import (
	"fmt"
	"sort"
	"strings"

	"collapse/internal/collapse"
	"collapse/internal/verification"
)

// Explainer builds markdown explanations from a run's trace and ledger.
type Explainer struct {
	maxRows     int
	showDetails bool
}

// NewExplainer creates an explainer with default settings.
func NewExplainer() *Explainer {
	return &Explainer{
		maxRows:     50,
		showDetails: true,
	}
}

// SetMaxRows caps the number of ledger rows listed in a report. Zero or
// less lists all of them.
func (e *Explainer) SetMaxRows(n int) {
	e.maxRows = n
}

// SetShowDetails toggles the residual and digest footer.
func (e *Explainer) SetShowDetails(show bool) {
	e.showDetails = show
}

// ExplainElimination says why token was dropped at the 1-based step.
func (e *Explainer) ExplainElimination(run *collapse.Run, step int, token string) string {
	row, ok := traceRow(run, step)
	if !ok {
		return fmt.Sprintf("Step %d is not part of this run.", step)
	}

	for _, entry := range run.Ledger {
		if entry.Step != step || entry.Token != token {
			continue
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("## Why `%s` was eliminated at step %d\n\n", token, step))
		sb.WriteString("Rejected by:\n\n")
		for _, r := range entry.Reasons {
			sb.WriteString(fmt.Sprintf("- `%s`%s\n", r, describeReason(r)))
		}
		sb.WriteString(fmt.Sprintf("\nThe step committed **%s** (%s).\n", row.Choice, row.Mode))
		return sb.String()
	}

	for _, s := range row.Survivors {
		if s == token {
			if s == row.Choice {
				return fmt.Sprintf("`%s` was not eliminated at step %d: it was committed (%s).", token, step, row.Mode)
			}
			return fmt.Sprintf("`%s` was not eliminated at step %d: it survived and was outranked by `%s`.", token, step, row.Choice)
		}
	}
	return fmt.Sprintf("`%s` was not a candidate at step %d.", token, step)
}

// ExplainStep summarizes one 1-based step: candidates, eliminations and the
// commit.
func (e *Explainer) ExplainStep(run *collapse.Run, step int) string {
	row, ok := traceRow(run, step)
	if !ok {
		return fmt.Sprintf("Step %d is not part of this run.", step)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Step %d\n\n", step))
	sb.WriteString(fmt.Sprintf("**Candidates**: %s\n\n", codeList(row.Candidates)))
	sb.WriteString(fmt.Sprintf("**Survivors**: %s\n\n", codeList(row.Survivors)))

	elims := ledgerAt(run.Ledger, step)
	if len(elims) > 0 {
		sb.WriteString("### Eliminated\n\n")
		for _, entry := range elims {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", entry.Token, strings.Join(entry.Reasons, ", ")))
		}
		sb.WriteString("\n")
	}

	switch row.Mode {
	case collapse.ModeUnique:
		sb.WriteString(fmt.Sprintf("Committed **%s**: the only survivor.\n", row.Choice))
	default:
		sb.WriteString(fmt.Sprintf("Committed **%s**: highest ranked of %d survivors.\n", row.Choice, len(row.Survivors)))
	}
	return sb.String()
}

// Report renders the whole run with its verification outcome.
func (e *Explainer) Report(run *collapse.Run, res verification.Result) string {
	var sb strings.Builder

	sb.WriteString("# Collapse Report\n\n")
	if run.ID != "" {
		sb.WriteString(fmt.Sprintf("**Run**: `%s`\n\n", run.ID))
	}
	sb.WriteString(fmt.Sprintf("**Output**: %s\n\n", run.Text()))

	if res.OK {
		sb.WriteString("**Verification**: passed\n\n")
	} else {
		sb.WriteString("**Verification**: FAILED\n\n")
		for _, msg := range res.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", msg))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Trace\n\n")
	sb.WriteString("| Step | Candidates | Survivors | Choice | Mode |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, row := range run.Trace {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			row.Step, strings.Join(row.Candidates, ", "), strings.Join(row.Survivors, ", "), row.Choice, row.Mode))
	}
	sb.WriteString("\n")

	sb.WriteString("## Ledger\n\n")
	if len(run.Ledger) == 0 {
		sb.WriteString("*No eliminations.*\n\n")
	} else {
		sb.WriteString("| Step | Token | Reasons |\n")
		sb.WriteString("|---|---|---|\n")
		for i, entry := range run.Ledger {
			if e.maxRows > 0 && i >= e.maxRows {
				sb.WriteString(fmt.Sprintf("\n*... %d more rows omitted*\n", len(run.Ledger)-i))
				break
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", entry.Step, entry.Token, strings.Join(entry.Reasons, ", ")))
		}
		sb.WriteString("\n")

		sb.WriteString("### Reasons by category\n\n")
		for _, c := range reasonCounts(run.Ledger) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", c.category, c.count))
		}
		sb.WriteString("\n")
	}

	if e.showDetails {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("*%d steps, %d ledger rows, digest %s*\n", len(run.Trace), len(run.Ledger), shortDigest(run.Digest())))
	}
	return sb.String()
}

func traceRow(run *collapse.Run, step int) (collapse.TraceRow, bool) {
	for _, row := range run.Trace {
		if row.Step == step {
			return row, true
		}
	}
	return collapse.TraceRow{}, false
}

func ledgerAt(ledger []collapse.LedgerEntry, step int) []collapse.LedgerEntry {
	var out []collapse.LedgerEntry
	for _, entry := range ledger {
		if entry.Step == step {
			out = append(out, entry)
		}
	}
	return out
}

func codeList(tokens []string) string {
	if len(tokens) == 0 {
		return "*none*"
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = "`" + t + "`"
	}
	return strings.Join(quoted, ", ")
}

type categoryCount struct {
	category string
	count    int
}

// reasonCounts tallies reason tags by their category prefix.
func reasonCounts(ledger []collapse.LedgerEntry) []categoryCount {
	counts := make(map[string]int)
	for _, entry := range ledger {
		for _, r := range entry.Reasons {
			counts[collapse.ReasonCategory(r)]++
		}
	}
	out := make([]categoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, categoryCount{category: c, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].category < out[j].category
	})
	return out
}

// describeReason gives a short gloss for the common reason categories.
func describeReason(tag string) string {
	descriptions := map[string]string{
		"grammar": "grammatical category",
		"role":    "semantic role",
		"tense":   "tense agreement",
		"coref":   "coreference",
		"kb":      "domain facts",
	}
	if d, ok := descriptions[collapse.ReasonCategory(tag)]; ok {
		return " (" + d + ")"
	}
	return ""
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
