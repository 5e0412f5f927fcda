package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"collapse/internal/collapse"
	"collapse/internal/verification"
)

// TraceView renders the trace of a run, one row per step.
func TraceView(run *collapse.Run, styles Styles) string {
	t := NewSimpleTable("Trace", []string{"Step", "Candidates", "Survivors", "Choice", "Mode", "Residual"})
	for _, row := range run.Trace {
		t.AddRow(
			strconv.Itoa(row.Step),
			strings.Join(row.Candidates, ", "),
			strings.Join(row.Survivors, ", "),
			styles.Choice.Render(row.Choice),
			string(row.Mode),
			strconv.FormatFloat(row.Residual, 'g', -1, 64),
		)
	}
	return t.View(styles)
}

// LedgerView renders the elimination ledger.
func LedgerView(ledger []collapse.LedgerEntry, styles Styles) string {
	if len(ledger) == 0 {
		return styles.Muted.Render("(no eliminations)") + "\n"
	}
	t := NewSimpleTable("Ledger", []string{"Step", "Eliminated_Token", "Reasons"})
	for _, e := range ledger {
		t.AddRow(strconv.Itoa(e.Step), e.Token, strings.Join(e.Reasons, "; "))
	}
	return t.View(styles)
}

// VerificationView renders a one-line verdict followed by any violations.
func VerificationView(res verification.Result, styles Styles) string {
	if res.OK {
		return styles.Success.Render("verification passed") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(styles.Error.Render(fmt.Sprintf("verification failed (%d)", len(res.Errors))))
	sb.WriteString("\n")
	for _, msg := range res.Errors {
		sb.WriteString("  - " + msg + "\n")
	}
	return sb.String()
}

// RenderMarkdown renders markdown for the terminal. With styled false the
// notty style is used, which keeps the output free of escape codes.
func RenderMarkdown(md string, styles Styles, styled bool) (string, error) {
	stylePath := "notty"
	if styled {
		stylePath = "light"
		if styles.Theme.IsDark {
			stylePath = "dark"
		}
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath(stylePath),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
