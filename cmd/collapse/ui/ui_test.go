package ui

import (
	"strings"
	"testing"

	"collapse/internal/collapse"
	"collapse/internal/verification"
)

func TestDetectTheme(t *testing.T) {
	t.Setenv("COLORFGBG", "")
	t.Setenv("COLLAPSE_DARK_MODE", "1")
	if !DetectTheme().IsDark {
		t.Fatalf("expected dark theme when COLLAPSE_DARK_MODE=1")
	}

	t.Setenv("COLLAPSE_DARK_MODE", "")
	if DetectTheme().IsDark {
		t.Fatalf("expected light theme when COLLAPSE_DARK_MODE is unset")
	}
}

func TestSimpleTable(t *testing.T) {
	table := NewSimpleTable("Test Table", []string{"Col1", "Col2"})
	if table.View(PlainStyles()) != "" {
		t.Fatalf("empty table should render nothing")
	}
	table.AddRow("Row1Col1", "Row1Col2")

	view := table.View(PlainStyles())
	if !strings.Contains(view, "Test Table") {
		t.Error("View missing title")
	}
	if !strings.Contains(view, "Row1Col1") {
		t.Error("View missing cell content")
	}
}

func TestRunViews(t *testing.T) {
	run := &collapse.Run{
		Trace: []collapse.TraceRow{
			{Step: 1, Candidates: []string{"a", "b"}, Survivors: []string{"a"}, Choice: "a", Mode: collapse.ModeUnique},
		},
		Ledger: []collapse.LedgerEntry{{Step: 1, Token: "b", Reasons: []string{"x:no", "y:no"}}},
	}
	styles := PlainStyles()

	trace := TraceView(run, styles)
	if !strings.Contains(trace, "a, b") || !strings.Contains(trace, "unique") {
		t.Errorf("trace view missing content:\n%s", trace)
	}
	ledger := LedgerView(run.Ledger, styles)
	if !strings.Contains(ledger, "x:no; y:no") {
		t.Errorf("ledger view missing reasons:\n%s", ledger)
	}
	if !strings.Contains(LedgerView(nil, styles), "no eliminations") {
		t.Errorf("empty ledger view")
	}

	bad := verification.Result{Errors: []string{"Empty survivors at step 2"}}
	if !strings.Contains(VerificationView(bad, styles), "Empty survivors at step 2") {
		t.Errorf("verification view missing message")
	}
}

func TestRenderMarkdownPlain(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nsome **bold** text\n", PlainStyles(), false)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "bold") {
		t.Errorf("rendered markdown missing text: %q", out)
	}
}
