package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"collapse/cmd/collapse/ui"
	"collapse/internal/transparency"
	"collapse/internal/verification"
)

var (
	rawMarkdown  bool
	historyLimit int
)

// whyCmd explains a single elimination
var whyCmd = &cobra.Command{
	Use:   "why STEP [TOKEN]",
	Short: "Explain why a token was eliminated at a step",
	Long: `Reads the ledger and trace of a run and explains one elimination.
Without TOKEN, summarizes the whole step.

Examples:
  collapse why 10 is
  collapse why 6 --scenario basic
  collapse why 2 called --run-id run-1a2b3c4d`,
	Args: cobra.RangeArgs(1, 2),
	RunE: whyCmdE,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a full markdown report of a run",
	Args:  cobra.NoArgs,
	RunE:  reportCmdE,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved runs",
	Args:  cobra.NoArgs,
	RunE:  historyCmdE,
}

func init() {
	whyCmd.Flags().BoolVar(&rawMarkdown, "raw", false, "Print markdown without rendering")
	reportCmd.Flags().BoolVar(&rawMarkdown, "raw", false, "Print markdown without rendering")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")
}

func printMarkdown(cmd *cobra.Command, md string) error {
	if rawMarkdown {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	out, err := ui.RenderMarkdown(md, styles(), colorOutput)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func whyCmdE(cmd *cobra.Command, args []string) error {
	step, err := strconv.Atoi(args[0])
	if err != nil || step < 1 {
		return fmt.Errorf("step must be a positive integer, got %q", args[0])
	}
	run, err := loadRun(cmdContext(cmd))
	if err != nil {
		return err
	}

	explainer := transparency.NewExplainer()
	if len(args) == 1 {
		return printMarkdown(cmd, explainer.ExplainStep(run, step))
	}
	return printMarkdown(cmd, explainer.ExplainElimination(run, step, args[1]))
}

func reportCmdE(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmdContext(cmd))
	if err != nil {
		return err
	}
	res := verification.VerifyRun(run)
	return printMarkdown(cmd, transparency.NewExplainer().Report(run, res))
}

func historyCmdE(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(cmdContext(cmd), historyLimit)
	if err != nil {
		return err
	}
	st := styles()
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), st.Muted.Render("no saved runs"))
		return nil
	}

	t := ui.NewSimpleTable("Run History", []string{"ID", "Scenario", "When", "Verified", "Output"})
	for _, r := range runs {
		verified := "no"
		if r.Verified {
			verified = "yes"
		}
		t.AddRow(r.ID, r.Scenario, r.CreatedAt.Local().Format(time.DateTime), verified, r.Text)
	}
	fmt.Fprint(cmd.OutOrStdout(), t.View(st))
	return nil
}
