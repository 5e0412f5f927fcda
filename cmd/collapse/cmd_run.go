package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"collapse/cmd/collapse/ui"
	"collapse/internal/collapse"
	"collapse/internal/export"
	"collapse/internal/mangle"
	"collapse/internal/scenarios"
	"collapse/internal/store"
	"collapse/internal/verification"
)

var (
	scenarioName string
	scenarioFile string
	printTrace   bool
	colorOutput  bool
	jsonOutput   bool
	verifyRun    bool
	saveRun      bool
	exportRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bundled scenario or a scenario file",
	Long: `Runs one scenario and prints the emitted sentence.

Examples:
  collapse run --scenario basic --print
  collapse run --file scenarios/kb.yaml --verify --save`,
	Args: cobra.NoArgs,
	RunE: runScenarioCmd,
}

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every bundled scenario concurrently and verify each",
	Args:  cobra.NoArgs,
	RunE:  runAllCmdE,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run a scenario (or reload a saved run) and check its invariants",
	Args:  cobra.NoArgs,
	RunE:  verifyCmdE,
}

var runID string

func init() {
	for _, c := range []*cobra.Command{runCmd, verifyCmd, whyCmd, reportCmd} {
		c.Flags().StringVarP(&scenarioName, "scenario", "s", "basic", "Bundled scenario name")
		c.Flags().StringVarP(&scenarioFile, "file", "f", "", "YAML scenario file (overrides --scenario)")
		c.Flags().BoolVar(&colorOutput, "color", false, "Colorize output")
	}
	for _, c := range []*cobra.Command{verifyCmd, whyCmd, reportCmd} {
		c.Flags().StringVar(&runID, "run-id", "", "Use a saved run from the history store")
	}

	runCmd.Flags().BoolVar(&printTrace, "print", false, "Print the trace and ledger tables")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run and its verification as JSON")
	runCmd.Flags().BoolVar(&verifyRun, "verify", false, "Verify the run; exit 1 on violations")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Save the run to the history store")
	runCmd.Flags().BoolVar(&exportRun, "export", false, "Write trace and ledger artifacts")
	runAllCmd.Flags().BoolVar(&exportRun, "export", false, "Write each scenario's artifacts under <artifacts_dir>/<scenario>")
}

func styles() ui.Styles {
	if colorOutput {
		return ui.DefaultStyles()
	}
	return ui.PlainStyles()
}

func factConfig() mangle.Config {
	return mangle.Config{
		FactLimit:    cfg.Facts.FactLimit,
		QueryTimeout: cfg.GetQueryTimeout(),
		AutoEval:     true,
	}
}

// loadScenario resolves --file or --scenario.
func loadScenario(name, file string) (*scenarios.Scenario, error) {
	if file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(workspace, file)
		}
		return scenarios.LoadFile(file, factConfig())
	}
	return scenarios.Lookup(name)
}

// outcome is one executed scenario.
type outcome struct {
	Scenario     string              `json:"scenario"`
	Run          *collapse.Run       `json:"run"`
	Verification verification.Result `json:"verification"`
	Err          error               `json:"-"`
}

// execute runs the scenario under the loaded configuration and records
// metrics. A construction error still yields the partial run.
func execute(sc *scenarios.Scenario) outcome {
	start := time.Now()
	run, err := sc.Run(cfg.Engine.StrictContext, cfg.Ranker.Preferences)
	elapsed := time.Since(start)
	recorder.ObserveRun(run, err, elapsed)

	out := outcome{Scenario: sc.Name, Run: run, Err: err}
	if run != nil {
		out.Verification = verification.VerifyRun(run)
		recorder.ObserveVerification(out.Verification)
	}

	fields := []zap.Field{zap.String("scenario", sc.Name), zap.Duration("elapsed", elapsed)}
	if run != nil {
		fields = append(fields, zap.String("run_id", run.ID), zap.Int("ledger_rows", len(run.Ledger)))
	}
	if err != nil {
		logger.Warn("scenario run failed", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("scenario run complete", fields...)
	}
	return out
}

func openStore() (*store.RunStore, error) {
	path := cfg.Store.DatabasePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	return store.NewRunStore(path)
}

func save(ctx context.Context, o outcome) (string, error) {
	if !cfg.Store.Enabled {
		return "", fmt.Errorf("store is disabled in config (store.enabled)")
	}
	s, err := openStore()
	if err != nil {
		return "", err
	}
	defer s.Close()
	return s.SaveRun(ctx, store.RecordFromRun(o.Scenario, o.Run, o.Verification.OK))
}

func runScenarioCmd(cmd *cobra.Command, args []string) error {
	sc, err := loadScenario(scenarioName, scenarioFile)
	if err != nil {
		return err
	}
	o := execute(sc)
	w := cmd.OutOrStdout()
	st := styles()

	if jsonOutput {
		if err := writeJSON(w, o); err != nil {
			return err
		}
	} else if o.Run != nil {
		showTables := printTrace || o.Err != nil
		// A run aborted at step 1 has no sentence to print.
		if len(o.Run.Emitted) > 0 {
			fmt.Fprintln(w, st.Bold.Render(o.Run.Text()))
			if showTables {
				fmt.Fprintln(w)
			}
		}
		if showTables {
			fmt.Fprint(w, ui.TraceView(o.Run, st))
			fmt.Fprintln(w)
			fmt.Fprint(w, ui.LedgerView(o.Run.Ledger, st))
		}
	}
	if o.Err != nil {
		return o.Err
	}

	if exportRun {
		if err := exportArtifacts(o.Run, ""); err != nil {
			return err
		}
	}

	if saveRun {
		id, err := save(cmdContext(cmd), o)
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(w, "saved %s\n", id)
		}
	}

	if verifyRun {
		if !jsonOutput {
			fmt.Fprint(w, ui.VerificationView(o.Verification, st))
		}
		if !o.Verification.OK {
			return errVerifyFailed
		}
	}
	return nil
}

// artifactsDir resolves export.artifacts_dir against the workspace.
func artifactsDir() string {
	dir := cfg.Export.ArtifactsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(workspace, dir)
	}
	return dir
}

// exportArtifacts writes the configured formats for run into the artifacts
// directory, or into its sub directory when sub is set.
func exportArtifacts(run *collapse.Run, sub string) error {
	formats, err := export.ParseFormats(cfg.Export.Formats)
	if err != nil {
		return err
	}
	dir := artifactsDir()
	if sub != "" {
		dir = filepath.Join(dir, sub)
	}
	paths, err := export.WriteArtifacts(dir, run, formats)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info("artifact written", zap.String("path", p))
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAllCmdE(cmd *cobra.Command, args []string) error {
	names := scenarios.Names()
	results := make([]outcome, len(names))

	g, _ := errgroup.WithContext(cmdContext(cmd))
	for i, name := range names {
		g.Go(func() error {
			sc, err := scenarios.Lookup(name)
			if err != nil {
				return err
			}
			results[i] = execute(sc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var failed []string
	for _, o := range results {
		status := "ok"
		switch {
		case o.Err != nil:
			status = "error: " + o.Err.Error()
			failed = append(failed, o.Scenario)
		case !o.Verification.OK:
			status = "verify failed: " + o.Verification.Summary()
			failed = append(failed, o.Scenario)
		}
		text := ""
		if o.Run != nil {
			text = o.Run.Text()
		}
		fmt.Fprintf(w, "%-6s %-50s %s\n", o.Scenario, text, status)
	}
	if exportRun {
		for _, o := range results {
			if o.Run == nil {
				continue
			}
			if err := exportArtifacts(o.Run, o.Scenario); err != nil {
				return err
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", errVerifyFailed, failed)
	}
	return nil
}

// loadRun resolves --run-id from the store, otherwise runs the scenario.
func loadRun(ctx context.Context) (*collapse.Run, error) {
	if runID != "" {
		s, err := openStore()
		if err != nil {
			return nil, err
		}
		defer s.Close()
		rec, err := s.LoadRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		return runFromRecord(rec), nil
	}

	sc, err := loadScenario(scenarioName, scenarioFile)
	if err != nil {
		return nil, err
	}
	o := execute(sc)
	var construction *collapse.ConstructionError
	if o.Err != nil && !errors.As(o.Err, &construction) {
		return nil, o.Err
	}
	// A construction error leaves a partial run worth explaining.
	return o.Run, nil
}

// runFromRecord rebuilds the parts of a run the verifier and explainer read.
func runFromRecord(rec *store.RunRecord) *collapse.Run {
	run := &collapse.Run{
		ID:     rec.ID,
		Trace:  rec.Trace,
		Ledger: rec.Ledger,
	}
	for _, row := range rec.Trace {
		run.Emitted = append(run.Emitted, row.Choice)
		run.Candidates = append(run.Candidates, row.Candidates)
	}
	return run
}

func verifyCmdE(cmd *cobra.Command, args []string) error {
	run, err := loadRun(cmdContext(cmd))
	if err != nil {
		return err
	}
	res := verification.VerifyRun(run)
	recorder.ObserveVerification(res)
	fmt.Fprint(cmd.OutOrStdout(), ui.VerificationView(res, styles()))
	if !res.OK {
		return errVerifyFailed
	}
	return nil
}
