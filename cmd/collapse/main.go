package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"collapse/internal/config"
	"collapse/internal/logging"
	"collapse/internal/metrics"
	"collapse/internal/transparency"
)

var (
	// Global flags
	verbose     bool
	workspace   string
	dumpMetrics bool

	logger   *zap.Logger
	cfg      *config.Config
	recorder *metrics.Recorder
)

// errVerifyFailed marks a run whose verification reported violations.
var errVerifyFailed = errors.New("verification failed")

var rootCmd = &cobra.Command{
	Use:   "collapse",
	Short: "Deterministic prune, eliminate, select text construction",
	Long: `collapse builds a token sequence one step at a time. Each step prunes
the candidates with a conjunction of kernels, records every elimination
with its reasons in a ledger, and commits exactly one survivor.

Runs are deterministic: the same context, kernels and candidates always
produce the same sentence, trace and ledger.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return setup()
	},
}

// setup resolves the workspace and loads configuration, file logging and
// the metrics recorder.
func setup() error {
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workspace = wd
	}

	if err := logging.Initialize(workspace); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}
	if err := logging.InitAudit(); err != nil {
		logger.Warn("audit logging disabled", zap.Error(err))
	}

	var err error
	cfg, err = config.Load(config.DefaultPath(workspace))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Logging.ApplyLevel()
	if verbose {
		logging.SetLevel("debug")
	}
	logging.Boot("workspace %s, strict_context=%v, log level %s", workspace, cfg.Engine.StrictContext, logging.Level())
	logger.Debug("configuration loaded",
		zap.String("workspace", workspace),
		zap.Bool("strict_context", cfg.Engine.StrictContext),
		zap.Bool("store", cfg.Store.Enabled))

	recorder, err = metrics.NewRecorder()
	return err
}

// finish dumps metrics when --metrics is set and releases log files. It runs
// after every command, failed ones included; cobra skips post-run hooks when
// RunE returns an error.
func finish(w io.Writer) {
	if dumpMetrics && recorder != nil {
		if err := recorder.WriteText(w); err != nil && logger != nil {
			logger.Warn("metrics dump failed", zap.Error(err))
		}
	}
	teardown()
}

func teardown() {
	logging.CloseAudit()
	logging.CloseAll()
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Print run metrics in Prometheus text format on exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(whyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}

// exitCode maps a command error to the process status: verification
// failures exit 1, construction errors 2.
func exitCode(err error) int {
	if errors.Is(err, errVerifyFailed) {
		return 1
	}
	return transparency.ClassifyError(err).Category.ExitCode()
}

// runCLI executes args against the root command and returns the process
// exit status.
func runCLI(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	finish(stdout)
	if err == nil {
		return 0
	}
	if errors.Is(err, errVerifyFailed) {
		fmt.Fprintln(stderr, err)
	} else {
		fmt.Fprint(stderr, transparency.ClassifyError(err).Format())
	}
	return exitCode(err)
}

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}
