package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collapse/cmd/collapse/ui"
	"collapse/internal/scenarios"
	"collapse/internal/watch"
)

var watchFiles []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run scenario files whenever they change",
	Long: `Runs each scenario file once, then again every time it is saved.
Each run prints the sentence and the verification verdict.

Example:
  collapse watch --file scenarios/kb.yaml`,
	Args: cobra.NoArgs,
	RunE: watchCmdE,
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchFiles, "file", "f", nil, "Scenario file to watch (repeatable)")
	watchCmd.MarkFlagRequired("file")
}

// rerun loads and runs one scenario file, printing the outcome. Load and run
// errors are printed, never returned, so the watcher keeps going.
func rerun(cmd *cobra.Command) watch.Handler {
	return func(_ context.Context, path string) {
		w := cmd.OutOrStdout()
		st := styles()

		sc, err := scenarios.LoadFile(path, factConfig())
		if err != nil {
			logger.Warn("scenario reload failed", zap.String("path", path), zap.Error(err))
			fmt.Fprintln(w, st.Error.Render(fmt.Sprintf("%s: %v", filepath.Base(path), err)))
			return
		}
		o := execute(sc)
		if o.Err != nil {
			fmt.Fprintln(w, st.Error.Render(fmt.Sprintf("%s: %v", sc.Name, o.Err)))
		}
		if o.Run != nil {
			fmt.Fprintf(w, "%s: %s\n", sc.Name, st.Bold.Render(o.Run.Text()))
			fmt.Fprint(w, ui.VerificationView(o.Verification, st))
		}
	}
}

func watchCmdE(cmd *cobra.Command, args []string) error {
	files := make([]string, len(watchFiles))
	for i, f := range watchFiles {
		if !filepath.IsAbs(f) {
			f = filepath.Join(workspace, f)
		}
		files[i] = f
	}

	sw, err := watch.NewScenarioWatcher(files, rerun(cmd))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sw.Trigger(ctx)
	if err := sw.Start(ctx); err != nil {
		sw.Stop()
		return err
	}
	logger.Info("watching scenario files", zap.Strings("files", files))

	<-ctx.Done()
	sw.Stop()
	return nil
}
