package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collapse/internal/collapse"
	"collapse/internal/config"
	"collapse/internal/metrics"
)

// setupCLI resets the globals the commands read and returns a command
// whose output is captured.
func setupCLI(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	workspace = t.TempDir()
	cfg = config.DefaultConfig()
	var err error
	recorder, err = metrics.NewRecorder()
	require.NoError(t, err)

	scenarioName, scenarioFile, runID = "basic", "", ""
	printTrace, colorOutput, jsonOutput = false, false, false
	verifyRun, saveRun, exportRun, rawMarkdown = false, false, false, true
	historyLimit = 20
	verbose, dumpMetrics = false, false
	t.Cleanup(func() { workspace = "" })

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	return cmd, &out
}

func TestRunPrintsSentence(t *testing.T) {
	cmd, out := setupCLI(t)
	verifyRun = true
	require.NoError(t, runScenarioCmd(cmd, nil))
	assert.Contains(t, out.String(), "Alice emailed Bob and told him that the budget was approved .")
	assert.Contains(t, out.String(), "verification passed")
}

func TestRunPrintTables(t *testing.T) {
	cmd, out := setupCLI(t)
	scenarioName = "kb"
	printTrace = true
	require.NoError(t, runScenarioCmd(cmd, nil))
	assert.Contains(t, out.String(), "Trace")
	assert.Contains(t, out.String(), "kb:city_matches_country")
}

func TestRunJSON(t *testing.T) {
	cmd, out := setupCLI(t)
	scenarioName = "tense"
	jsonOutput = true
	require.NoError(t, runScenarioCmd(cmd, nil))

	var got struct {
		Scenario string `json:"scenario"`
		Run      struct {
			Emitted []string `json:"emitted"`
		} `json:"run"`
		Verification struct {
			OK bool `json:"ok"`
		} `json:"verification"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "tense", got.Scenario)
	assert.Equal(t, "the team completed the project and celebrated .", strings.Join(got.Run.Emitted, " "))
	assert.True(t, got.Verification.OK)
}

func TestRunExportWritesArtifacts(t *testing.T) {
	cmd, _ := setupCLI(t)
	exportRun = true
	cfg.Export.Formats = []string{"csv", "mangle"}
	require.NoError(t, runScenarioCmd(cmd, nil))

	for _, name := range []string{"trace.csv", "ledger.csv", "ledger.mg"} {
		_, err := os.Stat(filepath.Join(workspace, "artifacts", name))
		assert.NoError(t, err, name)
	}
}

func TestConstructionErrorExitsTwo(t *testing.T) {
	cmd, out := setupCLI(t)
	path := filepath.Join(workspace, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
kernels:
  - type: require
    require:
      1: {token: "b", tag: "pick:b"}
steps:
  - ["a"]
  - ["x", "y"]
`), 0644))
	scenarioFile = "bad.yaml"

	err := runScenarioCmd(cmd, nil)
	require.Error(t, err)
	var ce *collapse.ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Step)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out.String(), "pick:b")
}

func writeDeadScenario(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dead.yaml"), []byte(`
name: dead
kernels:
  - type: require
    require:
      0: {token: "b", tag: "pick:b"}
steps:
  - ["x", "y"]
`), 0644))
}

func TestAbortAtFirstStepSkipsSentence(t *testing.T) {
	cmd, out := setupCLI(t)
	writeDeadScenario(t, workspace)
	scenarioFile = "dead.yaml"

	err := runScenarioCmd(cmd, nil)
	require.ErrorIs(t, err, collapse.ErrEmptySurvivors)
	assert.False(t, strings.HasPrefix(out.String(), "\n"), "output starts with a blank line: %q", out.String())
	assert.Contains(t, out.String(), "pick:b")
}

func TestMetricsDumpedWhenCommandFails(t *testing.T) {
	setupCLI(t)
	dir := workspace
	writeDeadScenario(t, dir)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		dumpMetrics = false
	})

	var stdout, stderr bytes.Buffer
	code := runCLI([]string{"-w", dir, "--metrics", "run", "--file", "dead.yaml"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "collapse_construction_errors_total 1")
	assert.Contains(t, stdout.String(), `collapse_runs_total{outcome="construction_error"} 1`)
	assert.NotEmpty(t, stderr.String())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 1, exitCode(errVerifyFailed))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}

func TestRunAll(t *testing.T) {
	cmd, out := setupCLI(t)
	require.NoError(t, runAllCmdE(cmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	for i, prefix := range []string{"basic", "coref", "tense", "kb"} {
		assert.True(t, strings.HasPrefix(lines[i], prefix), lines[i])
		assert.True(t, strings.HasSuffix(lines[i], "ok"), lines[i])
	}
}

func TestRunAllExportsPerScenario(t *testing.T) {
	cmd, _ := setupCLI(t)
	exportRun = true
	cfg.Export.Formats = []string{"csv", "json"}
	require.NoError(t, runAllCmdE(cmd, nil))

	for _, name := range []string{"basic", "coref", "tense", "kb"} {
		for _, file := range []string{"trace.csv", "ledger.csv", "trace.json", "ledger.json"} {
			_, err := os.Stat(filepath.Join(workspace, "artifacts", name, file))
			assert.NoError(t, err, name+"/"+file)
		}
	}
}

func TestSaveHistoryAndReload(t *testing.T) {
	cmd, out := setupCLI(t)
	saveRun = true
	require.NoError(t, runScenarioCmd(cmd, nil))

	var id string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "saved ") {
			id = strings.TrimPrefix(line, "saved ")
		}
	}
	require.NotEmpty(t, id)

	out.Reset()
	require.NoError(t, historyCmdE(cmd, nil))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "basic")

	runID = id
	out.Reset()
	require.NoError(t, verifyCmdE(cmd, nil))
	assert.Contains(t, out.String(), "verification passed")

	out.Reset()
	require.NoError(t, whyCmdE(cmd, []string{"10", "is"}))
	assert.Contains(t, out.String(), "tense:must_be_past")
}

func TestHistoryEmpty(t *testing.T) {
	cmd, out := setupCLI(t)
	require.NoError(t, historyCmdE(cmd, nil))
	assert.Contains(t, out.String(), "no saved runs")
}

func TestWhyStep(t *testing.T) {
	cmd, out := setupCLI(t)
	require.NoError(t, whyCmdE(cmd, []string{"6"}))
	assert.Contains(t, out.String(), "## Step 6")

	assert.Error(t, whyCmdE(cmd, []string{"zero"}))
}

func TestReportRendered(t *testing.T) {
	cmd, out := setupCLI(t)
	rawMarkdown = false
	scenarioName = "coref"
	require.NoError(t, reportCmdE(cmd, nil))
	assert.Contains(t, out.String(), "Collapse Report")
	assert.Contains(t, out.String(), "She presented the results .")
}

func TestMetricsAfterRun(t *testing.T) {
	cmd, _ := setupCLI(t)
	require.NoError(t, runScenarioCmd(cmd, nil))

	var buf bytes.Buffer
	require.NoError(t, recorder.WriteText(&buf))
	assert.Contains(t, buf.String(), `collapse_runs_total{outcome="ok"} 1`)
}
