package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collapse/internal/collapse"
	"collapse/internal/scenarios"
	"collapse/internal/verification"
)

func TestObserveRun(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)

	sc, err := scenarios.Lookup("basic")
	require.NoError(t, err)
	run, err := sc.Run(true, nil)
	require.NoError(t, err)

	rec.ObserveRun(run, nil, time.Millisecond)

	unique := testutil.ToFloat64(rec.steps.WithLabelValues(string(collapse.ModeUnique)))
	ranker := testutil.ToFloat64(rec.steps.WithLabelValues(string(collapse.ModeRanker)))
	assert.Equal(t, float64(len(run.Trace)), unique+ranker)
	assert.Equal(t, 2.0, ranker)
	assert.Equal(t, float64(len(run.Ledger)), testutil.ToFloat64(rec.eliminations))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("ok")))
	assert.Zero(t, testutil.ToFloat64(rec.constructionErrors))
}

func TestObserveConstructionError(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)

	sc, err := scenarios.Lookup("coref")
	require.NoError(t, err)
	sc.Steps[4] = []string{"!"}
	run, runErr := sc.Run(true, nil)
	require.Error(t, runErr)

	rec.ObserveRun(run, runErr, time.Millisecond)
	rec.ObserveVerification(verification.VerifyRun(run))

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.constructionErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.verifyFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("construction_error")))
}

func TestObserveNilRun(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)
	rec.ObserveRun(nil, collapse.ErrContextShape, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("error")))
}

func TestWriteText(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)
	rec.ObserveVerification(verification.Result{OK: true})
	rec.ObserveRun(&collapse.Run{Trace: []collapse.TraceRow{{Step: 1, Mode: collapse.ModeUnique}}}, nil, time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, rec.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "# TYPE collapse_steps_total counter")
	assert.Contains(t, out, `collapse_steps_total{mode="unique"} 1`)
	assert.Contains(t, out, "collapse_verify_failures_total 0")
	assert.Contains(t, out, "collapse_run_duration_seconds_bucket")
}
