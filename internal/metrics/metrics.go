// Package metrics counts what collapse runs do: committed steps by mode,
// ledger rows, construction errors and verification failures.
//
// Each Recorder owns a private registry, so tests and concurrent CLI
// commands never share counters. WriteText dumps the registry in the
// Prometheus text exposition format.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"collapse/internal/collapse"
	"collapse/internal/verification"
)

const namespace = "collapse"

// Recorder holds the collapse collectors.
type Recorder struct {
	registry *prometheus.Registry

	steps              *prometheus.CounterVec
	eliminations       prometheus.Counter
	constructionErrors prometheus.Counter
	verifyFailures     prometheus.Counter
	runs               *prometheus.CounterVec
	runDuration        prometheus.Histogram
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.steps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Committed steps by selection mode",
		},
		[]string{"mode"},
	)
	r.eliminations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eliminations_total",
		Help:      "Ledger rows written",
	})
	r.constructionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "construction_errors_total",
		Help:      "Runs aborted because a step had no survivors",
	})
	r.verifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verify_failures_total",
		Help:      "Verifications that reported at least one violation",
	})
	r.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome",
		},
		[]string{"outcome"},
	)
	r.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a sequence run",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	for _, c := range []prometheus.Collector{
		r.steps, r.eliminations, r.constructionErrors, r.verifyFailures, r.runs, r.runDuration,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ObserveRun records a finished or aborted run. run may be nil when the
// run never started.
func (r *Recorder) ObserveRun(run *collapse.Run, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case errors.Is(err, collapse.ErrEmptySurvivors):
		outcome = "construction_error"
		r.constructionErrors.Inc()
	case err != nil:
		outcome = "error"
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(elapsed.Seconds())

	if run == nil {
		return
	}
	for _, row := range run.Trace {
		r.steps.WithLabelValues(string(row.Mode)).Inc()
	}
	r.eliminations.Add(float64(len(run.Ledger)))
}

// ObserveVerification counts failed verifications.
func (r *Recorder) ObserveVerification(res verification.Result) {
	if !res.OK {
		r.verifyFailures.Inc()
	}
}

// WriteText writes every collapse metric in text exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
