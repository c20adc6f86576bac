// Package metrics records run statistics on a private Prometheus registry
// and writes them in the textfile exposition format at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	reg *prometheus.Registry

	oracleCalls   *prometheus.CounterVec
	oracleRetries prometheus.Counter
	oracleLatency *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	scores        prometheus.Histogram
	runDuration   prometheus.Gauge
	oracleTokens  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		oracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_oracle_calls_total",
			Help: "Oracle attempts by outcome.",
		}, []string{"outcome"}),
		oracleRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "autograder_oracle_retries_total",
			Help: "Oracle attempts retried after a transient failure.",
		}),
		oracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autograder_oracle_call_duration_seconds",
			Help:    "Oracle attempt latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}, []string{"outcome"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_submissions_total",
			Help: "Graded submissions by status.",
		}, []string{"status"}),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "autograder_submission_score_ratio",
			Help:    "Submission score as a fraction of total points.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "autograder_run_duration_seconds",
			Help: "Wall time of the grading run.",
		}),
		oracleTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autograder_oracle_tokens_total",
			Help: "Tokens used by the oracle.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) ObserveCall(outcome string, d time.Duration) {
	m.oracleCalls.WithLabelValues(outcome).Inc()
	m.oracleLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveRetry() {
	m.oracleRetries.Inc()
}

// ObserveSubmission records a finished submission. Failed submissions are
// counted but not added to the score distribution.
func (m *Metrics) ObserveSubmission(status string, score, total float64) {
	m.submissions.WithLabelValues(status).Inc()
	if status == "failed" || total <= 0 {
		return
	}
	m.scores.Observe(score / total)
}

func (m *Metrics) ObserveTokens(input, output int) {
	m.oracleTokens.WithLabelValues("input").Add(float64(input))
	m.oracleTokens.WithLabelValues("output").Add(float64(output))
}

func (m *Metrics) SetRunDuration(d time.Duration) {
	m.runDuration.Set(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WriteFile writes all metrics to path in the node exporter textfile format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
