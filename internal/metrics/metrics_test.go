package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autograder/internal/metrics"
	"github.com/signalnine/autograder/internal/oracle"
)

var _ oracle.Observer = (*metrics.Metrics)(nil)

func TestMetricsCounts(t *testing.T) {
	m := metrics.New()
	m.ObserveCall("ok", 300*time.Millisecond)
	m.ObserveCall("ok", time.Second)
	m.ObserveCall("timeout", 2*time.Minute)
	m.ObserveRetry()
	m.ObserveSubmission("complete", 9.9, 10)
	m.ObserveSubmission("failed", 0, 10)
	m.ObserveTokens(1200, 300)

	n, err := testutil.GatherAndCount(m.Registry(), "autograder_oracle_calls_total", "autograder_oracle_retries_total", "autograder_submissions_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	expected := `
# HELP autograder_oracle_calls_total Oracle attempts by outcome.
# TYPE autograder_oracle_calls_total counter
autograder_oracle_calls_total{outcome="ok"} 2
autograder_oracle_calls_total{outcome="timeout"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "autograder_oracle_calls_total"))

	tokens := `
# HELP autograder_oracle_tokens_total Tokens used by the oracle.
# TYPE autograder_oracle_tokens_total counter
autograder_oracle_tokens_total{direction="input"} 1200
autograder_oracle_tokens_total{direction="output"} 300
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(tokens), "autograder_oracle_tokens_total"))
}

func TestWriteFile(t *testing.T) {
	m := metrics.New()
	m.ObserveSubmission("partially_graded", 10, 10)
	m.SetRunDuration(90 * time.Second)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `autograder_submissions_total{status="partially_graded"} 1`)
	assert.Contains(t, out, "autograder_run_duration_seconds 90")
}
