package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/signalnine/autograder/internal/config"
	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/pricing"
	"github.com/signalnine/autograder/internal/report"
	"github.com/signalnine/autograder/internal/result"
	"github.com/signalnine/autograder/internal/rubric"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func statusColor(s grading.Status) *color.Color {
	switch s {
	case grading.StatusComplete:
		return okColor
	case grading.StatusPartial:
		return warnColor
	default:
		return failColor
	}
}

// progressPrinter prints one line per finished submission.
func progressPrinter(w io.Writer) func(grading.Event) {
	return func(ev grading.Event) {
		c := statusColor(ev.Status)
		score := rubric.FormatPoints(ev.RawScore)
		if ev.Status == grading.StatusFailed {
			score = "-"
		}
		fmt.Fprintf(w, "[%d/%d] %-24s %-8s %s\n", ev.Done, ev.Total, ev.StudentID, score,
			c.Sprint(ev.Status))
	}
}

// writeRun stores a finished run: the rubric, one breakdown per result in
// JSON and text, the aggregated results file and the manifest. It returns
// the results file path.
func writeRun(runDir, rubricText string, r *rubric.Rubric, results []*grading.Result, rc config.Results, m *result.Manifest) (string, error) {
	if err := result.WriteRubric(runDir, rubricText); err != nil {
		return "", err
	}
	for i, res := range results {
		if err := result.WriteBreakdown(runDir, i, res); err != nil {
			return "", err
		}
		if err := writeTextBreakdown(runDir, i, res); err != nil {
			slog.Warn("could not write text breakdown", "student", res.StudentID, "err", err)
		}
	}

	path := filepath.Join(runDir, "results"+report.Extension(rc.Format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()
	if err := report.Write(report.Aggregate(r, report.SortRows(results, rc.Sort)), rc.Format, f); err != nil {
		return "", fmt.Errorf("writing results: %w", err)
	}

	m.TotalPoints = r.TotalPoints
	m.Count(results)
	if err := result.WriteManifest(runDir, m); err != nil {
		return "", err
	}
	return path, nil
}

func writeTextBreakdown(runDir string, index int, res *grading.Result) error {
	f, err := os.Create(result.BreakdownPath(runDir, index, res, ".txt"))
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteBreakdown(res, f)
}

// usageCost prices usage records with the configured pricing table. Without
// one the cost is unknown and reported as zero.
func usageCost(cfg *config.Config, records []oracle.UsageRecord) float64 {
	if cfg.Pricing.File == "" || len(records) == 0 {
		return 0
	}
	table, err := pricing.Load(cfg.Pricing.File)
	if err != nil {
		slog.Warn("could not load pricing", "file", cfg.Pricing.File, "err", err)
		return 0
	}
	return table.UsageCost(records)
}

func printSummary(w io.Writer, results []*grading.Result, cost float64, path string) {
	sum := report.Summarize(results)
	sum.CostUSD = cost
	fmt.Fprintln(w)
	report.WriteSummary(sum, w)
	if sum.Failed > 0 {
		failColor.Fprintf(w, "%d submission(s) failed; see the error column\n", sum.Failed)
	}
	fmt.Fprintf(w, "Results: %s\n", path)
}
