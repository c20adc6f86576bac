package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/pricing"
	"github.com/signalnine/autograder/internal/result"
	"github.com/signalnine/autograder/internal/rubric"
)

var Formats = []string{"table", "markdown", "json", "csv", "tsv"}

// Table is the aggregated grade sheet: one row per result in the order the
// results were given.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Aggregate builds the grade sheet. Every rubric criterion gets a deduction
// column and a rationale column, whether or not any submission triggered it.
func Aggregate(r *rubric.Rubric, results []*grading.Result) *Table {
	criteria := r.Criteria()
	t := &Table{Header: []string{"student_id", "source", "score", "total", "status"}}
	for _, c := range criteria {
		t.Header = append(t.Header, c.ID+" deduction", c.ID+" rationale")
	}
	t.Header = append(t.Header, "confidence", "warnings", "error")

	for _, res := range results {
		row := []string{
			res.StudentID,
			filepath.Base(res.SourcePath),
			rubric.FormatPoints(res.RawScore),
			rubric.FormatPoints(res.TotalPoints),
			string(res.Status),
		}
		for _, c := range criteria {
			it, ok := res.Item(c.ID)
			if !ok {
				row = append(row, "", "")
				continue
			}
			// Not-graded criteria deduct nothing and say so.
			row = append(row, rubric.FormatPoints(it.Applied), rationale(it))
		}
		confidence := ""
		if res.Confidence > 0 {
			confidence = rubric.FormatPoints(res.Confidence)
		}
		row = append(row, confidence, strings.Join(res.Warnings, "; "), res.Error)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func rationale(it grading.Item) string {
	if it.ErrorKind != "" || len(it.Triggered) == 0 {
		return it.Rationale
	}
	var rules []string
	for _, tr := range it.Triggered {
		if tr.Occurrences > 1 {
			rules = append(rules, fmt.Sprintf("%s x%d", tr.RuleID, tr.Occurrences))
		} else {
			rules = append(rules, tr.RuleID)
		}
	}
	text := "[" + strings.Join(rules, ", ") + "]"
	if it.Rationale != "" {
		text += " " + it.Rationale
	}
	return text
}

// SortRows returns results ordered by "student", "source" or "score"
// (highest first). Any other key keeps the input order.
func SortRows(results []*grading.Result, by string) []*grading.Result {
	out := append([]*grading.Result(nil), results...)
	var less func(a, b *grading.Result) bool
	switch by {
	case "student":
		less = func(a, b *grading.Result) bool { return strings.ToLower(a.StudentID) < strings.ToLower(b.StudentID) }
	case "source":
		less = func(a, b *grading.Result) bool { return a.SourcePath < b.SourcePath }
	case "score":
		less = func(a, b *grading.Result) bool { return a.RawScore > b.RawScore }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Write renders t in the named format.
func Write(t *Table, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(t, w)
	case "json":
		return writeJSON(t, w)
	case "csv":
		return writeDelimited(t, w, ',')
	case "tsv":
		return writeDelimited(t, w, '\t')
	case "table", "":
		return writeTable(t, w)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// Extension is the file extension used when a table is saved in format.
func Extension(format string) string {
	switch format {
	case "markdown":
		return ".md"
	case "json", "csv", "tsv":
		return "." + format
	default:
		return ".txt"
	}
}

// Generate re-renders a stored run: its grade sheet followed by a summary.
// When pricingPath is set, recorded oracle usage is priced.
func Generate(runDir, format string, w io.Writer, pricingPath string) error {
	r, err := rubric.Load(filepath.Join(runDir, result.RubricFile))
	if err != nil {
		return err
	}
	results, err := result.ReadBreakdowns(runDir)
	if err != nil {
		return err
	}
	if err := Write(Aggregate(r, results), format, w); err != nil {
		return err
	}
	if format == "json" || format == "csv" || format == "tsv" {
		return nil
	}
	sum := Summarize(results)
	if pricingPath != "" {
		sum.CostUSD = usageCost(runDir, pricingPath)
	}
	fmt.Fprintln(w)
	return WriteSummary(sum, w)
}

func usageCost(runDir, pricingPath string) float64 {
	table, err := pricing.Load(pricingPath)
	if err != nil {
		return 0
	}
	records, err := oracle.ParseUsageLog(filepath.Join(runDir, result.UsageFile))
	if err != nil {
		return 0
	}
	return table.UsageCost(records)
}

func writeTable(t *Table, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	upper := make([]string, len(t.Header))
	for i, h := range t.Header {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = oneLine(c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(t *Table, w io.Writer) error {
	fmt.Fprintln(w, "| "+strings.Join(t.Header, " | ")+" |")
	fmt.Fprintln(w, "|"+strings.Repeat("---|", len(t.Header)))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(oneLine(c), "|", `\|`)
		}
		fmt.Fprintln(w, "| "+strings.Join(cells, " | ")+" |")
	}
	return nil
}

func writeJSON(t *Table, w io.Writer) error {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeDelimited(t *Table, w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range t.Rows {
		if comma == '\t' {
			row = tabSafe(row)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func tabSafe(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ReplaceAll(oneLine(c), "\t", " ")
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
