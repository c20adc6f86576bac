package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/rubric"
)

// WriteBreakdown renders one student's grading in plain text.
func WriteBreakdown(res *grading.Result, w io.Writer) error {
	fmt.Fprintf(w, "Student: %s\n", res.StudentID)
	fmt.Fprintf(w, "Source: %s\n", res.SourcePath)
	fmt.Fprintf(w, "Score: %s / %s (%s)\n", rubric.FormatPoints(res.RawScore), rubric.FormatPoints(res.TotalPoints), res.Status)
	if res.Confidence > 0 {
		fmt.Fprintf(w, "Confidence: %s\n", rubric.FormatPoints(res.Confidence))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	section := ""
	for _, it := range res.Items {
		if it.Section != section {
			section = it.Section
			fmt.Fprintf(w, "\n%s:\n", section)
		}
		if it.ErrorKind != "" {
			fmt.Fprintf(w, "  %s %s: %s\n", it.CriterionID, it.Description, it.Rationale)
			continue
		}
		fmt.Fprintf(w, "  %s %s: -%s of -%s\n", it.CriterionID, it.Description,
			rubric.FormatPoints(it.Applied), rubric.FormatPoints(it.MaxDeduction))
		for _, tr := range it.Triggered {
			line := fmt.Sprintf("    %s x%d", tr.RuleID, tr.Occurrences)
			if tr.Evidence != "" {
				line += ": " + strings.TrimSpace(tr.Evidence)
			}
			fmt.Fprintln(w, line)
		}
		if it.Rationale != "" {
			fmt.Fprintf(w, "    %s\n", it.Rationale)
		}
	}
	return nil
}
