package grading

import (
	"fmt"
	"strings"

	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/rubric"
)

// Rescore recomputes stored results against r without calling the oracle.
// Stored triggered rules are re-applied with r's penalties and caps;
// criteria with no stored judgment are marked not_judged. Failed results
// without items are carried over unchanged.
func Rescore(r *rubric.Rubric, results []*Result) []*Result {
	out := make([]*Result, len(results))
	for i, old := range results {
		out[i] = rescoreOne(r, old)
	}
	return out
}

func rescoreOne(r *rubric.Rubric, old *Result) *Result {
	res := &Result{
		StudentID:      old.StudentID,
		SourcePath:     old.SourcePath,
		SubmissionHash: old.SubmissionHash,
		TotalPoints:    r.TotalPoints,
		Warnings:       identityWarnings(old.Warnings),
	}
	if old.Status == StatusFailed && len(old.Items) == 0 {
		res.Status = StatusFailed
		res.Error = old.Error
		return res
	}

	stored := make(map[string]Item, len(old.Items))
	for _, it := range old.Items {
		stored[it.CriterionID] = it
	}
	for _, c := range r.Criteria() {
		prev, ok := stored[c.ID]
		switch {
		case !ok:
			res.Items = append(res.Items, failedItem(c, oracle.KindNotJudged, fmt.Errorf("no stored judgment for %s", c.ID)))
		case prev.ErrorKind != "":
			it := baseItem(c)
			it.ErrorKind = prev.ErrorKind
			it.Rationale = prev.Rationale
			res.Items = append(res.Items, it)
		default:
			it, warnings := judgedItem(c, &oracle.Judgment{
				CriterionID: c.ID,
				Triggered:   prev.Triggered,
				Rationale:   prev.Rationale,
				Confidence:  prev.Confidence,
			})
			res.Items = append(res.Items, it)
			res.Warnings = append(res.Warnings, warnings...)
		}
	}
	finalize(res)
	return res
}

// identityWarnings keeps the warnings that do not depend on the rubric.
func identityWarnings(warnings []string) []string {
	var out []string
	for _, w := range warnings {
		if strings.HasPrefix(w, "identity:") {
			out = append(out, w)
		}
	}
	return out
}
