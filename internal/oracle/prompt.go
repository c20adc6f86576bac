package oracle

import (
	"fmt"
	"strings"

	"github.com/signalnine/autograder/internal/rubric"
)

// SystemPrompt frames the grading session for one assignment.
func SystemPrompt(assignmentName, assignmentPrompt, language string) string {
	if assignmentName == "" {
		assignmentName = "an unnamed assignment"
	}
	class := "a programming class"
	if language != "" {
		class = "a " + language + " programming class"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI grader for %s. You are grading an assignment called %s. ", class, assignmentName)
	b.WriteString("You will be shown one scoring criterion at a time together with a student's submission. ")
	b.WriteString("Decide which of the criterion's deduction rules the submission triggers.\n\n")
	b.WriteString("### Grading instructions:\n")
	b.WriteString("1. For each lettered rule, find the part of the student's code it concerns.\n")
	b.WriteString("2. Decide whether the code violates the rule. Only report rules that are violated.\n")
	b.WriteString("3. For rules charged per occurrence, count the distinct violations.\n")
	b.WriteString("4. Do not compute a score. Point arithmetic is done by the caller.\n")
	if strings.TrimSpace(assignmentPrompt) != "" {
		b.WriteString("\n### Assignment prompt:\n'''\n")
		b.WriteString(strings.TrimSpace(assignmentPrompt))
		b.WriteString("\n'''\n")
	}
	return b.String()
}

// CriterionPrompt lists one criterion and its rules, followed by the
// submission and the required answer format.
func CriterionPrompt(c rubric.Criterion, submission string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Criterion %s: %s\n", c.ID, c.Description)
	fmt.Fprintf(&b, "At most -%s points can be deducted for this criterion.\n\n", rubric.FormatPoints(c.MaxDeduction))
	b.WriteString("Deduction rules:\n")
	for _, r := range c.Rules {
		fmt.Fprintf(&b, "%s) -%s", r.Letter, rubric.FormatPoints(r.Penalty))
		if r.Repeatable() {
			fmt.Fprintf(&b, " per occurrence, at most %d occurrence(s)", r.OccurrenceCap)
		}
		fmt.Fprintf(&b, ": %s\n", r.Trigger)
	}
	for _, n := range c.Notes {
		fmt.Fprintf(&b, "Note: %s\n", n)
	}
	b.WriteString("\n### Submission:\n")
	b.WriteString(submission)
	b.WriteString("\n\n### Answer format:\n")
	b.WriteString("Respond with ONLY a JSON object, e.g.:\n")
	b.WriteString(`{"triggered": [{"rule": "a", "occurrences": 1, "evidence": "line quoted from the code"}], "rationale": "one sentence summary", "confidence": 4}`)
	b.WriteString("\nUse an empty triggered list when no rule applies. confidence is 1-5.\n")
	return b.String()
}
