package grading

import (
	"fmt"
	"math"

	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/rubric"
)

type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partially_graded"
	StatusFailed   Status = "failed"
)

// Item is the graded outcome of one criterion. ErrorKind is empty when the
// oracle answered.
type Item struct {
	CriterionID  string                 `json:"criterion_id"`
	Section      string                 `json:"section"`
	Description  string                 `json:"description"`
	MaxDeduction float64                `json:"max_deduction"`
	Applied      float64                `json:"applied"`
	Rationale    string                 `json:"rationale"`
	Triggered    []oracle.TriggeredRule `json:"triggered,omitempty"`
	Confidence   float64                `json:"confidence,omitempty"`
	ErrorKind    oracle.Kind            `json:"error_kind,omitempty"`
}

type Result struct {
	StudentID      string   `json:"student_id"`
	SourcePath     string   `json:"source_path"`
	SubmissionHash string   `json:"submission_hash,omitempty"`
	TotalPoints    float64  `json:"total_points"`
	RawScore       float64  `json:"raw_score"`
	Items          []Item   `json:"items"`
	Status         Status   `json:"status"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
}

// Item returns the item for a criterion id.
func (r *Result) Item(criterionID string) (Item, bool) {
	for _, it := range r.Items {
		if it.CriterionID == criterionID {
			return it, true
		}
	}
	return Item{}, false
}

// Deduction returns the total applied deduction.
func (r *Result) Deduction() float64 {
	var sum float64
	for _, it := range r.Items {
		sum += it.Applied
	}
	return rubric.RoundPoints(sum)
}

// Applied computes a criterion's deduction from the triggered rules:
// min(MaxDeduction, sum of penalty x min(count, occurrence cap)). Rules
// without a cap use the reported count. Rule ids the criterion does not
// know are ignored and returned.
func Applied(c rubric.Criterion, triggered []oracle.TriggeredRule) (float64, []string) {
	var (
		sum     float64
		unknown []string
	)
	for _, t := range triggered {
		rule, ok := c.Rule(t.RuleID)
		if !ok {
			unknown = append(unknown, t.RuleID)
			continue
		}
		n := t.Occurrences
		if n < 1 {
			n = 1
		}
		if rule.OccurrenceCap > 0 && n > rule.OccurrenceCap {
			n = rule.OccurrenceCap
		}
		charge := rule.Penalty * float64(n)
		if rule.Cap > 0 {
			charge = math.Min(charge, rule.Cap)
		}
		sum += charge
	}
	return rubric.RoundPoints(math.Min(c.MaxDeduction, sum)), unknown
}

func judgedItem(c rubric.Criterion, j *oracle.Judgment) (Item, []string) {
	applied, unknown := Applied(c, j.Triggered)
	it := baseItem(c)
	it.Applied = applied
	it.Rationale = j.Rationale
	it.Triggered = append([]oracle.TriggeredRule(nil), j.Triggered...)
	it.Confidence = j.Confidence
	warnings := append([]string(nil), j.Warnings...)
	for _, id := range unknown {
		warnings = append(warnings, fmt.Sprintf("%s: rule %q is not in the rubric; ignored", c.ID, id))
	}
	return it, warnings
}

func failedItem(c rubric.Criterion, kind oracle.Kind, err error) Item {
	it := baseItem(c)
	it.ErrorKind = kind
	it.Rationale = fmt.Sprintf("NOT GRADED (%s): %v", kind, err)
	return it
}

func baseItem(c rubric.Criterion) Item {
	return Item{
		CriterionID:  c.ID,
		Section:      c.Section,
		Description:  c.Description,
		MaxDeduction: c.MaxDeduction,
	}
}

// finalize fills score, status and confidence from the items.
func finalize(res *Result) {
	var (
		deducted   float64
		confSum    float64
		confCount  int
		incomplete bool
	)
	for _, it := range res.Items {
		deducted += it.Applied
		if it.ErrorKind != "" {
			incomplete = true
		}
		if it.Confidence > 0 {
			confSum += it.Confidence
			confCount++
		}
	}
	score := rubric.RoundPoints(res.TotalPoints - deducted)
	res.RawScore = math.Max(0, math.Min(res.TotalPoints, score))
	res.Status = StatusComplete
	if incomplete {
		res.Status = StatusPartial
	}
	res.Confidence = 0
	if confCount > 0 {
		res.Confidence = rubric.RoundPoints(confSum / float64(confCount))
	}
}
