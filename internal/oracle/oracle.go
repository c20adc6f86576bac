// Package oracle wraps the external judge that decides which deduction rules
// of a criterion apply to a submission.
//
// The judge itself is a black box behind the Oracle interface and may be
// non-deterministic. Adapter puts a fixed contract around it: every call is
// bounded by a timeout, transient failures are retried with exponential
// backoff, and the raw answer is validated against the rubric before it is
// returned as a Judgment. Failures come back as *JudgmentError, never as an
// empty Judgment.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/autograder/internal/rubric"
)

// Errors an Oracle wraps to tell the adapter how to treat a failure.
// Unwrapped errors are treated as transient.
var (
	ErrTransient       = errors.New("transient oracle failure")
	ErrRejected        = errors.New("oracle rejected input")
	ErrInvalidResponse = errors.New("invalid oracle response")
)

type Request struct {
	Criterion  rubric.Criterion
	Submission string
}

type RawTrigger struct {
	Rule        string
	Occurrences int
	Evidence    string
}

// RawJudgment is the oracle's unvalidated answer.
type RawJudgment struct {
	Triggered  []RawTrigger
	Rationale  string
	Confidence float64
}

type Oracle interface {
	Evaluate(ctx context.Context, req Request) (*RawJudgment, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, req Request) (*RawJudgment, error)

func (f OracleFunc) Evaluate(ctx context.Context, req Request) (*RawJudgment, error) {
	return f(ctx, req)
}

type TriggeredRule struct {
	RuleID      string `json:"rule_id"`
	Occurrences int    `json:"occurrences"`
	Evidence    string `json:"evidence,omitempty"`
}

// Judgment is a validated answer for one criterion on one submission. Every
// RuleID belongs to the criterion.
type Judgment struct {
	CriterionID string          `json:"criterion_id"`
	Triggered   []TriggeredRule `json:"triggered"`
	Rationale   string          `json:"rationale,omitempty"`
	Confidence  float64         `json:"confidence,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

func (j *Judgment) clone() *Judgment {
	c := *j
	c.Triggered = append([]TriggeredRule(nil), j.Triggered...)
	c.Warnings = append([]string(nil), j.Warnings...)
	return &c
}

type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindTransient       Kind = "transient_failure"
	KindInvalidResponse Kind = "invalid_response"
	KindRejected        Kind = "rejected"
	KindCanceled        Kind = "canceled"
	// KindNotJudged marks a criterion with no stored judgment during a rescore.
	KindNotJudged Kind = "not_judged"
)

type JudgmentError struct {
	Kind        Kind
	CriterionID string
	Attempts    int
	Err         error
}

func (e *JudgmentError) Error() string {
	return fmt.Sprintf("judging %s: %s after %d attempt(s): %v", e.CriterionID, e.Kind, e.Attempts, e.Err)
}

func (e *JudgmentError) Unwrap() error { return e.Err }
