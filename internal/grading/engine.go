// Package grading turns oracle judgments into scores. The oracle decides
// which deduction rules apply; everything after that, from capping to
// clamping and status, is deterministic arithmetic in this package.
package grading

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/signalnine/autograder/internal/identity"
	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/rubric"
	"github.com/signalnine/autograder/internal/runner"
	"github.com/signalnine/autograder/internal/submission"
)

// Judger answers one criterion for one submission text. A non-nil error
// should be an *oracle.JudgmentError; any other error is treated as a
// transient failure.
type Judger interface {
	Judge(ctx context.Context, c rubric.Criterion, text string) (*oracle.Judgment, error)
}

const canceledMsg = "grading canceled"

type Engine struct {
	judger             Judger
	ids                *identity.Extractor
	concurrency        int
	concurrentCriteria bool
	maxChars           int
	progress           func(Event)
	logger             *slog.Logger

	mu   sync.Mutex
	done int
}

type Option func(*Engine)

// WithConcurrency bounds how many submissions are graded at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithConcurrentCriteria judges the criteria of one submission in parallel.
func WithConcurrentCriteria(on bool) Option {
	return func(e *Engine) { e.concurrentCriteria = on }
}

// WithMaxSubmissionChars truncates the code shown to the oracle.
func WithMaxSubmissionChars(n int) Option {
	return func(e *Engine) { e.maxChars = n }
}

// WithProgress registers a callback run once per finished submission.
// Calls are serialized.
func WithProgress(fn func(Event)) Option {
	return func(e *Engine) { e.progress = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine. A nil extractor uses identity.DefaultPatterns.
func New(j Judger, ids *identity.Extractor, opts ...Option) *Engine {
	if ids == nil {
		ids, _ = identity.New(nil)
	}
	e := &Engine{
		judger:      j,
		ids:         ids,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GradeAll grades every submission. The result at index i belongs to
// subs[i] whatever order the work finished in. If ctx is canceled,
// unfinished submissions come back failed.
func (e *Engine) GradeAll(ctx context.Context, r *rubric.Rubric, subs []*submission.Submission) []*Result {
	results := make([]*Result, len(subs))
	e.mu.Lock()
	e.done = 0
	e.mu.Unlock()

	jobs := make([]runner.Job, len(subs))
	for i, sub := range subs {
		jobs[i] = func(ctx context.Context) error {
			results[i] = e.Grade(ctx, r, sub)
			e.report(i, len(subs), results[i])
			return nil
		}
	}
	errs := runner.RunPool(ctx, e.concurrency, jobs)
	for i, err := range errs {
		if results[i] != nil {
			continue
		}
		res := e.newResult(r, subs[i])
		res.Status = StatusFailed
		res.Error = canceledMsg
		if err != nil && !errors.Is(err, context.Canceled) {
			res.Error = err.Error()
		}
		results[i] = res
		e.report(i, len(subs), res)
	}
	return results
}

// Grade grades one submission against every criterion in rubric order.
func (e *Engine) Grade(ctx context.Context, r *rubric.Rubric, sub *submission.Submission) *Result {
	res := e.newResult(r, sub)
	if id, ok := e.ids.ExtractFirst(sub.Texts()...); ok {
		res.StudentID = id
	} else {
		res.Warnings = append(res.Warnings, "identity: no student name found in header")
		e.logger.Warn("could not extract student identity", "source", sub.SourcePath)
	}

	if err := sub.Err(); err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		e.logger.Warn("submission not graded", "source", sub.SourcePath, "error", err)
		return res
	}
	if ctx.Err() != nil {
		res.Status = StatusFailed
		res.Error = canceledMsg
		return res
	}

	text := sub.Format(e.maxChars)
	criteria := r.Criteria()
	judgments := make([]*oracle.Judgment, len(criteria))
	errs := make([]error, len(criteria))
	if e.concurrentCriteria {
		var g errgroup.Group
		for i, c := range criteria {
			g.Go(func() error {
				judgments[i], errs[i] = e.judger.Judge(ctx, c, text)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, c := range criteria {
			judgments[i], errs[i] = e.judger.Judge(ctx, c, text)
		}
	}
	if ctx.Err() != nil {
		res.Status = StatusFailed
		res.Error = canceledMsg
		return res
	}

	for i, c := range criteria {
		if errs[i] != nil || judgments[i] == nil {
			kind, err := judgmentFailure(c, errs[i])
			e.logger.Warn("criterion not graded", "source", sub.SourcePath, "criterion", c.ID, "kind", kind, "error", err)
			res.Items = append(res.Items, failedItem(c, kind, err))
			continue
		}
		it, warnings := judgedItem(c, judgments[i])
		res.Items = append(res.Items, it)
		res.Warnings = append(res.Warnings, warnings...)
	}
	finalize(res)
	return res
}

func (e *Engine) newResult(r *rubric.Rubric, sub *submission.Submission) *Result {
	return &Result{
		StudentID:      identity.Unknown,
		SourcePath:     sub.SourcePath,
		SubmissionHash: sub.Hash(),
		TotalPoints:    r.TotalPoints,
	}
}

func (e *Engine) report(index, total int, res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done++
	if e.progress == nil {
		return
	}
	e.progress(Event{
		Index:      index,
		Done:       e.done,
		Total:      total,
		StudentID:  res.StudentID,
		SourcePath: res.SourcePath,
		Status:     res.Status,
		RawScore:   res.RawScore,
	})
}

func judgmentFailure(c rubric.Criterion, err error) (oracle.Kind, error) {
	var je *oracle.JudgmentError
	if errors.As(err, &je) {
		return je.Kind, je.Err
	}
	if err == nil {
		err = errors.New("oracle returned no judgment")
	}
	return oracle.KindTransient, err
}
