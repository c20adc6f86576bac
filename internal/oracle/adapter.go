package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/signalnine/autograder/internal/rubric"
)

const (
	DefaultTimeout     = 2 * time.Minute
	DefaultMaxAttempts = 3
)

// Observer receives call outcomes for metrics.
type Observer interface {
	ObserveCall(outcome string, d time.Duration)
	ObserveRetry()
}

type Adapter struct {
	oracle       Oracle
	timeout      time.Duration
	maxAttempts  int
	buildBackoff func() backoff.BackOff
	gate         *semaphore.Weighted
	limiter      *rate.Limiter
	cache        *lru.Cache[string, *Judgment]
	observer     Observer
	logger       *slog.Logger
}

type Option func(*Adapter)

// WithTimeout bounds each oracle attempt.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxAttempts bounds attempts for transient failures, first call included.
func WithMaxAttempts(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the exponential backoff between retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(a *Adapter) {
		a.buildBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			b.MaxElapsedTime = 0
			return b
		}
	}
}

// WithConcurrency caps in-flight oracle calls across all callers.
func WithConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.gate = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRateLimit spaces attempts to at most rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *Adapter) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMemo caches successful judgments by (criterion id, submission hash)
// so repeated runs over the same text replay exactly.
func WithMemo(size int) Option {
	return func(a *Adapter) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[string, *Judgment](size)
		if err == nil {
			a.cache = cache
		}
	}
}

func WithObserver(o Observer) Option {
	return func(a *Adapter) { a.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAdapter(o Oracle, opts ...Option) *Adapter {
	a := &Adapter{
		oracle:      o,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	WithBackoff(time.Second, 30*time.Second)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Judge asks the oracle about one criterion. A non-nil error is always a
// *JudgmentError.
func (a *Adapter) Judge(ctx context.Context, c rubric.Criterion, text string) (*Judgment, error) {
	var key string
	if a.cache != nil {
		key = memoKey(c.ID, text)
		if j, ok := a.cache.Get(key); ok {
			return j.clone(), nil
		}
	}

	if a.gate != nil {
		if err := a.gate.Acquire(ctx, 1); err != nil {
			return nil, &JudgmentError{Kind: KindCanceled, CriterionID: c.ID, Err: err}
		}
		defer a.gate.Release(1)
	}

	var (
		raw      *RawJudgment
		attempts int
		lastKind Kind
	)
	op := func() error {
		attempts++
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				lastKind = KindCanceled
				return backoff.Permanent(err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		start := time.Now()
		r, err := a.oracle.Evaluate(callCtx, Request{Criterion: c, Submission: text})
		if err == nil && r == nil {
			err = fmt.Errorf("%w: empty answer", ErrInvalidResponse)
		}
		if err == nil {
			a.observe("ok", time.Since(start))
			raw = r
			return nil
		}
		lastKind = classify(ctx, callCtx, err)
		a.observe(string(lastKind), time.Since(start))
		if lastKind != KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(a.buildBackoff(), uint64(a.maxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		if a.observer != nil {
			a.observer.ObserveRetry()
		}
		a.logger.Warn("oracle call failed, retrying", "criterion", c.ID, "attempt", attempts, "wait", wait, "error", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			lastKind = KindCanceled
		}
		return nil, &JudgmentError{Kind: lastKind, CriterionID: c.ID, Attempts: attempts, Err: err}
	}

	j := a.validate(c, raw)
	if a.cache != nil {
		a.cache.Add(key, j.clone())
	}
	return j, nil
}

func (a *Adapter) observe(outcome string, d time.Duration) {
	if a.observer != nil {
		a.observer.ObserveCall(outcome, d)
	}
}

func classify(parent, call context.Context, err error) Kind {
	switch {
	case parent.Err() != nil:
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	default:
		return KindTransient
	}
}

// validate maps the raw answer onto the criterion's rule ids. Unknown ids
// are dropped with a warning; repeated ids merge.
func (a *Adapter) validate(c rubric.Criterion, raw *RawJudgment) *Judgment {
	j := &Judgment{CriterionID: c.ID, Rationale: strings.TrimSpace(raw.Rationale)}
	seen := map[string]int{}
	for _, t := range raw.Triggered {
		rule, ok := c.Rule(t.Rule)
		if !ok {
			msg := fmt.Sprintf("oracle reported unknown rule %q for %s; dropped", t.Rule, c.ID)
			j.Warnings = append(j.Warnings, msg)
			a.logger.Warn("dropping unknown rule from oracle answer", "criterion", c.ID, "rule", t.Rule)
			continue
		}
		n := t.Occurrences
		if n < 1 {
			n = 1
		}
		evidence := strings.TrimSpace(t.Evidence)
		if i, dup := seen[rule.ID]; dup {
			j.Triggered[i].Occurrences += n
			if evidence != "" {
				j.Triggered[i].Evidence = strings.TrimSpace(j.Triggered[i].Evidence + "; " + evidence)
			}
			continue
		}
		seen[rule.ID] = len(j.Triggered)
		j.Triggered = append(j.Triggered, TriggeredRule{RuleID: rule.ID, Occurrences: n, Evidence: evidence})
	}
	order := map[string]int{}
	for i, r := range c.Rules {
		order[r.ID] = i
	}
	sort.SliceStable(j.Triggered, func(x, y int) bool {
		return order[j.Triggered[x].RuleID] < order[j.Triggered[y].RuleID]
	})
	if raw.Confidence >= 1 && raw.Confidence <= 5 {
		j.Confidence = raw.Confidence
	}
	return j
}

func memoKey(criterionID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return criterionID + "@" + hex.EncodeToString(sum[:])
}
