package oracle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/rubric"
)

var examples = rubric.Criterion{
	ID:           "CODE.2",
	Section:      "CODE",
	Number:       "2",
	Description:  "Examples in main",
	MaxDeduction: 0.9,
	Rules: []rubric.DeductionRule{
		{ID: "CODE.2.a", Letter: "a", Trigger: "missing example", Penalty: 0.3, Cap: 0.9, OccurrenceCap: 3},
		{ID: "CODE.2.b", Letter: "b", Trigger: "example not printed", Penalty: 0.1},
	},
}

func fast(opts ...oracle.Option) []oracle.Option {
	return append([]oracle.Option{oracle.WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)
}

func answer(triggers ...oracle.RawTrigger) oracle.OracleFunc {
	return func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		return &oracle.RawJudgment{Triggered: triggers, Rationale: " looks fine ", Confidence: 4}, nil
	}
}

func kindOf(t *testing.T, err error) *oracle.JudgmentError {
	t.Helper()
	var je *oracle.JudgmentError
	require.True(t, errors.As(err, &je), "expected *JudgmentError, got %T: %v", err, err)
	return je
}

func TestJudgeValidatesRules(t *testing.T) {
	a := oracle.NewAdapter(answer(
		oracle.RawTrigger{Rule: "b", Occurrences: 1},
		oracle.RawTrigger{Rule: "a", Occurrences: 0, Evidence: "no call"},
		oracle.RawTrigger{Rule: "zz", Occurrences: 1},
		oracle.RawTrigger{Rule: "CODE.2.A", Occurrences: 2, Evidence: "second"},
	), fast()...)

	j, err := a.Judge(context.Background(), examples, "class A {}")
	require.NoError(t, err)
	assert.Equal(t, "CODE.2", j.CriterionID)
	assert.Equal(t, "looks fine", j.Rationale)
	assert.Equal(t, 4.0, j.Confidence)
	require.Len(t, j.Triggered, 2)
	assert.Equal(t, oracle.TriggeredRule{RuleID: "CODE.2.a", Occurrences: 3, Evidence: "no call; second"}, j.Triggered[0])
	assert.Equal(t, "CODE.2.b", j.Triggered[1].RuleID)
	require.Len(t, j.Warnings, 1)
	assert.Contains(t, j.Warnings[0], `"zz"`)
}

func TestJudgeDropsOutOfRangeConfidence(t *testing.T) {
	a := oracle.NewAdapter(oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		return &oracle.RawJudgment{Confidence: 9}, nil
	}), fast()...)
	j, err := a.Judge(context.Background(), examples, "x")
	require.NoError(t, err)
	assert.Zero(t, j.Confidence)
	assert.Empty(t, j.Triggered)
}

func TestJudgeTimeoutNotRetried(t *testing.T) {
	var calls atomic.Int32
	slow := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	a := oracle.NewAdapter(slow, fast(oracle.WithTimeout(20*time.Millisecond))...)

	j, err := a.Judge(context.Background(), examples, "x")
	assert.Nil(t, j)
	je := kindOf(t, err)
	assert.Equal(t, oracle.KindTimeout, je.Kind)
	assert.Equal(t, "CODE.2", je.CriterionID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJudgeRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	flaky := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		if calls.Add(1) < 3 {
			return nil, oracle.ErrTransient
		}
		return &oracle.RawJudgment{}, nil
	})
	a := oracle.NewAdapter(flaky, fast()...)

	_, err := a.Judge(context.Background(), examples, "x")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestJudgeFailureKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  oracle.Kind
		wantCalls int32
	}{
		{"transient exhausted", oracle.ErrTransient, oracle.KindTransient, 3},
		{"unclassified is transient", errors.New("connection reset"), oracle.KindTransient, 3},
		{"rejected", oracle.ErrRejected, oracle.KindRejected, 1},
		{"invalid response", oracle.ErrInvalidResponse, oracle.KindInvalidResponse, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			failing := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
				calls.Add(1)
				return nil, tt.err
			})
			a := oracle.NewAdapter(failing, fast(oracle.WithMaxAttempts(3))...)
			_, err := a.Judge(context.Background(), examples, "x")
			je := kindOf(t, err)
			assert.Equal(t, tt.wantKind, je.Kind)
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, int(tt.wantCalls), je.Attempts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestJudgeNilAnswerIsInvalid(t *testing.T) {
	a := oracle.NewAdapter(oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		return nil, nil
	}), fast()...)
	_, err := a.Judge(context.Background(), examples, "x")
	assert.Equal(t, oracle.KindInvalidResponse, kindOf(t, err).Kind)
}

func TestJudgeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := oracle.NewAdapter(oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		return nil, ctx.Err()
	}), fast()...)
	_, err := a.Judge(ctx, examples, "x")
	assert.Equal(t, oracle.KindCanceled, kindOf(t, err).Kind)
}

func TestJudgeMemo(t *testing.T) {
	var calls atomic.Int32
	counting := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		calls.Add(1)
		return &oracle.RawJudgment{Triggered: []oracle.RawTrigger{{Rule: "b", Occurrences: 1}}}, nil
	})
	a := oracle.NewAdapter(counting, fast(oracle.WithMemo(16))...)

	first, err := a.Judge(context.Background(), examples, "same text")
	require.NoError(t, err)
	first.Triggered[0].Occurrences = 99

	second, err := a.Judge(context.Background(), examples, "same text")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Triggered[0].Occurrences, "cached judgment must not share state")
	assert.Equal(t, int32(1), calls.Load())

	_, err = a.Judge(context.Background(), examples, "other text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJudgeConcurrencyGate(t *testing.T) {
	var inFlight, peak atomic.Int32
	gated := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &oracle.RawJudgment{}, nil
	})
	a := oracle.NewAdapter(gated, fast(oracle.WithConcurrency(2))...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Judge(context.Background(), examples, "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	retries  int
}

func (r *recordingObserver) ObserveCall(outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) ObserveRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func TestJudgeObserver(t *testing.T) {
	var calls atomic.Int32
	flaky := oracle.OracleFunc(func(ctx context.Context, req oracle.Request) (*oracle.RawJudgment, error) {
		if calls.Add(1) == 1 {
			return nil, oracle.ErrTransient
		}
		return &oracle.RawJudgment{}, nil
	})
	obs := &recordingObserver{}
	a := oracle.NewAdapter(flaky, fast(oracle.WithObserver(obs))...)
	_, err := a.Judge(context.Background(), examples, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"transient_failure", "ok"}, obs.outcomes)
	assert.Equal(t, 1, obs.retries)
}
