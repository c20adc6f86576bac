package report

import (
	"fmt"
	"io"
	"math"

	"github.com/signalnine/autograder/internal/grading"
)

type Summary struct {
	Submissions int     `json:"submissions"`
	Complete    int     `json:"complete"`
	Partial     int     `json:"partially_graded"`
	Failed      int     `json:"failed"`
	MeanScore   float64 `json:"mean_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
}

// Summarize computes score statistics over results that were graded at
// least partially. Failed submissions only count toward Failed.
func Summarize(results []*grading.Result) Summary {
	s := Summary{Submissions: len(results)}
	var (
		sum    float64
		scored int
	)
	s.MinScore = math.Inf(1)
	for _, r := range results {
		switch r.Status {
		case grading.StatusComplete:
			s.Complete++
		case grading.StatusPartial:
			s.Partial++
		default:
			s.Failed++
			continue
		}
		scored++
		sum += r.RawScore
		s.MinScore = math.Min(s.MinScore, r.RawScore)
		s.MaxScore = math.Max(s.MaxScore, r.RawScore)
	}
	if scored == 0 {
		s.MinScore = 0
		return s
	}
	s.MeanScore = sum / float64(scored)
	return s
}

func WriteSummary(s Summary, w io.Writer) error {
	fmt.Fprintf(w, "Submissions: %d (complete %d, partially graded %d, failed %d)\n",
		s.Submissions, s.Complete, s.Partial, s.Failed)
	fmt.Fprintf(w, "Score: mean %.2f, min %.2f, max %.2f\n", s.MeanScore, s.MinScore, s.MaxScore)
	if s.CostUSD > 0 {
		fmt.Fprintf(w, "Oracle cost: $%.4f\n", s.CostUSD)
	}
	return nil
}
