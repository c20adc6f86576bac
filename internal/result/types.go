package result

import (
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/autograder/internal/grading"
)

const (
	ManifestFile  = "manifest.json"
	RubricFile    = "rubric.txt"
	UsageFile     = "usage.jsonl"
	MetricsFile   = "metrics.prom"
	BreakdownsDir = "breakdowns"
)

// Manifest describes one grading run.
type Manifest struct {
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	RubricPath     string    `json:"rubric_path"`
	SubmissionsDir string    `json:"submissions_dir"`
	AssignmentName string    `json:"assignment_name,omitempty"`
	TotalPoints    float64   `json:"total_points"`
	Submissions    int       `json:"submissions"`
	Complete       int       `json:"complete"`
	Partial        int       `json:"partially_graded"`
	Failed         int       `json:"failed"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
	DurationS      int       `json:"duration_s"`
	// RescoredFrom is the run id a rescore replayed.
	RescoredFrom string `json:"rescored_from,omitempty"`
}

func NewManifest() *Manifest {
	return &Manifest{RunID: uuid.NewString(), CreatedAt: time.Now().UTC()}
}

// Count fills the status counters from results.
func (m *Manifest) Count(results []*grading.Result) {
	m.Submissions = len(results)
	m.Complete, m.Partial, m.Failed = 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case grading.StatusComplete:
			m.Complete++
		case grading.StatusPartial:
			m.Partial++
		default:
			m.Failed++
		}
	}
}

// Breakdown is the stored form of one graded submission. Index is the
// submission's position in the run.
type Breakdown struct {
	Index  int             `json:"index"`
	Result *grading.Result `json:"result"`
}
