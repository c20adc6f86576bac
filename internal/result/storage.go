package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/autograder/internal/grading"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runsDir, err := filepath.Abs(runsDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	// Runs started within the same second get a numeric suffix.
	runDir := filepath.Join(runsDir, stamp)
	for n := 2; ; n++ {
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
		runDir = filepath.Join(runsDir, fmt.Sprintf("%s-%d", stamp, n))
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BreakdownPath is where the breakdown for submission index is stored.
// The index prefix keeps directory order equal to run order.
func BreakdownPath(runDir string, index int, res *grading.Result, ext string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(res.StudentID, "_"), "_")
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(runDir, BreakdownsDir, fmt.Sprintf("%04d-%s%s", index, name, ext))
}

func WriteBreakdown(runDir string, index int, res *grading.Result) error {
	path := BreakdownPath(runDir, index, res, ".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating breakdowns dir: %w", err)
	}
	data, err := json.MarshalIndent(Breakdown{Index: index, Result: res}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling breakdown: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadBreakdowns loads every stored result of a run in run order.
func ReadBreakdowns(runDir string) ([]*grading.Result, error) {
	paths, err := filepath.Glob(filepath.Join(runDir, BreakdownsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing breakdowns: %w", err)
	}
	var all []Breakdown
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading breakdown: %w", err)
		}
		var b Breakdown
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("parsing breakdown %s: %w", filepath.Base(p), err)
		}
		if b.Result == nil {
			return nil, fmt.Errorf("parsing breakdown %s: no result", filepath.Base(p))
		}
		all = append(all, b)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	results := make([]*grading.Result, len(all))
	for i, b := range all {
		results[i] = b.Result
	}
	return results, nil
}

func WriteManifest(runDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, ManifestFile), data, 0o644)
}

func ReadManifest(runDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// WriteRubric stores the canonical rubric text used for a run.
func WriteRubric(runDir, text string) error {
	return os.WriteFile(filepath.Join(runDir, RubricFile), []byte(text), 0o644)
}
