package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/autograder/internal/grading"
	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/result"
)

func TestWriteAndReadBreakdowns(t *testing.T) {
	dir := t.TempDir()
	results := []*grading.Result{
		{StudentID: "Zed Zulu", SourcePath: "zed.java", TotalPoints: 10, RawScore: 9.9, Status: grading.StatusComplete,
			Items: []grading.Item{{CriterionID: "HEADER", Applied: 0.1, Triggered: []oracle.TriggeredRule{{RuleID: "HEADER.a", Occurrences: 1}}}}},
		{StudentID: "unknown", SourcePath: "anon.java", TotalPoints: 10, Status: grading.StatusFailed, Error: "submission unreadable"},
		{StudentID: "Amy/../Adams", SourcePath: "amy.java", TotalPoints: 10, RawScore: 10, Status: grading.StatusPartial,
			Items: []grading.Item{{CriterionID: "HEADER", ErrorKind: oracle.KindTimeout, Rationale: "NOT GRADED (timeout): deadline"}}},
	}
	// Write out of order; reading restores run order.
	for _, i := range []int{2, 0, 1} {
		if err := result.WriteBreakdown(dir, i, results[i]); err != nil {
			t.Fatalf("WriteBreakdown: %v", err)
		}
	}
	got, err := result.ReadBreakdowns(dir)
	if err != nil {
		t.Fatalf("ReadBreakdowns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i := range results {
		if got[i].SourcePath != results[i].SourcePath {
			t.Errorf("result %d: got %s, want %s", i, got[i].SourcePath, results[i].SourcePath)
		}
	}
	if got[0].Items[0].Triggered[0].RuleID != "HEADER.a" {
		t.Errorf("triggered rules not preserved: %+v", got[0].Items[0])
	}
	if got[2].Items[0].ErrorKind != oracle.KindTimeout {
		t.Errorf("error kind not preserved: %+v", got[2].Items[0])
	}

	path := result.BreakdownPath(dir, 2, results[2], ".json")
	if filepath.Base(path) != "0002-Amy_.._Adams.json" {
		t.Errorf("unsafe student id not sanitized: %s", filepath.Base(path))
	}
}

func TestReadBreakdownsEmpty(t *testing.T) {
	got, err := result.ReadBreakdowns(t.TempDir())
	if err != nil {
		t.Fatalf("ReadBreakdowns: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestWriteAndReadManifest(t *testing.T) {
	dir := t.TempDir()
	m := result.NewManifest()
	m.Model = "gpt-4o"
	m.TotalPoints = 10
	m.Count([]*grading.Result{
		{Status: grading.StatusComplete},
		{Status: grading.StatusPartial},
		{Status: grading.StatusFailed},
		{Status: grading.StatusComplete},
	})
	if err := result.WriteManifest(dir, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := result.ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.RunID == "" || got.RunID != m.RunID {
		t.Errorf("run id: got %q, want %q", got.RunID, m.RunID)
	}
	if got.Submissions != 4 || got.Complete != 2 || got.Partial != 1 || got.Failed != 1 {
		t.Errorf("counts: %+v", got)
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, m.CreatedAt)
	}
}

func TestNewManifestUniqueIDs(t *testing.T) {
	if result.NewManifest().RunID == result.NewManifest().RunID {
		t.Error("expected distinct run ids")
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestCreateRunDirSameSecond(t *testing.T) {
	base := t.TempDir()
	first, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	second, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if first == second {
		t.Errorf("expected distinct run dirs, both %q", first)
	}
	target, _ := os.Readlink(filepath.Join(base, "latest"))
	if target != second {
		t.Errorf("latest symlink: got %q, want %q", target, second)
	}
}
