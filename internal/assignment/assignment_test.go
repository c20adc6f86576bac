package assignment_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/autograder/internal/assignment"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name, text, wantName, wantPrompt string
	}{
		{"basic", "Lab 3: Loops\nWrite a program\tthat counts.\n", "Lab 3: Loops", "Write a program that counts."},
		{"leading blank lines", "\n\n  Lab 4  \n\nBody\n", "Lab 4", "Body"},
		{"name only", "Lab 5", "Lab 5", ""},
		{"empty", "  \n ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assignment.Split(tt.text)
			if a.Name != tt.wantName {
				t.Errorf("name: got %q, want %q", a.Name, tt.wantName)
			}
			if a.Prompt != tt.wantPrompt {
				t.Errorf("prompt: got %q, want %q", a.Prompt, tt.wantPrompt)
			}
		})
	}
}

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.md")
	if err := os.WriteFile(path, []byte("Lab 3\nCount to ten.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := assignment.Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Name != "Lab 3" || a.Prompt != "Count to ten." {
		t.Errorf("got %+v", a)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	os.WriteFile(empty, []byte("\n\n"), 0o644)
	doc := filepath.Join(dir, "lab.docx")
	os.WriteFile(doc, []byte("x"), 0o644)

	for _, path := range []string{empty, doc, filepath.Join(dir, "missing.txt")} {
		if _, err := assignment.Load(context.Background(), path, ""); err == nil {
			t.Errorf("%s: expected error", filepath.Base(path))
		}
	}
}

func TestExtractPDFMissingFile(t *testing.T) {
	_, err := assignment.ExtractPDF(context.Background(), &assignment.ExtractOpts{
		PDFPath: filepath.Join(t.TempDir(), "missing.pdf"),
	})
	if err == nil {
		t.Error("expected error for missing pdf")
	}
}

func TestExtractPDF(t *testing.T) {
	if os.Getenv("AUTOGRADER_DOCKER_TESTS") == "" {
		t.Skip("set AUTOGRADER_DOCKER_TESTS=1 to run Docker tests")
	}
	pdf := os.Getenv("AUTOGRADER_TEST_PDF")
	if pdf == "" {
		t.Skip("set AUTOGRADER_TEST_PDF to a sample assignment PDF")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text, err := assignment.ExtractPDF(ctx, &assignment.ExtractOpts{PDFPath: pdf, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("ExtractPDF: %v", err)
	}
	if a := assignment.Split(text); a.Name == "" {
		t.Error("expected a non-empty assignment name")
	}
}
