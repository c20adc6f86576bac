// Package assignment loads the assignment description handed to the oracle
// as grading context.
package assignment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultImage ships pdftotext.
const DefaultImage = "minidocks/poppler:latest"

type Assignment struct {
	Name   string
	Prompt string
}

// Split treats the first non-empty line of text as the assignment name and
// everything after it as the prompt. Tabs become spaces.
func Split(text string) Assignment {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\t", " "))
	name, prompt, _ := strings.Cut(text, "\n")
	return Assignment{
		Name:   strings.TrimSpace(name),
		Prompt: strings.TrimSpace(prompt),
	}
}

// Load reads an assignment from a text, markdown or PDF file. PDFs are
// converted with pdftotext inside a container using image.
func Load(ctx context.Context, path, image string) (Assignment, error) {
	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		t, err := ExtractPDF(ctx, &ExtractOpts{Image: image, PDFPath: path})
		if err != nil {
			return Assignment{}, err
		}
		text = t
	case ".txt", ".md", "":
		data, err := os.ReadFile(path)
		if err != nil {
			return Assignment{}, fmt.Errorf("reading assignment: %w", err)
		}
		text = string(data)
	default:
		return Assignment{}, fmt.Errorf("unsupported assignment file %s", filepath.Base(path))
	}
	a := Split(text)
	if a.Name == "" {
		return Assignment{}, fmt.Errorf("assignment %s is empty", filepath.Base(path))
	}
	return a, nil
}
