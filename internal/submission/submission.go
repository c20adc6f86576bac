// Package submission loads student submissions from a directory. A
// top-level file is one submission; a top-level directory is one submission
// made of every matching file beneath it.
package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/signalnine/autograder/internal/identity"
)

// ErrUnreadable marks submissions whose source could not be read or is empty.
var ErrUnreadable = errors.New("submission unreadable")

type SourceFile struct {
	Path string `json:"path"`
	Text string `json:"-"`
}

type Submission struct {
	SourcePath string
	Files      []SourceFile
	// ReadErr is set when any file could not be read; such submissions are
	// never sent to the oracle.
	ReadErr error
}

// Text concatenates the files in order. Multi-file submissions get a marker
// line before each file.
func (s *Submission) Text() string {
	if len(s.Files) == 1 {
		return s.Files[0].Text
	}
	var b strings.Builder
	for _, f := range s.Files {
		fmt.Fprintf(&b, "// ==== %s ====\n", f.Path)
		b.WriteString(f.Text)
		if !strings.HasSuffix(f.Text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Texts returns the individual file contents in order.
func (s *Submission) Texts() []string {
	out := make([]string, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Text
	}
	return out
}

// Hash is the hex sha256 of Text().
func (s *Submission) Hash() string {
	sum := sha256.Sum256([]byte(s.Text()))
	return hex.EncodeToString(sum[:])
}

// Err reports why the submission cannot be graded, or nil.
func (s *Submission) Err() error {
	if s.ReadErr != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, s.ReadErr)
	}
	if strings.TrimSpace(s.Text()) == "" {
		return fmt.Errorf("%w: no source text", ErrUnreadable)
	}
	return nil
}

// Format lays a submission out for the oracle: the header comment of the
// first file, then the code.
func (s *Submission) Format(maxChars int) string {
	text := s.Text()
	header := identity.Header(text)
	code := text[identity.CodeStart(text):]
	if len(s.Files) > 1 {
		code = text
	}
	if maxChars > 0 && len(code) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(code[cut]) {
			cut--
		}
		code = code[:cut] + fmt.Sprintf("\n\n... [submission truncated from %d to %d chars] ...", len(code), maxChars)
	}
	lang := language(s.Files)
	return fmt.Sprintf("**HEADER:**\n%s\n\n**CODE:**\n```%s\n%s\n```", header, lang, strings.TrimRight(code, "\n"))
}

func language(files []SourceFile) string {
	if len(files) == 0 {
		return ""
	}
	switch strings.ToLower(filepath.Ext(files[0].Path)) {
	case ".java":
		return "java"
	case ".py":
		return "python"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".go":
		return "go"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	default:
		return ""
	}
}

// Load reads every submission in dir, sorted by name. Files whose
// extension is not in exts are ignored; an empty exts accepts all files.
// Hidden entries are skipped.
func Load(dir string, exts []string) ([]*Submission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading submissions dir %s: %w", dir, err)
	}
	var subs []*Submission
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			sub, err := loadDir(path, exts)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				subs = append(subs, sub)
			}
			continue
		}
		if !matchExt(e.Name(), exts) {
			continue
		}
		sub := &Submission{SourcePath: path}
		data, err := os.ReadFile(path)
		if err != nil {
			sub.ReadErr = err
		}
		sub.Files = []SourceFile{{Path: e.Name(), Text: string(data)}}
		subs = append(subs, sub)
	}
	return subs, nil
}

// loadDir gathers a directory submission. Files are ordered by their
// slash-separated path relative to the directory.
func loadDir(dir string, exts []string) (*Submission, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !matchExt(d.Name(), exts) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	if len(rels) == 0 {
		return nil, nil
	}
	sort.Strings(rels)
	sub := &Submission{SourcePath: dir}
	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil && sub.ReadErr == nil {
			sub.ReadErr = err
		}
		sub.Files = append(sub.Files, SourceFile{Path: rel, Text: string(data)})
	}
	return sub, nil
}

func matchExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
