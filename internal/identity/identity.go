// Package identity derives a student identifier from the header comment of a
// submission.
package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Unknown is returned when no pattern matches.
const Unknown = "unknown"

// DefaultPatterns match the header styles seen in intro programming courses.
// Each pattern must capture the identifier in a group named "name".
var DefaultPatterns = []string{
	`(?i)^(?:student\s+)?name\s*[:=\-]\s*(?P<name>.+)$`,
	`(?i)^(?:@?author|student|by)\s*[:=\-]?\s+(?P<name>.+)$`,
	`^(?P<name>[A-Z][A-Za-z'.\-]*(?:\s+[A-Z][A-Za-z'.\-]*){1,3})$`,
}

var (
	codeStartRe = regexp.MustCompile(`^\s*(?:package\s|import\s|public\s+(?:final\s+|abstract\s+)?(?:class|interface|enum|record)\s)`)
	lineMarkRe  = regexp.MustCompile(`^\s*(?://+|/\*+|\*+/?|#+|--)\s?`)
	blockEndRe  = regexp.MustCompile(`\*+/\s*$`)
)

type Extractor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns; an empty list selects DefaultPatterns.
func New(patterns []string) (*Extractor, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	e := &Extractor{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling identity pattern %q: %w", p, err)
		}
		if re.SubexpIndex("name") < 0 {
			return nil, fmt.Errorf("identity pattern %q has no (?P<name>...) group", p)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

// Extract returns the student id from the first non-empty header line, or
// Unknown and false.
func (e *Extractor) Extract(text string) (string, bool) {
	first := FirstHeaderLine(text)
	if first == "" {
		return Unknown, false
	}
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(first)
		if m == nil {
			continue
		}
		if id := normalize(m[re.SubexpIndex("name")]); id != "" {
			return id, true
		}
	}
	return Unknown, false
}

// ExtractFirst tries each text in order and returns the first match.
func (e *Extractor) ExtractFirst(texts ...string) (string, bool) {
	for _, t := range texts {
		if id, ok := e.Extract(t); ok {
			return id, true
		}
	}
	return Unknown, false
}

// Header returns the lines before the first package, import or public type
// declaration with comment markers stripped and blank lines removed.
func Header(text string) string {
	var out []string
	for _, l := range headerLines(text) {
		if l = StripComment(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// FirstHeaderLine is the first header line that is non-empty once comment
// markers are removed.
func FirstHeaderLine(text string) string {
	for _, l := range headerLines(text) {
		if l = StripComment(l); l != "" {
			return l
		}
	}
	return ""
}

// CodeStart returns the byte offset where the header block ends.
func CodeStart(text string) int {
	off := 0
	for _, l := range strings.SplitAfter(text, "\n") {
		if codeStartRe.MatchString(l) {
			return off
		}
		off += len(l)
	}
	return len(text)
}

func headerLines(text string) []string {
	text = strings.ReplaceAll(text[:CodeStart(text)], "\r\n", "\n")
	return strings.Split(text, "\n")
}

// StripComment removes leading comment markers and a trailing block-comment
// terminator from a single line.
func StripComment(l string) string {
	l = lineMarkRe.ReplaceAllString(l, "")
	l = blockEndRe.ReplaceAllString(l, "")
	return strings.TrimSpace(l)
}

func normalize(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ".,;:*/-")
	return strings.Join(strings.Fields(s), " ")
}
