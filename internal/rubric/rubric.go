// Package rubric models a scoring sheet: ordered sections of criteria, each
// criterion capped at a maximum deduction and made of deduction rules.
package rubric

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultSection names criteria that appear before any section header.
const DefaultSection = "GENERAL"

type Rubric struct {
	Sections    []Section `json:"sections"`
	TotalPoints float64   `json:"total_points"`
	Preamble    []string  `json:"preamble,omitempty"`
	Trailer     []string  `json:"trailer,omitempty"`
}

type Section struct {
	Name     string      `json:"name"`
	Notes    []string    `json:"notes,omitempty"`
	Criteria []Criterion `json:"criteria"`
}

type Criterion struct {
	ID           string          `json:"id"`
	Section      string          `json:"section"`
	Number       string          `json:"number,omitempty"`
	Description  string          `json:"description"`
	MaxDeduction float64         `json:"max_deduction"`
	Rules        []DeductionRule `json:"rules"`
	Notes        []string        `json:"notes,omitempty"`
	// Implicit criteria are built from rules listed directly under a section.
	Implicit bool `json:"implicit,omitempty"`
}

type DeductionRule struct {
	ID      string  `json:"id"`
	Letter  string  `json:"letter"`
	Trigger string  `json:"trigger"`
	Penalty float64 `json:"penalty"`
	// Cap is the point cap of a repeatable rule, 0 when none was given.
	Cap float64 `json:"cap,omitempty"`
	// OccurrenceCap bounds the counted occurrences; 0 means uncapped.
	OccurrenceCap int `json:"occurrence_cap,omitempty"`
}

// Load reads and parses a rubric file.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubric %s: %w", path, err)
	}
	r, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing rubric %s: %w", path, err)
	}
	return r, nil
}

// Criteria returns every criterion in rubric order.
func (r *Rubric) Criteria() []Criterion {
	var out []Criterion
	for _, s := range r.Sections {
		out = append(out, s.Criteria...)
	}
	return out
}

// Criterion looks up a criterion by id.
func (r *Rubric) Criterion(id string) (Criterion, bool) {
	for _, s := range r.Sections {
		for _, c := range s.Criteria {
			if c.ID == id {
				return c, true
			}
		}
	}
	return Criterion{}, false
}

// MaxTotalDeduction sums every criterion's maximum deduction. It may exceed
// TotalPoints; grading clamps the score at zero.
func (r *Rubric) MaxTotalDeduction() float64 {
	var sum float64
	for _, c := range r.Criteria() {
		sum += c.MaxDeduction
	}
	return sum
}

// Rule resolves a rule by its full id ("CODE.2.a") or its letter ("a").
func (c Criterion) Rule(id string) (DeductionRule, bool) {
	id = strings.TrimSpace(id)
	for _, r := range c.Rules {
		if strings.EqualFold(r.ID, id) || strings.EqualFold(r.Letter, id) {
			return r, true
		}
	}
	id = strings.TrimRight(id, ").")
	for _, r := range c.Rules {
		if strings.EqualFold(r.Letter, id) {
			return r, true
		}
	}
	return DeductionRule{}, false
}

// MaxPenalty is the most a single rule can contribute on its own.
func (d DeductionRule) MaxPenalty() float64 {
	if d.Cap > 0 {
		return d.Cap
	}
	return d.Penalty
}

// Repeatable reports whether the rule is charged per occurrence up to a cap.
func (d DeductionRule) Repeatable() bool {
	return d.OccurrenceCap > 0
}

// String renders the rubric back into canonical rubric text. Parsing the
// output yields a structurally identical Rubric.
func (r *Rubric) String() string {
	var b strings.Builder
	for _, line := range r.Preamble {
		b.WriteString(line + "\n")
	}
	for _, s := range r.Sections {
		b.WriteString(s.Name + ":\n")
		for _, n := range s.Notes {
			b.WriteString("  " + n + "\n")
		}
		for _, c := range s.Criteria {
			indent := "  "
			if !c.Implicit {
				fmt.Fprintf(&b, "%s. %s (max -%s)\n", c.Number, c.Description, FormatPoints(c.MaxDeduction))
				indent = "    "
			}
			for _, rule := range c.Rules {
				fmt.Fprintf(&b, "%s%s) -%s: %s", indent, rule.Letter, FormatPoints(rule.Penalty), rule.Trigger)
				if rule.Cap > 0 {
					fmt.Fprintf(&b, " (up to -%s)", FormatPoints(rule.Cap))
				}
				b.WriteString("\n")
			}
			for _, n := range c.Notes {
				b.WriteString(indent + n + "\n")
			}
		}
	}
	fmt.Fprintf(&b, "TOTAL POINTS: %s\n", FormatPoints(r.TotalPoints))
	for _, line := range r.Trailer {
		b.WriteString(line + "\n")
	}
	return b.String()
}

// FormatPoints prints a point value without trailing zeros.
func FormatPoints(v float64) string {
	return strconv.FormatFloat(RoundPoints(v), 'f', -1, 64)
}

// RoundPoints rounds to four decimals so sums of decimal penalties compare
// exactly.
func RoundPoints(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
