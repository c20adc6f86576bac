package rubric

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("rubric parse error")

type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("rubric line %d: %s", e.Line, e.Msg)
	}
	return "rubric: " + e.Msg
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

const num = `(\d+(?:\.\d+)?|\.\d+)`
const minus = `[-−–]`
const unit = `(?:\s*(?:pts?|points?)\b)?`

var (
	totalRe     = regexp.MustCompile(`(?i)^(?:#+\s*)?total\s+points?\s*[:=]?\s*(\S+?)` + unit + `\s*$`)
	sectionRe   = regexp.MustCompile(`^(?:#+\s*)?([A-Z][A-Z0-9 _&/-]*[A-Z0-9])\s*:\s*(.*)$`)
	criterionRe = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
	letterRe    = regexp.MustCompile(`^([a-zA-Z])[.)]\s+(.*)$`)
	bulletRe    = regexp.MustCompile(`^[*•]\s+(.*)$`)
	dashRe      = regexp.MustCompile(`^-\s+(\D.*)$`)
	amountRe    = regexp.MustCompile(`^` + num + `$`)
	maxLineRe   = regexp.MustCompile(`(?i)^max(?:imum)?(?:\s+deduction)?\s*[:=]\s*` + minus + `?\s*` + num + unit + `\s*$`)

	eachRe     = regexp.MustCompile(`(?i)(?:^|[\s(,:;])` + minus + `\s*` + num + unit + `\s*(?:each|apiece|per\s+[a-z]+)\b`)
	capRe      = regexp.MustCompile(`(?i)\(?\s*\b(?:up\s+to|max(?:imum)?(?:\s+of)?)\s*` + minus + `\s*` + num + unit + `(?:\s+total)?\s*\)?`)
	capParenRe = regexp.MustCompile(`(?i)\(\s*(?:up\s+to|max(?:imum)?(?:\s+of)?)\s*` + num + unit + `(?:\s+total)?\s*\)`)
	ptsRe      = regexp.MustCompile(`(?i)[\[(]\s*` + num + `\s*(?:pts?|points?)\s*[\])]`)
	plainRe    = regexp.MustCompile(`(?:^|[\s(,:;])` + minus + num + unit + `\s*\)?`)
	unitPrefix = regexp.MustCompile(`(?i)^(?:points?|pts?)\b`)
	eachPrefix = regexp.MustCompile(`(?i)^(?:each|apiece)\b[\s:,]*`)

	emptyParenRe = regexp.MustCompile(`\(\s*\)`)
	commaRunRe   = regexp.MustCompile(`\s*,(?:\s*,)+\s*`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

type line struct {
	no   int
	text string
}

type parser struct {
	r        *Rubric
	section  *Section
	crit     *Criterion
	critLine int
	critHead amounts
	hasMax   bool
	sections map[string]bool
	criteria map[string]bool
	done     bool
}

// Parse turns rubric text into a Rubric. Prose formatting is handled
// leniently; numeric fields are strict.
func Parse(text string) (*Rubric, error) {
	p := &parser{
		r:        &Rubric{},
		sections: map[string]bool{},
		criteria: map[string]bool{},
	}
	for _, ln := range splitLines(text) {
		if err := p.consume(ln); err != nil {
			return nil, err
		}
	}
	if !p.done {
		return nil, &ParseError{Msg: "missing TOTAL POINTS line"}
	}
	return p.r, nil
}

// splitLines breaks text into logical lines, also splitting ";"-joined
// segments when the segment after the semicolon is itself structural.
func splitLines(text string) []line {
	var out []line
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, raw := range strings.Split(text, "\n") {
		segs := strings.Split(raw, ";")
		cur := segs[0]
		for _, seg := range segs[1:] {
			if isStructural(strings.TrimSpace(seg)) {
				out = append(out, line{no: i + 1, text: cur})
				cur = strings.TrimLeft(seg, " \t")
				continue
			}
			cur += ";" + seg
		}
		out = append(out, line{no: i + 1, text: cur})
	}
	return out
}

func isStructural(s string) bool {
	return totalRe.MatchString(s) || sectionRe.MatchString(s) ||
		criterionRe.MatchString(s) || letterRe.MatchString(s)
}

func (p *parser) consume(ln line) error {
	s := strings.TrimSpace(ln.text)
	if s == "" {
		return nil
	}
	if p.done {
		p.r.Trailer = append(p.r.Trailer, s)
		return nil
	}
	if m := totalRe.FindStringSubmatch(s); m != nil {
		v, ok := parseAmount(m[1])
		if !ok {
			return &ParseError{Line: ln.no, Text: s, Msg: fmt.Sprintf("total points %q is not a non-negative number", m[1])}
		}
		if err := p.closeCriterion(); err != nil {
			return err
		}
		p.r.TotalPoints = v
		p.done = true
		return nil
	}
	// Indented LABEL: lines inside a numbered criterion are notes.
	inCriterion := p.crit != nil && !p.crit.Implicit && ln.text != strings.TrimLeft(ln.text, " \t")
	if m := sectionRe.FindStringSubmatch(s); m != nil && !inCriterion {
		if err := p.openSection(ln.no, strings.TrimSpace(m[1])); err != nil {
			return err
		}
		if rest := strings.TrimSpace(m[2]); rest != "" {
			return p.consume(line{no: ln.no, text: rest})
		}
		return nil
	}
	if m := criterionRe.FindStringSubmatch(s); m != nil {
		return p.openCriterion(ln.no, m[1], m[2])
	}
	if p.crit != nil && !p.crit.Implicit {
		if m := maxLineRe.FindStringSubmatch(s); m != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			p.crit.MaxDeduction = v
			p.hasMax = true
			return nil
		}
	}
	rule, isRule, err := parseRule(s)
	if err != nil {
		return &ParseError{Line: ln.no, Text: s, Msg: err.Error()}
	}
	if isRule {
		return p.addRule(ln.no, rule)
	}
	p.addNote(s)
	return nil
}

func (p *parser) openSection(no int, name string) error {
	if err := p.closeCriterion(); err != nil {
		return err
	}
	if p.sections[name] {
		return &ParseError{Line: no, Text: name, Msg: fmt.Sprintf("duplicate section %q", name)}
	}
	p.sections[name] = true
	p.r.Sections = append(p.r.Sections, Section{Name: name})
	p.section = &p.r.Sections[len(p.r.Sections)-1]
	return nil
}

func (p *parser) ensureSection(no int) error {
	if p.section != nil {
		return nil
	}
	return p.openSection(no, DefaultSection)
}

func (p *parser) openCriterion(no int, number, heading string) error {
	if err := p.closeCriterion(); err != nil {
		return err
	}
	if err := p.ensureSection(no); err != nil {
		return err
	}
	id := p.section.Name + "." + number
	if p.criteria[id] {
		return &ParseError{Line: no, Text: heading, Msg: fmt.Sprintf("duplicate criterion %q", id)}
	}
	p.criteria[id] = true
	head := extractHeading(heading)
	p.crit = &Criterion{
		ID:          id,
		Section:     p.section.Name,
		Number:      number,
		Description: head.rest,
	}
	p.critLine = no
	p.critHead = head
	p.hasMax = head.hasMax
	p.crit.MaxDeduction = head.max
	return nil
}

func (p *parser) addRule(no int, rule DeductionRule) error {
	if p.crit == nil {
		if err := p.ensureSection(no); err != nil {
			return err
		}
		id := p.section.Name
		if p.criteria[id] {
			return &ParseError{Line: no, Text: rule.Trigger, Msg: fmt.Sprintf("duplicate criterion %q", id)}
		}
		p.criteria[id] = true
		p.crit = &Criterion{ID: id, Section: p.section.Name, Description: p.section.Name, Implicit: true}
		p.critLine = no
	}
	if rule.Letter == "" {
		rule.Letter = nextLetter(p.crit.Rules)
	}
	rule.Letter = strings.ToLower(rule.Letter)
	for _, existing := range p.crit.Rules {
		if existing.Letter == rule.Letter {
			return &ParseError{Line: no, Text: rule.Trigger, Msg: fmt.Sprintf("duplicate rule %q in criterion %q", rule.Letter, p.crit.ID)}
		}
	}
	rule.ID = p.crit.ID + "." + rule.Letter
	p.crit.Rules = append(p.crit.Rules, rule)
	return nil
}

func (p *parser) addNote(s string) {
	switch {
	case p.crit != nil:
		p.crit.Notes = append(p.crit.Notes, s)
	case p.section != nil:
		p.section.Notes = append(p.section.Notes, s)
	default:
		p.r.Preamble = append(p.r.Preamble, s)
	}
}

func (p *parser) closeCriterion() error {
	c := p.crit
	if c == nil {
		return nil
	}
	p.crit = nil
	if c.Implicit {
		for _, r := range c.Rules {
			c.MaxDeduction += r.MaxPenalty()
		}
		c.MaxDeduction = RoundPoints(c.MaxDeduction)
	} else {
		if len(c.Rules) == 0 && p.hasMax {
			penalty, cap := c.MaxDeduction, 0.0
			if p.critHead.hasPenalty {
				penalty = p.critHead.penalty
			}
			if p.critHead.repeat && c.MaxDeduction > penalty {
				cap = c.MaxDeduction
			}
			rule := newRule(c.Description, penalty, cap)
			rule.Letter = "a"
			rule.ID = c.ID + ".a"
			c.Rules = append(c.Rules, rule)
		}
		if !p.hasMax {
			return &ParseError{Line: p.critLine, Text: c.Description, Msg: fmt.Sprintf("criterion %q lacks a maximum deduction", c.ID)}
		}
	}
	p.section.Criteria = append(p.section.Criteria, *c)
	return nil
}

func nextLetter(rules []DeductionRule) string {
	used := map[string]bool{}
	for _, r := range rules {
		used[r.Letter] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		if !used[string(c)] {
			return string(c)
		}
	}
	return fmt.Sprintf("r%d", len(rules)+1)
}

// parseRule recognizes a deduction rule line. Lines that carry no penalty
// are reported as non-rules so the caller keeps them as notes.
func parseRule(s string) (DeductionRule, bool, error) {
	letter := ""
	body := s
	lettered := false
	if m := letterRe.FindStringSubmatch(s); m != nil {
		letter, body, lettered = m[1], m[2], true
	} else if m := bulletRe.FindStringSubmatch(s); m != nil {
		body = m[1]
	} else if m := dashRe.FindStringSubmatch(s); m != nil {
		body = m[1]
	}
	body = strings.TrimSpace(body)

	if startsWithMinus(body) {
		tok, rest, spaced := leadingToken(body)
		v, ok := parseAmount(tok)
		if !ok {
			if strings.ContainsAny(tok, "0123456789") || (lettered && !spaced) {
				return DeductionRule{}, false, fmt.Errorf("penalty %q is not numeric", tok)
			}
			return DeductionRule{}, false, nil
		}
		rest = strings.TrimLeft(rest, " \t:),")
		rest = eachPrefix.ReplaceAllString(rest, "")
		cap, rest := extractCap(rest)
		r := newRule(clean(rest), v, cap)
		r.Letter = letter
		return r, true, nil
	}

	a := extractRuleAmounts(body)
	if !a.hasPenalty {
		return DeductionRule{}, false, nil
	}
	r := newRule(a.rest, a.penalty, a.cap)
	r.Letter = letter
	return r, true, nil
}

func newRule(trigger string, penalty, cap float64) DeductionRule {
	r := DeductionRule{Trigger: trigger, Penalty: penalty, Cap: cap}
	// The occurrence cap rounds up so the stated cap stays reachable; the
	// charge itself is clamped to Cap.
	if cap > 0 && penalty > 0 {
		n := int(math.Ceil(cap/penalty - 1e-9))
		if n < 1 {
			n = 1
		}
		r.OccurrenceCap = n
	}
	return r
}

// parseAmount accepts plain decimal amounts only. ParseFloat alone would
// also take NaN, Inf and exponents.
func parseAmount(tok string) (float64, bool) {
	if !amountRe.MatchString(tok) {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	return v, err == nil
}

func startsWithMinus(s string) bool {
	for _, prefix := range []string{"-", "−", "–"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// leadingToken splits "-0.3: text" into "0.3" and ": text".
func leadingToken(s string) (tok, rest string, spaced bool) {
	_, size := utf8.DecodeRuneInString(s)
	s = s[size:]
	spaced = strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t")
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexAny(s, " \t:),")
	if end < 0 {
		end = len(s)
	}
	tok, rest = s[:end], s[end:]
	lower := strings.ToLower(tok)
	for _, u := range []string{"points", "point", "pts", "pt"} {
		if strings.HasSuffix(lower, u) && len(tok) > len(u) {
			tok = tok[:len(tok)-len(u)]
			break
		}
	}
	rest = unitPrefix.ReplaceAllString(strings.TrimLeft(rest, " \t"), "")
	return tok, rest, spaced
}

type amounts struct {
	penalty, cap, max float64
	hasPenalty        bool
	hasMax            bool
	repeat            bool
	rest              string
}

func extractCap(s string) (float64, string) {
	m := capRe.FindStringSubmatchIndex(s)
	if m == nil {
		m = capParenRe.FindStringSubmatchIndex(s)
	}
	if m == nil {
		return 0, s
	}
	v, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
	return v, s[:m[0]] + " " + s[m[1]:]
}

func extractRuleAmounts(s string) amounts {
	var a amounts
	if m := eachRe.FindStringSubmatchIndex(s); m != nil {
		a.penalty, _ = strconv.ParseFloat(s[m[2]:m[3]], 64)
		a.hasPenalty, a.repeat = true, true
		s = s[:m[0]] + " " + s[m[1]:]
	}
	a.cap, s = extractCap(s)
	if !a.hasPenalty {
		if m := plainRe.FindStringSubmatchIndex(s); m != nil {
			a.penalty, _ = strconv.ParseFloat(s[m[2]:m[3]], 64)
			a.hasPenalty = true
			s = s[:m[0]] + " " + s[m[1]:]
		}
	}
	a.rest = clean(s)
	return a
}

// extractHeading reads the maximum deduction (and a penalty, when the
// criterion doubles as its own rule) from a criterion heading.
func extractHeading(s string) amounts {
	var a amounts
	if m := eachRe.FindStringSubmatchIndex(s); m != nil {
		a.penalty, _ = strconv.ParseFloat(s[m[2]:m[3]], 64)
		a.hasPenalty, a.repeat = true, true
		s = s[:m[0]] + " " + s[m[1]:]
	}
	if v, rest := extractCap(s); rest != s {
		a.max, a.hasMax = v, true
		s = rest
	}
	if !a.hasMax {
		if m := ptsRe.FindStringSubmatchIndex(s); m != nil {
			a.max, _ = strconv.ParseFloat(s[m[2]:m[3]], 64)
			a.hasMax = true
			s = s[:m[0]] + " " + s[m[1]:]
		}
	}
	if !a.hasPenalty {
		if m := plainRe.FindStringSubmatchIndex(s); m != nil {
			a.penalty, _ = strconv.ParseFloat(s[m[2]:m[3]], 64)
			a.hasPenalty = true
			if !a.hasMax {
				a.max, a.hasMax = a.penalty, true
			}
			s = s[:m[0]] + " " + s[m[1]:]
		}
	}
	a.rest = clean(s)
	return a
}

func clean(s string) string {
	s = emptyParenRe.ReplaceAllString(s, " ")
	s = commaRunRe.ReplaceAllString(s, ", ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " \t,;:-−–()")
}
