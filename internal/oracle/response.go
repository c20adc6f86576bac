package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

type wireAnswer struct {
	Triggered  []wireTrigger `json:"triggered"`
	Rationale  string        `json:"rationale"`
	Confidence json.Number   `json:"confidence"`
}

type wireTrigger struct {
	Rule        string      `json:"rule"`
	Occurrences json.Number `json:"occurrences"`
	Evidence    string      `json:"evidence"`
}

// UnmarshalJSON accepts a bare rule letter as shorthand for one occurrence.
func (t *wireTrigger) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		t.Occurrences = "1"
		return json.Unmarshal(data, &t.Rule)
	}
	type plain wireTrigger
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = wireTrigger(p)
	return nil
}

// ParseResponse decodes a model answer. The JSON object may be wrapped in a
// code fence or surrounded by prose; malformed JSON is repaired once before
// giving up.
func ParseResponse(content string) (*RawJudgment, error) {
	body := extractJSON(content)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrInvalidResponse)
	}
	var ans wireAnswer
	if err := json.Unmarshal([]byte(body), &ans); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		ans = wireAnswer{}
		if err := json.Unmarshal([]byte(repaired), &ans); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	raw := &RawJudgment{Rationale: ans.Rationale}
	if ans.Confidence != "" {
		if v, err := ans.Confidence.Float64(); err == nil {
			raw.Confidence = v
		}
	}
	for _, t := range ans.Triggered {
		if strings.TrimSpace(t.Rule) == "" {
			continue
		}
		raw.Triggered = append(raw.Triggered, RawTrigger{
			Rule:        t.Rule,
			Occurrences: occurrences(t.Occurrences),
			Evidence:    t.Evidence,
		})
	}
	return raw, nil
}

func occurrences(n json.Number) int {
	if n == "" {
		return 1
	}
	if v, err := strconv.Atoi(string(n)); err == nil {
		return v
	}
	if v, err := n.Float64(); err == nil {
		return int(math.Round(v))
	}
	return 1
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		content = strings.TrimSpace(rest)
	}
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return content[start:]
	}
	return content[start : end+1]
}
