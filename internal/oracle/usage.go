package oracle

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

type UsageRecord struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	CriterionID  string `json:"criterion_id,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// UsageLog collects token usage across concurrent oracle calls. When a
// writer is attached every record is also appended to it as a JSON line.
type UsageLog struct {
	mu      sync.Mutex
	records []UsageRecord
	w       io.Writer
}

func NewUsageLog(w io.Writer) *UsageLog {
	return &UsageLog{w: w}
}

func (l *UsageLog) Add(rec UsageRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if l.w != nil {
		data, err := json.Marshal(rec)
		if err == nil {
			l.w.Write(append(data, '\n'))
		}
	}
}

func (l *UsageLog) Records() []UsageRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]UsageRecord(nil), l.records...)
}

// ParseUsageLog reads a JSON-lines usage file. Lines that are not usage
// records are skipped.
func ParseUsageLog(path string) ([]UsageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading usage log: %w", err)
	}
	var records []UsageRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Model != "" {
			records = append(records, rec)
		}
	}
	return records, sc.Err()
}

func TotalUsage(records []UsageRecord) (inputTokens, outputTokens int) {
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	return
}
