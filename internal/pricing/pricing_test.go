package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/autograder/internal/oracle"
	"github.com/signalnine/autograder/internal/pricing"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func writePricing(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPricing(t *testing.T) {
	path := writePricing(t, `openai:
  gpt-4o:
    input: 0.0025
    output: 0.01
groq:
  llama-3.1-70b-versatile:
    input: 0.00059
    output: 0.00079
`)
	table, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cost := table.Cost("openai", "gpt-4o", 1000, 500)
	want := 0.0075
	if abs(cost-want) > 0.0001 {
		t.Errorf("got %f, want %f", cost, want)
	}
}

func TestLoadPricingRejectsNegative(t *testing.T) {
	path := writePricing(t, "openai:\n  gpt-4o:\n    input: -1\n    output: 0.01\n")
	if _, err := pricing.Load(path); err == nil {
		t.Error("expected validation error for negative price")
	}
}

func TestCostUnknownModel(t *testing.T) {
	table := &pricing.Table{}
	cost := table.Cost("unknown", "unknown", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestUsageCost(t *testing.T) {
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"openai": {"gpt-4o": {Input: 0.01, Output: 0.02}},
	}}
	records := []oracle.UsageRecord{
		{Provider: "openai", Model: "gpt-4o", InputTokens: 2000, OutputTokens: 1000},
		{Provider: "openai", Model: "gpt-4o", InputTokens: 1000, OutputTokens: 0},
		{Provider: "groq", Model: "unpriced", InputTokens: 5000, OutputTokens: 5000},
	}
	got := table.UsageCost(records)
	if abs(got-0.05) > 0.0001 {
		t.Errorf("got %f, want 0.05", got)
	}
}
