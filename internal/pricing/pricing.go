package pricing

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/autograder/internal/oracle"
)

type ModelPricing struct {
	Input  float64 `yaml:"input" validate:"gte=0"`
	Output float64 `yaml:"output" validate:"gte=0"`
}

type Table struct {
	Providers map[string]map[string]ModelPricing `validate:"dive,dive"`
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	t := &Table{Providers: providers}
	if err := validator.New().Struct(t); err != nil {
		return nil, fmt.Errorf("validating pricing file %s: %w", path, err)
	}
	return t, nil
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if t.Providers == nil {
		return 0
	}
	models, ok := t.Providers[provider]
	if !ok {
		return 0
	}
	p, ok := models[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// UsageCost prices a set of recorded oracle calls.
func (t *Table) UsageCost(records []oracle.UsageRecord) float64 {
	var total float64
	for _, r := range records {
		total += t.Cost(r.Provider, r.Model, r.InputTokens, r.OutputTokens)
	}
	return total
}
