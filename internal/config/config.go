package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/autograder/internal/secrets"
)

// DefaultFile is read when no --config flag is given and it exists.
const DefaultFile = "autograder.yaml"

type Config struct {
	Oracle     Oracle              `yaml:"oracle"`
	Providers  map[string]Provider `yaml:"providers" validate:"dive"`
	Models     map[string]Model    `yaml:"models" validate:"dive"`
	Grading    Grading             `yaml:"grading"`
	Identity   Identity            `yaml:"identity"`
	Assignment Assignment          `yaml:"assignment"`
	Results    Results             `yaml:"results"`
	Secrets    Secrets             `yaml:"secrets"`
	Pricing    Pricing             `yaml:"pricing"`
}

type Oracle struct {
	// Model is a key of Models or a provider model name used as is.
	Model          string        `yaml:"model" validate:"required"`
	Provider       string        `yaml:"provider"`
	Temperature    float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int           `yaml:"max_tokens" validate:"gte=0"`
	JSONMode       bool          `yaml:"json_mode"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	BackoffInitial time.Duration `yaml:"backoff_initial" validate:"gt=0"`
	BackoffMax     time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffInitial"`
	RateLimit      float64       `yaml:"rate_limit" validate:"gte=0"`
	MemoSize       int           `yaml:"memo_size" validate:"gte=0"`
}

type Provider struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Model struct {
	Provider string `yaml:"provider" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
}

type Grading struct {
	Concurrency        int      `yaml:"concurrency" validate:"gte=1"`
	OracleConcurrency  int      `yaml:"oracle_concurrency" validate:"gte=1"`
	ConcurrentCriteria bool     `yaml:"concurrent_criteria"`
	MaxSubmissionChars int      `yaml:"max_submission_chars" validate:"gte=0"`
	Extensions         []string `yaml:"extensions" validate:"dive,startswith=."`
	Language           string   `yaml:"language"`
}

type Identity struct {
	Patterns []string `yaml:"patterns"`
}

type Assignment struct {
	PDF  string `yaml:"pdf"`
	Text string `yaml:"text"`
	// Image runs pdftotext when extracting the assignment from a PDF.
	Image string `yaml:"image"`
}

type Results struct {
	Dir    string `yaml:"dir" validate:"required"`
	Format string `yaml:"format" validate:"oneof=table markdown json csv tsv"`
	Sort   string `yaml:"sort" validate:"omitempty,oneof=student source score"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Pricing struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Oracle: Oracle{
			Model:          "gpt-4o",
			Provider:       "openai",
			MaxTokens:      2048,
			Timeout:        2 * time.Minute,
			MaxAttempts:    3,
			BackoffInitial: time.Second,
			BackoffMax:     30 * time.Second,
		},
		Providers: map[string]Provider{
			"openai":    {BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
			"groq":      {BaseURL: "https://api.groq.com/openai/v1", APIKeyEnv: "GROQ_API_KEY"},
			"gemini":    {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", APIKeyEnv: "GEMINI_API_KEY"},
			"anthropic": {BaseURL: "https://api.anthropic.com/v1", APIKeyEnv: "ANTHROPIC_API_KEY"},
		},
		Models: map[string]Model{},
		Grading: Grading{
			Concurrency:        4,
			OracleConcurrency:  8,
			MaxSubmissionChars: 100_000,
			Extensions:         []string{".java"},
			Language:           "Java",
		},
		Assignment: Assignment{Image: "minidocks/poppler:latest"},
		Results:    Results{Dir: "results", Format: "csv"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks struct constraints and that the oracle model resolves
// to a configured provider.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	for alias, m := range c.Models {
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q: unknown provider %q", alias, m.Provider)
		}
	}
	if _, _, _, err := c.ResolveModel(); err != nil {
		return err
	}
	return nil
}

// ResolveModel returns the provider name, its settings and the provider's
// model name for Oracle.Model.
func (c *Config) ResolveModel() (string, Provider, string, error) {
	name, provider := c.Oracle.Model, c.Oracle.Provider
	if m, ok := c.Models[c.Oracle.Model]; ok {
		name, provider = m.Name, m.Provider
	}
	if provider == "" {
		return "", Provider{}, "", fmt.Errorf("model %q: no provider configured", c.Oracle.Model)
	}
	p, ok := c.Providers[provider]
	if !ok {
		return "", Provider{}, "", fmt.Errorf("model %q: unknown provider %q (known: %s)", c.Oracle.Model, provider, strings.Join(c.ProviderNames(), ", "))
	}
	return provider, p, name, nil
}

func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for n := range c.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// APIKey reads the provider's key from the environment or a mounted
// secret file.
func (p Provider) APIKey() string {
	v, _ := secrets.Lookup(p.APIKeyEnv)
	return v
}
