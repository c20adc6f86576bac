package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an oracle backed by any OpenAI-compatible chat
// completions endpoint.
type OpenAIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// JSONMode asks the endpoint for a JSON object response. Not every
	// compatible provider supports it.
	JSONMode bool

	AssignmentName   string
	AssignmentPrompt string
	Language         string

	Usage      *UsageLog
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	system string
	logger *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai oracle: model is required")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cc),
		cfg:    cfg,
		system: SystemPrompt(cfg.AssignmentName, cfg.AssignmentPrompt, cfg.Language),
		logger: logger,
	}, nil
}

func (o *OpenAI) Evaluate(ctx context.Context, req Request) (*RawJudgment, error) {
	creq := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.system},
			{Role: openai.ChatMessageRoleUser, Content: CriterionPrompt(req.Criterion, req.Submission)},
		},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}
	if o.cfg.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	o.logger.Debug("calling oracle", "model", o.cfg.Model, "criterion", req.Criterion.ID)
	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	o.cfg.Usage.Add(UsageRecord{
		Provider:     o.cfg.Provider,
		Model:        o.cfg.Model,
		CriterionID:  req.Criterion.ID,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}
	o.logger.Debug("oracle answered", "criterion", req.Criterion.ID, "finish_reason", resp.Choices[0].FinishReason)
	return ParseResponse(resp.Choices[0].Message.Content)
}

// classifyAPIError maps HTTP failures onto the adapter's retry policy:
// 429 and 5xx are transient, other 4xx are rejections.
func classifyAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case status >= 400:
		return fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}
