package oracle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autograder/internal/oracle"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
	}
}

func TestOpenAIEvaluate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion("```json\n{\"triggered\":[{\"rule\":\"a\",\"occurrences\":2}],\"rationale\":\"two missing\",\"confidence\":4}\n```"))
	}))
	defer srv.Close()

	var logBuf bytes.Buffer
	usage := oracle.NewUsageLog(&logBuf)
	o, err := oracle.NewOpenAI(oracle.OpenAIConfig{
		Provider:         "openai",
		BaseURL:          srv.URL + "/v1",
		APIKey:           "sk-test",
		Model:            "test-model",
		JSONMode:         true,
		AssignmentName:   "Triangles",
		AssignmentPrompt: "Print a triangle of stars.",
		Language:         "Java",
		Usage:            usage,
	})
	require.NoError(t, err)

	raw, err := o.Evaluate(context.Background(), oracle.Request{Criterion: examples, Submission: "public class Tri {}"})
	require.NoError(t, err)
	require.Len(t, raw.Triggered, 1)
	assert.Equal(t, "a", raw.Triggered[0].Rule)
	assert.Equal(t, 2, raw.Triggered[0].Occurrences)
	assert.Equal(t, "two missing", raw.Rationale)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Triangles")
	assert.Contains(t, got.Messages[0].Content, "Print a triangle of stars.")
	assert.Contains(t, got.Messages[1].Content, "CODE.2")
	assert.Contains(t, got.Messages[1].Content, "a) -0.3 per occurrence, at most 3 occurrence(s): missing example")
	assert.Contains(t, got.Messages[1].Content, "public class Tri {}")
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)

	records := usage.Records()
	require.Len(t, records, 1)
	assert.Equal(t, oracle.UsageRecord{Provider: "openai", Model: "test-model", CriterionID: "CODE.2", InputTokens: 120, OutputTokens: 30}, records[0])
	assert.Contains(t, logBuf.String(), `"input_tokens":120`)
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, oracle.ErrTransient},
		{"server error", http.StatusBadGateway, oracle.ErrTransient},
		{"bad request", http.StatusBadRequest, oracle.ErrRejected},
		{"unauthorized", http.StatusUnauthorized, oracle.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"test_error"}}`))
			}))
			defer srv.Close()

			o, err := oracle.NewOpenAI(oracle.OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m"})
			require.NoError(t, err)
			_, err = o.Evaluate(context.Background(), oracle.Request{Criterion: examples, Submission: "x"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[],"usage":{}}`))
	}))
	defer srv.Close()

	o, err := oracle.NewOpenAI(oracle.OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)
	_, err = o.Evaluate(context.Background(), oracle.Request{Criterion: examples, Submission: "x"})
	assert.ErrorIs(t, err, oracle.ErrInvalidResponse)
}

func TestNewOpenAIRequiresModel(t *testing.T) {
	_, err := oracle.NewOpenAI(oracle.OpenAIConfig{})
	assert.Error(t, err)
}
