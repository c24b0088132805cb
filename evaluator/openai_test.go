package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getpup/evalrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		Judge: evalrun.Judge{
			ID:           "j1",
			SystemPrompt: "Grade strictly.",
			TargetModel:  "gpt-4o",
		},
		Question: evalrun.QuestionAnswer{
			QuestionText: "What is 2+2?",
			AnswerChoice: "4",
		},
		Include: DefaultIncludedFields(),
	}
}

func TestOpenAIClient_Evaluate(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"verdict\": \"PASS\", \"reasoning\": \"Correct.\"}"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Evaluate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, evalrun.VerdictPass, result.Verdict)
	assert.Equal(t, "Correct.", result.Reasoning)

	assert.Equal(t, "gpt-4o", captured.Model)
	assert.Equal(t, float64(0), captured.Temperature)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "Grade strictly.")
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "What is 2+2?")
}

func TestOpenAIClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Evaluate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAIClient_InvalidVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"verdict\": \"SHRUG\"}"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Evaluate(context.Background(), testRequest())
	assert.ErrorIs(t, err, evalrun.ErrInvalidVerdict)
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}
