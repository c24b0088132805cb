package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getpup/evalrun"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	// APIKey authenticates against the API (required).
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers (default: the public OpenAI endpoint).
	BaseURL string

	// HTTPClient overrides the HTTP client (default: 60s timeout).
	HTTPClient *http.Client
}

// OpenAIClient evaluates requests against the OpenAI chat completions API.
// The model comes from the judge's TargetModel; responses are requested in
// JSON mode at temperature zero so verdicts stay parseable and repeatable.
type OpenAIClient struct {
	config OpenAIConfig
}

// NewOpenAIClient creates an OpenAIClient with the given configuration.
// Applies default values for BaseURL and HTTPClient if unset.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIClient{config: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Evaluate sends one chat completion request and parses the verdict out of
// the reply.
func (c *OpenAIClient) Evaluate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Judge.TargetModel,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt(req.Judge)},
			{Role: "user", Content: BuildUserPrompt(req.Question, req.Include)},
		},
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.config.HTTPClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("failed to call chat completions: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return Result{}, fmt.Errorf("chat completions returned %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return Result{}, fmt.Errorf("chat completions returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completions returned no choices")
	}

	return parseResult(parsed.Choices[0].Message.Content)
}

type verdictPayload struct {
	Verdict   string `json:"verdict"`
	Reasoning string `json:"reasoning"`
}

// parseResult extracts the verdict JSON from the model's reply. Models
// sometimes wrap JSON in a markdown code fence even in JSON mode, so fences
// are stripped before decoding. A missing reasoning field decodes to the
// empty string rather than an error.
func parseResult(content string) (Result, error) {
	var payload verdictPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return Result{}, fmt.Errorf("failed to decode verdict payload: %w", err)
	}

	verdict, err := evalrun.ParseVerdict(payload.Verdict)
	if err != nil {
		return Result{}, err
	}
	return Result{Verdict: verdict, Reasoning: payload.Reasoning}, nil
}

func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
