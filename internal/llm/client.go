package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// OutputMode selects how the model's output is constrained. In schema
// mode the adapter either returns a value conforming to the schema or
// fails; it never silently returns unconstrained text.
type OutputMode string

const (
	OutputModeText   OutputMode = "text"
	OutputModeSchema OutputMode = "json_schema"
)

type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Mode         OutputMode
	SchemaName   string
	Schema       string
	Timeout      time.Duration
}

type CompletionResult struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type HTTPClient struct {
	apiKey       string
	defaultModel string
	baseURL      string
	httpClient   *http.Client
}

func NewHTTPClient(apiKey string, model string) *HTTPClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPClient{
		apiKey:       apiKey,
		defaultModel: model,
		baseURL:      baseURL,
		httpClient:   &http.Client{},
	}
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if c.apiKey == "" {
		return CompletionResult{}, fmt.Errorf("OPENAI_API_KEY is required")
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	responseFormat, err := responseFormatFor(req)
	if err != nil {
		return CompletionResult{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature:    0,
		ResponseFormat: responseFormat,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResult{}, fmt.Errorf("unable to parse model response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return CompletionResult{}, fmt.Errorf("model request failed: %s", parsed.Error.Message)
		}
		return CompletionResult{}, fmt.Errorf("model request failed with status %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("model returned zero choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return CompletionResult{}, fmt.Errorf("model returned empty content")
	}
	return CompletionResult{Content: content, Usage: parsed.Usage}, nil
}

func responseFormatFor(req CompletionRequest) (map[string]any, error) {
	switch req.Mode {
	case OutputModeText, "":
		return nil, nil
	case OutputModeSchema:
		if req.Schema == "" {
			return nil, fmt.Errorf("schema mode requires a schema")
		}
		var schema map[string]any
		if err := json.Unmarshal([]byte(req.Schema), &schema); err != nil {
			return nil, fmt.Errorf("invalid output schema: %w", err)
		}
		name := req.SchemaName
		if name == "" {
			name = "extraction"
		}
		return map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"strict": true,
				"schema": schema,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output mode %q", req.Mode)
	}
}
