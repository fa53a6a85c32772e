package llm

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkravets/omnibot/internal/logger"
)

const (
	// OpenAIEndpoint is the default chat completions URL.
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// OpenAIRequestTimeout is the default timeout for API requests.
	OpenAIRequestTimeout = 120 * time.Second
)

// OpenAIConfig contains configuration for the OpenAI-compatible provider.
// BaseURL allows pointing the same adapter at any compatible gateway.
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// OpenAIProvider implements Provider for the OpenAI chat completions API and
// compatible backends.
type OpenAIProvider struct {
	client *http.Client
	config OpenAIConfig
	apiURL string
	logger *logger.Logger
}

type oaiRequest struct {
	Messages    []oaiMessage `json:"messages"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiTool struct {
	Type     string         `json:"type"`
	Function map[string]any `json:"function"`
}

type oaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaiResponse struct {
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type oaiAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// NewOpenAIProvider creates a provider against cfg.BaseURL (or the OpenAI
// default when empty).
func NewOpenAIProvider(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = OpenAIRequestTimeout
	}

	apiURL := cfg.BaseURL
	if apiURL == "" {
		apiURL = OpenAIEndpoint
	}

	return &OpenAIProvider{
		client: &http.Client{Timeout: timeout},
		config: cfg,
		apiURL: apiURL,
		logger: log,
	}
}

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx stdcontext.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(p.mapChatRequest(req))
	if err != nil {
		return nil, NewProviderError(ErrorInvalidRequest, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(ErrorInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(ErrorTransient, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewProviderError(ErrorTransient, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, NewProviderError(ErrorTransient, fmt.Errorf("failed to decode response: %w", err))
	}
	if oaiResp.Error != nil {
		return nil, NewProviderError(ErrorInvalidRequest, fmt.Errorf("api error: %s", oaiResp.Error.Message))
	}
	if len(oaiResp.Choices) == 0 {
		return nil, NewProviderError(ErrorTransient, fmt.Errorf("api returned no choices"))
	}

	return p.mapChatResponse(&oaiResp), nil
}

// classifyHTTPError maps an HTTP status to the provider error taxonomy:
// 401/403 are auth, other 4xx are invalid requests, everything else
// (429, 5xx, unexpected codes) is transient.
func (p *OpenAIProvider) classifyHTTPError(status int, body []byte) *ProviderError {
	err := fmt.Errorf("http status %d: %s", status, string(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrorAuth, err)
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrorTransient, err)
	case status >= 400 && status < 500:
		return NewProviderError(ErrorInvalidRequest, err)
	default:
		return NewProviderError(ErrorTransient, err)
	}
}

func (p *OpenAIProvider) mapChatRequest(req ChatRequest) oaiRequest {
	out := oaiRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.Model == "" {
		out.Model = p.config.Model
	}

	out.Messages = make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, oaiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]oaiTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			out.Tools = append(out.Tools, oaiTool{
				Type: "function",
				Function: map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		out.ToolChoice = "auto"
	}

	return out
}

func (p *OpenAIProvider) mapChatResponse(resp *oaiResponse) *ChatResponse {
	choice := resp.Choices[0]

	out := &ChatResponse{
		Content: choice.Message.Content,
		Model:   resp.Model,
	}

	switch choice.FinishReason {
	case "tool_calls":
		out.FinishReason = FinishReasonToolCalls
	case "length":
		out.FinishReason = FinishReasonLength
	default:
		out.FinishReason = FinishReasonStop
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishReasonToolCalls
	}

	return out
}

// SupportsToolCalling implements Provider.
func (p *OpenAIProvider) SupportsToolCalling() bool { return true }

// GetDefaultModel implements Provider.
func (p *OpenAIProvider) GetDefaultModel() string { return p.config.Model }
