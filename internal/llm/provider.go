// Package llm defines the provider-facing contract: chat message types, the
// Provider interface every vendor adapter implements, and the provider error
// taxonomy the executor's retry logic is driven by.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider is implemented by each LLM vendor adapter.
type Provider interface {
	// Chat sends a completion request and returns the model's reply.
	// Failures are reported as *ProviderError.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// SupportsToolCalling reports whether tool definitions may be sent.
	SupportsToolCalling() bool

	// GetDefaultModel returns the model used when none is requested.
	GetDefaultModel() string
}

// Role represents the role of a message sender in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single message in the chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID is set for RoleTool messages to identify which tool call
	// this result answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonError     FinishReason = "error"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments is a JSON string with the call's parameters.
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Messages    []Message        `json:"messages"`
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse is the model's reply: either final content, or one or more
// tool calls with FinishReasonToolCalls.
type ChatResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Model        string       `json:"model,omitempty"`
}

// ErrorKind classifies provider failures for retry purposes.
type ErrorKind string

const (
	// ErrorTransient is retryable with backoff: timeouts, rate limits, 5xx.
	ErrorTransient ErrorKind = "transient"
	// ErrorAuth is a credentials problem; never retried.
	ErrorAuth ErrorKind = "auth"
	// ErrorInvalidRequest is a malformed request; never retried.
	ErrorInvalidRequest ErrorKind = "invalid_request"
)

// ProviderError is the typed failure returned by Provider implementations.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err with the given kind.
func NewProviderError(kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

// IsTransient reports whether err is a provider error worth retrying.
// Unclassified errors are treated as transient so that plain transport
// failures from an adapter still get the backoff path.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == ErrorTransient
	}
	return err != nil
}
