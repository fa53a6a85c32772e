package llm

import (
	"context"
	"errors"
	"sync"
)

// MockProvider is a scriptable Provider for tests: it returns queued
// responses in order and records every request it receives.
type MockProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	errs      []error
	requests  []ChatRequest
	index     int
	fallback  *ChatResponse
}

// NewMockProvider creates an empty mock. With no scripted responses it
// answers every call with a fixed "ok" completion.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		fallback: &ChatResponse{Content: "ok", FinishReason: FinishReasonStop},
	}
}

// Queue appends a scripted response.
func (m *MockProvider) Queue(resp *ChatResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, nil)
	return m
}

// QueueContent appends a scripted final-content response.
func (m *MockProvider) QueueContent(content string) *MockProvider {
	return m.Queue(&ChatResponse{Content: content, FinishReason: FinishReasonStop})
}

// QueueToolCalls appends a scripted response requesting the given tool calls.
func (m *MockProvider) QueueToolCalls(calls ...ToolCall) *MockProvider {
	return m.Queue(&ChatResponse{FinishReason: FinishReasonToolCalls, ToolCalls: calls})
}

// QueueError appends a scripted failure.
func (m *MockProvider) QueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(ErrorTransient, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.index >= len(m.responses) {
		if m.fallback != nil {
			return m.fallback, nil
		}
		return nil, NewProviderError(ErrorInvalidRequest, errors.New("mock provider: no scripted response left"))
	}

	resp, err := m.responses[m.index], m.errs[m.index]
	m.index++
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SupportsToolCalling implements Provider.
func (m *MockProvider) SupportsToolCalling() bool { return true }

// GetDefaultModel implements Provider.
func (m *MockProvider) GetDefaultModel() string { return "mock" }

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many Chat calls were made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
