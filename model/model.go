package model

import (
	"context"
	"errors"
	"fmt"
)

// Request captures the normalized generation input produced by the stages.
// Instructions carries the system prompt; Prompt the user-facing content.
type Request struct {
	Instructions string  `json:"instructions"`
	Prompt       string  `json:"prompt"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// TokenUsage captures token accounting for a response when the provider
// reports it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed generation result.
type Response struct {
	Text  string      `json:"text"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Generator is the minimal interface the stages require to drive text
// generation. Implementations must respect context cancellation and wrap
// provider failures in a ProviderError.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the generator implementation.
	Info() Info
}

// ProviderError wraps a failure from an external model provider. Stage
// executors classify these rather than letting them escape the stage
// boundary.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// MockGenerator is a lightweight in-memory Generator useful for tests and
// examples. Responses are keyed by prompt; unmatched prompts receive a
// deterministic default unless a scripted error is set.
type MockGenerator struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockGenerator constructs a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockGenerator) AddResponse(prompt, response string) { m.responses[prompt] = response }

// FailWith makes every subsequent Generate call fail with a ProviderError
// wrapping err. Pass nil to clear.
func (m *MockGenerator) FailWith(err error) { m.err = err }

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, &ProviderError{Provider: "mock", Err: m.err}
	}
	if text, ok := m.responses[req.Prompt]; ok {
		return &Response{Text: text}, nil
	}
	return &Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }
