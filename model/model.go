package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message roles accepted by providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of conversation handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request captures the normalized model input produced by agents.
type Request struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	// MaxOutputTokens caps the completion length. Zero selects the
	// provider default.
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	// StructuredOutput hints that the caller will parse the reply as JSON.
	// Providers that support a JSON response mode enable it.
	StructuredOutput bool `json:"structured_output,omitempty"`
}

// Response is the completed model output with token accounting.
type Response struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Info contains metadata about a backend implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Completer is the minimal interface agents use to drive generation.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the backend implementation.
	Info() Info
}

// ErrUnavailable reports that a backend is permanently unreachable for this
// session (bad credentials, unknown model). It is not retried.
var ErrUnavailable = errors.New("model backend unavailable")

// TransportError wraps a transient provider failure (timeouts, connection
// resets, rate limits, 5xx). Transport errors are candidates for retry.
type TransportError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// MockCompleter is a lightweight in-memory Completer for tests & examples.
// Canned responses are matched by substring of the last user message; the
// first registered match wins. Unmatched prompts get an echo response.
type MockCompleter struct {
	mu        sync.Mutex
	info      Info
	keys      []string
	responses map[string]string
	errs      []error
	// Calls records every request for assertions.
	Calls []Request
}

// NewMockCompleter constructs a MockCompleter.
func NewMockCompleter(name string) *MockCompleter {
	return &MockCompleter{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion returned when the last user
// message contains substr.
func (m *MockCompleter) AddResponse(substr, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.responses[substr]; !ok {
		m.keys = append(m.keys, substr)
	}
	m.responses[substr] = response
}

// FailNext queues errors returned by subsequent calls before any canned
// response is consulted.
func (m *MockCompleter) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return Response{}, err
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	text := ""
	for _, k := range m.keys {
		if strings.Contains(last, k) {
			text = m.responses[k]
			break
		}
	}
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", last)
	}
	return Response{
		Text:         text,
		Model:        m.info.Name,
		FinishReason: "stop",
		InputTokens:  estimateTokens(req),
		OutputTokens: len(text) / 4,
	}, nil
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return m.info }

func estimateTokens(req Request) int {
	n := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		n += len(msg.Content)
	}
	return n / 4
}
