package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCompleterMatchesSubstring(t *testing.T) {
	m := NewMockCompleter("test-model")
	m.AddResponse("propose", `{"summary":"plan A"}`)

	resp, err := m.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Please propose a design."}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"plan A"}`, resp.Text)
	assert.Len(t, m.Calls, 1)
}

func TestMockCompleterEchoesUnmatched(t *testing.T) {
	m := NewMockCompleter("test-model")
	resp, err := m.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "hello")
}

func TestIsTransient(t *testing.T) {
	te := &TransportError{Provider: "anthropic", Err: errors.New("connection reset")}
	assert.True(t, IsTransient(te))
	assert.True(t, IsTransient(errors.Join(errors.New("outer"), te)))
	assert.False(t, IsTransient(ErrUnavailable))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestRetryCompleterRecoversFromTransient(t *testing.T) {
	m := NewMockCompleter("test-model")
	m.AddResponse("go", "ok")
	m.FailNext(&TransportError{Provider: "mock", Err: errors.New("timeout")})

	r := NewRetryCompleter(m, func(o *RetryOptions) {
		o.Config = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2.0}
	})
	resp, err := r.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Len(t, m.Calls, 2)
}

func TestRetryCompleterStopsOnPermanentError(t *testing.T) {
	m := NewMockCompleter("test-model")
	m.FailNext(ErrUnavailable)

	r := NewRetryCompleter(m, func(o *RetryOptions) {
		o.Config = RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1.0}
	})
	_, err := r.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, m.Calls, 1)
}

func TestRetryCompleterExhaustsBudget(t *testing.T) {
	m := NewMockCompleter("test-model")
	te := &TransportError{Provider: "mock", Err: errors.New("503")}
	m.FailNext(te, te, te)

	var retries int
	r := NewRetryCompleter(m, func(o *RetryOptions) {
		o.Config = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1.0}
	})
	r.OnRetry = func(int, error) { retries++ }

	_, err := r.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "go"}},
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2, retries)
	assert.Len(t, m.Calls, 3)
}
