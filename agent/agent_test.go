package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/core"
	"council/model"
	"council/persona"
)

func TestInvokeAccumulatesHistory(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockCompleter("test-model")
	a := New("worker_1", core.RoleWorker, mock, func(o *AgentOptions) {
		o.SystemPrompt = "You are a careful engineer."
	})

	_, _, err := a.Invoke(ctx, "first prompt")
	require.NoError(t, err)
	_, _, err = a.Invoke(ctx, "second prompt")
	require.NoError(t, err)

	// Second call carries the full first exchange.
	require.Len(t, mock.Calls, 2)
	second := mock.Calls[1]
	assert.Equal(t, "You are a careful engineer.", second.SystemPrompt)
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "first prompt", second.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, "second prompt", second.Messages[2].Content)

	assert.Len(t, a.Messages(), 4)
}

func TestInvokeUsage(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockCompleter("test-model")
	a := New("worker_1", core.RoleWorker, mock, func(o *AgentOptions) {
		o.ContextLimit = 1000
	})

	_, call, err := a.Invoke(ctx, "hello there")
	require.NoError(t, err)
	assert.Positive(t, call.TotalTokens)
	assert.Equal(t, 1000, call.ContextLimit)

	_, _, err = a.Invoke(ctx, "again")
	require.NoError(t, err)
	total := a.Usage()
	assert.Equal(t, total.InputTokens+total.OutputTokens, total.TotalTokens)
	assert.Equal(t, 1000, total.ContextLimit)
}

func TestInvokeErrorLeavesLogUntouched(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockCompleter("test-model")
	mock.FailNext(&model.TransportError{Provider: "mock", Err: context.DeadlineExceeded})
	a := New("worker_1", core.RoleWorker, mock)

	_, _, err := a.Invoke(ctx, "prompt")
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
	// A failed call leaves the log untouched so the round can be retried.
	assert.Empty(t, a.Messages())
}

func TestSharedContextInjection(t *testing.T) {
	ctx := context.Background()
	mock := model.NewMockCompleter("test-model")

	sess := NewSession("s1")
	w1 := New("worker_1", core.RoleWorker, mock)
	w2 := New("worker_2", core.RoleWorker, mock)
	sess.Add(w1)
	sess.Add(w2)

	_, _, err := sess.Invoke(ctx, "worker_1", "draft something")
	require.NoError(t, err)

	// Private during refinement: no shared block even after transition
	// seeds would exist.
	sess.TransitionTo(PhaseRefinement)
	_, _, err = sess.Invoke(ctx, "worker_2", "refine")
	require.NoError(t, err)
	for _, m := range mock.Calls[1].Messages {
		assert.NotContains(t, m.Content, "[SHARED CONTEXT FROM OTHER WORKERS]")
	}

	sess.TransitionTo(PhaseArgumentation)
	_, _, err = sess.Invoke(ctx, "worker_2", "argue")
	require.NoError(t, err)

	last := mock.Calls[len(mock.Calls)-1]
	var found bool
	for _, m := range last.Messages {
		if strings.Contains(m.Content, "[SHARED CONTEXT FROM OTHER WORKERS]") {
			found = true
			assert.Contains(t, m.Content, "[WORKER_1 REFINED PROPOSAL]")
			assert.Contains(t, m.Content, "[END SHARED CONTEXT]")
		}
	}
	assert.True(t, found)
}

func TestTransitionSeedsSharedOnce(t *testing.T) {
	mock := model.NewMockCompleter("test-model")
	sess := NewSession("s1")
	w := New("worker_1", core.RoleWorker, mock)
	sess.Add(w)
	w.Append(model.RoleAssistant, "my refined position")

	sess.TransitionTo(PhaseArgumentation)
	first := sess.SharedSummary(0)
	assert.Contains(t, first, "my refined position")

	// Re-entering a shared phase does not duplicate the seed.
	sess.TransitionTo(PhaseCollaboration)
	sess.TransitionTo(PhaseArgumentation)
	assert.Equal(t, first, sess.SharedSummary(0))
}

func TestSwapPersona(t *testing.T) {
	mock := model.NewMockCompleter("test-model")
	sess := NewSession("s1")
	w := New("worker_1", core.RoleWorker, mock)
	sess.Add(w)
	w.Append(model.RoleUser, "prompt")
	w.Append(model.RoleAssistant, "reply")
	w.Draft = &core.Draft{Summary: "original idea"}

	skeptic := &persona.Persona{ID: "p1", Name: "Skeptic", SystemPrompt: "Doubt everything."}
	builder := &persona.Persona{ID: "p2", Name: "Builder", SystemPrompt: "Construct."}

	_, err := sess.SwapPersona("worker_1", skeptic, SwapKeepAll)
	require.NoError(t, err)
	assert.Len(t, w.Messages(), 2)
	assert.Equal(t, "original idea", w.Draft.Summary)
	assert.Equal(t, "Doubt everything.", w.SystemPrompt())

	archived, err := sess.SwapPersona("worker_1", builder, SwapArchive)
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.Equal(t, "Skeptic", archived.PersonaName)
	assert.Equal(t, "original idea", archived.Draft.Summary)
	assert.Empty(t, w.Messages())
	assert.Nil(t, w.Draft)
	assert.Len(t, sess.Archived("worker_1"), 1)

	w.Append(model.RoleAssistant, "new thinking")
	w.Draft = &core.Draft{Summary: "second idea"}
	_, err = sess.SwapPersona("worker_1", skeptic, SwapRestart)
	require.NoError(t, err)
	assert.Empty(t, w.Messages())
	assert.Nil(t, w.Draft)
	// Restart never archives.
	assert.Len(t, sess.Archived("worker_1"), 1)

	_, err = sess.SwapPersona("worker_1", skeptic, SwapAction("merge"))
	assert.Error(t, err)
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	mock := model.NewMockCompleter("test-model")
	sess := NewSession("s1")
	w := New("worker_1", core.RoleWorker, mock)
	sess.Add(w)
	w.Append(model.RoleUser, "prompt")
	w.Append(model.RoleAssistant, "reply")
	w.Draft = &core.Draft{Summary: "idea", Confidence: 0.8}
	sess.TransitionTo(PhaseArgumentation)

	raw, err := json.Marshal(sess.Snapshot())
	require.NoError(t, err)

	var state SessionState
	require.NoError(t, json.Unmarshal(raw, &state))

	restored := NewSession("s1")
	w2 := New("worker_1", core.RoleWorker, mock)
	restored.Add(w2)
	require.NoError(t, restored.Restore(state))

	assert.Equal(t, PhaseArgumentation, restored.Phase())
	assert.Equal(t, w.Messages(), w2.Messages())
	require.NotNil(t, w2.Draft)
	assert.Equal(t, "idea", w2.Draft.Summary)
	assert.Equal(t, sess.SharedSummary(0), restored.SharedSummary(0))
}

func TestCountTokensFallback(t *testing.T) {
	n := CountTokens("some reasonably sized piece of text for counting")
	assert.Positive(t, n)
}
