package council

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/config"
	"council/core"
	"council/journal"
	"council/model"
	"council/persona"
)

func drainEvents(ch <-chan core.Event) {
	for range ch {
	}
}

// The default config wires mock backends that echo prompts, which the
// degraded-output paths absorb: a council with no canned responses at all
// still deliberates end to end.
func TestEchoBackendFullSession(t *testing.T) {
	ctx := context.Background()
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	pipe, err := c.CreateSession("Should we split the monolith?")
	require.NoError(t, err)

	ch, err := pipe.Run(ctx)
	require.NoError(t, err)
	drainEvents(ch)
	require.Equal(t, core.StageAwaitingRoundFeedback, pipe.Stage())

	require.NoError(t, pipe.SubmitRoundFeedback(ctx, core.RoundFeedback{Skip: true}))
	ch, err = pipe.Continue(ctx)
	require.NoError(t, err)
	drainEvents(ch)
	require.Equal(t, core.StageUserVoting, pipe.Stage())

	// Echo output parses as no candidates, so the feedback-only
	// pseudo-candidate is on the ballot.
	state := pipe.FullState()
	require.Len(t, state.Candidates, 1)
	assert.Equal(t, core.FeedbackOnlyCandidateID, state.Candidates[0].ID)

	require.NoError(t, pipe.SubmitVotes(ctx, core.VoteSubmission{
		Votes: map[string]int{core.FeedbackOnlyCandidateID: 1},
	}))
	ch, err = pipe.Continue(ctx)
	require.NoError(t, err)
	drainEvents(ch)
	require.Equal(t, core.StageAwaitingFinalFeedback, pipe.Stage())
	assert.NotEmpty(t, pipe.FinalOutput())

	require.NoError(t, pipe.SubmitFinalFeedback(ctx, "", false))
	assert.Equal(t, core.StageComplete, pipe.Stage())
}

func TestSessionRegistry(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	pipe, err := c.CreateSession("prompt", func(o *SessionOptions) { o.SessionID = "fixed-id" })
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", pipe.SessionID())

	got, err := c.Session("fixed-id")
	require.NoError(t, err)
	assert.Same(t, pipe, got)
	assert.Equal(t, []string{"fixed-id"}, c.Sessions())

	c.Forget("fixed-id")
	_, err = c.Session("fixed-id")
	assert.Error(t, err)
}

func TestResumeSessionFromJournal(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	c, err := New(func(o *Options) { o.Journal = j })
	require.NoError(t, err)
	defer c.Close()

	pipe, err := c.CreateSession("prompt", func(o *SessionOptions) { o.SessionID = "resume-me" })
	require.NoError(t, err)
	ch, err := pipe.Run(ctx)
	require.NoError(t, err)
	drainEvents(ch)
	require.Equal(t, core.StageAwaitingRoundFeedback, pipe.Stage())

	c.Forget("resume-me")
	resumed, err := c.ResumeSession(ctx, "resume-me")
	require.NoError(t, err)
	assert.Equal(t, core.StageAwaitingRoundFeedback, resumed.Stage())
	assert.Equal(t, pipe.FullState().Drafts, resumed.FullState().Drafts)
}

func TestCreateSessionWithPersonas(t *testing.T) {
	reg := persona.NewRegistry(func(o *persona.Options) {
		o.Defaults = []persona.Persona{{
			ID:           "skeptic",
			Name:         "The Skeptic",
			SystemPrompt: "Challenge every assumption before accepting it.",
		}}
	})
	c, err := New(func(o *Options) { o.Registry = reg })
	require.NoError(t, err)
	defer c.Close()

	_, err = c.CreateSession("prompt", func(o *SessionOptions) {
		o.Personas = map[string]string{"worker_1": "skeptic"}
	})
	require.NoError(t, err)

	p, err := reg.Get("skeptic")
	require.NoError(t, err)
	assert.Equal(t, 1, p.UsageCount)

	_, err = c.CreateSession("prompt", func(o *SessionOptions) {
		o.Personas = map[string]string{"worker_1": "nobody"}
	})
	assert.Error(t, err)
}

func TestInjectedCompleters(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockCompleter("injected")
	m.AddResponse("Propose a solution", `{"summary": "canned plan", "confidence": 0.9}`)
	c, err := New(func(o *Options) {
		o.Completers = map[core.Role]model.Completer{core.RoleWorker: m}
	})
	require.NoError(t, err)
	defer c.Close()

	pipe, err := c.CreateSession("prompt")
	require.NoError(t, err)
	ch, err := pipe.Run(ctx)
	require.NoError(t, err)
	drainEvents(ch)

	state := pipe.FullState()
	require.Contains(t, state.Drafts, "worker_1")
	assert.Equal(t, "canned plan", state.Drafts["worker_1"].Summary)
	assert.NotEmpty(t, m.Calls)
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WorkerCount = 0
	_, err := New(func(o *Options) { o.Config = cfg })
	assert.Error(t, err)
}
