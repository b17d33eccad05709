package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/core"
	"council/journal"
)

func TestLookupMissThenHit(t *testing.T) {
	ctx := context.Background()
	c := New(journal.NewMemory())

	var hits, misses int
	c.OnHit = func(core.Stage) { hits++ }
	c.OnMiss = func(core.Stage) { misses++ }

	_, ok := c.Lookup(ctx, "s1", core.StageWorkerDrafts, "w1", "prompt text")
	assert.False(t, ok)

	require.NoError(t, c.Record(ctx, &journal.Entry{
		SessionID: "s1", Stage: core.StageWorkerDrafts, AgentID: "w1",
		InputText: "prompt text", Output: `{"summary": "cached"}`,
	}))

	e, ok := c.Lookup(ctx, "s1", core.StageWorkerDrafts, "w1", "prompt text")
	require.True(t, ok)
	assert.Equal(t, `{"summary": "cached"}`, e.Output)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestLookupDistinguishesInputs(t *testing.T) {
	ctx := context.Background()
	c := New(journal.NewMemory())

	require.NoError(t, c.Record(ctx, &journal.Entry{
		SessionID: "s1", Stage: core.StageWorkerDrafts, AgentID: "w1",
		InputText: "prompt A", Output: "a",
	}))

	_, ok := c.Lookup(ctx, "s1", core.StageWorkerDrafts, "w1", "prompt B")
	assert.False(t, ok)
}
