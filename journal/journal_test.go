package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/core"
)

func testJournals(t *testing.T) map[string]Journal {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Journal{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestAppendAndFind(t *testing.T) {
	for name, j := range testJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := &Entry{
				SessionID: "s1",
				Stage:     core.StageWorkerDrafts,
				AgentID:   "w1",
				Round:     1,
				InputText: "draft the thing",
				Output:    `{"summary": "done"}`,
				Usage:     core.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
				Metadata:  map[string]string{"persona": "analyst"},
			}
			require.NoError(t, j.Append(ctx, e))
			assert.NotEmpty(t, e.ID)
			assert.Equal(t, HashInput("draft the thing"), e.InputHash)

			got, err := j.Find(ctx, "s1", core.StageWorkerDrafts, "w1", HashInput("draft the thing"))
			require.NoError(t, err)
			assert.Equal(t, e.Output, got.Output)
			assert.Equal(t, 15, got.Usage.TotalTokens)
			assert.Equal(t, "analyst", got.Metadata["persona"])
		})
	}
}

func TestFindReturnsLatestMatch(t *testing.T) {
	for name, j := range testJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, out := range []string{"first", "second"} {
				require.NoError(t, j.Append(ctx, &Entry{
					SessionID: "s1", Stage: core.StageWorkerRefinement, AgentID: "w1",
					InputText: "same input", Output: out,
				}))
			}
			got, err := j.Find(ctx, "s1", core.StageWorkerRefinement, "w1", HashInput("same input"))
			require.NoError(t, err)
			assert.Equal(t, "second", got.Output)
		})
	}
}

func TestFindMissScopedBySession(t *testing.T) {
	for name, j := range testJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, j.Append(ctx, &Entry{
				SessionID: "s1", Stage: core.StageWorkerDrafts, AgentID: "w1",
				InputText: "in", Output: "out",
			}))
			_, err := j.Find(ctx, "other", core.StageWorkerDrafts, "w1", HashInput("in"))
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = j.Find(ctx, "s1", core.StageWorkerDrafts, "w2", HashInput("in"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestEntriesPreserveOrder(t *testing.T) {
	for name, j := range testJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, stage := range []core.Stage{core.StageWorkerDrafts, core.StageSynthQuestions, core.StageWorkerRefinement} {
				require.NoError(t, j.Append(ctx, &Entry{
					SessionID: "s1", Stage: stage, AgentID: "w1",
					Round: i, InputText: string(stage), Output: "out",
				}))
			}
			entries, err := j.Entries(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, core.StageWorkerDrafts, entries[0].Stage)
			assert.Equal(t, core.StageWorkerRefinement, entries[2].Stage)
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for name, j := range testJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := j.LoadSnapshot(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, j.SaveSnapshot(ctx, "s1", []byte(`{"stage": "drafting"}`)))
			require.NoError(t, j.SaveSnapshot(ctx, "s1", []byte(`{"stage": "critique"}`)))

			state, err := j.LoadSnapshot(ctx, "s1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"stage": "critique"}`, string(state))
		})
	}
}
