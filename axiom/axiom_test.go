package axiom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/structured"
)

func testSession() SessionInfo {
	return NewSessionInfo("abcdef1234567890", "How should we cache reads?", 2, []Persona{
		{ID: "p1", Name: "Skeptic"},
	})
}

func TestGenerateID(t *testing.T) {
	sess := "abcdef1234567890"

	assert.Equal(t, "ax_abcdef12_user_001", GenerateID(sess, UserSource(), 1))
	assert.Equal(t, "ax_abcdef12_w1_002", GenerateID(sess, WorkerSource("worker_1", "", ""), 2))
	assert.Equal(t, "ax_abcdef12_cur_003", GenerateID(sess, CuratorSource(), 3))
	assert.Equal(t, "ax_short_user_001", GenerateID("short", UserSource(), 1))
}

func TestBuilderIDsDistinctAndDeterministic(t *testing.T) {
	build := func() *Graph {
		b := NewBuilder(testSession())
		b.AddUserFindings([]structured.AxiomFinding{
			{Statement: "Latency matters more than cost"},
			{Statement: "Data is read-heavy"},
		})
		b.AddWorkerFindings("worker_1", "p1", "Skeptic", structured.AxiomAnalysis{
			Axioms: []structured.AxiomFinding{{Statement: "Cache invalidation dominates risk"}},
		})
		b.AddCuratorFindings([]structured.AxiomFinding{
			{Statement: "All parties assume a single region"},
		})
		return b.Build()
	}

	g1 := build()
	g2 := build()

	require.Len(t, g1.Nodes, 4)
	seen := make(map[string]bool)
	for id := range g1.Nodes {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, g1.NodeOrder(), g2.NodeOrder())
}

func TestBuilderDefaults(t *testing.T) {
	b := NewBuilder(testSession())
	b.AddUserFindings([]structured.AxiomFinding{{Statement: "u"}})
	b.AddWorkerFindings("worker_2", "", "", structured.AxiomAnalysis{
		Axioms: []structured.AxiomFinding{{
			Statement:     "w",
			Vulnerability: "breaks under write bursts",
			Biases:        []string{"recency"},
		}},
		TheoryContribution: "write-through is safest",
	})
	b.AddCuratorFindings([]structured.AxiomFinding{{Statement: "m", Type: "core", Confidence: 0.9}})
	g := b.Build()

	user := g.Nodes["ax_abcdef12_user_001"]
	require.NotNil(t, user)
	assert.Equal(t, "assumption", user.Type)
	assert.InDelta(t, 0.8, user.Confidence, 1e-9)

	worker := g.Nodes["ax_abcdef12_w2_001"]
	require.NotNil(t, worker)
	assert.Equal(t, "derived", worker.Type)
	assert.InDelta(t, 0.7, worker.Confidence, 1e-9)
	assert.Equal(t, "breaks under write bursts", worker.Vulnerability)
	assert.Equal(t, []string{"recency"}, worker.Biases)
	assert.Equal(t, "write-through is safest", worker.TheoryContribution)

	curator := g.Nodes["ax_abcdef12_cur_001"]
	require.NotNil(t, curator)
	assert.Equal(t, "meta", curator.Type)
	assert.InDelta(t, 0.9, curator.Confidence, 1e-9)
}

func TestBuildEdgesFromRelationships(t *testing.T) {
	b := NewBuilder(testSession())
	b.AddUserFindings([]structured.AxiomFinding{
		{Statement: "a"},
		{Statement: "b", DependsOn: []string{"ax_abcdef12_user_001"}},
		{Statement: "c", Enables: []string{"ax_abcdef12_user_002"}},
	})
	g := b.Build()

	require.Len(t, g.Edges, 2)
	assert.Equal(t, Edge{From: "ax_abcdef12_user_002", To: "ax_abcdef12_user_001", Type: "depends_on", Strength: 1.0}, g.Edges[0])
	assert.Equal(t, Edge{From: "ax_abcdef12_user_003", To: "ax_abcdef12_user_002", Type: "enables", Strength: 1.0}, g.Edges[1])
}

func TestGraphIndexes(t *testing.T) {
	b := NewBuilder(testSession())
	b.AddUserFindings([]structured.AxiomFinding{{Statement: "u"}})
	b.AddWorkerFindings("worker_1", "p1", "Skeptic", structured.AxiomAnalysis{
		Axioms: []structured.AxiomFinding{{Statement: "w1"}, {Statement: "w2"}},
	})
	g := b.Build()

	assert.Len(t, g.BySource["user"], 1)
	assert.Len(t, g.BySource["worker_1"], 2)
	assert.Len(t, g.ByPersona["default"], 1)
	assert.Len(t, g.ByPersona["Skeptic"], 2)
}

func TestSharedAndConflicts(t *testing.T) {
	b := NewBuilder(testSession())
	b.AddUserFindings([]structured.AxiomFinding{{Statement: "a"}})
	b.AddWorkerFindings("worker_1", "", "", structured.AxiomAnalysis{
		Axioms: []structured.AxiomFinding{{Statement: "a, restated"}},
	})

	b.AddSharedAxiom(SharedAxiom{
		AxiomIDs:        []string{"ax_abcdef12_user_001", "ax_abcdef12_w1_001"},
		MergedStatement: "a",
		Sources:         []string{"user", "worker_1"},
	})
	b.AddConflictCluster(ConflictCluster{
		AxiomIDs: []string{"ax_abcdef12_user_001", "ax_abcdef12_w1_001"},
	})
	g := b.Build()

	assert.True(t, g.Nodes["ax_abcdef12_user_001"].IsShared)
	assert.Equal(t, []string{"user", "worker_1"}, g.Nodes["ax_abcdef12_w1_001"].SharedBy)
	require.Len(t, g.Conflicts, 1)
	assert.Equal(t, NatureEmphasis, g.Conflicts[0].Nature)
	assert.Contains(t, g.Nodes["ax_abcdef12_user_001"].ConflictsWith, "ax_abcdef12_w1_001")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	g := NewGraph(testSession())
	require.NoError(t, store.Save(ctx, g))

	got, err := store.Load(ctx, "abcdef1234567890")
	require.NoError(t, err)
	assert.Same(t, g, got)

	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcdef1234567890"}, ids)
}
