package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/core"
)

func TestAppendRejectsUnknownSection(t *testing.T) {
	l := New("s1", "design a cache")
	_, err := l.Append(Section("gossip"), Provenance{}, map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrUnknownSection)
	assert.Empty(t, l.Entries())
}

func TestApplyUpdateDropsUnknownSections(t *testing.T) {
	l := New("s1", "design a cache")
	res := l.ApplyUpdate(Provenance{AgentID: "curator", Role: core.RoleCurator}, map[string]map[string]any{
		"proposals":      {"w1": "use LRU"},
		"gossip":         {"rumor": "w2 is stuck"},
		"candidate_voting": {"winner": "cand_1"},
	})
	assert.ElementsMatch(t, []Section{SectionProposals, SectionCandidateVoting}, res.Applied)
	assert.Equal(t, []string{"gossip"}, res.Skipped)

	// The dropped section must not be reconstructible from the log.
	snap := l.Snapshot()
	_, ok := snap.Sections[Section("gossip")]
	assert.False(t, ok)
	assert.Len(t, snap.Sections[SectionProposals], 1)
}

func TestReduceIsPure(t *testing.T) {
	l := New("s1", "p")
	_, err := l.Append(SectionProposals, Provenance{AgentID: "w1", Round: 1}, map[string]any{"summary": "a"})
	require.NoError(t, err)
	_, err = l.Append(SectionProposals, Provenance{AgentID: "w2", Round: 1}, map[string]any{"summary": "b"})
	require.NoError(t, err)

	first := Reduce(l.Entries())
	second := Reduce(l.Entries())
	assert.Equal(t, first, second)
	require.Len(t, first[SectionProposals], 2)
	assert.Equal(t, "w1", first[SectionProposals][0].Provenance.AgentID)
}

func TestRestoreRoundTrip(t *testing.T) {
	l := New("s1", "design a cache")
	_, err := l.Append(SectionUserFeedback, Provenance{Round: 1}, map[string]any{"overall": "go deeper"})
	require.NoError(t, err)

	data, err := json.Marshal(l)
	require.NoError(t, err)

	restored, err := Restore(data)
	require.NoError(t, err)
	assert.Equal(t, "s1", restored.SessionID())
	assert.Equal(t, "design a cache", restored.Prompt())
	require.Len(t, restored.Entries(), 1)
	assert.Equal(t, "go deeper", restored.Entries()[0].Payload["overall"])
}

func TestSectionsStableOrder(t *testing.T) {
	assert.Equal(t, Sections(), Sections())
	assert.Len(t, Sections(), 11)
}

func TestDigestIsPureOverPayloads(t *testing.T) {
	build := func() *Ledger {
		l := New("s1", "design a cache")
		_, err := l.Append(SectionProposals, Provenance{AgentID: "w1"}, map[string]any{"summary": "use LRU"})
		require.NoError(t, err)
		_, err = l.Append(SectionCritiques, Provenance{AgentID: "moderator"}, map[string]any{"note": "memory bound unclear"})
		require.NoError(t, err)
		return l
	}

	first, second := build().Digest(), build().Digest()
	// Entry ids and timestamps differ between the two ledgers; the
	// digest must not.
	assert.Equal(t, first, second)
	assert.Contains(t, first, `"use LRU"`)
	assert.NotContains(t, first, "timestamp")

	var view map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &view))
	assert.Len(t, view["proposals"], 1)
}
