package voting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankToScoreStrictlyDecreasing(t *testing.T) {
	for _, total := range []int{2, 3, 5, 9} {
		prev := RankToScore(1, total)
		assert.Equal(t, 10.0, prev)
		for rank := 2; rank <= total; rank++ {
			s := RankToScore(rank, total)
			assert.Less(t, s, prev, "total=%d rank=%d", total, rank)
			prev = s
		}
		assert.Equal(t, 4.0, prev, "worst rank maps to 4.0 for total=%d", total)
	}
}

func TestRankToScoreSkipIsNeutral(t *testing.T) {
	assert.Equal(t, 5.0, RankToScore(0, 3))
}

func TestRankToScoreSingleCandidate(t *testing.T) {
	assert.Equal(t, 10.0, RankToScore(1, 1))
	assert.Equal(t, 4.0, RankToScore(2, 1))
}

func TestCombinedScoresWithinBounds(t *testing.T) {
	v := NewVoter([]string{"a", "b"})
	v.SetAIScores(map[string]float64{"a": 42.0, "b": -7.0})
	v.SubmitVotes(map[string]int{"a": 1, "b": 2}, nil)
	for id, s := range v.CombinedScores() {
		assert.GreaterOrEqual(t, s, 0.0, id)
		assert.LessOrEqual(t, s, 10.0, id)
	}
}

func TestDecideUserPreferenceWins(t *testing.T) {
	v := NewVoter([]string{"A", "B", "C"})
	v.SetAIScores(map[string]float64{"A": 8, "B": 6, "C": 7})
	v.SubmitVotes(map[string]int{"A": 2, "B": 1, "C": 3}, nil)

	combined := v.CombinedScores()
	assert.InDelta(t, 7.4, combined["A"], 1e-9)
	assert.InDelta(t, 8.4, combined["B"], 1e-9)
	assert.InDelta(t, 5.2, combined["C"], 1e-9)

	result := v.Decide("")
	assert.Equal(t, "B", result.WinnerID)
	assert.False(t, result.UserOverride)
	assert.Equal(t, ReasonUserLeads, result.Reason)
}

func TestDecideNoInputTiesBreakFirstSeen(t *testing.T) {
	v := NewVoter([]string{"first", "second"})
	result := v.Decide("")
	assert.InDelta(t, 5.0, result.CombinedScores["first"], 1e-9)
	assert.InDelta(t, 5.0, result.CombinedScores["second"], 1e-9)
	assert.Equal(t, "first", result.WinnerID)
	assert.Equal(t, ReasonCombined, result.Reason)
}

func TestDecideOverrideAlwaysWins(t *testing.T) {
	v := NewVoter([]string{"A", "B", "C"})
	v.SetAIScores(map[string]float64{"A": 10, "B": 10, "C": 0})

	result := v.Decide("C")
	assert.Equal(t, "C", result.WinnerID)
	assert.True(t, result.UserOverride)
	assert.Equal(t, ReasonOverride, result.Reason)
}

func TestDecideOverrideUnknownCandidateIgnored(t *testing.T) {
	v := NewVoter([]string{"A", "B"})
	v.SetAIScores(map[string]float64{"A": 9, "B": 1})
	result := v.Decide("Z")
	assert.Equal(t, "A", result.WinnerID)
	assert.False(t, result.UserOverride)
}

func TestDecideAgreementReason(t *testing.T) {
	v := NewVoter([]string{"A", "B"})
	v.SetAIScores(map[string]float64{"A": 9, "B": 4})
	v.SubmitVotes(map[string]int{"A": 1, "B": 2}, map[string]string{"A": "solid"})

	result := v.Decide("")
	assert.Equal(t, "A", result.WinnerID)
	assert.Equal(t, ReasonAgreement, result.Reason)
	require.Contains(t, result.UserVotes, "A")
	assert.Equal(t, "solid", result.UserVotes["A"].Feedback)
}

func TestDecideNoCandidatesReturnsNoneSentinel(t *testing.T) {
	v := NewVoter(nil)
	result := v.Decide("")
	assert.Equal(t, NoWinnerID, result.WinnerID)
	assert.Equal(t, "none", result.WinnerID)
	assert.Equal(t, ReasonFeedbackOnly, result.Reason)
}

func TestMissingAIScoreDefaultsNeutral(t *testing.T) {
	v := NewVoter([]string{"A", "B"})
	v.SetAIScores(map[string]float64{"A": 8})
	v.SubmitVotes(map[string]int{"B": 1, "A": 2}, nil)

	combined := v.CombinedScores()
	// B: ai 5.0 * 0.4 + user 10.0 * 0.6 = 8.0
	assert.InDelta(t, 8.0, combined["B"], 1e-9)
}
