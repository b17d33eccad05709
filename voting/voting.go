package voting

import (
	"math"

	"council/core"
)

// Winning reason labels surfaced in the result.
const (
	ReasonOverride     = "User override"
	ReasonAgreement    = "AI and user agree"
	ReasonUserLeads    = "User preference"
	ReasonAILeads      = "AI preference"
	ReasonCombined     = "Combined score optimization"
	ReasonFeedbackOnly = "No candidates synthesized - feedback only"
)

// NoWinnerID is the winner sentinel when the voter holds no candidates.
const NoWinnerID = "none"

// Score bounds for both panel scores and rank-derived scores.
const (
	maxScore     = 10.0
	minRankScore = 4.0
	neutralScore = 5.0
)

// Voter blends panel scores and human ranks for one candidate set.
type Voter struct {
	aiWeight   float64
	userWeight float64
	candidates []string
	aiScores   map[string]float64
	userVotes  map[string]core.Vote
}

// Options configures a Voter.
type Options struct {
	AIWeight   float64
	UserWeight float64
}

// NewVoter creates a voter over an ordered candidate list. Candidate order
// is the deterministic tie-break.
func NewVoter(candidateIDs []string, optFns ...func(o *Options)) *Voter {
	opts := Options{AIWeight: 0.4, UserWeight: 0.6}
	for _, fn := range optFns {
		fn(&opts)
	}
	ids := make([]string, len(candidateIDs))
	copy(ids, candidateIDs)
	return &Voter{
		aiWeight:   opts.AIWeight,
		userWeight: opts.UserWeight,
		candidates: ids,
		aiScores:   make(map[string]float64),
		userVotes:  make(map[string]core.Vote),
	}
}

// SetAIScores records the panel's 0-10 scores, clamping out-of-range values.
func (v *Voter) SetAIScores(scores map[string]float64) {
	for id, s := range scores {
		v.aiScores[id] = math.Min(maxScore, math.Max(0, s))
	}
}

// SubmitVotes records the human ranks and per-candidate feedback. Rank 0
// marks a skip.
func (v *Voter) SubmitVotes(votes map[string]int, feedback map[string]string) {
	for id, rank := range votes {
		v.userVotes[id] = core.Vote{CandidateID: id, Rank: rank, Feedback: feedback[id]}
	}
}

// RankToScore converts a 1-based rank among n candidates onto the 0-10
// scale. Rank 1 maps to 10.0, the worst rank to 4.0, a skip (rank 0) to the
// neutral 5.0.
func RankToScore(rank, total int) float64 {
	if rank == 0 {
		return neutralScore
	}
	if total == 1 {
		if rank == 1 {
			return maxScore
		}
		return minRankScore
	}
	position := float64(rank-1) / float64(total-1)
	return maxScore - position*(maxScore-minRankScore)
}

// CombinedScores blends the two score sets per candidate. A candidate the
// panel never scored, or the human never ranked, contributes the neutral
// 5.0 on that side.
func (v *Voter) CombinedScores() map[string]float64 {
	combined := make(map[string]float64, len(v.candidates))
	total := len(v.candidates)
	for _, id := range v.candidates {
		ai, ok := v.aiScores[id]
		if !ok {
			ai = neutralScore
		}
		user := neutralScore
		if vote, ok := v.userVotes[id]; ok {
			user = RankToScore(vote.Rank, total)
		}
		combined[id] = ai*v.aiWeight + user*v.userWeight
	}
	return combined
}

// Decide resolves the winner. A non-empty overrideID naming a known
// candidate wins unconditionally; otherwise the highest combined score does,
// with ties broken toward the candidate listed first.
func (v *Voter) Decide(overrideID string) core.VotingResult {
	combined := v.CombinedScores()

	if overrideID != "" && v.knownCandidate(overrideID) {
		return core.VotingResult{
			WinnerID:       overrideID,
			AIScores:       v.aiScores,
			UserVotes:      v.userVotes,
			CombinedScores: combined,
			UserOverride:   true,
			Reason:         ReasonOverride,
		}
	}

	if len(v.candidates) == 0 {
		return core.VotingResult{
			WinnerID:       NoWinnerID,
			AIScores:       v.aiScores,
			UserVotes:      v.userVotes,
			CombinedScores: combined,
			Reason:         ReasonFeedbackOnly,
		}
	}

	winner := v.candidates[0]
	for _, id := range v.candidates[1:] {
		if combined[id] > combined[winner] {
			winner = id
		}
	}

	return core.VotingResult{
		WinnerID:       winner,
		AIScores:       v.aiScores,
		UserVotes:      v.userVotes,
		CombinedScores: combined,
		Reason:         v.reason(winner),
	}
}

func (v *Voter) knownCandidate(id string) bool {
	for _, c := range v.candidates {
		if c == id {
			return true
		}
	}
	return false
}

// reason labels why the winner won, comparing against the standalone AI and
// user favorites.
func (v *Voter) reason(winner string) string {
	var aiLeader string
	for _, id := range v.candidates {
		if s, ok := v.aiScores[id]; ok && (aiLeader == "" || s > v.aiScores[aiLeader]) {
			aiLeader = id
		}
	}
	userLeader := ""
	bestRank := 0
	for _, id := range v.candidates {
		vote, ok := v.userVotes[id]
		if !ok || vote.Rank <= 0 {
			continue
		}
		if userLeader == "" || vote.Rank < bestRank {
			userLeader = id
			bestRank = vote.Rank
		}
	}

	switch {
	case winner == aiLeader && winner == userLeader:
		return ReasonAgreement
	case winner == userLeader:
		return ReasonUserLeads
	case winner == aiLeader:
		return ReasonAILeads
	default:
		return ReasonCombined
	}
}
