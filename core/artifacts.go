package core

// Draft is a worker's live proposal. One draft is live per agent at a time;
// refinements evolve it by delta rather than replacing it wholesale.
type Draft struct {
	Summary     string   `json:"summary"`
	Assumptions []string `json:"key_assumptions"`
	Strengths   []string `json:"strengths"`
	Risks       []string `json:"risks"`
	Confidence  float64  `json:"confidence"`
	RawText     string   `json:"raw_text,omitempty"`
}

// Refinement is a single round delta appended to a worker's refinement log.
// The log is append-only; earlier rounds are never rewritten.
type Refinement struct {
	Answers        map[string]string `json:"answers_to_questions"`
	PatchNotes     []string          `json:"patch_notes"`
	NewRisks       []string          `json:"new_risks"`
	NewTradeoffs   []string          `json:"new_tradeoffs"`
	UpdatedSummary string            `json:"updated_summary,omitempty"`
	RawText        string            `json:"raw_text,omitempty"`
}

// Argument is a worker's case for its own proposal during argumentation.
type Argument struct {
	MainArgument    string   `json:"main_argument"`
	KeyStrengths    []string `json:"key_strengths"`
	CritiqueOfOther string   `json:"critique_of_alternatives"`
	RubricAlignment string   `json:"rubric_alignment"`
	RawText         string   `json:"raw_text,omitempty"`
}

// Collaboration is a worker's merged-improvement output produced during
// collaboration rounds.
type Collaboration struct {
	Summary          string            `json:"collaborative_summary"`
	Improvements     []string          `json:"specific_improvements"`
	Integrated       map[string]string `json:"integrated_mechanisms"`
	ResolvedTensions []string          `json:"resolved_tensions"`
	NewInsights      []string          `json:"new_insights"`
	Confidence       float64           `json:"confidence"`
	RawText          string            `json:"raw_text,omitempty"`
}

// Compatibility is the moderator's judgment of how worker proposals overlap,
// produced before collaboration.
type Compatibility struct {
	Compatible      bool        `json:"compatible"`
	OverlapAreas    []string    `json:"overlap_areas"`
	MergeStrategy   string      `json:"merge_strategy"`
	CompatiblePairs [][2]string `json:"compatible_pairs"`
	RawText         string      `json:"raw_text,omitempty"`
}

// Questions is the moderator's clarifying-question set, keyed per worker.
type Questions struct {
	ByWorker     map[string][]string `json:"questions_by_worker"`
	Observations string              `json:"overall_observations"`
	RawText      string              `json:"raw_text,omitempty"`
}

// Candidate is a synthesized option assembled from one or more worker drafts.
// Candidates are created once at synthesis and immutable thereafter.
type Candidate struct {
	ID               string   `json:"id"`
	SourceAgents     []string `json:"source_workers"`
	Summary          string   `json:"summary"`
	BestUseCase      string   `json:"best_use_case"`
	TradeOffs        []string `json:"trade_offs"`
	FailureModes     []string `json:"failure_modes"`
	DecisionCriteria string   `json:"decision_criteria"`
}

// FeedbackOnlyCandidateID marks the synthetic pseudo-candidate substituted
// when synthesis yields no candidates.
const FeedbackOnlyCandidateID = "feedback_only"

// Score is an AI evaluation of one candidate on a 0-10 scale.
type Score struct {
	CandidateID  string             `json:"candidate_id"`
	Value        float64            `json:"score"`
	Reasoning    string             `json:"reasoning"`
	RubricScores map[string]float64 `json:"rubric_scores"`
}

// Vote is a human ranking of one candidate. Rank 1 is the first choice;
// rank 0 means the candidate was skipped.
type Vote struct {
	CandidateID string `json:"candidate_id"`
	Rank        int    `json:"rank"`
	Feedback    string `json:"feedback,omitempty"`
}

// VotingResult is the combined AI/human decision over a candidate set.
type VotingResult struct {
	WinnerID       string             `json:"winning_candidate_id"`
	AIScores       map[string]float64 `json:"ai_scores"`
	UserVotes      map[string]Vote    `json:"user_votes"`
	CombinedScores map[string]float64 `json:"combined_scores"`
	UserOverride   bool               `json:"user_override"`
	Reason         string             `json:"winning_reason"`
}

// RoundFeedback is a human submission at a repeatable-round checkpoint.
// PerAgent carries guidance keyed by agent id; Skip requests an early jump
// to the next phase instead of running the remaining rounds.
type RoundFeedback struct {
	Round    int               `json:"round"`
	PerAgent map[string]string `json:"worker_feedback,omitempty"`
	Overall  string            `json:"overall_feedback,omitempty"`
	Skip     bool              `json:"skip,omitempty"`
}

// VoteSubmission is the full human voting payload: ranks per candidate plus
// the optional per-candidate and per-worker feedback channels.
type VoteSubmission struct {
	Votes             map[string]int    `json:"votes"`
	CandidateFeedback map[string]string `json:"candidate_feedback,omitempty"`
	OverallFeedback   string            `json:"overall_feedback,omitempty"`
	WorkerFeedback    map[string]string `json:"worker_feedback,omitempty"`
	CuratorFeedback   string            `json:"curator_feedback,omitempty"`
	OverrideID        string            `json:"override_id,omitempty"`
	PromptRating      int               `json:"prompt_rating,omitempty"`
	PromptFeedback    string            `json:"prompt_feedback,omitempty"`
}

// FeedbackNote is one remembered piece of human feedback, kept for axiom
// extraction at the end of the session.
type FeedbackNote struct {
	Round    string `json:"round"`
	AgentID  string `json:"worker_id,omitempty"`
	Feedback string `json:"feedback"`
}
