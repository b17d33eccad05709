package core

// Stage is a pipeline execution state. Stages advance linearly; the
// refinement, collaboration and argumentation stages repeat up to their
// configured round counts, each pausing at its Awaiting* checkpoint between
// rounds.
type Stage string

const (
	StageSetup                    Stage = "setup"
	StageWorkerDrafts             Stage = "worker_drafts"
	StageSynthQuestions           Stage = "synth_questions"
	StageWorkerRefinement         Stage = "worker_refinement"
	StageAwaitingRoundFeedback    Stage = "awaiting_round_feedback"
	StageCompatibilityCheck       Stage = "compatibility_check"
	StageCollaboration            Stage = "collaboration"
	StageAwaitingCollabFeedback   Stage = "awaiting_collab_feedback"
	StageCandidateSynthesis       Stage = "candidate_synthesis"
	StageArgumentation            Stage = "argumentation"
	StageAwaitingArgumentFeedback Stage = "awaiting_argument_feedback"
	StageAIVoting                 Stage = "ai_voting"
	StageUserVoting               Stage = "user_voting"
	StageAxiomAnalysis            Stage = "axiom_analysis"
	StageFinalOutput              Stage = "final_output"
	StageAwaitingFinalFeedback    Stage = "awaiting_final_feedback"
	StageComplete                 Stage = "complete"
)

// IsCheckpoint reports whether the stage suspends the pipeline pending an
// external submission. Execution fully returns to the caller at these stages;
// no goroutine blocks awaiting input.
func (s Stage) IsCheckpoint() bool {
	switch s {
	case StageAwaitingRoundFeedback,
		StageAwaitingCollabFeedback,
		StageAwaitingArgumentFeedback,
		StageUserVoting,
		StageAwaitingFinalFeedback:
		return true
	}
	return false
}

// IsTerminal reports whether the pipeline has finished.
func (s Stage) IsTerminal() bool { return s == StageComplete }

// String returns the wire label of the stage.
func (s Stage) String() string { return string(s) }
