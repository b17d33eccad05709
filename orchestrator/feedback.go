package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"council/agent"
	"council/core"
	"council/ledger"
	"council/structured"
	"council/voting"
)

// checkpointGuard validates that a submission matches the current
// checkpoint. Nothing is mutated on rejection.
func (p *Pipeline) checkpointGuard(expected core.Stage) error {
	if p.running {
		return ErrPipelineRunning
	}
	if p.stage != expected {
		return fmt.Errorf("%w: at %s, expected %s", ErrWrongCheckpoint, p.stage, expected)
	}
	return nil
}

// recordFeedback remembers human feedback for axiom extraction and
// appends it to the ledger. Caller holds the lock.
func (p *Pipeline) recordFeedback(round string, agentID, text string) {
	if text == "" {
		return
	}
	p.feedback = append(p.feedback, core.FeedbackNote{Round: round, AgentID: agentID, Feedback: text})
	_, _ = p.ledger.Append(ledger.SectionUserFeedback,
		ledger.Provenance{Stage: p.stage, Round: p.round},
		map[string]any{"round": round, "agent_id": agentID, "feedback": text})
}

// SubmitRoundFeedback resolves the refinement checkpoint. Skip jumps
// straight to the compatibility check instead of the remaining rounds.
func (p *Pipeline) SubmitRoundFeedback(ctx context.Context, fb core.RoundFeedback) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageAwaitingRoundFeedback); err != nil {
		p.mu.Unlock()
		return err
	}
	label := "refinement_" + strconv.Itoa(p.round)
	for id, text := range fb.PerAgent {
		p.guidance[id] = text
		p.recordFeedback(label, id, text)
	}
	if fb.Overall != "" {
		p.overall = fb.Overall
		p.recordFeedback(label, "", fb.Overall)
	}
	if fb.Skip {
		p.stage = core.StageCompatibilityCheck
		p.round = 0
		p.phaseRaw = make(map[string][]string)
	} else {
		p.stage = core.StageWorkerRefinement
	}
	p.mu.Unlock()
	return p.persist(ctx)
}

// SubmitCollabFeedback resolves the collaboration checkpoint.
func (p *Pipeline) SubmitCollabFeedback(ctx context.Context, fb core.RoundFeedback) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageAwaitingCollabFeedback); err != nil {
		p.mu.Unlock()
		return err
	}
	label := "collaboration_" + strconv.Itoa(p.round)
	for id, text := range fb.PerAgent {
		p.guidance[id] = text
		p.recordFeedback(label, id, text)
	}
	if fb.Overall != "" {
		p.overall = fb.Overall
		p.recordFeedback(label, "", fb.Overall)
	}
	if fb.Skip {
		p.stage = core.StageCandidateSynthesis
		p.round = 0
		p.phaseRaw = make(map[string][]string)
	} else {
		p.stage = core.StageCollaboration
	}
	p.mu.Unlock()
	return p.persist(ctx)
}

// SubmitArgumentFeedback resolves the argumentation checkpoint.
func (p *Pipeline) SubmitArgumentFeedback(ctx context.Context, fb core.RoundFeedback) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageAwaitingArgumentFeedback); err != nil {
		p.mu.Unlock()
		return err
	}
	label := "argument_" + strconv.Itoa(p.round)
	for id, text := range fb.PerAgent {
		p.guidance[id] = text
		p.recordFeedback(label, id, text)
	}
	if fb.Overall != "" {
		p.overall = fb.Overall
		p.recordFeedback(label, "", fb.Overall)
	}
	if fb.Skip {
		p.stage = core.StageAIVoting
		p.round = 0
		p.phaseRaw = make(map[string][]string)
	} else {
		p.stage = core.StageArgumentation
	}
	p.mu.Unlock()
	return p.persist(ctx)
}

// SubmitVotes resolves the user-voting checkpoint and computes the
// combined decision. Votes naming unknown candidates are dropped.
func (p *Pipeline) SubmitVotes(ctx context.Context, sub core.VoteSubmission) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageUserVoting); err != nil {
		p.mu.Unlock()
		return err
	}

	known := make(map[string]bool, len(p.candidates))
	ids := make([]string, 0, len(p.candidates))
	for _, c := range p.candidates {
		known[c.ID] = true
		ids = append(ids, c.ID)
	}
	votes := make(map[string]int, len(sub.Votes))
	for id, rank := range sub.Votes {
		if !known[id] {
			p.logger.Warn("Vote for unknown candidate dropped",
				"session_id", p.sessionID, "candidate_id", id)
			continue
		}
		votes[id] = rank
	}

	voter := voting.NewVoter(ids, func(o *voting.Options) {
		o.AIWeight = p.aiWeight
		o.UserWeight = p.userWeight
	})
	voter.SetAIScores(p.aiScores)
	voter.SubmitVotes(votes, sub.CandidateFeedback)
	result := voter.Decide(sub.OverrideID)
	p.votingResult = &result

	for id, text := range sub.CandidateFeedback {
		p.recordFeedback("voting", id, text)
	}
	for id, text := range sub.WorkerFeedback {
		p.guidance[id] = text
		p.recordFeedback("voting", id, text)
	}
	p.recordFeedback("voting", "", sub.OverallFeedback)
	p.recordFeedback("voting", CuratorID, sub.CuratorFeedback)
	p.promptRating = sub.PromptRating
	p.promptFeedback = sub.PromptFeedback

	_, _ = p.ledger.Append(ledger.SectionCandidateVoting,
		ledger.Provenance{Stage: core.StageUserVoting},
		map[string]any{
			"winner_id":       result.WinnerID,
			"combined_scores": result.CombinedScores,
			"user_override":   result.UserOverride,
			"reason":          result.Reason,
		})

	p.stage = core.StageAxiomAnalysis
	p.mu.Unlock()
	return p.persist(ctx)
}

// SubmitFinalFeedback resolves the final checkpoint. revise loops back to
// the finalizer with the feedback attached; otherwise the session
// completes and persona stats are settled.
func (p *Pipeline) SubmitFinalFeedback(ctx context.Context, feedback string, revise bool) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageAwaitingFinalFeedback); err != nil {
		p.mu.Unlock()
		return err
	}
	p.recordFeedback("final", "", feedback)
	if revise {
		if feedback != "" {
			p.revisions = append(p.revisions, feedback)
		}
		p.stage = core.StageFinalOutput
		p.mu.Unlock()
		return p.persist(ctx)
	}

	p.stage = core.StageComplete
	if p.registry != nil && p.votingResult != nil {
		winners := make(map[string]bool)
		for _, c := range p.candidates {
			if c.ID != p.votingResult.WinnerID {
				continue
			}
			for _, src := range c.SourceAgents {
				winners[src] = true
			}
		}
		for _, w := range p.session.Workers() {
			if pers := w.Persona(); pers != nil {
				p.registry.RecordOutcome(pers.ID, winners[w.ID()])
			}
		}
	}
	p.mu.Unlock()
	return p.persist(ctx)
}

// Diversify pushes each worker to differentiate its draft from the
// others'. Valid only at the refinement checkpoint; the reworked drafts
// flow into the next round.
func (p *Pipeline) Diversify(ctx context.Context) error {
	p.mu.Lock()
	if err := p.checkpointGuard(core.StageAwaitingRoundFeedback); err != nil {
		p.mu.Unlock()
		return err
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.mu.Lock()
	drafts := p.drafts()
	p.mu.Unlock()
	ch := make(chan core.Event, 64)
	defer close(ch)
	go func() {
		for range ch {
		}
	}()

	for _, w := range p.session.Workers() {
		others := make(map[string]core.Draft, len(drafts)-1)
		for id, d := range drafts {
			if id != w.ID() {
				others[id] = d
			}
		}
		out, err := p.invoke(ctx, ch, w.ID(), p.prompts.Diversify(others), true)
		if err != nil {
			if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
				return ferr
			}
			continue
		}
		if draft, status := structured.ParseDraft(out); status != structured.StatusFailed {
			p.mu.Lock()
			w.Draft = &draft
			p.mu.Unlock()
		}
	}
	return p.persist(ctx)
}

// SwapPersona reassigns a worker's persona mid-session. Valid only while
// the pipeline is suspended.
func (p *Pipeline) SwapPersona(ctx context.Context, workerID, personaID string, action agent.SwapAction) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPipelineRunning
	}
	if p.registry == nil {
		p.mu.Unlock()
		return fmt.Errorf("no persona registry configured")
	}
	pers, err := p.registry.Get(personaID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	_, err = p.session.SwapPersona(workerID, &pers, action)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.registry.RecordUsage(personaID)
	return p.persist(ctx)
}
