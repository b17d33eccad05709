package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"council/agent"
	"council/core"
	"council/ledger"
	"council/structured"
)

func (p *Pipeline) runSetup() error {
	_, err := p.ledger.Append(ledger.SectionUserFeedback,
		ledger.Provenance{Role: core.RoleCurator, Stage: core.StageSetup},
		map[string]any{"prompt": p.prompt, "constraints": p.constraints, "rubric": p.rubric})
	if err != nil {
		return err
	}
	p.setStage(core.StageWorkerDrafts)
	return nil
}

func (p *Pipeline) runWorkerDrafts(ctx context.Context, ch chan<- core.Event) error {
	prompt := p.prompts.Draft(p.prompt, p.constraints, p.rubric)
	produced := 0
	for _, w := range p.session.Workers() {
		out, err := p.invoke(ctx, ch, w.ID(), prompt, true)
		if err != nil {
			if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
				return ferr
			}
			continue
		}
		draft, status := structured.ParseDraft(out)
		if status == structured.StatusFailed {
			p.logger.Warn("Draft reply unusable", "session_id", p.sessionID, "agent_id", w.ID())
			continue
		}
		p.mu.Lock()
		w.Draft = &draft
		p.mu.Unlock()
		produced++
		p.applyCurator(ctx, ch, core.StageWorkerDrafts, w.ID(), core.RoleWorker, map[string]map[string]any{
			string(ledger.SectionProposals): {
				"worker_id":  w.ID(),
				"summary":    draft.Summary,
				"confidence": draft.Confidence,
				"status":     string(status),
			},
		}, nil)
	}
	if produced == 0 {
		return fmt.Errorf("no worker produced a draft")
	}
	p.setStage(core.StageSynthQuestions)
	return nil
}

func (p *Pipeline) runSynthQuestions(ctx context.Context, ch chan<- core.Event) error {
	out, err := p.invoke(ctx, ch, ModeratorID, p.prompts.Questions(p.drafts()), true)
	if err != nil {
		return err
	}
	questions, status := structured.ParseQuestions(out)
	p.mu.Lock()
	p.questions = questions
	p.mu.Unlock()
	p.applyCurator(ctx, ch, core.StageSynthQuestions, ModeratorID, core.RoleModerator, map[string]map[string]any{
		string(ledger.SectionCritiques): {
			"questions":    questions.ByWorker,
			"observations": questions.Observations,
			"status":       string(status),
		},
	}, nil)
	p.enterPhase(core.StageWorkerRefinement)
	if p.rounds.Refinement == 0 {
		p.enterPhase(core.StageCompatibilityCheck)
	}
	return nil
}

func (p *Pipeline) runRefinementRound(ctx context.Context, ch chan<- core.Event) error {
	if p.session.Phase() == agent.PhaseDraft {
		p.session.TransitionTo(agent.PhaseRefinement)
	}
	// Feedback between rounds prompts the moderator for follow-up
	// questions replacing the active set.
	if p.round > 0 {
		if out, err := p.invoke(ctx, ch, ModeratorID, p.prompts.FollowUp(p.round), true); err == nil {
			if questions, status := structured.ParseQuestions(out); status != structured.StatusFailed {
				p.mu.Lock()
				p.questions = questions
				p.mu.Unlock()
			}
		} else if ferr := p.agentFailed(ch, ModeratorID, err); ferr != nil {
			return ferr
		}
	}

	round := p.round + 1
	for _, w := range p.session.Workers() {
		prompt := p.prompts.Refinement(p.questions.ByWorker[w.ID()], p.guidanceFor(w.ID()), round)
		out, err := p.invoke(ctx, ch, w.ID(), prompt, true)
		if err != nil {
			if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
				return ferr
			}
			continue
		}
		ref, status := structured.ParseRefinement(out)
		p.mu.Lock()
		p.refinements[w.ID()] = append(p.refinements[w.ID()], ref)
		p.phaseRaw[w.ID()] = append(p.phaseRaw[w.ID()], out)
		if ref.UpdatedSummary != "" && w.Draft != nil {
			w.Draft.Summary = ref.UpdatedSummary
		}
		p.mu.Unlock()
		p.applyCurator(ctx, ch, core.StageWorkerRefinement, w.ID(), core.RoleWorker, map[string]map[string]any{
			string(ledger.SectionRefinements): {
				"worker_id":   w.ID(),
				"round":       round,
				"patch_notes": ref.PatchNotes,
				"new_risks":   ref.NewRisks,
				"status":      string(status),
			},
		}, ref.PatchNotes)
	}
	p.setRound(round)

	switch {
	case p.round >= 2 && converged(p.phaseRaw, p.threshold):
		ev := core.NewEvent(p.sessionID, core.EventInfo).WithStage(core.StageWorkerRefinement)
		ev.Message = fmt.Sprintf("refinement converged after round %d", p.round)
		p.emit(ch, ev)
		p.enterPhase(core.StageCompatibilityCheck)
	case p.round >= p.rounds.Refinement:
		p.enterPhase(core.StageCompatibilityCheck)
	default:
		p.setStage(core.StageAwaitingRoundFeedback)
	}
	return nil
}

func (p *Pipeline) runCompatibilityCheck(ctx context.Context, ch chan<- core.Event) error {
	out, err := p.invoke(ctx, ch, ModeratorID, p.prompts.Compatibility(p.workerPositions()), true)
	if err != nil {
		return err
	}
	// Degraded output reads as incompatible, routing past collaboration.
	compat, status := structured.ParseCompatibility(out)
	p.mu.Lock()
	p.compatibility = &compat
	p.mu.Unlock()
	p.applyCurator(ctx, ch, core.StageCompatibilityCheck, ModeratorID, core.RoleModerator, map[string]map[string]any{
		string(ledger.SectionCritiques): {
			"compatible":     compat.Compatible,
			"merge_strategy": compat.MergeStrategy,
			"overlap_areas":  compat.OverlapAreas,
			"status":         string(status),
		},
	}, nil)

	if compat.Compatible && p.rounds.Collaboration > 0 {
		p.session.TransitionTo(agent.PhaseCollaboration)
		p.enterPhase(core.StageCollaboration)
	} else {
		p.enterPhase(core.StageCandidateSynthesis)
	}
	return nil
}

func (p *Pipeline) runCollaborationRound(ctx context.Context, ch chan<- core.Event) error {
	round := p.round + 1
	compat := core.Compatibility{}
	if p.compatibility != nil {
		compat = *p.compatibility
	}
	for _, w := range p.session.Workers() {
		out, err := p.invoke(ctx, ch, w.ID(), p.prompts.Collaboration(compat, round), true)
		if err != nil {
			if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
				return ferr
			}
			continue
		}
		collab, status := structured.ParseCollaboration(out)
		p.mu.Lock()
		p.collaborations[w.ID()] = append(p.collaborations[w.ID()], collab)
		p.phaseRaw[w.ID()] = append(p.phaseRaw[w.ID()], out)
		p.mu.Unlock()
		p.session.AddShared(w.ID(), fmt.Sprintf("[%s COLLABORATION]\n%s", strings.ToUpper(w.ID()), collab.Summary))
		p.applyCurator(ctx, ch, core.StageCollaboration, w.ID(), core.RoleWorker, map[string]map[string]any{
			string(ledger.SectionCollaborationDelta): {
				"worker_id":    w.ID(),
				"round":        round,
				"summary":      collab.Summary,
				"improvements": collab.Improvements,
				"status":       string(status),
			},
		}, nil)
	}
	p.setRound(round)

	switch {
	case p.round >= 2 && converged(p.phaseRaw, p.threshold):
		ev := core.NewEvent(p.sessionID, core.EventInfo).WithStage(core.StageCollaboration)
		ev.Message = fmt.Sprintf("collaboration converged after round %d", p.round)
		p.emit(ch, ev)
		p.enterPhase(core.StageCandidateSynthesis)
	case p.round >= p.rounds.Collaboration:
		p.enterPhase(core.StageCandidateSynthesis)
	default:
		p.setStage(core.StageAwaitingCollabFeedback)
	}
	return nil
}

func (p *Pipeline) runCandidateSynthesis(ctx context.Context, ch chan<- core.Event) error {
	out, err := p.invoke(ctx, ch, CuratorID, p.prompts.Candidates(p.workerPositions()), true)
	if err != nil {
		return err
	}
	candidates, status := structured.ParseCandidates(out)
	if status == structured.StatusFailed || len(candidates) == 0 {
		candidates = []core.Candidate{p.feedbackOnlyCandidate()}
		p.logger.Warn("Synthesis yielded no candidates, substituting feedback-only pseudo-candidate",
			"session_id", p.sessionID)
	}
	p.mu.Lock()
	p.candidates = candidates
	p.mu.Unlock()

	payload := map[string]any{"count": len(candidates), "status": string(status)}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	payload["ids"] = ids
	p.applyCurator(ctx, ch, core.StageCandidateSynthesis, CuratorID, core.RoleCurator, map[string]map[string]any{
		string(ledger.SectionCandidates): payload,
	}, nil)

	if p.rounds.Argument > 0 {
		p.session.TransitionTo(agent.PhaseArgumentation)
		p.enterPhase(core.StageArgumentation)
	} else {
		p.enterPhase(core.StageAIVoting)
	}
	return nil
}

// feedbackOnlyCandidate builds the pseudo-candidate voted on when
// synthesis produced nothing usable.
func (p *Pipeline) feedbackOnlyCandidate() core.Candidate {
	var summaries []string
	var sources []string
	for _, w := range p.session.Workers() {
		sources = append(sources, w.ID())
		if w.Draft != nil && w.Draft.Summary != "" {
			summaries = append(summaries, fmt.Sprintf("%s: %s", w.ID(), w.Draft.Summary))
		}
	}
	return core.Candidate{
		ID:           core.FeedbackOnlyCandidateID,
		SourceAgents: sources,
		Summary:      strings.Join(summaries, "\n\n"),
		BestUseCase:  "Direct synthesis from worker drafts and accumulated feedback",
	}
}

func (p *Pipeline) runArgumentationRound(ctx context.Context, ch chan<- core.Event) error {
	round := p.round + 1
	for _, w := range p.session.Workers() {
		out, err := p.invoke(ctx, ch, w.ID(), p.prompts.Argument(p.candidates, round), true)
		if err != nil {
			if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
				return ferr
			}
			continue
		}
		arg, status := structured.ParseArgument(out)
		p.mu.Lock()
		p.arguments[w.ID()] = append(p.arguments[w.ID()], arg)
		p.phaseRaw[w.ID()] = append(p.phaseRaw[w.ID()], out)
		p.mu.Unlock()
		p.session.AddShared(w.ID(), fmt.Sprintf("[%s ARGUMENT]\n%s", strings.ToUpper(w.ID()), arg.MainArgument))
		p.applyCurator(ctx, ch, core.StageArgumentation, w.ID(), core.RoleWorker, map[string]map[string]any{
			string(ledger.SectionRebuttals): {
				"worker_id":     w.ID(),
				"round":         round,
				"main_argument": arg.MainArgument,
				"critique":      arg.CritiqueOfOther,
				"status":        string(status),
			},
		}, nil)
	}
	p.setRound(round)

	// Curator commentary keeps the human oriented between rounds.
	if out, err := p.invoke(ctx, ch, CuratorID, p.prompts.Commentary(round), false); err == nil {
		ev := core.NewEvent(p.sessionID, core.EventCommentary).WithStage(core.StageArgumentation)
		ev.AgentID = CuratorID
		ev.Message = out
		p.emit(ch, ev)
		p.applyCurator(ctx, ch, core.StageArgumentation, CuratorID, core.RoleCurator, map[string]map[string]any{
			string(ledger.SectionCritiques): {"commentary": out, "round": round},
		}, nil)
	} else if ferr := p.agentFailed(ch, CuratorID, err); ferr != nil {
		return ferr
	}

	switch {
	case p.round >= 2 && converged(p.phaseRaw, p.threshold):
		ev := core.NewEvent(p.sessionID, core.EventInfo).WithStage(core.StageArgumentation)
		ev.Message = fmt.Sprintf("argumentation converged after round %d", p.round)
		p.emit(ch, ev)
		p.enterPhase(core.StageAIVoting)
	case p.round >= p.rounds.Argument:
		p.enterPhase(core.StageAIVoting)
	default:
		p.setStage(core.StageAwaitingArgumentFeedback)
	}
	return nil
}

func (p *Pipeline) runAIVoting(ctx context.Context, ch chan<- core.Event) error {
	out, err := p.invoke(ctx, ch, CuratorID, p.prompts.Scores(p.candidates, p.rubric), true)
	if err != nil {
		return err
	}
	scores, status := structured.ParseScores(out)
	known := make(map[string]bool, len(p.candidates))
	for _, c := range p.candidates {
		known[c.ID] = true
	}
	p.mu.Lock()
	p.aiScores = make(map[string]float64)
	p.scoreDetails = nil
	for _, s := range scores {
		if !known[s.CandidateID] {
			p.logger.Warn("Score for unknown candidate dropped",
				"session_id", p.sessionID, "candidate_id", s.CandidateID)
			continue
		}
		p.aiScores[s.CandidateID] = s.Value
		p.scoreDetails = append(p.scoreDetails, s)
	}
	p.mu.Unlock()
	p.applyCurator(ctx, ch, core.StageAIVoting, CuratorID, core.RoleCurator, map[string]map[string]any{
		string(ledger.SectionCandidateVoting): {
			"ai_scores": p.aiScores,
			"status":    string(status),
		},
	}, nil)
	p.setStage(core.StageUserVoting)
	return nil
}

func (p *Pipeline) runFinalOutput(ctx context.Context, ch chan<- core.Event) error {
	p.session.TransitionTo(agent.PhaseFinal)
	winner := p.winnerCandidate()
	result := core.VotingResult{}
	if p.votingResult != nil {
		result = *p.votingResult
	}
	out, err := p.invoke(ctx, ch, FinalizerID, p.prompts.Final(winner, result, p.revisions), false)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.finalOutput = out
	p.mu.Unlock()
	p.applyCurator(ctx, ch, core.StageFinalOutput, FinalizerID, core.RoleFinalizer, map[string]map[string]any{
		string(ledger.SectionFinalOutput): {
			"winner_id": winner.ID,
			"output":    out,
		},
	}, nil)

	ev := core.NewEvent(p.sessionID, core.EventFinalOutput).WithStage(core.StageFinalOutput)
	ev.Payload = map[string]any{"output": out, "winner_id": winner.ID}
	p.emit(ch, ev)
	p.setStage(core.StageAwaitingFinalFeedback)
	return nil
}

func (p *Pipeline) winnerCandidate() core.Candidate {
	if p.votingResult != nil {
		for _, c := range p.candidates {
			if c.ID == p.votingResult.WinnerID {
				return c
			}
		}
	}
	if len(p.candidates) > 0 {
		return p.candidates[0]
	}
	return p.feedbackOnlyCandidate()
}

func (p *Pipeline) guidanceFor(agentID string) string {
	parts := make([]string, 0, 2)
	if g := p.guidance[agentID]; g != "" {
		parts = append(parts, g)
	}
	if p.overall != "" {
		parts = append(parts, p.overall)
	}
	return strings.Join(parts, "\n")
}
