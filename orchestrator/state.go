package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"council/agent"
	"council/axiom"
	"council/core"
	"council/journal"
	"council/ledger"
	"council/model"
)

// persistedState is the explicit state record written at every completed
// stage and checkpoint. Resumption reconstructs execution purely from
// this record plus the journal; no suspended call stack is kept.
type persistedState struct {
	SessionID   string   `json:"session_id"`
	Prompt      string   `json:"prompt"`
	Constraints []string `json:"constraints,omitempty"`
	Rubric      string   `json:"rubric,omitempty"`

	Rounds     RoundCounts `json:"rounds"`
	Threshold  float64     `json:"similarity_threshold"`
	AIWeight   float64     `json:"ai_weight"`
	UserWeight float64     `json:"user_weight"`
	CreatedAt  time.Time   `json:"created_at"`

	Stage core.Stage `json:"stage"`
	Round int        `json:"round"`

	Questions      core.Questions                  `json:"questions"`
	Compatibility  *core.Compatibility             `json:"compatibility,omitempty"`
	Refinements    map[string][]core.Refinement    `json:"refinements"`
	Collaborations map[string][]core.Collaboration `json:"collaborations"`
	Arguments      map[string][]core.Argument      `json:"arguments"`
	Candidates     []core.Candidate                `json:"candidates,omitempty"`
	AIScores       map[string]float64              `json:"ai_scores"`
	ScoreDetails   []core.Score                    `json:"score_details,omitempty"`
	VotingResult   *core.VotingResult              `json:"voting_result,omitempty"`
	Feedback       []core.FeedbackNote             `json:"feedback,omitempty"`
	Guidance       map[string]string               `json:"guidance,omitempty"`
	Overall        string                          `json:"overall_guidance,omitempty"`
	PhaseRaw       map[string][]string             `json:"phase_raw"`
	FinalOutput    string                          `json:"final_output,omitempty"`
	Revisions      []string                        `json:"revisions,omitempty"`
	PromptRating   int                             `json:"prompt_rating,omitempty"`
	PromptFeedback string                          `json:"prompt_feedback,omitempty"`
	AgentErrors    map[string]string               `json:"agent_errors,omitempty"`

	Session agent.SessionState `json:"session"`
	Ledger  json.RawMessage    `json:"ledger"`
	SavedAt time.Time          `json:"saved_at"`
}

func (p *Pipeline) snapshotState() (persistedState, error) {
	ledgerBlob, err := p.ledger.MarshalJSON()
	if err != nil {
		return persistedState{}, fmt.Errorf("marshal ledger: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return persistedState{
		SessionID:      p.sessionID,
		Prompt:         p.prompt,
		Constraints:    p.constraints,
		Rubric:         p.rubric,
		Rounds:         p.rounds,
		Threshold:      p.threshold,
		AIWeight:       p.aiWeight,
		UserWeight:     p.userWeight,
		CreatedAt:      p.createdAt,
		Stage:          p.stage,
		Round:          p.round,
		Questions:      p.questions,
		Compatibility:  p.compatibility,
		Refinements:    p.refinements,
		Collaborations: p.collaborations,
		Arguments:      p.arguments,
		Candidates:     p.candidates,
		AIScores:       p.aiScores,
		ScoreDetails:   p.scoreDetails,
		VotingResult:   p.votingResult,
		Feedback:       p.feedback,
		Guidance:       p.guidance,
		Overall:        p.overall,
		PhaseRaw:       p.phaseRaw,
		FinalOutput:    p.finalOutput,
		Revisions:      p.revisions,
		PromptRating:   p.promptRating,
		PromptFeedback: p.promptFeedback,
		AgentErrors:    p.agentErrors,
		Session:        p.session.Snapshot(),
		Ledger:         ledgerBlob,
		SavedAt:        time.Now().UTC(),
	}, nil
}

// persist writes the full state record to the journal snapshot table.
func (p *Pipeline) persist(ctx context.Context) error {
	state, err := p.snapshotState()
	if err != nil {
		return err
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal pipeline state: %w", err)
	}
	return p.journal.SaveSnapshot(ctx, p.sessionID, blob)
}

// Resume reconstructs a suspended pipeline from its last persisted state
// record. The journal must be the one the session was created with;
// completers rebind the inference backends, which are not serialized.
func Resume(ctx context.Context, j journal.Journal, sessionID string, completers map[core.Role]model.Completer, optFns ...func(o *Options)) (*Pipeline, error) {
	blob, err := j.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var st persistedState
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	workers := 0
	for id := range st.Session.Agents {
		if strings.HasPrefix(id, "worker_") {
			workers++
		}
	}
	fns := append(optFns, func(o *Options) {
		o.WorkerCount = workers
		o.Rounds = st.Rounds
		o.SimilarityThreshold = st.Threshold
		o.Constraints = st.Constraints
		o.Rubric = st.Rubric
		o.AIWeight = st.AIWeight
		o.UserWeight = st.UserWeight
		o.Journal = j
	})
	p, err := New(sessionID, st.Prompt, completers, fns...)
	if err != nil {
		return nil, err
	}

	if err := p.session.Restore(st.Session); err != nil {
		return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	if p.registry != nil {
		for _, w := range p.session.Workers() {
			state, ok := st.Session.Agents[w.ID()]
			if !ok || state.PersonaID == "" {
				continue
			}
			if pers, perr := p.registry.Get(state.PersonaID); perr == nil {
				// Rebind the persona object; the restored system
				// prompt stays authoritative.
				sp := w.SystemPrompt()
				w.SetPersona(&pers)
				w.SetSystemPrompt(sp)
			}
		}
	}
	restored, err := ledger.Restore(st.Ledger, func(o *ledger.Options) { o.Logger = p.logger })
	if err != nil {
		return nil, fmt.Errorf("restore ledger %s: %w", sessionID, err)
	}
	p.ledger = restored

	p.mu.Lock()
	p.createdAt = st.CreatedAt
	p.stage = st.Stage
	p.round = st.Round
	p.questions = st.Questions
	p.compatibility = st.Compatibility
	p.refinements = orDefault(st.Refinements)
	p.collaborations = orDefault(st.Collaborations)
	p.arguments = orDefault(st.Arguments)
	p.candidates = st.Candidates
	p.aiScores = st.AIScores
	if p.aiScores == nil {
		p.aiScores = make(map[string]float64)
	}
	p.scoreDetails = st.ScoreDetails
	p.votingResult = st.VotingResult
	p.feedback = st.Feedback
	p.guidance = st.Guidance
	if p.guidance == nil {
		p.guidance = make(map[string]string)
	}
	p.overall = st.Overall
	p.phaseRaw = st.PhaseRaw
	if p.phaseRaw == nil {
		p.phaseRaw = make(map[string][]string)
	}
	p.finalOutput = st.FinalOutput
	p.revisions = st.Revisions
	p.promptRating = st.PromptRating
	p.promptFeedback = st.PromptFeedback
	p.agentErrors = st.AgentErrors
	if p.agentErrors == nil {
		p.agentErrors = make(map[string]string)
	}
	// The axiom graph lives in its own store; rebind it when the caller
	// supplied the store the session originally wrote to.
	if g, gerr := p.axioms.Load(ctx, sessionID); gerr == nil {
		p.graph = g
	}
	p.mu.Unlock()
	return p, nil
}

func orDefault[T any](m map[string][]T) map[string][]T {
	if m == nil {
		return make(map[string][]T)
	}
	return m
}

// FullState is the complete current-state snapshot exposed to checkpoint
// UIs.
type FullState struct {
	SessionID     string                          `json:"session_id"`
	Prompt        string                          `json:"prompt"`
	Stage         core.Stage                      `json:"stage"`
	Round         int                             `json:"round"`
	Drafts        map[string]core.Draft           `json:"drafts"`
	Questions     core.Questions                  `json:"questions"`
	Refinements   map[string][]core.Refinement    `json:"refinements"`
	Collaboration map[string][]core.Collaboration `json:"collaborations"`
	Arguments     map[string][]core.Argument      `json:"arguments"`
	Candidates    []core.Candidate                `json:"candidates"`
	AIScores      map[string]float64              `json:"ai_scores"`
	VotingResult  *core.VotingResult              `json:"voting_result,omitempty"`
	FinalOutput   string                          `json:"final_output,omitempty"`
	Usage         map[string]core.TokenUsage      `json:"usage"`
	AgentErrors   map[string]string               `json:"agent_errors,omitempty"`
	Ledger        ledger.Snapshot                 `json:"ledger"`
	CreatedAt     time.Time                       `json:"created_at"`
}

// FullState returns the session's complete current state. Every map is
// copied under the pipeline lock, so the snapshot is safe to read while
// a run segment is still executing.
func (p *Pipeline) FullState() FullState {
	snap := p.ledger.Snapshot()
	usage := p.session.Usage()
	p.mu.Lock()
	defer p.mu.Unlock()
	return FullState{
		SessionID:     p.sessionID,
		Prompt:        p.prompt,
		Stage:         p.stage,
		Round:         p.round,
		Drafts:        p.drafts(),
		Questions:     p.questions,
		Refinements:   cloneMap(p.refinements),
		Collaboration: cloneMap(p.collaborations),
		Arguments:     cloneMap(p.arguments),
		Candidates:    p.candidates,
		AIScores:      cloneMap(p.aiScores),
		VotingResult:  p.votingResult,
		FinalOutput:   p.finalOutput,
		Usage:         usage,
		AgentErrors:   cloneMap(p.agentErrors),
		Ledger:        snap,
		CreatedAt:     p.createdAt,
	}
}

// cloneMap shallow-copies a state map. Slice values are only ever
// replaced wholesale under the lock, never mutated in place, so copying
// the headers is enough.
func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// VotingResult returns the combined decision once user voting resolved.
func (p *Pipeline) VotingResult() *core.VotingResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.votingResult
}

// FinalOutput returns the finalizer's narrative once produced.
func (p *Pipeline) FinalOutput() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalOutput
}

// AxiomGraph returns the session's axiom graph once analysis has run.
func (p *Pipeline) AxiomGraph() *axiom.Graph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph
}

// Ledger exposes the session's global context.
func (p *Pipeline) Ledger() *ledger.Ledger { return p.ledger }
