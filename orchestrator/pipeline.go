package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"council/agent"
	"council/axiom"
	"council/core"
	"council/journal"
	"council/ledger"
	"council/logging"
	"council/metrics"
	"council/model"
	"council/persona"
	"council/replay"
	"council/structured"
)

// Sentinel errors of the pipeline surface.
var (
	// ErrWrongCheckpoint rejects a submission that does not match the
	// current checkpoint. State is never mutated on rejection.
	ErrWrongCheckpoint = errors.New("submission does not match the current checkpoint")
	// ErrPipelineRunning rejects calls while a run is in flight.
	ErrPipelineRunning = errors.New("pipeline is executing")
	// ErrPipelineComplete rejects calls on a finished session.
	ErrPipelineComplete = errors.New("pipeline already complete")
	// ErrAwaitingFeedback rejects Run/Continue at an unresolved checkpoint.
	ErrAwaitingFeedback = errors.New("pipeline awaiting feedback submission")
)

// Agent ids of the singleton roles. Workers are worker_1..worker_N.
const (
	ModeratorID = "moderator"
	CuratorID   = "curator"
	FinalizerID = "finalizer"
)

// RoundCounts caps each repeatable phase. Convergence or an explicit skip
// may end a phase earlier.
type RoundCounts struct {
	Refinement    int `json:"refinement"`
	Collaboration int `json:"collaboration"`
	Argument      int `json:"argument"`
	Axiom         int `json:"axiom"`
}

// Options configures a Pipeline.
type Options struct {
	WorkerCount         int
	Rounds              RoundCounts
	SimilarityThreshold float64
	Constraints         []string
	Rubric              string
	AIWeight            float64
	UserWeight          float64
	// Personas assigns a persona per worker id at session start.
	Personas map[string]*persona.Persona
	// Registry, when set, receives usage and win-rate updates at
	// completion.
	Registry *persona.Registry
	// Budgets keys context/output limits by role name.
	ContextLimits   map[core.Role]int
	MaxOutputTokens map[core.Role]int
	Journal         journal.Journal
	AxiomStore      axiom.Store
	Metrics         metrics.Recorder
	Prompts         *PromptSet
	Logger          logging.Logger
}

// Pipeline is the resumable state machine for one deliberation session.
// All methods are safe for sequential use; a second Run while one is in
// flight is rejected.
type Pipeline struct {
	mu      sync.Mutex
	running bool

	sessionID   string
	prompt      string
	constraints []string
	rubric      string
	rounds      RoundCounts
	threshold   float64
	aiWeight    float64
	userWeight  float64
	createdAt   time.Time

	session  *agent.Session
	ledger   *ledger.Ledger
	journal  journal.Journal
	cache    *replay.Cache
	axioms   axiom.Store
	registry *persona.Registry
	recorder metrics.Recorder
	prompts  *PromptSet
	logger   logging.Logger

	stage core.Stage
	round int

	questions      core.Questions
	compatibility  *core.Compatibility
	refinements    map[string][]core.Refinement
	collaborations map[string][]core.Collaboration
	arguments      map[string][]core.Argument
	candidates     []core.Candidate
	aiScores       map[string]float64
	scoreDetails   []core.Score
	votingResult   *core.VotingResult
	feedback       []core.FeedbackNote
	guidance       map[string]string
	overall        string
	phaseRaw       map[string][]string
	finalOutput    string
	revisions      []string
	promptRating   int
	promptFeedback string
	graph          *axiom.Graph
	agentErrors    map[string]string
}

// New creates a pipeline at the setup stage. completers supplies the
// inference backend per role; a missing role falls back to the worker's.
func New(sessionID, prompt string, completers map[core.Role]model.Completer, optFns ...func(o *Options)) (*Pipeline, error) {
	opts := Options{
		WorkerCount:         2,
		Rounds:              RoundCounts{Refinement: 2, Collaboration: 1, Argument: 1, Axiom: 1},
		SimilarityThreshold: 0.92,
		AIWeight:            0.4,
		UserWeight:          0.6,
		Journal:             journal.NewMemory(),
		AxiomStore:          axiom.NewMemoryStore(),
		Metrics:             metrics.Nop(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", opts.WorkerCount)
	}
	if completers[core.RoleWorker] == nil {
		return nil, errors.New("worker completer is required")
	}
	if opts.Prompts == nil {
		opts.Prompts = DefaultPrompts()
	}
	logger := core.EnsureLogger(opts.Logger)

	p := &Pipeline{
		sessionID:      sessionID,
		prompt:         prompt,
		constraints:    opts.Constraints,
		rubric:         opts.Rubric,
		rounds:         opts.Rounds,
		threshold:      opts.SimilarityThreshold,
		aiWeight:       opts.AIWeight,
		userWeight:     opts.UserWeight,
		createdAt:      time.Now().UTC(),
		journal:        opts.Journal,
		axioms:         opts.AxiomStore,
		registry:       opts.Registry,
		recorder:       opts.Metrics,
		prompts:        opts.Prompts,
		logger:         logger,
		stage:          core.StageSetup,
		refinements:    make(map[string][]core.Refinement),
		collaborations: make(map[string][]core.Collaboration),
		arguments:      make(map[string][]core.Argument),
		aiScores:       make(map[string]float64),
		guidance:       make(map[string]string),
		phaseRaw:       make(map[string][]string),
		agentErrors:    make(map[string]string),
	}
	p.ledger = ledger.New(sessionID, prompt, func(o *ledger.Options) { o.Logger = logger })
	p.cache = replay.New(opts.Journal, func(o *replay.Options) { o.Logger = logger })
	p.cache.OnHit = func(stage core.Stage) { p.recorder.IncReplayHit(string(stage)) }
	p.cache.OnMiss = func(stage core.Stage) { p.recorder.IncReplayMiss(string(stage)) }

	p.session = agent.NewSession(sessionID, func(o *agent.SessionOptions) { o.Logger = logger })
	roleCompleter := func(role core.Role) model.Completer {
		if c := completers[role]; c != nil {
			return c
		}
		return completers[core.RoleWorker]
	}
	agentOpts := func(role core.Role, pers *persona.Persona) func(o *agent.AgentOptions) {
		return func(o *agent.AgentOptions) {
			o.Logger = logger
			o.Persona = pers
			if limit, ok := opts.ContextLimits[role]; ok {
				o.ContextLimit = limit
			}
			if max, ok := opts.MaxOutputTokens[role]; ok {
				o.MaxOutputTokens = max
			}
		}
	}
	for i := 1; i <= opts.WorkerCount; i++ {
		id := fmt.Sprintf("worker_%d", i)
		p.session.Add(agent.New(id, core.RoleWorker, roleCompleter(core.RoleWorker), agentOpts(core.RoleWorker, opts.Personas[id])))
	}
	p.session.Add(agent.New(ModeratorID, core.RoleModerator, roleCompleter(core.RoleModerator), agentOpts(core.RoleModerator, nil)))
	p.session.Add(agent.New(CuratorID, core.RoleCurator, roleCompleter(core.RoleCurator), agentOpts(core.RoleCurator, nil)))
	p.session.Add(agent.New(FinalizerID, core.RoleFinalizer, roleCompleter(core.RoleFinalizer), agentOpts(core.RoleFinalizer, nil)))

	if opts.Registry != nil {
		for _, w := range p.session.Workers() {
			if pers := w.Persona(); pers != nil {
				opts.Registry.RecordUsage(pers.ID)
			}
		}
	}
	return p, nil
}

// SessionID returns the owning session id.
func (p *Pipeline) SessionID() string { return p.sessionID }

// Stage returns the current pipeline stage.
func (p *Pipeline) Stage() core.Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// Run starts a fresh pipeline from setup and executes until the first
// checkpoint, completion or error, streaming progress events. The
// returned channel closes when execution suspends.
func (p *Pipeline) Run(ctx context.Context) (<-chan core.Event, error) {
	return p.start(ctx)
}

// Continue resumes execution after a checkpoint has been resolved by a
// feedback submission.
func (p *Pipeline) Continue(ctx context.Context) (<-chan core.Event, error) {
	return p.start(ctx)
}

func (p *Pipeline) start(ctx context.Context) (<-chan core.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, ErrPipelineRunning
	}
	if p.stage.IsTerminal() {
		return nil, ErrPipelineComplete
	}
	if p.stage.IsCheckpoint() {
		return nil, fmt.Errorf("%w: %s", ErrAwaitingFeedback, p.stage)
	}
	p.running = true
	// Sized to hold every event a full run segment can emit, so nothing
	// is dropped even when the consumer drains late.
	ch := make(chan core.Event, 256)
	go func() {
		defer close(ch)
		defer func() {
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
		}()
		p.loop(ctx, ch)
	}()
	return ch, nil
}

func (p *Pipeline) loop(ctx context.Context, ch chan<- core.Event) {
	for {
		stage := p.Stage()
		if stage.IsCheckpoint() || stage.IsTerminal() {
			return
		}
		start := time.Now()
		p.emit(ch, core.NewEvent(p.sessionID, core.EventStageStart).WithStage(stage))

		err := p.executeStage(ctx, ch)
		if err != nil {
			ev := core.NewEvent(p.sessionID, core.EventError).WithStage(stage)
			ev.Message = err.Error()
			p.emit(ch, ev)
			p.logger.Error("Stage failed", "session_id", p.sessionID, "stage", string(stage), "error", err)
			if perr := p.persist(ctx); perr != nil {
				p.logger.Error("State persistence failed", "session_id", p.sessionID, "error", perr)
			}
			return
		}

		p.recorder.ObserveStage(string(stage), time.Since(start))
		p.emit(ch, core.NewEvent(p.sessionID, core.EventStageComplete).WithStage(stage))
		if perr := p.persist(ctx); perr != nil {
			p.logger.Error("State persistence failed", "session_id", p.sessionID, "error", perr)
		}

		next := p.Stage()
		if next.IsCheckpoint() {
			ev := core.NewEvent(p.sessionID, core.EventAwaitingFeedback).WithStage(next)
			ev.Round = p.round
			ev.Payload = p.checkpointPayload(next)
			p.emit(ch, ev)
			return
		}
		if next.IsTerminal() {
			p.emit(ch, core.NewEvent(p.sessionID, core.EventComplete).WithStage(next))
			return
		}
	}
}

func (p *Pipeline) executeStage(ctx context.Context, ch chan<- core.Event) error {
	switch p.Stage() {
	case core.StageSetup:
		return p.runSetup()
	case core.StageWorkerDrafts:
		return p.runWorkerDrafts(ctx, ch)
	case core.StageSynthQuestions:
		return p.runSynthQuestions(ctx, ch)
	case core.StageWorkerRefinement:
		return p.runRefinementRound(ctx, ch)
	case core.StageCompatibilityCheck:
		return p.runCompatibilityCheck(ctx, ch)
	case core.StageCollaboration:
		return p.runCollaborationRound(ctx, ch)
	case core.StageCandidateSynthesis:
		return p.runCandidateSynthesis(ctx, ch)
	case core.StageArgumentation:
		return p.runArgumentationRound(ctx, ch)
	case core.StageAIVoting:
		return p.runAIVoting(ctx, ch)
	case core.StageAxiomAnalysis:
		return p.runAxiomAnalysis(ctx, ch)
	case core.StageFinalOutput:
		return p.runFinalOutput(ctx, ch)
	default:
		return fmt.Errorf("stage %s is not executable", p.Stage())
	}
}

func (p *Pipeline) emit(ch chan<- core.Event, ev core.Event) {
	select {
	case ch <- ev:
	default:
		// A slow consumer must not stall the pipeline.
	}
}

func (p *Pipeline) setStage(s core.Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

func (p *Pipeline) setRound(r int) {
	p.mu.Lock()
	p.round = r
	p.mu.Unlock()
}

// enterPhase resets the per-phase round state.
func (p *Pipeline) enterPhase(s core.Stage) {
	p.mu.Lock()
	p.stage = s
	p.round = 0
	p.phaseRaw = make(map[string][]string)
	p.mu.Unlock()
}

// invoke runs one replay-cached model call for an agent. On a cache hit
// the journaled output is appended to the agent's log exactly as a fresh
// reply would be.
func (p *Pipeline) invoke(ctx context.Context, ch chan<- core.Event, agentID, prompt string, structuredOut bool) (string, error) {
	a := p.session.Agent(agentID)
	stage := p.Stage()
	input := p.replayInput(a, agentID, prompt)

	startEv := core.NewEvent(p.sessionID, core.EventAgentStart).WithStage(stage).WithAgent(agentID)
	startEv.Round = p.round + 1
	p.emit(ch, startEv)

	if e, ok := p.cache.Lookup(ctx, p.sessionID, stage, agentID, input); ok {
		a.Append(model.RoleUser, prompt)
		a.Append(model.RoleAssistant, e.Output)
		ev := core.NewEvent(p.sessionID, core.EventAgentComplete).WithStage(stage).WithAgent(agentID)
		ev.Message = "replayed"
		p.emit(ch, ev)
		return e.Output, nil
	}

	start := time.Now()
	out, usage, err := p.session.Invoke(ctx, agentID, prompt, func(o *agent.InvokeOptions) {
		o.StructuredOutput = structuredOut
	})
	p.recorder.ObserveInference(a.Completer().Info().Name, agentID, string(stage),
		usage.InputTokens, usage.OutputTokens, err == nil, time.Since(start))
	if err != nil {
		return "", err
	}

	if rerr := p.cache.Record(ctx, &journal.Entry{
		SessionID: p.sessionID,
		Stage:     stage,
		AgentID:   agentID,
		Round:     p.round + 1,
		InputText: input,
		Output:    out,
		Usage:     usage,
	}); rerr != nil {
		p.logger.Warn("Journal append failed", "session_id", p.sessionID, "agent_id", agentID, "error", rerr)
	}

	done := core.NewEvent(p.sessionID, core.EventAgentComplete).WithStage(stage).WithAgent(agentID)
	done.Usage = &usage
	p.emit(ch, done)
	p.emit(ch, core.NewEvent(p.sessionID, core.EventTokensUpdate).WithAgent(agentID).WithPayload(map[string]any{
		"usage": a.Usage(),
	}))
	return out, nil
}

// replayInput renders the exact input an invocation would send, for
// content addressing.
func (p *Pipeline) replayInput(a *agent.DeliberationAgent, agentID, prompt string) string {
	var b strings.Builder
	b.WriteString("system: ")
	b.WriteString(a.SystemPrompt())
	b.WriteByte('\n')
	for _, m := range a.Messages() {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	if shared := p.session.VisibleShared(agentID); shared != "" {
		b.WriteString("shared: ")
		b.WriteString(shared)
		b.WriteByte('\n')
	}
	b.WriteString("user: ")
	b.WriteString(prompt)
	return b.String()
}

// agentFailed records a per-agent round failure without failing the
// stage. Total backend unavailability is session fatal.
func (p *Pipeline) agentFailed(ch chan<- core.Event, agentID string, err error) error {
	if errors.Is(err, model.ErrUnavailable) {
		return err
	}
	p.agentErrors[agentID] = err.Error()
	ev := core.NewEvent(p.sessionID, core.EventError).WithStage(p.Stage()).WithAgent(agentID)
	ev.Message = err.Error()
	p.emit(ch, ev)
	p.logger.Warn("Agent round failed", "session_id", p.sessionID, "agent_id", agentID, "error", err)
	return nil
}

// applyCurator routes a stage payload into the ledger through the curator
// contract: the curator sees the current ledger digest plus the stage
// payload and authors the sectioned entries and patch notes itself.
// Unknown sections are dropped and audit-logged by the ledger. When the
// curator call fails or its reply does not parse, the raw stage payload
// is applied directly so the ledger never starves on a flaky backend.
func (p *Pipeline) applyCurator(ctx context.Context, ch chan<- core.Event, stage core.Stage, agentID string, role core.Role, payload map[string]map[string]any, patchNotes []string) {
	prov := ledger.Provenance{AgentID: agentID, Role: role, Stage: stage, Round: p.round}

	entries := payload
	prompt := p.prompts.LedgerUpdate(stage, p.ledger.Digest(), renderPayload(payload))
	out, err := p.invoke(ctx, ch, CuratorID, prompt, true)
	if err != nil {
		p.logger.Warn("Ledger authoring call failed, applying stage payload directly",
			"session_id", p.sessionID, "stage", string(stage), "error", err)
	} else if update, status := structured.ParseLedgerUpdate(out); status != structured.StatusFailed {
		entries = update.Entries
		patchNotes = append(patchNotes, update.PatchNotes...)
	} else {
		p.logger.Warn("Ledger authoring reply unusable, applying stage payload directly",
			"session_id", p.sessionID, "stage", string(stage))
	}

	res := p.ledger.ApplyUpdate(prov, entries)
	for _, note := range patchNotes {
		_, _ = p.ledger.Append(ledger.SectionPatchNotes, prov, map[string]any{"note": note})
	}
	if len(res.Skipped) > 0 {
		p.logger.Warn("Curator update partially dropped",
			"session_id", p.sessionID, "stage", string(stage), "skipped", strings.Join(res.Skipped, ","))
	}
}

// renderPayload marshals a stage payload for the curator prompt. Map
// keys serialize in sorted order, so the rendering is deterministic.
func renderPayload(payload map[string]map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (p *Pipeline) checkpointPayload(stage core.Stage) map[string]any {
	switch stage {
	case core.StageAwaitingRoundFeedback:
		return map[string]any{"round": p.round, "refinements": p.refinements, "questions": p.questions}
	case core.StageAwaitingCollabFeedback:
		return map[string]any{"round": p.round, "collaborations": p.collaborations}
	case core.StageAwaitingArgumentFeedback:
		return map[string]any{"round": p.round, "arguments": p.arguments}
	case core.StageUserVoting:
		return map[string]any{"candidates": p.candidates, "ai_scores": p.aiScores}
	case core.StageAwaitingFinalFeedback:
		return map[string]any{"final_output": p.finalOutput}
	default:
		return nil
	}
}

// workerPositions renders each worker's latest position for moderator and
// curator prompts.
func (p *Pipeline) workerPositions() map[string]string {
	out := make(map[string]string)
	for _, w := range p.session.Workers() {
		id := w.ID()
		pos := ""
		if refs := p.refinements[id]; len(refs) > 0 && refs[len(refs)-1].UpdatedSummary != "" {
			pos = refs[len(refs)-1].UpdatedSummary
		} else if w.Draft != nil {
			pos = w.Draft.Summary
		}
		if collabs := p.collaborations[id]; len(collabs) > 0 && collabs[len(collabs)-1].Summary != "" {
			pos = collabs[len(collabs)-1].Summary
		}
		if pos != "" {
			out[id] = pos
		}
	}
	return out
}

func (p *Pipeline) drafts() map[string]core.Draft {
	out := make(map[string]core.Draft)
	for _, w := range p.session.Workers() {
		if w.Draft != nil {
			out[w.ID()] = *w.Draft
		}
	}
	return out
}
