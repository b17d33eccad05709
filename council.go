// Package council runs multi-agent deliberation sessions: several worker
// agents draft competing proposals, refine them under moderator critique
// and human feedback, argue their positions, and a combined AI/user vote
// selects the answer the finalizer writes up. Sessions suspend fully at
// human checkpoints and are resumable from their journal.
package council

import (
	"context"
	"fmt"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"council/axiom"
	"council/config"
	"council/core"
	"council/journal"
	"council/logging"
	"council/metrics"
	"council/model"
	"council/model/anthropic"
	"council/model/ollama"
	"council/model/openai"
	"council/orchestrator"
	"council/persona"
)

// Options configures a Council. Every field has a working default; set
// Completers to bypass the config-driven backend construction entirely.
type Options struct {
	Config     *config.Config
	Logger     logging.Logger
	Registry   *persona.Registry
	Metrics    metrics.Recorder
	Journal    journal.Journal
	AxiomStore axiom.Store
	Prompts    *orchestrator.PromptSet
	Completers map[core.Role]model.Completer
}

// Council owns the shared infrastructure (journal, personas, metrics,
// backends) and the set of live sessions. It is safe for concurrent use.
type Council struct {
	mu       sync.Mutex
	sessions map[string]*orchestrator.Pipeline

	cfg        *config.Config
	logger     logging.Logger
	registry   *persona.Registry
	recorder   metrics.Recorder
	journal    journal.Journal
	axioms     axiom.Store
	prompts    *orchestrator.PromptSet
	completers map[core.Role]model.Completer
	ownJournal bool
}

// New builds a Council from configuration. The journal backend follows
// config (sqlite when a path is set, in-memory otherwise) unless one is
// injected.
func New(optFns ...func(o *Options)) (*Council, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := core.EnsureLogger(opts.Logger)
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Registry == nil {
		opts.Registry = persona.NewRegistry(func(o *persona.Options) { o.Logger = logger })
	}
	if opts.AxiomStore == nil {
		opts.AxiomStore = axiom.NewMemoryStore()
	}

	ownJournal := false
	if opts.Journal == nil {
		ownJournal = true
		if path := opts.Config.Journal.Path; path != "" {
			j, err := journal.OpenSQLite(path)
			if err != nil {
				return nil, fmt.Errorf("open journal: %w", err)
			}
			opts.Journal = j
		} else {
			opts.Journal = journal.NewMemory()
		}
	}

	completers := opts.Completers
	if completers == nil {
		completers = buildCompleters(opts.Config, logger, opts.Metrics)
	}

	return &Council{
		sessions:   make(map[string]*orchestrator.Pipeline),
		cfg:        opts.Config,
		logger:     logger,
		registry:   opts.Registry,
		recorder:   opts.Metrics,
		journal:    opts.Journal,
		axioms:     opts.AxiomStore,
		prompts:    opts.Prompts,
		completers: completers,
		ownJournal: ownJournal,
	}, nil
}

// buildCompleters constructs one retry-wrapped backend per role from the
// backend configuration.
func buildCompleters(cfg *config.Config, logger logging.Logger, recorder metrics.Recorder) map[core.Role]model.Completer {
	out := make(map[core.Role]model.Completer, 4)
	for _, role := range []core.Role{core.RoleWorker, core.RoleModerator, core.RoleCurator, core.RoleFinalizer} {
		b := cfg.Backend(string(role))
		rc := model.NewRetryCompleter(newBackend(b), func(o *model.RetryOptions) {
			o.Config = model.RetryConfig{
				MaxAttempts:   cfg.Retry.MaxAttempts,
				InitialDelay:  cfg.Retry.InitialDelay,
				MaxDelay:      cfg.Retry.MaxDelay,
				BackoffFactor: cfg.Retry.BackoffFactor,
				Jitter:        cfg.Retry.Jitter,
			}
			o.Logger = logger
		})
		provider := b.Provider
		rc.OnRetry = func(attempt int, err error) { recorder.IncRetry(provider) }
		out[role] = rc
	}
	return out
}

func newBackend(b config.BackendConfig) model.Completer {
	switch b.Provider {
	case config.ProviderAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			if b.Model != "" {
				o.Model = anthropicsdk.Model(b.Model)
			}
			o.APIKey = b.APIKey
			o.BaseURL = b.BaseURL
		})
	case config.ProviderOpenAI:
		return openai.New(func(o *openai.Options) {
			if b.Model != "" {
				o.Model = b.Model
			}
			o.APIKey = b.APIKey
			o.BaseURL = b.BaseURL
		})
	case config.ProviderOllama:
		return ollama.New(func(o *ollama.Options) {
			if b.Model != "" {
				o.Model = b.Model
			}
			if b.BaseURL != "" {
				o.HostURL = b.BaseURL
			}
		})
	default:
		name := b.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockCompleter(name)
	}
}

// SessionOptions customizes one session beyond the council defaults.
type SessionOptions struct {
	// SessionID overrides the generated id, e.g. to pick a stable id for
	// replay experiments.
	SessionID   string
	Constraints []string
	Rubric      string
	// Personas assigns a registered persona per worker id.
	Personas map[string]string
}

// CreateSession builds a new deliberation pipeline for prompt and
// registers it. The pipeline is returned suspended at setup; call Run to
// execute it.
func (c *Council) CreateSession(prompt string, optFns ...func(o *SessionOptions)) (*orchestrator.Pipeline, error) {
	opts := SessionOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	personas := make(map[string]*persona.Persona, len(opts.Personas))
	for workerID, personaID := range opts.Personas {
		p, err := c.registry.Get(personaID)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", workerID, err)
		}
		personas[workerID] = &p
	}

	pipe, err := orchestrator.New(sessionID, prompt, c.completers, func(o *orchestrator.Options) {
		c.applyConfig(o)
		o.Constraints = opts.Constraints
		o.Rubric = opts.Rubric
		o.Personas = personas
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[sessionID] = pipe
	c.mu.Unlock()
	c.logger.Info("Session created", "session_id", sessionID, "workers", c.cfg.WorkerCount)
	return pipe, nil
}

// ResumeSession reconstructs a suspended session from the journal and
// registers it.
func (c *Council) ResumeSession(ctx context.Context, sessionID string) (*orchestrator.Pipeline, error) {
	pipe, err := orchestrator.Resume(ctx, c.journal, sessionID, c.completers, c.applyConfig)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sessions[sessionID] = pipe
	c.mu.Unlock()
	c.logger.Info("Session resumed", "session_id", sessionID, "stage", string(pipe.Stage()))
	return pipe, nil
}

func (c *Council) applyConfig(o *orchestrator.Options) {
	o.WorkerCount = c.cfg.WorkerCount
	o.Rounds = orchestrator.RoundCounts{
		Refinement:    c.cfg.RefinementRounds,
		Collaboration: c.cfg.CollaborationRounds,
		Argument:      c.cfg.ArgumentRounds,
		Axiom:         c.cfg.AxiomRounds,
	}
	o.SimilarityThreshold = c.cfg.SimilarityThreshold
	o.AIWeight = c.cfg.Weights.AI
	o.UserWeight = c.cfg.Weights.User
	o.ContextLimits = make(map[core.Role]int, 4)
	o.MaxOutputTokens = make(map[core.Role]int, 4)
	for _, role := range []core.Role{core.RoleWorker, core.RoleModerator, core.RoleCurator, core.RoleFinalizer} {
		budget := c.cfg.Budget(string(role))
		o.ContextLimits[role] = budget.ContextLimit
		o.MaxOutputTokens[role] = budget.MaxOutputTokens
	}
	o.Registry = c.registry
	o.Journal = c.journal
	o.AxiomStore = c.axioms
	o.Metrics = c.recorder
	o.Prompts = c.prompts
	o.Logger = c.logger
}

// Session returns a registered session by id.
func (c *Council) Session(sessionID string) (*orchestrator.Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pipe, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return pipe, nil
}

// Sessions lists the ids of all registered sessions.
func (c *Council) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// Forget drops a session from the registry. Its journal entries stay, so
// it remains resumable.
func (c *Council) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// Personas exposes the persona registry shared by all sessions.
func (c *Council) Personas() *persona.Registry { return c.registry }

// AxiomGraph loads a finished session's axiom graph from the store.
func (c *Council) AxiomGraph(ctx context.Context, sessionID string) (*axiom.Graph, error) {
	return c.axioms.Load(ctx, sessionID)
}

// Close releases the journal when the council opened it itself.
func (c *Council) Close() error {
	if !c.ownJournal {
		return nil
	}
	if closer, ok := c.journal.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
