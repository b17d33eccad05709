package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"council/core"
	"council/logging"
	"council/persona"
)

// Phase labels the visibility regime a session is in. Worker logs are
// private through refinement; from argumentation on, a shared summary of
// every worker's position is injected into each call.
type Phase string

const (
	PhaseDraft         Phase = "draft"
	PhaseRefinement    Phase = "refinement"
	PhaseArgumentation Phase = "argumentation"
	PhaseCollaboration Phase = "collaboration"
	PhaseFinal         Phase = "final"
)

func (p Phase) sharedVisible() bool {
	switch p {
	case PhaseArgumentation, PhaseCollaboration, PhaseFinal:
		return true
	}
	return false
}

// SwapAction selects what happens to a worker's accumulated state when
// its persona is swapped mid-session.
type SwapAction string

const (
	// SwapKeepAll changes the persona and keeps history and draft.
	SwapKeepAll SwapAction = "keep_all"
	// SwapArchive snapshots the live draft to the archive, then resets
	// the worker's live state.
	SwapArchive SwapAction = "archive"
	// SwapRestart discards history and draft without a snapshot.
	SwapRestart SwapAction = "restart"
)

// ArchivedDraft is a draft preserved across a persona swap.
type ArchivedDraft struct {
	PersonaID   string      `json:"persona_id,omitempty"`
	PersonaName string      `json:"persona_name,omitempty"`
	Draft       *core.Draft `json:"draft"`
	ArchivedAt  time.Time   `json:"archived_at"`
}

// sharedEntry is one contribution to the shared context.
type sharedEntry struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Session owns every agent of one deliberation and enforces the phase
// visibility rules between them.
type Session struct {
	id          string
	agents      map[string]*DeliberationAgent
	workerOrder []string
	phase       Phase
	shared      []sharedEntry
	archived    map[string][]ArchivedDraft
	logger      logging.Logger
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Logger logging.Logger
}

// NewSession creates an empty session in the draft phase.
func NewSession(id string, optFns ...func(o *SessionOptions)) *Session {
	var opts SessionOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Session{
		id:       id,
		agents:   make(map[string]*DeliberationAgent),
		phase:    PhaseDraft,
		archived: make(map[string][]ArchivedDraft),
		logger:   core.EnsureLogger(opts.Logger),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Add registers an agent. Workers keep registration order for the
// strictly sequential round execution.
func (s *Session) Add(a *DeliberationAgent) {
	s.agents[a.ID()] = a
	if a.Role() == core.RoleWorker {
		s.workerOrder = append(s.workerOrder, a.ID())
	}
}

// Agent returns a registered agent or nil.
func (s *Session) Agent(id string) *DeliberationAgent { return s.agents[id] }

// Workers returns worker agents in registration order.
func (s *Session) Workers() []*DeliberationAgent {
	out := make([]*DeliberationAgent, 0, len(s.workerOrder))
	for _, id := range s.workerOrder {
		out = append(out, s.agents[id])
	}
	return out
}

// WorkerIDs returns worker ids in registration order.
func (s *Session) WorkerIDs() []string {
	out := make([]string, len(s.workerOrder))
	copy(out, s.workerOrder)
	return out
}

// TransitionTo moves the session to a new phase. Entering the first
// shared-visible phase seeds the shared context with a summary of every
// worker's refined position; the flow is one-directional and logs are
// never merged.
func (s *Session) TransitionTo(phase Phase) {
	prev := s.phase
	s.phase = phase
	if phase.sharedVisible() && !prev.sharedVisible() {
		for _, id := range s.workerOrder {
			summary := s.agents[id].Summary(1000)
			if summary == "" {
				continue
			}
			s.shared = append(s.shared, sharedEntry{
				Source:  id,
				Content: fmt.Sprintf("[%s REFINED PROPOSAL]\n%s", strings.ToUpper(id), summary),
			})
		}
	}
	s.logger.Debug("Phase transition", "session_id", s.id, "from", string(prev), "to", string(phase))
}

// AddShared appends a contribution to the shared context.
func (s *Session) AddShared(source, content string) {
	s.shared = append(s.shared, sharedEntry{Source: source, Content: content})
}

// SharedSummary renders the shared context for injection, capped at
// maxChars.
func (s *Session) SharedSummary(maxChars int) string {
	if maxChars <= 0 {
		maxChars = 2000
	}
	parts := make([]string, 0, len(s.shared))
	for _, e := range s.shared {
		parts = append(parts, e.Content)
	}
	joined := strings.Join(parts, "\n")
	if len(joined) > maxChars {
		joined = joined[:maxChars]
	}
	return joined
}

// VisibleShared returns the shared summary an agent would see on its next
// call, or empty when the phase keeps its log private. Workers see the
// shared summary only once a shared phase begins; the moderator, curator
// and finalizer always see it once it exists.
func (s *Session) VisibleShared(agentID string) string {
	a, ok := s.agents[agentID]
	if !ok {
		return ""
	}
	if a.Role() == core.RoleWorker && !s.phase.sharedVisible() {
		return ""
	}
	return s.SharedSummary(2000)
}

// Invoke calls an agent with the phase visibility rules applied.
func (s *Session) Invoke(ctx context.Context, agentID, prompt string, optFns ...func(o *InvokeOptions)) (string, core.TokenUsage, error) {
	a, ok := s.agents[agentID]
	if !ok {
		return "", core.TokenUsage{}, fmt.Errorf("agent not registered: %s", agentID)
	}
	fns := optFns
	if shared := s.VisibleShared(agentID); shared != "" {
		fns = append([]func(o *InvokeOptions){func(o *InvokeOptions) {
			o.SharedContext = shared
		}}, fns...)
	}
	return a.Invoke(ctx, prompt, fns...)
}

// SwapPersona applies a persona swap to one worker. The new persona's
// system prompt takes effect from the next call.
func (s *Session) SwapPersona(workerID string, p *persona.Persona, action SwapAction) (*ArchivedDraft, error) {
	a, ok := s.agents[workerID]
	if !ok {
		return nil, fmt.Errorf("agent not registered: %s", workerID)
	}

	var archived *ArchivedDraft
	switch action {
	case SwapKeepAll:
	case SwapArchive:
		if a.Draft != nil {
			entry := ArchivedDraft{Draft: a.Draft, ArchivedAt: time.Now().UTC()}
			if prev := a.Persona(); prev != nil {
				entry.PersonaID = prev.ID
				entry.PersonaName = prev.Name
			}
			s.archived[workerID] = append(s.archived[workerID], entry)
			archived = &entry
		}
		a.ClearState()
	case SwapRestart:
		a.ClearState()
	default:
		return nil, fmt.Errorf("unknown swap action: %s", action)
	}

	a.SetPersona(p)
	s.logger.Info("Persona swapped",
		"session_id", s.id,
		"worker_id", workerID,
		"persona", p.Name,
		"action", string(action))
	return archived, nil
}

// Archived returns the drafts archived for a worker, oldest first.
func (s *Session) Archived(workerID string) []ArchivedDraft {
	out := make([]ArchivedDraft, len(s.archived[workerID]))
	copy(out, s.archived[workerID])
	return out
}

// Usage aggregates token usage per agent id.
func (s *Session) Usage() map[string]core.TokenUsage {
	out := make(map[string]core.TokenUsage, len(s.agents))
	for id, a := range s.agents {
		out[id] = a.Usage()
	}
	return out
}

// SessionState is the serializable snapshot of a session and its agents.
type SessionState struct {
	ID       string                     `json:"id"`
	Phase    Phase                      `json:"phase"`
	Agents   map[string]State           `json:"agents"`
	Shared   []sharedEntry              `json:"shared"`
	Archived map[string][]ArchivedDraft `json:"archived,omitempty"`
}

// Snapshot captures the session's resumable state.
func (s *Session) Snapshot() SessionState {
	agents := make(map[string]State, len(s.agents))
	for id, a := range s.agents {
		agents[id] = a.Snapshot()
	}
	return SessionState{
		ID:       s.id,
		Phase:    s.phase,
		Agents:   agents,
		Shared:   append([]sharedEntry(nil), s.shared...),
		Archived: s.archived,
	}
}

// Restore replaces the session's phase, shared context and agent state
// from a snapshot. Agents must already be registered; the snapshot
// carries state, not completer bindings.
func (s *Session) Restore(state SessionState) error {
	for id, as := range state.Agents {
		a, ok := s.agents[id]
		if !ok {
			return fmt.Errorf("agent not registered: %s", id)
		}
		a.Restore(as)
	}
	s.phase = state.Phase
	s.shared = append([]sharedEntry(nil), state.Shared...)
	if state.Archived != nil {
		s.archived = state.Archived
	}
	return nil
}
