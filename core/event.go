package core

import "time"

// EventType labels a progress event streamed while the pipeline runs.
type EventType string

const (
	EventStageStart       EventType = "stage_start"
	EventStageComplete    EventType = "stage_complete"
	EventAgentStart       EventType = "agent_start"
	EventAgentComplete    EventType = "agent_complete"
	EventTokensUpdate     EventType = "tokens_update"
	EventInfo             EventType = "info"
	EventCommentary       EventType = "commentary"
	EventAwaitingFeedback EventType = "awaiting_feedback"
	EventAxiomExtracted   EventType = "axiom_extracted"
	EventFinalOutput      EventType = "final_output"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
)

// Event is a progress notification emitted by the pipeline while it executes.
// After emission it should be treated as immutable. Payload carries
// stage-specific data (round artifacts, candidates, scores) keyed the same
// way the ledger sections are keyed.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"type"`
	Stage     Stage          `json:"stage,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Round     int            `json:"round,omitempty"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Usage     *TokenUsage    `json:"usage,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates an event of the given type bound to a session.
func NewEvent(sessionID string, typ EventType) Event {
	return Event{
		ID:        NewID(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// WithStage returns a copy of the event tagged with a stage.
func (e Event) WithStage(s Stage) Event {
	e.Stage = s
	return e
}

// WithAgent returns a copy of the event tagged with an agent id.
func (e Event) WithAgent(agentID string) Event {
	e.AgentID = agentID
	return e
}

// WithPayload returns a copy of the event carrying the given payload.
func (e Event) WithPayload(payload map[string]any) Event {
	e.Payload = payload
	return e
}
