package core

import (
	"github.com/google/uuid"

	"council/logging"
)

// Role categorizes a deliberation agent.
type Role string

const (
	// RoleWorker produces independent persona-conditioned drafts.
	RoleWorker Role = "worker"
	// RoleModerator generates clarifying and follow-up questions and runs
	// compatibility checks across worker proposals.
	RoleModerator Role = "moderator"
	// RoleCurator maintains the global context ledger, synthesizes
	// candidates, scores them and extracts axioms.
	RoleCurator Role = "curator"
	// RoleFinalizer turns the winning candidate and accumulated context into
	// the final narrative output.
	RoleFinalizer Role = "finalizer"
)

// TokenUsage reports token consumption of a single inference call plus the
// agent's running context totals. The context ceiling is observability only;
// nothing truncates when it is exceeded.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	ContextUsed  int `json:"context_used"`
	ContextLimit int `json:"context_limit"`
}

// NewID generates a new unique identifier for sessions and events.
func NewID() string { return uuid.NewString() }

// EnsureLogger returns l, or a NoOpLogger when l is nil, so call sites never
// need a nil check before logging.
func EnsureLogger(l logging.Logger) logging.Logger {
	if l == nil {
		return logging.NoOpLogger{}
	}
	return l
}
