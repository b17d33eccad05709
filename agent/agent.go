package agent

import (
	"context"
	"fmt"
	"time"

	"council/core"
	"council/logging"
	"council/model"
	"council/persona"
)

// DeliberationAgent is one stateful role instance. Its message log is
// append-only and forms the literal input to every subsequent call, so
// the model sees accumulated history rather than a one-shot prompt.
type DeliberationAgent struct {
	id           string
	role         core.Role
	systemPrompt string
	persona      *persona.Persona

	completer model.Completer
	messages  []model.Message
	usage     core.TokenUsage

	contextLimit    int
	maxOutputTokens int
	temperature     float64

	// Draft is the agent's live proposal, set by the pipeline for workers.
	Draft *core.Draft

	logger logging.Logger
}

// AgentOptions configures a DeliberationAgent.
type AgentOptions struct {
	SystemPrompt string
	Persona      *persona.Persona
	// ContextLimit is the observed context ceiling in tokens. It is
	// reported in usage, never enforced.
	ContextLimit    int
	MaxOutputTokens int
	Temperature     float64
	Logger          logging.Logger
}

// New creates an agent bound to a completer.
func New(id string, role core.Role, completer model.Completer, optFns ...func(o *AgentOptions)) *DeliberationAgent {
	opts := AgentOptions{
		ContextLimit: 128000,
		Temperature:  0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	a := &DeliberationAgent{
		id:              id,
		role:            role,
		completer:       completer,
		contextLimit:    opts.ContextLimit,
		maxOutputTokens: opts.MaxOutputTokens,
		temperature:     opts.Temperature,
		logger:          core.EnsureLogger(opts.Logger),
	}
	a.systemPrompt = opts.SystemPrompt
	if opts.Persona != nil {
		a.SetPersona(opts.Persona)
	}
	return a
}

// ID returns the agent id.
func (a *DeliberationAgent) ID() string { return a.id }

// Role returns the agent role.
func (a *DeliberationAgent) Role() core.Role { return a.role }

// Persona returns the assigned persona, or nil for the default style.
func (a *DeliberationAgent) Persona() *persona.Persona { return a.persona }

// Completer returns the bound inference backend.
func (a *DeliberationAgent) Completer() model.Completer { return a.completer }

// SetPersona assigns a persona. The persona's system prompt replaces the
// agent's; the existing message log is untouched.
func (a *DeliberationAgent) SetPersona(p *persona.Persona) {
	a.persona = p
	if p != nil && p.SystemPrompt != "" {
		a.systemPrompt = p.SystemPrompt
	}
}

// SystemPrompt returns the active system prompt.
func (a *DeliberationAgent) SystemPrompt() string { return a.systemPrompt }

// SetSystemPrompt replaces the system prompt directly.
func (a *DeliberationAgent) SetSystemPrompt(prompt string) { a.systemPrompt = prompt }

// Messages returns a copy of the message log.
func (a *DeliberationAgent) Messages() []model.Message {
	out := make([]model.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Usage returns cumulative token usage including the context ceiling.
func (a *DeliberationAgent) Usage() core.TokenUsage {
	u := a.usage
	u.ContextLimit = a.contextLimit
	return u
}

// Append adds a message to the log without invoking the model. The
// pipeline uses it to seed instructions and record external events.
func (a *DeliberationAgent) Append(role, content string) {
	a.messages = append(a.messages, model.Message{Role: role, Content: content})
}

// ClearState discards the message log, live draft and usage counters.
// The persona and system prompt survive.
func (a *DeliberationAgent) ClearState() {
	a.messages = nil
	a.Draft = nil
	a.usage = core.TokenUsage{}
}

// InvokeOptions tunes a single Invoke call.
type InvokeOptions struct {
	// SharedContext, when non-empty, is injected as a user message
	// between the accumulated history and the prompt. The injection is
	// transient per call; the agent's own log never records it.
	SharedContext    string
	StructuredOutput bool
	MaxOutputTokens  int
}

// Invoke sends the full accumulated history plus prompt to the completer
// and appends the exchange to the log. Usage reports this call's counts
// plus the running context total against the configured ceiling.
func (a *DeliberationAgent) Invoke(ctx context.Context, prompt string, optFns ...func(o *InvokeOptions)) (string, core.TokenUsage, error) {
	var opts InvokeOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	msgs := a.Messages()
	if opts.SharedContext != "" {
		msgs = append(msgs, model.Message{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("[SHARED CONTEXT FROM OTHER WORKERS]\n%s\n[END SHARED CONTEXT]", opts.SharedContext),
		})
	}
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: prompt})

	maxOut := a.maxOutputTokens
	if opts.MaxOutputTokens > 0 {
		maxOut = opts.MaxOutputTokens
	}
	req := model.Request{
		SystemPrompt:     a.systemPrompt,
		Messages:         msgs,
		MaxOutputTokens:  maxOut,
		Temperature:      a.temperature,
		StructuredOutput: opts.StructuredOutput,
	}

	start := time.Now()
	resp, err := a.completer.Complete(ctx, req)
	if err != nil {
		a.logger.Error("Inference call failed",
			"agent_id", a.id,
			"model", a.completer.Info().Name,
			"duration", time.Since(start),
			"error", err)
		return "", a.Usage(), fmt.Errorf("agent %s invoke: %w", a.id, err)
	}

	a.Append(model.RoleUser, prompt)
	a.Append(model.RoleAssistant, resp.Text)

	in, out := resp.InputTokens, resp.OutputTokens
	if in == 0 {
		in = a.estimateInput(req)
	}
	if out == 0 {
		out = CountTokens(resp.Text)
	}
	a.usage.InputTokens += in
	a.usage.OutputTokens += out
	a.usage.TotalTokens += in + out
	a.usage.ContextUsed = in + out

	call := core.TokenUsage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		ContextUsed:  a.usage.ContextUsed,
		ContextLimit: a.contextLimit,
	}
	a.logger.Debug("Inference call completed",
		"agent_id", a.id,
		"model", resp.Model,
		"tokens", call.TotalTokens,
		"duration", time.Since(start))
	return resp.Text, call, nil
}

func (a *DeliberationAgent) estimateInput(req model.Request) int {
	n := CountTokens(req.SystemPrompt)
	for _, m := range req.Messages {
		n += CountTokens(m.Content)
	}
	return n
}

// Summary condenses the log for handoff to other agents. Assistant turns
// are included truncated; everything else is skipped.
func (a *DeliberationAgent) Summary(maxChars int) string {
	if maxChars <= 0 {
		maxChars = 2000
	}
	var buf []byte
	for _, m := range a.messages {
		if m.Role != model.RoleAssistant {
			continue
		}
		part := m.Content
		if len(part) > 500 {
			part = part[:500] + "..."
		}
		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, "[Response]: "...)
		buf = append(buf, part...)
	}
	if len(buf) > maxChars {
		buf = buf[:maxChars]
	}
	return string(buf)
}

// State is the serializable snapshot of an agent for pipeline resume.
type State struct {
	ID           string          `json:"id"`
	Role         core.Role       `json:"role"`
	SystemPrompt string          `json:"system_prompt"`
	PersonaID    string          `json:"persona_id,omitempty"`
	Messages     []model.Message `json:"messages"`
	Usage        core.TokenUsage `json:"usage"`
	ContextLimit int             `json:"context_limit"`
	Draft        *core.Draft     `json:"draft,omitempty"`
}

// Snapshot captures the agent's full resumable state.
func (a *DeliberationAgent) Snapshot() State {
	s := State{
		ID:           a.id,
		Role:         a.role,
		SystemPrompt: a.systemPrompt,
		Messages:     a.Messages(),
		Usage:        a.usage,
		ContextLimit: a.contextLimit,
		Draft:        a.Draft,
	}
	if a.persona != nil {
		s.PersonaID = a.persona.ID
	}
	return s
}

// Restore replaces the agent's mutable state from a snapshot.
func (a *DeliberationAgent) Restore(s State) {
	a.systemPrompt = s.SystemPrompt
	a.messages = make([]model.Message, len(s.Messages))
	copy(a.messages, s.Messages)
	a.usage = s.Usage
	if s.ContextLimit > 0 {
		a.contextLimit = s.ContextLimit
	}
	a.Draft = s.Draft
}
