// Package agent provides the stateful deliberation roles and the session
// that owns them. A DeliberationAgent keeps an append-only message log
// that is the complete input to every call it makes; a Session enforces
// the phase visibility rules, keeping worker logs private through
// refinement and injecting a one-directional shared summary from
// argumentation onward. Logs are never merged and never truncated.
package agent
