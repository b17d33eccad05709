// Package model defines the inference backend abstraction used by
// deliberation agents.
//
// Completer is the minimal interface a provider must satisfy: one blocking
// call that turns a normalized Request into a Response with token usage.
// Provider adapters live in the subpackages anthropic, openai and ollama.
// Retry wraps any Completer with exponential backoff over transient
// transport failures, and MockCompleter supports tests and examples.
package model
