// Package core defines the shared domain types of the council pipeline:
// deliberation roles, pipeline stages, round artifacts (drafts, refinements,
// arguments, collaborations), synthesized candidates with their scores and
// votes, and the progress events streamed to callers while a session runs.
//
// Higher layers (orchestrator, voting, axiom, ledger) depend on core; core
// depends on nothing but the logging abstraction and uuid generation.
package core
