// Package orchestrator drives a deliberation session through its stages:
// independent drafts, moderator questions, refinement rounds, an optional
// collaboration phase, candidate synthesis, argumentation, combined
// AI/human voting, axiom extraction and the final narrative.
//
// The pipeline is a resumable state machine. Execution is strictly
// sequential within a session and suspends fully at checkpoint stages;
// nothing blocks waiting on a human. Every completed stage persists a
// state record to the journal, and every model call is consulted against
// the replay cache first, so resuming an interrupted session with
// unchanged inputs reproduces byte-identical output without duplicate
// inference cost.
package orchestrator
