// Package ledger implements the session-wide global context: an append-only
// log of sectioned deltas that is the single reconstructible source of truth
// across pipeline stages.
//
// Sections form a fixed enum. Writers append entries with provenance; the
// current view of any section is a pure reduction over the entry log, so a
// session restored from its journal reproduces the exact same context. The
// curator updates the ledger through ApplyUpdate, which whitelists sections:
// entries aimed at unknown sections are dropped and audit-logged, never
// stored.
package ledger
