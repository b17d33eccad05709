// Package journal is the durable log of every model invocation plus the
// persisted session state snapshots that make a pipeline resumable.
//
// Entries are append-only and content addressed: an entry is retrievable by
// its (session, stage, agent, input hash) coordinates, which is what the
// replay cache keys on. Two implementations exist, an in-memory store for
// tests and short-lived sessions and a SQLite store (WAL mode) for
// durability across process restarts.
package journal
