// Package axiom builds the knowledge graph extracted at the end of a
// deliberation session.
//
// Axioms are collected last, after all debate and refinement, from three
// sources: the human's accumulated feedback, each worker's final position,
// and the curator's meta pass over everything. Node ids are deterministic
// functions of the session and source, so rebuilding the graph from the
// same inputs yields the same ids. A session produces exactly one Graph
// document, stored by session id.
package axiom
