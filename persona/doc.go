// Package persona manages the reusable worker personas a session draws
// from. A Registry merges built-in defaults with user created personas,
// persists the user created ones as JSON, and tracks usage counts and win
// rates across sessions.
package persona
