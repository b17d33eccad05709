// Package voting combines the moderator panel's candidate scores with human
// ranks into a single decision.
//
// Ranks map onto the same 0-10 scale the panel scores use, then the two are
// blended with configurable weights (AI 0.4 / user 0.6 by default). A human
// override of a known candidate always wins regardless of scores. Ties break
// deterministically toward the candidate listed first.
package voting
