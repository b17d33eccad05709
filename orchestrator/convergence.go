package orchestrator

import "github.com/pmezard/go-difflib/difflib"

// SimilarityRatio computes the longest-common-subsequence similarity of
// two texts on the [0,1] scale, 1 meaning identical.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(difflib.SplitLines(a), difflib.SplitLines(b))
	return m.Ratio()
}

// converged reports whether every agent with at least two recorded round
// outputs produced a latest output near-identical to its previous one.
// The check ANDs across all agents: a single still-moving agent keeps the
// phase alive.
func converged(outputs map[string][]string, threshold float64) bool {
	checked := false
	for _, raws := range outputs {
		if len(raws) < 2 {
			return false
		}
		checked = true
		last := raws[len(raws)-1]
		prev := raws[len(raws)-2]
		if SimilarityRatio(prev, last) < threshold {
			return false
		}
	}
	return checked
}
