package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityRatio("same text", "same text"))
	assert.Equal(t, 1.0, SimilarityRatio("", ""))

	high := SimilarityRatio(
		"Use a replicated log with a leased leader.\nReads go to the leader.\n",
		"Use a replicated log with a leased leader.\nReads go to replicas.\n",
	)
	assert.Greater(t, high, 0.5)

	low := SimilarityRatio(
		"Use a replicated log with a leased leader.\n",
		"Ship everything to a third-party queue and reconcile nightly.\n",
	)
	assert.Less(t, low, high)
}

func TestConvergedRequiresTwoOutputsPerAgent(t *testing.T) {
	outputs := map[string][]string{
		"worker_1": {"proposal v1", "proposal v1"},
		"worker_2": {"only one round"},
	}
	assert.False(t, converged(outputs, 0.9))
}

func TestConvergedAllAgentsMustSettle(t *testing.T) {
	outputs := map[string][]string{
		"worker_1": {"proposal v1", "proposal v1"},
		"worker_2": {"plan A with caching", "a totally different plan built on queues"},
	}
	assert.False(t, converged(outputs, 0.9))

	outputs["worker_2"] = []string{"plan A with caching", "plan A with caching"}
	assert.True(t, converged(outputs, 0.9))
}

func TestConvergedEmpty(t *testing.T) {
	assert.False(t, converged(map[string][]string{}, 0.9))
}

func TestConvergedComparesLastTwoRounds(t *testing.T) {
	outputs := map[string][]string{
		"worker_1": {"wild first draft about queues", "settled position", "settled position"},
	}
	assert.True(t, converged(outputs, 0.9))
}
