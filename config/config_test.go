package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.4, cfg.Weights.AI)
	assert.Equal(t, 0.6, cfg.Weights.User)
	assert.Equal(t, 0.92, cfg.SimilarityThreshold)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
worker_count: 4
refinement_rounds: 3
retry:
  max_attempts: 5
  initial_delay: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.RefinementRounds)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	// Untouched fields keep defaults.
	assert.Equal(t, 0.92, cfg.SimilarityThreshold)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("TEST_COUNCIL_KEY", "sk-test-123")
	cfg, err := Parse([]byte(`
backends:
  default:
    provider: anthropic
    model: claude-sonnet-4-20250514
    api_key: ${TEST_COUNCIL_KEY}
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Backends["default"].APIKey)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = VoteWeights{AI: 0.5, User: 0.6}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends["default"] = BackendConfig{Provider: "carrier-pigeon"}
	assert.Error(t, cfg.Validate())
}

func TestBackendFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends["worker"] = BackendConfig{Provider: ProviderOllama, Model: "llama3"}
	assert.Equal(t, ProviderOllama, cfg.Backend("worker").Provider)
	assert.Equal(t, ProviderMock, cfg.Backend("curator").Provider)
}
