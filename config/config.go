package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend provider constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// RoleBudget carries the token accounting limits for a single role. Limits
// are tracked and reported, never enforced mid-call.
type RoleBudget struct {
	ContextLimit    int `yaml:"context_limit"`
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// VoteWeights controls how AI panel scores and user ranks are blended.
type VoteWeights struct {
	AI   float64 `yaml:"ai"`
	User float64 `yaml:"user"`
}

// RetryConfig defines the backoff policy for transient model failures.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// BackendConfig selects the inference provider for a role.
type BackendConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// JournalConfig selects the durable log backend.
type JournalConfig struct {
	// Path to the sqlite database file. Empty selects the in-memory journal.
	Path string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top level session configuration.
type Config struct {
	// WorkerCount is the number of deliberating worker agents.
	WorkerCount int `yaml:"worker_count"`
	// RefinementRounds caps the critique/refine loop. Convergence may halt
	// the loop earlier.
	RefinementRounds int `yaml:"refinement_rounds"`
	// CollaborationRounds caps the merge loop entered when proposals are
	// judged compatible.
	CollaborationRounds int `yaml:"collaboration_rounds"`
	// ArgumentRounds caps the argumentation loop.
	ArgumentRounds int `yaml:"argument_rounds"`
	// AxiomRounds caps the per-agent axiom reflection passes.
	AxiomRounds int `yaml:"axiom_rounds"`
	// SimilarityThreshold is the convergence cutoff applied to consecutive
	// refinement outputs of every agent.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	Weights  VoteWeights              `yaml:"vote_weights"`
	Retry    RetryConfig              `yaml:"retry"`
	Budgets  map[string]RoleBudget    `yaml:"budgets"`
	Backends map[string]BackendConfig `yaml:"backends"`
	Journal  JournalConfig            `yaml:"journal"`
	Logging  LoggingConfig            `yaml:"logging"`
}

// DefaultConfig returns a runnable baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:         2,
		RefinementRounds:    2,
		CollaborationRounds: 1,
		ArgumentRounds:      1,
		AxiomRounds:         1,
		SimilarityThreshold: 0.92,
		Weights:             VoteWeights{AI: 0.4, User: 0.6},
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Budgets: map[string]RoleBudget{
			"worker":    {ContextLimit: 128000, MaxOutputTokens: 4096},
			"moderator": {ContextLimit: 128000, MaxOutputTokens: 4096},
			"curator":   {ContextLimit: 128000, MaxOutputTokens: 2048},
			"finalizer": {ContextLimit: 128000, MaxOutputTokens: 8192},
		},
		Backends: map[string]BackendConfig{
			"default": {Provider: ProviderMock},
		},
		Journal: JournalConfig{Path: ""},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} placeholders with environment values.
// Unset variables expand to the empty string.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// Load reads a YAML config file, applies defaults for missing fields and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML on top of the default configuration.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for name, b := range cfg.Backends {
		b.APIKey = expandEnv(b.APIKey)
		b.BaseURL = expandEnv(b.BaseURL)
		cfg.Backends[name] = b
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants a session depends on.
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be at least 1, got %d", c.WorkerCount)
	}
	if c.RefinementRounds < 0 {
		return fmt.Errorf("refinement_rounds must be non-negative, got %d", c.RefinementRounds)
	}
	if c.CollaborationRounds < 0 || c.ArgumentRounds < 0 || c.AxiomRounds < 0 {
		return fmt.Errorf("round counts must be non-negative")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.SimilarityThreshold)
	}
	if c.Weights.AI < 0 || c.Weights.User < 0 {
		return fmt.Errorf("vote weights must be non-negative")
	}
	if sum := c.Weights.AI + c.Weights.User; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("vote weights must sum to 1.0, got %g", sum)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	for name, b := range c.Backends {
		switch b.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderMock:
		default:
			return fmt.Errorf("backend %q: unknown provider %q", name, b.Provider)
		}
	}
	return nil
}

// Backend resolves the backend for a role, falling back to "default".
func (c *Config) Backend(role string) BackendConfig {
	if b, ok := c.Backends[role]; ok {
		return b
	}
	return c.Backends["default"]
}

// Budget resolves the token budget for a role, falling back to a permissive
// default when the role is not configured.
func (c *Config) Budget(role string) RoleBudget {
	if b, ok := c.Budgets[role]; ok {
		return b
	}
	return RoleBudget{ContextLimit: 128000, MaxOutputTokens: 4096}
}
