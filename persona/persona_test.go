package persona

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() []Persona {
	return []Persona{
		{ID: "analyst", Name: "Analyst", SystemPrompt: "Think step by step.", ReasoningStyle: StyleStructured, Tone: "formal"},
		{ID: "maverick", Name: "Maverick", SystemPrompt: "Challenge assumptions.", ReasoningStyle: StyleLateral, Tone: "casual"},
	}
}

func TestRegistryDefaultsAreImmutable(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.Defaults = defaults() })

	_, err := r.Update("analyst", func(p *Persona) { p.Name = "x" })
	assert.ErrorIs(t, err, ErrDefaultImmutable)
	assert.ErrorIs(t, r.Delete("analyst"), ErrDefaultImmutable)
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.Defaults = defaults() })

	p := r.Create("Skeptic", "Doubt everything.", StyleCritical, "technical")
	got, err := r.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Skeptic", got.Name)
	assert.False(t, got.IsDefault)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryPersistsUserPersonas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")

	r := NewRegistry(func(o *Options) { o.Path = path; o.Defaults = defaults() })
	created := r.Create("Skeptic", "Doubt everything.", StyleCritical, "technical")

	r2 := NewRegistry(func(o *Options) { o.Path = path; o.Defaults = defaults() })
	got, err := r2.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Skeptic", got.Name)
	// Defaults are not written to disk but still present.
	assert.Len(t, r2.All(), 3)
}

func TestRecordOutcomeMovesWinRate(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.Defaults = defaults() })

	r.RecordUsage("analyst")
	r.RecordOutcome("analyst", true)
	p, err := r.Get("analyst")
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.WinRate)

	r.RecordUsage("analyst")
	r.RecordOutcome("analyst", false)
	p, err = r.Get("analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.WinRate)
}

func TestTopPerformersSkipsUnused(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.Defaults = defaults() })
	r.RecordUsage("maverick")
	r.RecordOutcome("maverick", true)

	top := r.TopPerformers(5)
	require.Len(t, top, 1)
	assert.Equal(t, "maverick", top[0].ID)
}
