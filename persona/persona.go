package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"council/core"
	"council/logging"
)

// Reasoning style constants.
const (
	StyleStructured = "structured"
	StyleLateral    = "lateral"
	StyleCritical   = "critical"
	StyleIntuitive  = "intuitive"
)

// ErrNotFound is returned when a persona id is unknown.
var ErrNotFound = errors.New("persona not found")

// ErrDefaultImmutable is returned on attempts to modify built-in personas.
var ErrDefaultImmutable = errors.New("default personas cannot be modified")

// Persona is a worker thinking-style definition.
type Persona struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SystemPrompt   string    `json:"system_prompt"`
	ReasoningStyle string    `json:"reasoning_style"`
	Tone           string    `json:"tone"`
	SourceTextID   string    `json:"source_text_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UsageCount     int       `json:"usage_count"`
	WinRate        float64   `json:"win_rate"`
	IsDefault      bool      `json:"is_default"`
}

// Options configures a Registry.
type Options struct {
	// Path points at the JSON file holding user created personas. Empty
	// keeps the registry fully in memory.
	Path     string
	Defaults []Persona
	Logger   logging.Logger
}

// Registry stores personas and their cross-session statistics.
type Registry struct {
	mu       sync.RWMutex
	path     string
	personas map[string]*Persona
	logger   logging.Logger
}

// NewRegistry builds a registry, loading persisted user personas when a
// path is configured. A corrupt persona file is logged and skipped.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Registry{
		path:     opts.Path,
		personas: make(map[string]*Persona),
		logger:   opts.Logger,
	}
	for i := range opts.Defaults {
		p := opts.Defaults[i]
		p.IsDefault = true
		if p.ReasoningStyle == "" {
			p.ReasoningStyle = StyleStructured
		}
		r.personas[p.ID] = &p
	}
	if r.path != "" {
		r.load()
	}
	return r
}

type personaFile struct {
	Personas    []Persona `json:"personas"`
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("could not read persona file", "path", r.path, "error", err)
		}
		return
	}
	var file personaFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("could not parse persona file", "path", r.path, "error", err)
		return
	}
	for i := range file.Personas {
		p := file.Personas[i]
		r.personas[p.ID] = &p
	}
}

// save persists non-default personas. Callers hold the lock.
func (r *Registry) save() {
	if r.path == "" {
		return
	}
	file := personaFile{Version: "1.0", LastUpdated: time.Now().UTC()}
	for _, p := range r.personas {
		if !p.IsDefault {
			file.Personas = append(file.Personas, *p)
		}
	}
	sort.Slice(file.Personas, func(i, j int) bool { return file.Personas[i].ID < file.Personas[j].ID })
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		r.logger.Error("could not encode persona file", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.logger.Error("could not create persona dir", "error", err)
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		r.logger.Error("could not write persona file", "path", r.path, "error", err)
	}
}

// Get returns a persona by id.
func (r *Registry) Get(id string) (Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *p, nil
}

// All returns every persona ordered by name.
func (r *Registry) All() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create registers a new user persona and persists it.
func (r *Registry) Create(name, systemPrompt, reasoningStyle, tone string) Persona {
	if reasoningStyle == "" {
		reasoningStyle = StyleStructured
	}
	if tone == "" {
		tone = "formal"
	}
	p := &Persona{
		ID:             core.NewID(),
		Name:           name,
		SystemPrompt:   systemPrompt,
		ReasoningStyle: reasoningStyle,
		Tone:           tone,
		CreatedAt:      time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personas[p.ID] = p
	r.save()
	return *p
}

// Update modifies the mutable fields of a user persona.
func (r *Registry) Update(id string, mutate func(p *Persona)) (Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.personas[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.IsDefault {
		return Persona{}, ErrDefaultImmutable
	}
	mutate(p)
	r.save()
	return *p, nil
}

// Delete removes a user persona.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.personas[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.IsDefault {
		return ErrDefaultImmutable
	}
	delete(r.personas, id)
	r.save()
	return nil
}

// RecordUsage increments the usage counter when a persona joins a session.
func (r *Registry) RecordUsage(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.personas[id]; ok {
		p.UsageCount++
		r.save()
	}
}

// RecordOutcome folds a session result into the persona's running win rate.
func (r *Registry) RecordOutcome(id string, won bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.personas[id]
	if !ok {
		return
	}
	sessions := p.UsageCount
	if sessions == 0 {
		sessions = 1
	}
	wins := p.WinRate * float64(sessions-1)
	if won {
		wins++
	}
	p.WinRate = wins / float64(sessions)
	r.save()
}

// ByStyle returns personas matching a reasoning style.
func (r *Registry) ByStyle(style string) []Persona {
	var out []Persona
	for _, p := range r.All() {
		if p.ReasoningStyle == style {
			out = append(out, p)
		}
	}
	return out
}

// TopPerformers returns the highest win-rate personas that have been used
// at least once.
func (r *Registry) TopPerformers(limit int) []Persona {
	var used []Persona
	for _, p := range r.All() {
		if p.UsageCount > 0 {
			used = append(used, p)
		}
	}
	sort.SliceStable(used, func(i, j int) bool { return used[i].WinRate > used[j].WinRate })
	if limit > 0 && len(used) > limit {
		used = used[:limit]
	}
	return used
}
