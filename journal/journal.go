package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"council/core"
)

// ErrNotFound is returned when no entry or snapshot matches.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one recorded model invocation.
type Entry struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Stage     core.Stage        `json:"stage"`
	AgentID   string            `json:"agent_id"`
	Round     int               `json:"round"`
	InputHash string            `json:"input_hash"`
	InputText string            `json:"input_text"`
	Output    string            `json:"output"`
	Usage     core.TokenUsage   `json:"usage"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HashInput produces the content address for an invocation input.
func HashInput(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Journal records invocations and session snapshots.
type Journal interface {
	// Append stores an entry. The entry's ID, InputHash and CreatedAt are
	// filled in when empty.
	Append(ctx context.Context, e *Entry) error

	// Find returns the most recent entry matching the coordinates.
	Find(ctx context.Context, sessionID string, stage core.Stage, agentID, inputHash string) (*Entry, error)

	// Entries returns all entries for a session in append order.
	Entries(ctx context.Context, sessionID string) ([]*Entry, error)

	// SaveSnapshot persists the opaque session state blob, replacing any
	// previous snapshot for the session.
	SaveSnapshot(ctx context.Context, sessionID string, state []byte) error

	// LoadSnapshot returns the last persisted state blob for a session.
	LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error)

	// Close releases underlying resources.
	Close() error
}

func normalize(e *Entry) {
	if e.ID == "" {
		e.ID = core.NewID()
	}
	if e.InputHash == "" {
		e.InputHash = HashInput(e.InputText)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// Memory is an in-memory Journal for tests and ephemeral sessions.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string][]*Entry
	snapshots map[string][]byte
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string][]*Entry),
		snapshots: make(map[string][]byte),
	}
}

// Append implements Journal.
func (m *Memory) Append(_ context.Context, e *Entry) error {
	normalize(e)
	cp := *e
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.SessionID] = append(m.entries[e.SessionID], &cp)
	return nil
}

// Find implements Journal.
func (m *Memory) Find(_ context.Context, sessionID string, stage core.Stage, agentID, inputHash string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[sessionID]
	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if e.Stage == stage && e.AgentID == agentID && e.InputHash == inputHash {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Entries implements Journal.
func (m *Memory) Entries(_ context.Context, sessionID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[sessionID]
	out := make([]*Entry, len(list))
	for i, e := range list {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// SaveSnapshot implements Journal.
func (m *Memory) SaveSnapshot(_ context.Context, sessionID string, state []byte) error {
	cp := make([]byte, len(state))
	copy(cp, state)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[sessionID] = cp
	return nil
}

// LoadSnapshot implements Journal.
func (m *Memory) LoadSnapshot(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.snapshots[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, nil
}

// Close implements Journal.
func (m *Memory) Close() error { return nil }
