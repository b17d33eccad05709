package axiom

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no graph exists for a session.
var ErrNotFound = errors.New("axiom graph not found")

// Store holds one graph per session.
type Store interface {
	// Save stores the graph for its session, replacing any prior graph.
	Save(ctx context.Context, graph *Graph) error

	// Load returns the graph for a session, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Graph, error)

	// Sessions lists session ids that have a graph, in save order.
	Sessions(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	order  []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{graphs: make(map[string]*Graph)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, graph *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := graph.Session.SessionID
	if _, ok := s.graphs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.graphs[id] = graph
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

// Sessions implements Store.
func (s *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}
