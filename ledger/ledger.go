package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"council/core"
	"council/logging"
)

// Section identifies one slice of the global context.
type Section string

// The fixed section enum. Curator updates aimed anywhere else are dropped.
const (
	SectionProposals          Section = "proposals"
	SectionRefinements        Section = "refinements"
	SectionCritiques          Section = "critiques"
	SectionRebuttals          Section = "rebuttals"
	SectionCollaborationDelta Section = "collaboration_deltas"
	SectionAxioms             Section = "axioms"
	SectionUserFeedback       Section = "user_feedback"
	SectionCandidates         Section = "candidates"
	SectionCandidateVoting    Section = "candidate_voting"
	SectionFinalOutput        Section = "final_output"
	SectionPatchNotes         Section = "patch_notes"
)

// ErrUnknownSection is returned on direct appends to a section outside the enum.
var ErrUnknownSection = errors.New("unknown ledger section")

//nolint:gochecknoglobals // Fixed enum membership set
var sections = map[Section]struct{}{
	SectionProposals: {}, SectionRefinements: {}, SectionCritiques: {},
	SectionRebuttals: {}, SectionCollaborationDelta: {}, SectionAxioms: {},
	SectionUserFeedback: {}, SectionCandidates: {}, SectionCandidateVoting: {},
	SectionFinalOutput: {}, SectionPatchNotes: {},
}

// Valid reports whether s is a member of the section enum.
func Valid(s Section) bool {
	_, ok := sections[s]
	return ok
}

// Sections returns the enum in stable order.
func Sections() []Section {
	out := make([]Section, 0, len(sections))
	for s := range sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Provenance records who wrote an entry and when in the pipeline.
type Provenance struct {
	AgentID string     `json:"agent_id,omitempty"`
	Role    core.Role  `json:"role,omitempty"`
	Stage   core.Stage `json:"stage,omitempty"`
	Round   int        `json:"round,omitempty"`
}

// Entry is one sectioned delta.
type Entry struct {
	ID         string         `json:"id"`
	Section    Section        `json:"section"`
	Provenance Provenance     `json:"provenance"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Ledger is the append-only global context for one session.
type Ledger struct {
	mu        sync.RWMutex
	sessionID string
	prompt    string
	createdAt time.Time
	entries   []Entry
	logger    logging.Logger
}

// Options configures a Ledger.
type Options struct {
	Logger logging.Logger
}

// New creates an empty ledger for a session.
func New(sessionID, prompt string, optFns ...func(o *Options)) *Ledger {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Ledger{
		sessionID: sessionID,
		prompt:    prompt,
		createdAt: time.Now().UTC(),
		logger:    opts.Logger,
	}
}

// SessionID returns the owning session id.
func (l *Ledger) SessionID() string { return l.sessionID }

// Prompt returns the user prompt the session deliberates on.
func (l *Ledger) Prompt() string { return l.prompt }

// Append adds one delta to a section.
func (l *Ledger) Append(section Section, prov Provenance, payload map[string]any) (Entry, error) {
	if !Valid(section) {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	e := Entry{
		ID:         core.NewID(),
		Section:    section,
		Provenance: prov,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e, nil
}

// UpdateResult reports what a curator update actually changed.
type UpdateResult struct {
	Applied []Section `json:"applied"`
	Skipped []string  `json:"skipped"`
}

// ApplyUpdate applies a curator-proposed update keyed by section name.
// Unknown sections are skipped and audit-logged; known sections each gain
// one entry. The update is not transactional across sections: valid parts
// apply even when others are dropped.
func (l *Ledger) ApplyUpdate(prov Provenance, updates map[string]map[string]any) UpdateResult {
	var res UpdateResult
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		section := Section(name)
		if !Valid(section) {
			l.logger.Warn("curator update to unknown section dropped",
				"session_id", l.sessionID, "section", name, "agent_id", prov.AgentID)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if _, err := l.Append(section, prov, updates[name]); err == nil {
			res.Applied = append(res.Applied, section)
		}
	}
	return res
}

// Entries returns all deltas in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Section returns the deltas of one section in append order.
func (l *Ledger) Section(s Section) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Section == s {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot is the reduced view of the ledger.
type Snapshot struct {
	SessionID string              `json:"session_id"`
	Prompt    string              `json:"prompt"`
	CreatedAt time.Time           `json:"created_at"`
	Sections  map[Section][]Entry `json:"sections"`
}

// Reduce folds an entry log into a per-section view. It is a pure function
// of the entries: replaying the same log yields the same snapshot.
func Reduce(entries []Entry) map[Section][]Entry {
	out := make(map[Section][]Entry)
	for _, e := range entries {
		if !Valid(e.Section) {
			continue
		}
		out[e.Section] = append(out[e.Section], e)
	}
	return out
}

// Snapshot reduces the ledger into its current view.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		SessionID: l.sessionID,
		Prompt:    l.prompt,
		CreatedAt: l.createdAt,
		Sections:  Reduce(l.Entries()),
	}
}

// Digest renders the reduced ledger as compact JSON holding only section
// payloads, for embedding in curator prompts. Entry ids and timestamps
// are omitted: two ledgers built from the same deltas render identically.
func (l *Ledger) Digest() string {
	view := make(map[Section][]map[string]any)
	for section, entries := range Reduce(l.Entries()) {
		for _, e := range entries {
			view[section] = append(view[section], e.Payload)
		}
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ledgerState is the serialized form used for session snapshots.
type ledgerState struct {
	SessionID string    `json:"session_id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// MarshalJSON serializes the full entry log for persistence.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(ledgerState{
		SessionID: l.sessionID,
		Prompt:    l.prompt,
		CreatedAt: l.createdAt,
		Entries:   l.entries,
	})
}

// Restore rebuilds a ledger from its serialized entry log.
func Restore(data []byte, optFns ...func(o *Options)) (*Ledger, error) {
	var state ledgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	l := New(state.SessionID, state.Prompt, optFns...)
	l.createdAt = state.CreatedAt
	l.entries = state.Entries
	return l, nil
}
