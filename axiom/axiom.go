package axiom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SourceType identifies who contributed an axiom.
type SourceType string

const (
	// SourceUser marks axioms distilled from human feedback.
	SourceUser SourceType = "user"
	// SourceWorker marks axioms from a worker's final position.
	SourceWorker SourceType = "worker"
	// SourceCurator marks meta-axioms from the curator's cross-source pass.
	SourceCurator SourceType = "curator"
)

// Conflict natures found during cross-source analysis.
const (
	NatureContradiction = "contradiction"
	NatureScope         = "scope"
	NatureEmphasis      = "emphasis"
)

// Source attributes an axiom to its contributor.
type Source struct {
	Type             SourceType `json:"source_type"`
	ID               string     `json:"source_id"`
	PersonaID        string     `json:"persona_id,omitempty"`
	PersonaName      string     `json:"persona_name,omitempty"`
	IsDefaultPersona bool       `json:"is_default_persona"`
}

// UserSource attributes to the human.
func UserSource() Source {
	return Source{Type: SourceUser, ID: "user", IsDefaultPersona: true}
}

// WorkerSource attributes to a worker, with its persona when one is set.
func WorkerSource(workerID, personaID, personaName string) Source {
	return Source{
		Type:             SourceWorker,
		ID:               workerID,
		PersonaID:        personaID,
		PersonaName:      personaName,
		IsDefaultPersona: personaID == "",
	}
}

// CuratorSource attributes to the curator's meta pass.
func CuratorSource() Source {
	return Source{Type: SourceCurator, ID: "curator", IsDefaultPersona: true}
}

// GenerateID produces the deterministic node id
// "ax_<session8>_<sourceTag>_<seq>". Worker tags compress "worker_N" to
// "wN"; the curator tag is "cur".
func GenerateID(sessionID string, source Source, index int) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "unknown"
	}
	var tag string
	switch source.Type {
	case SourceUser:
		tag = "user"
	case SourceCurator:
		tag = "cur"
	default:
		tag = strings.Replace(source.ID, "worker_", "w", 1)
	}
	return fmt.Sprintf("ax_%s_%s_%03d", short, tag, index)
}

// SessionInfo is the session metadata embedded in a graph.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	Prompt      string    `json:"prompt"`
	PromptHash  string    `json:"prompt_hash"`
	Timestamp   time.Time `json:"timestamp"`
	WorkerCount int       `json:"worker_count"`
	Personas    []Persona `json:"personas_used,omitempty"`
}

// Persona is the id/name pair of a persona active in the session.
type Persona struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewSessionInfo builds the metadata block, hashing the prompt for
// cross-session grouping.
func NewSessionInfo(sessionID, prompt string, workerCount int, personas []Persona) SessionInfo {
	sum := sha256.Sum256([]byte(prompt))
	return SessionInfo{
		SessionID:   sessionID,
		Prompt:      prompt,
		PromptHash:  hex.EncodeToString(sum[:])[:8],
		Timestamp:   time.Now().UTC(),
		WorkerCount: workerCount,
		Personas:    personas,
	}
}

// Node is a single axiom in the graph.
type Node struct {
	ID        string `json:"axiom_id"`
	Statement string `json:"statement"`
	Type      string `json:"axiom_type"`
	Source    Source `json:"source"`
	Round     int    `json:"round_num"`

	Confidence       float64 `json:"confidence"`
	EvidenceStrength float64 `json:"evidence_strength"`

	DependsOn     []string `json:"depends_on,omitempty"`
	Enables       []string `json:"enables,omitempty"`
	ConflictsWith []string `json:"conflicts_with,omitempty"`
	Supports      []string `json:"supports,omitempty"`

	TheoryContribution string `json:"theory_contribution,omitempty"`
	TheoryID           string `json:"theory_id,omitempty"`

	Biases          []string `json:"potential_biases,omitempty"`
	Vulnerability   string   `json:"vulnerability,omitempty"`
	CounterEvidence []string `json:"counter_evidence,omitempty"`

	IsShared bool     `json:"is_shared,omitempty"`
	SharedBy []string `json:"shared_by,omitempty"`
}

// Edge is one relationship in the graph.
type Edge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Theory is a cluster of related axioms forming a coherent position.
type Theory struct {
	ID                string   `json:"theory_id"`
	Name              string   `json:"name"`
	Summary           string   `json:"summary"`
	CoreAxioms        []string `json:"core_axioms"`
	SupportingAxioms  []string `json:"supporting_axioms,omitempty"`
	Proponents        []Source `json:"proponents,omitempty"`
	CompetingTheories []string `json:"competing_theories,omitempty"`
}

// SharedAxiom groups axioms multiple sources agree on.
type SharedAxiom struct {
	AxiomIDs        []string `json:"axiom_ids"`
	MergedStatement string   `json:"merged_statement"`
	Sources         []string `json:"sources"`
}

// ConflictCluster groups axioms in tension, classified by nature.
type ConflictCluster struct {
	AxiomIDs []string `json:"axiom_ids"`
	Nature   string   `json:"nature"`
	Sources  []string `json:"sources"`
}

// Graph is the one-per-session axiom document.
type Graph struct {
	Session   SessionInfo       `json:"session"`
	Nodes     map[string]*Node  `json:"nodes"`
	Edges     []Edge            `json:"edges"`
	Theories  []Theory          `json:"theories,omitempty"`
	Shared    []SharedAxiom     `json:"shared_axioms,omitempty"`
	Conflicts []ConflictCluster `json:"conflict_clusters,omitempty"`

	// Indexes for visualization grouping.
	BySource  map[string][]string `json:"axioms_by_source"`
	ByPersona map[string][]string `json:"axioms_by_persona"`

	order []string
}

// NewGraph creates an empty graph for a session.
func NewGraph(session SessionInfo) *Graph {
	return &Graph{
		Session:   session,
		Nodes:     make(map[string]*Node),
		BySource:  make(map[string][]string),
		ByPersona: make(map[string][]string),
	}
}

// AddNode inserts an axiom and updates the grouping indexes.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	g.BySource[n.Source.ID] = append(g.BySource[n.Source.ID], n.ID)
	persona := n.Source.PersonaName
	if persona == "" {
		persona = "default"
	}
	g.ByPersona[persona] = append(g.ByPersona[persona], n.ID)
}

// NodeOrder returns node ids in insertion order.
func (g *Graph) NodeOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge appends one relationship.
func (g *Graph) AddEdge(from, to, edgeType string, strength float64) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Type: edgeType, Strength: strength})
}

// BuildEdges derives edges from every node's relationship lists. Referenced
// ids that are not nodes are kept: the lists may describe axioms in prose.
func (g *Graph) BuildEdges() {
	for _, id := range g.order {
		n := g.Nodes[id]
		for _, dep := range n.DependsOn {
			g.AddEdge(n.ID, dep, "depends_on", 1.0)
		}
		for _, en := range n.Enables {
			g.AddEdge(n.ID, en, "enables", 1.0)
		}
		for _, c := range n.ConflictsWith {
			g.AddEdge(n.ID, c, "conflicts", 1.0)
		}
		for _, s := range n.Supports {
			g.AddEdge(n.ID, s, "supports", 1.0)
		}
	}
}
