package axiom

import (
	"council/logging"
	"council/structured"
)

// Per-source confidence defaults, applied when a finding carries none.
const (
	userConfidence    = 0.8
	workerConfidence  = 0.7
	curatorConfidence = 0.6
)

// Builder assembles a session's axiom graph from the three contribution
// streams. Node ids are deterministic per source, so rebuilding from the
// same inputs yields the same graph.
type Builder struct {
	graph   *Graph
	counter map[string]int
	logger  logging.Logger
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Logger logging.Logger
}

// NewBuilder creates a builder for one session.
func NewBuilder(session SessionInfo, optFns ...func(o *BuilderOptions)) *Builder {
	opts := BuilderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Builder{
		graph:   NewGraph(session),
		counter: make(map[string]int),
		logger:  opts.Logger,
	}
}

func (b *Builder) nextID(source Source) string {
	key := string(source.Type) + ":" + source.ID
	b.counter[key]++
	return GenerateID(b.graph.Session.SessionID, source, b.counter[key])
}

// AddUserFindings ingests axioms distilled from human feedback. User
// axioms default to assumptions at high confidence: they constrain the
// solution rather than derive from it.
func (b *Builder) AddUserFindings(findings []structured.AxiomFinding) {
	source := UserSource()
	for _, f := range findings {
		n := b.nodeFrom(f, source, userConfidence)
		if n.Type == "" || f.Type == "" {
			n.Type = "assumption"
		}
		b.graph.AddNode(n)
	}
	b.logger.Debug("User axioms added", "count", len(findings))
}

// AddWorkerFindings ingests a worker's final-position axioms.
func (b *Builder) AddWorkerFindings(workerID, personaID, personaName string, analysis structured.AxiomAnalysis) {
	source := WorkerSource(workerID, personaID, personaName)
	for _, f := range analysis.Axioms {
		n := b.nodeFrom(f, source, workerConfidence)
		if n.Type == "" || f.Type == "" {
			n.Type = "derived"
		}
		if analysis.TheoryContribution != "" && n.TheoryContribution == "" {
			n.TheoryContribution = analysis.TheoryContribution
		}
		b.graph.AddNode(n)
	}
	b.logger.Debug("Worker axioms added", "worker", workerID, "count", len(analysis.Axioms))
}

// AddCuratorFindings ingests meta-axioms from the curator's cross-source
// pass. These are always typed "meta" regardless of the finding.
func (b *Builder) AddCuratorFindings(findings []structured.AxiomFinding) {
	source := CuratorSource()
	for _, f := range findings {
		n := b.nodeFrom(f, source, curatorConfidence)
		n.Type = "meta"
		b.graph.AddNode(n)
	}
	b.logger.Debug("Curator axioms added", "count", len(findings))
}

func (b *Builder) nodeFrom(f structured.AxiomFinding, source Source, defaultConfidence float64) *Node {
	conf := f.Confidence
	if conf <= 0 {
		conf = defaultConfidence
	}
	return &Node{
		ID:            b.nextID(source),
		Statement:     f.Statement,
		Type:          f.Type,
		Source:        source,
		Confidence:    conf,
		DependsOn:     f.DependsOn,
		Enables:       f.Enables,
		Vulnerability: f.Vulnerability,
		Biases:        f.Biases,
	}
}

// Nodes returns the accumulated nodes in insertion order, for rendering
// the catalog the curator's cross-source pass cites ids from.
func (b *Builder) Nodes() []*Node {
	out := make([]*Node, 0, len(b.graph.Nodes))
	for _, id := range b.graph.NodeOrder() {
		out = append(out, b.graph.Nodes[id])
	}
	return out
}

// AddSharedAxiom records cross-source agreement.
func (b *Builder) AddSharedAxiom(shared SharedAxiom) {
	b.graph.Shared = append(b.graph.Shared, shared)
	for _, id := range shared.AxiomIDs {
		if n, ok := b.graph.Nodes[id]; ok {
			n.IsShared = true
			n.SharedBy = shared.Sources
		}
	}
}

// AddConflictCluster records axioms in tension.
func (b *Builder) AddConflictCluster(cluster ConflictCluster) {
	if cluster.Nature == "" {
		cluster.Nature = NatureEmphasis
	}
	b.graph.Conflicts = append(b.graph.Conflicts, cluster)
	for _, id := range cluster.AxiomIDs {
		if n, ok := b.graph.Nodes[id]; ok {
			n.ConflictsWith = appendMissing(n.ConflictsWith, cluster.AxiomIDs, id)
		}
	}
}

// AddTheory records a theory cluster.
func (b *Builder) AddTheory(t Theory) {
	b.graph.Theories = append(b.graph.Theories, t)
	for _, id := range t.CoreAxioms {
		if n, ok := b.graph.Nodes[id]; ok && n.TheoryID == "" {
			n.TheoryID = t.ID
		}
	}
}

// Build derives edges from node relationships and returns the graph.
func (b *Builder) Build() *Graph {
	b.graph.BuildEdges()
	return b.graph
}

func appendMissing(dst []string, src []string, skip string) []string {
	for _, s := range src {
		if s == skip {
			continue
		}
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
