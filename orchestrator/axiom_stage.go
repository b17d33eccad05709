package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"council/axiom"
	"council/core"
	"council/ledger"
	"council/structured"
)

// runAxiomAnalysis runs deliberately last: assumptions are only fully
// visible once positions have stabilized. It collects axioms from the
// accumulated human feedback and each worker's final position, then hands
// the full catalog to the curator for the cross-source pass that yields
// meta-axioms, shared clusters, conflicts and theories, and writes the
// finished graph once.
func (p *Pipeline) runAxiomAnalysis(ctx context.Context, ch chan<- core.Event) error {
	var personas []axiom.Persona
	for _, w := range p.session.Workers() {
		if pers := w.Persona(); pers != nil {
			personas = append(personas, axiom.Persona{ID: pers.ID, Name: pers.Name})
		}
	}
	builder := axiom.NewBuilder(
		axiom.NewSessionInfo(p.sessionID, p.prompt, len(p.session.WorkerIDs()), personas),
		func(o *axiom.BuilderOptions) { o.Logger = p.logger },
	)

	builder.AddUserFindings(p.userFindings())

	var meta structured.AxiomAnalysis
	workerAnalyses := make(map[string]structured.AxiomAnalysis)
	if p.rounds.Axiom > 0 {
		for _, w := range p.session.Workers() {
			out, err := p.invoke(ctx, ch, w.ID(), p.prompts.AxiomReflect(), true)
			if err != nil {
				if ferr := p.agentFailed(ch, w.ID(), err); ferr != nil {
					return ferr
				}
				continue
			}
			analysis, status := structured.ParseAxioms(out)
			if status == structured.StatusFailed {
				p.logger.Warn("Axiom reflection unusable", "session_id", p.sessionID, "agent_id", w.ID())
				continue
			}
			personaID, personaName := "", ""
			if pers := w.Persona(); pers != nil {
				personaID, personaName = pers.ID, pers.Name
			}
			builder.AddWorkerFindings(w.ID(), personaID, personaName, analysis)
			workerAnalyses[w.ID()] = analysis
		}

		out, err := p.invoke(ctx, ch, CuratorID, p.prompts.AxiomMeta(axiomCatalog(builder)), true)
		if err != nil {
			if ferr := p.agentFailed(ch, CuratorID, err); ferr != nil {
				return ferr
			}
		} else if analysis, status := structured.ParseAxioms(out); status != structured.StatusFailed {
			meta = analysis
			builder.AddCuratorFindings(meta.Axioms)
			applyNetworkFindings(builder, meta)
		} else {
			p.logger.Warn("Axiom meta pass unusable", "session_id", p.sessionID)
		}
	}

	p.addTheories(builder, meta, workerAnalyses)
	graph := builder.Build()

	p.mu.Lock()
	p.graph = graph
	p.mu.Unlock()
	if err := p.axioms.Save(ctx, graph); err != nil {
		return fmt.Errorf("save axiom graph: %w", err)
	}

	p.applyCurator(ctx, ch, core.StageAxiomAnalysis, CuratorID, core.RoleCurator, map[string]map[string]any{
		string(ledger.SectionAxioms): {
			"node_count":     len(graph.Nodes),
			"edge_count":     len(graph.Edges),
			"shared_count":   len(graph.Shared),
			"conflict_count": len(graph.Conflicts),
		},
	}, nil)

	ev := core.NewEvent(p.sessionID, core.EventAxiomExtracted).WithStage(core.StageAxiomAnalysis)
	ev.Payload = map[string]any{
		"nodes":     len(graph.Nodes),
		"edges":     len(graph.Edges),
		"shared":    len(graph.Shared),
		"conflicts": len(graph.Conflicts),
	}
	p.emit(ch, ev)

	p.setStage(core.StageFinalOutput)
	return nil
}

// userFindings distills the remembered human feedback into axiom
// findings. Human feedback states constraints, so each note becomes one
// assumption-typed axiom attributed to the user.
func (p *Pipeline) userFindings() []structured.AxiomFinding {
	var out []structured.AxiomFinding
	seen := make(map[string]bool)
	for _, note := range p.feedback {
		text := strings.TrimSpace(note.Feedback)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, structured.AxiomFinding{Statement: text})
	}
	return out
}

// axiomCatalog renders the accumulated user and worker axioms as one
// "[id] (source) statement" line each, for the curator's cross-source
// pass to cite ids from.
func axiomCatalog(builder *axiom.Builder) string {
	var b strings.Builder
	for _, n := range builder.Nodes() {
		fmt.Fprintf(&b, "[%s] (%s) %s\n", n.ID, n.Source.ID, n.Statement)
	}
	return strings.TrimRight(b.String(), "\n")
}

// applyNetworkFindings wires the curator's shared and conflict clusters
// into the graph. Cited ids that do not name recorded axioms are kept in
// the clusters: the curator may describe axioms in prose.
func applyNetworkFindings(builder *axiom.Builder, meta structured.AxiomAnalysis) {
	for _, s := range meta.SharedAxioms {
		builder.AddSharedAxiom(axiom.SharedAxiom{
			AxiomIDs:        s.AxiomIDs,
			MergedStatement: s.MergedStatement,
			Sources:         s.Sources,
		})
	}
	for _, c := range meta.Conflicts {
		builder.AddConflictCluster(axiom.ConflictCluster{
			AxiomIDs: c.AxiomIDs,
			Nature:   c.Nature,
			Sources:  c.Sources,
		})
	}
}

// addTheories records theory clusters: the curator's cross-source
// judgments when its meta pass produced any, otherwise one cluster per
// worker from that worker's stated theory contribution. Zero theories is
// a valid outcome.
func (p *Pipeline) addTheories(builder *axiom.Builder, meta structured.AxiomAnalysis, analyses map[string]structured.AxiomAnalysis) {
	if len(meta.Theories) > 0 {
		for i, t := range meta.Theories {
			builder.AddTheory(axiom.Theory{
				ID:         fmt.Sprintf("theory_%d", i+1),
				Name:       t.Name,
				Summary:    t.Summary,
				CoreAxioms: t.CoreAxioms,
			})
		}
		return
	}

	bySource := make(map[string][]string)
	sourceOf := make(map[string]axiom.Source)
	for _, n := range builder.Nodes() {
		bySource[n.Source.ID] = append(bySource[n.Source.ID], n.ID)
		sourceOf[n.Source.ID] = n.Source
	}
	for _, id := range p.session.WorkerIDs() {
		analysis, ok := analyses[id]
		if !ok || strings.TrimSpace(analysis.TheoryContribution) == "" {
			continue
		}
		name := id
		if w := p.session.Agent(id); w != nil && w.Persona() != nil {
			name = w.Persona().Name
		}
		var proponents []axiom.Source
		if src, ok := sourceOf[id]; ok {
			proponents = append(proponents, src)
		}
		builder.AddTheory(axiom.Theory{
			ID:         fmt.Sprintf("theory_%s", id),
			Name:       fmt.Sprintf("%s position", name),
			Summary:    analysis.TheoryContribution,
			CoreAxioms: bySource[id],
			Proponents: proponents,
		})
	}
}
