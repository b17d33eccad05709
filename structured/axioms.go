package structured

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// AxiomFinding is one fundamental assumption surfaced during reflection.
type AxiomFinding struct {
	Statement     string   `json:"statement"`
	Type          string   `json:"axiom_type"`
	Confidence    float64  `json:"confidence"`
	DependsOn     []string `json:"depends_on"`
	Enables       []string `json:"enables"`
	Vulnerability string   `json:"vulnerability"`
	Evidence      string   `json:"evidence"`
	Biases        []string `json:"potential_biases"`
}

// SharedAxiomFinding groups axioms restated across sources, cited by id.
type SharedAxiomFinding struct {
	AxiomIDs        []string `json:"axiom_ids"`
	MergedStatement string   `json:"merged_statement"`
	Sources         []string `json:"sources"`
}

// ConflictFinding groups axioms in tension, classified by nature.
type ConflictFinding struct {
	AxiomIDs []string `json:"axiom_ids"`
	Nature   string   `json:"nature"`
	Sources  []string `json:"sources"`
}

// TheoryFinding names a coherent position over a set of axioms.
type TheoryFinding struct {
	Name       string   `json:"name"`
	Summary    string   `json:"summary"`
	CoreAxioms []string `json:"core_axioms"`
}

// AxiomAnalysis is the full reflection reply from one agent. The network
// fields are only populated by the curator's cross-source pass; worker
// reflections carry axioms and a theory contribution alone.
type AxiomAnalysis struct {
	Axioms             []AxiomFinding       `json:"axioms"`
	SharedAxioms       []SharedAxiomFinding `json:"shared_axioms"`
	Conflicts          []ConflictFinding    `json:"conflicts"`
	Theories           []TheoryFinding      `json:"theories"`
	TheoryContribution string               `json:"theory_contribution"`
	RawText            string               `json:"raw_text"`
}

// ParseAxioms decodes an axiom reflection reply. Models sometimes nest the
// whole payload as an escaped JSON string inside theory_contribution, so an
// empty axiom list triggers a second extraction pass over that field and
// then over the raw text.
func ParseAxioms(raw string) (AxiomAnalysis, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return AxiomAnalysis{RawText: raw}, StatusFailed
		}
		return AxiomAnalysis{TheoryContribution: raw, RawText: raw}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}

	root := gjson.Parse(obj)
	analysis := AxiomAnalysis{
		Axioms:             decodeFindings(root.Get("axioms")),
		SharedAxioms:       decodeShared(root.Get("shared_axioms")),
		Conflicts:          decodeConflicts(root.Get("conflicts")),
		Theories:           decodeTheories(root.Get("theories")),
		TheoryContribution: root.Get("theory_contribution").String(),
		RawText:            raw,
	}

	if len(analysis.Axioms) == 0 {
		if nested := recoverNested(analysis.TheoryContribution); len(nested.Axioms) > 0 {
			analysis.Axioms = nested.Axioms
			if nested.TheoryContribution != "" {
				analysis.TheoryContribution = nested.TheoryContribution
			}
			status = StatusDegraded
		}
	}
	if len(analysis.Axioms) == 0 {
		if nested := recoverNested(raw); len(nested.Axioms) > 0 {
			analysis.Axioms = nested.Axioms
			status = StatusDegraded
		}
	}
	return analysis, status
}

func decodeFindings(r gjson.Result) []AxiomFinding {
	var out []AxiomFinding
	for _, a := range r.Array() {
		out = append(out, AxiomFinding{
			Statement: a.Get("statement").String(),
			Type:      normalizeAxiomType(a.Get("axiom_type").String()),
			// Zero when absent; the graph builder fills per-source defaults.
			Confidence:    clamp01(a.Get("confidence").Float()),
			DependsOn:     stringSlice(a.Get("depends_on")),
			Enables:       stringSlice(a.Get("enables")),
			Vulnerability: a.Get("vulnerability").String(),
			Evidence:      a.Get("evidence").String(),
			Biases:        stringSlice(a.Get("potential_biases")),
		})
	}
	return out
}

func decodeShared(r gjson.Result) []SharedAxiomFinding {
	var out []SharedAxiomFinding
	for _, s := range r.Array() {
		f := SharedAxiomFinding{
			AxiomIDs:        stringSlice(s.Get("axiom_ids")),
			MergedStatement: s.Get("merged_statement").String(),
			Sources:         stringSlice(s.Get("sources")),
		}
		if len(f.AxiomIDs) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func decodeConflicts(r gjson.Result) []ConflictFinding {
	var out []ConflictFinding
	for _, c := range r.Array() {
		f := ConflictFinding{
			AxiomIDs: stringSlice(c.Get("axiom_ids")),
			Nature:   normalizeNature(c.Get("nature").String()),
			Sources:  stringSlice(c.Get("sources")),
		}
		if len(f.AxiomIDs) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func decodeTheories(r gjson.Result) []TheoryFinding {
	var out []TheoryFinding
	for _, t := range r.Array() {
		f := TheoryFinding{
			Name:       t.Get("name").String(),
			Summary:    t.Get("summary").String(),
			CoreAxioms: stringSlice(t.Get("core_axioms")),
		}
		if f.Name == "" && f.Summary == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func recoverNested(s string) AxiomAnalysis {
	inner := Extract(s)
	if inner == "" || !gjson.Valid(inner) {
		return AxiomAnalysis{}
	}
	root := gjson.Parse(inner)
	if !root.Get("axioms").Exists() {
		return AxiomAnalysis{}
	}
	return AxiomAnalysis{
		Axioms:             decodeFindings(root.Get("axioms")),
		TheoryContribution: root.Get("theory_contribution").String(),
	}
}

func normalizeNature(n string) string {
	switch strings.ToLower(strings.TrimSpace(n)) {
	case "contradiction", "scope", "emphasis":
		return strings.ToLower(strings.TrimSpace(n))
	default:
		return "emphasis"
	}
}

func normalizeAxiomType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "core", "derived", "assumption", "parameter":
		return strings.ToLower(strings.TrimSpace(t))
	default:
		return "assumption"
	}
}
