package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"council/core"
	"council/ledger"
)

// PromptSet holds the generation prompt templates. Templates are
// swappable inputs: replace any field to change wording without touching
// the pipeline. Every template asks for the JSON shape the structured
// package decodes.
type PromptSet struct {
	Draft         func(prompt string, constraints []string, rubric string) string
	Questions     func(drafts map[string]core.Draft) string
	Refinement    func(questions []string, guidance string, round int) string
	FollowUp      func(round int) string
	Diversify     func(others map[string]core.Draft) string
	Compatibility func(positions map[string]string) string
	Collaboration func(compat core.Compatibility, round int) string
	Candidates    func(positions map[string]string) string
	Argument      func(candidates []core.Candidate, round int) string
	Commentary    func(round int) string
	Scores        func(candidates []core.Candidate, rubric string) string
	AxiomReflect  func() string
	AxiomMeta     func(catalog string) string
	LedgerUpdate  func(stage core.Stage, snapshot, payload string) string
	Final         func(winner core.Candidate, result core.VotingResult, revisions []string) string
}

// DefaultPrompts returns the stock template set.
func DefaultPrompts() *PromptSet {
	return &PromptSet{
		Draft: func(prompt string, constraints []string, rubric string) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Propose a solution to the following problem.\n\nPROBLEM:\n%s\n", prompt)
			if len(constraints) > 0 {
				fmt.Fprintf(&b, "\nCONSTRAINTS:\n- %s\n", strings.Join(constraints, "\n- "))
			}
			if rubric != "" {
				fmt.Fprintf(&b, "\nEVALUATION RUBRIC:\n%s\n", rubric)
			}
			b.WriteString("\nRespond with JSON: {\"summary\": str, \"key_assumptions\": [str], \"strengths\": [str], \"risks\": [str], \"confidence\": 0.0-1.0}")
			return b.String()
		},
		Questions: func(drafts map[string]core.Draft) string {
			var b strings.Builder
			b.WriteString("Review each proposal below and raise the clarifying questions that would most improve it.\n")
			for _, id := range sortedKeys(drafts) {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", id, drafts[id].Summary)
			}
			b.WriteString("\nRespond with JSON: {\"questions\": {worker_id: [str]}, \"overall_observations\": str}")
			return b.String()
		},
		Refinement: func(questions []string, guidance string, round int) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Refinement round %d. Answer the questions and evolve your proposal by delta; do not restate it wholesale.\n", round)
			if len(questions) > 0 {
				fmt.Fprintf(&b, "\nQUESTIONS:\n- %s\n", strings.Join(questions, "\n- "))
			}
			if guidance != "" {
				fmt.Fprintf(&b, "\nHUMAN GUIDANCE:\n%s\n", guidance)
			}
			b.WriteString("\nRespond with JSON: {\"answers_to_questions\": {question: answer}, \"patch_notes\": [str], \"new_risks\": [str], \"new_tradeoffs\": [str], \"updated_summary\": str}")
			return b.String()
		},
		FollowUp: func(round int) string {
			return fmt.Sprintf("Round %d is complete. Based on the refinements so far, raise follow-up questions that replace your earlier set. Respond with JSON: {\"questions\": {worker_id: [str]}, \"overall_observations\": str}", round)
		},
		Diversify: func(others map[string]core.Draft) string {
			var b strings.Builder
			b.WriteString("Other participants proposed the following. Differentiate your proposal: emphasize what only your approach offers and drop overlap.\n")
			for _, id := range sortedKeys(others) {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", id, others[id].Summary)
			}
			b.WriteString("\nRespond with JSON: {\"summary\": str, \"key_assumptions\": [str], \"strengths\": [str], \"risks\": [str], \"confidence\": 0.0-1.0}")
			return b.String()
		},
		Compatibility: func(positions map[string]string) string {
			var b strings.Builder
			b.WriteString("Judge whether the following positions can be merged into one stronger proposal.\n")
			for _, id := range sortedStringKeys(positions) {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", id, positions[id])
			}
			b.WriteString("\nRespond with JSON: {\"compatible\": bool, \"overlap_areas\": [str], \"merge_strategy\": str, \"compatible_pairs\": [[worker_id, worker_id]]}")
			return b.String()
		},
		Collaboration: func(compat core.Compatibility, round int) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Collaboration round %d. Merge the compatible positions into an improved joint proposal.\n", round)
			if compat.MergeStrategy != "" {
				fmt.Fprintf(&b, "\nMERGE STRATEGY:\n%s\n", compat.MergeStrategy)
			}
			if len(compat.OverlapAreas) > 0 {
				fmt.Fprintf(&b, "\nOVERLAP AREAS:\n- %s\n", strings.Join(compat.OverlapAreas, "\n- "))
			}
			b.WriteString("\nRespond with JSON: {\"collaborative_summary\": str, \"specific_improvements\": [str], \"integrated_mechanisms\": {name: str}, \"resolved_tensions\": [str], \"new_insights\": [str], \"confidence\": 0.0-1.0}")
			return b.String()
		},
		Candidates: func(positions map[string]string) string {
			var b strings.Builder
			b.WriteString("Synthesize the distinct candidate solutions present in the positions below. Merge near-duplicates; keep genuinely different options separate.\n")
			for _, id := range sortedStringKeys(positions) {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", id, positions[id])
			}
			b.WriteString("\nRespond with JSON: {\"candidates\": [{\"id\": str, \"source_agents\": [str], \"summary\": str, \"best_use_case\": str, \"trade_offs\": [str], \"failure_modes\": [str], \"decision_criteria\": str}]}")
			return b.String()
		},
		Argument: func(candidates []core.Candidate, round int) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Argumentation round %d. Make the strongest case for your own position against the candidates below.\n", round)
			for _, c := range candidates {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", c.ID, c.Summary)
			}
			b.WriteString("\nRespond with JSON: {\"main_argument\": str, \"key_strengths\": [str], \"critique_of_alternatives\": str, \"rubric_alignment\": str}")
			return b.String()
		},
		Commentary: func(round int) string {
			return fmt.Sprintf("Summarize where the debate stands after argumentation round %d: points of agreement, live disputes, and what evidence would settle them. Plain text.", round)
		},
		Scores: func(candidates []core.Candidate, rubric string) string {
			var b strings.Builder
			b.WriteString("Score each candidate from 0 to 10.\n")
			if rubric != "" {
				fmt.Fprintf(&b, "\nRUBRIC:\n%s\n", rubric)
			}
			for _, c := range candidates {
				fmt.Fprintf(&b, "\n[%s]\n%s\n", c.ID, c.Summary)
			}
			b.WriteString("\nRespond with JSON: {\"scores\": [{\"candidate_id\": str, \"score\": 0-10, \"reasoning\": str, \"rubric_scores\": {criterion: 0-10}}]}")
			return b.String()
		},
		AxiomReflect: func() string {
			return "Reflect on your final position. List the fundamental assumptions (axioms) it rests on. Respond with JSON: {\"axioms\": [{\"statement\": str, \"axiom_type\": \"core|derived|assumption|parameter\", \"confidence\": 0.0-1.0, \"depends_on\": [str], \"enables\": [str], \"vulnerability\": str, \"potential_biases\": [str]}], \"theory_contribution\": str}"
		},
		AxiomMeta: func(catalog string) string {
			var b strings.Builder
			b.WriteString("Review the whole deliberation. Surface the assumptions every participant took for granted without stating, and assumptions visible only across positions.\n")
			if catalog != "" {
				fmt.Fprintf(&b, "\nAXIOMS ON RECORD:\n%s\n", catalog)
			}
			b.WriteString("\nCite the bracketed ids when grouping recorded axioms: restatements across sources go under shared_axioms, tensions under conflicts, and coherent positions under theories.")
			b.WriteString("\nRespond with JSON: {\"axioms\": [{\"statement\": str, \"confidence\": 0.0-1.0, \"depends_on\": [str], \"enables\": [str], \"vulnerability\": str, \"potential_biases\": [str]}], \"shared_axioms\": [{\"axiom_ids\": [str], \"merged_statement\": str, \"sources\": [str]}], \"conflicts\": [{\"axiom_ids\": [str], \"nature\": \"contradiction|scope|emphasis\", \"sources\": [str]}], \"theories\": [{\"name\": str, \"summary\": str, \"core_axioms\": [str]}], \"theory_contribution\": str}")
			return b.String()
		},
		LedgerUpdate: func(stage core.Stage, snapshot, payload string) string {
			var b strings.Builder
			b.WriteString("Update the shared deliberation ledger with the latest stage outcome. Expand nuance rather than repeating existing entries, and describe the delta in patch notes.\n")
			fmt.Fprintf(&b, "\nVALID SECTIONS: %s\n", sectionNames())
			fmt.Fprintf(&b, "\nCURRENT LEDGER:\n%s\n", snapshot)
			fmt.Fprintf(&b, "\nSTAGE: %s\n\nSTAGE PAYLOAD:\n%s\n", stage, payload)
			b.WriteString("\nRespond with JSON only: {\"entries\": {section: object}, \"patch_notes\": [str]}")
			return b.String()
		},
		Final: func(winner core.Candidate, result core.VotingResult, revisions []string) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Produce the final narrative answer built on the winning candidate.\n\nWINNER [%s] (%s):\n%s\n", winner.ID, result.Reason, winner.Summary)
			if len(winner.TradeOffs) > 0 {
				fmt.Fprintf(&b, "\nTRADE-OFFS TO ADDRESS:\n- %s\n", strings.Join(winner.TradeOffs, "\n- "))
			}
			if len(revisions) > 0 {
				fmt.Fprintf(&b, "\nREVISION REQUESTS:\n- %s\n", strings.Join(revisions, "\n- "))
			}
			b.WriteString("\nWrite the complete answer as prose. Incorporate the trade-offs honestly.")
			return b.String()
		},
	}
}

func sectionNames() string {
	names := make([]string, 0, len(ledger.Sections()))
	for _, s := range ledger.Sections() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func sortedKeys(m map[string]core.Draft) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedStringKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
