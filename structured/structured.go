package structured

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"council/core"
)

// Status reports how a model reply was decoded.
type Status string

const (
	// StatusSuccess means the reply was well formed JSON.
	StatusSuccess Status = "success"
	// StatusDegraded means fields were recovered from malformed output and
	// defaults fill the gaps.
	StatusDegraded Status = "degraded"
	// StatusFailed means nothing usable was found in the reply.
	StatusFailed Status = "failed"
)

// FallbackSummaryLimit bounds how much raw text is promoted into a summary
// when a draft reply is not parseable.
const FallbackSummaryLimit = 1500

// DegradedConfidence is assigned when a confidence field cannot be read.
const DegradedConfidence = 0.5

// Extract returns the first JSON object embedded in raw, stripping markdown
// code fences. Returns the empty string when no object is present.
func Extract(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func stringSlice(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func stringMap(r gjson.Result) map[string]string {
	if !r.Exists() || !r.IsObject() {
		return map[string]string{}
	}
	out := map[string]string{}
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

func confidence(r gjson.Result) float64 {
	if !r.Exists() {
		return DegradedConfidence
	}
	return clamp01(r.Float())
}

// ParseDraft decodes a proposal reply. An unparseable reply degrades to a
// summary-only draft built from the raw text.
func ParseDraft(raw string) (core.Draft, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Draft{RawText: raw, Confidence: DegradedConfidence}, StatusFailed
		}
		return core.Draft{
			Summary:    truncate(raw, FallbackSummaryLimit),
			Confidence: DegradedConfidence,
			RawText:    raw,
		}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	return core.Draft{
		Summary:     root.Get("summary").String(),
		Assumptions: stringSlice(root.Get("key_assumptions")),
		Strengths:   stringSlice(root.Get("strengths")),
		Risks:       stringSlice(root.Get("risks")),
		Confidence:  confidence(root.Get("confidence")),
		RawText:     raw,
	}, status
}

// ParseRefinement decodes a delta-only refinement reply.
func ParseRefinement(raw string) (core.Refinement, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Refinement{Answers: map[string]string{}, RawText: raw}, StatusFailed
		}
		return core.Refinement{Answers: map[string]string{}, RawText: raw}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	return core.Refinement{
		Answers:        stringMap(root.Get("answers_to_questions")),
		PatchNotes:     stringSlice(root.Get("patch_notes")),
		NewRisks:       stringSlice(root.Get("new_risks")),
		NewTradeoffs:   stringSlice(root.Get("new_tradeoffs")),
		UpdatedSummary: root.Get("updated_summary").String(),
		RawText:        raw,
	}, status
}

// ParseArgument decodes an argumentation reply. Unparseable output becomes
// the main argument verbatim.
func ParseArgument(raw string) (core.Argument, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Argument{RawText: raw}, StatusFailed
		}
		return core.Argument{MainArgument: raw, RawText: raw}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	return core.Argument{
		MainArgument:    root.Get("main_argument").String(),
		KeyStrengths:    stringSlice(root.Get("key_strengths")),
		CritiqueOfOther: root.Get("critique_of_alternatives").String(),
		RubricAlignment: root.Get("rubric_alignment").String(),
		RawText:         raw,
	}, status
}

// ParseCollaboration decodes a collaboration reply. Unparseable output
// becomes the collaborative summary verbatim.
func ParseCollaboration(raw string) (core.Collaboration, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Collaboration{Integrated: map[string]string{}, Confidence: DegradedConfidence, RawText: raw}, StatusFailed
		}
		return core.Collaboration{
			Summary:    raw,
			Integrated: map[string]string{},
			Confidence: DegradedConfidence,
			RawText:    raw,
		}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	return core.Collaboration{
		Summary:          root.Get("collaborative_summary").String(),
		Improvements:     stringSlice(root.Get("specific_improvements")),
		Integrated:       stringMap(root.Get("integrated_mechanisms")),
		ResolvedTensions: stringSlice(root.Get("resolved_tensions")),
		NewInsights:      stringSlice(root.Get("new_insights")),
		Confidence:       confidence(root.Get("confidence")),
		RawText:          raw,
	}, status
}

// ParseCompatibility decodes a compatibility assessment. Unparseable output
// degrades to incompatible, which routes the pipeline to argumentation.
func ParseCompatibility(raw string) (core.Compatibility, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Compatibility{RawText: raw}, StatusFailed
		}
		return core.Compatibility{RawText: raw}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	var pairs [][2]string
	for _, p := range root.Get("compatible_pairs").Array() {
		arr := p.Array()
		if len(arr) >= 2 {
			pairs = append(pairs, [2]string{arr[0].String(), arr[1].String()})
		}
	}
	return core.Compatibility{
		Compatible:      root.Get("compatible").Bool(),
		OverlapAreas:    stringSlice(root.Get("overlap_areas")),
		MergeStrategy:   root.Get("merge_strategy").String(),
		CompatiblePairs: pairs,
		RawText:         raw,
	}, status
}

// ParseQuestions decodes the moderator's follow-up questions keyed by agent id.
func ParseQuestions(raw string) (core.Questions, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		if strings.TrimSpace(raw) == "" {
			return core.Questions{ByWorker: map[string][]string{}, RawText: raw}, StatusFailed
		}
		return core.Questions{ByWorker: map[string][]string{}, RawText: raw}, StatusDegraded
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	byWorker := map[string][]string{}
	root.Get("questions").ForEach(func(k, v gjson.Result) bool {
		byWorker[k.String()] = stringSlice(v)
		return true
	})
	return core.Questions{
		ByWorker:     byWorker,
		Observations: root.Get("overall_observations").String(),
		RawText:      raw,
	}, status
}

// ParseCandidates decodes the moderator's candidate list.
func ParseCandidates(raw string) ([]core.Candidate, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		return nil, StatusFailed
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	var out []core.Candidate
	for _, c := range root.Get("candidates").Array() {
		out = append(out, core.Candidate{
			ID:               c.Get("id").String(),
			SourceAgents:     stringSlice(c.Get("source_agents")),
			Summary:          c.Get("summary").String(),
			BestUseCase:      c.Get("best_use_case").String(),
			TradeOffs:        stringSlice(c.Get("trade_offs")),
			FailureModes:     stringSlice(c.Get("failure_modes")),
			DecisionCriteria: c.Get("decision_criteria").String(),
		})
	}
	if len(out) == 0 {
		return nil, StatusFailed
	}
	return out, status
}

// ParseScores decodes per-candidate panel scores. Scores outside [0,10] are
// clamped.
func ParseScores(raw string) ([]core.Score, Status) {
	obj := Extract(raw)
	if obj == "" || !gjson.Valid(obj) {
		return nil, StatusFailed
	}
	status := StatusSuccess
	if !json.Valid([]byte(strings.TrimSpace(raw))) {
		status = StatusDegraded
	}
	root := gjson.Parse(obj)
	var out []core.Score
	for _, s := range root.Get("scores").Array() {
		v := s.Get("score").Float()
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		rubric := map[string]float64{}
		s.Get("rubric_scores").ForEach(func(k, rv gjson.Result) bool {
			rubric[k.String()] = rv.Float()
			return true
		})
		out = append(out, core.Score{
			CandidateID:  s.Get("candidate_id").String(),
			Value:        v,
			Reasoning:    s.Get("reasoning").String(),
			RubricScores: rubric,
		})
	}
	if len(out) == 0 {
		return nil, StatusFailed
	}
	return out, status
}
