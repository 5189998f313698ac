// Package plan projects deep-research plan state out of the flat
// "variables" bag the backend attaches to each snapshot. All extraction
// is pure: re-extracting from the same bag yields identical output, which
// the reducer relies on when stale snapshots for earlier steps arrive.
//
// The stringly-typed backend keys are isolated here; the rest of the
// engine only sees the typed Phase enum and the chat model types.
package plan

import (
	"strings"

	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
	"chatflow/internal/service/chat/classifier"
)

// Phase is the deep-research sub-state a snapshot represents.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseGeneratingPlan
	PhaseExecutingStep
	PhaseConfirmingPlan
)

func (p Phase) String() string {
	switch p {
	case PhaseGeneratingPlan:
		return "generating-plan"
	case PhaseExecutingStep:
		return "executing-step"
	case PhaseConfirmingPlan:
		return "confirming-plan"
	default:
		return "none"
	}
}

// Variables-bag keys. step_refs is the per-step execution ref list;
// its presence or absence relative to plan_list and current_step encodes
// the phase.
const (
	keyPlanList    = "plan_list"
	keyStepRefs    = "step_refs"
	keyCurrentStep = "current_step"
)

// Vars returns the variables bag of a snapshot message.
func Vars(msg *chat.SnapshotMessage) gjson.Result {
	return msg.ContentDoc().Get("variables")
}

// DetectPhase classifies the bag into exactly one phase. The three
// conditions are mutually exclusive by construction of the key set:
// generating is gated on the ref list being absent, and the two ref-list
// phases split on current_step presence.
func DetectPhase(vars gjson.Result) Phase {
	hasPlan := vars.Get(keyPlanList).Exists()
	hasRefs := vars.Get(keyStepRefs).Exists()
	hasCurrent := vars.Get(keyCurrentStep).Exists()

	switch {
	case hasRefs && hasCurrent:
		return PhaseExecutingStep
	case hasRefs:
		return PhaseConfirmingPlan
	case hasPlan:
		return PhaseGeneratingPlan
	default:
		return PhaseNone
	}
}

// PlanList returns the ordered step instructions as initially proposed.
func PlanList(vars gjson.Result) []string {
	var out []string
	for _, item := range vars.Get(keyPlanList).Array() {
		out = append(out, item.String())
	}
	return out
}

// CurrentStep returns the index of the step the backend is executing,
// or -1 when no current step is present.
func CurrentStep(vars gjson.Result) int {
	v := vars.Get(keyCurrentStep)
	if !v.Exists() {
		return -1
	}
	return int(v.Int())
}

// KindRule maps a substring of the backend's selected-agent identifier to
// a search kind.
type KindRule struct {
	Substring string
	Kind      string
}

// DefaultKindTable is the fixed identifier→kind table. Rules are checked
// in order; summary must precede network because summary agents carry a
// web-capable identifier too.
var DefaultKindTable = []KindRule{
	{Substring: "summary", Kind: chat.SearchKindSummary},
	{Substring: "web", Kind: chat.SearchKindNetwork},
	{Substring: "network", Kind: chat.SearchKindNetwork},
	{Substring: "doc", Kind: chat.SearchKindDocument},
	{Substring: "graph", Kind: chat.SearchKindGraph},
	{Substring: "kg", Kind: chat.SearchKindGraph},
}

// StepSearchKind maps the step's selected-agent identifier to a search
// kind using the default table. Unmatched identifiers yield "unset".
func StepSearchKind(vars gjson.Result, stepIndex int) string {
	return StepSearchKindWith(DefaultKindTable, vars, stepIndex)
}

// StepSearchKindWith is StepSearchKind with a caller-supplied table.
func StepSearchKindWith(table []KindRule, vars gjson.Result, stepIndex int) string {
	agent := strings.ToLower(stepRef(vars, stepIndex).Get("selected_agent").String())
	if agent == "" {
		return chat.SearchKindUnset
	}
	for _, rule := range table {
		if strings.Contains(agent, rule.Substring) {
			return rule.Kind
		}
	}
	return chat.SearchKindUnset
}

// StepProcessEntries projects the step's intermediate evidence. Network
// results are grouped under their originating query in first-seen order;
// document fragments form a single entry; graph statements one entry each.
func StepProcessEntries(vars gjson.Result, stepIndex int, kind string) []chat.ProcessEntry {
	ref := stepRef(vars, stepIndex)
	if !ref.Exists() {
		return nil
	}

	switch kind {
	case chat.SearchKindNetwork:
		return groupSearchResults(ref.Get("search_results"))
	case chat.SearchKindDocument:
		fragments := classifier.CitationList(ref.Get("doc_fragments"))
		if len(fragments) == 0 {
			return nil
		}
		return []chat.ProcessEntry{{Kind: chat.SearchKindDocument, Items: fragments}}
	case chat.SearchKindGraph:
		var out []chat.ProcessEntry
		for _, stmt := range ref.Get("graph_statements").Array() {
			out = append(out, chat.ProcessEntry{Kind: chat.SearchKindGraph, Text: stmt.String()})
		}
		return out
	default:
		return nil
	}
}

// StepResult returns the step's markdown result, empty until produced.
func StepResult(vars gjson.Result, stepIndex int) string {
	return stepRef(vars, stepIndex).Get("result").String()
}

// StepFinished reports whether a step is done. The canonical criterion is
// a non-empty result: the backend also sends an explicit finished flag on
// live streams, but history recomputes from the result, so both paths
// gate on the result to stay consistent.
func StepFinished(vars gjson.Result, stepIndex int) bool {
	return StepResult(vars, stepIndex) != ""
}

func stepRef(vars gjson.Result, stepIndex int) gjson.Result {
	if stepIndex < 0 {
		return gjson.Result{}
	}
	refs := vars.Get(keyStepRefs).Array()
	if stepIndex >= len(refs) {
		return gjson.Result{}
	}
	return refs[stepIndex]
}

func groupSearchResults(results gjson.Result) []chat.ProcessEntry {
	if !results.IsArray() {
		return nil
	}
	var order []string
	byQuery := make(map[string]*chat.ProcessEntry)
	for _, item := range results.Array() {
		query := item.Get("query").String()
		entry, ok := byQuery[query]
		if !ok {
			entry = &chat.ProcessEntry{Kind: chat.SearchKindNetwork, Query: query}
			byQuery[query] = entry
			order = append(order, query)
		}
		entry.Items = append(entry.Items, chat.Citation{
			Title:   item.Get("title").String(),
			Snippet: item.Get("snippet").String(),
			URL:     item.Get("url").String(),
		})
	}
	out := make([]chat.ProcessEntry, 0, len(order))
	for _, query := range order {
		out = append(out, *byQuery[query])
	}
	return out
}
