package chat

import "time"

// Search kind constants for deep-research plan steps
const (
	SearchKindNetwork  = "network"
	SearchKindGraph    = "graph"
	SearchKindDocument = "document"
	SearchKindSummary  = "summary"
	SearchKindUnset    = "unset"
)

// PlanStep is one sub-task of a deep-research plan.
//
// Invariants, enforced by the reducer:
//   - at most one step has Loading=true at any time
//   - Finished is monotonic within a plan turn (never reset to false)
type PlanStep struct {
	ID         string `json:"id"`
	Text       string `json:"text"` // human-editable instruction
	Finished   bool   `json:"finished"`
	Loading    bool   `json:"loading"`
	SearchKind string `json:"search_kind"`

	ProcessEntries []ProcessEntry `json:"process_entries,omitempty"`
	Result         string         `json:"result,omitempty"` // markdown

	// AutoConfirmDeadline, when set, is the instant after which the step
	// auto-advances unless the user acted first.
	AutoConfirmDeadline *time.Time `json:"auto_confirm_deadline,omitempty"`
}

// ProcessEntry is intermediate evidence gathered while a plan step runs.
// For network steps, Items are search results grouped under Query; for
// document steps, fragments; for graph steps, Text carries the statement.
type ProcessEntry struct {
	Kind  string     `json:"kind"`
	Query string     `json:"query,omitempty"`
	Items []Citation `json:"items,omitempty"`
	Text  string     `json:"text,omitempty"`
}

// PlanReport is the final deep-research report turn payload.
type PlanReport struct {
	Text           string  `json:"text"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	TotalTokens    int     `json:"total_tokens,omitempty"`
}

// ClonePlan deep-copies a plan step list.
func ClonePlan(steps []PlanStep) []PlanStep {
	if steps == nil {
		return nil
	}
	out := make([]PlanStep, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.AutoConfirmDeadline != nil {
			d := *s.AutoConfirmDeadline
			out[i].AutoConfirmDeadline = &d
		}
		if s.ProcessEntries != nil {
			out[i].ProcessEntries = make([]ProcessEntry, len(s.ProcessEntries))
			for j, e := range s.ProcessEntries {
				out[i].ProcessEntries[j] = e
				out[i].ProcessEntries[j].Items = append([]Citation(nil), e.Items...)
			}
		}
	}
	return out
}
