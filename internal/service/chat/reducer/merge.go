package reducer

import (
	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
	"chatflow/internal/service/chat/plan"
)

// mergeContent overwrites the turn content with a freshly classified
// snapshot while honoring step monotonicity: a step that already reached
// completed keeps its frozen payload even if a stale snapshot restates it
// as processing. Everything else is taken from the fresh document, since
// snapshots are full restatements.
func mergeContent(old, fresh *chat.TurnContent) *chat.TurnContent {
	if old == nil {
		return fresh
	}
	for i := range fresh.Steps {
		if i >= len(old.Steps) {
			break
		}
		if old.Steps[i].Completed() && old.Steps[i].ID == fresh.Steps[i].ID {
			fresh.Steps[i] = old.Steps[i]
		}
	}
	return fresh
}

// advancePlan merges executing-phase state into the plan steps. Finished
// is monotonic: a step that finished never regresses, and stale snapshots
// for earlier steps only ever merge process/result growth prior to
// completion. At most one step carries Loading. Returns hook closures.
// Callers hold r.mu.
func (r *Reducer) advancePlan(turn *chat.Turn, vars gjson.Result) []func() {
	var fired []func()
	current := plan.CurrentStep(vars)
	turnID := turn.ID

	for i := range turn.Plan {
		step := &turn.Plan[i]

		if !step.Finished {
			if kind := plan.StepSearchKind(vars, i); kind != chat.SearchKindUnset {
				step.SearchKind = kind
			}
			if entries := plan.StepProcessEntries(vars, i, step.SearchKind); entries != nil {
				step.ProcessEntries = entries
			}
			if result := plan.StepResult(vars, i); result != "" {
				step.Result = result
			}
			if plan.StepFinished(vars, i) {
				step.Finished = true
				if r.hooks.PlanStepFinished != nil {
					done := turn.Plan[i]
					fired = append(fired, func() { r.hooks.PlanStepFinished(turnID, done) })
				}
			}
		}

		step.Loading = i == current && !step.Finished
	}

	if len(turn.Plan) > 0 && allFinished(turn.Plan) && !r.planDone[turnID] {
		r.planDone[turnID] = true
		if r.hooks.PlanCompleted != nil {
			steps := chat.ClonePlan(turn.Plan)
			fired = append(fired, func() { r.hooks.PlanCompleted(turnID, steps) })
		}
	}
	return fired
}

func allFinished(steps []chat.PlanStep) bool {
	for i := range steps {
		if !steps[i].Finished {
			return false
		}
	}
	return true
}

// reportFromContent projects a plan-report turn's payload out of its
// classified content: the first answer step's text plus the stream stats.
func reportFromContent(content *chat.TurnContent) *chat.PlanReport {
	if content == nil {
		return nil
	}
	report := &chat.PlanReport{
		ElapsedSeconds: content.TotalElapsedSeconds,
		TotalTokens:    content.TotalTokens,
	}
	for i := range content.Steps {
		if content.Steps[i].Kind == chat.StepKindLLMAnswer && content.Steps[i].LLMAnswer != nil {
			report.Text = content.Steps[i].LLMAnswer.Text
			break
		}
	}
	return report
}
