// Package loader rebuilds a transcript and plan state from a persisted
// message list. Agent entries are classified exactly like completed live
// snapshots: the classifier and plan extractor are reused verbatim, so
// history and live streams can never diverge.
package loader

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"chatflow/internal/domain/models/chat"
	"chatflow/internal/service/chat/classifier"
	"chatflow/internal/service/chat/plan"
)

// Result is the reconstructed conversation state.
type Result struct {
	Turns []chat.Turn

	// ActivePlanStepIndex is the first unfinished step of the trailing
	// plan turn, or -1 when no plan is outstanding.
	ActivePlanStepIndex int

	// InFlight is true when the last entry is still processing
	// server-side; the orchestrator then issues a recover request
	// instead of treating history as final.
	InFlight bool
}

// Loader walks persisted message lists.
type Loader struct {
	cls    *classifier.Classifier
	modes  map[string]string // agent identity -> speaker
	logger *slog.Logger
}

// New creates a loader sharing the live classifier and mode table.
func New(cls *classifier.Classifier, modes map[string]string, logger *slog.Logger) *Loader {
	return &Loader{cls: cls, modes: modes, logger: logger}
}

// Load rebuilds the transcript in one pass, alternating user and agent
// entries.
func (l *Loader) Load(conversationID string, messages []chat.StoredMessage) Result {
	result := Result{ActivePlanStepIndex: -1}

	for i := range messages {
		msg := &messages[i]
		last := i == len(messages)-1

		if msg.Origin == chat.OriginUser {
			result.Turns = append(result.Turns, chat.Turn{
				ID:      msg.ID,
				Speaker: chat.SpeakerUser,
				State:   chat.TurnStateCompleted,
				Text:    storedText(msg.Content),
			})
			continue
		}

		turn := l.loadAgentTurn(conversationID, msg, result.Turns, last)
		if last && msg.Status == chat.StoredStatusProcessing {
			result.InFlight = true
			turn.State = chat.TurnStateGenerating
		}
		if turn.Speaker == chat.SpeakerAgentPlan {
			result.ActivePlanStepIndex = firstUnfinished(turn.Plan)
		}
		result.Turns = append(result.Turns, *turn)
	}

	return result
}

// loadAgentTurn classifies one stored assistant entry.
func (l *Loader) loadAgentTurn(conversationID string, msg *chat.StoredMessage, prior []chat.Turn, last bool) *chat.Turn {
	snap := msg.AsSnapshot(conversationID)
	turn := &chat.Turn{
		ID:    msg.ID,
		State: storedState(msg.Status),
	}

	vars := plan.Vars(snap.Message)
	phase := plan.DetectPhase(vars)
	ext := snap.Message.ParseExt()

	if phase != plan.PhaseNone {
		turn.Speaker = chat.SpeakerAgentPlan
		turn.Plan = l.loadPlan(vars)
		// A trailing confirm prompt is recomputed from the last entry's
		// interruption payload, not from any stored flag.
		if last && ext.Ask != nil {
			turn.ConfirmationRequested = true
			turn.Interruption = ext.Ask
		}
		return turn
	}

	content, err := l.cls.Classify(snap.Message)
	if err != nil {
		l.logger.Warn("stored message failed classification",
			"message_id", msg.ID,
			"error", err,
		)
		content = &chat.TurnContent{}
	}
	turn.Content = content
	turn.Speaker = l.speakerFor(msg, prior)
	if turn.Speaker == chat.SpeakerAgentPlanReport {
		turn.Report = reportFromContent(content)
	}
	if last && ext.Ask != nil {
		turn.Interruption = ext.Ask
	}
	return turn
}

// loadPlan rebuilds plan steps from history. Finished is recomputed from
// the presence of a non-empty result, the same criterion the live path
// uses; no stored boolean is trusted.
func (l *Loader) loadPlan(vars gjson.Result) []chat.PlanStep {
	texts := plan.PlanList(vars)
	steps := make([]chat.PlanStep, len(texts))
	for i, text := range texts {
		kind := plan.StepSearchKind(vars, i)
		steps[i] = chat.PlanStep{
			ID:             planStepID(vars, i),
			Text:           text,
			SearchKind:     kind,
			Finished:       plan.StepFinished(vars, i),
			ProcessEntries: plan.StepProcessEntries(vars, i, kind),
			Result:         plan.StepResult(vars, i),
		}
	}
	return steps
}

// speakerFor resolves the stored agent identity through the mode table.
// A content entry directly following a completed plan turn is the plan's
// final report.
func (l *Loader) speakerFor(msg *chat.StoredMessage, prior []chat.Turn) string {
	if n := len(prior); n > 0 && prior[n-1].Speaker == chat.SpeakerAgentPlan {
		return chat.SpeakerAgentPlanReport
	}

	identity := gjson.GetBytes(msg.Ext, "agent_id").String()
	if speaker, ok := l.modes[identity]; ok {
		return speaker
	}
	return chat.SpeakerAgentNormal
}

func firstUnfinished(steps []chat.PlanStep) int {
	for i := range steps {
		if !steps[i].Finished {
			return i
		}
	}
	return -1
}

func storedState(status string) string {
	switch status {
	case chat.StoredStatusProcessing:
		return chat.TurnStateGenerating
	case chat.StoredStatusError:
		return chat.TurnStateErrored
	case chat.StoredStatusCancelled:
		return chat.TurnStateCancelled
	default:
		return chat.TurnStateCompleted
	}
}

// storedText unwraps a stored user message body: either a bare string or
// a JSON-encoded one.
func storedText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	if text := parsed.Get("text"); text.Exists() {
		return text.String()
	}
	return string(raw)
}

func planStepID(vars gjson.Result, i int) string {
	if refs := vars.Get("step_refs").Array(); i < len(refs) {
		if v := refs[i].Get("id"); v.Exists() {
			return v.String()
		}
	}
	return uuid.NewString()
}

// reportFromContent mirrors the reducer's projection of a report turn.
func reportFromContent(content *chat.TurnContent) *chat.PlanReport {
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
