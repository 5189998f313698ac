package chat

// Speaker constants
const (
	SpeakerUser            = "user"
	SpeakerAgentNormal     = "agent-normal"
	SpeakerAgentNetworked  = "agent-networked"
	SpeakerAgentPlan       = "agent-plan"
	SpeakerAgentPlanReport = "agent-plan-report"
	SpeakerAgentError      = "agent-error"
)

// Turn lifecycle states. Terminal states are absorbing: once a turn is
// completed, errored or cancelled, later snapshots for it are discarded.
const (
	TurnStatePending    = "pending"    // stream not yet confirmed started
	TurnStateGenerating = "generating" // stream actively producing bytes
	TurnStateCompleted  = "completed"
	TurnStateErrored    = "errored"
	TurnStateCancelled  = "cancelled"
)

// Turn is one entry in the transcript. The content field in use depends
// on Speaker: Text for user turns, Content for normal/networked agent
// turns, Plan for plan turns, Report for the final plan report.
//
// Turns are created as a paired user+pending-agent entry on submission and
// mutated in place (behind the reducer's lock) as snapshots arrive; the
// reducer publishes deep copies, never the live slice.
type Turn struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
	State   string `json:"state"`

	Text    string       `json:"text,omitempty"`
	Content *TurnContent `json:"content,omitempty"`
	Plan    []PlanStep   `json:"plan,omitempty"`
	Report  *PlanReport  `json:"report,omitempty"`

	// Interruption, when set, is a server-initiated pause requesting
	// structured input before execution continues.
	Interruption *Ask `json:"interruption,omitempty"`

	// ConfirmationRequested is meaningful only for plan turns: the server
	// is waiting for the user to confirm the remaining unexecuted steps.
	ConfirmationRequested bool `json:"confirmation_requested,omitempty"`

	Error *StreamError `json:"error,omitempty"`
}

// Terminal reports whether the turn reached an absorbing state.
func (t *Turn) Terminal() bool {
	switch t.State {
	case TurnStateCompleted, TurnStateErrored, TurnStateCancelled:
		return true
	}
	return false
}

// Generating reports whether the stream is actively producing for this turn.
func (t *Turn) Generating() bool { return t.State == TurnStateGenerating }

// Pending reports whether the stream has not confirmed starting yet.
func (t *Turn) Pending() bool { return t.State == TurnStatePending }

// Clone returns a deep copy of the turn.
func (t *Turn) Clone() *Turn {
	out := *t
	out.Content = t.Content.Clone()
	out.Plan = ClonePlan(t.Plan)
	if t.Report != nil {
		r := *t.Report
		out.Report = &r
	}
	if t.Interruption != nil {
		out.Interruption = t.Interruption.Clone()
	}
	if t.Error != nil {
		e := *t.Error
		out.Error = &e
	}
	return &out
}

// CloneTranscript deep-copies an ordered transcript.
func CloneTranscript(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i := range turns {
		out[i] = *turns[i].Clone()
	}
	return out
}
