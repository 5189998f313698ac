// Package reducer owns the in-memory transcript and folds inbound
// snapshots into it. The transcript slice is the single shared mutable
// resource of the engine: every mutation funnels through Apply and
// friends behind one lock, and subscribers only ever receive deep copies.
package reducer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatflow/internal/domain"
	"chatflow/internal/domain/models/chat"
	"chatflow/internal/service/chat/classifier"
	"chatflow/internal/service/chat/plan"
)

// Hooks are orchestrator callbacks fired outside the reducer lock.
type Hooks struct {
	// PlanStepFinished fires exactly once per step, when it first
	// transitions to finished.
	PlanStepFinished func(turnID string, step chat.PlanStep)

	// PlanCompleted fires once when the last unfinished step of a plan
	// turn finishes.
	PlanCompleted func(turnID string, steps []chat.PlanStep)

	// TurnCompleted fires when a turn reaches the completed state.
	TurnCompleted func(turn chat.Turn)
}

// Reducer is the per-conversation stream state machine. One instance is
// built per conversation together with the agent-identity→speaker table
// that routes snapshots to the plan or content path.
type Reducer struct {
	mu        sync.Mutex
	cls       *classifier.Classifier
	modes     map[string]string // agent identity -> speaker
	turns     []chat.Turn
	listeners []func([]chat.Turn)
	hooks     Hooks
	logger    *slog.Logger

	// per-plan-turn bookkeeping so hooks fire once
	planDone map[string]bool
}

// New creates a reducer for one conversation.
func New(cls *classifier.Classifier, modes map[string]string, logger *slog.Logger) *Reducer {
	return &Reducer{
		cls:      cls,
		modes:    modes,
		logger:   logger,
		planDone: make(map[string]bool),
	}
}

// SetHooks installs orchestrator callbacks. Must be called before the
// first snapshot arrives.
func (r *Reducer) SetHooks(h Hooks) { r.hooks = h }

// Subscribe registers a listener that receives a deep copy of the
// transcript after every applied event.
func (r *Reducer) Subscribe(fn func([]chat.Turn)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Transcript returns a deep copy of the current transcript.
func (r *Reducer) Transcript() []chat.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return chat.CloneTranscript(r.turns)
}

// Seed replaces the transcript with loaded history. Used by the resume
// loader before a recover stream attaches.
func (r *Reducer) Seed(turns []chat.Turn) {
	r.mu.Lock()
	r.turns = chat.CloneTranscript(turns)
	r.mu.Unlock()
	r.publish()
}

// Reset clears all conversation state (new conversation, navigation away).
func (r *Reducer) Reset() {
	r.mu.Lock()
	r.turns = nil
	r.planDone = make(map[string]bool)
	r.mu.Unlock()
	r.publish()
}

// Begin appends the paired user + pending agent turns for a submission.
// The agent identity selects the speaker mode via the per-conversation
// table. Returns ErrTurnInFlight if a turn is still open.
func (r *Reducer) Begin(agentIdentity, query string) (userTurnID, agentTurnID string, err error) {
	r.mu.Lock()
	if r.activeTurn() != nil {
		r.mu.Unlock()
		return "", "", domain.ErrTurnInFlight
	}

	speaker, ok := r.modes[agentIdentity]
	if !ok {
		speaker = chat.SpeakerAgentNormal
	}

	userTurnID = uuid.NewString()
	agentTurnID = uuid.NewString()
	r.turns = append(r.turns,
		chat.Turn{ID: userTurnID, Speaker: chat.SpeakerUser, State: chat.TurnStateCompleted, Text: query},
		chat.Turn{ID: agentTurnID, Speaker: speaker, State: chat.TurnStatePending},
	)
	r.mu.Unlock()
	r.publish()
	return userTurnID, agentTurnID, nil
}

// BeginReport appends a pending plan-report turn (no user pair): the
// follow-up a finished plan demands.
func (r *Reducer) BeginReport() (string, error) {
	r.mu.Lock()
	if r.activeTurn() != nil {
		r.mu.Unlock()
		return "", domain.ErrTurnInFlight
	}
	id := uuid.NewString()
	r.turns = append(r.turns, chat.Turn{
		ID:      id,
		Speaker: chat.SpeakerAgentPlanReport,
		State:   chat.TurnStatePending,
	})
	r.mu.Unlock()
	r.publish()
	return id, nil
}

// RetryLast resets the last agent turn for a perfect resend of its paired
// user turn. Only terminal turns can be retried.
func (r *Reducer) RetryLast() (userTurnID, agentTurnID string, err error) {
	r.mu.Lock()
	var agent *chat.Turn
	idx := -1
	for i := len(r.turns) - 1; i >= 0; i-- {
		if r.turns[i].Speaker != chat.SpeakerUser {
			agent = &r.turns[i]
			idx = i
			break
		}
	}
	if agent == nil {
		r.mu.Unlock()
		return "", "", domain.ErrNoActiveTurn
	}
	if !agent.Terminal() {
		r.mu.Unlock()
		return "", "", domain.ErrTurnInFlight
	}
	for i := idx - 1; i >= 0; i-- {
		if r.turns[i].Speaker == chat.SpeakerUser {
			userTurnID = r.turns[i].ID
			break
		}
	}

	agentTurnID = agent.ID
	agent.State = chat.TurnStatePending
	agent.Error = nil
	agent.Content = nil
	agent.Plan = nil
	agent.Report = nil
	agent.Interruption = nil
	agent.ConfirmationRequested = false
	delete(r.planDone, agentTurnID)
	r.mu.Unlock()
	r.publish()
	return userTurnID, agentTurnID, nil
}

// Reopen puts a turn back into the generating state for a continuation
// stream (interruption reply, plan confirm) and clears its interruption.
func (r *Reducer) Reopen(turnID string) error {
	r.mu.Lock()
	turn := r.findTurn(turnID)
	if turn == nil {
		r.mu.Unlock()
		return domain.ErrNoActiveTurn
	}
	if turn.State == chat.TurnStateCancelled || turn.State == chat.TurnStateErrored {
		r.mu.Unlock()
		return domain.ErrTerminalTurn
	}
	turn.State = chat.TurnStateGenerating
	turn.Interruption = nil
	turn.ConfirmationRequested = false
	r.mu.Unlock()
	r.publish()
	return nil
}

// Apply folds one snapshot into the transcript. Snapshots arriving after
// the active turn reached a terminal state are classified but their
// effects discarded.
func (r *Reducer) Apply(snap *chat.Snapshot) {
	var fired []func()

	r.mu.Lock()
	turn := r.activeTurn()
	if turn == nil {
		r.mu.Unlock()
		r.logger.Debug("snapshot discarded, no open turn",
			"assistant_message_id", snap.AssistantMessageID)
		return
	}

	if snap.Error != nil {
		turn.State = chat.TurnStateErrored
		e := *snap.Error
		turn.Error = &e
		r.mu.Unlock()
		r.publish()
		return
	}

	// First content byte: pending -> generating, adopt server ids.
	if turn.Pending() {
		turn.State = chat.TurnStateGenerating
		r.adoptServerIDs(turn, snap)
	}

	if turn.Speaker == chat.SpeakerAgentPlan {
		fired = r.applyPlan(turn, snap)
	} else {
		r.applyContent(turn, snap)
	}

	if ext := snap.Message.ParseExt(); ext.Ask != nil {
		turn.Interruption = ext.Ask
	}
	r.mu.Unlock()

	r.publish()
	for _, fn := range fired {
		fn()
	}
}

// Complete handles stream-closed-without-error for the active turn.
func (r *Reducer) Complete() {
	var hook func()

	r.mu.Lock()
	turn := r.activeTurn()
	if turn == nil {
		r.mu.Unlock()
		return
	}
	turn.State = chat.TurnStateCompleted
	if r.hooks.TurnCompleted != nil {
		done := *turn.Clone()
		hook = func() { r.hooks.TurnCompleted(done) }
	}
	r.mu.Unlock()

	r.publish()
	if hook != nil {
		hook()
	}
}

// Cancel flips the active turn to cancelled. Local state changes
// immediately; the transport/backend notification is the caller's job,
// and trailing snapshots are discarded by Apply.
func (r *Reducer) Cancel() {
	r.mu.Lock()
	turn := r.activeTurn()
	if turn == nil {
		r.mu.Unlock()
		return
	}
	turn.State = chat.TurnStateCancelled
	for i := range turn.Plan {
		turn.Plan[i].Loading = false
	}
	r.mu.Unlock()
	r.publish()
}

// Fail records a transport error against the active turn.
func (r *Reducer) Fail(err error) {
	r.mu.Lock()
	turn := r.activeTurn()
	if turn == nil {
		r.mu.Unlock()
		return
	}
	turn.State = chat.TurnStateErrored
	turn.Error = &chat.StreamError{Description: err.Error()}
	r.mu.Unlock()
	r.publish()
}

// SetAutoConfirmDeadline stamps a plan step with its auto-confirm instant.
func (r *Reducer) SetAutoConfirmDeadline(turnID, stepID string, deadline time.Time) {
	r.mu.Lock()
	if turn := r.findTurn(turnID); turn != nil {
		for i := range turn.Plan {
			if turn.Plan[i].ID == stepID {
				d := deadline
				turn.Plan[i].AutoConfirmDeadline = &d
			}
		}
	}
	r.mu.Unlock()
	r.publish()
}

// EditPlanStep replaces a step's instruction text before confirmation.
func (r *Reducer) EditPlanStep(turnID, stepID, text string) {
	r.mu.Lock()
	if turn := r.findTurn(turnID); turn != nil {
		for i := range turn.Plan {
			if turn.Plan[i].ID == stepID && !turn.Plan[i].Finished {
				turn.Plan[i].Text = text
			}
		}
	}
	r.mu.Unlock()
	r.publish()
}

// activeTurn returns the last non-user turn that is still open.
// Callers hold r.mu.
func (r *Reducer) activeTurn() *chat.Turn {
	for i := len(r.turns) - 1; i >= 0; i-- {
		t := &r.turns[i]
		if t.Speaker == chat.SpeakerUser {
			continue
		}
		if t.Terminal() {
			return nil
		}
		return t
	}
	return nil
}

func (r *Reducer) findTurn(id string) *chat.Turn {
	for i := range r.turns {
		if r.turns[i].ID == id {
			return &r.turns[i]
		}
	}
	return nil
}

// adoptServerIDs rewrites the locally-minted ids once the server supplies
// its own, for both the agent turn and its paired user turn.
func (r *Reducer) adoptServerIDs(turn *chat.Turn, snap *chat.Snapshot) {
	if snap.AssistantMessageID != "" {
		turn.ID = snap.AssistantMessageID
	}
	if snap.UserMessageID == "" {
		return
	}
	for i := len(r.turns) - 1; i >= 0; i-- {
		if r.turns[i].Speaker == chat.SpeakerUser {
			r.turns[i].ID = snap.UserMessageID
			return
		}
	}
}

// publish hands a fresh transcript copy to every listener, outside the lock.
func (r *Reducer) publish() {
	r.mu.Lock()
	listeners := make([]func([]chat.Turn), len(r.listeners))
	copy(listeners, r.listeners)
	snapshot := chat.CloneTranscript(r.turns)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(chat.CloneTranscript(snapshot))
	}
}

// applyContent re-classifies the snapshot and replaces the turn content in
// place, keeping completed steps frozen. Callers hold r.mu.
func (r *Reducer) applyContent(turn *chat.Turn, snap *chat.Snapshot) {
	fresh, err := r.cls.Classify(snap.Message)
	if err != nil {
		turn.State = chat.TurnStateErrored
		turn.Error = &chat.StreamError{Description: err.Error()}
		return
	}

	turn.Content = mergeContent(turn.Content, fresh)

	if turn.Speaker == chat.SpeakerAgentPlanReport {
		turn.Report = reportFromContent(turn.Content)
	}
}

// applyPlan routes a snapshot through the plan extractor. Returns hook
// closures to fire after the lock is released. Callers hold r.mu.
func (r *Reducer) applyPlan(turn *chat.Turn, snap *chat.Snapshot) []func() {
	vars := plan.Vars(snap.Message)
	var fired []func()

	switch plan.DetectPhase(vars) {
	case plan.PhaseGeneratingPlan:
		r.rebuildPlan(turn, plan.PlanList(vars))

	case plan.PhaseExecutingStep:
		turn.ConfirmationRequested = false
		fired = r.advancePlan(turn, vars)

	case plan.PhaseConfirmingPlan:
		turn.ConfirmationRequested = true
		for i := range turn.Plan {
			turn.Plan[i].Loading = false
		}
	}
	return fired
}

// rebuildPlan refreshes the proposed step list while the plan streams in,
// keeping ids stable by index so timers and edits survive regrowth.
func (r *Reducer) rebuildPlan(turn *chat.Turn, texts []string) {
	steps := make([]chat.PlanStep, len(texts))
	for i, text := range texts {
		steps[i] = chat.PlanStep{
			ID:         uuid.NewString(),
			Text:       text,
			SearchKind: chat.SearchKindUnset,
		}
		if i < len(turn.Plan) {
			steps[i].ID = turn.Plan[i].ID
		}
	}
	turn.Plan = steps
}
