// Package orchestrator drives a conversation: it builds outbound
// requests, owns the single in-flight stream, replies to interruptions,
// advances plans (manually or by auto-confirm), and keeps the server-side
// session alive while the conversation is selected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"chatflow/internal/domain"
	"chatflow/internal/domain/models/chat"
	chatSvc "chatflow/internal/domain/services/chat"
	"chatflow/internal/service/chat/loader"
	"chatflow/internal/service/chat/reducer"
	"chatflow/internal/service/chat/scheduler"
)

// Timer name conventions
const (
	timerSessionRenew    = "session-renew"
	timerAutoConfirmPref = "plan-autoconfirm:"
)

// Config tunes the orchestrator's timing behavior.
type Config struct {
	AgentID      string
	AgentVersion string

	// AutoConfirmDelay is the countdown started when a plan step
	// finishes; zero means the 5s default.
	AutoConfirmDelay time.Duration

	// RenewThreshold is the remaining-TTL bound that triggers a session
	// renewal; zero means the 30s default.
	RenewThreshold time.Duration

	// TickInterval is the keep-alive check resolution; zero means 1s.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.AutoConfirmDelay <= 0 {
		c.AutoConfirmDelay = 5 * time.Second
	}
	if c.RenewThreshold <= 0 {
		c.RenewThreshold = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Orchestrator is the stateful conversation driver. One instance per
// conversation view; all methods are safe for concurrent use.
type Orchestrator struct {
	transport chatSvc.Transport
	reducer   *reducer.Reducer
	loader    *loader.Loader
	sched     *scheduler.Scheduler
	logger    *slog.Logger
	cfg       Config

	mu             sync.Mutex
	conversationID string
	inFlight       bool
	cancelStream   context.CancelFunc
	confirmed      map[string]bool // step id -> confirm already performed
	session        *sessionKeeper
	pendingReport  *chat.TurnRequest // report request deferred until the stream closes
}

// New wires an orchestrator. Hooks are installed on the reducer; callers
// must not replace them afterwards.
func New(transport chatSvc.Transport, red *reducer.Reducer, ld *loader.Loader, sched *scheduler.Scheduler, cfg Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		transport: transport,
		reducer:   red,
		loader:    ld,
		sched:     sched,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		confirmed: make(map[string]bool),
	}
	red.SetHooks(reducer.Hooks{
		PlanStepFinished: o.onPlanStepFinished,
		PlanCompleted:    o.onPlanCompleted,
		TurnCompleted:    o.onTurnCompleted,
	})
	return o
}

// SelectConversation makes a conversation the active one: it probes the
// session TTL once and starts the renewal loop. Any previously selected
// conversation stops renewing.
func (o *Orchestrator) SelectConversation(ctx context.Context, conversationID string) error {
	req := chat.SessionRequest{
		AgentID:        o.cfg.AgentID,
		AgentVersion:   o.cfg.AgentVersion,
		ConversationID: conversationID,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	ttl, err := o.transport.SessionTTL(ctx, req)
	if err != nil {
		return fmt.Errorf("probe session ttl: %w", err)
	}

	o.mu.Lock()
	if o.session != nil {
		o.session.stop()
	}
	o.conversationID = conversationID
	o.session = newSessionKeeper(o.transport, o.sched, req,
		o.cfg.RenewThreshold, o.cfg.TickInterval, o.logger)
	o.session.start(ttl)
	o.mu.Unlock()

	o.logger.Info("conversation selected",
		"conversation_id", conversationID,
		"ttl_seconds", ttl,
	)
	return nil
}

// Deselect stops session renewal and releases the conversation. The
// transcript survives until Reset or a new selection seeds over it.
func (o *Orchestrator) Deselect() {
	o.mu.Lock()
	if o.session != nil {
		o.session.stop()
		o.session = nil
	}
	o.conversationID = ""
	o.mu.Unlock()
}

// Submit issues a fresh user turn. A submission while a turn is in flight
// is a no-op returning ErrTurnInFlight.
func (o *Orchestrator) Submit(ctx context.Context, agentIdentity, query string, tempFileIDs []string) error {
	convID, err := o.requireConversation()
	if err != nil {
		return err
	}

	req := &chat.TurnRequest{
		ConversationID: convID,
		Query:          query,
		TempFileIDs:    tempFileIDs,
	}
	// Reject before touching the transcript: a request that never goes
	// out must not leave a pending turn behind.
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if _, _, err := o.reducer.Begin(agentIdentity, query); err != nil {
		return err
	}
	return o.startStream(ctx, req)
}

// Regenerate resends a prior user turn, replacing its agent response.
// This is also the retry action for errored turns.
func (o *Orchestrator) Regenerate(ctx context.Context) error {
	convID, err := o.requireConversation()
	if err != nil {
		return err
	}

	userID, agentID, err := o.reducer.RetryLast()
	if err != nil {
		return err
	}

	req := &chat.TurnRequest{
		ConversationID:               convID,
		RegenerateUserMessageID:      userID,
		RegenerateAssistantMessageID: agentID,
	}
	return o.startStream(ctx, req)
}

// ReplyInterruption answers a pending interruption: the original ask
// payload is echoed with the collected values substituted and tagged with
// the interrupted turn's id, so the backend resumes the paused execution
// context rather than starting a new turn.
func (o *Orchestrator) ReplyInterruption(ctx context.Context, values map[string]string) error {
	convID, err := o.requireConversation()
	if err != nil {
		return err
	}

	turnID, ask := o.pendingInterruption()
	if ask == nil {
		return domain.ErrNoInterruption
	}

	tool := append([]byte(nil), ask.Raw...)
	for i, arg := range ask.Args {
		value, ok := values[arg.Name]
		if !ok {
			continue
		}
		tool, err = sjson.SetBytes(tool, fmt.Sprintf("args.%d.value", i), value)
		if err != nil {
			return fmt.Errorf("substitute interruption value %q: %w", arg.Name, err)
		}
	}

	if err := o.reducer.Reopen(turnID); err != nil {
		return err
	}

	req := &chat.TurnRequest{
		ConversationID:                convID,
		InterruptedAssistantMessageID: turnID,
		Tool:                          tool,
	}
	return o.startStream(ctx, req)
}

// ConfirmStep performs the "confirm and continue" action for a finished
// plan step. It is idempotent per step: whichever of the manual click or
// the auto-confirm countdown runs second is a no-op.
func (o *Orchestrator) ConfirmStep(ctx context.Context, turnID, stepID string) error {
	o.mu.Lock()
	if o.confirmed[stepID] {
		o.mu.Unlock()
		return nil
	}
	o.confirmed[stepID] = true
	convID := o.conversationID
	o.mu.Unlock()

	o.sched.Cancel(timerAutoConfirmPref + stepID)

	if err := o.sendConfirm(ctx, convID, turnID); err != nil {
		// The confirm never reached the backend. Release the step so a
		// later attempt is not silently absorbed by the idempotency
		// guard.
		o.mu.Lock()
		delete(o.confirmed, stepID)
		o.mu.Unlock()
		return err
	}
	return nil
}

func (o *Orchestrator) sendConfirm(ctx context.Context, convID, turnID string) error {
	if convID == "" {
		return domain.ErrNoConversation
	}
	if err := o.reducer.Reopen(turnID); err != nil {
		return err
	}

	confirm := true
	req := &chat.TurnRequest{
		ConversationID: convID,
		ConfirmPlan:    &confirm,
	}
	return o.startStream(ctx, req)
}

// CancelAutoConfirm stops the countdown for a step without confirming,
// keeping the plan waiting for an explicit user action.
func (o *Orchestrator) CancelAutoConfirm(stepID string) {
	o.sched.Cancel(timerAutoConfirmPref + stepID)
}

// Cancel aborts the in-flight turn. Local state flips immediately; the
// backend stop notification is best-effort and trailing snapshots are
// discarded by the reducer.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	if !o.inFlight {
		o.mu.Unlock()
		return domain.ErrNoActiveTurn
	}
	cancel := o.cancelStream
	convID := o.conversationID
	o.mu.Unlock()

	agentTurnID := o.lastAgentTurnID()
	o.reducer.Cancel()
	if cancel != nil {
		cancel()
	}

	go func() {
		if err := o.transport.StopTurn(context.WithoutCancel(ctx), convID, agentTurnID); err != nil {
			o.logger.Warn("backend stop request failed",
				"conversation_id", convID,
				"error", err,
			)
		}
	}()
	return nil
}

// Resume loads persisted history and, when the last message is still
// processing server-side, attaches to the in-flight turn with a recover
// request instead of treating history as final.
func (o *Orchestrator) Resume(ctx context.Context) error {
	convID, err := o.requireConversation()
	if err != nil {
		return err
	}

	messages, err := o.transport.History(ctx, convID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	result := o.loader.Load(convID, messages)
	o.reducer.Seed(result.Turns)
	if !result.InFlight {
		return nil
	}

	o.logger.Info("resuming in-flight turn", "conversation_id", convID)
	req := &chat.TurnRequest{
		ConversationID: convID,
		Recover:        true,
	}
	return o.startStream(ctx, req)
}

// InFlight reports whether a turn is currently streaming.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Close tears the orchestrator down: renewal stops, timers are cancelled,
// the in-flight stream is aborted.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.session != nil {
		o.session.stop()
		o.session = nil
	}
	cancel := o.cancelStream
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.sched.Stop()
}

// startStream validates and sends the request, then consumes the
// resulting snapshot stream on a background goroutine.
func (o *Orchestrator) startStream(ctx context.Context, req *chat.TurnRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return domain.ErrTurnInFlight
	}
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.inFlight = true
	o.cancelStream = cancel
	o.mu.Unlock()

	stream, err := o.transport.OpenStream(streamCtx, req)
	if err != nil {
		o.clearInFlight()
		cancel()
		o.reducer.Fail(err)
		return fmt.Errorf("open stream: %w", err)
	}

	go o.consume(streamCtx, stream)
	return nil
}

// consume drains one stream. In-order delivery per turn is guaranteed by
// the transport; reduction is synchronous within this goroutine.
func (o *Orchestrator) consume(ctx context.Context, stream chatSvc.Stream) {
	defer stream.Close()

	for {
		snap, err := stream.Recv()
		switch {
		case err == nil:
			o.reducer.Apply(snap)
		case errors.Is(err, io.EOF):
			o.reducer.Complete()
			o.clearInFlight()
			o.flushPendingReport()
			return
		case ctx.Err() != nil:
			// Cancelled locally; the reducer already holds the
			// cancelled state.
			o.clearInFlight()
			return
		default:
			o.reducer.Fail(err)
			o.clearInFlight()
			return
		}
	}
}

// flushPendingReport sends the deferred final-report request once the
// plan turn's stream has fully closed.
func (o *Orchestrator) flushPendingReport() {
	o.mu.Lock()
	req := o.pendingReport
	o.pendingReport = nil
	o.mu.Unlock()
	if req == nil {
		return
	}

	if _, err := o.reducer.BeginReport(); err != nil {
		o.logger.Warn("report turn not appended", "error", err)
		return
	}
	if err := o.startStream(context.Background(), req); err != nil {
		o.logger.Warn("report request failed", "error", err)
	}
}

func (o *Orchestrator) clearInFlight() {
	o.mu.Lock()
	o.inFlight = false
	o.cancelStream = nil
	o.mu.Unlock()
}

func (o *Orchestrator) requireConversation() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conversationID == "" {
		return "", domain.ErrNoConversation
	}
	return o.conversationID, nil
}

func (o *Orchestrator) pendingInterruption() (string, *chat.Ask) {
	turns := o.reducer.Transcript()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Interruption != nil {
			return turns[i].ID, turns[i].Interruption
		}
	}
	return "", nil
}

func (o *Orchestrator) lastAgentTurnID() string {
	turns := o.reducer.Transcript()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker != chat.SpeakerUser {
			return turns[i].ID
		}
	}
	return ""
}

// onPlanStepFinished starts the auto-confirm countdown for a freshly
// finished step and stamps its deadline on the transcript.
func (o *Orchestrator) onPlanStepFinished(turnID string, step chat.PlanStep) {
	deadline := o.sched.Clock().Now().Add(o.cfg.AutoConfirmDelay)
	o.reducer.SetAutoConfirmDeadline(turnID, step.ID, deadline)

	stepID := step.ID
	o.sched.Schedule(timerAutoConfirmPref+stepID, o.cfg.AutoConfirmDelay, func() {
		if err := o.ConfirmStep(context.Background(), turnID, stepID); err != nil &&
			!errors.Is(err, domain.ErrTurnInFlight) {
			o.logger.Warn("auto-confirm failed",
				"turn_id", turnID,
				"step_id", stepID,
				"error", err,
			)
		}
	})
}

// onPlanCompleted stages the final-report request, carrying forward the
// per-step edited results. The last step needs no confirmation anymore,
// so its countdown is suppressed; the request itself is deferred until
// the plan stream closes.
func (o *Orchestrator) onPlanCompleted(turnID string, steps []chat.PlanStep) {
	payload := make([]chat.PlanStepPayload, len(steps))
	for i, s := range steps {
		payload[i] = chat.PlanStepPayload{ID: s.ID, Text: s.Text, Result: s.Result}
		o.sched.Cancel(timerAutoConfirmPref + s.ID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conversationID == "" {
		return
	}
	for _, s := range steps {
		o.confirmed[s.ID] = true
	}

	confirm := false
	o.pendingReport = &chat.TurnRequest{
		ConversationID: o.conversationID,
		ConfirmPlan:    &confirm,
		PlanSteps:      payload,
	}
	o.logger.Debug("plan completed, report staged", "turn_id", turnID)
}

func (o *Orchestrator) onTurnCompleted(turn chat.Turn) {
	o.logger.Debug("turn completed",
		"turn_id", turn.ID,
		"speaker", turn.Speaker,
	)
}
