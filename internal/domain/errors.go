package domain

import "errors"

// Sentinel errors - use with errors.Is()
var (
	// ErrValidation indicates a request body failed validation before send.
	ErrValidation = errors.New("validation failed")

	// ErrTurnInFlight indicates a submission while another turn is still
	// generating. Submissions in this state are no-ops.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrTerminalTurn indicates a snapshot or action targeted a turn that
	// already reached a terminal state.
	ErrTerminalTurn = errors.New("turn is terminal")

	// ErrNoActiveTurn indicates an action that needs an open turn
	// (cancel, interruption reply) found none.
	ErrNoActiveTurn = errors.New("no active turn")

	// ErrNoInterruption indicates an interruption reply was submitted but
	// the active turn carries no interruption payload.
	ErrNoInterruption = errors.New("no pending interruption")

	// ErrNoConversation indicates an operation that requires a selected
	// conversation ran without one.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrSessionExpired indicates the server-side session is gone and the
	// next turn submission will fail at the transport.
	ErrSessionExpired = errors.New("session expired")
)
