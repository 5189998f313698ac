package chat

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TurnRequest is the outbound chat request body. Exactly one submission
// mode is populated:
//   - Query: a fresh user turn (optionally with attached temp files)
//   - InterruptedAssistantMessageID + Tool: an interruption reply resuming
//     the paused execution context
//   - Regenerate*: resend/edit of a prior turn
//   - Recover: continue an in-flight turn after a reload (conversation id only)
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`

	Query       string   `json:"query,omitempty"`
	TempFileIDs []string `json:"temp_file_ids,omitempty"`

	RegenerateUserMessageID      string `json:"regenerate_user_message_id,omitempty"`
	RegenerateAssistantMessageID string `json:"regenerate_assistant_message_id,omitempty"`

	InterruptedAssistantMessageID string          `json:"interrupted_assistant_message_id,omitempty"`
	Tool                          json.RawMessage `json:"tool,omitempty"`

	ConfirmPlan *bool `json:"confirm_plan,omitempty"`

	// PlanSteps carries the per-step edited instructions and results
	// forward on the final-report request.
	PlanSteps []PlanStepPayload `json:"plan_steps,omitempty"`

	// Recover marks the request as a recovery attach. It never goes on
	// the wire: the backend recognizes recovery by the bare body.
	Recover bool `json:"-"`
}

// PlanStepPayload is the outbound projection of a plan step.
type PlanStepPayload struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Result string `json:"result,omitempty"`
}

// Request size bounds. Oversized submissions are rejected locally before
// they reach the wire.
const (
	// MaxQueryLength is the maximum length of one user submission.
	MaxQueryLength = 8000

	// MaxTempFileIDs is the maximum number of file attachments per turn.
	MaxTempFileIDs = 10
)

// Validate checks structural validity before transmission.
func (r TurnRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.ConversationID, validation.Required),
		validation.Field(&r.Query, validation.RuneLength(0, MaxQueryLength)),
		validation.Field(&r.TempFileIDs, validation.Length(0, MaxTempFileIDs)),
	); err != nil {
		return err
	}
	return r.validateMode()
}

func (r *TurnRequest) validateMode() error {
	modes := 0
	if r.Query != "" {
		modes++
	}
	if r.InterruptedAssistantMessageID != "" {
		modes++
	}
	if r.RegenerateUserMessageID != "" || r.RegenerateAssistantMessageID != "" {
		modes++
	}
	if r.Recover {
		modes++
	}
	// confirm_plan rides alone on plan continuation requests
	if modes == 0 && r.ConfirmPlan != nil {
		modes = 1
	}
	if modes != 1 {
		return validation.NewError("chat_request_mode",
			"exactly one of query, interruption reply, regenerate, recover or confirm_plan must be set")
	}
	if r.InterruptedAssistantMessageID != "" && len(r.Tool) == 0 {
		return validation.NewError("chat_request_tool",
			"interruption replies must echo the tool payload")
	}
	return nil
}

// SessionRequest is the body shared by the TTL probe and renewal calls.
type SessionRequest struct {
	AgentID        string `json:"agent_id"`
	AgentVersion   string `json:"agent_version"`
	ConversationID string `json:"conversation_id"`
}

// Validate checks the session request fields.
func (r SessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AgentID, validation.Required),
		validation.Field(&r.ConversationID, validation.Required),
	)
}

// SessionTTL is the TTL probe/renewal response.
type SessionTTL struct {
	TTL int `json:"ttl"` // seconds
}
