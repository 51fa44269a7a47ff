package chat

import (
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// RemovalReason distinguishes why a request was removed, for telemetry.
type RemovalReason string

const (
	RemovalReasonResend   RemovalReason = "resend"
	RemovalReasonUndo     RemovalReason = "undo"
	RemovalReasonEviction RemovalReason = "eviction"
	RemovalReasonAdoption RemovalReason = "adoption"
)

// Response is the mutable, append-only record of a handler's output
// for a request. It is mutated in place through the owning session's
// methods and never replaced.
type Response struct {
	Parts     []types.ResponsePart
	Result    *types.Result
	Complete  bool
	Canceled  bool
	AgentID   string
	Command   string
	Followups []types.Followup
}

// Request is one user turn plus its associated response. A request
// carries exactly one Response from the moment AddRequest returns.
type Request struct {
	ID        string
	SessionID string
	Text      string
	Parts     []types.MessagePart
	Variables types.VariableData
	Attempt   int
	Timestamp int64

	ConfirmData  *types.ConfirmData
	LocationData *types.LocationData
	ModelID      string

	// RemoveOnSend marks a request the orchestrator clears before the
	// next send (e.g. pending confirmation turns).
	RemoveOnSend bool

	Response *Response
}

// AddRequestOptions carries everything needed to create a request.
type AddRequestOptions struct {
	Text         string
	Parts        []types.MessagePart
	Variables    types.VariableData
	Attempt      int
	AgentID      string
	Command      string
	Confirm      *types.ConfirmData
	LocationData *types.LocationData
	ModelID      string
	RemoveOnSend bool
	// IsComplete creates the response already completed; used when
	// adopting finished exchanges such as imported transcripts.
	IsComplete bool
}
