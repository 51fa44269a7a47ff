package event

import "github.com/chatkit-ai/chatkit/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	SessionID string         `json:"sessionID"`
	Location  types.Location `json:"location"`
}

// SessionDisposedData is the data for session.disposed events.
type SessionDisposedData struct {
	SessionID string `json:"sessionID"`
}

// SessionTitleChangedData is the data for session.title events.
type SessionTitleChangedData struct {
	SessionID string `json:"sessionID"`
	Title     string `json:"title"`
}

// RequestSubmittedData is the data for request.submitted events.
type RequestSubmittedData struct {
	SessionID string `json:"sessionID"`
	RequestID string `json:"requestID"`
	AgentID   string `json:"agent,omitempty"`
	Command   string `json:"slashCommand,omitempty"`
}

// RequestRemovedData is the data for request.removed events.
type RequestRemovedData struct {
	SessionID string `json:"sessionID"`
	RequestID string `json:"requestID"`
	Reason    string `json:"reason"`
}

// ResponseProgressData is the data for response.progress events.
type ResponseProgressData struct {
	SessionID string             `json:"sessionID"`
	RequestID string             `json:"requestID"`
	Part      types.ResponsePart `json:"part"`
}

// ResponseCompletedData is the data for response.completed events.
type ResponseCompletedData struct {
	SessionID string             `json:"sessionID"`
	RequestID string             `json:"requestID"`
	Canceled  bool               `json:"canceled,omitempty"`
	Error     *types.ResultError `json:"error,omitempty"`
}

// HistoryChangedData is the data for history.changed events.
type HistoryChangedData struct {
	SessionID string `json:"sessionID,omitempty"`
	// Action names the user editing action that triggered the change,
	// empty for storage-driven changes.
	Action string `json:"action,omitempty"`
}

// StorageExternallyChangedData is the data for storage.external events,
// published when another window writes the shared session blob.
type StorageExternallyChangedData struct {
	Path string `json:"path"`
}
