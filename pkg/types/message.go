package types

import "encoding/json"

// Variable is one attached-context entry on a request. Structured
// reference fields round-trip through the typed revive step.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	URI   *URI   `json:"uri,omitempty"`
	Range *Range `json:"range,omitempty"`
}

// VariableData carries the resolved context variables for a request.
type VariableData struct {
	Variables []Variable `json:"variables"`
}

// ConfirmData carries a user confirmation or rejection payload echoed
// back into a follow-up request.
type ConfirmData struct {
	Title    string         `json:"title,omitempty"`
	Accepted bool           `json:"accepted"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// LocationData carries surface-specific request context, e.g. the
// document and selection an inline request was issued against.
type LocationData struct {
	Document   *URI   `json:"document,omitempty"`
	Selection  *Range `json:"selection,omitempty"`
	WholeRange *Range `json:"wholeRange,omitempty"`
}

// SerializedRequest is the persisted form of one user turn.
type SerializedRequest struct {
	ID           string              `json:"id"`
	Text         string              `json:"text"`
	Message      []json.RawMessage   `json:"message"`
	Variables    VariableData        `json:"variableData"`
	Attempt      int                 `json:"attempt,omitempty"`
	ConfirmData  *ConfirmData        `json:"confirmation,omitempty"`
	LocationData *LocationData       `json:"locationData,omitempty"`
	Timestamp    int64               `json:"timestamp,omitempty"`
	Response     *SerializedResponse `json:"response,omitempty"`
}

// SerializedResponse is the persisted form of a response.
type SerializedResponse struct {
	Parts      []json.RawMessage `json:"parts"`
	Result     *Result           `json:"result,omitempty"`
	IsComplete bool              `json:"isComplete"`
	IsCanceled bool              `json:"isCanceled,omitempty"`
	AgentID    string            `json:"agent,omitempty"`
	Command    string            `json:"slashCommand,omitempty"`
	Followups  []Followup        `json:"followups,omitempty"`
}

// MessageParts revives the typed message parts of a serialized request.
func (r *SerializedRequest) MessageParts() ([]MessagePart, error) {
	parts := make([]MessagePart, 0, len(r.Message))
	for _, raw := range r.Message {
		p, err := UnmarshalMessagePart(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// ResponseParts revives the typed response parts of a serialized response.
func (r *SerializedResponse) ResponseParts() ([]ResponsePart, error) {
	parts := make([]ResponsePart, 0, len(r.Parts))
	for _, raw := range r.Parts {
		p, err := UnmarshalResponsePart(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// MarshalMessageParts encodes typed message parts into raw JSON for storage.
func MarshalMessageParts(parts []MessagePart) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(parts))
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// MarshalResponseParts encodes typed response parts into raw JSON for storage.
func MarshalResponseParts(parts []ResponsePart) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(parts))
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
