package chat

import (
	"fmt"
	"time"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// ToSerializable snapshots the session into its persisted form. The
// snapshot is plain data; live getters never leak into storage.
func (s *Session) ToSerializable() (*types.SerializedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &types.SerializedSession{
		Version:         types.SerializationVersion,
		SessionID:       s.id,
		CreationDate:    s.creationDate.UnixMilli(),
		IsImported:      s.isImported,
		CustomTitle:     s.customTitle,
		InitialLocation: s.initialLocation,
		Requests:        make([]types.SerializedRequest, 0, len(s.requests)),
	}
	if !s.lastMessageAt.IsZero() {
		out.LastMessageDate = s.lastMessageAt.UnixMilli()
	}

	for _, req := range s.requests {
		sr, err := serializeRequest(req)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.id, err)
		}
		out.Requests = append(out.Requests, *sr)
	}
	return out, nil
}

func serializeRequest(req *Request) (*types.SerializedRequest, error) {
	msg, err := types.MarshalMessageParts(req.Parts)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	sr := &types.SerializedRequest{
		ID:           req.ID,
		Text:         req.Text,
		Message:      msg,
		Variables:    req.Variables,
		Attempt:      req.Attempt,
		ConfirmData:  req.ConfirmData,
		LocationData: req.LocationData,
		Timestamp:    req.Timestamp,
	}

	resp := req.Response
	parts, err := types.MarshalResponseParts(resp.Parts)
	if err != nil {
		return nil, fmt.Errorf("request %s response: %w", req.ID, err)
	}
	sr.Response = &types.SerializedResponse{
		Parts:      parts,
		Result:     resp.Result,
		IsComplete: resp.Complete,
		IsCanceled: resp.Canceled,
		AgentID:    resp.AgentID,
		Command:    resp.Command,
		Followups:  resp.Followups,
	}
	return sr, nil
}

// NewSessionFromSerialized rehydrates a session from its persisted
// form, reviving structured references embedded in the history.
func NewSessionFromSerialized(data *types.SerializedSession) (*Session, error) {
	s := &Session{
		id:              data.SessionID,
		creationDate:    time.UnixMilli(data.CreationDate),
		initialLocation: data.InitialLocation,
		customTitle:     data.CustomTitle,
		isImported:      data.IsImported,
		isNew:           false,
	}
	if data.LastMessageDate > 0 {
		s.lastMessageAt = time.UnixMilli(data.LastMessageDate)
	}

	for i := range data.Requests {
		req, err := reviveRequest(data.SessionID, &data.Requests[i])
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", data.SessionID, err)
		}
		s.requests = append(s.requests, req)
	}
	return s, nil
}

func reviveRequest(sessionID string, sr *types.SerializedRequest) (*Request, error) {
	parts, err := sr.MessageParts()
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", sr.ID, err)
	}

	req := &Request{
		ID:           sr.ID,
		SessionID:    sessionID,
		Text:         sr.Text,
		Parts:        parts,
		Variables:    sr.Variables,
		Attempt:      sr.Attempt,
		Timestamp:    sr.Timestamp,
		ConfirmData:  sr.ConfirmData,
		LocationData: sr.LocationData,
		Response:     &Response{},
	}

	if sr.Response != nil {
		rparts, err := sr.Response.ResponseParts()
		if err != nil {
			return nil, fmt.Errorf("request %s response: %w", sr.ID, err)
		}
		req.Response = &Response{
			Parts:      rparts,
			Result:     sr.Response.Result,
			Complete:   sr.Response.IsComplete,
			Canceled:   sr.Response.IsCanceled,
			AgentID:    sr.Response.AgentID,
			Command:    sr.Response.Command,
			Followups:  sr.Response.Followups,
		}
	}
	return req, nil
}
