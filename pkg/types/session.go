package types

import (
	"encoding/json"
	"fmt"
)

// SerializationVersion is the current persisted-session schema version.
// Bump when the shape of SerializedSession changes incompatibly.
const SerializationVersion = 1

// SerializedSession is the persisted form of a conversation session.
type SerializedSession struct {
	Version         int                 `json:"version"`
	SessionID       string              `json:"sessionId"`
	CreationDate    int64               `json:"creationDate"` // epoch millis
	LastMessageDate int64               `json:"lastMessageDate,omitempty"`
	IsImported      bool                `json:"isImported,omitempty"`
	CustomTitle     string              `json:"customTitle,omitempty"`
	InitialLocation Location            `json:"initialLocation"`
	Requests        []SerializedRequest `json:"requests"`
}

// ReviveSession decodes and validates a serialized session, checking the
// schema version and that every embedded part revives cleanly. This is the
// typed replacement for a generic recursive revive walk.
func ReviveSession(data []byte) (*SerializedSession, error) {
	var s SerializedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Version > SerializationVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", s.Version)
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("serialized session missing id")
	}
	if !s.InitialLocation.Valid() {
		// Pre-versioned records did not store a location.
		s.InitialLocation = LocationPanel
	}
	for i := range s.Requests {
		if _, err := s.Requests[i].MessageParts(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		if resp := s.Requests[i].Response; resp != nil {
			if _, err := resp.ResponseParts(); err != nil {
				return nil, fmt.Errorf("request %d response: %w", i, err)
			}
		}
	}
	return &s, nil
}

// Title returns the custom title when set, otherwise a title derived
// from the first request's text.
func (s *SerializedSession) Title() string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	if len(s.Requests) > 0 && s.Requests[0].Text != "" {
		return s.Requests[0].Text
	}
	return "New Chat"
}

// IsEmpty reports whether the session holds no requests.
func (s *SerializedSession) IsEmpty() bool {
	return len(s.Requests) == 0
}
