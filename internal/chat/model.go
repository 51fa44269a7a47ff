// Package chat implements the conversational-session orchestrator: the
// session model, the pending-request table, dispatch, persistence and
// multi-window reconciliation.
package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chatkit-ai/chatkit/internal/event"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Session holds conversation state and guarantees consistent mutation.
// All mutations go through orchestrator-mediated operations; change
// events are published synchronously so subscribers observe them in
// mutation order.
type Session struct {
	mu sync.RWMutex

	id              string
	creationDate    time.Time
	initialLocation types.Location

	requests      []*Request
	customTitle   string
	isNew         bool
	isImported    bool
	lastMessageAt time.Time

	disposed bool
}

// NewSession creates a fresh session. The initial location is fixed
// for the session's lifetime.
func NewSession(id string, location types.Location) *Session {
	s := &Session{
		id:              id,
		creationDate:    time.Now(),
		initialLocation: location,
		isNew:           true,
	}
	event.PublishSync(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{SessionID: id, Location: location},
	})
	return s
}

// generateID generates a new ULID.
func generateID() string {
	return ulid.Make().String()
}

// ID returns the opaque session id.
func (s *Session) ID() string { return s.id }

// Location returns the initial location, immutable after creation.
func (s *Session) Location() types.Location { return s.initialLocation }

// CreationDate returns when the session was created.
func (s *Session) CreationDate() time.Time { return s.creationDate }

// IsNew reports whether the session was created this run and has never
// been persisted.
func (s *Session) IsNew() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isNew
}

// IsImported reports whether the session came from an imported transcript.
func (s *Session) IsImported() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isImported
}

// CustomTitle returns the custom title, empty when unset.
func (s *Session) CustomTitle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customTitle
}

// LastMessageDate returns the time of the most recent request.
func (s *Session) LastMessageDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessageAt
}

// Disposed reports whether the session has been disposed.
func (s *Session) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// checkDisposed panics when the session has been disposed. Operating
// on a disposed session is a contract violation, not a recoverable
// condition.
func (s *Session) checkDisposed() {
	if s.disposed {
		panic(fmt.Sprintf("chat: operation on disposed session %s", s.id))
	}
}

// AddRequest creates a new request with its response shell and appends
// it to the history. Trailing remove-on-send policy lives in the
// orchestrator, not here.
func (s *Session) AddRequest(opts AddRequestOptions) *Request {
	s.mu.Lock()
	s.checkDisposed()

	now := time.Now()
	req := &Request{
		ID:           generateID(),
		SessionID:    s.id,
		Text:         opts.Text,
		Parts:        opts.Parts,
		Variables:    opts.Variables,
		Attempt:      opts.Attempt,
		Timestamp:    now.UnixMilli(),
		ConfirmData:  opts.Confirm,
		LocationData: opts.LocationData,
		ModelID:      opts.ModelID,
		RemoveOnSend: opts.RemoveOnSend,
		Response: &Response{
			AgentID:  opts.AgentID,
			Command:  opts.Command,
			Complete: opts.IsComplete,
		},
	}
	s.requests = append(s.requests, req)
	s.lastMessageAt = now
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.RequestSubmitted,
		Data: event.RequestSubmittedData{
			SessionID: s.id,
			RequestID: req.ID,
			AgentID:   opts.AgentID,
			Command:   opts.Command,
		},
	})
	return req
}

// UpdateRequest replaces the variable data of a request after further
// resolution, e.g. once context ranges were recomputed against the
// final prompt text.
func (s *Session) UpdateRequest(req *Request, variables types.VariableData) {
	s.mu.Lock()
	s.checkDisposed()
	req.Variables = variables
	s.mu.Unlock()
}

// AcceptResponseProgress appends a unit of incremental output. Calling
// it on a completed response is a contract violation.
func (s *Session) AcceptResponseProgress(req *Request, part types.ResponsePart) {
	s.mu.Lock()
	s.checkDisposed()
	if req.Response.Complete {
		s.mu.Unlock()
		panic(fmt.Sprintf("chat: progress on completed response, request %s", req.ID))
	}
	req.Response.Parts = append(req.Response.Parts, part)
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.ResponseProgress,
		Data: event.ResponseProgressData{SessionID: s.id, RequestID: req.ID, Part: part},
	})
}

// SetResponse attaches the terminal result envelope without marking
// completion; followups may still be set afterwards.
func (s *Session) SetResponse(req *Request, result *types.Result) {
	s.mu.Lock()
	s.checkDisposed()
	req.Response.Result = result
	s.mu.Unlock()
}

// ResolveAgent records the responding agent and command once known,
// e.g. after a detection pass.
func (s *Session) ResolveAgent(req *Request, agentID, command string) {
	s.mu.Lock()
	s.checkDisposed()
	req.Response.AgentID = agentID
	req.Response.Command = command
	s.mu.Unlock()
}

// CompleteResponse marks the response terminal. It is idempotent and
// irreversible; no further progress is accepted.
func (s *Session) CompleteResponse(req *Request) {
	s.mu.Lock()
	s.checkDisposed()
	if req.Response.Complete {
		s.mu.Unlock()
		return
	}
	req.Response.Complete = true
	var errDetails *types.ResultError
	if req.Response.Result != nil {
		errDetails = req.Response.Result.Error
	}
	canceled := req.Response.Canceled
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.ResponseCompleted,
		Data: event.ResponseCompletedData{
			SessionID: s.id,
			RequestID: req.ID,
			Canceled:  canceled,
			Error:     errDetails,
		},
	})
}

// CancelRequest marks the response cancelled. Safe to call whether or
// not progress had started.
func (s *Session) CancelRequest(req *Request) {
	s.mu.Lock()
	s.checkDisposed()
	req.Response.Canceled = true
	s.mu.Unlock()
}

// RemoveRequest deletes a request by id. The reason distinguishes
// resend from undo and eviction for downstream telemetry.
func (s *Session) RemoveRequest(id string, reason RemovalReason) error {
	s.mu.Lock()
	s.checkDisposed()

	idx := -1
	for i, r := range s.requests {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("request not found: %s", id)
	}
	s.requests = append(s.requests[:idx], s.requests[idx+1:]...)
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.RequestRemoved,
		Data: event.RequestRemovedData{SessionID: s.id, RequestID: id, Reason: string(reason)},
	})
	return nil
}

// SetFollowups attaches follow-up suggestions to a response.
func (s *Session) SetFollowups(req *Request, followups []types.Followup) {
	s.mu.Lock()
	s.checkDisposed()
	req.Response.Followups = followups
	s.mu.Unlock()
}

// SetCustomTitle sets the user-chosen title.
func (s *Session) SetCustomTitle(title string) {
	s.mu.Lock()
	s.checkDisposed()
	s.customTitle = title
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.SessionTitleChanged,
		Data: event.SessionTitleChangedData{SessionID: s.id, Title: title},
	})
}

// NotifyEditingAction records a user editing action against the
// conversation; it has no side effect beyond the change event.
func (s *Session) NotifyEditingAction(action string) {
	s.mu.RLock()
	s.checkDisposed()
	s.mu.RUnlock()

	event.PublishSync(event.Event{
		Type: event.HistoryChanged,
		Data: event.HistoryChangedData{SessionID: s.id, Action: action},
	})
}

// GetRequests returns the requests in chronological order.
func (s *Session) GetRequests() []*Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// GetRequest returns a request by id.
func (s *Session) GetRequest(id string) (*Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Title returns the custom title or one derived from the first request.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.customTitle != "" {
		return s.customTitle
	}
	if len(s.requests) > 0 && s.requests[0].Text != "" {
		return s.requests[0].Text
	}
	return "New Chat"
}

// markPersisted clears the is-new flag after a successful save.
func (s *Session) markPersisted() {
	s.mu.Lock()
	s.isNew = false
	s.mu.Unlock()
}

// adoptRequest appends an existing request, re-parenting it to this
// session. Used by the orchestrator's adoption path.
func (s *Session) adoptRequest(req *Request) {
	s.mu.Lock()
	s.checkDisposed()
	req.SessionID = s.id
	s.requests = append(s.requests, req)
	s.lastMessageAt = time.Now()
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.RequestSubmitted,
		Data: event.RequestSubmittedData{
			SessionID: s.id,
			RequestID: req.ID,
			AgentID:   req.Response.AgentID,
			Command:   req.Response.Command,
		},
	})
}

// Dispose releases the session. Further operations panic. Persistence
// policy on dispose lives in the orchestrator.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.SessionDisposed,
		Data: event.SessionDisposedData{SessionID: s.id},
	})
}
