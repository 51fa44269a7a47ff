package chat

import (
	"context"
	"sync"
)

// PendingRequest is one in-flight cancellable operation. At most one
// exists per session id; its presence acts as the session's lock.
type PendingRequest struct {
	SessionID string
	RequestID string // assigned once known
	cancel    context.CancelFunc
	done      chan struct{}
}

// Cancel fires the operation's cancellation token.
func (p *PendingRequest) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Done is closed when the operation's dispatch has fully exited. It
// outlives the table entry: cancellation removes the entry immediately,
// but the dispatch may still be winding down.
func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// PendingTable tracks at most one in-flight operation per session.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*PendingRequest
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[string]*PendingRequest)}
}

// Begin registers a pending operation for a session. It returns false
// when the session already has one; the caller must treat that as a
// busy no-op.
func (t *PendingTable) Begin(sessionID string, cancel context.CancelFunc) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[sessionID]; exists {
		return nil, false
	}
	p := &PendingRequest{SessionID: sessionID, cancel: cancel, done: make(chan struct{})}
	t.entries[sessionID] = p
	return p, true
}

// SetRequestID records the request id once the request exists.
func (t *PendingTable) SetRequestID(p *PendingRequest, requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.RequestID = requestID
}

// Get returns the pending entry for a session.
func (t *PendingTable) Get(sessionID string) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[sessionID]
	return p, ok
}

// Has reports whether a session has an in-flight operation.
func (t *PendingTable) Has(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[sessionID]
	return ok
}

// Cancel fires cancellation for a session's pending operation and
// removes the entry so a follow-up send can begin immediately. Returns
// false when nothing was pending.
func (t *PendingTable) Cancel(sessionID string) bool {
	t.mu.Lock()
	p, ok := t.entries[sessionID]
	if ok {
		delete(t.entries, sessionID)
	}
	t.mu.Unlock()

	if ok {
		p.Cancel()
	}
	return ok
}

// Complete marks an operation's dispatch as exited and clears its table
// entry. The entry is removed only when the session still maps to this
// exact operation: a cancel-then-send sequence may have replaced it, and
// the stale dispatch must not unlock the successor. Called exactly once
// per entry.
func (t *PendingTable) Complete(p *PendingRequest) {
	t.mu.Lock()
	if t.entries[p.SessionID] == p {
		delete(t.entries, p.SessionID)
	}
	t.mu.Unlock()
	close(p.done)
}

// Reparent moves a still-open pending handle from one session to
// another, preserving the at-most-one invariant. Returns false when
// the source has nothing pending or the target is busy.
func (t *PendingTable) Reparent(fromSessionID, toSessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[fromSessionID]
	if !ok {
		return false
	}
	if _, busy := t.entries[toSessionID]; busy {
		return false
	}
	delete(t.entries, fromSessionID)
	p.SessionID = toSessionID
	t.entries[toSessionID] = p
	return true
}

// Len returns the number of in-flight operations.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
