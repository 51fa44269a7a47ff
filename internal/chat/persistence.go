package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/internal/store"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// sessionBlob is the single-document persisted form: every session for
// a scope in one versioned envelope.
type sessionBlob struct {
	Version int               `json:"version"`
	Entries []json.RawMessage `json:"entries"`
}

func (o *Orchestrator) blobPath() []string {
	return []string{"chat", o.scope}
}

// readBlobSessions reads and revives every session in the blob. Also
// serves as the legacy provider for the file-store migration.
func (o *Orchestrator) readBlobSessions(ctx context.Context) ([]*types.SerializedSession, error) {
	raw, err := o.storage.GetRaw(ctx, o.blobPath())
	if err != nil {
		return nil, err
	}

	var blob sessionBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("corrupt session blob: %w", err)
	}

	out := make([]*types.SerializedSession, 0, len(blob.Entries))
	for _, entry := range blob.Entries {
		sess, err := types.ReviveSession(entry)
		if err != nil {
			// One bad entry must not lose the rest.
			o.log.Warn().Err(err).Msg("skipping unrevivable session entry")
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (o *Orchestrator) readBlobMap(ctx context.Context) (map[string]*types.SerializedSession, error) {
	list, err := o.readBlobSessions(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*types.SerializedSession, len(list))
	for _, s := range list {
		m[s.SessionID] = s
	}
	return m, nil
}

func (o *Orchestrator) writeBlob(ctx context.Context, list []*types.SerializedSession) error {
	blob := sessionBlob{Version: types.SerializationVersion}
	for _, s := range list {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to serialize session %s: %w", s.SessionID, err)
		}
		blob.Entries = append(blob.Entries, raw)
	}
	return o.storage.Put(ctx, o.blobPath(), &blob)
}

// liveDurableSerialized snapshots the live sessions eligible for
// persistence: those whose location survives a window close.
func (o *Orchestrator) liveDurableSerialized() ([]*types.SerializedSession, error) {
	o.mu.RLock()
	live := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		live = append(live, s)
	}
	o.mu.RUnlock()

	var out []*types.SerializedSession
	for _, s := range live {
		if s.Disposed() || !s.Location().Durable() {
			continue
		}
		ser, err := s.ToSerializable()
		if err != nil {
			return nil, err
		}
		out = append(out, ser)
	}
	return out, nil
}

// SaveState persists the eligible session set. In file mode each
// session gets its own document; in blob mode the whole set is merged
// against a fresh read of the blob so concurrent windows do not
// clobber each other.
func (o *Orchestrator) SaveState(ctx context.Context) error {
	live, err := o.liveDurableSerialized()
	if err != nil {
		return err
	}

	if o.fileStore != nil {
		withRequests := live[:0:0]
		for _, s := range live {
			if len(s.Requests) > 0 {
				withRequests = append(withRequests, s)
			}
		}
		if len(withRequests) > 0 {
			if err := o.fileStore.StoreSessions(ctx, withRequests); err != nil {
				return err
			}
		}
		o.markLivePersisted(withRequests)
		return nil
	}

	if o.storage == nil {
		return nil
	}

	// Reconcile against the latest on-disk state, never the snapshot
	// loaded at open.
	fresh, err := o.readBlobMap(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	o.mu.Lock()
	merged := reconcileSessions(fresh, o.persisted, live, o.deletedIDs, o.createdIDs, o.cfg.MaxPersistedSessions)
	o.mu.Unlock()

	if err := o.writeBlob(ctx, merged); err != nil {
		return err
	}

	o.mu.Lock()
	o.persisted = make(map[string]*types.SerializedSession, len(merged))
	for _, s := range merged {
		o.persisted[s.SessionID] = s
	}
	o.mu.Unlock()

	o.markLivePersisted(live)
	return nil
}

func (o *Orchestrator) markLivePersisted(saved []*types.SerializedSession) {
	for _, ser := range saved {
		if s, ok := o.GetSession(ser.SessionID); ok {
			s.markPersisted()
		}
	}
}

// ClearSession disposes a live session. Sessions with history are
// persisted on the way out; empty ones are removed from storage so
// they never resurface in history.
func (o *Orchestrator) ClearSession(ctx context.Context, sessionID string) error {
	sess, ok := o.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	// A session is never removed with a request still in flight: fire
	// cancellation, then wait for the dispatch to fully exit before the
	// session can be disposed.
	if p, inFlight := o.pending.Get(sessionID); inFlight {
		o.pending.Cancel(sessionID)
		<-p.Done()
	}

	empty := len(sess.GetRequests()) == 0
	durable := sess.Location().Durable()

	if durable {
		if empty {
			if err := o.deletePersisted(ctx, sessionID); err != nil {
				return err
			}
		} else {
			ser, err := sess.ToSerializable()
			if err != nil {
				return err
			}
			if err := o.storePersisted(ctx, ser); err != nil {
				return err
			}
		}
	}

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	sess.Dispose()
	return nil
}

func (o *Orchestrator) storePersisted(ctx context.Context, ser *types.SerializedSession) error {
	if o.fileStore != nil {
		return o.fileStore.StoreSessions(ctx, []*types.SerializedSession{ser})
	}
	// Round-trip through JSON so the in-memory snapshot matches what a
	// later revive would produce.
	raw, err := json.Marshal(ser)
	if err != nil {
		return err
	}
	revived, err := types.ReviveSession(raw)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.persisted[ser.SessionID] = revived
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) deletePersisted(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	delete(o.persisted, sessionID)
	o.deletedIDs[sessionID] = struct{}{}
	o.mu.Unlock()

	if o.fileStore != nil {
		err := o.fileStore.DeleteSession(ctx, sessionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

// HistoryItem is one row of the session-history listing.
type HistoryItem struct {
	SessionID       string `json:"sessionId"`
	Title           string `json:"title"`
	CreationDate    int64  `json:"creationDate"`
	LastMessageDate int64  `json:"lastMessageDate,omitempty"`
	// IsActive marks sessions currently live in this window.
	IsActive bool `json:"isActive"`
}

// GetHistory lists live durable sessions plus stored sessions that are
// not currently live, newest first.
func (o *Orchestrator) GetHistory(ctx context.Context) ([]HistoryItem, error) {
	o.mu.RLock()
	liveIDs := make(map[string]struct{}, len(o.sessions))
	items := make([]HistoryItem, 0, len(o.sessions))
	for id, s := range o.sessions {
		if !s.Location().Durable() {
			continue
		}
		liveIDs[id] = struct{}{}
		items = append(items, HistoryItem{
			SessionID:       id,
			Title:           s.Title(),
			CreationDate:    s.CreationDate().UnixMilli(),
			LastMessageDate: s.LastMessageDate().UnixMilli(),
			IsActive:        true,
		})
	}
	o.mu.RUnlock()

	if o.fileStore != nil {
		idx, err := o.fileStore.GetIndex(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range idx {
			if _, live := liveIDs[e.SessionID]; live || e.RequestCount == 0 {
				continue
			}
			items = append(items, HistoryItem{
				SessionID:       e.SessionID,
				Title:           e.Title,
				CreationDate:    e.CreationDate,
				LastMessageDate: e.LastMessageDate,
			})
		}
	} else {
		o.mu.RLock()
		for id, s := range o.persisted {
			if _, live := liveIDs[id]; live || len(s.Requests) == 0 {
				continue
			}
			items = append(items, HistoryItem{
				SessionID:       id,
				Title:           s.Title(),
				CreationDate:    s.CreationDate,
				LastMessageDate: s.LastMessageDate,
			})
		}
		o.mu.RUnlock()
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreationDate > items[j].CreationDate
	})
	return items, nil
}

// RemoveHistoryEntry deletes one session from history, disposing it
// first when live.
func (o *Orchestrator) RemoveHistoryEntry(ctx context.Context, sessionID string) error {
	if _, live := o.GetSession(sessionID); live {
		if p, inFlight := o.pending.Get(sessionID); inFlight {
			o.pending.Cancel(sessionID)
			<-p.Done()
		}
		o.mu.Lock()
		sess := o.sessions[sessionID]
		delete(o.sessions, sessionID)
		o.mu.Unlock()
		if sess != nil {
			sess.Dispose()
		}
	}
	return o.deletePersisted(ctx, sessionID)
}

// ClearAllHistoryEntries removes every history entry for this scope.
func (o *Orchestrator) ClearAllHistoryEntries(ctx context.Context) error {
	items, err := o.GetHistory(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := o.RemoveHistoryEntry(ctx, item.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// IsPersistedSessionEmpty reports whether a stored session has no
// requests, without rehydrating it.
func (o *Orchestrator) IsPersistedSessionEmpty(ctx context.Context, sessionID string) (bool, error) {
	if o.fileStore != nil {
		return o.fileStore.IsSessionEmpty(ctx, sessionID)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.persisted[sessionID]
	if !ok {
		return false, store.ErrNotFound
	}
	return len(s.Requests) == 0, nil
}

// HasSessions reports whether any session exists, live or stored.
func (o *Orchestrator) HasSessions(ctx context.Context) bool {
	o.mu.RLock()
	if len(o.sessions) > 0 {
		o.mu.RUnlock()
		return true
	}
	persistedCount := len(o.persisted)
	o.mu.RUnlock()

	if o.fileStore != nil {
		return o.fileStore.HasSessions(ctx)
	}
	return persistedCount > 0
}
