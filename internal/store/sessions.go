// Package store provides per-session-file persistence with an index,
// the file-backed mode of the session store facade.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chatkit-ai/chatkit/internal/logging"
	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// ErrNotFound is returned when a session is not in the store.
var ErrNotFound = storage.ErrNotFound

// IndexEntry summarizes one stored session without loading its body.
type IndexEntry struct {
	SessionID       string `json:"sessionId"`
	CreationDate    int64  `json:"creationDate"`
	LastMessageDate int64  `json:"lastMessageDate,omitempty"`
	Title           string `json:"title,omitempty"`
	RequestCount    int    `json:"requestCount"`
}

// index is the persisted index document.
type index struct {
	Version  int          `json:"version"`
	Entries  []IndexEntry `json:"entries"`
	Migrated bool         `json:"migrated,omitempty"`
}

// LegacyProvider supplies sessions from the single-blob store for the
// lazy migration to per-file storage.
type LegacyProvider func(ctx context.Context) ([]*types.SerializedSession, error)

// SessionStore persists one file per session plus an index document,
// partitioned by storage scope.
type SessionStore struct {
	storage *storage.Storage
	scope   string
	mu      sync.Mutex
}

// New creates a session store for a scope.
func New(st *storage.Storage, scope string) *SessionStore {
	return &SessionStore{storage: st, scope: scope}
}

func (s *SessionStore) sessionPath(id string) []string {
	return []string{"sessions", s.scope, id}
}

func (s *SessionStore) indexPath() []string {
	return []string{"sessions", s.scope + ".index"}
}

// StoreSessions writes the given sessions and refreshes the index.
func (s *SessionStore) StoreSessions(ctx context.Context, list []*types.SerializedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex(ctx)
	if err != nil {
		return err
	}

	for _, sess := range list {
		if err := s.storage.Put(ctx, s.sessionPath(sess.SessionID), sess); err != nil {
			return fmt.Errorf("failed to store session %s: %w", sess.SessionID, err)
		}
		upsertEntry(idx, IndexEntry{
			SessionID:       sess.SessionID,
			CreationDate:    sess.CreationDate,
			LastMessageDate: sess.LastMessageDate,
			Title:           sess.Title(),
			RequestCount:    len(sess.Requests),
		})
	}

	return s.writeIndex(ctx, idx)
}

// ReadSession loads one session, reviving structured references.
func (s *SessionStore) ReadSession(ctx context.Context, id string) (*types.SerializedSession, error) {
	data, err := s.storage.GetRaw(ctx, s.sessionPath(id))
	if err != nil {
		return nil, err
	}
	sess, err := types.ReviveSession(data)
	if err != nil {
		return nil, fmt.Errorf("failed to revive session %s: %w", id, err)
	}
	return sess, nil
}

// DeleteSession removes one session and its index entry.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.sessionPath(id)); err != nil {
		return err
	}

	idx, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	removeEntry(idx, id)
	return s.writeIndex(ctx, idx)
}

// ClearAllSessions removes every stored session in this scope.
func (s *SessionStore) ClearAllSessions(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.storage.List(ctx, []string{"sessions", s.scope})
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.storage.Delete(ctx, s.sessionPath(id)); err != nil {
			return err
		}
	}

	idx, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	idx.Entries = nil
	return s.writeIndex(ctx, idx)
}

// GetIndex returns index entries sorted by creation date descending.
func (s *SessionStore) GetIndex(ctx context.Context) ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]IndexEntry, len(idx.Entries))
	copy(entries, idx.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreationDate > entries[j].CreationDate
	})
	return entries, nil
}

// IsSessionEmpty reports whether a stored session has no requests,
// answered from the index without loading the body.
func (s *SessionStore) IsSessionEmpty(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range idx.Entries {
		if e.SessionID == id {
			return e.RequestCount == 0, nil
		}
	}
	return false, ErrNotFound
}

// HasSessions reports whether any session is stored in this scope.
func (s *SessionStore) HasSessions(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex(ctx)
	if err != nil {
		return false
	}
	return len(idx.Entries) > 0
}

// MigrateDataIfNeeded imports sessions from the legacy single-blob
// store on first use. The migration runs once; the index records it.
func (s *SessionStore) MigrateDataIfNeeded(ctx context.Context, legacy LegacyProvider) error {
	s.mu.Lock()
	idx, err := s.readIndex(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if idx.Migrated {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sessions, err := legacy(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("legacy read failed: %w", err)
	}

	if len(sessions) > 0 {
		if err := s.StoreSessions(ctx, sessions); err != nil {
			return err
		}
		logging.Info().Int("count", len(sessions)).Str("scope", s.scope).
			Msg("migrated sessions to file storage")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err = s.readIndex(ctx)
	if err != nil {
		return err
	}
	idx.Migrated = true
	return s.writeIndex(ctx, idx)
}

func (s *SessionStore) readIndex(ctx context.Context) (*index, error) {
	var idx index
	err := s.storage.Get(ctx, s.indexPath(), &idx)
	if errors.Is(err, storage.ErrNotFound) {
		return &index{Version: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *SessionStore) writeIndex(ctx context.Context, idx *index) error {
	if idx.Version == 0 {
		idx.Version = 1
	}
	return s.storage.Put(ctx, s.indexPath(), idx)
}

func upsertEntry(idx *index, e IndexEntry) {
	for i := range idx.Entries {
		if idx.Entries[i].SessionID == e.SessionID {
			idx.Entries[i] = e
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
}

func removeEntry(idx *index, id string) {
	for i := range idx.Entries {
		if idx.Entries[i].SessionID == id {
			idx.Entries = append(idx.Entries[:i], idx.Entries[i+1:]...)
			return
		}
	}
}
