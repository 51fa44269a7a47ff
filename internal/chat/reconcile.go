package chat

import (
	"sort"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// reconcileSessions merges this window's view of persisted sessions
// with a fresh read of the blob, so several windows sharing one scope
// converge without clobbering each other.
//
// Rules, applied in order:
//  1. start from the fresh on-disk state;
//  2. drop sessions this window deleted;
//  3. a locally-known session wins over the on-disk copy when it has
//     strictly more requests, or when it was created in this window
//     and is absent from disk;
//  4. live sessions are layered last and win unconditionally;
//  5. sort newest-created first and truncate to the cap.
//
// Request count is a coarse recency proxy: a window that edited a
// request without changing the count can lose to another window's
// copy. That trade-off keeps the merge deterministic without vector
// clocks.
func reconcileSessions(
	fresh, local map[string]*types.SerializedSession,
	live []*types.SerializedSession,
	deleted, created map[string]struct{},
	maxSessions int,
) []*types.SerializedSession {
	merged := make(map[string]*types.SerializedSession, len(fresh))
	for id, s := range fresh {
		merged[id] = s
	}

	for id := range deleted {
		delete(merged, id)
	}

	for id, loc := range local {
		if len(loc.Requests) == 0 {
			continue
		}
		if onDisk, ok := merged[id]; ok {
			if len(loc.Requests) > len(onDisk.Requests) {
				merged[id] = loc
			}
			continue
		}
		if _, isNew := created[id]; isNew {
			merged[id] = loc
		}
	}

	for _, s := range live {
		merged[s.SessionID] = s
	}

	out := make([]*types.SerializedSession, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreationDate != out[j].CreationDate {
			return out[i].CreationDate > out[j].CreationDate
		}
		return out[i].SessionID < out[j].SessionID
	})

	if maxSessions > 0 && len(out) > maxSessions {
		out = out[:maxSessions]
	}
	return out
}
