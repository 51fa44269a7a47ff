package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatkit-ai/chatkit/internal/storage"
	"github.com/chatkit-ai/chatkit/pkg/types"
)

// transferDoc is the persisted queue of cross-scope transfers. It lives
// outside any scope partition so every window can see it.
type transferDoc struct {
	Version int                    `json:"version"`
	Entries []types.TransferRecord `json:"entries"`
}

func transferPath() []string {
	return []string{"transfers", "pending"}
}

// TransferSession records a session for pickup by the window that next
// opens the target workspace. Expired records are pruned on the way.
func (o *Orchestrator) TransferSession(ctx context.Context, sessionID string, toWorkspace types.URI, inputValue, mode string) error {
	sess, ok := o.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if o.storage == nil {
		return errors.New("transfers require storage")
	}

	ser, err := sess.ToSerializable()
	if err != nil {
		return err
	}

	doc, err := o.readTransfers(ctx)
	if err != nil {
		return err
	}
	doc.Entries = pruneExpired(doc.Entries, o.cfg.TransferExpirationMS, time.Now())
	doc.Entries = append(doc.Entries, types.TransferRecord{
		Chat:        *ser,
		TimestampMS: time.Now().UnixMilli(),
		ToWorkspace: toWorkspace,
		InputValue:  inputValue,
		Location:    sess.Location(),
		Mode:        mode,
	})
	return o.storage.Put(ctx, transferPath(), doc)
}

// ClaimTransfer removes and returns the first unexpired transfer
// addressed to the given workspace. Returns (nil, nil) when none is
// waiting; a record is claimed at most once.
func (o *Orchestrator) ClaimTransfer(ctx context.Context, workspace types.URI) (*types.TransferRecord, error) {
	if o.storage == nil {
		return nil, nil
	}

	doc, err := o.readTransfers(ctx)
	if err != nil {
		return nil, err
	}
	doc.Entries = pruneExpired(doc.Entries, o.cfg.TransferExpirationMS, time.Now())

	target := workspace.String()
	for i, rec := range doc.Entries {
		if rec.ToWorkspace.String() != target {
			continue
		}
		claimed := rec
		doc.Entries = append(doc.Entries[:i], doc.Entries[i+1:]...)
		if err := o.storage.Put(ctx, transferPath(), doc); err != nil {
			return nil, err
		}
		return &claimed, nil
	}

	// Persist the pruning even when nothing was claimed.
	if err := o.storage.Put(ctx, transferPath(), doc); err != nil {
		return nil, err
	}
	return nil, nil
}

func (o *Orchestrator) readTransfers(ctx context.Context) (*transferDoc, error) {
	var doc transferDoc
	err := o.storage.Get(ctx, transferPath(), &doc)
	if errors.Is(err, storage.ErrNotFound) {
		return &transferDoc{Version: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	return &doc, nil
}

func pruneExpired(entries []types.TransferRecord, expirationMS int64, now time.Time) []types.TransferRecord {
	if expirationMS <= 0 {
		expirationMS = types.DefaultTransferExpirationMS
	}
	cutoff := now.UnixMilli() - expirationMS
	kept := entries[:0]
	for _, e := range entries {
		if e.TimestampMS >= cutoff {
			kept = append(kept, e)
		}
	}
	return kept
}
