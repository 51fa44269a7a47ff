package chat

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/chatkit-ai/chatkit/internal/event"
)

// WatchStorage observes the session blob on disk and publishes a
// storage-changed event when another window writes it. The watcher
// stops when ctx is cancelled. No-op in file-store mode, where the
// index is re-read on demand instead.
func (o *Orchestrator) WatchStorage(ctx context.Context) error {
	if o.fileStore != nil || o.storage == nil {
		return nil
	}

	blobFile := o.storage.FilePath(o.blobPath())
	dir := filepath.Dir(blobFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create storage watcher: %w", err)
	}
	// Watch the directory: atomic rename-into-place never fires a
	// Write on the watched file itself.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != blobFile {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				o.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).
					Msg("session storage changed externally")
				event.Publish(event.Event{
					Type: event.StorageExternal,
					Data: event.StorageExternallyChangedData{Path: ev.Name},
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				o.log.Warn().Err(err).Msg("storage watcher error")
			}
		}
	}()

	return nil
}
