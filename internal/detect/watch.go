package detect

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch rescans files as they change instead of waiting for the next
// detection cycle. It blocks until ctx is canceled. Paths must exist when
// the watch starts.
func (d *Detector) Watch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	d.log.Info().Strs("paths", paths).Msg("file watcher started")

	extensions := d.extensions()
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("file watcher stopped")
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !hasExtension(event.Name, extensions) {
				continue
			}
			if _, err := d.ScanFile(event.Name); err != nil {
				d.log.Debug().Err(err).Str("file", event.Name).Msg("change-triggered scan failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn().Err(err).Msg("watcher error")
		}
	}
}
