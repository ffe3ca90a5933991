package sde

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the SDE directory and reloads a data file when it is
// replaced. Extract updates ship as whole-file swaps, so Create, Write,
// and Rename all end in a reload of the named file. Blocks until the
// context is cancelled; intended for a background goroutine.
func (d *Data) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.dir); err != nil {
		return fmt.Errorf("watching %s: %w", d.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			d.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			// fsnotify errors are non-fatal; the affected table just
			// keeps serving the last good load.
			d.logger.Warn("static data watcher error", slog.Any("error", err))
		}
	}
}

func (d *Data) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	name := filepath.Base(event.Name)
	switch name {
	case typesFile, stationsFile, systemsFile, regionsFile:
	default:
		return
	}

	if err := d.loadFile(name); err != nil {
		// Keep the previous table on a bad reload.
		d.logger.Warn("static data reload failed",
			slog.String("file", name),
			slog.Any("error", err),
		)
	}
}
