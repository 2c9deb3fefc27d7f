package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce coalesces the burst of events most editors emit per save.
const WatchDebounce = 50 * time.Millisecond

// Watch reloads path whenever it is written or recreated and passes the new
// configuration to fn. Reload failures go to onErr, which may be nil, and
// leave the previous configuration in effect. Watch blocks until ctx is
// done.
//
// The parent directory is watched rather than the file so that editors
// which replace the file by rename keep triggering reloads.
func Watch(ctx context.Context, path string, fn func(*Config), onErr func(error)) error {
	if onErr == nil {
		onErr = func(error) {}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce.Reset(WatchDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onErr(err)

		case <-debounce.C:
			cfg, err := Load(abs)
			if err != nil {
				onErr(err)
				continue
			}
			fn(cfg)
		}
	}
}
