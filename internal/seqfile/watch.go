package seqfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch validates path once, then again every time it is written or
// created, calling fn with the result (nil when valid). It
// watches the containing directory so editors that save by rename are
// seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, v *Validator, logger *slog.Logger, fn func(error)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		var err error
		if v, err = NewValidator(); err != nil {
			return err
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	logger.Info("watching sequence file", "path", abs)

	fn(v.ValidateFile(abs))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("sequence file changed", "path", abs, "op", event.Op.String())
			fn(v.ValidateFile(abs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", "error", err)
		}
	}
}
