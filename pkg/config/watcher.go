package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
)

// Watcher resets a resolver whenever its overrides file changes, so the next
// Resolve picks up the new values. Editors frequently rewrite the file via
// rename, so the parent directory is watched rather than the file itself.
type Watcher struct {
	resolver *Resolver
	path     string
	logger   *observability.Logger
}

// NewWatcher creates a watcher for the resolver's overrides file.
func NewWatcher(resolver *Resolver, path string, logger *observability.Logger) *Watcher {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Watcher{resolver: resolver, path: path, logger: logger}
}

// Watch blocks until ctx is done, resetting the resolver on every write,
// create or rename of the overrides file.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher init failed: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config watcher add %s: %w", dir, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				w.logger.Debugf("ignoring change to %s", event.Name)
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.WithField("path", w.path).Info("config overrides changed, resetting snapshot")
			w.resolver.Reset()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}
