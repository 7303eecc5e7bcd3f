package configuration

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eugenenazirov/streamfx/internal/settings"
)

// DefaultWatchDebounce collapses bursts of file events into one reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the settings whenever the file is rewritten by another
// process and invokes onChange with the shared handle afterwards. Events
// caused by this configuration's own Save are ignored. The parent directory
// is watched because atomic writers replace the file by rename.
//
// Watch returns once the watcher is registered. The returned channel is
// closed after the watcher has stopped, which happens when ctx is done.
func (c *Configuration) Watch(ctx context.Context, debounce time.Duration, onChange func(*settings.Data)) (<-chan struct{}, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch configuration directory: %w", err)
	}

	c.logger.Info("watching configuration file", zap.String("path", c.path))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.watchLoop(ctx, watcher, debounce, onChange)
	}()
	return done, nil
}

func (c *Configuration) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration, onChange func(*settings.Data)) {
	defer func() { _ = watcher.Close() }()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("configuration watcher stopped", zap.String("path", c.path))
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("configuration watcher error", zap.Error(err))

		case <-timer.C:
			if ctx.Err() != nil {
				return
			}
			reloaded, err := c.reloadIfChanged()
			if err != nil {
				c.logger.Warn("configuration reload failed, keeping current settings", zap.Error(err))
				continue
			}
			if !reloaded {
				c.logger.Debug("configuration file unchanged since last save", zap.String("path", c.path))
				continue
			}
			if onChange != nil {
				onChange(c.data)
			}
		}
	}
}
