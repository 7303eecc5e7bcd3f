package configuration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eugenenazirov/streamfx/internal/settings"
)

func TestWatchReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeSettings(t, path, "mode: initial\n")

	// The watcher goroutine may log after the test returns, so no zaptest logger here.
	cfg, err := New(path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	_, err = cfg.Watch(ctx, 20*time.Millisecond, func(data *settings.Data) {
		select {
		case changed <- data.String("mode", ""):
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	external := settings.FromMap(map[string]any{"mode": "external"})
	if err := external.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	select {
	case mode := <-changed:
		if mode != "external" {
			t.Fatalf("expected reloaded mode external, got %q", mode)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected watcher to reload the configuration")
	}

	if got := cfg.Get().String("mode", ""); got != "external" {
		t.Fatalf("expected shared handle to be updated, got %q", got)
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeSettings(t, path, "mode: initial\n")

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	if _, err := cfg.Watch(ctx, 20*time.Millisecond, func(*settings.Data) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	writeSettings(t, filepath.Join(dir, "unrelated.yaml"), "mode: other\n")

	select {
	case <-changed:
		t.Fatalf("expected unrelated file to be ignored")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchIgnoresOwnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeSettings(t, path, "mode: initial\n")

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	if _, err := cfg.Watch(ctx, 50*time.Millisecond, func(*settings.Data) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	if err := cfg.Get().Set("a", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cfg.Get().Set("b", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case <-changed:
		t.Fatalf("expected own save not to trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}

	if !cfg.Get().Has("b") {
		t.Fatalf("expected edit made after Save to survive")
	}
	if got := cfg.Get().Int("a", 0); got != 1 {
		t.Fatalf("expected saved field to remain, got %d", got)
	}
}

func TestWatchReloadsExternalWriteAfterOwnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	if _, err := cfg.Watch(ctx, 20*time.Millisecond, func(data *settings.Data) {
		select {
		case changed <- data.String("mode", ""):
		default:
		}
	}); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}

	external := settings.FromMap(map[string]any{"mode": "external"})
	if err := external.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	select {
	case mode := <-changed:
		if mode != "external" {
			t.Fatalf("expected reloaded mode external, got %q", mode)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected external write to be reloaded")
	}
}

func TestWatchDoneClosesAfterCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := New(path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done, err := cfg.Watch(ctx, 20*time.Millisecond, nil)
	if err != nil {
		cancel()
		t.Fatalf("Watch returned error: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected watcher to stop after cancel")
	}
}
