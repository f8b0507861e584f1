package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/budbridge-io/budbridge/internal/config"
)

const watcherInitialYAML = `
server:
  log_level: info
`

const watcherUpdatedYAML = `
server:
  log_level: debug
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "budbridge.yaml")
	writeConfigFile(t, path, watcherInitialYAML)

	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("initial log level = %q, want info", got)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "budbridge.yaml")
	writeConfigFile(t, path, watcherInitialYAML)

	var mu sync.Mutex
	var gotDiff config.ConfigDiff
	changed := make(chan struct{})

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotDiff = config.Diff(old, new)
		mu.Unlock()
		close(changed)
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime actually differs on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, watcherUpdatedYAML)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the config change")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotDiff.LogLevelChanged {
		t.Error("diff should report a log level change")
	}
	if gotDiff.NewLogLevel != config.LogDebug {
		t.Errorf("new log level = %q, want debug", gotDiff.NewLogLevel)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("current log level = %q, want debug", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "budbridge.yaml")
	writeConfigFile(t, path, watcherInitialYAML)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		t.Error("onChange fired for an invalid config")
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, "server:\n  log_level: bogus\n")

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("current log level = %q, want the pre-change info", got)
	}
}
