package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("[edits]\ndebounce = \"100ms\"\n"), 0o644))

	reloaded := make(chan *Config, 16)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[edits]\ndebounce = \"250ms\"\n\n[diagnostics]\nnaming_convention = true\n"), 0o644))

	// A reload can observe the truncated file first; wait for the final one.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Edits.Debounce != 250*time.Millisecond {
				continue
			}
			assert.True(t, cfg.Diagnostics.NamingConvention)
			return
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0o644))

	reloaded := make(chan *Config, 16)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("unexpected reload")
	case <-time.After(100 * time.Millisecond):
	}
	w.Stop()
	w.Stop()
}
