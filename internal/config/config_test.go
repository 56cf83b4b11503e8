package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigFillsStandardPaths(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.SocketPath)
	require.NotEmpty(t, cfg.BaseDir)
	require.Equal(t, 1<<20, cfg.Session.ScrollbackCapacityBytes)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Session.ScrollbackCapacityBytes, cfg.Session.ScrollbackCapacityBytes)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	toml := `
base_dir = "/tmp/custom-amux"

[session]
scrollback_capacity_bytes = 2097152
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-amux", cfg.BaseDir)
	require.Equal(t, 2097152, cfg.Session.ScrollbackCapacityBytes)
	require.NotEmpty(t, cfg.SocketPath) // untouched fields keep defaults
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`base_dir = "/tmp/a"`), 0o644))

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(path, func(c Config) { reloaded <- c })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(150 * time.Millisecond) // clear debounce window from file creation
	require.NoError(t, os.WriteFile(path, []byte(`base_dir = "/tmp/b"`), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, "/tmp/b", cfg.BaseDir)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload notification")
	}
}
