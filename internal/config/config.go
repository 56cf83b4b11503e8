package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the daemon's runtime configuration: spec §6's persisted state
// layout plus the knobs spec §9 leaves open (scrollback capacity, queue
// depths). Adapted from the teacher's flat Config struct (same shape: a
// plain value struct with a DefaultConfig() constructor), re-pointed at
// amux's own paths and renamed fields.
type Config struct {
	SocketPath string `toml:"socket_path"`
	BaseDir    string `toml:"base_dir"`
	AuditDB    string `toml:"audit_db_path"`
	LogDir     string `toml:"log_dir"`

	Session SessionConfig `toml:"session"`
	Attach  AttachConfig  `toml:"attach"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// SessionConfig bounds a session's in-memory resources.
type SessionConfig struct {
	ScrollbackCapacityBytes int `toml:"scrollback_capacity_bytes"`
	BroadcastQueueBytes     int `toml:"broadcast_queue_bytes"`
}

// AttachConfig bounds the attach protocol's framing.
type AttachConfig struct {
	MaxFrameBytes int `toml:"max_frame_bytes"`
}

// DaemonConfig controls process-level behavior.
type DaemonConfig struct {
	EventQueueDepth  int           `toml:"event_queue_depth"`
	ShutdownGrace    time.Duration `toml:"shutdown_grace"`
	ConfigReloadable bool          `toml:"config_reloadable"`
}

// DefaultConfig returns amux's defaults: a 1 MiB scrollback (spec §9 open
// question c), a 256 KiB broadcaster queue, and the daemon's standard
// ~/.amux layout.
func DefaultConfig() Config {
	base := defaultBaseDir()
	return Config{
		SocketPath: defaultSocketPath(base),
		BaseDir:    base,
		AuditDB:    filepath.Join(base, "audit.db"),
		LogDir:     filepath.Join(base, "logs"),
		Session: SessionConfig{
			ScrollbackCapacityBytes: 1 << 20,
			BroadcastQueueBytes:     256 << 10,
		},
		Attach: AttachConfig{
			MaxFrameBytes: 1 << 20,
		},
		Daemon: DaemonConfig{
			EventQueueDepth:  256,
			ShutdownGrace:    2 * time.Second,
			ConfigReloadable: true,
		},
	}
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".amux"
	}
	return filepath.Join(home, ".amux")
}

func defaultSocketPath(base string) string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "amux", "amuxd.sock")
	}
	return filepath.Join(base, "amuxd.sock")
}
