// Package amuxlog is the daemon's structured logger: a single
// *logrus.Logger, JSON-formatted, writing to ~/.amux/logs/daemon.log with
// stderr as a secondary sink in foreground mode.
//
// Grounded on grovetools-core/logging/logger.go's NewLogger: component-
// scoped logger, level from env var override, multi-writer file+stderr
// sink, lazily created log directory. Simplified to one process-wide
// logger (the daemon has a single log stream, unlike the teacher's
// per-component multi-tool setup) rather than a per-component map.
package amuxlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const envLevel = "AMUX_LOG_LEVEL"

var (
	mu     sync.Mutex
	logger *logrus.Logger
)

// Options configures New.
type Options struct {
	// Dir is the directory daemon.log is written into, usually
	// ~/.amux/logs. Empty disables the file sink (stderr only).
	Dir string
	// Foreground additionally writes to stderr, for `amuxd --foreground`.
	Foreground bool
	// Level is used when AMUX_LOG_LEVEL is unset (the env var overrides
	// it); empty defaults to "info".
	Level string
}

// New builds the daemon's *logrus.Logger and sets it as the package-wide
// default used by Get.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	levelStr := opts.Level
	if v := os.Getenv(envLevel); v != "" {
		levelStr = v
	}
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	var writers []io.Writer
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, "daemon.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}
	if opts.Foreground || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	l.SetOutput(io.MultiWriter(writers...))

	mu.Lock()
	logger = l
	mu.Unlock()
	return l, nil
}

// Get returns the package-wide logger, lazily falling back to a
// stderr-only logger at info level if New was never called (tests,
// library use outside amuxd).
func Get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// For returns a component-scoped *logrus.Entry, e.g. For("registry").
func For(component string) *logrus.Entry {
	return Get().WithField("component", component)
}
