// Command amuxd is the amux daemon: it owns the session registry, PTY
// supervision, and the Unix-socket RPC surface internal/daemon serves.
//
// Adapted from the teacher's cmd/agtmuxd/main.go: same flag-overlay startup
// (here on top of ~/.amux/config.toml, or DefaultConfig when the file is
// absent), same signal.NotifyContext shutdown wiring, same
// fatal() helper. The teacher's topology/reconcile/retention loops have no
// counterpart here (amux has no tmux-pane observer to reconcile); amuxd's
// startup instead wires the collaborators internal/daemon.Deps expects.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amux-dev/amux/internal/amuxlog"
	"github.com/amux-dev/amux/internal/audit"
	"github.com/amux-dev/amux/internal/config"
	"github.com/amux-dev/amux/internal/daemon"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/gitrepo"
	"github.com/amux-dev/amux/internal/providers"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/review"
	"github.com/amux-dev/amux/internal/todo"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		fatal(err)
	}
	foreground := flag.Bool("foreground", false, "also log to stderr (in addition to "+filepath.Join(cfg.LogDir, "daemon.log")+")")
	flag.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "UDS path for amuxd")
	flag.StringVar(&cfg.BaseDir, "base-dir", cfg.BaseDir, "root directory for worktrees, comments, and todos")
	flag.StringVar(&cfg.AuditDB, "audit-db", cfg.AuditDB, "SQLite path for the session event audit log")
	flag.Parse()

	log, err := amuxlog.New(amuxlog.Options{Dir: cfg.LogDir, Foreground: *foreground})
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	auditStore, err := audit.Open(ctx, cfg.AuditDB)
	if err != nil {
		fatal(err)
	}
	defer auditStore.Close() //nolint:errcheck

	bus := eventbus.New(cfg.Daemon.EventQueueDepth)
	go audit.Subscribe(ctx, bus, auditStore)

	deps := daemon.Deps{
		Registry:  registry.New(bus),
		Repos:     gitrepo.New(cfg.BaseDir),
		Providers: providers.DefaultRegistry(),
		Events:    bus,
		Audit:     auditStore,
		Comments:  review.New(filepath.Join(cfg.BaseDir, "reviews")),
		Todos:     todo.New(filepath.Join(cfg.BaseDir, "todos")),
	}

	srv := daemon.NewServer(cfg, deps, log)
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "amuxd: %v\n", err)
	os.Exit(1)
}
