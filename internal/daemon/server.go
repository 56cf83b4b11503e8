// Package daemon implements amuxd's HTTP-over-Unix-socket RPC surface
// (spec §6): unary handlers for repo/worktree/session CRUD and diff/status/
// staging, the bidirectional AttachSession upgrade, and the SubscribeEvents
// ndjson stream.
//
// Grounded on the teacher's internal/daemon/server.go: same Unix-socket
// lock-file/listen/chmod lifecycle, the same http.ServeMux + HandleFunc
// registration idiom, and the same writeJSON/writeError/methodNotAllowed
// response helpers. The route table itself is amux's own (spec §6), not
// the teacher's targets/panes/adapters surface.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/api"
	"github.com/amux-dev/amux/internal/audit"
	"github.com/amux-dev/amux/internal/config"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/gitrepo"
	"github.com/amux-dev/amux/internal/providers"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/review"
	"github.com/amux-dev/amux/internal/todo"
)

// Server owns the daemon's Unix-socket listener and every RPC handler.
type Server struct {
	cfg config.Config
	log *logrus.Entry

	reg       *registry.Registry
	repos     *gitrepo.Controller
	providers *providers.Registry
	events    *eventbus.Bus
	audit     *audit.Store
	comments  *review.Store
	todos     *todo.Store

	httpSrv  *http.Server
	listener net.Listener
	lockFile *os.File

	mu       sync.Mutex
	shutdown sync.Once
	shutErr  error
}

// Deps bundles Server's collaborators so tests can substitute fakes/stubs
// without reaching into unexported fields.
type Deps struct {
	Registry  *registry.Registry
	Repos     *gitrepo.Controller
	Providers *providers.Registry
	Events    *eventbus.Bus
	Audit     *audit.Store
	Comments  *review.Store
	Todos     *todo.Store
}

// NewServer wires a Server from cfg and deps, registering every route in
// spec §6's table.
func NewServer(cfg config.Config, deps Deps, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		cfg:       cfg,
		log:       log.WithField("component", "daemon"),
		reg:       deps.Registry,
		repos:     deps.Repos,
		providers: deps.Providers,
		events:    deps.Events,
		audit:     deps.Audit,
		comments:  deps.Comments,
		todos:     deps.Todos,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/repos", s.reposHandler)
	mux.HandleFunc("/v1/repos/", s.repoByIDHandler)
	mux.HandleFunc("/v1/sessions", s.sessionsHandler)
	mux.HandleFunc("/v1/sessions/", s.sessionByIDHandler)
	mux.HandleFunc("/v1/attach/", s.attachHandler)
	mux.HandleFunc("/v1/events", s.eventsHandler)
	mux.HandleFunc("/v1/diff/", s.diffHandler)
	mux.HandleFunc("/v1/status/", s.statusHandler)
	mux.HandleFunc("/v1/stage", s.stageHandler)
	mux.HandleFunc("/v1/unstage", s.unstageHandler)
	mux.HandleFunc("/v1/stage-all", s.stageAllHandler)
	mux.HandleFunc("/v1/unstage-all", s.unstageAllHandler)
	mux.HandleFunc("/v1/comments", s.commentsHandler)
	mux.HandleFunc("/v1/comments/", s.commentByIDHandler)
	mux.HandleFunc("/v1/todos", s.todosHandler)
	mux.HandleFunc("/v1/todos/", s.todoByIDHandler)

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start acquires the daemon lock, binds the Unix socket at cfg.SocketPath,
// and serves until ctx is canceled or Serve fails.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not a unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.WithField("socket", s.cfg.SocketPath).Info("listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Daemon.ShutdownGrace)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

// Shutdown stops accepting connections, kills every live session, and
// releases the socket/lock. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if s.reg != nil {
			s.reg.Shutdown()
		}
		s.mu.Lock()
		ln := s.listener
		s.listener = nil
		s.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutErr
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("amuxd already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
	})
}

// writeJSON encodes v as the response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encode response")
	}
}

// writeError maps err to an amuxerr code/status and writes a structured
// api.ErrorResponse body (spec §7).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := amuxerr.HTTPStatus(err)
	resp := api.ErrorResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    amuxerr.Code(err),
			Message: err.Error(),
		},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	resp := api.ErrorResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    "MethodNotAllowed",
			Message: "method not allowed",
		},
	}
	s.writeJSON(w, http.StatusMethodNotAllowed, resp)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", amuxerr.ErrProtocol, err)
	}
	return nil
}
