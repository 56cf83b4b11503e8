package daemon

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/providers"
	"github.com/amux-dev/amux/internal/ptysup"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/session"
)

// SessionResponse is the wire shape of session.Info.
type SessionResponse struct {
	ID           string    `json:"id"`
	RepoID       string    `json:"repo_id"`
	Branch       string    `json:"branch"`
	WorktreePath string    `json:"worktree_path"`
	Provider     string    `json:"provider"`
	DisplayName  string    `json:"display_name"`
	Cols         int       `json:"cols"`
	Rows         int       `json:"rows"`
	State        string    `json:"state"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	PID          int       `json:"pid"`
}

func sessionResponse(info session.Info) SessionResponse {
	return SessionResponse{
		ID:           info.ID,
		RepoID:       info.RepoID,
		Branch:       info.Branch,
		WorktreePath: info.WorktreePath,
		Provider:     info.Provider,
		DisplayName:  info.DisplayName,
		Cols:         info.Cols,
		Rows:         info.Rows,
		State:        string(info.State),
		ExitCode:     info.ExitCode,
		StartedAt:    info.StartedAt,
		PID:          info.PID,
	}
}

type createSessionRequest struct {
	RepoID      string `json:"repo_id"`
	Branch      string `json:"branch"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	Cols        int    `json:"cols"`
	Rows        int    `json:"rows"`
}

type sessionsListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// sessionsHandler handles POST /v1/sessions and GET /v1/sessions.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		repoID := r.URL.Query().Get("repo_id")
		infos := s.reg.List(repoID)
		out := make([]SessionResponse, 0, len(infos))
		for _, info := range infos {
			out = append(out, sessionResponse(info))
		}
		s.writeJSON(w, http.StatusOK, sessionsListResponse{Sessions: out})
	default:
		s.methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.providers.ValidateModel(req.Provider, req.Model); err != nil {
		s.writeError(w, err)
		return
	}
	wtPath, err := s.repos.WorktreePath(r.Context(), req.RepoID, req.Branch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	spawn := func(cols, rows int) (*ptysup.Supervisor, error) {
		argv, err := s.providers.BuildCommand(req.Provider, providers.Config{Mode: providers.ModeNew, Model: req.Model})
		if err != nil {
			return nil, err
		}
		return ptysup.Spawn(ptysup.Spec{Command: argv, Dir: wtPath, Cols: cols, Rows: rows})
	}

	sess, err := s.reg.CreateSession(registry.CreateSessionParams{
		RepoID:        req.RepoID,
		Branch:        req.Branch,
		WorktreePath:  wtPath,
		Provider:      req.Provider,
		DisplayName:   req.DisplayName,
		Cols:          cols,
		Rows:          rows,
		ScrollbackCap: s.cfg.Session.ScrollbackCapacityBytes,
		Spawn:         spawn,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionResponse(sess.Info()))
}

type renameSessionRequest struct {
	DisplayName string `json:"display_name"`
}

type resizeSessionRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// sessionByIDHandler dispatches /v1/sessions/{id}[/rename|/resize].
func (s *Server) sessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(strings.Trim(tail, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, amuxerr.ErrNotFound)
		return
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			s.methodNotAllowed(w, http.MethodDelete)
			return
		}
		sess, ok := s.reg.Get(id)
		var repoID, branch string
		if ok {
			info := sess.Info()
			repoID, branch = info.RepoID, info.Branch
		}
		if err := s.reg.DestroySession(id); err != nil {
			s.writeError(w, err)
			return
		}
		s.events.Publish(eventbus.Event{Kind: eventbus.SessionDestroyed, SessionID: id, RepoID: repoID, Branch: branch})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch parts[1] {
	case "rename":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, http.MethodPost)
			return
		}
		var req renameSessionRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.reg.RenameSession(id, req.DisplayName); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "resize":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, http.MethodPost)
			return
		}
		var req resizeSessionRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.reg.ResizeSession(id, req.Cols, req.Rows); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, fmt.Errorf("%w: unknown session route", amuxerr.ErrNotFound))
	}
}
