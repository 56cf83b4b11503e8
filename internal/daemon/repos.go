package daemon

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/gitrepo"
)

// RepoResponse is the wire shape of a gitrepo.Repo.
type RepoResponse struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

func repoResponse(r gitrepo.Repo) RepoResponse {
	return RepoResponse{ID: r.ID, Path: r.Path, DisplayName: r.DisplayName}
}

// WorktreeResponse is the wire shape of a gitrepo.Worktree.
type WorktreeResponse struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
	IsMain bool   `json:"is_main"`
}

func worktreeResponse(w gitrepo.Worktree) WorktreeResponse {
	return WorktreeResponse{RepoID: w.RepoID, Branch: w.Branch, Path: w.Path, IsMain: w.IsMain}
}

type addRepoRequest struct {
	Path string `json:"path"`
}

type reposListResponse struct {
	Repos []RepoResponse `json:"repos"`
}

// reposHandler handles POST /v1/repos and GET /v1/repos.
func (s *Server) reposHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req addRepoRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		repo, err := s.repos.AddRepo(req.Path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.events.Publish(eventbus.Event{Kind: eventbus.RepoAdded, RepoID: repo.ID})
		s.writeJSON(w, http.StatusCreated, repoResponse(repo))
	case http.MethodGet:
		repos := s.repos.ListRepos()
		out := make([]RepoResponse, 0, len(repos))
		for _, r := range repos {
			out = append(out, repoResponse(r))
		}
		s.writeJSON(w, http.StatusOK, reposListResponse{Repos: out})
	default:
		s.methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

// repoByIDHandler dispatches /v1/repos/{id} and /v1/repos/{id}/worktrees[/{branch}].
func (s *Server) repoByIDHandler(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/repos/")
	parts := strings.SplitN(strings.Trim(tail, "/"), "/", 3)
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, amuxerr.ErrNotFound)
		return
	}
	repoID, err := url.PathUnescape(parts[0])
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch {
	case len(parts) == 1:
		s.repoDeleteHandler(w, r, repoID)
	case len(parts) >= 2 && parts[1] == "worktrees":
		var branch string
		if len(parts) == 3 {
			branch, err = url.PathUnescape(parts[2])
			if err != nil {
				s.writeError(w, err)
				return
			}
		}
		s.worktreesHandler(w, r, repoID, branch)
	default:
		s.writeError(w, amuxerr.ErrNotFound)
	}
}

func (s *Server) repoDeleteHandler(w http.ResponseWriter, r *http.Request, repoID string) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, http.MethodDelete)
		return
	}
	anyLive := s.reg.AnyLiveOnRepo(repoID)
	if err := s.repos.RemoveRepo(repoID, anyLive); err != nil {
		s.writeError(w, err)
		return
	}
	s.events.Publish(eventbus.Event{Kind: eventbus.RepoRemoved, RepoID: repoID})
	w.WriteHeader(http.StatusNoContent)
}

type createWorktreeRequest struct {
	Branch     string `json:"branch"`
	BaseBranch string `json:"base_branch"`
}

type worktreesListResponse struct {
	Worktrees []WorktreeResponse `json:"worktrees"`
}

func (s *Server) worktreesHandler(w http.ResponseWriter, r *http.Request, repoID, branch string) {
	switch {
	case branch == "" && r.Method == http.MethodPost:
		var req createWorktreeRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		wt, err := s.repos.CreateWorktree(r.Context(), repoID, req.Branch, req.BaseBranch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.events.Publish(eventbus.Event{Kind: eventbus.WorktreeAdded, RepoID: repoID, Branch: wt.Branch})
		s.writeJSON(w, http.StatusCreated, worktreeResponse(wt))
	case branch == "" && r.Method == http.MethodGet:
		wts, err := s.repos.ListWorktrees(r.Context(), repoID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]WorktreeResponse, 0, len(wts))
		for _, wt := range wts {
			out = append(out, worktreeResponse(wt))
		}
		s.writeJSON(w, http.StatusOK, worktreesListResponse{Worktrees: out})
	case branch != "" && r.Method == http.MethodDelete:
		if s.reg.AnyLiveOnWorktree(repoID, branch) {
			s.writeError(w, amuxerr.ErrPreconditionFailed)
			return
		}
		if err := s.repos.RemoveWorktree(r.Context(), repoID, branch); err != nil {
			s.writeError(w, err)
			return
		}
		s.events.Publish(eventbus.Event{Kind: eventbus.WorktreeRemoved, RepoID: repoID, Branch: branch})
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w, http.MethodPost, http.MethodGet, http.MethodDelete)
	}
}
