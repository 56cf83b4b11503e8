package daemon

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// pathRepoBranch splits a URL tail of the form "{repo}/{branch}[/...]".
func pathRepoBranch(tail string) (repo, branch string, rest []string, err error) {
	parts := strings.Split(strings.Trim(tail, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, amuxerr.ErrNotFound
	}
	repo, err = url.PathUnescape(parts[0])
	if err != nil {
		return "", "", nil, err
	}
	branch, err = url.PathUnescape(parts[1])
	if err != nil {
		return "", "", nil, err
	}
	return repo, branch, parts[2:], nil
}

type diffFileResponse struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

type diffFilesResponse struct {
	Files []diffFileResponse `json:"files"`
}

// diffHandler handles GET /v1/diff/{repo}/{branch} and
// GET /v1/diff/{repo}/{branch}/file?path=....
func (s *Server) diffHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	repoID, branch, rest, err := pathRepoBranch(strings.TrimPrefix(r.URL.Path, "/v1/diff/"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	dir, err := s.repos.WorktreePath(r.Context(), repoID, branch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(rest) == 1 && rest[0] == "file" {
		path := r.URL.Query().Get("path")
		if path == "" {
			s.writeError(w, amuxerr.ErrConflict)
			return
		}
		patch, err := s.repos.GetFileDiff(r.Context(), dir, path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(patch))
		return
	}

	files, err := s.repos.GetDiffFiles(r.Context(), dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]diffFileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, diffFileResponse{Path: f.Path, Status: f.Status})
	}
	s.writeJSON(w, http.StatusOK, diffFilesResponse{Files: out})
}

// statusHandler handles GET /v1/status/{repo}/{branch}.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	repoID, branch, _, err := pathRepoBranch(strings.TrimPrefix(r.URL.Path, "/v1/status/"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	dir, err := s.repos.WorktreePath(r.Context(), repoID, branch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.repos.GetStatus(r.Context(), dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type stageRequest struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

func (s *Server) resolveStageDir(w http.ResponseWriter, r *http.Request, req stageRequest) (string, bool) {
	dir, err := s.repos.WorktreePath(r.Context(), req.RepoID, req.Branch)
	if err != nil {
		s.writeError(w, err)
		return "", false
	}
	return dir, true
}

func (s *Server) stageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	dir, ok := s.resolveStageDir(w, r, req)
	if !ok {
		return
	}
	if err := s.repos.StageFile(r.Context(), dir, req.Path); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unstageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	dir, ok := s.resolveStageDir(w, r, req)
	if !ok {
		return
	}
	if err := s.repos.UnstageFile(r.Context(), dir, req.Path); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stageAllRequest struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
}

func (s *Server) stageAllHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stageAllRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	dir, err := s.repos.WorktreePath(r.Context(), req.RepoID, req.Branch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repos.StageAll(r.Context(), dir); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unstageAllHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req stageAllRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	dir, err := s.repos.WorktreePath(r.Context(), req.RepoID, req.Branch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repos.UnstageAll(r.Context(), dir); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
