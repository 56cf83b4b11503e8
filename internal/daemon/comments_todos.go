package daemon

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/review"
	"github.com/amux-dev/amux/internal/todo"
)

type commentsListResponse struct {
	Comments []review.LineComment `json:"comments"`
}

type addCommentRequest struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
	ID     string `json:"id"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Body   string `json:"body"`
}

// commentsHandler handles POST /v1/comments and GET /v1/comments?repo_id=&branch=.
func (s *Server) commentsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req addCommentRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		c := review.LineComment{
			ID:        req.ID,
			Path:      req.Path,
			Line:      req.Line,
			Body:      req.Body,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.comments.Add(r.Context(), req.RepoID, req.Branch, c); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, c)
	case http.MethodGet:
		repoID := r.URL.Query().Get("repo_id")
		branch := r.URL.Query().Get("branch")
		comments, err := s.comments.List(r.Context(), repoID, branch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, commentsListResponse{Comments: comments})
	default:
		s.methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

type resolveCommentRequest struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
}

// commentByIDHandler handles POST /v1/comments/{id}/resolve and
// DELETE /v1/comments/{id}?repo_id=&branch=.
func (s *Server) commentByIDHandler(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/comments/")
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

	if len(parts) == 2 && parts[1] == "resolve" {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, http.MethodPost)
			return
		}
		var req resolveCommentRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.comments.Resolve(r.Context(), req.RepoID, req.Branch, id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			s.methodNotAllowed(w, http.MethodDelete)
			return
		}
		repoID := r.URL.Query().Get("repo_id")
		branch := r.URL.Query().Get("branch")
		if err := s.comments.Delete(r.Context(), repoID, branch, id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeError(w, amuxerr.ErrNotFound)
}

type todosListResponse struct {
	Todos []todo.Item `json:"todos"`
}

type addTodoRequest struct {
	RepoID string `json:"repo_id"`
	ID     string `json:"id"`
	Text   string `json:"text"`
}

// todosHandler handles POST /v1/todos and GET /v1/todos?repo_id=.
func (s *Server) todosHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req addTodoRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		item := todo.Item{ID: req.ID, Text: req.Text, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
		if err := s.todos.Add(r.Context(), req.RepoID, item); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, item)
	case http.MethodGet:
		repoID := r.URL.Query().Get("repo_id")
		items, err := s.todos.List(r.Context(), repoID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, todosListResponse{Todos: items})
	default:
		s.methodNotAllowed(w, http.MethodPost, http.MethodGet)
	}
}

type setTodoDoneRequest struct {
	RepoID string `json:"repo_id"`
	Done   bool   `json:"done"`
}

// todoByIDHandler handles POST /v1/todos/{id}/done and
// DELETE /v1/todos/{id}?repo_id=.
func (s *Server) todoByIDHandler(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/v1/todos/")
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

	if len(parts) == 2 && parts[1] == "done" {
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, http.MethodPost)
			return
		}
		var req setTodoDoneRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.todos.SetDone(r.Context(), req.RepoID, id, req.Done); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			s.methodNotAllowed(w, http.MethodDelete)
			return
		}
		repoID := r.URL.Query().Get("repo_id")
		if err := s.todos.Delete(r.Context(), repoID, id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeError(w, amuxerr.ErrNotFound)
}
