package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/config"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/gitrepo"
	"github.com/amux-dev/amux/internal/providers"
	"github.com/amux-dev/amux/internal/registry"
	"github.com/amux-dev/amux/internal/review"
	"github.com/amux-dev/amux/internal/todo"
)

// catAdapter builds argv for /bin/cat, standing in for a real agent CLI so
// session tests can spawn a real, cheap, long-running process.
type catAdapter struct{}

func (catAdapter) Name() string             { return "cat" }
func (catAdapter) DisplayName() string      { return "cat" }
func (catAdapter) AvailableModels() []string { return nil }
func (catAdapter) DefaultModel() string     { return "" }
func (catAdapter) SupportsResume() bool     { return false }
func (catAdapter) BuildCommand(providers.Config) ([]string, error) {
	return []string{"/bin/cat"}, nil
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	cmd := exec.Command("git", "init", "-q", "-b", "main", dir)
	require.NoError(t, cmd.Run())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	cmd = exec.Command("git", "-C", dir, "add", "a.txt")
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "-C", dir, "-c", "user.email=t@t.com", "-c", "user.name=t", "commit", "-q", "-m", "init")
	require.NoError(t, cmd.Run())

	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "amuxd.sock")

	bus := eventbus.New(0)
	srv := NewServer(cfg, Deps{
		Registry:  registry.New(bus),
		Repos:     gitrepo.New(t.TempDir()),
		Providers: providers.NewRegistry("cat", catAdapter{}),
		Events:    bus,
		Audit:     nil,
		Comments:  review.New(t.TempDir()),
		Todos:     todo.New(t.TempDir()),
	}, nil)
	return srv, dir
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func deleteReq(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := getJSON(t, srv, "/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAddRepoAndListRepos(t *testing.T) {
	srv, dir := newTestServer(t)
	rec := postJSON(t, srv, "/v1/repos", addRepoRequest{Path: dir})
	require.Equal(t, http.StatusCreated, rec.Code)
	repo := decode[RepoResponse](t, rec)
	require.NotEmpty(t, repo.ID)

	rec = getJSON(t, srv, "/v1/repos")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[reposListResponse](t, rec)
	require.Len(t, list.Repos, 1)

	// P5: idempotent on the same canonical path.
	rec = postJSON(t, srv, "/v1/repos", addRepoRequest{Path: dir})
	require.Equal(t, http.StatusCreated, rec.Code)
	again := decode[RepoResponse](t, rec)
	require.Equal(t, repo.ID, again.ID)
}

func addTestRepo(t *testing.T, srv *Server, dir string) RepoResponse {
	t.Helper()
	rec := postJSON(t, srv, "/v1/repos", addRepoRequest{Path: dir})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[RepoResponse](t, rec)
}

func TestWorktreeCreateListRemove(t *testing.T) {
	srv, dir := newTestServer(t)
	repo := addTestRepo(t, srv, dir)

	rec := postJSON(t, srv, "/v1/repos/"+repo.ID+"/worktrees", createWorktreeRequest{Branch: "feature"})
	require.Equal(t, http.StatusCreated, rec.Code)
	wt := decode[WorktreeResponse](t, rec)
	require.Equal(t, "feature", wt.Branch)

	rec = getJSON(t, srv, "/v1/repos/"+repo.ID+"/worktrees")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[worktreesListResponse](t, rec)
	require.GreaterOrEqual(t, len(list.Worktrees), 1)

	rec = deleteReq(t, srv, "/v1/repos/"+repo.ID+"/worktrees/feature")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateListDestroySession(t *testing.T) {
	srv, dir := newTestServer(t)
	// main is already checked out at the repo root; no CreateWorktree call
	// needed (WorktreePath resolves it via git's own worktree list).
	repo := addTestRepo(t, srv, dir)

	rec := postJSON(t, srv, "/v1/sessions", createSessionRequest{
		RepoID: repo.ID, Branch: "main", Provider: "cat", Cols: 80, Rows: 24,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[SessionResponse](t, rec)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "running", sess.State)

	rec = getJSON(t, srv, "/v1/sessions?repo_id="+repo.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[sessionsListResponse](t, rec)
	require.Len(t, list.Sessions, 1)

	// R2: destroying twice is not-found the second time.
	rec = deleteReq(t, srv, "/v1/sessions/"+sess.ID)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = deleteReq(t, srv, "/v1/sessions/"+sess.ID)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionUnknownRepoNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv, "/v1/sessions", createSessionRequest{
		RepoID: "nope", Branch: "main", Provider: "cat",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStageUnstageViaHandlers(t *testing.T) {
	srv, dir := newTestServer(t)
	// main is already checked out at the repo root; no CreateWorktree call
	// needed (WorktreePath resolves it via git's own worktree list).
	repo := addTestRepo(t, srv, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644))

	rec := getJSON(t, srv, "/v1/status/"+repo.ID+"/main")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, srv, "/v1/stage", stageRequest{RepoID: repo.ID, Branch: "main", Path: "b.txt"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = postJSON(t, srv, "/v1/unstage", stageRequest{RepoID: repo.ID, Branch: "main", Path: "b.txt"})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTodoAddDoneDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv, "/v1/todos", addTodoRequest{RepoID: "r1", ID: "t1", Text: "write docs"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, srv, "/v1/todos/t1/done", setTodoDoneRequest{RepoID: "r1", Done: true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = getJSON(t, srv, "/v1/todos?repo_id=r1")
	list := decode[todosListResponse](t, rec)
	require.Len(t, list.Todos, 1)
	require.True(t, list.Todos[0].Done)

	rec = deleteReq(t, srv, "/v1/todos/t1?repo_id=r1")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCommentAddResolveDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postJSON(t, srv, "/v1/comments", addCommentRequest{RepoID: "r1", Branch: "main", ID: "c1", Path: "a.go", Line: 3, Body: "why"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, srv, "/v1/comments/c1/resolve", resolveCommentRequest{RepoID: "r1", Branch: "main"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = getJSON(t, srv, "/v1/comments?repo_id=r1&branch=main")
	list := decode[commentsListResponse](t, rec)
	require.Len(t, list.Comments, 1)
	require.True(t, list.Comments[0].Resolved)

	rec = deleteReq(t, srv, "/v1/comments/c1?repo_id=r1&branch=main")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEventsStreamReceivesRepoAdded(t *testing.T) {
	srv, dir := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		srv.httpSrv.Handler.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the subscriber goroutine time to register before publishing.
	time.Sleep(20 * time.Millisecond)
	addTestRepo(t, srv, dir)

	require.Eventually(t, func() bool {
		return bytes.Contains(rec.Body.Bytes(), []byte(`"RepoAdded"`))
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events handler did not exit after context cancel")
	}
}

func TestMethodNotAllowedSetsAllowHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/v1/repos", nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Allow"))
}
