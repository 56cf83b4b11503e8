// Package amuxclient is the RPC client for amuxd's Unix-socket HTTP
// surface (spec §6), used by internal/clicmd.
//
// Dial idiom (custom DialContext over a unix socket, "http://unix" base
// URL, decode api.ErrorResponse on 4xx/5xx into a retryable RequestError)
// is kept almost verbatim from the teacher's internal/appclient/client.go;
// the method set is replaced with amux's own repo/session/diff/comment/todo
// surface.
package amuxclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amux-dev/amux/internal/api"
)

// Client dials amuxd over a Unix domain socket.
type Client struct {
	baseURL    string
	socketPath string

	client       *http.Client
	unaryTimeout time.Duration
}

const defaultUnaryTimeout = 10 * time.Second

// New builds a Client dialing socketPath for every request.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	c := NewWithClient("http://unix", &http.Client{Transport: transport})
	c.socketPath = socketPath
	return c
}

// NewWithClient builds a Client against an arbitrary http.Client, for tests
// that substitute an httptest server or in-process handler.
func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

// RequestError is returned for any non-2xx amuxd response.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Code)
}

// Retryable reports whether a client might reasonably retry the request
// (rate limiting, timeouts, server errors).
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

type Repo struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

type Worktree struct {
	RepoID string `json:"repo_id"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
	IsMain bool   `json:"is_main"`
}

type Session struct {
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

// AddRepo registers path (or returns the existing registration, spec P5).
func (c *Client) AddRepo(ctx context.Context, path string) (Repo, error) {
	body, err := c.request(ctx, http.MethodPost, "/v1/repos", nil, map[string]string{"path": path})
	if err != nil {
		return Repo{}, err
	}
	var out Repo
	return out, unmarshal(body, &out)
}

// ListRepos lists every registered repo.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/repos", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Repos []Repo `json:"repos"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Repos, nil
}

// RemoveRepo unregisters a repo (fails if any session still references it).
func (c *Client) RemoveRepo(ctx context.Context, repoID string) error {
	_, err := c.request(ctx, http.MethodDelete, "/v1/repos/"+url.PathEscape(repoID), nil, nil)
	return err
}

// CreateWorktree materializes a new worktree for branch, optionally based
// on baseBranch.
func (c *Client) CreateWorktree(ctx context.Context, repoID, branch, baseBranch string) (Worktree, error) {
	path := "/v1/repos/" + url.PathEscape(repoID) + "/worktrees"
	body, err := c.request(ctx, http.MethodPost, path, nil, map[string]string{
		"branch": branch, "base_branch": baseBranch,
	})
	if err != nil {
		return Worktree{}, err
	}
	var out Worktree
	return out, unmarshal(body, &out)
}

// ListWorktrees lists every worktree git knows about for repoID.
func (c *Client) ListWorktrees(ctx context.Context, repoID string) ([]Worktree, error) {
	path := "/v1/repos/" + url.PathEscape(repoID) + "/worktrees"
	body, err := c.request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Worktrees []Worktree `json:"worktrees"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Worktrees, nil
}

// RemoveWorktree unlinks the worktree for branch (fails if any session is
// still live on it).
func (c *Client) RemoveWorktree(ctx context.Context, repoID, branch string) error {
	path := "/v1/repos/" + url.PathEscape(repoID) + "/worktrees/" + url.PathEscape(branch)
	_, err := c.request(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// CreateSessionRequest mirrors internal/daemon's createSessionRequest.
type CreateSessionRequest struct {
	RepoID      string `json:"repo_id"`
	Branch      string `json:"branch"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	Cols        int    `json:"cols"`
	Rows        int    `json:"rows"`
}

// CreateSession spawns a new agent process behind a PTY.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	body, err := c.request(ctx, http.MethodPost, "/v1/sessions", nil, req)
	if err != nil {
		return Session{}, err
	}
	var out Session
	return out, unmarshal(body, &out)
}

// ListSessions lists sessions, optionally scoped to a repo.
func (c *Client) ListSessions(ctx context.Context, repoID string) ([]Session, error) {
	query := url.Values{}
	if repoID != "" {
		query.Set("repo_id", repoID)
	}
	body, err := c.request(ctx, http.MethodGet, "/v1/sessions", query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// DestroySession kills and unregisters a session.
func (c *Client) DestroySession(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil)
	return err
}

// RenameSession updates a session's display name.
func (c *Client) RenameSession(ctx context.Context, id, displayName string) error {
	path := "/v1/sessions/" + url.PathEscape(id) + "/rename"
	_, err := c.request(ctx, http.MethodPost, path, nil, map[string]string{"display_name": displayName})
	return err
}

// ResizeSession resizes a session's PTY.
func (c *Client) ResizeSession(ctx context.Context, id string, cols, rows int) error {
	path := "/v1/sessions/" + url.PathEscape(id) + "/resize"
	_, err := c.request(ctx, http.MethodPost, path, nil, map[string]int{"cols": cols, "rows": rows})
	return err
}

// DiffFile is one changed file in a worktree's diff against its base.
type DiffFile struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// DiffFiles lists the files changed in repoID/branch.
func (c *Client) DiffFiles(ctx context.Context, repoID, branch string) ([]DiffFile, error) {
	path := "/v1/diff/" + url.PathEscape(repoID) + "/" + url.PathEscape(branch)
	body, err := c.request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Files []DiffFile `json:"files"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// FileDiff returns the raw unified diff text for a single file.
func (c *Client) FileDiff(ctx context.Context, repoID, branch, filePath string) (string, error) {
	path := "/v1/diff/" + url.PathEscape(repoID) + "/" + url.PathEscape(branch) + "/file"
	query := url.Values{}
	query.Set("path", filePath)
	body, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Status mirrors internal/gitrepo.Status.
type Status struct {
	Branch         string `json:"branch"`
	AheadCount     int    `json:"ahead_count"`
	BehindCount    int    `json:"behind_count"`
	ModifiedCount  int    `json:"modified_count"`
	UntrackedCount int    `json:"untracked_count"`
	StagedCount    int    `json:"staged_count"`
	IsDirty        bool   `json:"is_dirty"`
	HasUpstream    bool   `json:"has_upstream"`
}

// Status fetches the git status summary for repoID/branch.
func (c *Client) Status(ctx context.Context, repoID, branch string) (Status, error) {
	path := "/v1/status/" + url.PathEscape(repoID) + "/" + url.PathEscape(branch)
	body, err := c.request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return Status{}, err
	}
	var out Status
	return out, unmarshal(body, &out)
}

// Stage stages a single path in repoID/branch.
func (c *Client) Stage(ctx context.Context, repoID, branch, path string) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/stage", nil, map[string]string{
		"repo_id": repoID, "branch": branch, "path": path,
	})
	return err
}

// Unstage unstages a single path in repoID/branch.
func (c *Client) Unstage(ctx context.Context, repoID, branch, path string) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/unstage", nil, map[string]string{
		"repo_id": repoID, "branch": branch, "path": path,
	})
	return err
}

// StageAll stages every changed path in repoID/branch.
func (c *Client) StageAll(ctx context.Context, repoID, branch string) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/stage-all", nil, map[string]string{
		"repo_id": repoID, "branch": branch,
	})
	return err
}

// UnstageAll unstages every staged path in repoID/branch.
func (c *Client) UnstageAll(ctx context.Context, repoID, branch string) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/unstage-all", nil, map[string]string{
		"repo_id": repoID, "branch": branch,
	})
	return err
}

const attachUpgradeToken = "amux-attach-v1"

// AttachSession dials socketPath directly (bypassing the pooled http.Client
// transport, since the connection is held open for the session's
// lifetime) and performs the HTTP-Upgrade handshake for
// GET /v1/attach/{id}. On success the returned net.Conn is ready for
// protocol.WriteFrame/ReadFrame traffic; the caller owns closing it.
//
// Grounded on the teacher's internal/daemon/tty_v2_test.go client-side
// dial (net.Dial("unix", ...) + a hand-written upgrade request + reading
// the "101" status line before switching to framed traffic).
func (c *Client) AttachSession(ctx context.Context, sessionID string) (net.Conn, error) {
	if c.socketPath == "" {
		return nil, fmt.Errorf("amuxclient: AttachSession requires a client built with New(socketPath)")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial unix: %w", err)
	}

	req := "GET /v1/attach/" + url.PathEscape(sessionID) + " HTTP/1.1\r\n" +
		"Host: unix\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: " + attachUpgradeToken + "\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("write upgrade request: %w", err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("read status line: %w", err)
	}
	if !strings.Contains(statusLine, "101") {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("attach upgrade refused: %s", strings.TrimSpace(statusLine))
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			conn.Close() //nolint:errcheck
			return nil, fmt.Errorf("read upgrade headers: %w", err)
		}
		if line == "\r\n" {
			break
		}
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn lets bytes already pulled into br by the header scan above
// flow back out through Read, so no frame bytes the server sent right
// after the 101 response are lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// Event is the wire shape of internal/eventbus.Event, decoded from the
// ndjson stream.
type Event struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	RepoID    string `json:"repo_id,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// SubscribeEvents opens GET /v1/events and invokes onEvent for each decoded
// line until ctx is canceled or the connection ends.
func (c *Client) SubscribeEvents(ctx context.Context, onEvent func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return &RequestError{StatusCode: resp.StatusCode, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode)}
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("decode event: %w", err)
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return err
			}
		}
	}
}

// LineComment mirrors internal/review.LineComment.
type LineComment struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	Resolved  bool   `json:"resolved"`
}

// AddComment anchors a new review comment to repoID/branch.
func (c *Client) AddComment(ctx context.Context, repoID, branch, id, path string, line int, body string) (LineComment, error) {
	out, err := c.request(ctx, http.MethodPost, "/v1/comments", nil, map[string]any{
		"repo_id": repoID, "branch": branch, "id": id, "path": path, "line": line, "body": body,
	})
	if err != nil {
		return LineComment{}, err
	}
	var comment LineComment
	return comment, unmarshal(out, &comment)
}

// ListComments lists every comment for repoID/branch, sorted by path+line.
func (c *Client) ListComments(ctx context.Context, repoID, branch string) ([]LineComment, error) {
	query := url.Values{}
	query.Set("repo_id", repoID)
	query.Set("branch", branch)
	body, err := c.request(ctx, http.MethodGet, "/v1/comments", query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Comments []LineComment `json:"comments"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// ResolveComment marks a comment resolved.
func (c *Client) ResolveComment(ctx context.Context, repoID, branch, id string) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/comments/"+url.PathEscape(id)+"/resolve", nil, map[string]string{
		"repo_id": repoID, "branch": branch,
	})
	return err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, repoID, branch, id string) error {
	query := url.Values{}
	query.Set("repo_id", repoID)
	query.Set("branch", branch)
	_, err := c.request(ctx, http.MethodDelete, "/v1/comments/"+url.PathEscape(id), query, nil)
	return err
}

// TodoItem mirrors internal/todo.Item.
type TodoItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at"`
}

// AddTodo adds a todo item scoped to repoID.
func (c *Client) AddTodo(ctx context.Context, repoID, id, text string) (TodoItem, error) {
	body, err := c.request(ctx, http.MethodPost, "/v1/todos", nil, map[string]string{
		"repo_id": repoID, "id": id, "text": text,
	})
	if err != nil {
		return TodoItem{}, err
	}
	var out TodoItem
	return out, unmarshal(body, &out)
}

// ListTodos lists every todo item for repoID.
func (c *Client) ListTodos(ctx context.Context, repoID string) ([]TodoItem, error) {
	query := url.Values{}
	query.Set("repo_id", repoID)
	body, err := c.request(ctx, http.MethodGet, "/v1/todos", query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Todos []TodoItem `json:"todos"`
	}
	if err := unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out.Todos, nil
}

// SetTodoDone toggles a todo item's completion state.
func (c *Client) SetTodoDone(ctx context.Context, repoID, id string, done bool) error {
	_, err := c.request(ctx, http.MethodPost, "/v1/todos/"+url.PathEscape(id)+"/done", nil, map[string]any{
		"repo_id": repoID, "done": done,
	})
	return err
}

// DeleteTodo removes a todo item.
func (c *Client) DeleteTodo(ctx context.Context, repoID, id string) error {
	query := url.Values{}
	query.Set("repo_id", repoID)
	_, err := c.request(ctx, http.MethodDelete, "/v1/todos/"+url.PathEscape(id), query, nil)
	return err
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
			return nil, &RequestError{StatusCode: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}

func unmarshal(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
