// Package registry implements the process-wide session_id -> Session map
// plus secondary indices by repo and worktree path (spec §2-4, §4.4).
//
// Locking discipline follows spec §5 verbatim: a single mutex held only for
// O(1) map operations, never across a blocking call (PTY spawn, broadcaster
// publish, filesystem I/O all happen outside the lock).
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/ptysup"
	"github.com/amux-dev/amux/internal/session"
)

// Registry is the process-wide session table.
type Registry struct {
	mu    sync.Mutex
	byID  map[string]*session.Session
	byKey map[string]map[string]bool // repoID -> set of session IDs
	events *eventbus.Bus
}

// New creates an empty Registry publishing lifecycle events on bus.
func New(bus *eventbus.Bus) *Registry {
	return &Registry{
		byID:   map[string]*session.Session{},
		byKey:  map[string]map[string]bool{},
		events: bus,
	}
}

// SpawnFunc spawns the PTY for a new session; injected so tests can stub it
// out without a real PTY, and so CreateSession stays transactional: if
// SpawnFunc fails, nothing is added to the registry (spec §4.8).
type SpawnFunc func(cols, rows int) (*ptysup.Supervisor, error)

// CreateSessionParams bundles CreateSession's inputs.
type CreateSessionParams struct {
	RepoID       string
	Branch       string
	WorktreePath string
	Provider     string
	DisplayName  string
	Cols, Rows   int
	ScrollbackCap int
	Spawn        SpawnFunc
}

// CreateSession constructs and registers a new session, spawning its PTY
// via params.Spawn. On spawn failure the registry is left untouched and
// ErrSpawnFailed is returned (transactional per spec §4.8).
func (r *Registry) CreateSession(params CreateSessionParams) (*session.Session, error) {
	r.mu.Lock()
	for id := range r.byKey[params.RepoID] {
		if s, ok := r.byID[id]; ok && s.Branch == params.Branch && s.DisplayName() == params.DisplayName && params.DisplayName != "" {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: session name %q already used on (%s,%s)", amuxerr.ErrConflict, params.DisplayName, params.RepoID, params.Branch)
		}
	}
	r.mu.Unlock()

	sup, err := params.Spawn(params.Cols, params.Rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", amuxerr.ErrSpawnFailed, err)
	}

	id := uuid.NewString()
	name := params.DisplayName
	if name == "" {
		name = id
	}
	sess := session.New(id, params.RepoID, params.Branch, params.WorktreePath, params.Provider, name, params.Cols, params.Rows, params.ScrollbackCap, sup)

	r.mu.Lock()
	if r.byKey[params.RepoID] == nil {
		r.byKey[params.RepoID] = map[string]bool{}
	}
	r.byKey[params.RepoID][id] = true
	r.byID[id] = sess
	r.mu.Unlock()

	sess.Start(func(code int) {
		r.events.Publish(eventbus.Event{Kind: eventbus.SessionExited, SessionID: id, ExitCode: &code})
	})

	r.events.Publish(eventbus.Event{Kind: eventbus.SessionCreated, SessionID: id, RepoID: params.RepoID, Branch: params.Branch})
	return sess, nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// List returns a snapshot of every live session's Info, optionally filtered
// to one repo (repoID == "" lists all).
func (r *Registry) List(repoID string) []session.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Info, 0, len(r.byID))
	for id, s := range r.byID {
		if repoID != "" && !r.byKey[repoID][id] {
			continue
		}
		out = append(out, s.Info())
	}
	return out
}

// ListByWorktree returns live sessions bound to the given repo+branch.
func (r *Registry) ListByWorktree(repoID, branch string) []session.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []session.Info{}
	for _, s := range r.byID {
		if s.RepoID == repoID && s.Branch == branch {
			out = append(out, s.Info())
		}
	}
	return out
}

// AnyLiveOnWorktree reports whether any session on (repoID, branch) is in
// Starting or Running (spec invariant I5, property P4).
func (r *Registry) AnyLiveOnWorktree(repoID, branch string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.RepoID == repoID && s.Branch == branch {
			switch s.State() {
			case session.StateStarting, session.StateRunning:
				return true
			}
		}
	}
	return false
}

// AnyLiveOnRepo reports whether any session anywhere in repoID is live,
// used by RemoveRepo (spec §9 open question b).
func (r *Registry) AnyLiveOnRepo(repoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byKey[repoID] {
		if s, ok := r.byID[id]; ok {
			switch s.State() {
			case session.StateStarting, session.StateRunning:
				return true
			}
		}
	}
	return false
}

// DestroySession kills the session, waits for its read loop to finalize,
// then removes it from the registry (spec §4.4, invariant I3). Idempotent:
// a second call returns ErrNotFound (spec R2).
func (r *Registry) DestroySession(id string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %s", amuxerr.ErrNotFound, id)
	}

	s.Kill()
	<-s.Done()

	r.mu.Lock()
	delete(r.byID, id)
	delete(r.byKey[s.RepoID], id)
	r.mu.Unlock()

	r.events.Publish(eventbus.Event{Kind: eventbus.SessionDestroyed, SessionID: id, RepoID: s.RepoID, Branch: s.Branch})
	return nil
}

// RenameSession updates display_name, enforcing no duplicate name within
// (repo, branch).
func (r *Registry) RenameSession(id, newName string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s", amuxerr.ErrNotFound, id)
	}
	for otherID := range r.byKey[s.RepoID] {
		if otherID == id {
			continue
		}
		other := r.byID[otherID]
		if other.Branch == s.Branch && other.DisplayName() == newName {
			r.mu.Unlock()
			return fmt.Errorf("%w: session name %q already used on (%s,%s)", amuxerr.ErrConflict, newName, s.RepoID, s.Branch)
		}
	}
	r.mu.Unlock()

	s.Rename(newName)
	r.events.Publish(eventbus.Event{Kind: eventbus.SessionRenamed, SessionID: id, Name: newName})
	return nil
}

// ResizeSession forwards to the session's PTY.
func (r *Registry) ResizeSession(id string, cols, rows int) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: session %s", amuxerr.ErrNotFound, id)
	}
	return s.Resize(cols, rows)
}

// Count returns the number of live sessions (test/metrics hook, property
// P1).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Shutdown kills every live session and waits for their read loops to
// finalize, per spec §5's shutdown sequence. The wait has no deadline of
// its own; each Kill escalates to SIGKILL after ptysup.KillGrace.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Kill()
	}
	for _, s := range sessions {
		<-s.Done()
	}
}
