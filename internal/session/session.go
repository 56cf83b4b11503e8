// Package session implements the Session lifecycle unit from spec §3-§4.4:
// the struct coupling {id, repo, branch, provider, process, buffer,
// broadcaster, metadata, state-machine}.
//
// State shape is grounded on the teacher's internal/model.CanonicalState +
// StatePrecedence (a closed enum with a defined total order), repurposed
// here from pane-observation states to PTY-lifecycle states.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/amux-dev/amux/internal/broadcaster"
	"github.com/amux-dev/amux/internal/ptysup"
	"github.com/amux-dev/amux/internal/scrollback"
)

// State is a session's lifecycle stage (spec §3). Transitions are
// monotonic: Starting -> Running -> {Exited(code) | Killed}.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateKilled   State = "killed"
)

// transitions enumerates the legal monotonic moves; anything not listed is
// an invariant violation (amuxerr.ErrInternal) if attempted.
var transitions = map[State]map[State]bool{
	StateStarting: {StateRunning: true, StateExited: true, StateKilled: true},
	StateRunning:  {StateExited: true, StateKilled: true},
	StateExited:   {},
	StateKilled:   {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

// Info is the client-visible snapshot of a Session (SessionInfo in spec).
type Info struct {
	ID           string
	RepoID       string
	Branch       string
	WorktreePath string
	Provider     string
	DisplayName  string
	Cols         int
	Rows         int
	State        State
	ExitCode     *int
	StartedAt    time.Time
	PID          int
}

// Session is the unit of lifecycle: one PTY, one scrollback, one
// broadcaster (spec §3).
type Session struct {
	ID           string
	RepoID       string
	Branch       string
	WorktreePath string
	Provider     string

	mu          sync.Mutex
	displayName string
	cols        int
	rows        int
	state       State
	exitCode    *int
	startedAt   time.Time

	Scrollback  *scrollback.Buffer
	Broadcaster *broadcaster.Broadcaster
	pty         *ptysup.Supervisor

	// outputMu serializes each PTY chunk's Scrollback.Append+Broadcaster.Publish
	// pair against SubscribeForReplay, so a new attach's (subscribe, snapshot)
	// always lands entirely before or entirely after a given chunk — never in
	// the middle of it. Without that, a chunk could land in both the replay
	// snapshot and a subsequent Live frame, or in neither.
	outputMu sync.Mutex
}

// New constructs a Session around an already-spawned PTY supervisor. It
// does not itself spawn the process; internal/registry.CreateSession does
// that so it can roll back cleanly on failure (spec §4.8 transactional
// registry mutation).
func New(id, repoID, branch, worktreePath, provider, displayName string, cols, rows int, cap int, sup *ptysup.Supervisor) *Session {
	sb := scrollback.New(cap)
	s := &Session{
		ID:           id,
		RepoID:       repoID,
		Branch:       branch,
		WorktreePath: worktreePath,
		Provider:     provider,
		displayName:  displayName,
		cols:         cols,
		rows:         rows,
		state:        StateStarting,
		startedAt:    time.Now().UTC(),
		Scrollback:   sb,
		pty:          sup,
	}
	s.Broadcaster = broadcaster.New(broadcaster.DefaultQueueBytes, sb.Snapshot)
	return s
}

// Start launches the PTY read loop in its own goroutine and marks the
// session Running once it has done so. onExit is invoked exactly once,
// from the read-loop goroutine, after the child has been reaped.
func (s *Session) Start(onExit func(code int)) {
	s.mu.Lock()
	s.transitionLocked(StateRunning)
	s.mu.Unlock()

	go func() {
		s.pty.Run(func(chunk []byte) {
			s.outputMu.Lock()
			s.Scrollback.Append(chunk)
			s.Broadcaster.Publish(chunk)
			s.outputMu.Unlock()
		})
		code := s.pty.ExitCode()
		s.mu.Lock()
		s.exitCode = &code
		// A session explicitly Killed stays Killed even though the PTY also
		// reports an exit code; otherwise record the PTY's own exit.
		if s.state != StateKilled {
			s.transitionLocked(StateExited)
		}
		s.mu.Unlock()
		s.Broadcaster.Close()
		if onExit != nil {
			onExit(code)
		}
	}()
}

// SubscribeForReplay atomically subscribes to live output and captures the
// scrollback snapshot that precedes it (spec §4.5 P2: Replay followed by
// Live must be a contiguous, non-overlapping suffix of the agent's byte
// stream). Subscribing and snapshotting both happen under outputMu, the
// same lock each PTY chunk's Append+Publish pair holds, so this call is
// always fully ordered against any given chunk rather than racing it.
func (s *Session) SubscribeForReplay() (*broadcaster.Subscriber, []byte) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	sub := s.Broadcaster.Subscribe()
	snap := s.Scrollback.Snapshot()
	return sub, snap
}

func (s *Session) transitionLocked(to State) {
	if !CanTransition(s.state, to) {
		panic(fmt.Sprintf("session: illegal transition %s -> %s", s.state, to))
	}
	s.state = to
}

// Write forwards input bytes to the PTY (spec §4.2).
func (s *Session) Write(p []byte) error {
	return s.pty.Write(p)
}

// Resize forwards a resize to the PTY and updates the session's recorded
// dimensions.
func (s *Session) Resize(cols, rows int) error {
	if err := s.pty.Resize(cols, rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Kill transitions the session to Killed and asks the PTY supervisor to
// terminate the child. Idempotent: calling twice is a no-op on the second
// call.
func (s *Session) Kill() {
	s.mu.Lock()
	if s.state == StateKilled || s.state == StateExited {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StateKilled)
	s.mu.Unlock()
	s.pty.Kill()
}

// Rename updates the display name (spec §4.4 RenameSession).
func (s *Session) Rename(name string) {
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
}

// Info returns a point-in-time snapshot for clients.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		RepoID:       s.RepoID,
		Branch:       s.Branch,
		WorktreePath: s.WorktreePath,
		Provider:     s.Provider,
		DisplayName:  s.displayName,
		Cols:         s.cols,
		Rows:         s.rows,
		State:        s.state,
		ExitCode:     s.exitCode,
		StartedAt:    s.startedAt,
		PID:          s.pty.PID(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DisplayName returns the current display name under lock.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// Done exposes the underlying PTY's exit signal so callers (e.g.
// DestroySession) can wait for the read loop to finalize.
func (s *Session) Done() <-chan struct{} {
	return s.pty.Done()
}
