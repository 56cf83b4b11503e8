package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/ptysup"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sup, err := ptysup.Spawn(ptysup.Spec{Command: []string{"/bin/cat"}, Cols: 80, Rows: 24})
	require.NoError(t, err)
	return New("s1", "r1", "main", "/tmp/wt", "claude", "s1", 80, 24, 4096, sup)
}

func TestStartTransitionsToRunningThenKilled(t *testing.T) {
	s := newTestSession(t)
	exited := make(chan int, 1)
	s.Start(func(code int) { exited <- code })
	require.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Write([]byte("x")))
	s.Kill()
	require.Equal(t, StateKilled, s.State())

	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		t.Fatal("onExit never called")
	}
}

func TestKillIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	s.Start(nil)
	s.Kill()
	s.Kill() // must not panic on the illegal Killed->Killed transition
	require.Equal(t, StateKilled, s.State())
}

func TestIllegalTransitionPanics(t *testing.T) {
	s := newTestSession(t)
	require.Panics(t, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.transitionLocked(StateStarting)
	})
}

func TestCanTransitionTable(t *testing.T) {
	require.True(t, CanTransition(StateStarting, StateRunning))
	require.True(t, CanTransition(StateRunning, StateExited))
	require.False(t, CanTransition(StateExited, StateRunning))
	require.False(t, CanTransition(StateKilled, StateRunning))
}
