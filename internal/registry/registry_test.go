package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/amuxerr"
	"github.com/amux-dev/amux/internal/eventbus"
	"github.com/amux-dev/amux/internal/ptysup"
)

func spawnCat(cols, rows int) (*ptysup.Supervisor, error) {
	return ptysup.Spawn(ptysup.Spec{Command: []string{"/bin/cat"}, Cols: cols, Rows: rows})
}

func TestCreateListDestroySession(t *testing.T) {
	bus := eventbus.New(0)
	sub := bus.Subscribe()
	r := New(bus)

	sess, err := r.CreateSession(CreateSessionParams{
		RepoID: "r1", Branch: "main", WorktreePath: "/tmp/wt",
		Provider: "claude", Cols: 80, Rows: 24, Spawn: spawnCat,
	})
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	ev := <-sub.Events()
	require.Equal(t, eventbus.SessionCreated, ev.Kind)

	list := r.List("")
	require.Len(t, list, 1)
	require.Equal(t, sess.ID, list[0].ID)

	require.NoError(t, r.DestroySession(sess.ID))
	require.Equal(t, 0, r.Count())

	// R2: destroying twice returns NotFound on the second call.
	err = r.DestroySession(sess.ID)
	require.ErrorIs(t, err, amuxerr.ErrNotFound)
}

// P1: for any interleaving of Create/Destroy, the registry contains exactly
// the live multiset.
func TestConcurrentCreateDestroyMaintainsCount(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	const n = 12
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := r.CreateSession(CreateSessionParams{
				RepoID: "r1", Branch: "main", WorktreePath: "/tmp/wt",
				Provider: "claude", Cols: 80, Rows: 24, Spawn: spawnCat,
			})
			require.NoError(t, err)
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()
	require.Equal(t, n, r.Count())

	var wg2 sync.WaitGroup
	for _, id := range ids {
		wg2.Add(1)
		go func(id string) {
			defer wg2.Done()
			require.NoError(t, r.DestroySession(id))
		}(id)
	}
	wg2.Wait()
	require.Equal(t, 0, r.Count())
}

// P4: AnyLiveOnWorktree / RemoveWorktree precondition.
func TestAnyLiveOnWorktree(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	require.False(t, r.AnyLiveOnWorktree("r1", "feat"))

	sess, err := r.CreateSession(CreateSessionParams{
		RepoID: "r1", Branch: "feat", WorktreePath: "/tmp/wt",
		Provider: "claude", Cols: 80, Rows: 24, Spawn: spawnCat,
	})
	require.NoError(t, err)
	require.True(t, r.AnyLiveOnWorktree("r1", "feat"))

	require.NoError(t, r.DestroySession(sess.ID))
	require.False(t, r.AnyLiveOnWorktree("r1", "feat"))
}

func TestRenameRejectsDuplicateWithinRepoBranch(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	a, err := r.CreateSession(CreateSessionParams{RepoID: "r1", Branch: "main", DisplayName: "a", Cols: 80, Rows: 24, Spawn: spawnCat})
	require.NoError(t, err)
	b, err := r.CreateSession(CreateSessionParams{RepoID: "r1", Branch: "main", DisplayName: "b", Cols: 80, Rows: 24, Spawn: spawnCat})
	require.NoError(t, err)

	err = r.RenameSession(b.ID, "a")
	require.ErrorIs(t, err, amuxerr.ErrConflict)
	require.NoError(t, r.RenameSession(b.ID, "c"))

	require.NoError(t, r.DestroySession(a.ID))
	require.NoError(t, r.DestroySession(b.ID))
}

// B2: resize with identical dimensions is a no-op.
func TestResizeNoopSameDimensions(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	sess, err := r.CreateSession(CreateSessionParams{RepoID: "r1", Branch: "main", Cols: 80, Rows: 24, Spawn: spawnCat})
	require.NoError(t, err)
	require.NoError(t, r.ResizeSession(sess.ID, 80, 24))
	require.NoError(t, r.ResizeSession(sess.ID, 120, 40))
	info := sess.Info()
	require.Equal(t, 120, info.Cols)
	require.Equal(t, 40, info.Rows)
	require.NoError(t, r.DestroySession(sess.ID))
}

func TestSessionNotFoundErrors(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	require.ErrorIs(t, r.DestroySession("nope"), amuxerr.ErrNotFound)
	require.ErrorIs(t, r.RenameSession("nope", "x"), amuxerr.ErrNotFound)
	require.ErrorIs(t, r.ResizeSession("nope", 1, 1), amuxerr.ErrNotFound)
}

func TestShutdownKillsEverySession(t *testing.T) {
	bus := eventbus.New(0)
	r := New(bus)
	for i := 0; i < 3; i++ {
		_, err := r.CreateSession(CreateSessionParams{RepoID: "r1", Branch: "main", Cols: 80, Rows: 24, Spawn: spawnCat})
		require.NoError(t, err)
	}
	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}
