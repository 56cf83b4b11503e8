package todo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// R3: a todo list round-trips exactly through save/load.
func TestAddListRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1 := New(dir)
	item := Item{ID: "t1", Text: "write tests", CreatedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, s1.Add(ctx, "repo1", item))

	s2 := New(dir)
	items, err := s2.List(ctx, "repo1")
	require.NoError(t, err)
	require.Equal(t, []Item{item}, items)
}

func TestSetDoneAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	require.NoError(t, s.Add(ctx, "repo1", Item{ID: "t1", Text: "x"}))

	require.NoError(t, s.SetDone(ctx, "repo1", "t1", true))
	items, err := s.List(ctx, "repo1")
	require.NoError(t, err)
	require.True(t, items[0].Done)

	require.NoError(t, s.Delete(ctx, "repo1", "t1"))
	items, err = s.List(ctx, "repo1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestSetDoneMissingItemNotFound(t *testing.T) {
	s := New(t.TempDir())
	err := s.SetDone(context.Background(), "repo1", "nope", true)
	require.ErrorIs(t, err, amuxerr.ErrNotFound)
}
