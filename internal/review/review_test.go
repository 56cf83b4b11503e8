package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/amuxerr"
)

func TestAddListPersistsAcrossNewStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1 := New(dir)
	require.NoError(t, s1.Add(ctx, "repo1", "main", LineComment{ID: "c1", Path: "b.go", Line: 10, Body: "why?"}))
	require.NoError(t, s1.Add(ctx, "repo1", "main", LineComment{ID: "c2", Path: "a.go", Line: 5, Body: "typo"}))

	// A fresh Store (simulating daemon restart) reads from disk.
	s2 := New(dir)
	comments, err := s2.List(ctx, "repo1", "main")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.Equal(t, "a.go", comments[0].Path) // sorted by path then line
	require.Equal(t, "b.go", comments[1].Path)
}

func TestResolveAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	require.NoError(t, s.Add(ctx, "repo1", "main", LineComment{ID: "c1", Path: "a.go", Line: 1}))

	require.NoError(t, s.Resolve(ctx, "repo1", "main", "c1"))
	comments, err := s.List(ctx, "repo1", "main")
	require.NoError(t, err)
	require.True(t, comments[0].Resolved)

	require.NoError(t, s.Delete(ctx, "repo1", "main", "c1"))
	comments, err = s.List(ctx, "repo1", "main")
	require.NoError(t, err)
	require.Empty(t, comments)
}

func TestResolveMissingCommentNotFound(t *testing.T) {
	s := New(t.TempDir())
	err := s.Resolve(context.Background(), "repo1", "main", "nope")
	require.ErrorIs(t, err, amuxerr.ErrNotFound)
}

func TestListEmptyScopeReturnsEmpty(t *testing.T) {
	s := New(t.TempDir())
	comments, err := s.List(context.Background(), "repo1", "main")
	require.NoError(t, err)
	require.Empty(t, comments)
}
