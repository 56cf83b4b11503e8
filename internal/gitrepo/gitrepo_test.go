package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amux-dev/amux/internal/amuxerr"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

// P5: AddRepo is idempotent on the canonical path.
func TestAddRepoIdempotent(t *testing.T) {
	dir := initRepo(t)
	c := New(t.TempDir())

	r1, err := c.AddRepo(dir)
	require.NoError(t, err)
	r2, err := c.AddRepo(dir)
	require.NoError(t, err)
	require.Equal(t, r1.ID, r2.ID)
	require.Len(t, c.ListRepos(), 1)
}

// P6: a linked worktree resolves two directories above its gitdir pointer,
// registering the main repository rather than the worktree checkout.
func TestAddRepoResolvesLinkedWorktreeToMainRepo(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	c := New(t.TempDir())
	repo, err := c.AddRepo(dir)
	require.NoError(t, err)

	wt, err := c.CreateWorktree(ctx, repo.ID, "feature", "main")
	require.NoError(t, err)

	repoFromWorktree, err := c.AddRepo(wt.Path)
	require.NoError(t, err)
	require.Equal(t, repo.ID, repoFromWorktree.ID)
	require.Equal(t, dir, repoFromWorktree.Path)
}

func TestCreateAndRemoveWorktree(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	c := New(t.TempDir())
	repo, err := c.AddRepo(dir)
	require.NoError(t, err)

	wt, err := c.CreateWorktree(ctx, repo.ID, "feature", "main")
	require.NoError(t, err)
	require.DirExists(t, wt.Path)

	worktrees, err := c.ListWorktrees(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, worktrees, 2) // main + feature

	require.NoError(t, c.RemoveWorktree(ctx, repo.ID, "feature"))
	require.NoDirExists(t, wt.Path)
}

func TestCreateWorktreeRejectsInjectionLikeBranchName(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	c := New(t.TempDir())
	repo, err := c.AddRepo(dir)
	require.NoError(t, err)

	_, err = c.CreateWorktree(ctx, repo.ID, "--upload-pack=evil", "main")
	require.Error(t, err)
}

// R1: stage/unstage is a round trip.
func TestStageUnstageFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	c := New(t.TempDir())
	require.NoError(t, c.StageFile(ctx, dir, "a.txt"))
	status, err := c.GetStatus(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 1, status.StagedCount)

	require.NoError(t, c.UnstageFile(ctx, dir, "a.txt"))
	status, err = c.GetStatus(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 0, status.StagedCount)
	require.True(t, status.IsDirty) // still untracked
}

func TestGetDiffFilesAndFileDiff(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\nworld\n"), 0o644))

	c := New(t.TempDir())
	files, err := c.GetDiffFiles(ctx, dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "README.md", files[0].Path)

	diff, err := c.GetFileDiff(ctx, dir, "README.md")
	require.NoError(t, err)
	require.Contains(t, diff, "world")
}

func TestRemoveRepoRefusesWithLiveSessions(t *testing.T) {
	dir := initRepo(t)
	c := New(t.TempDir())
	repo, err := c.AddRepo(dir)
	require.NoError(t, err)

	err = c.RemoveRepo(repo.ID, true)
	require.ErrorIs(t, err, amuxerr.ErrPreconditionFailed)

	require.NoError(t, c.RemoveRepo(repo.ID, false))
	require.ErrorIs(t, c.RemoveRepo(repo.ID, false), amuxerr.ErrNotFound)
}
