package gitrepo

import "context"

// StageFile stages a single path. Staging is idempotent: staging an
// already-staged path is a no-op as far as git is concerned (R1).
func (c *Controller) StageFile(ctx context.Context, dir, path string) error {
	_, err := safeGit(ctx, dir, "add", "--", path)
	return err
}

// UnstageFile reverses StageFile (R1 round-trip).
func (c *Controller) UnstageFile(ctx context.Context, dir, path string) error {
	_, err := safeGit(ctx, dir, "restore", "--staged", "--", path)
	return err
}

// StageAll stages every pending change in the worktree.
func (c *Controller) StageAll(ctx context.Context, dir string) error {
	_, err := safeGit(ctx, dir, "add", "-A")
	return err
}

// UnstageAll clears the index back to HEAD.
func (c *Controller) UnstageAll(ctx context.Context, dir string) error {
	_, err := safeGit(ctx, dir, "restore", "--staged", ".")
	return err
}
