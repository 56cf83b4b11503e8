// Package gitrepo implements the repo/worktree controller of spec §4.7:
// Repo and Worktree CRUD plus the diff/status/staging RPCs, all as thin
// wrappers over the git CLI.
//
// No repository in the example pack imports a Git library (go-git does not
// appear anywhere in _examples); grovetools-core/git/worktree.go shells the
// git binary through a small argument-validating builder, and this package
// follows that idiom with safeGit.
package gitrepo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// Repo is a registered repository (spec §3).
type Repo struct {
	ID          string
	Path        string
	DisplayName string
}

// Worktree is a managed checkout under ~/.amux/repos/<repo>/<branch>/.
type Worktree struct {
	RepoID string
	Branch string
	Path   string
	IsMain bool
}

// refNamePattern guards branch names passed to git, preventing flag
// injection (a bare "-" prefixed string could otherwise be interpreted as
// an option by the git CLI).
var refNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func validateRef(name string) error {
	if name == "" || !refNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid ref name %q", amuxerr.ErrConflict, name)
	}
	return nil
}

// safeGit runs `git <args...>` in dir. Callers are responsible for placing
// a literal "--" ahead of any user-controlled value (branch name, path) so
// git itself treats it as positional rather than as an option; validateRef
// additionally guards branch names before they ever reach here.
func safeGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: git %s: %s", amuxerr.ErrIO, strings.Join(args, " "), strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Controller manages the repo/worktree registry rooted at baseDir
// (normally ~/.amux).
type Controller struct {
	baseDir string

	mu    sync.Mutex
	repos map[string]Repo
}

// New creates a Controller with an empty repo registry; worktrees go under
// baseDir/repos. Registered repos are held in memory only and are not
// written to disk, so they do not survive a daemon restart.
func New(baseDir string) *Controller {
	return &Controller{baseDir: baseDir, repos: map[string]Repo{}}
}

func canonicalID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// AddRepo canonicalises path, resolving a linked worktree up to its main
// repository (spec §4.7, §8-P6), and registers it. Idempotent on canonical
// path (P5).
func (c *Controller) AddRepo(path string) (Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Repo{}, fmt.Errorf("%w: %v", amuxerr.ErrIO, err)
	}
	resolved, err := resolveMainRepo(abs)
	if err != nil {
		return Repo{}, err
	}

	id := canonicalID(resolved)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.repos[id]; ok {
		return existing, nil // P5: idempotent
	}
	repo := Repo{ID: id, Path: resolved, DisplayName: filepath.Base(resolved)}
	c.repos[id] = repo
	return repo, nil
}

// gitdirLinePattern matches the first line of a linked worktree's .git
// file: "gitdir: /path/to/main/.git/worktrees/<name>".
var gitdirLinePattern = regexp.MustCompile(`^gitdir:\s*(.+)$`)

// resolveMainRepo implements spec §6's worktree-detection rule: if
// <path>/.git is a regular file starting with "gitdir: ", the gitdir target
// has the shape <main>/.git/worktrees/<name>, and the main repo is found by
// stripping those three trailing path components.
func resolveMainRepo(path string) (string, error) {
	gitPath := filepath.Join(path, ".git")
	fi, err := os.Stat(gitPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", amuxerr.ErrNotARepository, path)
	}
	if fi.IsDir() {
		return path, nil // ordinary repository, or already the main worktree
	}

	contents, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", amuxerr.ErrIO, gitPath, err)
	}
	firstLine := strings.SplitN(strings.TrimSpace(string(contents)), "\n", 2)[0]
	m := gitdirLinePattern.FindStringSubmatch(firstLine)
	if m == nil {
		return "", fmt.Errorf("%w: %s is not a recognized worktree pointer", amuxerr.ErrNotARepository, gitPath)
	}
	gitdir := strings.TrimSpace(m[1])
	if !filepath.IsAbs(gitdir) {
		gitdir = filepath.Join(path, gitdir)
	}
	// gitdir looks like <main>/.git/worktrees/<name>; strip worktrees/<name>
	// and .git to land back on <main>.
	main := filepath.Dir(filepath.Dir(filepath.Dir(gitdir)))
	return filepath.Clean(main), nil
}

// RemoveRepo refuses while any live session references the repo (spec §9
// open question b), enforced by the caller passing anyLiveSessions.
func (c *Controller) RemoveRepo(id string, anyLiveSessions bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.repos[id]; !ok {
		return fmt.Errorf("%w: repo %s", amuxerr.ErrNotFound, id)
	}
	if anyLiveSessions {
		return fmt.Errorf("%w: repo %s has live sessions", amuxerr.ErrPreconditionFailed, id)
	}
	delete(c.repos, id)
	return nil
}

// ListRepos returns every registered repo.
func (c *Controller) ListRepos() []Repo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Repo, 0, len(c.repos))
	for _, r := range c.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// GetRepo looks up a registered repo by id.
func (c *Controller) GetRepo(id string) (Repo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.repos[id]
	return r, ok
}

// worktreeDir returns ~/.amux/repos/<repo>/<branch>/.
func (c *Controller) worktreeDir(repoID, branch string) string {
	return filepath.Join(c.baseDir, "repos", repoID, branch)
}

// WorktreePath resolves a registered repo+branch to its checkout directory,
// for callers (internal/daemon's diff/status/staging handlers) that need a
// working directory to run git in. Unlike worktreeDir, this also resolves
// the repo's main branch, whose checkout lives at the repo's own path
// rather than under the managed ~/.amux/repos/<repo>/<branch> tree, so it
// asks git directly via ListWorktrees instead of assuming the convention.
func (c *Controller) WorktreePath(ctx context.Context, repoID, branch string) (string, error) {
	worktrees, err := c.ListWorktrees(ctx, repoID)
	if err != nil {
		return "", err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return wt.Path, nil
		}
	}
	return "", fmt.Errorf("%w: worktree %s/%s", amuxerr.ErrNotFound, repoID, branch)
}

// CreateWorktree materializes ~/.amux/repos/<repo>/<branch>/, creating the
// branch from baseBranch (or current HEAD) if it doesn't already exist.
func (c *Controller) CreateWorktree(ctx context.Context, repoID, branch, baseBranch string) (Worktree, error) {
	if err := validateRef(branch); err != nil {
		return Worktree{}, err
	}
	repo, ok := c.GetRepo(repoID)
	if !ok {
		return Worktree{}, fmt.Errorf("%w: repo %s", amuxerr.ErrNotFound, repoID)
	}
	dest := c.worktreeDir(repoID, branch)
	if _, err := os.Stat(dest); err == nil {
		return Worktree{}, fmt.Errorf("%w: worktree %s/%s already exists", amuxerr.ErrConflict, repoID, branch)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Worktree{}, fmt.Errorf("%w: %v", amuxerr.ErrIO, err)
	}

	branches, err := safeGit(ctx, repo.Path, "branch", "--list", branch)
	if err != nil {
		return Worktree{}, err
	}
	branchExists := strings.TrimSpace(branches) != ""

	var args []string
	if branchExists {
		args = []string{"worktree", "add", dest, branch}
	} else {
		if baseBranch != "" {
			if err := validateRef(baseBranch); err != nil {
				return Worktree{}, err
			}
			if _, err := safeGit(ctx, repo.Path, "rev-parse", "--verify", baseBranch); err != nil {
				return Worktree{}, fmt.Errorf("%w: base branch %s not found", amuxerr.ErrNotFound, baseBranch)
			}
			args = []string{"worktree", "add", "-b", branch, dest, baseBranch}
		} else {
			args = []string{"worktree", "add", "-b", branch, dest}
		}
	}
	if _, err := safeGit(ctx, repo.Path, args...); err != nil {
		return Worktree{}, err
	}
	return Worktree{RepoID: repoID, Branch: branch, Path: dest}, nil
}

// RemoveWorktree unlinks the worktree directory and prunes git's record of
// it. The cascade-sessions decision (invariant I5) is the caller's
// responsibility: this function assumes any sessions have already been
// destroyed.
func (c *Controller) RemoveWorktree(ctx context.Context, repoID, branch string) error {
	repo, ok := c.GetRepo(repoID)
	if !ok {
		return fmt.Errorf("%w: repo %s", amuxerr.ErrNotFound, repoID)
	}
	dest := c.worktreeDir(repoID, branch)
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("%w: worktree %s/%s", amuxerr.ErrNotFound, repoID, branch)
	}
	if _, err := safeGit(ctx, repo.Path, "worktree", "remove", "--force", dest); err != nil {
		return err
	}
	return os.RemoveAll(dest)
}

// ListWorktrees lists the worktrees git itself knows about for repoID,
// parsed from `git worktree list --porcelain` (grounded on
// grovetools-core/git/worktree.go's parseWorktreeList).
func (c *Controller) ListWorktrees(ctx context.Context, repoID string) ([]Worktree, error) {
	repo, ok := c.GetRepo(repoID)
	if !ok {
		return nil, fmt.Errorf("%w: repo %s", amuxerr.ErrNotFound, repoID)
	}
	out, err := safeGit(ctx, repo.Path, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(repoID, repo.Path, out), nil
}

func parseWorktreeList(repoID, mainPath, output string) []Worktree {
	var worktrees []Worktree
	var path, branch string
	flush := func() {
		if path == "" {
			return
		}
		worktrees = append(worktrees, Worktree{
			RepoID: repoID,
			Branch: branch,
			Path:   path,
			IsMain: path == mainPath,
		})
		path, branch = "", ""
	}
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			flush()
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "worktree":
			path = parts[1]
		case "branch":
			branch = strings.TrimPrefix(parts[1], "refs/heads/")
		}
	}
	flush()
	return worktrees
}
