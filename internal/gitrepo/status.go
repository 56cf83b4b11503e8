package gitrepo

import (
	"context"
	"strconv"
	"strings"
)

// Status mirrors the counts a repo-browser RPC needs to render a worktree's
// header line, grounded on grovetools-core/git/status.go's
// porcelain=v2 parser.
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

// GetStatus returns status for the worktree at dir.
func (c *Controller) GetStatus(ctx context.Context, dir string) (Status, error) {
	out, err := safeGit(ctx, dir, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return Status{}, err
	}
	var st Status
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			switch parts[1] {
			case "branch.head":
				st.Branch = parts[2]
			case "branch.upstream":
				st.HasUpstream = true
			case "branch.ab":
				if len(parts) > 2 {
					st.AheadCount, _ = strconv.Atoi(strings.TrimPrefix(parts[2], "+"))
				}
				if len(parts) > 3 {
					st.BehindCount, _ = strconv.Atoi(strings.TrimPrefix(parts[3], "-"))
				}
			}
			continue
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "?":
			st.UntrackedCount++
		case "1", "2":
			if len(parts) < 2 || len(parts[1]) < 2 {
				continue
			}
			xy := parts[1]
			if xy[0] != '.' {
				st.StagedCount++
			}
			if xy[1] != '.' {
				st.ModifiedCount++
			}
		case "u", "U":
			st.StagedCount++
			st.ModifiedCount++
		}
	}
	st.IsDirty = st.ModifiedCount > 0 || st.UntrackedCount > 0 || st.StagedCount > 0
	return st, nil
}

// DiffFile is one entry of a name-status diff listing.
type DiffFile struct {
	Path   string `json:"path"`
	Status string `json:"status"` // A, M, D, R, etc.
}

// GetDiffFiles lists files changed relative to the worktree's HEAD,
// combining staged and unstaged changes.
func (c *Controller) GetDiffFiles(ctx context.Context, dir string) ([]DiffFile, error) {
	out, err := safeGit(ctx, dir, "diff", "HEAD", "--name-status")
	if err != nil {
		return nil, err
	}
	var files []DiffFile
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		files = append(files, DiffFile{Status: fields[0], Path: fields[len(fields)-1]})
	}
	return files, nil
}

// GetFileDiff returns the unified diff for a single path relative to HEAD.
func (c *Controller) GetFileDiff(ctx context.Context, dir, path string) (string, error) {
	return safeGit(ctx, dir, "diff", "HEAD", "--", path)
}
