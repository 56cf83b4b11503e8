// Package clicmd implements amux's CLI (spec §5): repo/worktree/session
// CRUD, diff/status/staging, comment/todo management, and an `attach`
// subcommand driving the attach protocol directly from a terminal.
//
// The teacher's own CLI (internal/cli/runner.go) hand-rolls subcommand
// dispatch with stdlib flag; cobra is the pack-converged choice for a
// multi-subcommand CLI (zhubert-plural/cmd, timvw-pane-patrol/cmd,
// grovetools-core/cmd all build on it) and is used here instead, with the
// teacher's per-command bodies (build request, dial socket, decode JSON,
// print a table or raw JSON) kept.
package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/amuxclient"
	"github.com/amux-dev/amux/internal/config"
)

var (
	socketPath string
	jsonOutput bool
)

// NewRootCmd builds amux's root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "amux",
		Short:         "multiplex long-running AI-agent sessions across git worktrees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "amuxd socket path (default: config.toml or $XDG_RUNTIME_DIR/amux/amuxd.sock)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of a table")

	root.AddCommand(
		newRepoCmd(),
		newSessionCmd(),
		newAttachCmd(),
		newDiffCmd(),
		newStatusCmd(),
		newStageCmd(),
		newCommentCmd(),
		newTodoCmd(),
	)
	return root
}

// client resolves the daemon socket path (flag, else config.toml, else
// the default) and dials it.
func client() (*amuxclient.Client, error) {
	path := socketPath
	if path == "" {
		cfg, err := config.Load(config.DefaultConfigPath())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.SocketPath
	}
	return amuxclient.New(path), nil
}
