package clicmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amux-dev/amux/internal/amuxclient"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "manage agent sessions",
	}
	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionDestroyCmd(),
		newSessionRenameCmd(),
		newSessionResizeCmd(),
	)
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	req := amuxclient.CreateSessionRequest{Cols: 80, Rows: 24}
	cmd := &cobra.Command{
		Use:   "create <repo-id> <branch>",
		Short: "spawn a new agent session on a branch's worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			req.RepoID, req.Branch = args[0], args[1]
			sess, err := c.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(sess)
			}
			fmt.Println(sess.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "claude", "agent provider (claude, codex, gemini)")
	cmd.Flags().StringVar(&req.Model, "model", "", "provider model (default: provider's own default)")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "display name for the session")
	cmd.Flags().IntVar(&req.Cols, "cols", 80, "initial PTY columns")
	cmd.Flags().IntVar(&req.Rows, "rows", 24, "initial PTY rows")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var repoID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			sessions, err := c.ListSessions(cmd.Context(), repoID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(sessions)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer tw.Flush() //nolint:errcheck
			fmt.Fprintln(tw, "ID\tREPO\tBRANCH\tPROVIDER\tSTATE\tNAME")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.RepoID, s.Branch, s.Provider, s.State, s.DisplayName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoID, "repo", "", "limit to a single repo")
	return cmd
}

func newSessionDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <session-id>",
		Short: "kill a session's process and unregister it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.DestroySession(cmd.Context(), args[0])
		},
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <display-name>",
		Short: "rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.RenameSession(cmd.Context(), args[0], args[1])
		},
	}
}

func newSessionResizeCmd() *cobra.Command {
	var cols, rows int
	cmd := &cobra.Command{
		Use:   "resize <session-id>",
		Short: "resize a session's PTY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.ResizeSession(cmd.Context(), args[0], cols, rows)
		},
	}
	cmd.Flags().IntVar(&cols, "cols", 80, "columns")
	cmd.Flags().IntVar(&rows, "rows", 24, "rows")
	return cmd
}
