package clicmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "manage registered repositories and worktrees",
	}
	cmd.AddCommand(
		newRepoAddCmd(),
		newRepoListCmd(),
		newRepoRemoveCmd(),
		newWorktreeCmd(),
	)
	return cmd
}

func newRepoAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "register a repository (idempotent on canonical path)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			repo, err := c.AddRepo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(repo)
			}
			fmt.Printf("%s\t%s\n", repo.ID, repo.Path)
			return nil
		},
	}
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			repos, err := c.ListRepos(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(repos)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer tw.Flush() //nolint:errcheck
			fmt.Fprintln(tw, "ID\tPATH\tNAME")
			for _, r := range repos {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Path, r.DisplayName)
			}
			return nil
		},
	}
}

func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repo-id>",
		Short: "unregister a repository (fails if any session is still live on it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.RemoveRepo(cmd.Context(), args[0])
		},
	}
}

func newWorktreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worktree",
		Short: "manage worktrees within a registered repository",
	}
	cmd.AddCommand(newWorktreeAddCmd(), newWorktreeListCmd(), newWorktreeRemoveCmd())
	return cmd
}

func newWorktreeAddCmd() *cobra.Command {
	var baseBranch string
	cmd := &cobra.Command{
		Use:   "add <repo-id> <branch>",
		Short: "create a worktree for branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			wt, err := c.CreateWorktree(cmd.Context(), args[0], args[1], baseBranch)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(wt)
			}
			fmt.Printf("%s\t%s\n", wt.Branch, wt.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch to create the new branch from (default: current HEAD)")
	return cmd
}

func newWorktreeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <repo-id>",
		Short: "list worktrees for a repo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			wts, err := c.ListWorktrees(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(wts)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer tw.Flush() //nolint:errcheck
			fmt.Fprintln(tw, "BRANCH\tPATH\tMAIN")
			for _, wt := range wts {
				fmt.Fprintf(tw, "%s\t%s\t%v\n", wt.Branch, wt.Path, wt.IsMain)
			}
			return nil
		},
	}
}

func newWorktreeRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repo-id> <branch>",
		Short: "remove a worktree (fails if any session is still live on it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.RemoveWorktree(cmd.Context(), args[0], args[1])
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
