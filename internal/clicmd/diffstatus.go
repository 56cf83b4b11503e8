package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "diff <repo-id> <branch>",
		Short: "show changed files, or one file's unified diff with --file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if filePath != "" {
				patch, err := c.FileDiff(cmd.Context(), args[0], args[1], filePath)
				if err != nil {
					return err
				}
				fmt.Print(patch)
				return nil
			}
			files, err := c.DiffFiles(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(files)
			}
			for _, f := range files {
				fmt.Printf("%s\t%s\n", f.Status, f.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "show the unified diff for this one path")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <repo-id> <branch>",
		Short: "show a worktree's git status summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}
			dirty := "clean"
			if st.IsDirty {
				dirty = fmt.Sprintf("dirty (staged:%d modified:%d untracked:%d)", st.StagedCount, st.ModifiedCount, st.UntrackedCount)
			}
			fmt.Printf("%s\tahead %d\tbehind %d\t%s\n", st.Branch, st.AheadCount, st.BehindCount, dirty)
			return nil
		},
	}
}
