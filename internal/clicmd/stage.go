package clicmd

import "github.com/spf13/cobra"

func newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "stage or unstage changes in a worktree",
	}
	cmd.AddCommand(
		newStageOneCmd("stage", false),
		newStageOneCmd("unstage", true),
		newStageAllCmd("all", false),
		newStageAllCmd("unstage-all", true),
	)
	return cmd
}

func newStageOneCmd(use string, unstage bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <repo-id> <branch> <path>",
		Short: "stage or unstage a single path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if unstage {
				return c.Unstage(cmd.Context(), args[0], args[1], args[2])
			}
			return c.Stage(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

func newStageAllCmd(use string, unstage bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <repo-id> <branch>",
		Short: "stage or unstage every changed path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			if unstage {
				return c.UnstageAll(cmd.Context(), args[0], args[1])
			}
			return c.StageAll(cmd.Context(), args[0], args[1])
		},
	}
}
