package clicmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/google/uuid"
)

func newCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "comment",
		Aliases: []string{"comments"},
		Short:   "manage review comments anchored to a worktree's diff",
	}
	cmd.AddCommand(
		newCommentAddCmd(),
		newCommentListCmd(),
		newCommentResolveCmd(),
		newCommentDeleteCmd(),
	)
	return cmd
}

func newCommentAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <repo-id> <branch> <path> <line> <body>",
		Short: "anchor a new comment to a path:line in a worktree's diff",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("parse line %q: %w", args[3], err)
			}
			c, err := client()
			if err != nil {
				return err
			}
			created, err := c.AddComment(cmd.Context(), args[0], args[1], uuid.NewString(), args[2], line, args[4])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(created)
			}
			fmt.Println(created.ID)
			return nil
		},
	}
	return cmd
}

func newCommentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <repo-id> <branch>",
		Short: "list comments for a worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			comments, err := c.ListComments(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(comments)
			}
			for _, cm := range comments {
				resolved := ""
				if cm.Resolved {
					resolved = " [resolved]"
				}
				fmt.Printf("%s\t%s:%d\t%s%s\n", cm.ID, cm.Path, cm.Line, cm.Body, resolved)
			}
			return nil
		},
	}
}

func newCommentResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <repo-id> <branch> <comment-id>",
		Short: "mark a comment resolved",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.ResolveComment(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

func newCommentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <repo-id> <branch> <comment-id>",
		Short: "delete a comment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.DeleteComment(cmd.Context(), args[0], args[1], args[2])
		},
	}
}
