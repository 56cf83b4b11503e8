package clicmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/google/uuid"
)

func newTodoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "todo",
		Aliases: []string{"todos"},
		Short:   "manage a repo's scratch todo list",
	}
	cmd.AddCommand(
		newTodoAddCmd(),
		newTodoListCmd(),
		newTodoDoneCmd(),
		newTodoDeleteCmd(),
	)
	return cmd
}

func newTodoAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <repo-id> <text>",
		Short: "add a todo item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			created, err := c.AddTodo(cmd.Context(), args[0], uuid.NewString(), args[1])
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
}

func newTodoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <repo-id>",
		Short: "list todo items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			items, err := c.ListTodos(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(items)
			}
			for _, it := range items {
				mark := " "
				if it.Done {
					mark = "x"
				}
				fmt.Printf("[%s] %s\t%s\n", mark, it.ID, it.Text)
			}
			return nil
		},
	}
}

func newTodoDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <repo-id> <todo-id>",
		Short: "mark a todo item done (or not, with --undo)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.SetTodoDone(cmd.Context(), args[0], args[1], !undo)
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the item not done instead")
	return cmd
}

func newTodoDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <repo-id> <todo-id>",
		Short: "delete a todo item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			return c.DeleteTodo(cmd.Context(), args[0], args[1])
		},
	}
}
