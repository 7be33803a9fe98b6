package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
)

var moveOrder int

func requireEngine() error {
	if Repo == nil || Engine == nil {
		return fmt.Errorf("transition engine not initialized")
	}
	return nil
}

var moveCmd = &cobra.Command{
	Use:     "move <task-id> <stage>",
	Aliases: []string{"mv"},
	Short:   "Move a task to another stage",
	Long: `Move a task file into another stage folder, updating its frontmatter.

Without --order the task is appended to the destination stage. With --order
it is placed at that position and later tasks in the stage shift down.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeMoveArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireEngine(); err != nil {
			return err
		}

		id, to := args[0], args[1]
		task, err := Repo.Get(id)
		if err != nil {
			return fmt.Errorf("moving task %s: %w", id, err)
		}

		req := core.MoveRequest{ID: id, From: string(task.Stage), To: to}
		if cmd.Flags().Changed("order") {
			order := moveOrder
			req.TargetOrder = &order
		}

		res, err := Engine.Move(commandContext(cmd), req)
		if err != nil {
			return fmt.Errorf("moving task %s: %w", id, err)
		}
		if !res.Moved {
			fmt.Printf("Task %s is already in %s\n", id, task.Stage)
			return nil
		}

		dest := core.NormalizeStage(to, "")
		if res.Task != nil {
			dest = res.Task.Stage
		}
		fmt.Printf("Moved %s: %s -> %s\n", id, task.Stage, dest)
		fmt.Printf("  File: %s\n", res.NewPath)
		if len(res.Shifted) > 0 {
			fmt.Printf("  Shifted: %d task(s)\n", len(res.Shifted))
		}
		return nil
	},
}

var reorderCmd = &cobra.Command{
	Use:               "reorder <task-id> <order>",
	Short:             "Change a task's position within its stage",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeTaskIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireEngine(); err != nil {
			return err
		}

		id := args[0]
		order, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid order %q: must be a non-negative integer", args[1])
		}
		task, err := Repo.Get(id)
		if err != nil {
			return fmt.Errorf("reordering task %s: %w", id, err)
		}

		res, err := Engine.Reorder(commandContext(cmd), id, string(task.Stage), order)
		if err != nil {
			return fmt.Errorf("reordering task %s: %w", id, err)
		}

		fmt.Printf("Task %s now at position %d in %s\n", id, order, task.Stage)
		if len(res.Shifted) > 0 {
			fmt.Printf("  Shifted: %d task(s)\n", len(res.Shifted))
		}
		return nil
	},
}

func init() {
	moveCmd.Flags().IntVar(&moveOrder, "order", 0, "Position in the destination stage")
	rootCmd.AddCommand(moveCmd, reorderCmd)
}
