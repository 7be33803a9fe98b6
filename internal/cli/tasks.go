package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var (
	listStage string
	listJSON  bool
	showJSON  bool
)

func requireRepo() error {
	if Repo == nil {
		return fmt.Errorf("task repository not initialized")
	}
	return nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks in board order",
	Long: `List every task grouped by stage in board order. Within a stage, tasks
with an explicit order come first, lowest order first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepo(); err != nil {
			return err
		}

		var stage models.Stage
		if listStage != "" {
			stage = core.NormalizeStage(listStage, "")
			if stage == "" {
				return fmt.Errorf("invalid stage %q", listStage)
			}
		}

		tasks, err := Repo.List()
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if stage != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Stage == stage {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}

		if listJSON {
			return printJSON(tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		var current models.Stage
		for _, t := range tasks {
			if t.Stage != current {
				if current != "" {
					fmt.Println()
				}
				current = t.Stage
				fmt.Printf("%s\n", strings.ToUpper(string(current)))
			}
			fmt.Printf("  %-4s %-32s %s\n", orderLabel(t), t.ID, t.Title)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:               "show <task-id>",
	Short:             "Show a task's metadata and notes",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepo(); err != nil {
			return err
		}

		task, err := Repo.Get(args[0])
		if err != nil {
			return fmt.Errorf("getting task %s: %w", args[0], err)
		}

		if showJSON {
			return printJSON(task)
		}
		printTask(task)
		if task.UserContent != "" {
			fmt.Printf("\n%s\n", task.UserContent)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Long: `Create a task document. The id is derived from the title and made unique
across all stages; the task is appended to the end of its stage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepo(); err != nil {
			return err
		}

		flags := cmd.Flags()
		stage, _ := flags.GetString("stage")
		phase, _ := flags.GetString("phase")
		agent, _ := flags.GetString("agent")
		contexts, _ := flags.GetStringSlice("context")
		tags, _ := flags.GetStringSlice("tag")
		tmpl, _ := flags.GetString("template")
		content, _ := flags.GetString("content")

		task, err := Repo.Create(core.CreateRequest{
			Title:    strings.Join(args, " "),
			Stage:    stage,
			Phase:    phase,
			Agent:    agent,
			Contexts: contexts,
			Tags:     tags,
			Content:  content,
			Template: tmpl,
		})
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}

		fmt.Printf("Created task %s in %s\n", task.ID, task.Stage)
		fmt.Printf("  File: %s\n", task.FilePath)
		return nil
	},
}

var duplicateCmd = &cobra.Command{
	Use:               "duplicate <task-id>",
	Aliases:           []string{"dup"},
	Short:             "Copy a task into a new task in the same stage",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepo(); err != nil {
			return err
		}

		task, err := Repo.Duplicate(args[0])
		if err != nil {
			return fmt.Errorf("duplicating task %s: %w", args[0], err)
		}

		fmt.Printf("Duplicated %s as %s in %s\n", args[0], task.ID, task.Stage)
		fmt.Printf("  File: %s\n", task.FilePath)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:               "delete <task-id>",
	Aliases:           []string{"rm"},
	Short:             "Delete a task document",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRepo(); err != nil {
			return err
		}

		if err := Repo.Delete(args[0]); err != nil {
			return fmt.Errorf("deleting task %s: %w", args[0], err)
		}

		fmt.Printf("Deleted task %s\n", args[0])
		return nil
	},
}

func printTask(t *models.Task) {
	fmt.Printf("%-10s %s\n", "ID:", t.ID)
	fmt.Printf("%-10s %s\n", "Title:", t.Title)
	fmt.Printf("%-10s %s\n", "Stage:", t.Stage)
	if t.Phase != "" {
		fmt.Printf("%-10s %s\n", "Phase:", t.Phase)
	}
	if t.Agent != "" {
		fmt.Printf("%-10s %s\n", "Agent:", t.Agent)
	}
	if len(t.Contexts) > 0 {
		fmt.Printf("%-10s %s\n", "Contexts:", strings.Join(t.Contexts, ", "))
	}
	if len(t.Tags) > 0 {
		fmt.Printf("%-10s %s\n", "Tags:", strings.Join(t.Tags, ", "))
	}
	if t.Order != nil {
		fmt.Printf("%-10s %d\n", "Order:", *t.Order)
	}
	fmt.Printf("%-10s %s\n", "Created:", core.FormatTimestamp(t.Created))
	fmt.Printf("%-10s %s\n", "Updated:", core.FormatTimestamp(t.Updated))
	fmt.Printf("%-10s %s\n", "File:", t.FilePath)
}

func orderLabel(t *models.Task) string {
	if t.Order == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *t.Order)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	listCmd.Flags().StringVar(&listStage, "stage", "", "Only list tasks in this stage")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output tasks as JSON")
	registerStageFlagCompletion(listCmd)

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the task as JSON")

	createCmd.Flags().String("stage", "", "Stage to create the task in (defaults to the configured default)")
	createCmd.Flags().String("phase", "", "Phase label")
	createCmd.Flags().String("agent", "", "Agent responsible for the task")
	createCmd.Flags().StringSlice("context", nil, "Context document names (repeatable)")
	createCmd.Flags().StringSlice("tag", nil, "Tags (repeatable)")
	createCmd.Flags().String("template", "", "Body template name from .taskboard/templates")
	createCmd.Flags().String("content", "", "Text for the notes section")
	registerStageFlagCompletion(createCmd)

	rootCmd.AddCommand(listCmd, showCmd, createCmd, duplicateCmd, deleteCmd)
}
