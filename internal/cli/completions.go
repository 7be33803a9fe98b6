package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// completeTaskIDs lists task ids, with the stage as description.
func completeTaskIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Repo == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	tasks, err := Repo.List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, task := range tasks {
		if toComplete == "" || strings.HasPrefix(task.ID, toComplete) {
			ids = append(ids, task.ID+"\t"+string(task.Stage)+": "+task.Title)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeStages returns the canonical stage names.
func completeStages(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var stages []string
	for _, st := range models.Stages() {
		if strings.HasPrefix(string(st), toComplete) {
			stages = append(stages, string(st))
		}
	}
	return stages, cobra.ShellCompDirectiveNoFileComp
}

// completeMoveArgs completes the task id first, then the target stage.
func completeMoveArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	switch len(args) {
	case 0:
		return completeTaskIDs(cmd, args, toComplete)
	case 1:
		return completeStages(cmd, args, toComplete)
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func registerStageFlagCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("stage", completeStages)
}
