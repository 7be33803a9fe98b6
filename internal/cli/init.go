package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a task board workspace",
	Long: `Create the .taskboard workspace under path (default: the current
directory): one folder per stage, context folders, stage guidance documents,
the default templates and config.yaml.

Safe to run on an existing workspace -- files and directories that already
exist are skipped and not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkspaceInit == nil {
			return fmt.Errorf("workspace initializer not initialized")
		}

		basePath := "."
		if len(args) > 0 {
			basePath = args[0]
		}
		absPath, err := filepath.Abs(basePath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		result, err := WorkspaceInit.Init(absPath)
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}

		if len(result.Created) > 0 {
			fmt.Println("Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Printf("  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Println("Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Printf("  %s\n", rel)
			}
		}

		fmt.Printf("\nTask board initialized at %s\n", absPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
