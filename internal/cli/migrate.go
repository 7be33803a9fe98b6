package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade legacy stage folders to the canonical layout",
	Long: `Move tasks out of legacy stage folders (chat -> idea, review -> audit),
rewriting their stage, and copy legacy stage guidance documents to their
canonical names. Files that would collide are renamed with a -2, -3, ...
suffix. Running it again does nothing.

Listing tasks runs the same migration automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Migrator == nil {
			return fmt.Errorf("migrator not initialized")
		}

		if migrateDryRun {
			steps, err := Migrator.Pending()
			if err != nil {
				return fmt.Errorf("planning migration: %w", err)
			}
			if len(steps) == 0 {
				fmt.Println("Nothing to migrate.")
				return nil
			}
			fmt.Printf("%d pending step(s):\n", len(steps))
			printSteps(steps)
			return nil
		}

		report, err := Migrator.Run()
		if err != nil {
			return fmt.Errorf("migrating workspace: %w", err)
		}
		if len(report.Steps) == 0 {
			fmt.Println("Nothing to migrate.")
			return nil
		}
		fmt.Printf("Migrated: %d file(s) relocated, %d folder(s) removed, %d guidance doc(s) copied\n",
			report.Count(core.StepRelocate), report.Count(core.StepRemoveFolder), report.Count(core.StepCopyGuidance))
		printSteps(report.Steps)
		return nil
	},
}

func printSteps(steps []core.MigrationStep) {
	for _, s := range steps {
		from := relToBase(s.From)
		if s.To == "" {
			fmt.Printf("  %-14s %s\n", s.Kind, from)
			continue
		}
		fmt.Printf("  %-14s %s -> %s\n", s.Kind, from, relToBase(s.To))
	}
}

func relToBase(path string) string {
	if BasePath == "" {
		return path
	}
	if rel, err := filepath.Rel(BasePath, path); err == nil {
		return rel
	}
	return path
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show what would change without touching files")
	rootCmd.AddCommand(migrateCmd)
}
