package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/logging"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Task board - Markdown task files organized into stage folders",
	Long: `tb manages a task board stored as plain files. Each task is a Markdown
document with YAML frontmatter, and each workflow stage is a folder under
.taskboard/tasks/. Moving a task moves its file.

Stages, in board order: idea, queue, plan, code, audit, completed, archive.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: applyLogFlags,
}

// applyLogFlags rewires the services when a logging flag was given.
func applyLogFlags(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	if !flags.Changed("log-level") && !flags.Changed("log-format") {
		return nil
	}
	if !logging.ValidLevel(logLevel) {
		return fmt.Errorf("invalid --log-level %q (use debug, info, warn or error)", logLevel)
	}
	if logFormat != "" && logFormat != "text" && logFormat != "json" {
		return fmt.Errorf("invalid --log-format %q (use text or json)", logFormat)
	}
	if ConfigureLogging == nil {
		return nil
	}
	return ConfigureLogging(logLevel, logFormat)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tb %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
