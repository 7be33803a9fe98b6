package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	alertsJSON   bool
	alertsNotify bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the board and display any triggered alerts.

Alerts check for stale tasks in active stages, stages over their WIP limit,
an oversized queue, and failed moves whose frontmatter was not restored.
With --notify the alerts are also posted to alerts.webhook_url.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		if alertsNotify {
			if Notifier == nil {
				return fmt.Errorf("notifier not configured (set alerts.webhook_url in config.yaml)")
			}
			if err := Notifier.Notify(commandContext(cmd), alerts); err != nil {
				return fmt.Errorf("sending notification: %w", err)
			}
		}

		if alertsJSON {
			return printJSON(alerts)
		}

		if len(alerts) == 0 {
			fmt.Println("No active alerts.")
			return nil
		}

		fmt.Printf("%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Printf("  [%s] %s\n", severity, alert.Message)
			fmt.Printf("         triggered at %s\n\n", alert.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		if alertsNotify {
			fmt.Println("Notification sent.")
		}

		return nil
	},
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to the configured webhook")
	rootCmd.AddCommand(alertsCmd)
}
