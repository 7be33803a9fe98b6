package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/observability"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display task board activity metrics",
	Long: `Display aggregated metrics derived from the event log: tasks created,
duplicated and deleted, moves per destination stage, saves, conflicts and
failed moves.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := observability.ParseSince(metricsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			return printJSON(metrics)
		}

		fmt.Printf("Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		rows := []struct {
			label string
			value int
		}{
			{"Events recorded:", metrics.EventCount},
			{"Tasks created:", metrics.TasksCreated},
			{"Tasks duplicated:", metrics.TasksDuplicated},
			{"Tasks deleted:", metrics.TasksDeleted},
			{"Moves:", metrics.Moves},
			{"Reorders:", metrics.Reorders},
			{"Saves:", metrics.Saves},
			{"Saves that moved:", metrics.SavesWithMove},
			{"Conflicts:", metrics.Conflicts},
			{"Failed moves:", metrics.MoveFailures},
			{"Reverts:", metrics.Reverts},
			{"Migrations:", metrics.Migrations},
		}
		for _, r := range rows {
			fmt.Printf("  %-24s %d\n", r.label, r.value)
		}

		if len(metrics.MovesByStage) > 0 {
			fmt.Println("\n  Moves by destination:")
			stages := make([]string, 0, len(metrics.MovesByStage))
			for st := range metrics.MovesByStage {
				stages = append(stages, st)
			}
			sort.Strings(stages)
			for _, st := range stages {
				fmt.Printf("    %-20s %d\n", st+":", metrics.MovesByStage[st])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Printf("\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
