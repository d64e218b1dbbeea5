package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/wandbplot/internal/series"
	"github.com/user/wandbplot/pkg/wandb"
)

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.Flags().Bool("include-system", false, "include system columns (_*, system/, gradients/)")
	metricsCmd.Flags().Bool("json", false, "output JSON instead of a table")
}

var metricsCmd = &cobra.Command{
	Use:   "metrics <entity/project> <run_id>",
	Short: "List metrics logged by a run, with summary statistics",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		includeSystem, _ := cmd.Flags().GetBool("include-system")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg := loadConfig()
		client := newClient(cfg)
		ctx := cmd.Context()

		entity, project, err := wandb.SplitProjectPath(args[0])
		if err != nil {
			return err
		}
		entity, err = resolveEntity(ctx, client, cfg, entity)
		if err != nil {
			return err
		}
		runID := args[1]

		rows, err := client.History(ctx, entity, project, runID, cfg.Fetch.Samples)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if len(rows) == 0 {
			fmt.Printf("Run %s has no history data.\n", runID)
			return nil
		}

		columns := series.Columns(rows, includeSystem)
		stats := make(map[string]series.Stats, len(columns))
		for _, col := range columns {
			if s, ok := series.ColumnStats(rows, col); ok {
				stats[col] = s
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "METRIC\tTYPE\tNON-NULL\tMIN\tMAX\tMEAN\tSTD")
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := stats[name]
			if s.Numeric {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.4g\t%.4g\t%.4g\t%.4g\n",
					name, s.Type, s.NonNullCount, s.Count, s.Min, s.Max, s.Mean, s.Std)
			} else {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t-\t-\t-\t-\n",
					name, s.Type, s.NonNullCount, s.Count)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nTotal: %d metric(s) over %d history row(s)\n", len(stats), len(rows))
		if byType := typeCounts(stats); byType != "" {
			fmt.Printf("By type: %s\n", byType)
		}
		return nil
	},
}

func typeCounts(stats map[string]series.Stats) string {
	counts := make(map[string]int)
	for _, s := range stats {
		counts[s.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s: %d", t, counts[t]))
	}
	return strings.Join(parts, ", ")
}
