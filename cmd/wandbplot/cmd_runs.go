package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/wandbplot/pkg/wandb"
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().String("state", "", "filter by run state (finished, running, crashed, failed, ...)")
	runsCmd.Flags().Int("limit", 100, "maximum number of runs to list")
	runsCmd.Flags().Bool("json", false, "output JSON instead of a table")
}

var runsCmd = &cobra.Command{
	Use:   "runs <entity/project>",
	Short: "List runs in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")
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

		runs, err := client.Runs(ctx, entity, project, state, limit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		if len(runs) == 0 {
			fmt.Printf("No runs found in %s/%s.\n", entity, project)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tCREATED\tSUMMARY METRICS")
		for _, r := range runs {
			created := ""
			if !r.CreatedAt.IsZero() {
				created = r.CreatedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Name, r.State, created, summaryPreview(r.Summary, 3))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nTotal: %d run(s)\n", len(runs))
		if byState := stateCounts(runs); byState != "" {
			fmt.Printf("By state: %s\n", byState)
		}
		return nil
	},
}

// summaryPreview formats up to n summary metrics as "k=v, ...", skipping
// internal keys.
func summaryPreview(summary map[string]any, n int) string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if len(parts) >= n {
			parts = append(parts, "...")
			break
		}
		switch v := summary[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}

func stateCounts(runs []wandb.Run) string {
	counts := make(map[string]int)
	for _, r := range runs {
		counts[r.State]++
	}
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)

	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s: %d", s, counts[s]))
	}
	return strings.Join(parts, ", ")
}
