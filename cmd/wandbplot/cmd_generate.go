package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wandbplot/internal/cache"
	"github.com/user/wandbplot/internal/history"
	"github.com/user/wandbplot/internal/output"
	"github.com/user/wandbplot/internal/plot"
	"github.com/user/wandbplot/internal/series"
	"github.com/user/wandbplot/pkg/wandb"
)

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringSlice("metrics", nil, "comma-separated metrics to plot (e.g. 'loss,train/acc')")
	generateCmd.Flags().Bool("all-metrics", false, "plot every metric the run(s) logged")
	generateCmd.Flags().Bool("include-system", false, "with --all-metrics, include system columns")
	generateCmd.Flags().Bool("full-res", false, "fetch full resolution history (slower, all data points)")
	generateCmd.Flags().Float64("ema-weight", 0, "EMA smoothing weight in [0, 1); 0 disables smoothing")
	generateCmd.Flags().Float64("smooth", 0, "alias for --ema-weight")
	generateCmd.Flags().Int("viewport-scale", 0, "point count the smoothing window is normalized against; 0 disables rescaling")
	generateCmd.Flags().Bool("group-by-prefix", false, "draw metrics sharing a name prefix (before the first '/') on one chart")
	generateCmd.Flags().String("output", "", "output directory (default: <output_dir>/<entity>_<project>/<run>/)")
	generateCmd.Flags().Bool("force", false, "overwrite existing plot files")
	generateCmd.Flags().Bool("refresh", false, "bypass the history cache")
	generateCmd.Flags().String("preset", "", "YAML preset file with metrics, groups and smoothing settings")
}

var generateCmd = &cobra.Command{
	Use:   "generate <entity/project> <run_id> [run_id...]",
	Short: "Render PNG line charts from run metric history",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		runIDs := args[1:]

		metricsFlag, _ := cmd.Flags().GetStringSlice("metrics")
		allMetrics, _ := cmd.Flags().GetBool("all-metrics")
		includeSystem, _ := cmd.Flags().GetBool("include-system")
		fullRes, _ := cmd.Flags().GetBool("full-res")
		groupByPrefix, _ := cmd.Flags().GetBool("group-by-prefix")
		outDir, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")
		refresh, _ := cmd.Flags().GetBool("refresh")
		presetPath, _ := cmd.Flags().GetString("preset")

		weight := cfg.Plot.EMAWeight
		if cmd.Flags().Changed("ema-weight") {
			weight, _ = cmd.Flags().GetFloat64("ema-weight")
		} else if cmd.Flags().Changed("smooth") {
			weight, _ = cmd.Flags().GetFloat64("smooth")
		}
		viewportScale := cfg.Plot.ViewportScale
		if cmd.Flags().Changed("viewport-scale") {
			viewportScale, _ = cmd.Flags().GetInt("viewport-scale")
		}
		if weight < 0 || weight >= 1 {
			return fmt.Errorf("ema weight %v out of range [0, 1)", weight)
		}

		var preset *plot.Preset
		if presetPath != "" {
			preset, err = plot.LoadPreset(presetPath)
			if err != nil {
				return err
			}
			if preset.EMAWeight != nil && !cmd.Flags().Changed("ema-weight") && !cmd.Flags().Changed("smooth") {
				weight = *preset.EMAWeight
			}
			if preset.ViewportScale != nil && !cmd.Flags().Changed("viewport-scale") {
				viewportScale = *preset.ViewportScale
			}
			if preset.FullRes && !cmd.Flags().Changed("full-res") {
				fullRes = true
			}
		}

		// Resolve the runs up front so bad ids fail before any fetching.
		runs := make(map[string]*wandb.Run, len(runIDs))
		for _, runID := range runIDs {
			run, err := client.Run(ctx, entity, project, runID)
			if err != nil {
				return err
			}
			runs[runID] = run
		}

		loader := &history.Loader{
			Fetcher:       client,
			Samples:       cfg.Fetch.Samples,
			PageSize:      cfg.Fetch.PageSize,
			MaxConcurrent: cfg.Fetch.MaxConcurrent,
			Refresh:       refresh,
		}
		if cfg.Fetch.CachePath != "" {
			store, err := cache.Open(cfg.Fetch.CachePath)
			if err != nil {
				slog.Warn("history cache unavailable", "path", cfg.Fetch.CachePath, "error", err)
			} else {
				loader.Cache = store
				defer store.Close()
			}
		}

		if fullRes {
			fmt.Println("Fetching full resolution data (this may take a while)...")
		} else {
			fmt.Println("Fetching sampled data...")
		}
		rowsByRun, err := loader.RunsRows(ctx, entity, project, runIDs, fullRes)
		if err != nil {
			return err
		}
		totalRows := 0
		for _, rows := range rowsByRun {
			totalRows += len(rows)
		}
		if totalRows == 0 {
			return fmt.Errorf("run has no history data")
		}

		metrics, err := selectMetrics(metricsFlag, preset, allMetrics, includeSystem, rowsByRun)
		if err != nil {
			return err
		}
		groups := buildGroups(metrics, preset, groupByPrefix)

		if outDir == "" {
			if len(runIDs) == 1 {
				run := runs[runIDs[0]]
				outDir = output.RunDir(cfg.OutputDir, entity, project, run.ID, run.Name)
			} else {
				outDir = output.CompareDir(cfg.OutputDir, entity, project, runIDs)
			}
		}
		if _, err := output.Ensure(outDir); err != nil {
			return err
		}

		opts := plot.Options{
			XLabel:       "Step",
			WidthInches:  cfg.Plot.WidthInches,
			HeightInches: cfg.Plot.HeightInches,
			DPI:          cfg.Plot.DPI,
		}

		var generated []string
		for _, group := range groups {
			path := filepath.Join(outDir, output.SafeFilename(group.Name)+".png")
			if !force {
				if _, err := os.Stat(path); err == nil {
					slog.Warn("plot exists, skipping (use --force to overwrite)", "plot", path)
					continue
				}
			}

			lines := buildLines(group, runIDs, runs, rowsByRun, weight, viewportScale)
			if len(lines) == 0 {
				slog.Warn("no data for plot, skipping", "group", group.Name)
				continue
			}

			groupOpts := opts
			groupOpts.Title = group.Name + " over time"
			groupOpts.YLabel = group.Name
			if err := plot.Render(path, lines, groupOpts); err != nil {
				slog.Warn("failed to generate plot", "group", group.Name, "error", err)
				fmt.Fprintf(os.Stderr, "Warning: failed to generate plot for %q: %v\n", group.Name, err)
				continue
			}
			fmt.Printf("Generated: %s\n", path)
			generated = append(generated, filepath.Base(path))
		}

		if len(generated) == 0 {
			fmt.Println("\nNo plots were generated.")
			return nil
		}

		meta := map[string]any{
			"entity":               entity,
			"project":              project,
			"run_ids":              runIDs,
			"generation_timestamp": time.Now().Format(time.RFC3339),
			"full_resolution":      fullRes,
			"ema_weight":           weight,
			"viewport_scale":       viewportScale,
			"metrics_plotted":      metrics,
			"plots_generated":      generated,
			"plot_count":           len(generated),
			"data_points":          totalRows,
		}
		if len(runIDs) == 1 {
			run := runs[runIDs[0]]
			meta["run_id"] = run.ID
			meta["run_name"] = run.Name
		}
		if err := output.WriteMetadata(outDir, meta); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}

		fmt.Printf("\nSuccessfully generated %d plot(s) in %s\n", len(generated), outDir)
		return nil
	},
}

// selectMetrics resolves the metric list from flags, the preset, or run
// history discovery, and fails when a requested metric exists in no run.
func selectMetrics(flagMetrics []string, preset *plot.Preset, allMetrics, includeSystem bool, rowsByRun map[string][]wandb.HistoryRow) ([]string, error) {
	var metrics []string
	switch {
	case len(flagMetrics) > 0:
		metrics = flagMetrics
	case preset != nil:
		metrics = preset.AllMetrics()
	case allMetrics:
		seen := make(map[string]bool)
		for _, rows := range rowsByRun {
			for _, col := range series.Columns(rows, includeSystem) {
				if !seen[col] {
					seen[col] = true
					metrics = append(metrics, col)
				}
			}
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("no metrics specified; use --metrics, --all-metrics or --preset")
	}

	available := make(map[string]bool)
	for _, rows := range rowsByRun {
		for _, col := range series.Columns(rows, true) {
			available[col] = true
		}
	}
	var missing []string
	for _, m := range metrics {
		if !available[m] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		names := series.Columns(allRows(rowsByRun), false)
		preview := names
		more := ""
		if len(preview) > 10 {
			more = fmt.Sprintf(" (+%d more)", len(preview)-10)
			preview = preview[:10]
		}
		return nil, fmt.Errorf("metrics not found: %s\nAvailable metrics: %s%s",
			strings.Join(missing, ", "), strings.Join(preview, ", "), more)
	}
	return metrics, nil
}

// allRows concatenates the history of every run, for metric discovery in
// error messages.
func allRows(rowsByRun map[string][]wandb.HistoryRow) []wandb.HistoryRow {
	var all []wandb.HistoryRow
	for _, rows := range rowsByRun {
		all = append(all, rows...)
	}
	return all
}

func buildGroups(metrics []string, preset *plot.Preset, groupByPrefix bool) []series.Group {
	if preset != nil && len(preset.Groups) > 0 {
		groups := make([]series.Group, 0, len(preset.Groups)+len(preset.Metrics))
		for _, g := range preset.Groups {
			groups = append(groups, series.Group{Name: g.Name, Metrics: g.Metrics})
		}
		for _, g := range series.SingletonGroups(preset.Metrics) {
			groups = append(groups, g)
		}
		return groups
	}
	if groupByPrefix {
		return series.GroupByPrefix(metrics)
	}
	return series.SingletonGroups(metrics)
}

// buildLines assembles the plot lines for one group, one per (run, metric)
// pair. Empty series are skipped with a warning; smoothing is applied per
// series, never across runs.
func buildLines(group series.Group, runIDs []string, runs map[string]*wandb.Run, rowsByRun map[string][]wandb.HistoryRow, weight float64, viewportScale int) []plot.Line {
	multiRun := len(runIDs) > 1
	multiMetric := len(group.Metrics) > 1

	var lines []plot.Line
	for _, runID := range runIDs {
		for _, metric := range group.Metrics {
			s := series.FromRows(rowsByRun[runID], metric)
			if s.Empty() {
				slog.Warn("metric has no data points, skipping", "run", runID, "metric", metric)
				continue
			}

			label := metric
			if multiRun {
				label = runLabel(runs[runID])
				if multiMetric {
					label = fmt.Sprintf("%s (%s)", runLabel(runs[runID]), metric)
				}
			}

			line := plot.Line{Label: label, Raw: s.Points}
			if weight > 0 {
				line.Smoothed = series.Smooth(s.Points, weight, viewportScale)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func runLabel(run *wandb.Run) string {
	if run == nil {
		return ""
	}
	if run.Name != "" {
		return run.Name
	}
	return run.ID
}
