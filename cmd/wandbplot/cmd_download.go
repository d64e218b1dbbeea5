package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wandbplot/internal/output"
	"github.com/user/wandbplot/pkg/wandb"
)

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringSlice("pattern", nil, "glob pattern(s) to match run files (default: common image patterns)")
	downloadCmd.Flags().String("output", "", "output directory (default: <output_dir>/<entity>_<project>/<run>/)")
	downloadCmd.Flags().Bool("force", false, "re-download files that already exist locally")
}

var downloadCmd = &cobra.Command{
	Use:   "download <entity/project> <run_id>",
	Short: "Download plot images attached to a run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns, _ := cmd.Flags().GetStringSlice("pattern")
		outDir, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

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

		run, err := client.Run(ctx, entity, project, runID)
		if err != nil {
			return err
		}

		files, err := client.Files(ctx, entity, project, runID)
		if err != nil {
			return fmt.Errorf("list run files: %w", err)
		}
		if len(patterns) == 0 {
			patterns = wandb.DefaultPlotPatterns
		}
		matched := wandb.MatchPatterns(files, patterns)
		if len(matched) == 0 {
			fmt.Println("No plot files found for this run.")
			fmt.Println("The run may log metrics without saving rendered images;")
			fmt.Println("try `wandbplot generate` to render plots from the metric history.")
			return nil
		}

		if outDir == "" {
			outDir = output.RunDir(cfg.OutputDir, entity, project, run.ID, run.Name)
		}
		if _, err := output.Ensure(outDir); err != nil {
			return err
		}

		var downloaded, skipped []string
		for _, f := range matched {
			// Files are flattened into the output dir; media/images/loss.png
			// becomes media_images_loss.png.
			dest := filepath.Join(outDir, output.SafeFilename(f.Name))
			if !force {
				if _, err := os.Stat(dest); err == nil {
					slog.Debug("skipping existing file", "file", f.Name)
					skipped = append(skipped, f.Name)
					continue
				}
			}
			if err := client.DownloadFile(ctx, f, dest); err != nil {
				return fmt.Errorf("download %s: %w", f.Name, err)
			}
			fmt.Printf("Downloaded: %s\n", dest)
			downloaded = append(downloaded, f.Name)
		}

		meta := map[string]any{
			"run_id":             run.ID,
			"run_name":           run.Name,
			"entity":             entity,
			"project":            project,
			"download_timestamp": time.Now().Format(time.RFC3339),
			"patterns":           patterns,
			"files_downloaded":   downloaded,
			"files_skipped":      skipped,
			"file_count":         len(downloaded),
		}
		if err := output.WriteMetadata(outDir, meta); err != nil {
			return fmt.Errorf("write metadata: %w", err)
		}

		fmt.Printf("\n%d file(s) downloaded, %d skipped, to %s\n", len(downloaded), len(skipped), outDir)
		return nil
	},
}
