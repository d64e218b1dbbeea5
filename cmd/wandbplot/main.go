package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/user/wandbplot/internal/config"
	"github.com/user/wandbplot/pkg/wandb"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "wandbplot",
	Short:         "Inspect W&B runs and render metric plots",
	Long:          "wandbplot lists Weights & Biases projects, runs and metrics,\ndownloads plot images attached to runs, and renders smoothed PNG line\ncharts from metric history.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(loadConfig().LogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".wandbplot", "config.json"),
		"config file path")
}

func main() {
	// A .env in the working directory provides WANDB_API_KEY and friends.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, exiting on failure. Commands call it
// instead of caching the config so `config set` changes are always visible.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newClient(cfg *config.Config) *wandb.Client {
	return wandb.New(&wandb.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.APIKey,
		Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	})
}

// resolveEntity fills in a missing entity from config, then from the
// authenticated viewer.
func resolveEntity(ctx context.Context, client *wandb.Client, cfg *config.Config, entity string) (string, error) {
	if entity != "" {
		return entity, nil
	}
	if cfg.API.Entity != "" {
		return cfg.API.Entity, nil
	}
	viewer, err := client.Viewer(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve default entity: %w", err)
	}
	if viewer.Entity != "" {
		return viewer.Entity, nil
	}
	return viewer.Username, nil
}
