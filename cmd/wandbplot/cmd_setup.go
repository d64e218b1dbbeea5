package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wandbplot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("wandbplot Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. API key
		cfg.API.APIKey = prompt(scanner, "W&B API key", cfg.API.APIKey)

		// 2. API base URL
		cfg.API.BaseURL = prompt(scanner, "API base URL", cfg.API.BaseURL)

		// 3. Default entity (optional)
		cfg.API.Entity = prompt(scanner, "Default entity (optional)", cfg.API.Entity)

		// 4. Output directory
		cfg.OutputDir = prompt(scanner, "Plot output directory", cfg.OutputDir)

		// 5. EMA smoothing weight
		weightStr := prompt(scanner, "EMA smoothing weight", strconv.FormatFloat(cfg.Plot.EMAWeight, 'g', -1, 64))
		if w, err := strconv.ParseFloat(weightStr, 64); err == nil && w >= 0 && w < 1 {
			cfg.Plot.EMAWeight = w
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
