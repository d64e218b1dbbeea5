package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.Flags().String("entity", "", "entity (defaults to the configured or viewer entity)")
	projectsCmd.Flags().Int("limit", 50, "maximum number of projects to list")
	projectsCmd.Flags().Bool("json", false, "output JSON instead of a table")
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects for an entity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, _ := cmd.Flags().GetString("entity")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg := loadConfig()
		client := newClient(cfg)
		ctx := cmd.Context()

		entity, err := resolveEntity(ctx, client, cfg, entity)
		if err != nil {
			return err
		}

		projects, err := client.Projects(ctx, entity, limit)
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(projects)
		}

		if len(projects) == 0 {
			fmt.Printf("No projects found for entity %q.\n", entity)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCREATED\tDESCRIPTION")
		for _, p := range projects {
			created := ""
			if !p.CreatedAt.IsZero() {
				created = p.CreatedAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, created, truncate(p.Description, 60))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d project(s) for %s\n", len(projects), entity)
		return nil
	},
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
