package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodewatch-systems/nodewatch/internal/cli/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and event totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveServerURL()
		if err != nil {
			return err
		}
		c := client.New(url)

		health, err := c.Health()
		if err != nil {
			return fmt.Errorf("server unreachable at %s: %w", url, err)
		}
		fmt.Printf("Server:  %s\n", url)
		fmt.Printf("Status:  %s\n", health["status"])

		stats, err := c.StatsByCategory()
		if err != nil {
			return err
		}
		counts, _ := stats["counts"].([]any)
		if len(counts) > 0 {
			fmt.Println("Events by category:")
			for _, c := range counts {
				m, ok := c.(map[string]any)
				if !ok {
					continue
				}
				fmt.Printf("  %-22v %v\n", m["category"], m["count"])
			}
		}

		nodes, err := c.Nodes()
		if err != nil {
			return err
		}
		if list, ok := nodes["nodes"].([]any); ok {
			fmt.Printf("Nodes:   %d\n", len(list))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
