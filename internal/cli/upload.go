package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodewatch-systems/nodewatch/internal/cli/client"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a telemetry file",
	Long: `Upload a telemetry file to the nodewatch server.

Accepts gzip-compressed NDJSON (.ndjson.gz) or whole-document JSON with
an "events" array (.json).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := resolveServerURL()
		if err != nil {
			return err
		}

		result, err := client.New(url).Upload(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", result.Message)
		fmt.Printf("  Records processed: %d\n", result.RecordsProcessed)
		if result.RejectedRecords > 0 {
			fmt.Printf("  Records rejected:  %d\n", result.RejectedRecords)
		}
		fmt.Printf("  Upload id:         %d\n", result.UploadID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
