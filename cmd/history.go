package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/audit"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent requests from the audit history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", constants.DefaultHistoryLimit, "Number of records to show (max 1000)")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit := audit.ClampLimit(mustGetInt(cmd, "limit"))
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	ctx := context.Background()

	backend, err := openBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer backend.Close()

	records, err := backend.Audit.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if jsonOutput {
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No history recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tMETHOD\tENDPOINT\tIP\tACTION")
	fmt.Fprintln(w, "----\t------\t------\t--------\t--\t------")

	for i := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			records[i].Timestamp.Local().Format(time.DateTime), records[i].Status,
			records[i].Method, records[i].Endpoint, records[i].IP, records[i].Action)
	}

	w.Flush()

	return nil
}
