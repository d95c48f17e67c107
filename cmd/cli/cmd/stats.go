package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status for the owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		stats, err := client.Stats()
		if err != nil {
			return fmt.Errorf("stats failed: %s", describe(err))
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STATUS\tJOBS")
		fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "queued\t%d\n", stats.Queued)
		fmt.Fprintf(w, "running\t%d\n", stats.Running)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
		fmt.Fprintf(w, "cancelled\t%d\n", stats.Cancelled)
		fmt.Fprintf(w, "total\t%d\n", stats.Total)
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
