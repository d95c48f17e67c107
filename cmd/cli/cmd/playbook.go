package cmd

import (
	"fmt"
	"text/tabwriter"

	"actionplane/pkg/api"

	"github.com/spf13/cobra"
)

var playbookCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Run and inspect playbooks",
	Long:  `Start, follow and cancel playbooks: ordered action lists run one action at a time for an owner.`,
}

var playbookRunCmd = &cobra.Command{
	Use:   "run [playbook_id]",
	Short: "Start or resume a playbook",
	Long:  `Start a draft playbook, or resume a partial or failed one. Completed actions are skipped on resume.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		resp, err := client.RunPlaybook(args[0])
		if err != nil {
			return fmt.Errorf("run failed: %s", describe(err))
		}

		cmd.Printf("Playbook %s started (%s)\n", resp.PlaybookID, resp.Status)
		cmd.Printf("Follow it with: actionctl playbook status %s\n", resp.PlaybookID)
		return nil
	},
}

var playbookStatusCmd = &cobra.Command{
	Use:   "status [playbook_id]",
	Short: "Show playbook progress and per-action status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		st, err := client.GetPlaybookStatus(args[0])
		if err != nil {
			return fmt.Errorf("status failed: %s", describe(err))
		}

		printPlaybookStatus(cmd, *st)
		return nil
	},
}

var playbookCancelCmd = &cobra.Command{
	Use:   "cancel [playbook_id]",
	Short: "Cancel a draft or running playbook",
	Long:  `Cancel a playbook. A running playbook stops before its next action; remaining actions stay pending.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		pb, err := client.CancelPlaybook(args[0])
		if err != nil {
			return fmt.Errorf("cancel failed: %s", describe(err))
		}

		cmd.Printf("Playbook %s is %s\n", pb.ID, pb.Status)
		return nil
	},
}

func printPlaybookStatus(cmd *cobra.Command, st api.PlaybookStatusResponse) {
	cmd.Printf("%s %s%s%s\n", statusIcon(st.Status), colorBold, st.Title, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, st.PlaybookID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(st.Status))
	cmd.Printf("%sProgress:%s    %d/%d completed, %d failed (%.0f%%)\n", colorDim, colorReset,
		st.Progress.Completed, st.Progress.Total, st.Progress.Failed, st.Progress.ProgressPercentage)
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(st.StartedAt))
	cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(st.CompletedAt))

	if len(st.Actions) == 0 {
		return
	}
	cmd.Println()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ACTION\tTYPE\tSTATUS\tERROR")
	for _, a := range st.Actions {
		errMsg := ""
		if a.Error != nil {
			// Truncate long error messages for the table view
			errMsg = *a.Error
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ActionID, a.Type, a.Status, errMsg)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(playbookCmd)
	playbookCmd.AddCommand(playbookRunCmd)
	playbookCmd.AddCommand(playbookStatusCmd)
	playbookCmd.AddCommand(playbookCancelCmd)
}
