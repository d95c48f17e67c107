package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a job that has not finished",
	Long:  `Cancel a PENDING, QUEUED or RUNNING job. A running executor is asked to stop at its next cancellation check.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		client, err := newClient()
		if err != nil {
			return err
		}

		job, err := client.CancelJob(args[0], reason)
		if err != nil {
			return fmt.Errorf("cancel failed: %s", describe(err))
		}

		cmd.Printf("Job %s is %s\n", job.ID, job.Status)
		return nil
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority [job_id] [value]",
	Short: "Change the manual priority of a pending job",
	Long:  `Set the manual priority (0-100) of a PENDING job. ICE factors are blended in again by the next reprioritize sweep.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[1])
		if err != nil || value < 0 || value > 100 {
			return fmt.Errorf("priority must be an integer between 0 and 100, got %q", args[1])
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		job, err := client.SetPriority(args[0], value)
		if err != nil {
			return fmt.Errorf("priority update failed: %s", describe(err))
		}

		cmd.Printf("Job %s priority is now %d\n", job.ID, job.Priority)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(priorityCmd)

	cancelCmd.Flags().StringP("reason", "r", "", "Reason recorded on the job")
}
