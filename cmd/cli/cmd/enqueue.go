package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"actionplane/pkg/api"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit a new job to the queue",
	Long: `Submit a new job for the configured owner. The job waits as PENDING until its
dependencies have completed and its not-before time has passed.

Priority is 0-100 (default 50). ICE factors must be given together; they are
blended into the priority by the next reprioritize sweep.

Example:
  actionctl enqueue --type publish_post --payload '{"slug":"pricing"}'
  actionctl enqueue --type fix_meta --priority 80 --depends-on <job-id> --max-retries 2
  actionctl enqueue --type add_schema --impact 8 --confidence 6 --ease 5 --not-before 2026-01-02T15:04:05Z`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		jobType, _ := flags.GetString("type")
		payload, _ := flags.GetString("payload")
		notBefore, _ := flags.GetString("not-before")
		dependsOn, _ := flags.GetStringSlice("depends-on")
		maxRetries, _ := flags.GetInt("max-retries")

		if jobType == "" {
			return fmt.Errorf("--type is required")
		}

		req := api.EnqueueRequest{
			Type:       jobType,
			DependsOn:  dependsOn,
			MaxRetries: maxRetries,
		}

		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &req.Payload); err != nil {
				return fmt.Errorf("--payload must be a JSON object: %w", err)
			}
		}
		if flags.Changed("priority") {
			priority, _ := flags.GetInt("priority")
			req.Priority = &priority
		}
		if notBefore != "" {
			t, err := time.Parse(time.RFC3339, notBefore)
			if err != nil {
				return fmt.Errorf("--not-before must be RFC3339: %w", err)
			}
			req.NotBefore = &t
		}

		ice, err := iceFromFlags(cmd)
		if err != nil {
			return err
		}
		req.ICE = ice

		client, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.Enqueue(req)
		if err != nil {
			return fmt.Errorf("enqueue failed: %s", describe(err))
		}

		cmd.Println("Job enqueued successfully")
		cmd.Printf("Job ID: %s\n", result.JobID)
		return nil
	},
}

// iceFromFlags returns nil unless all three factors were given.
func iceFromFlags(cmd *cobra.Command) (*api.ICE, error) {
	flags := cmd.Flags()
	set := 0
	for _, name := range []string{"impact", "confidence", "ease"} {
		if flags.Changed(name) {
			set++
		}
	}
	switch set {
	case 0:
		return nil, nil
	case 3:
		impact, _ := flags.GetFloat64("impact")
		confidence, _ := flags.GetFloat64("confidence")
		ease, _ := flags.GetFloat64("ease")
		return &api.ICE{Impact: impact, Confidence: confidence, Ease: ease}, nil
	default:
		return nil, fmt.Errorf("--impact, --confidence and --ease must be given together")
	}
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringP("type", "T", "", "Executor type of the job (required)")
	enqueueCmd.Flags().StringP("payload", "p", "", "Job parameters as a JSON object")
	enqueueCmd.Flags().IntP("priority", "P", 50, "Manual priority between 0 and 100")
	enqueueCmd.Flags().String("not-before", "", "Earliest start time (RFC3339)")
	enqueueCmd.Flags().StringSlice("depends-on", nil, "Job ids that must complete first")
	enqueueCmd.Flags().Int("max-retries", 0, "Number of in-place retries on failure")
	enqueueCmd.Flags().Float64("impact", 0, "ICE impact factor (0-10)")
	enqueueCmd.Flags().Float64("confidence", 0, "ICE confidence factor (0-10)")
	enqueueCmd.Flags().Float64("ease", 0, "ICE ease factor (0-10)")
}
