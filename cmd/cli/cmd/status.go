package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"actionplane/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long:  `Retrieve detailed status information for a job, including its current state (PENDING, QUEUED, RUNNING, COMPLETED, FAILED, CANCELLED), priority, retries, result and timestamps.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		job, err := client.GetJob(args[0])
		if err != nil {
			return fmt.Errorf("status failed: %s", describe(err))
		}

		printStatus(cmd, *job)
		return nil
	},
}

func printStatus(cmd *cobra.Command, job api.JobResponse) {
	// Header with status icon
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sType:%s        %s\n", colorDim, colorReset, job.Type)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sPriority:%s    %d\n", colorDim, colorReset, job.Priority)
	if job.ICE != nil {
		cmd.Printf("%sICE:%s         impact %.1f, confidence %.1f, ease %.1f\n", colorDim, colorReset,
			job.ICE.Impact, job.ICE.Confidence, job.ICE.Ease)
	}
	cmd.Printf("%sRetries:%s     %d/%d\n", colorDim, colorReset, job.RetryCount, job.MaxRetries)
	if len(job.DependsOn) > 0 {
		cmd.Printf("%sDepends on:%s  %v\n", colorDim, colorReset, job.DependsOn)
	}

	if job.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *job.Error, colorReset)
	}
	if len(job.Result) > 0 {
		result, _ := json.Marshal(job.Result)
		cmd.Printf("%sResult:%s      %s\n", colorDim, colorReset, result)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))

	// Duration if both times available
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(*job.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.CompletedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "COMPLETED", "completed":
		return colorGreen + "✓" + colorReset
	case "FAILED", "failed":
		return colorRed + "✗" + colorReset
	case "PARTIAL", "partial":
		return colorYellow + "◐" + colorReset
	case "RUNNING", "running", "active":
		return colorYellow + "⏳" + colorReset
	case "PENDING", "QUEUED", "pending", "draft":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "COMPLETED", "completed":
		return icon + " " + colorGreen + status + colorReset
	case "FAILED", "failed":
		return icon + " " + colorRed + status + colorReset
	case "RUNNING", "running", "active", "PARTIAL", "partial":
		return icon + " " + colorYellow + status + colorReset
	case "PENDING", "QUEUED", "pending", "draft":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
