package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/config"
	"clipforge/internal/ipc"
	"clipforge/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		target    float64
		threshold float64
		strategy  string
		prompt    string
		quality   string
		callback  string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "submit <source>...",
		Short: "Submit a clip synthesis job",
		Long: "Submit a job built from one or more sources. A source is a local path, an\n" +
			"http(s) URL, or object:<key> naming an object in the configured store.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItemSources(args)
			if err != nil {
				return err
			}
			req := ipc.SubmitRequest{
				Items:          items,
				TargetDuration: target,
				Strategy:       strategy,
				CustomPrompt:   prompt,
				OutputQuality:  quality,
				CallbackURL:    callback,
			}
			if cmd.Flags().Changed("threshold") {
				req.QualityThreshold = &threshold
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%d items)\n", resp.JobID, len(items))
				return nil
			})
		},
	}

	cmd.Flags().Float64VarP(&target, "target", "t", 60, "Target clip duration in seconds")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Quality gate threshold override (0-1)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Output strategy (highlights, summary, custom)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Custom instruction appended to the planning prompt")
	cmd.Flags().StringVar(&quality, "quality", "", "Output quality (low, medium, high, source)")
	cmd.Flags().StringVar(&callback, "callback", "", "URL notified when the job finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// parseItemSources maps CLI arguments onto item descriptors. Local paths are
// made absolute because the daemon resolves them from its own working
// directory.
func parseItemSources(args []string) ([]api.ItemSource, error) {
	items := make([]api.ItemSource, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		switch {
		case arg == "":
			return nil, errors.New("empty source argument")
		case config.IsHTTPURL(arg):
			items = append(items, api.ItemSource{Kind: queue.SourceURL, Location: arg})
		case strings.HasPrefix(arg, "object:"):
			key := strings.TrimPrefix(arg, "object:")
			if key == "" {
				return nil, fmt.Errorf("source %q has an empty object key", arg)
			}
			items = append(items, api.ItemSource{Kind: queue.SourceObject, Location: key})
		default:
			path, err := filepath.Abs(strings.TrimPrefix(arg, "file:"))
			if err != nil {
				return nil, fmt.Errorf("resolve %q: %w", arg, err)
			}
			items = append(items, api.ItemSource{Kind: queue.SourceLocal, Location: path})
		}
	}
	return items, nil
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show the status of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobStatus(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Job)
				}
				printJobDetail(cmd, resp.Job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(statuses, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Stage", "Target", "Created"},
					buildJobListRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(id)
				if err != nil {
					return err
				}
				if resp.NotFound {
					return fmt.Errorf("job %s not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", id)
				return nil
			})
		},
	}
}

func buildJobListRows(jobs []api.JobStatus) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.JobID,
			job.Status,
			dashIfEmpty(job.Stage),
			formatSeconds(job.TargetDuration),
			dashIfEmpty(job.CreatedAt),
		})
	}
	return rows
}

func printJobDetail(cmd *cobra.Command, job api.JobStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Job "+job.JobID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), job.Status, colorize))
	if job.Stage != "" {
		fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, job.Stage, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Target", statusInfo, formatSeconds(job.TargetDuration), colorize))
	fmt.Fprintln(out, renderStatusLine("Threshold", statusInfo, strconv.FormatFloat(job.QualityThreshold, 'f', 2, 64), colorize))
	if job.CancelRequested && job.Status == string(queue.JobRunning) {
		fmt.Fprintln(out, renderStatusLine("Cancel", statusWarn, "requested", colorize))
	}
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
	}
	if job.QualityScore != nil {
		kind := statusOK
		if !job.QualityScore.Pass {
			kind = statusError
		}
		detail := fmt.Sprintf("%.3f (threshold %.2f)", job.QualityScore.Total, job.QualityScore.Threshold)
		fmt.Fprintln(out, renderStatusLine("Quality", kind, detail, colorize))
	}
	if job.ArtifactLocation != "" {
		fmt.Fprintln(out, renderStatusLine("Artifact", statusOK, job.ArtifactLocation, colorize))
	}
	if len(job.FailedItems) > 0 {
		fmt.Fprintln(out, renderStatusLine("Failed items", statusWarn, strings.Join(job.FailedItems, ", "), colorize))
	}

	if len(job.PerItem) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(job.PerItem))
		for _, item := range job.PerItem {
			detail := item.Error
			if detail == "" {
				detail = item.SourceLocation
			}
			rows = append(rows, []string{
				strconv.Itoa(item.Position),
				item.ItemID,
				item.Status,
				dashIfEmpty(item.Stage),
				formatSeconds(item.Duration),
				detail,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"#", "Item", "Status", "Stage", "Duration", "Detail"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if job.Decision != nil && len(job.Decision.Segments) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(job.Decision.Segments))
		for _, seg := range job.Decision.Segments {
			rows = append(rows, []string{
				strconv.Itoa(seg.Item),
				formatSeconds(seg.Start),
				formatSeconds(seg.End),
				strconv.Itoa(seg.Priority),
				seg.Rationale,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Item", "Start", "End", "Priority", "Rationale"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
	}
}

func formatSeconds(v float64) string {
	if v <= 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + "s"
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
