package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newQueueCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the analysis queue",
	}
	cmd.AddCommand(
		newQueueStatusCommand(opts),
		newQueueAddCommand(opts),
		newQueuePositionCommand(opts),
		newQueueSweepCommand(opts),
	)
	return cmd
}

func newQueueStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active job and everything waiting behind it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.queue.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status.HasActive {
				job := status.Active.Job
				t := newTable(out, table.Row{"Active", "Status", "Progress", "Message", "Started", "Elapsed", "Remaining"})
				t.AppendRow(table.Row{
					job.TenderRef,
					job.Status,
					fmt.Sprintf("%d%%", job.Progress),
					deref(job.StatusMessage),
					formatTime(job.StartedAt),
					status.Active.Elapsed.Round(time.Second),
					status.Active.EstimatedRemaining.Round(time.Second),
				})
				t.Render()
			} else {
				fmt.Fprintln(out, "no analysis running")
			}

			t := newTable(out, table.Row{"#", "Tender", "Requested By", "Created"})
			for _, q := range status.Queued {
				requester := ""
				if q.Job.RequestedBy != nil {
					requester = q.Job.RequestedBy.String()
				}
				t.AppendRow(table.Row{q.Position, q.Job.TenderRef, requester, formatTime(&q.Job.CreatedAt)})
			}
			t.AppendFooter(table.Row{"", "Queued", len(status.Queued)})
			t.Render()
			return nil
		},
	}
}

func newQueueAddCommand(opts *rootOptions) *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "add <tender-ref>",
		Short: "Queue a tender for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requester, err := parseRequester(requestedBy)
			if err != nil {
				return err
			}

			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.queue.AddToQueue(cmd.Context(), args[0], requester)
			if err != nil {
				return err
			}

			position := ""
			if result.Position != nil {
				position = fmt.Sprint(*result.Position)
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"Tender", "Outcome", "Job", "Position", "Progress"})
			t.AppendRow(table.Row{args[0], result.Outcome, result.JobID, position, fmt.Sprintf("%d%%", result.Progress)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "UUID of the requesting user")
	return cmd
}

func newQueuePositionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <tender-ref>",
		Short: "Print the queue position of a pending tender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			position, err := a.queue.QueuePosition(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if position == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not pending\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is at position %d\n", args[0], *position)
			return nil
		},
	}
}

func newQueueSweepCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail active jobs that have been running longer than the stuck timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if timeout <= 0 {
				timeout = a.cfg.Analysis.StuckTimeout
			}
			n, err := a.queue.CleanupStuckJobs(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stuck job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stuck threshold (defaults to analysis.stuck_timeout)")
	return cmd
}
