package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tender_fetcher/internal/domain"
	"tender_fetcher/internal/service"
)

func newScrapeCommand(opts *rootOptions) *cobra.Command {
	var (
		priority    string
		skipDedup   bool
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "scrape <listing-url>",
		Short: "Scrape one listing page now",
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

			var notifier service.RunNotifier
			rabbitMQ, err := a.connectPublisher()
			if err != nil {
				a.logger.Warn("rabbitmq unavailable, run notification disabled", "error", err)
			} else {
				defer rabbitMQ.Close()
				notifier = rabbitMQ
			}

			result, err := a.orchestrator(notifier).Run(cmd.Context(), domain.RunRequest{
				URL:         args[0],
				Priority:    domain.ParsePriority(priority),
				SkipDedup:   skipDedup,
				RequestedBy: requester,
				Source:      "manual",
			})
			if err != nil {
				return err
			}

			renderRunResult(cmd.OutOrStdout(), result)
			if result.Status == domain.RunFailed {
				return errors.New(result.Error)
			}
			if result.Status == domain.RunSkipped {
				fmt.Fprintln(cmd.OutOrStdout(), "skipped: already processed at equal or higher priority, use --skip-dedup to force")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityHigh), "run priority: low, normal or high")
	cmd.Flags().BoolVar(&skipDedup, "skip-dedup", false, "bypass the processing log check")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "UUID of the requesting user")

	return cmd
}
