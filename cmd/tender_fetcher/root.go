package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "tender_fetcher",
		Short:        "Tender portal scraper, corrigendum tracker and analysis queue",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newScrapeCommand(opts),
		newQueueCommand(opts),
		newCorrigendumCommand(opts),
		newRecentCommand(opts),
		newWatchCommand(opts),
		newLogCommand(opts),
	)
	return cmd
}

func parseRequester(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --requested-by: %w", err)
	}
	return &id, nil
}
