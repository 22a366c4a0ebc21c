package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newLogCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <listing-url>",
		Short: "Show the processing history of a listing page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.logs.ListByURL(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list processing log: %w", err)
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Processed", "Status", "Priority", "Source", "Run", "Superseded", "Error"})
			for _, e := range entries {
				run := ""
				if e.ScrapeRunID != nil {
					run = e.ScrapeRunID.String()
				}
				superseded := ""
				if e.Superseded {
					superseded = deref(e.SupersededReason)
				}
				t.AppendRow(table.Row{
					formatTime(&e.ProcessedAt),
					e.Status,
					e.Priority,
					e.Source,
					run,
					superseded,
					deref(e.ErrorMessage),
				})
			}
			t.Render()
			return nil
		},
	}
}
