package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRecentCommand(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List tenders scraped in the last N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			snaps, err := a.listing.Recent(cmd.Context(), days)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Reference", "Title", "Authority", "City", "Due", "Changes"})
			for _, s := range snaps {
				t.AppendRow(table.Row{s.Reference(), s.Title, s.Authority, s.City, s.DueDate, len(s.DocumentChanges)})
			}
			t.AppendFooter(table.Row{"Total", len(snaps)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "look-back window in days")
	return cmd
}
