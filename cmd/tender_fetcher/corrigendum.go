package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"tender_fetcher/internal/service"
)

func newCorrigendumCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "corrigendum <tender-ref>",
		Short: "Show detected field changes for a tender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.detector.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no changes recorded for %s\n", args[0])
				return nil
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Detected", "Type", "Field", "Old", "New", "Note"})
			for _, r := range records {
				t.AppendRow(table.Row{
					r.DetectedAt.Local().Format(time.DateTime),
					r.Type,
					service.FieldLabel(r.Field),
					r.OldValue,
					r.NewValue,
					r.Note,
				})
			}
			t.Render()
			return nil
		},
	}
}
