package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage tenders that are re-analysed when they change",
	}

	var requestedBy string
	add := &cobra.Command{
		Use:   "add <tender-ref>",
		Short: "Watch a tender",
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

			if err := a.watchlist.Add(cmd.Context(), args[0], requester); err != nil {
				return fmt.Errorf("watch %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&requestedBy, "requested-by", "", "UUID of the requesting user")

	remove := &cobra.Command{
		Use:   "remove <tender-ref>",
		Short: "Stop watching a tender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.watchlist.Remove(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("unwatch %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped watching %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}
