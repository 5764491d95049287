package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/locator"
)

func newLocateCmd(root *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Print the newest client log file in logs.dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts := locator.Options{
				Dir:         cfg.Logs.Dir,
				Pattern:     cfg.Logs.Pattern,
				MaxAge:      cfg.Logs.MaxAge,
				MaxAttempts: cfg.Logs.MaxAttempts,
				RetryDelay:  cfg.Logs.RetryDelay,
			}
			if once {
				opts.MaxAttempts = 1
			}
			path, err := locator.Locate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "list the directory once instead of retrying")
	return cmd
}
