package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/logger"
	"github.com/appleblox/gamewatch/internal/tailer"
)

// newTailCmd is the helper mode the supervisor spawns. stdout carries one
// JSON array of lines per read; logging goes to stderr.
func newTailCmd(root *rootOptions) *cobra.Command {
	var (
		file   string
		offset int64
	)
	cmd := &cobra.Command{
		Use:    "tail --file PATH [--offset N]",
		Short:  "Follow a log file and write JSON line batches to stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			log := logger.NewHelper(cfg.Log).With("file", file)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return tailer.Follow(ctx, file, offset, os.Stdout, log)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "log file to follow")
	cmd.Flags().Int64Var(&offset, "offset", -1, "byte offset to start at; negative means end of file")
	cmd.MarkFlagRequired("file")
	return cmd
}
