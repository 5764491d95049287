package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/console"
	"github.com/appleblox/gamewatch/internal/logger"
	"github.com/appleblox/gamewatch/internal/mock"
	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/tailer"
)

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var (
		dir      string
		interval time.Duration
		rounds   int
		split    bool
		follow   bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic client log for testing rules and the tail helper",
		Long: `Write a synthetic game client log, one line per interval, into
logs.dir (or --dir). With --follow the log is also read back through the
tail helper and the classified events are printed.

Examples:
  gamewatch simulate --rounds 3
  gamewatch simulate --dir /tmp/logs --interval 100ms --split --follow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Logs.Dir
			}
			table, err := rules.Load(cfg.Rules)
			if err != nil {
				return err
			}
			helper, err := root.helperCommand(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			gen := mock.NewGenerator(dir, interval)
			gen.Rounds = rounds
			gen.SplitLines = split

			log, closeLog, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			var followed chan error
			ready := func(path string) {
				fmt.Fprintln(cmd.ErrOrStderr(), "writing", path)
				if !follow {
					return
				}
				followed = make(chan error, 1)
				printer := console.New(cmd.OutOrStdout(), false)
				go func() {
					followed <- followLog(ctx, path, helper, rules.NewClassifier(table), printer, log)
				}()
			}

			err = gen.Run(ctx, ready)
			if followed != nil {
				if err == nil {
					// let the helper pick up the last write
					time.Sleep(2 * interval)
				}
				cancel()
				if ferr := <-followed; err == nil {
					err = ferr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to write into (default logs.dir)")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "delay between lines")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "join/leave cycles; 0 runs until interrupted")
	cmd.Flags().BoolVar(&split, "split", false, "write every line in two halves")
	cmd.Flags().BoolVar(&follow, "follow", false, "read the log back through the tail helper")
	return cmd
}

// followLog runs one tail helper over path and prints what it classifies.
func followLog(ctx context.Context, path string, command []string, c *rules.Classifier, p *console.Printer, log *slog.Logger) error {
	sp := &tailer.ExecSpawner{Command: command, Stderr: os.Stderr}
	helper, err := sp.Spawn(ctx, path, 0)
	if err != nil {
		return err
	}
	defer helper.Stop()

	var dec tailer.Decoder
	emit := func(lines []string, err error) {
		var bad *tailer.MalformedBatchError
		if errors.As(err, &bad) {
			log.Warn("malformed tail output", "dropped", bad.Dropped, "error", bad.Err)
		}
		for _, ev := range c.Classify(lines) {
			p.Handle(ev)
		}
	}
	for chunk := range helper.Data {
		emit(dec.Decode(chunk))
	}
	emit(dec.Flush())
	code := <-helper.Done
	log.Debug("tail helper exited", "code", code)
	return nil
}
