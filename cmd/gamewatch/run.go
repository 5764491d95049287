package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/bus"
	"github.com/appleblox/gamewatch/internal/config"
	"github.com/appleblox/gamewatch/internal/console"
	"github.com/appleblox/gamewatch/internal/logger"
	"github.com/appleblox/gamewatch/internal/procs"
	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/session"
	"github.com/appleblox/gamewatch/internal/supervisor"
	"github.com/appleblox/gamewatch/internal/tailer"
	"github.com/appleblox/gamewatch/internal/ws"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		quiet bool
		serve bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Launch the game client and stream its log events",
		Long: `Launch the game client (optionally with a join URL), wait for its log
file and print every classified event until the client exits or Ctrl-C is
pressed.

Examples:
  gamewatch run
  gamewatch run "roblox://placeId=1818"
  gamewatch run --serve --quiet`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("serve") {
				cfg.Server.Enabled = serve
			}
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			helper, err := root.helperCommand(cfg)
			if err != nil {
				return err
			}
			return runSupervisor(cmd.Context(), cfg, helper, url, quiet, force)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only session notices, not log events")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the websocket event stream (overrides server.enabled)")
	cmd.Flags().BoolVar(&force, "kill-on-exit", false, "kill the game client when gamewatch is interrupted")
	return cmd
}

func runSupervisor(parent context.Context, cfg *config.Config, helper []string, url string, quiet, forceKill bool) error {
	if parent == nil {
		parent = context.Background()
	}
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer closeLog()

	table, err := rules.Load(cfg.Rules)
	if err != nil {
		return err
	}

	store := session.NewStore(cfg.History.Limit)
	if cfg.History.Enabled {
		history := session.NewHistory(cfg.History.Dir)
		seedStore(store, history, log)
		defer func() {
			if err := history.Save(store.GetAll()); err != nil {
				log.Warn("saving session history", "path", history.Path(), "error", err)
			}
		}()
	}

	events := bus.New(log)
	procTable := procs.NewTable()
	sup := supervisor.New(cfg, supervisor.Deps{
		Launcher:   procTable,
		Processes:  procTable,
		Spawner:    &tailer.ExecSpawner{Command: helper, Stderr: os.Stderr},
		Bus:        events,
		Classifier: rules.NewClassifier(table),
		Store:      store,
		Logger:     log,
	})

	printer := console.New(os.Stdout, quiet)
	sup.On(bus.Wildcard, printer.Handle)

	ended := make(chan struct{}, 1)
	sup.On(supervisor.EventSessionExited, func(rules.Event) error {
		select {
		case ended <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		b := startServer(ctx, cfg.Server, store, sup, log, serverErr)
		defer b.Stop()
	}

	if err := sup.Start(ctx, url); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("interrupted, stopping session")
	case <-ended:
	case err = <-serverErr:
	}

	sup.Close(forceKill)
	return err
}

func seedStore(store *session.Store, history *session.History, log *slog.Logger) {
	past, err := history.Load()
	if err != nil {
		log.Warn("loading session history", "path", history.Path(), "error", err)
		return
	}
	for _, s := range past {
		store.Update(s)
	}
}

func startServer(ctx context.Context, cfg config.ServerConfig, store *session.Store, sup *supervisor.Supervisor, log *slog.Logger, errc chan<- error) *ws.Broadcaster {
	b := ws.NewBroadcaster(store, cfg.BroadcastThrottle, cfg.SnapshotInterval, cfg.MaxConnections)
	b.SetLogger(log)
	b.SetStatusSource(sup.Snapshot)
	b.SetPrivacyFilter(&session.PrivacyFilter{
		MaskSessionIDs: cfg.Privacy.MaskSessionIDs,
		MaskPIDs:       cfg.Privacy.MaskPIDs,
		MaskLogPaths:   cfg.Privacy.MaskLogPaths,
		MaskTargetURLs: cfg.Privacy.MaskTargetURLs,
	})
	sup.On(bus.Wildcard, b.Handle)

	srv := ws.NewServer(cfg, b, log)
	go func() {
		if err := ws.ListenAndServe(ctx, cfg.Host, cfg.Port, srv.Handler(), log); err != nil {
			errc <- err
		}
	}()
	return b
}
