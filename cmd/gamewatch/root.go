package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/config"
	"github.com/appleblox/gamewatch/internal/tailer"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gamewatch",
		Short: "gamewatch - game session log-event supervisor",
		Long: `gamewatch launches the game client, finds the log file it writes,
follows that log through a helper process and publishes a named event for
every line that matches the rule table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts),
		newTailCmd(opts),
		newLocateCmd(opts),
		newClassifyCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

// load reads the config file, falling back to defaults when it is missing.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// helperCommand returns the tail helper argv. The built-in helper re-runs
// this binary, so it gets the same --config and --log-level as the parent.
func (o *rootOptions) helperCommand(cfg *config.Config) ([]string, error) {
	if len(cfg.Tailer.Command) > 0 {
		return cfg.Tailer.Command, nil
	}
	argv, err := tailer.DefaultCommand()
	if err != nil {
		return nil, fmt.Errorf("resolving tail helper: %w", err)
	}
	argv = append(argv, "--config", o.configPath)
	if o.logLevel != "" {
		argv = append(argv, "--log-level", o.logLevel)
	}
	return argv, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gamewatch.yaml"
	}
	return filepath.Join(dir, "gamewatch", "config.yaml")
}
