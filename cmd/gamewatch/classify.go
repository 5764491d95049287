package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appleblox/gamewatch/internal/rules"
)

func newClassifyCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Run the rule table over a log file (or stdin) and print the events",
		Long: `Classify every line of a log file with the configured rule table.
Reads stdin when no file is given or the file is "-".

Examples:
  gamewatch classify ~/Library/Logs/Roblox/0.650_Player_last.log
  tail -f player.log | gamewatch classify --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			table, err := rules.Load(cfg.Rules)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return classifyStream(in, cmd.OutOrStdout(), rules.NewClassifier(table), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON event per line")
	return cmd
}

func classifyStream(in io.Reader, out io.Writer, c *rules.Classifier, asJSON bool) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		for _, ev := range c.Classify([]string{line}) {
			if asJSON {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(out, "%s\t%s\n", ev.Name, ev.RawData); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}
