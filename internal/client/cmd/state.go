package cmd

import (
	"fmt"
	"time"

	"live-core/internal/client/cli"

	"github.com/spf13/cobra"
)

// newStateCommand 观察连接状态
func newStateCommand(opts *options) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Connect and report connection state changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			out := opts.output(cmd)
			out.KeyValue("URL", c.cfg.Live.AppURL)
			out.KeyValue("Transport", c.cfg.Live.Transport)
			out.KeyValue("Org", fmt.Sprintf("%d (%s)", c.cfg.Live.OrgID, c.cfg.Live.OrgRole))

			states, cancel := c.svc.ConnectionState()
			defer cancel()
			since := time.Now()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case connected, ok := <-states:
					if !ok {
						return nil
					}
					printState(out, connected, time.Since(since))
					since = time.Now()
					if once {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Exit after printing the current state")
	return cmd
}

func printState(out *cli.Output, connected bool, prev time.Duration) {
	ts := out.Label("faint", cli.FormatTime(time.Now()))
	if connected {
		out.Plain("%s %s (after %s)", ts, out.Label("success", "connected"), cli.FormatDuration(prev))
		return
	}
	out.Plain("%s %s (after %s)", ts, out.Label("warning", "disconnected"), cli.FormatDuration(prev))
}
