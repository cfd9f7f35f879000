package cmd

import (
	"encoding/json"
	"fmt"

	"live-core/internal/client/cli"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/core/events"
	"live-core/internal/live"

	"github.com/spf13/cobra"
)

// newEventsCommand 打印通道原始事件
func newEventsCommand(opts *options) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "events <scope/namespace/path>",
		Short: "Print raw channel events (status, messages, join/leave)",
		Long: `Subscribe to a channel and print every event as it arrives.

Example:
  live events grafana/dashboard/abc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := live.ParseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cfg := c.channelConfig()
			cfg.HasPresence = true
			stream := c.svc.GetStream(addr, cfg)
			defer func() { stream.Close() }()

			out := opts.output(cmd)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev, ok := <-stream.Events():
					if !ok {
						err := stream.Err()
						if !coreerrors.IsCode(err, coreerrors.CodeStreamOverflow) {
							return err
						}
						// 输出跟不上时重新订阅，中间的事件已丢失
						out.Warning("Fell behind on %s, resubscribing", args[0])
						stream = c.svc.GetStream(addr, cfg)
						continue
					}
					if jsonOut {
						b, err := json.Marshal(ev)
						if err != nil {
							return err
						}
						out.Plain("%s", b)
						continue
					}
					printEvent(out, ev)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events as JSON lines")
	return cmd
}

func printEvent(out *cli.Output, ev events.Event) {
	ts := out.Label("faint", cli.FormatTime(ev.Timestamp()))
	switch e := ev.(type) {
	case *events.StatusEvent:
		kind := "info"
		switch e.State {
		case live.StateConnected:
			kind = "success"
		case live.StateDisconnected:
			kind = "warning"
		case live.StateShutdown, live.StateInvalid:
			kind = "error"
		}
		line := fmt.Sprintf("%s %s %s", ts, out.Label("bold", "status"), out.Label(kind, string(e.State)))
		if e.Error != nil {
			line += " " + e.Error.Error()
		}
		out.Plain("%s", line)
	case *events.MessageEvent:
		out.Plain("%s %s %s", ts, out.Label("info", "message"), cli.Truncate(string(e.Message), 200))
	case *events.PresenceEvent:
		label := "join"
		if e.Type() == events.TypeLeave {
			label = "leave"
		}
		out.Plain("%s %s %s %s", ts, out.Label("success", label), e.Client.Client, e.Client.User)
	default:
		out.Plain("%s %s", ts, ev.Type())
	}
}
