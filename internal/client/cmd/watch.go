package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"live-core/internal/client/cli"
	"live-core/internal/live"
	"live-core/internal/live/frame"
	"live-core/internal/live/service"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	fields    []string
	maxLength int
	maxDelta  time.Duration
	action    string
	rows      int
	jsonOut   bool
}

// newWatchCommand 订阅通道数据流并打印合并后的帧
func newWatchCommand(opts *options) *cobra.Command {
	wo := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <scope/namespace/path>",
		Short: "Stream coalesced data frames from a channel",
		Long: `Subscribe to a channel and print bounded, rate limited data frame snapshots.

Example:
  live watch stream/sensors/temp --fields time,value --rows 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, wo, args[0])
		},
	}
	cmd.Flags().StringSliceVar(&wo.fields, "fields", nil, "Only keep these fields")
	cmd.Flags().IntVar(&wo.maxLength, "max-length", 0, "Maximum buffered rows (0 for default)")
	cmd.Flags().DurationVar(&wo.maxDelta, "max-delta", 0, "Maximum time span of buffered rows (0 for unlimited)")
	cmd.Flags().StringVar(&wo.action, "action", "", "Buffer action: append/replace")
	cmd.Flags().IntVar(&wo.rows, "rows", 10, "Rows to print per snapshot")
	cmd.Flags().BoolVar(&wo.jsonOut, "json", false, "Print snapshots as JSON lines")
	return cmd
}

// watchResponse JSON 输出格式
type watchResponse struct {
	Key           string              `json:"key"`
	State         service.StreamState `json:"state"`
	SchemaVersion int                 `json:"schemaVersion"`
	Frame         *frame.Frame        `json:"frame,omitempty"`
	Error         string              `json:"error,omitempty"`
}

func runWatch(cmd *cobra.Command, opts *options, wo *watchOptions, arg string) error {
	addr, err := live.ParseAddress(arg)
	if err != nil {
		return err
	}
	c, err := opts.connect(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	dsOpts := service.DataStreamOptions{
		Addr: addr,
		Buffer: frame.BufferOptions{
			MaxLength: wo.maxLength,
			MaxDelta:  wo.maxDelta,
			Action:    frame.Action(wo.action),
		},
	}
	if len(wo.fields) > 0 {
		dsOpts.Filter = &service.Filter{Fields: wo.fields}
	}
	ds, err := c.svc.GetDataStream(cmd.Context(), dsOpts, c.channelConfig())
	if err != nil {
		return err
	}
	defer ds.Close()

	out := opts.output(cmd)
	if !wo.jsonOut {
		out.Info("Watching %s", addr.ID(c.cfg.Live.OrgID))
	}
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case resp, ok := <-ds.Responses():
			if !ok {
				return nil
			}
			if wo.jsonOut {
				if err := printWatchJSON(out, resp); err != nil {
					return err
				}
			} else {
				printSnapshot(out, resp, wo.rows)
			}
			switch resp.State {
			case service.StateError:
				return resp.Error
			case service.StateDone:
				return nil
			}
		}
	}
}

func printWatchJSON(out *cli.Output, resp *service.DataResponse) error {
	wr := watchResponse{Key: resp.Key, State: resp.State, SchemaVersion: resp.SchemaVersion, Frame: resp.Data}
	if resp.Error != nil {
		wr.Error = resp.Error.Error()
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return err
	}
	out.Plain("%s", b)
	return nil
}

// printSnapshot 打印帧末尾的 rows 行
func printSnapshot(out *cli.Output, resp *service.DataResponse, rows int) {
	switch resp.State {
	case service.StateError:
		out.Error("%s: %v", resp.Key, resp.Error)
		return
	case service.StateDone:
		out.Info("%s: stream completed", resp.Key)
		return
	}
	f := resp.Data
	if f == nil {
		return
	}

	out.Separator()
	out.Plain("%s %s", out.Label("info", time.Now().Format("15:04:05.000")),
		out.Label("faint", fmt.Sprintf("rows=%d schema=%d", f.Length(), resp.SchemaVersion)))
	table := cli.NewTable(f.FieldNames()...)
	start := 0
	if rows > 0 && f.Length() > rows {
		start = f.Length() - rows
	}
	for r := start; r < f.Length(); r++ {
		cols := make([]string, len(f.Fields))
		for i, field := range f.Fields {
			cols[i] = cli.Truncate(cli.FormatValue(field.Values[r]), 32)
		}
		table.AddRow(cols...)
	}
	table.Render(out)
	if start > 0 {
		out.Plain("%s", out.Label("faint", strings.Repeat(" ", 2)+fmt.Sprintf("... %d earlier rows", start)))
	}
}
