package cmd

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"live-core/internal/client/cli"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"
	"live-core/internal/live/channel"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

// newPresenceCommand 查询通道在线成员
func newPresenceCommand(opts *options) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "presence <scope/namespace/path>",
		Short: "List the clients subscribed to a channel",
		Args:  cobra.ExactArgs(1),
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
			ch := c.svc.GetChannel(addr, cfg)

			var members map[string]live.ClientInfo
			err = retryWhileSubscribing(cmd.Context(), ch, func() error {
				var perr error
				members, perr = ch.Presence(cmd.Context())
				return perr
			})
			if err != nil {
				return err
			}

			out := opts.output(cmd)
			if jsonOut {
				b, err := json.Marshal(members)
				if err != nil {
					return err
				}
				out.Plain("%s", b)
				return nil
			}
			printPresence(out, ch.ID(), members)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print members as JSON")
	return cmd
}

func printPresence(out *cli.Output, channelID string, members map[string]live.ClientInfo) {
	out.Header(channelID)
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := cli.NewTable("CLIENT", "USER", "CONN INFO")
	for _, id := range ids {
		info := members[id]
		table.AddRow(id, info.User, cli.Truncate(string(info.ConnInfo), 60))
	}
	table.Render(out)
	out.Plain("\n%d member(s)", table.Len())
}

// retryWhileSubscribing 通道完成订阅前操作返回 NOT_CONNECTED，按指数退避重试，其余错误直接返回
func retryWhileSubscribing(ctx context.Context, ch *channel.Channel, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		if state := ch.Status().State; state.IsTerminal() {
			return backoff.Permanent(coreerrors.Newf(coreerrors.CodeChannelShutdown, "channel %s is %s", ch.ID(), state))
		}
		err := op()
		if err == nil || coreerrors.IsCode(err, coreerrors.CodeNotConnected) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
