package cmd

import (
	"encoding/json"
	"io"
	"os"

	"live-core/internal/client/cli"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"

	"github.com/spf13/cobra"
)

// newPublishCommand 向通道发布一条消息
func newPublishCommand(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "publish <scope/namespace/path> [json]",
		Short: "Publish a JSON message to a channel",
		Long: `Publish a JSON message to a channel. The message is taken from the second
argument, from --file, or from stdin when neither is given.

Example:
  live publish stream/sensors/temp '{"data":{"values":[[1700000000000],[21.5]]}}'
  cat frame.json | live publish stream/sensors/temp`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := live.ParseAddress(args[0])
			if err != nil {
				return err
			}
			data, err := readPayload(cmd, args, file)
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cfg := c.channelConfig()
			cfg.CanPublish = true
			ch := c.svc.GetChannel(addr, cfg)
			err = retryWhileSubscribing(cmd.Context(), ch, func() error {
				return ch.Publish(cmd.Context(), data)
			})
			if err != nil {
				return err
			}
			opts.output(cmd).Success("Published %s to %s", cli.FormatBytes(len(data)), ch.ID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the message from a file")
	return cmd
}

// readPayload 读取并校验消息体
func readPayload(cmd *cobra.Command, args []string, file string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case len(args) > 1:
		raw = []byte(args[1])
	case file != "":
		raw, err = os.ReadFile(file)
	default:
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "read message")
	}
	if !json.Valid(raw) {
		return nil, coreerrors.New(coreerrors.CodeInvalidData, "message is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
