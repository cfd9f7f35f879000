package cmd

import (
	"live-core/internal/client/cli"
	"live-core/internal/version"

	"github.com/spf13/cobra"
)

// newVersionCommand 显示版本信息
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show detailed version information including build time and git commit.

Example:
  live version`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.GetInfo()
			out := cli.NewOutput(cmd.OutOrStdout(), false)
			out.Plain("Live Client %s", version.GetVersion())
			out.KeyValue("Go", info.GoVersion)
			out.KeyValue("Platform", info.Platform)
		},
	}
}
