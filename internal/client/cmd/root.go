// Package cmd 实时客户端命令行
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"live-core/internal/client/cli"
	"live-core/internal/config"
	"live-core/internal/config/schema"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/live"
	"live-core/internal/live/service"
	"live-core/internal/live/timer"
	"live-core/internal/transport"
	_ "live-core/internal/transport/memory"
	_ "live-core/internal/transport/websocket"
	"live-core/internal/version"

	"github.com/spf13/cobra"
)

// options 全局标志
type options struct {
	configFile     string
	appURL         string
	token          string
	orgID          int64
	orgRole        string
	sessionID      string
	transport      string
	logLevel       string
	noColor        bool
	connectTimeout time.Duration
}

// Execute 执行根命令，SIGINT/SIGTERM 取消命令上下文
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			corelog.Errorf("FATAL: main goroutine panic recovered: %v", r)
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(debug.Stack()))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand 创建命令树
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "live",
		Short: "Live streaming client for the dashboard push server",
		Long: `live connects to a push server over one websocket and streams channel data.

Addresses are written as scope/namespace/path, e.g. stream/sensors/temp.

Quick Start:
  live watch stream/sensors/temp          Stream coalesced data frames
  live events grafana/dashboard/uid       Print raw channel events
  live publish stream/sensors/temp data   Publish a message
  live token --secret s --role Editor     Mint a development token`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Config file path")
	flags.StringVarP(&opts.appURL, "url", "u", "", "Application URL (e.g., http://localhost:3000)")
	flags.StringVar(&opts.token, "token", "", "Connect token")
	flags.Int64Var(&opts.orgID, "org", 0, "Organization id")
	flags.StringVar(&opts.orgRole, "role", "", "Organization role: Viewer/Editor/Admin")
	flags.StringVar(&opts.sessionID, "session", "", "Session id sent on connect")
	flags.StringVarP(&opts.transport, "transport", "t", "", "Transport: websocket/memory")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug/info/warn/error")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.DurationVar(&opts.connectTimeout, "connect-timeout", 10*time.Second, "Time to wait for the first connection")

	root.AddCommand(
		newWatchCommand(opts),
		newEventsCommand(opts),
		newPresenceCommand(opts),
		newPublishCommand(opts),
		newStateCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(),
	)
	return root
}

// loadConfig 加载配置，命令行参数覆盖配置文件与环境变量
func (o *options) loadConfig(cmd *cobra.Command) (*schema.Root, error) {
	cfg, err := config.Load(o.configFile, config.AppTypeClient)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Live.AppURL = o.appURL
	}
	if flags.Changed("token") {
		cfg.Live.Token = schema.Secret(o.token)
	}
	if flags.Changed("org") {
		cfg.Live.OrgID = o.orgID
	}
	if flags.Changed("role") {
		cfg.Live.OrgRole = o.orgRole
	}
	if flags.Changed("session") {
		cfg.Live.SessionID = o.sessionID
	}
	if flags.Changed("transport") {
		cfg.Live.Transport = o.transport
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) output(cmd *cobra.Command) *cli.Output {
	return cli.NewOutput(cmd.OutOrStdout(), o.noColor)
}

// liveClient 一次命令使用的实时服务
type liveClient struct {
	cfg       *schema.Root
	svc       *service.Service
	timer     *timer.LiveTimer
	logCloser io.Closer
}

// connect 创建服务并等待首次连接
func (o *options) connect(cmd *cobra.Command) (*liveClient, error) {
	ctx := cmd.Context()
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.Live.Enabled || cfg.Live.OrgRole == "" {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "live is disabled or no org role is set")
	}

	logCloser, err := corelog.Configure(config.LogConfig(cfg))
	if err != nil {
		return nil, err
	}
	c := &liveClient{cfg: cfg, logCloser: logCloser}

	t, err := transport.New(cfg.Live.Transport, config.TransportOptions(cfg))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.timer = timer.New(ctx, nil, config.TimerConfig(cfg))
	c.svc, err = service.New(ctx, config.ServiceDeps(cfg, t, c.timer))
	if err != nil {
		c.Close()
		return nil, err
	}

	timeout := time.NewTimer(o.connectTimeout)
	defer timeout.Stop()
	select {
	case <-c.svc.Connection().WhenConnected():
		corelog.Debugf("LiveClient: connected to %s", cfg.Live.AppURL)
		return c, nil
	case <-timeout.C:
		c.Close()
		return nil, coreerrors.Newf(coreerrors.CodeTimeout, "not connected to %s after %s", cfg.Live.AppURL, o.connectTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// channelConfig 默认通道配置
func (c *liveClient) channelConfig() live.ChannelConfig {
	return config.ChannelConfig(c.cfg)
}

// Close 关闭服务、刷新许可与日志文件
func (c *liveClient) Close() {
	if c.svc != nil {
		_ = c.svc.Close()
	}
	if c.timer != nil {
		_ = c.timer.Close()
	}
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}
