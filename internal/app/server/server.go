// Package server 推送服务器进程：按配置装配日志、指标、消息代理与推送服务并负责优雅关闭
package server

import (
	"context"
	"io"
	"net"
	"os/signal"
	"syscall"
	"time"

	"live-core/internal/broker"
	"live-core/internal/config"
	"live-core/internal/config/schema"
	"live-core/internal/core/dispose"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	liveserver "live-core/internal/server"
)

// disposeGrace 关闭超时之外留给代理与指标的时间
const disposeGrace = 5 * time.Second

// Server 推送服务器进程
type Server struct {
	config    *schema.Root
	nodeID    string
	resources *dispose.ResourceManager
	live      *liveserver.Server
}

// New 按配置创建进程内的全部组件，失败时释放已创建的部分
func New(ctx context.Context, cfg *schema.Root) (_ *Server, err error) {
	s := &Server{
		config:    cfg,
		nodeID:    cfg.Broker.NodeID,
		resources: dispose.NewResourceManager(),
	}
	defer func() {
		if err != nil {
			s.resources.DisposeAll()
		}
	}()

	logCfg := config.LogConfig(cfg)
	logCfg.Fields = map[string]interface{}{"node": s.nodeID}
	logCloser, err := corelog.Configure(logCfg)
	if err != nil {
		return nil, err
	}
	if logCloser != nil {
		s.register("log", logCloser)
	}

	m, err := metrics.NewMetricsFactory(ctx, cfg.Metrics.Namespace).CreateMetrics(config.MetricsType(cfg))
	if err != nil {
		return nil, err
	}
	if err := metrics.SetGlobalMetrics(m); err != nil {
		return nil, err
	}
	_ = s.resources.Register("metrics", dispose.DisposableFunc(func() error {
		metrics.ResetGlobalMetrics()
		return m.Close()
	}))

	backend, err := broker.NewBackend(ctx, config.BrokerConfig(cfg))
	if err != nil {
		return nil, err
	}
	// 推送服务接管 backend，创建失败时需自行关闭
	s.live, err = liveserver.New(ctx, config.ServerConfig(cfg), backend)
	if err != nil {
		_ = backend.Broker.Close()
		return nil, err
	}
	s.register("live-server", s.live)
	return s, nil
}

func (s *Server) register(name string, c io.Closer) {
	if err := s.resources.Register(name, dispose.DisposableFunc(c.Close)); err != nil {
		corelog.Warnf("LiveServer: register resource %s failed: %v", name, err)
	}
}

// Live 推送服务
func (s *Server) Live() *liveserver.Server {
	return s.live
}

// Run 在配置地址上运行，收到 SIGINT/SIGTERM 或 ctx 取消后按注册的相反顺序释放资源
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Listen)
	if err != nil {
		s.shutdown()
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上运行
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := s.live.Serve(ctx, ln)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	timeout := s.config.Server.ShutdownTimeout + disposeGrace
	result := s.resources.DisposeWithTimeout(timeout)
	if result.HasErrors() {
		corelog.Errorf("LiveServer: shutdown finished with errors: %s", result.Error())
		return
	}
	corelog.Infof("LiveServer: node %s exited gracefully", s.nodeID)
}
