// Package server 实时推送服务器：websocket 会话、HTTP 推送接口与健康检查
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"live-core/internal/broker"
	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/core/idgen"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/health"
	"live-core/internal/version"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Option 服务器选项
type Option func(*Server)

// WithMetricsHandler 指定 /metrics 处理器
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// Server 推送服务器
type Server struct {
	*dispose.ServiceBase

	cfg      Config
	backend  *broker.Backend
	hub      *Hub
	auth     *Authenticator
	limiter  *pushLimiter
	health   *health.HealthManager
	ids      *idgen.UUIDGenerator
	upgrader websocket.Upgrader

	router         *mux.Router
	httpServer     *http.Server
	metricsHandler http.Handler

	mu       sync.Mutex
	sessions map[string]*Session
}

// New 创建推送服务器，接管 backend 并在关闭时关闭它
func New(ctx context.Context, cfg Config, backend *broker.Backend, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil || backend.Broker == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "broker is required")
	}
	limiter, err := newPushLimiter(cfg.PushRPS, cfg.PushBurst, cfg.CacheSize)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidConfig, "create push limiter")
	}
	// 子组件挂在调用方 ctx 上，由 onClose 按顺序关闭
	hub, err := NewHub(ctx, backend, cfg.NodeID, cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ServiceBase: dispose.NewService("LiveServer", ctx),
		cfg:         cfg,
		backend:     backend,
		hub:         hub,
		auth:        NewAuthenticator(cfg.AuthEnabled, cfg.JWTSecret, cfg.DefaultOrgID),
		limiter:     limiter,
		health:      health.NewHealthManager(cfg.NodeID, version.GetShortVersion(), ctx),
		ids:         idgen.NewUUIDGenerator(idgen.PrefixClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		router:   mux.NewRouter(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metricsHandler == nil {
		if pm, ok := metrics.GetGlobalMetrics().(*metrics.PrometheusMetrics); ok {
			s.metricsHandler = pm.Handler()
		}
	}

	checkers := health.NewCompositeHealthChecker(2 * time.Second)
	checkers.RegisterChecker("broker", health.NewBrokerHealthChecker(backend.Broker))
	checkers.RegisterChecker("presence", health.NewPresenceHealthChecker(backend.Presence))
	checkers.RegisterChecker("hub", health.NewHubHealthChecker(hub))
	s.health.SetCheckers(checkers)
	s.health.SetStatsProvider(hub)
	s.health.SetDetail("broker", brokerKind(backend))

	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.AddCleanHandler(s.onClose)
	return s, nil
}

func brokerKind(backend *broker.Backend) string {
	if _, ok := backend.Broker.(*broker.RedisBroker); ok {
		return string(broker.BrokerTypeRedis)
	}
	return string(broker.BrokerTypeMemory)
}

func (s *Server) onClose() error {
	corelog.Infof("LiveServer: shutting down...")
	s.health.MarkDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}

	_ = s.hub.Close()
	if cerr := s.backend.Broker.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = s.health.Close()
	return err
}

// Handler HTTP 处理器，测试中可直接挂到 httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub 推送中心
func (s *Server) Hub() *Hub {
	return s.hub
}

// Health 节点状态管理器
func (s *Server) Health() *health.HealthManager {
	return s.health
}

// Run 监听配置地址并服务，ctx 取消或服务关闭时返回
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeTransportError, "listen on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	corelog.Infof("LiveServer: listening on %s (node %s, auth %v)", ln.Addr(), s.cfg.NodeID, s.cfg.AuthEnabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return coreerrors.Wrap(err, coreerrors.CodeTransportError, "http serve failed")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.Ctx().Done():
		}
		return s.Close()
	})
	return g.Wait()
}

func (s *Server) trackSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsClosed() {
		return false
	}
	s.sessions[sess.ID()] = sess
	return true
}

func (s *Server) untrackSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}
