// Package service 实时服务：通道注册表、连接管理与流式数据聚合
package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/core/events"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/live/channel"
	"live-core/internal/live/connection"
	"live-core/internal/live/timer"
	"live-core/internal/transport"

	"github.com/filecoin-project/go-clock"
)

// DefaultCoalesceWindow 数据流两次输出之间的最小间隔
const DefaultCoalesceWindow = time.Second

// Deps 服务依赖
type Deps struct {
	OrgID       int64
	OrgRole     string
	SessionID   string
	Token       string
	LiveEnabled bool

	// Transport 必填，由服务接管并在 Close 时关闭
	Transport transport.Transport
	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
	// Timer 为 nil 时不授予额外刷新许可
	Timer *timer.LiveTimer
	// Bus 为 nil 时服务自建事件总线
	Bus events.EventBus
	// CoalesceWindow 为 0 时使用 DefaultCoalesceWindow
	CoalesceWindow time.Duration
}

// Service 实时服务
type Service struct {
	*dispose.ServiceBase

	orgID   int64
	conn    *connection.Manager
	bus     events.EventBus
	ownBus  bool
	clock   clock.Clock
	timer   *timer.LiveTimer
	window  time.Duration
	streams atomic.Uint64

	mu       sync.Mutex
	channels map[string]*channel.Channel
}

// New 创建服务并按配置发起连接
func New(ctx context.Context, deps Deps) (*Service, error) {
	if deps.Transport == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "transport is required")
	}
	s := &Service{
		ServiceBase: dispose.NewService("LiveService", ctx),
		orgID:       deps.OrgID,
		bus:         deps.Bus,
		clock:       deps.Clock,
		timer:       deps.Timer,
		window:      deps.CoalesceWindow,
		channels:    make(map[string]*channel.Channel),
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.window <= 0 {
		s.window = DefaultCoalesceWindow
	}
	if s.bus == nil {
		s.bus = events.NewEventBus(ctx)
		s.ownBus = true
	}
	// 子组件挂在调用方 ctx 上，由 onClose 按顺序关闭
	s.conn = connection.NewManager(ctx, deps.Transport, s.bus)
	s.AddCleanHandler(s.onClose)

	err := s.conn.Connect(ctx, connection.Config{
		Enabled:   deps.LiveEnabled,
		OrgRole:   deps.OrgRole,
		OrgID:     deps.OrgID,
		SessionID: deps.SessionID,
		Token:     deps.Token,
	})
	if err != nil {
		_ = s.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeTransportError, "connect failed")
	}
	safe.Go("live-service-watch", s.watchConnection)
	return s, nil
}

func (s *Service) onClose() error {
	s.mu.Lock()
	channels := make([]*channel.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	s.mu.Unlock()

	for _, c := range channels {
		c.Close()
	}
	err := s.conn.Close()
	if s.ownBus {
		_ = s.bus.Close()
	}
	return err
}

// watchConnection 连接断开时把所有通道标记为 disconnected
func (s *Service) watchConnection() {
	states, cancel := s.conn.WatchState()
	defer cancel()
	for {
		select {
		case <-s.Ctx().Done():
			return
		case connected, ok := <-states:
			if !ok {
				return
			}
			if connected {
				continue
			}
			reason := coreerrors.ErrNotConnected
			for _, c := range s.snapshot() {
				c.Disconnected(reason)
			}
		}
	}
}

func (s *Service) snapshot() []*channel.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*channel.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	return out
}

// Events 服务事件总线
func (s *Service) Events() events.EventBus {
	return s.bus
}

// Connection 连接管理器
func (s *Service) Connection() *connection.Manager {
	return s.conn
}

// IsConnected 当前是否已连接
func (s *Service) IsConnected() bool {
	return s.conn.IsConnected()
}

// ConnectionState 观察连接状态，立即收到当前值
func (s *Service) ConnectionState() (<-chan bool, func()) {
	return s.conn.WatchState()
}

// OpenChannels 注册表中的通道数
func (s *Service) OpenChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// GetChannel 返回地址对应的通道，不存在时创建。
// 配置在返回前生效，传输层订阅等待首次连接后异步完成。
func (s *Service) GetChannel(addr live.Address, cfg live.ChannelConfig) *channel.Channel {
	key := addr.ID(s.orgID)

	s.mu.Lock()
	if c, ok := s.channels[key]; ok {
		s.mu.Unlock()
		return c
	}
	c := channel.New(s.orgID, addr, s.clock)
	if s.IsClosed() {
		s.mu.Unlock()
		c.ShutdownWithError(coreerrors.ErrServiceClosed)
		return c
	}
	handlers, initErr := c.Initialize(cfg)
	c.SetShutdownCallback(func() { s.removeChannel(key, c) })
	s.channels[key] = c
	count := len(s.channels)
	s.mu.Unlock()

	metrics.SetOpenChannels(count)
	s.publish(events.NewChannelOpenedEvent(key))
	corelog.Debugf("LiveService: channel %s opened", key)

	if initErr != nil {
		s.failChannel(c, initErr)
		return c
	}
	safe.Go("live-channel-init", func() { s.initChannel(c, handlers) })
	return c
}

// initChannel 等待首次连接后再订阅，失败时通道置为 invalid 并移出注册表
func (s *Service) initChannel(c *channel.Channel, handlers transport.SubscriptionHandlers) {
	select {
	case <-s.conn.WhenConnected():
	case <-s.Ctx().Done():
		return
	}

	sub, err := s.conn.Transport().Subscribe(c.ID(), handlers)
	if err != nil {
		s.failChannel(c, coreerrors.Wrapf(err, coreerrors.CodeSubscribeFailed, "subscribe %s", c.ID()))
		return
	}
	c.Bind(sub)
}

func (s *Service) failChannel(c *channel.Channel, err error) {
	corelog.Errorf("LiveService: channel %s initialization failed: %v", c.ID(), err)
	c.Invalidate(err)
}

func (s *Service) removeChannel(key string, c *channel.Channel) {
	s.mu.Lock()
	cur, ok := s.channels[key]
	if !ok || cur != c {
		s.mu.Unlock()
		return
	}
	delete(s.channels, key)
	count := len(s.channels)
	s.mu.Unlock()

	reason := string(c.Status().State)
	metrics.SetOpenChannels(count)
	s.publish(events.NewChannelClosedEvent(key, reason))
	corelog.Debugf("LiveService: channel %s removed (%s)", key, reason)
}

func (s *Service) publish(ev events.Event) {
	if err := s.bus.Publish(ev); err != nil {
		corelog.Debugf("LiveService: event %s not published: %v", ev.Type(), err)
	}
}

// GetStream 通道事件流
func (s *Service) GetStream(addr live.Address, cfg live.ChannelConfig) *channel.Stream {
	return s.GetChannel(addr, cfg).Subscribe()
}

// GetPresence 查询通道在线成员
func (s *Service) GetPresence(ctx context.Context, addr live.Address, cfg live.ChannelConfig) (map[string]live.ClientInfo, error) {
	return s.GetChannel(addr, cfg).Presence(ctx)
}

// Publish 向通道发布数据
func (s *Service) Publish(ctx context.Context, addr live.Address, cfg live.ChannelConfig, data json.RawMessage) error {
	return s.GetChannel(addr, cfg).Publish(ctx, data)
}
