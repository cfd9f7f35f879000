// Package connection 管理到推送服务器的单条连接及其状态
package connection

import (
	"context"
	"encoding/json"
	"sync"

	"live-core/internal/core/dispose"
	"live-core/internal/core/events"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/live/signal"
	"live-core/internal/transport"
)

// Config 连接参数
type Config struct {
	Enabled   bool
	OrgRole   string
	OrgID     int64
	SessionID string
	Token     string
}

// ShouldConnect 只有启用实时功能且用户具有组织角色时才连接
func (c Config) ShouldConnect() bool {
	return c.Enabled && c.OrgRole != ""
}

// Manager 连接管理器
type Manager struct {
	*dispose.ManagerBase

	transport transport.Transport
	bus       events.EventBus
	state     *signal.Value[bool]
	connected *signal.Gate

	// seedMu 保证初始状态的读取先于任何连接回调生效
	seedMu sync.Mutex
}

// NewManager 创建连接管理器并接管 transport 的连接级回调，bus 可为 nil
func NewManager(ctx context.Context, t transport.Transport, bus events.EventBus) *Manager {
	m := &Manager{
		ManagerBase: dispose.NewManager("ConnectionManager", ctx),
		transport:   t,
		bus:         bus,
		state:       signal.NewValue(false),
		connected:   signal.NewGate(),
	}

	// 先注册回调再读取当前状态，期间到达的回调等待初始状态写入后再生效
	m.seedMu.Lock()
	t.SetHandlers(transport.Handlers{
		OnConnect:    m.onConnect,
		OnDisconnect: m.onDisconnect,
		OnPublish:    m.onPublish,
	})
	if t.IsConnected() {
		m.state.Set(true)
		m.connected.Open()
	}
	m.seedMu.Unlock()

	m.AddCleanHandler(m.onClose)
	return m
}

func (m *Manager) onClose() error {
	m.state.Close()
	return m.transport.Close()
}

// Connect 按配置发起连接；未启用或无组织角色时直接返回
func (m *Manager) Connect(ctx context.Context, cfg Config) error {
	if !cfg.ShouldConnect() {
		corelog.Infof("ConnectionManager: live disabled (enabled=%v, role=%q), not connecting", cfg.Enabled, cfg.OrgRole)
		return nil
	}
	return m.transport.Connect(ctx, transport.ConnectData{
		SessionID: cfg.SessionID,
		OrgID:     cfg.OrgID,
		Token:     cfg.Token,
	})
}

func (m *Manager) onConnect(client string) {
	corelog.Infof("ConnectionManager: connected (client %s)", client)
	m.seedMu.Lock()
	m.state.Set(true)
	m.connected.Open()
	m.seedMu.Unlock()
	metrics.SetConnected(true)
	m.publish(events.NewConnectionStateEvent(true))
}

func (m *Manager) onDisconnect(reason error) {
	corelog.Warnf("ConnectionManager: disconnected: %v", reason)
	m.seedMu.Lock()
	m.state.Set(false)
	m.seedMu.Unlock()
	metrics.SetConnected(false)
	m.publish(events.NewConnectionStateEvent(false))
}

func (m *Manager) onPublish(channel string, data json.RawMessage) {
	corelog.Infof("ConnectionManager: server side publication on %s: %s", channel, string(data))
	m.publish(events.NewPublicationEvent(channel, data))
}

func (m *Manager) publish(ev events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ev); err != nil {
		corelog.Debugf("ConnectionManager: event %s not published: %v", ev.Type(), err)
	}
}

// IsConnected 当前是否已连接
func (m *Manager) IsConnected() bool {
	return m.state.Get()
}

// WatchState 观察连接状态，立即收到当前值，慢观察者只看到最新值
func (m *Manager) WatchState() (<-chan bool, func()) {
	return m.state.Watch()
}

// WhenConnected 首次连接成功时关闭，之后断线不会重新阻塞
func (m *Manager) WhenConnected() <-chan struct{} {
	return m.connected.Done()
}

// WaitConnected 等待首次连接或 ctx 结束
func (m *Manager) WaitConnected(ctx context.Context) error {
	return m.connected.Wait(ctx)
}

// Transport 底层传输层
func (m *Manager) Transport() transport.Transport {
	return m.transport
}
