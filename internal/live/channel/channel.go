// Package channel 实现单个实时通道：状态机、事件多播、在线成员与发布
package channel

import (
	"context"
	"encoding/json"
	"sync"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/core/events"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/live"
	"live-core/internal/transport"

	"github.com/filecoin-project/go-clock"
)

// Channel 实时通道
//
// shutdown 与 invalid 为终态，进入终态后传输层回调一律忽略。
type Channel struct {
	id    string
	addr  live.Address
	clock clock.Clock

	// deliverMu 串行化事件投递，保证所有流看到相同顺序
	deliverMu sync.Mutex

	mu               sync.Mutex
	cfg              live.ChannelConfig
	initialized      bool
	status           live.Status
	lastWithSchema   json.RawMessage
	sub              transport.Subscription
	streams          map[uint64]*Stream
	nextStreamID     uint64
	shutdownCallback func()
	terminalErr      error
}

// New 创建处于 pending 状态的通道
func New(orgID int64, addr live.Address, clk clock.Clock) *Channel {
	if clk == nil {
		clk = clock.New()
	}
	id := addr.ID(orgID)
	return &Channel{
		id:      id,
		addr:    addr,
		clock:   clk,
		status:  live.Status{ID: id, Timestamp: clk.Now(), State: live.StatePending},
		streams: make(map[uint64]*Stream),
	}
}

// ID 通道 id
func (c *Channel) ID() string {
	return c.id
}

// Address 通道地址
func (c *Channel) Address() live.Address {
	return c.addr
}

// Config 通道配置
func (c *Channel) Config() live.ChannelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetShutdownCallback 设置进入终态时的回调，仅用于注册表注销
func (c *Channel) SetShutdownCallback(fn func()) {
	c.mu.Lock()
	c.shutdownCallback = fn
	c.mu.Unlock()
}

// Initialize 校验地址与配置并返回传输层回调，只能调用一次
func (c *Channel) Initialize(cfg live.ChannelConfig) (transport.SubscriptionHandlers, error) {
	if err := c.addr.Validate(); err != nil {
		return transport.SubscriptionHandlers{}, err
	}
	if err := cfg.Validate(); err != nil {
		return transport.SubscriptionHandlers{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return transport.SubscriptionHandlers{}, coreerrors.Newf(coreerrors.CodeAlreadyInitialized, "channel %s already initialized", c.id)
	}
	if c.status.State.IsTerminal() {
		return transport.SubscriptionHandlers{}, coreerrors.Newf(coreerrors.CodeChannelShutdown, "channel %s is %s", c.id, c.status.State)
	}
	c.initialized = true
	c.cfg = cfg

	return transport.SubscriptionHandlers{
		OnSubscribe:   c.onSubscribe,
		OnMessage:     c.onMessage,
		OnError:       c.onError,
		OnJoin:        c.onJoin,
		OnLeave:       c.onLeave,
		OnUnsubscribe: c.onUnsubscribe,
	}, nil
}

// Bind 绑定传输层订阅，通道已终止时立即取消订阅
func (c *Channel) Bind(sub transport.Subscription) {
	c.mu.Lock()
	if c.status.State.IsTerminal() {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.mu.Unlock()
}

// Status 当前状态快照
func (c *Channel) Status() live.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastMessageWithSchema 最近一条带 schema 的消息，未收到时为 nil
func (c *Channel) LastMessageWithSchema() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWithSchema
}

// Subscribe 创建事件流；通道已终止时返回已结束的流
func (c *Channel) Subscribe() *Stream {
	s, _ := c.SubscribeWithReplay()
	return s
}

// SubscribeWithReplay 创建事件流并原子地返回此前最近一条带 schema 的消息，
// 该消息不会再出现在新流中。
func (c *Channel) SubscribeWithReplay() (*Stream, json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextStreamID++
	s := newStream(c.nextStreamID, c, c.cfg.BufferSize())
	if c.status.State.IsTerminal() || c.streams == nil {
		s.channel = nil
		err := c.terminalErr
		if err == nil {
			err = coreerrors.Newf(coreerrors.CodeChannelShutdown, "channel %s is %s", c.id, c.status.State)
		}
		s.finish(err)
		return s, c.lastWithSchema
	}
	c.streams[s.id] = s
	return s, c.lastWithSchema
}

// Subscribers 当前事件流数
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *Channel) removeStream(id uint64) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

// Presence 查询在线成员
func (c *Channel) Presence(ctx context.Context) (map[string]live.ClientInfo, error) {
	c.mu.Lock()
	hasPresence := c.cfg.HasPresence
	sub := c.sub
	state := c.status.State
	c.mu.Unlock()

	if !hasPresence {
		return nil, coreerrors.Newf(coreerrors.CodePresenceNotSupported, "presence is not supported on %s", c.id)
	}
	if sub == nil || state != live.StateConnected {
		return nil, coreerrors.Newf(coreerrors.CodeNotConnected, "channel %s is %s", c.id, state)
	}
	return sub.Presence(ctx)
}

// Publish 向通道发布数据
func (c *Channel) Publish(ctx context.Context, data json.RawMessage) error {
	c.mu.Lock()
	canPublish := c.cfg.CanPublish
	sub := c.sub
	state := c.status.State
	c.mu.Unlock()

	if !canPublish {
		return coreerrors.Newf(coreerrors.CodePublishNotAllowed, "publishing is not allowed on %s", c.id)
	}
	if sub == nil || state != live.StateConnected {
		return coreerrors.Newf(coreerrors.CodeNotConnected, "channel %s is %s", c.id, state)
	}
	return sub.Publish(ctx, data)
}

// Disconnected 连接断开时标记为 disconnected，重新订阅成功后恢复
func (c *Channel) Disconnected(reason error) {
	c.dispatch(func() events.Event {
		if c.status.State.IsTerminal() || c.status.State == live.StateDisconnected {
			return nil
		}
		c.status.State = live.StateDisconnected
		c.status.Timestamp = c.clock.Now()
		c.status.Error = nil
		c.status.Message = nil
		corelog.Debugf("Channel[%s]: disconnected: %v", c.id, reason)
		return events.NewStatusEvent(c.status)
	})
}

// Invalidate 初始化失败：状态置为 invalid 并终止通道
func (c *Channel) Invalidate(err error) {
	c.dispatch(func() events.Event {
		if c.status.State.IsTerminal() {
			return nil
		}
		c.status = live.Status{ID: c.id, Timestamp: c.clock.Now(), State: live.StateInvalid, Error: err}
		return events.NewStatusEvent(c.status)
	})
	c.terminate(live.StateInvalid, err)
}

// ShutdownWithError 终止通道，所有流以 err 结束
func (c *Channel) ShutdownWithError(err error) {
	c.terminate(live.StateShutdown, err)
}

// Close 正常关闭，所有流无错误结束
func (c *Channel) Close() {
	c.terminate(live.StateShutdown, nil)
}

// IsTerminated 是否已终止
func (c *Channel) IsTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams == nil
}

func (c *Channel) terminate(state live.ConnectionState, err error) {
	c.mu.Lock()
	if c.streams == nil {
		c.mu.Unlock()
		return
	}
	if c.status.State != live.StateInvalid {
		c.status.State = state
		c.status.Timestamp = c.clock.Now()
		if err != nil {
			c.status.Error = err
		}
	}
	c.terminalErr = err
	callback := c.shutdownCallback
	sub := c.sub
	c.sub = nil
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	if callback != nil {
		callback()
	}
	if sub != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			corelog.Warnf("Channel[%s]: unsubscribe failed: %v", c.id, uerr)
		}
	}

	c.deliverMu.Lock()
	for _, s := range streams {
		s.finish(err)
	}
	c.deliverMu.Unlock()

	if err != nil {
		corelog.Infof("Channel[%s]: shut down with error: %v", c.id, err)
	} else {
		corelog.Debugf("Channel[%s]: shut down", c.id)
	}
}

// dispatch 在持有 mu 时执行 update 并确定投递目标，保证状态变更与事件顺序一致。
// update 返回 nil 表示无事件；队列满的流被终止，其余流不受影响。
func (c *Channel) dispatch(update func() events.Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.streams == nil {
		c.mu.Unlock()
		return
	}
	ev := update()
	if ev == nil {
		c.mu.Unlock()
		return
	}
	targets := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		targets = append(targets, s)
	}
	c.mu.Unlock()

	for _, s := range targets {
		if s.offer(ev) {
			continue
		}
		// 队列满的流以 STREAM_OVERFLOW 结束，已排队的事件仍可读出
		c.removeStream(s.id)
		s.finish(coreerrors.Newf(coreerrors.CodeStreamOverflow, "stream %d on %s fell behind (%d queued)", s.id, c.id, cap(s.ch)))
		corelog.Warnf("Channel[%s]: stream %d queue full on %s event, stream terminated", c.id, s.id, ev.Type())
		metrics.IncSubscriberDrops(string(c.addr.Scope))
	}
}

// ==================== 传输层回调 ====================

func (c *Channel) onSubscribe(data json.RawMessage) {
	c.dispatch(func() events.Event {
		c.status.State = live.StateConnected
		c.status.Timestamp = c.clock.Now()
		c.status.Error = nil
		c.status.Message = nil
		if len(data) > 0 && string(data) != "null" {
			c.status.Message = data
			if hasSchema(data) {
				c.lastWithSchema = data
			}
		}
		return events.NewStatusEvent(c.status)
	})
}

func (c *Channel) onMessage(data json.RawMessage) {
	c.dispatch(func() events.Event {
		if hasSchema(data) {
			c.lastWithSchema = data
		}
		metrics.IncChannelMessages(string(c.addr.Scope))
		return events.NewMessageEvent(c.id, data)
	})
}

func (c *Channel) onError(err error) {
	c.dispatch(func() events.Event {
		c.status.Timestamp = c.clock.Now()
		c.status.Error = err
		corelog.Warnf("Channel[%s]: transport error: %v", c.id, err)
		return events.NewStatusEvent(c.status)
	})
}

func (c *Channel) onJoin(info live.ClientInfo) {
	c.dispatch(func() events.Event {
		return events.NewJoinEvent(c.id, info)
	})
}

func (c *Channel) onLeave(info live.ClientInfo) {
	c.dispatch(func() events.Event {
		return events.NewLeaveEvent(c.id, info)
	})
}

// onUnsubscribe 服务器端取消订阅：发送 shutdown 状态后终止
func (c *Channel) onUnsubscribe() {
	c.dispatch(func() events.Event {
		c.status.State = live.StateShutdown
		c.status.Timestamp = c.clock.Now()
		return events.NewStatusEvent(c.status)
	})
	c.terminate(live.StateShutdown, nil)
}

// hasSchema 消息是否带 schema 字段
func hasSchema(data json.RawMessage) bool {
	var probe struct {
		Schema json.RawMessage `json:"schema"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return len(probe.Schema) > 0 && string(probe.Schema) != "null"
}
