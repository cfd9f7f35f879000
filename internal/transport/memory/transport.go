package memory

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/transport"

	"github.com/google/uuid"
)

func init() {
	transport.Register("memory", 100, func(opts transport.Options) (transport.Transport, error) {
		return New(context.Background(), DefaultHub()), nil
	})
}

const queueSize = 4096

// Option 传输层选项
type Option func(*Transport)

// WithManualConnect Connect 只记录连接数据，需调用 Establish 完成连接
func WithManualConnect() Option {
	return func(t *Transport) { t.manual = true }
}

// Transport 连接到 Hub 的进程内传输层
type Transport struct {
	*dispose.ResourceBase

	hub      *Hub
	clientID string
	manual   bool
	queue    chan func()

	mu             sync.Mutex
	handlers       transport.Handlers
	connected      bool
	connectData    *transport.ConnectData
	subs           map[string]*subscription
	subscribeCalls map[string]int
	subscribeErr   map[string]error
}

var _ transport.Transport = (*Transport)(nil)

// New 创建进程内传输层
func New(ctx context.Context, hub *Hub, opts ...Option) *Transport {
	t := &Transport{
		ResourceBase:   dispose.NewResourceBase("MemoryTransport"),
		hub:            hub,
		clientID:       uuid.NewString(),
		queue:          make(chan func(), queueSize),
		subs:           make(map[string]*subscription),
		subscribeCalls: make(map[string]int),
		subscribeErr:   make(map[string]error),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ResourceBase.Initialize(ctx)
	t.AddCleanHandler(t.onClose)
	safe.Go("memory-dispatch", t.dispatchLoop)
	return t
}

func (t *Transport) onClose() error {
	t.mu.Lock()
	t.connected = false
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.subs = make(map[string]*subscription)
	t.mu.Unlock()

	for _, s := range subs {
		s.active.Store(false)
		t.hub.leave(s)
	}
	t.hub.removeClient(t)
	return nil
}

func (t *Transport) dispatchLoop() {
	for {
		select {
		case <-t.Ctx().Done():
			return
		case fn := <-t.queue:
			fn()
		}
	}
}

func (t *Transport) enqueue(fn func()) {
	select {
	case t.queue <- fn:
	case <-t.Ctx().Done():
	}
}

func (t *Transport) getHandlers() transport.Handlers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers
}

func (t *Transport) clientInfo() live.ClientInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := live.ClientInfo{Client: t.clientID}
	if t.connectData != nil {
		info.User = t.connectData.SessionID
	}
	return info
}

// ClientID 客户端 id
func (t *Transport) ClientID() string {
	return t.clientID
}

// SetHandlers 设置连接级回调
func (t *Transport) SetHandlers(h transport.Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// Connect 发起连接
func (t *Transport) Connect(ctx context.Context, data transport.ConnectData) error {
	if t.IsClosed() {
		return coreerrors.ErrServiceClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.connectData = &data
	t.mu.Unlock()
	if !t.manual {
		return t.Establish()
	}
	return nil
}

// Establish 完成连接，已订阅的通道重新订阅
func (t *Transport) Establish() error {
	t.mu.Lock()
	if t.connectData == nil {
		t.mu.Unlock()
		return coreerrors.New(coreerrors.CodeNotConnected, "connect has not been called")
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = true
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	t.hub.addClient(t)
	corelog.Debugf("MemoryTransport[%s]: connected", t.clientID)
	t.enqueue(func() {
		if cb := t.getHandlers().OnConnect; cb != nil {
			cb(t.clientID)
		}
	})
	for _, s := range subs {
		t.doSubscribe(s)
	}
	return nil
}

// Disconnect 模拟断线，订阅保留到下次 Establish
func (t *Transport) Disconnect(reason error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		t.hub.leave(s)
	}
	t.hub.removeClient(t)
	t.enqueue(func() {
		if cb := t.getHandlers().OnDisconnect; cb != nil {
			cb(reason)
		}
	})
}

// IsConnected 是否已连接
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// FailSubscribe 让后续对 channel 的订阅以 err 失败，err 为 nil 时恢复
func (t *Transport) FailSubscribe(channel string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.subscribeErr, channel)
		return
	}
	t.subscribeErr[channel] = err
}

// SubscribeCalls Subscribe 被调用的次数
func (t *Transport) SubscribeCalls(channel string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribeCalls[channel]
}

// Subscribe 创建订阅，未连接时等到连接建立后再订阅
func (t *Transport) Subscribe(channel string, h transport.SubscriptionHandlers) (transport.Subscription, error) {
	if t.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}
	t.mu.Lock()
	t.subscribeCalls[channel]++
	if _, exists := t.subs[channel]; exists {
		t.mu.Unlock()
		return nil, coreerrors.Newf(coreerrors.CodeSubscribeFailed, "already subscribed to %s", channel)
	}
	s := &subscription{t: t, channel: channel, handlers: h}
	s.active.Store(true)
	t.subs[channel] = s
	connected := t.connected
	t.mu.Unlock()

	if connected {
		t.doSubscribe(s)
	}
	return s, nil
}

func (t *Transport) doSubscribe(s *subscription) {
	t.mu.Lock()
	failure := t.subscribeErr[s.channel]
	t.mu.Unlock()

	if failure != nil {
		s.deliver(func(hs *subscription) {
			if hs.handlers.OnError != nil {
				hs.handlers.OnError(coreerrors.Wrapf(failure, coreerrors.CodeSubscribeFailed, "subscribe %s", hs.channel))
			}
		})
		return
	}
	last := t.hub.join(s)
	s.deliver(func(hs *subscription) {
		if hs.handlers.OnSubscribe != nil {
			hs.handlers.OnSubscribe(last)
		}
	})
}

func (t *Transport) removeSubscription(s *subscription) {
	t.mu.Lock()
	if cur, ok := t.subs[s.channel]; ok && cur == s {
		delete(t.subs, s.channel)
	}
	t.mu.Unlock()
}

// subscription 进程内订阅
type subscription struct {
	t        *Transport
	channel  string
	handlers transport.SubscriptionHandlers
	active   atomic.Bool
}

// deliver 在传输层投递协程上执行回调，订阅取消后丢弃
func (s *subscription) deliver(fn func(*subscription)) {
	s.t.enqueue(func() {
		if s.active.Load() {
			fn(s)
		}
	})
}

func (s *subscription) Channel() string {
	return s.channel
}

func (s *subscription) Presence(ctx context.Context) (map[string]live.ClientInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.t.IsConnected() {
		return nil, coreerrors.ErrNotConnected
	}
	return s.t.hub.Presence(s.channel), nil
}

func (s *subscription) Publish(ctx context.Context, data json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.t.IsConnected() {
		return coreerrors.ErrNotConnected
	}
	s.t.hub.Publish(s.channel, data)
	return nil
}

func (s *subscription) Unsubscribe() error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	s.t.removeSubscription(s)
	s.t.hub.leave(s)
	return nil
}
