// Package websocket 基于 gorilla/websocket 的传输层实现
//
// 连接断开后按指数退避自动重连，重连成功后重新订阅所有通道。
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/protocol"
	"live-core/internal/transport"

	"github.com/cenkalti/backoff/v4"
	"github.com/filecoin-project/go-clock"
	"github.com/gorilla/websocket"
)

func init() {
	transport.Register("websocket", 10, func(opts transport.Options) (transport.Transport, error) {
		return New(context.Background(), opts)
	})
}

const (
	bufferSize       = 32 * 1024
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	queueSize        = 4096

	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 20 * time.Second
)

type replyHandler func(reply *protocol.Reply, err error)

// Transport websocket 传输层
type Transport struct {
	*dispose.ResourceBase

	url    string
	dialer *websocket.Dialer
	clock  clock.Clock
	policy *backoff.ExponentialBackOff
	queue  chan func()
	nextID atomic.Uint64

	startOnce sync.Once
	writeMu   sync.Mutex

	mu          sync.Mutex
	handlers    transport.Handlers
	conn        *websocket.Conn
	connected   bool
	clientID    string
	connectData transport.ConnectData
	subs        map[string]*subscription
	pending     map[uint64]replyHandler
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 websocket 传输层，opts.URL 可以是应用地址或 websocket 地址
func New(ctx context.Context, opts transport.Options) (*Transport, error) {
	wsURL, err := NormalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = DefaultReconnectInitial
	policy.MaxInterval = DefaultReconnectMax
	if opts.ReconnectInitial > 0 {
		policy.InitialInterval = opts.ReconnectInitial
	}
	if opts.ReconnectMax > 0 {
		policy.MaxInterval = opts.ReconnectMax
	}
	policy.MaxElapsedTime = 0
	policy.Clock = clk
	policy.Reset()

	t := &Transport{
		ResourceBase: dispose.NewResourceBase("WebSocketTransport"),
		url:          wsURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   bufferSize,
			WriteBufferSize:  bufferSize,
		},
		clock:   clk,
		policy:  policy,
		queue:   make(chan func(), queueSize),
		subs:    make(map[string]*subscription),
		pending: make(map[uint64]replyHandler),
	}
	t.ResourceBase.Initialize(ctx)
	t.AddCleanHandler(t.onClose)
	safe.Go("ws-dispatch", t.dispatchLoop)
	return t, nil
}

// URL websocket 地址
func (t *Transport) URL() string {
	return t.url
}

func (t *Transport) onClose() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
	t.failPending(coreerrors.ErrServiceClosed)
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

// SetHandlers 设置连接级回调
func (t *Transport) SetHandlers(h transport.Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// IsConnected 是否已连接
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// ClientID 服务器分配的客户端 id
func (t *Transport) ClientID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clientID
}

// Connect 启动连接循环，立即返回
func (t *Transport) Connect(ctx context.Context, data transport.ConnectData) error {
	if t.IsClosed() {
		return coreerrors.ErrServiceClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.connectData = data
	t.mu.Unlock()
	t.startOnce.Do(func() { go t.run() })
	return nil
}

// run 连接循环：拨号、握手、读取，断开后退避重连
func (t *Transport) run() {
	ctx := t.Ctx()
	for {
		err := t.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			t.policy.Reset()
			err = t.readLoop()
			t.handleDisconnect(err)
			if ctx.Err() != nil {
				return
			}
		} else {
			corelog.Warnf("WebSocketTransport: connect to %s failed: %v", t.url, err)
		}

		wait := t.policy.NextBackOff()
		corelog.Debugf("WebSocketTransport: reconnecting in %s", wait)
		timer := t.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) connectOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := t.dialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeTransportError, "websocket dial failed")
	}

	t.mu.Lock()
	data := t.connectData
	t.mu.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		_ = conn.Close()
		return coreerrors.Wrap(err, coreerrors.CodeProtocolError, "encode connect data")
	}
	cmd, err := protocol.NewCommand(t.nextID.Add(1), protocol.MethodConnect, protocol.ConnectParams{Token: data.Token, Data: payload})
	if err != nil {
		_ = conn.Close()
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		_ = conn.Close()
		return coreerrors.Wrap(err, coreerrors.CodeTransportError, "send connect")
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return coreerrors.Wrap(err, coreerrors.CodeTransportError, "read connect reply")
	}
	_ = conn.SetReadDeadline(time.Time{})

	reply, err := protocol.DecodeReply(raw)
	if err != nil {
		_ = conn.Close()
		return err
	}
	var result protocol.ConnectResult
	if err := reply.DecodeResult(&result); err != nil {
		_ = conn.Close()
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.clientID = result.Client
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	corelog.Infof("WebSocketTransport: connected to %s as %s", t.url, result.Client)
	t.enqueue(func() {
		if cb := t.getHandlers().OnConnect; cb != nil {
			cb(result.Client)
		}
	})
	for _, s := range subs {
		t.sendSubscribe(s)
	}
	return nil
}

func (t *Transport) handleDisconnect(reason error) {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	t.failPending(coreerrors.Wrap(reason, coreerrors.CodeNotConnected, "connection lost"))
	if !wasConnected || t.IsClosed() {
		return
	}
	corelog.Warnf("WebSocketTransport: disconnected from %s: %v", t.url, reason)
	t.enqueue(func() {
		if cb := t.getHandlers().OnDisconnect; cb != nil {
			cb(reason)
		}
	})
}

func (t *Transport) failPending(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint64]replyHandler)
	t.mu.Unlock()
	for _, h := range pending {
		h(nil, err)
	}
}

// readLoop 读取服务器消息直到连接出错
func (t *Transport) readLoop() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return coreerrors.ErrNotConnected
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return coreerrors.Wrap(err, coreerrors.CodeTransportError, "websocket read failed")
		}
		reply, err := protocol.DecodeReply(raw)
		if err != nil {
			corelog.Warnf("WebSocketTransport: dropping malformed message: %v", err)
			continue
		}
		if reply.IsPush() {
			t.handlePush(reply.Push)
			continue
		}
		t.mu.Lock()
		h, ok := t.pending[reply.ID]
		delete(t.pending, reply.ID)
		t.mu.Unlock()
		if ok {
			h(reply, nil)
		}
	}
}

func (t *Transport) handlePush(push *protocol.Push) {
	t.mu.Lock()
	s := t.subs[push.Channel]
	t.mu.Unlock()

	if s == nil {
		if push.Type == protocol.PushPublication {
			t.enqueue(func() {
				if cb := t.getHandlers().OnPublish; cb != nil {
					cb(push.Channel, push.Data)
				}
			})
		}
		return
	}

	switch push.Type {
	case protocol.PushPublication:
		s.deliver(func(h transport.SubscriptionHandlers) {
			if h.OnMessage != nil {
				h.OnMessage(push.Data)
			}
		})
	case protocol.PushJoin, protocol.PushLeave:
		if push.Info == nil {
			return
		}
		info := *push.Info
		join := push.Type == protocol.PushJoin
		s.deliver(func(h transport.SubscriptionHandlers) {
			if join && h.OnJoin != nil {
				h.OnJoin(info)
			} else if !join && h.OnLeave != nil {
				h.OnLeave(info)
			}
		})
	case protocol.PushUnsubscribe:
		t.removeSubscription(s)
		// 排在此前的推送之后执行，客户端已主动取消时不再回调
		t.enqueue(func() {
			if !s.active.CompareAndSwap(true, false) {
				return
			}
			if cb := s.handlers.OnUnsubscribe; cb != nil {
				cb()
			}
		})
	default:
		corelog.Debugf("WebSocketTransport: ignoring push type %s on %s", push.Type, push.Channel)
	}
}

// send 发送命令，h 在读取协程中以应答调用
func (t *Transport) send(method protocol.Method, params any, h replyHandler) error {
	id := t.nextID.Add(1)
	cmd, err := protocol.NewCommand(id, method, params)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	if conn == nil || !t.connected {
		t.mu.Unlock()
		return coreerrors.ErrNotConnected
	}
	if h != nil {
		t.pending[id] = h
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(cmd)
	t.writeMu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return coreerrors.Wrapf(err, coreerrors.CodeTransportError, "send %s", method)
	}
	return nil
}

// call 发送命令并等待应答
func (t *Transport) call(ctx context.Context, method protocol.Method, params any, out any) error {
	done := make(chan error, 1)
	err := t.send(method, params, func(reply *protocol.Reply, err error) {
		if err != nil {
			done <- err
			return
		}
		done <- reply.DecodeResult(out)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return coreerrors.Wrapf(ctx.Err(), coreerrors.CodeTimeout, "%s", method)
	}
}

// Subscribe 创建订阅，已连接时立即发送订阅命令
func (t *Transport) Subscribe(channel string, h transport.SubscriptionHandlers) (transport.Subscription, error) {
	if t.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}
	t.mu.Lock()
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
		t.sendSubscribe(s)
	}
	return s, nil
}

func (t *Transport) sendSubscribe(s *subscription) {
	err := t.send(protocol.MethodSubscribe, protocol.ChannelParams{Channel: s.channel}, func(reply *protocol.Reply, err error) {
		if err != nil {
			// 连接断开导致的失败由重连后的重新订阅处理
			return
		}
		var result protocol.SubscribeResult
		if err := reply.DecodeResult(&result); err != nil {
			s.deliver(func(h transport.SubscriptionHandlers) {
				if h.OnError != nil {
					h.OnError(coreerrors.Wrapf(err, coreerrors.CodeSubscribeFailed, "subscribe %s", s.channel))
				}
			})
			return
		}
		s.deliver(func(h transport.SubscriptionHandlers) {
			if h.OnSubscribe != nil {
				h.OnSubscribe(result.Data)
			}
		})
	})
	if err != nil && !coreerrors.IsCode(err, coreerrors.CodeNotConnected) {
		s.deliver(func(h transport.SubscriptionHandlers) {
			if h.OnError != nil {
				h.OnError(err)
			}
		})
	}
}

func (t *Transport) removeSubscription(s *subscription) {
	t.mu.Lock()
	if cur, ok := t.subs[s.channel]; ok && cur == s {
		delete(t.subs, s.channel)
	}
	t.mu.Unlock()
}

// subscription websocket 订阅
type subscription struct {
	t        *Transport
	channel  string
	handlers transport.SubscriptionHandlers
	active   atomic.Bool
}

func (s *subscription) deliver(fn func(transport.SubscriptionHandlers)) {
	s.t.enqueue(func() {
		if s.active.Load() {
			fn(s.handlers)
		}
	})
}

func (s *subscription) Channel() string {
	return s.channel
}

func (s *subscription) Presence(ctx context.Context) (map[string]live.ClientInfo, error) {
	var result protocol.PresenceResult
	if err := s.t.call(ctx, protocol.MethodPresence, protocol.ChannelParams{Channel: s.channel}, &result); err != nil {
		return nil, err
	}
	if result.Presence == nil {
		result.Presence = make(map[string]live.ClientInfo)
	}
	return result.Presence, nil
}

func (s *subscription) Publish(ctx context.Context, data json.RawMessage) error {
	return s.t.call(ctx, protocol.MethodPublish, protocol.PublishParams{Channel: s.channel, Data: data}, nil)
}

func (s *subscription) Unsubscribe() error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	s.t.removeSubscription(s)
	err := s.t.send(protocol.MethodUnsubscribe, protocol.ChannelParams{Channel: s.channel}, nil)
	if err != nil && !coreerrors.IsCode(err, coreerrors.CodeNotConnected) {
		return err
	}
	return nil
}
