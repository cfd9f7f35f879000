package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"live-core/internal/broker"
	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/protocol"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Subscriber 接收推送的本地会话
type Subscriber interface {
	ID() string
	// Send 非阻塞投递，队列满或会话已关闭时返回 false
	Send(push *protocol.Push) bool
}

type member struct {
	sub  Subscriber
	info live.ClientInfo
}

type hubChannel struct {
	members   map[string]*member
	listening bool
}

// ChannelInfo 本节点通道概况
type ChannelInfo struct {
	Channel     string `json:"channel"`
	Subscribers int    `json:"subscribers"`
	HasLast     bool   `json:"has_last"`
}

// Hub 推送中心：本地会话的通道订阅表，经消息代理在节点间转发发布与在线成员变化
type Hub struct {
	*dispose.ServiceBase

	broker   broker.MessageBroker
	presence broker.PresenceStore
	nodeID   string
	last     *lru.Cache[string, json.RawMessage]

	group   singleflight.Group
	topicMu sync.Mutex

	mu        sync.RWMutex
	channels  map[string]*hubChannel
	bySession map[string]map[string]struct{}
}

// NewHub 创建推送中心并订阅控制主题
func NewHub(ctx context.Context, backend *broker.Backend, nodeID string, cacheSize int) (*Hub, error) {
	if backend == nil || backend.Broker == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "broker is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	last, err := lru.New[string, json.RawMessage](cacheSize)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidConfig, "create publication cache")
	}
	presence := backend.Presence
	if presence == nil {
		presence = broker.NewMemoryPresence()
	}
	h := &Hub{
		ServiceBase: dispose.NewService("Hub", ctx),
		broker:      backend.Broker,
		presence:    presence,
		nodeID:      nodeID,
		last:        last,
		channels:    make(map[string]*hubChannel),
		bySession:   make(map[string]map[string]struct{}),
	}

	control, err := h.broker.Subscribe(h.Ctx(), broker.TopicControl)
	if err != nil {
		_ = h.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeSubscribeFailed, "subscribe control topic")
	}
	safe.Go("hub-control", func() { h.controlLoop(control) })
	corelog.Infof("Hub: started on node %s", nodeID)
	return h, nil
}

// ActiveSessions 有订阅的本地会话数
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession)
}

// ActiveChannels 本地有订阅者的通道数
func (h *Hub) ActiveChannels() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Channels 本节点通道列表，按通道 id 排序
func (h *Hub) Channels() []ChannelInfo {
	h.mu.RLock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for id, hc := range h.channels {
		out = append(out, ChannelInfo{Channel: id, Subscribers: len(hc.members)})
	}
	h.mu.RUnlock()
	for i := range out {
		out[i].HasLast = h.last.Contains(out[i].Channel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// LastPublication 通道最近一次发布
func (h *Hub) LastPublication(channel string) (json.RawMessage, bool) {
	return h.last.Get(channel)
}

// Subscribe 把会话加入通道，返回最近一次发布用于回放
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber, channel string, info live.ClientInfo) (json.RawMessage, error) {
	if h.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}
	h.mu.Lock()
	hc := h.channels[channel]
	if hc == nil {
		hc = &hubChannel{members: make(map[string]*member)}
		h.channels[channel] = hc
	}
	if _, dup := hc.members[sub.ID()]; dup {
		h.mu.Unlock()
		return nil, coreerrors.Newf(coreerrors.CodeSubscribeFailed, "already subscribed to %s", channel)
	}
	hc.members[sub.ID()] = &member{sub: sub, info: info}
	chans := h.bySession[sub.ID()]
	if chans == nil {
		chans = make(map[string]struct{})
		h.bySession[sub.ID()] = chans
	}
	chans[channel] = struct{}{}
	listening := hc.listening
	h.mu.Unlock()

	if !listening {
		if err := h.listen(channel); err != nil {
			h.detach(sub.ID(), channel)
			h.unlisten(channel)
			return nil, coreerrors.Wrapf(err, coreerrors.CodeSubscribeFailed, "subscribe %s", channel)
		}
	}

	if err := h.presence.Join(ctx, channel, info); err != nil {
		corelog.Warnf("Hub: presence join on %s failed: %v", channel, err)
	}
	h.broadcast(ctx, &broker.PublicationMessage{Kind: broker.KindJoin, Channel: channel, Info: &info, ClientID: sub.ID()})

	last, _ := h.last.Get(channel)
	corelog.Debugf("Hub: %s subscribed to %s", sub.ID(), channel)
	return last, nil
}

// Unsubscribe 会话离开通道
func (h *Hub) Unsubscribe(ctx context.Context, sub Subscriber, channel string) error {
	m := h.detach(sub.ID(), channel)
	if m == nil {
		return coreerrors.Newf(coreerrors.CodeNotFound, "not subscribed to %s", channel)
	}
	h.leave(ctx, channel, m)
	h.unlisten(channel)
	return nil
}

// RemoveSession 会话断开，离开全部通道
func (h *Hub) RemoveSession(ctx context.Context, sessionID string) {
	h.mu.RLock()
	channels := make([]string, 0, len(h.bySession[sessionID]))
	for ch := range h.bySession[sessionID] {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	for _, ch := range channels {
		if m := h.detach(sessionID, ch); m != nil {
			h.leave(ctx, ch, m)
			h.unlisten(ch)
		}
	}
}

// Presence 通道在线成员
func (h *Hub) Presence(ctx context.Context, channel string) (map[string]live.ClientInfo, error) {
	return h.presence.List(ctx, channel)
}

// Publish 发布到通道：写入最近发布缓存后经消息代理广播
func (h *Hub) Publish(ctx context.Context, channel string, data json.RawMessage, source, clientID string) error {
	if h.IsClosed() {
		return coreerrors.ErrServiceClosed
	}
	h.last.Add(channel, data)
	msg := &broker.PublicationMessage{
		Kind:      broker.KindPublication,
		Channel:   channel,
		Data:      data,
		Source:    source,
		ClientID:  clientID,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInvalidData, "encode publication")
	}
	if err := h.broker.Publish(ctx, broker.ChannelTopic(channel), payload); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeTransportError, "publish %s", channel)
	}
	return nil
}

// ServerUnsubscribe 通知所有节点取消通道的全部订阅
func (h *Hub) ServerUnsubscribe(ctx context.Context, channel string) error {
	payload, err := json.Marshal(&broker.ControlMessage{
		Action:    broker.ControlUnsubscribe,
		Channel:   channel,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInternal, "encode control message")
	}
	if err := h.broker.Publish(ctx, broker.TopicControl, payload); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeTransportError, "publish control message")
	}
	return nil
}

// detach 从订阅表移除会话，返回被移除的成员
func (h *Hub) detach(sessionID, channel string) *member {
	h.mu.Lock()
	defer h.mu.Unlock()
	hc := h.channels[channel]
	if hc == nil {
		return nil
	}
	m := hc.members[sessionID]
	if m == nil {
		return nil
	}
	delete(hc.members, sessionID)
	if chans := h.bySession[sessionID]; chans != nil {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.bySession, sessionID)
		}
	}
	return m
}

func (h *Hub) leave(ctx context.Context, channel string, m *member) {
	if err := h.presence.Leave(ctx, channel, m.info.Client); err != nil {
		corelog.Warnf("Hub: presence leave on %s failed: %v", channel, err)
	}
	info := m.info
	h.broadcast(ctx, &broker.PublicationMessage{Kind: broker.KindLeave, Channel: channel, Info: &info, ClientID: m.sub.ID()})
}

// listen 为通道订阅代理主题；并发的首个订阅合并为一次
func (h *Hub) listen(channel string) error {
	_, err, _ := h.group.Do(channel, func() (interface{}, error) {
		h.topicMu.Lock()
		defer h.topicMu.Unlock()

		h.mu.RLock()
		hc := h.channels[channel]
		skip := hc == nil || hc.listening || len(hc.members) == 0
		h.mu.RUnlock()
		if skip {
			return nil, nil
		}

		msgs, err := h.broker.Subscribe(h.Ctx(), broker.ChannelTopic(channel))
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		hc.listening = true
		h.mu.Unlock()
		safe.Go("hub-forward", func() { h.forward(channel, msgs) })
		corelog.Debugf("Hub: listening on %s", channel)
		return nil, nil
	})
	return err
}

// unlisten 通道没有本地订阅者时退订代理主题
func (h *Hub) unlisten(channel string) {
	h.topicMu.Lock()
	defer h.topicMu.Unlock()

	h.mu.Lock()
	hc := h.channels[channel]
	if hc == nil || len(hc.members) > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.channels, channel)
	listening := hc.listening
	h.mu.Unlock()

	if !listening || h.IsClosed() {
		return
	}
	if err := h.broker.Unsubscribe(h.Ctx(), broker.ChannelTopic(channel)); err != nil {
		corelog.Warnf("Hub: unsubscribe topic for %s failed: %v", channel, err)
	}
	corelog.Debugf("Hub: stopped listening on %s", channel)
}

func (h *Hub) broadcast(ctx context.Context, msg *broker.PublicationMessage) {
	if h.IsClosed() {
		return
	}
	msg.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(msg)
	if err != nil {
		corelog.Warnf("Hub: encode %s message failed: %v", msg.Kind, err)
		return
	}
	if err := h.broker.Publish(ctx, broker.ChannelTopic(msg.Channel), payload); err != nil {
		corelog.Warnf("Hub: broadcast %s on %s failed: %v", msg.Kind, msg.Channel, err)
	}
}

// forward 把代理主题上的消息投递给本地订阅者，主题退订后退出
func (h *Hub) forward(channel string, msgs <-chan *broker.Message) {
	for {
		select {
		case <-h.Ctx().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var pub broker.PublicationMessage
			if err := json.Unmarshal(msg.Payload, &pub); err != nil {
				corelog.Warnf("Hub: dropping malformed message on %s: %v", channel, err)
				continue
			}
			h.dispatch(channel, &pub)
		}
	}
}

func (h *Hub) dispatch(channel string, pub *broker.PublicationMessage) {
	var push *protocol.Push
	exclude := ""
	switch pub.EffectiveKind() {
	case broker.KindPublication:
		h.last.Add(channel, pub.Data)
		push = &protocol.Push{Type: protocol.PushPublication, Channel: channel, Data: pub.Data}
	case broker.KindJoin:
		push = &protocol.Push{Type: protocol.PushJoin, Channel: channel, Info: pub.Info}
		exclude = pub.ClientID
	case broker.KindLeave:
		push = &protocol.Push{Type: protocol.PushLeave, Channel: channel, Info: pub.Info}
		exclude = pub.ClientID
	default:
		corelog.Debugf("Hub: ignoring %s message on %s", pub.Kind, channel)
		return
	}

	for _, sub := range h.subscribers(channel) {
		if sub.ID() == exclude {
			continue
		}
		if !sub.Send(push) {
			metrics.IncServerRejections("slow_consumer")
			corelog.Warnf("Hub: %s push to %s dropped on %s", push.Type, sub.ID(), channel)
		}
	}
}

func (h *Hub) subscribers(channel string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hc := h.channels[channel]
	if hc == nil {
		return nil
	}
	out := make([]Subscriber, 0, len(hc.members))
	for _, m := range hc.members {
		out = append(out, m.sub)
	}
	return out
}

// controlLoop 处理跨节点控制消息
func (h *Hub) controlLoop(msgs <-chan *broker.Message) {
	for {
		select {
		case <-h.Ctx().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ctl broker.ControlMessage
			if err := json.Unmarshal(msg.Payload, &ctl); err != nil {
				corelog.Warnf("Hub: dropping malformed control message: %v", err)
				continue
			}
			switch ctl.Action {
			case broker.ControlUnsubscribe:
				h.unsubscribeAll(ctl.Channel)
			default:
				corelog.Debugf("Hub: ignoring control action %s", ctl.Action)
			}
		}
	}
}

// unsubscribeAll 服务器端取消通道的全部本地订阅
func (h *Hub) unsubscribeAll(channel string) {
	h.mu.RLock()
	var ids []string
	if hc := h.channels[channel]; hc != nil {
		for id := range hc.members {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()
	if len(ids) == 0 {
		return
	}

	push := &protocol.Push{Type: protocol.PushUnsubscribe, Channel: channel}
	for _, id := range ids {
		m := h.detach(id, channel)
		if m == nil {
			continue
		}
		m.sub.Send(push)
		if err := h.presence.Leave(h.Ctx(), channel, m.info.Client); err != nil {
			corelog.Warnf("Hub: presence leave on %s failed: %v", channel, err)
		}
	}
	h.unlisten(channel)
	corelog.Infof("Hub: server unsubscribed %d sessions from %s", len(ids), channel)
}
