// Package memory 进程内传输层，Hub 充当推送服务器
package memory

import (
	"encoding/json"
	"sync"

	"live-core/internal/live"
)

type hubChannel struct {
	subs map[*subscription]struct{}
	last json.RawMessage
}

// Hub 进程内推送服务器
type Hub struct {
	mu       sync.Mutex
	channels map[string]*hubChannel
	clients  map[*Transport]struct{}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]*hubChannel),
		clients:  make(map[*Transport]struct{}),
	}
}

var defaultHub = NewHub()

// DefaultHub 进程级默认 Hub，由注册表创建的传输层共享
func DefaultHub() *Hub {
	return defaultHub
}

func (h *Hub) channel(name string) *hubChannel {
	ch, ok := h.channels[name]
	if !ok {
		ch = &hubChannel{subs: make(map[*subscription]struct{})}
		h.channels[name] = ch
	}
	return ch
}

// Publish 向通道发布并记录为最近一次发布，返回投递的订阅数
func (h *Hub) Publish(channel string, data json.RawMessage) int {
	h.mu.Lock()
	ch := h.channel(channel)
	ch.last = append(json.RawMessage(nil), data...)
	targets := make([]*subscription, 0, len(ch.subs))
	for s := range ch.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.deliver(func(hs *subscription) {
			if hs.handlers.OnMessage != nil {
				hs.handlers.OnMessage(data)
			}
		})
	}
	return len(targets)
}

// Broadcast 服务器端非订阅发布，投递给所有已连接客户端
func (h *Hub) Broadcast(channel string, data json.RawMessage) {
	h.mu.Lock()
	clients := make([]*Transport, 0, len(h.clients))
	for t := range h.clients {
		clients = append(clients, t)
	}
	h.mu.Unlock()

	for _, t := range clients {
		t.enqueue(func() {
			if cb := t.getHandlers().OnPublish; cb != nil {
				cb(channel, data)
			}
		})
	}
}

// Unsubscribe 服务器端取消通道的全部订阅
func (h *Hub) Unsubscribe(channel string) {
	h.mu.Lock()
	ch, ok := h.channels[channel]
	var targets []*subscription
	if ok {
		for s := range ch.subs {
			targets = append(targets, s)
		}
		ch.subs = make(map[*subscription]struct{})
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.deliver(func(hs *subscription) {
			if hs.handlers.OnUnsubscribe != nil {
				hs.handlers.OnUnsubscribe()
			}
		})
	}
}

// Presence 通道当前在线成员
func (h *Hub) Presence(channel string) map[string]live.ClientInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]live.ClientInfo)
	if ch, ok := h.channels[channel]; ok {
		for s := range ch.subs {
			info := s.t.clientInfo()
			out[info.Client] = info
		}
	}
	return out
}

// Last 通道最近一次发布
func (h *Hub) Last(channel string) json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[channel]; ok {
		return ch.last
	}
	return nil
}

// Subscribers 通道订阅数
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[channel]; ok {
		return len(ch.subs)
	}
	return 0
}

func (h *Hub) addClient(t *Transport) {
	h.mu.Lock()
	h.clients[t] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) removeClient(t *Transport) {
	h.mu.Lock()
	delete(h.clients, t)
	h.mu.Unlock()
}

// join 加入通道，返回最近一次发布
func (h *Hub) join(s *subscription) json.RawMessage {
	info := s.t.clientInfo()
	h.mu.Lock()
	ch := h.channel(s.channel)
	others := make([]*subscription, 0, len(ch.subs))
	for o := range ch.subs {
		others = append(others, o)
	}
	ch.subs[s] = struct{}{}
	last := ch.last
	h.mu.Unlock()

	for _, o := range others {
		o.deliver(func(hs *subscription) {
			if hs.handlers.OnJoin != nil {
				hs.handlers.OnJoin(info)
			}
		})
	}
	return last
}

// leave 离开通道
func (h *Hub) leave(s *subscription) {
	info := s.t.clientInfo()
	h.mu.Lock()
	ch, ok := h.channels[s.channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := ch.subs[s]; !member {
		h.mu.Unlock()
		return
	}
	delete(ch.subs, s)
	others := make([]*subscription, 0, len(ch.subs))
	for o := range ch.subs {
		others = append(others, o)
	}
	h.mu.Unlock()

	for _, o := range others {
		o.deliver(func(hs *subscription) {
			if hs.handlers.OnLeave != nil {
				hs.handlers.OnLeave(info)
			}
		})
	}
}
