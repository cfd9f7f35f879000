// Package transport 定义实时连接传输层边界
//
// 传输层负责一条多路复用连接：建立连接、断线重连、在连接上订阅通道。所有回调都由
// 传输层的单个投递协程按到达顺序调用。
package transport

import (
	"context"
	"encoding/json"

	"live-core/internal/live"
)

// ConnectData 连接时发送给服务器的数据
type ConnectData struct {
	SessionID string `json:"sessionId"`
	OrgID     int64  `json:"orgId"`
	Token     string `json:"-"`
}

// Handlers 连接级回调
type Handlers struct {
	// OnConnect 连接建立（含重连），client 为服务器分配的客户端 id
	OnConnect func(client string)
	// OnDisconnect 连接断开
	OnDisconnect func(reason error)
	// OnPublish 服务器下发的非订阅发布
	OnPublish func(channel string, data json.RawMessage)
}

// SubscriptionHandlers 订阅级回调
type SubscriptionHandlers struct {
	// OnSubscribe 订阅成功（含重连后重新订阅），data 为服务器回放的最近一次发布
	OnSubscribe func(data json.RawMessage)
	OnMessage   func(data json.RawMessage)
	OnError     func(err error)
	OnJoin      func(info live.ClientInfo)
	OnLeave     func(info live.ClientInfo)
	// OnUnsubscribe 服务器端取消订阅
	OnUnsubscribe func()
}

// Subscription 通道订阅句柄
type Subscription interface {
	Channel() string
	Presence(ctx context.Context) (map[string]live.ClientInfo, error)
	Publish(ctx context.Context, data json.RawMessage) error
	Unsubscribe() error
}

// Transport 多路复用连接
type Transport interface {
	// Connect 发起连接，连接建立通过 Handlers.OnConnect 通知
	Connect(ctx context.Context, data ConnectData) error
	IsConnected() bool
	SetHandlers(h Handlers)
	// Subscribe 创建订阅，订阅结果通过 SubscriptionHandlers 异步通知
	Subscribe(channel string, h SubscriptionHandlers) (Subscription, error)
	Close() error
}
