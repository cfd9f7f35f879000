// Package protocol 定义客户端与推送服务器之间的 JSON 文本帧协议
//
// 客户端发送 Command，服务器以同 id 的 Reply 应答；服务器主动下发的消息是 id 为 0 的
// Push。每个 websocket 文本帧携带一条消息。
package protocol

import (
	"encoding/json"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"
)

// Method 命令方法
type Method string

const (
	MethodConnect     Method = "connect"
	MethodSubscribe   Method = "subscribe"
	MethodUnsubscribe Method = "unsubscribe"
	MethodPresence    Method = "presence"
	MethodPublish     Method = "publish"
)

// PushType 推送类型
type PushType string

const (
	PushPublication PushType = "publication"
	PushJoin        PushType = "join"
	PushLeave       PushType = "leave"
	PushUnsubscribe PushType = "unsubscribe"
)

// Command 客户端命令
type Command struct {
	ID     uint64          `json:"id"`
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ReplyError 命令错误应答
type ReplyError struct {
	Code    coreerrors.ErrorCode `json:"code"`
	Message string               `json:"message"`
}

// Err 转换为带错误码的 error
func (e *ReplyError) Err() error {
	if e == nil {
		return nil
	}
	return coreerrors.New(e.Code, e.Message)
}

// Push 服务器推送
type Push struct {
	Type    PushType         `json:"type"`
	Channel string           `json:"channel"`
	Data    json.RawMessage  `json:"data,omitempty"`
	Info    *live.ClientInfo `json:"info,omitempty"`
}

// Reply 服务器消息，命令应答或推送二选一
type Reply struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ReplyError     `json:"error,omitempty"`
	Push   *Push           `json:"push,omitempty"`
}

// IsPush 是否为推送
func (r *Reply) IsPush() bool {
	return r.Push != nil
}

// ==================== 参数与结果 ====================

// ConnectParams connect 参数
type ConnectParams struct {
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConnectResult connect 结果
type ConnectResult struct {
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// ChannelParams subscribe / unsubscribe / presence 参数
type ChannelParams struct {
	Channel string `json:"channel"`
}

// SubscribeResult subscribe 结果，Data 为通道最近一次发布（可为空）
type SubscribeResult struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// PresenceResult presence 结果
type PresenceResult struct {
	Presence map[string]live.ClientInfo `json:"presence"`
}

// PublishParams publish 参数
type PublishParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}
