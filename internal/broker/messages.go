package broker

import (
	"encoding/json"

	"live-core/internal/live"
)

// MessageKind 通道消息类型
type MessageKind string

const (
	KindPublication MessageKind = "publication"
	KindJoin        MessageKind = "join"
	KindLeave       MessageKind = "leave"
)

// PublicationMessage 通道消息：发布时 Data 为帧 JSON，加入/离开时 Info 为成员信息
type PublicationMessage struct {
	Kind      MessageKind      `json:"kind,omitempty"`
	Channel   string           `json:"channel"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Info      *live.ClientInfo `json:"info,omitempty"`
	Source    string           `json:"source"` // push / client
	ClientID  string           `json:"client_id,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// EffectiveKind 未标注类型的旧消息按发布处理
func (m *PublicationMessage) EffectiveKind() MessageKind {
	if m.Kind == "" {
		return KindPublication
	}
	return m.Kind
}

// ControlAction 控制动作
type ControlAction string

const (
	// ControlUnsubscribe 服务器端取消通道的全部订阅
	ControlUnsubscribe ControlAction = "unsubscribe"
)

// ControlMessage 控制消息
type ControlMessage struct {
	Action    ControlAction `json:"action"`
	Channel   string        `json:"channel"`
	Timestamp int64         `json:"timestamp"`
}
