package events

import (
	"encoding/json"
	"time"

	"live-core/internal/live"
)

// 事件类型
const (
	TypeMessage         = "live.message"
	TypeStatus          = "live.status"
	TypeJoin            = "live.join"
	TypeLeave           = "live.leave"
	TypeConnectionState = "live.connection"
	TypePublication     = "live.publication"
	TypeChannelOpened   = "live.channel.opened"
	TypeChannelClosed   = "live.channel.closed"
)

// Event 事件接口
type Event interface {
	Type() string
	Timestamp() time.Time
	Source() string
}

// EventHandler 事件处理器
type EventHandler func(event Event) error

// EventBus 事件总线接口
type EventBus interface {
	// Publish 发布事件，同一总线上的事件按发布顺序投递
	Publish(event Event) error

	// Subscribe 订阅事件，返回的 id 用于取消订阅
	Subscribe(eventType string, handler EventHandler) (string, error)

	// Unsubscribe 取消订阅
	Unsubscribe(id string) error

	// Close 关闭事件总线
	Close() error
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType   string    `json:"type"`
	EventTime   time.Time `json:"time"`
	EventSource string    `json:"source"`
}

func newBase(eventType, source string) BaseEvent {
	return BaseEvent{EventType: eventType, EventTime: time.Now(), EventSource: source}
}

func (e *BaseEvent) Type() string {
	return e.EventType
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func (e *BaseEvent) Source() string {
	return e.EventSource
}

// ==================== 通道事件 ====================

// MessageEvent 通道消息事件，Message 为原始帧 JSON
type MessageEvent struct {
	BaseEvent
	Message json.RawMessage `json:"message"`
}

// NewMessageEvent 创建消息事件
func NewMessageEvent(channelID string, message json.RawMessage) *MessageEvent {
	return &MessageEvent{BaseEvent: newBase(TypeMessage, channelID), Message: message}
}

// StatusEvent 通道状态事件
type StatusEvent struct {
	BaseEvent
	State   live.ConnectionState `json:"state"`
	Error   error                `json:"-"`
	Message json.RawMessage      `json:"message,omitempty"`
}

// NewStatusEvent 创建状态事件
func NewStatusEvent(status live.Status) *StatusEvent {
	return &StatusEvent{
		BaseEvent: BaseEvent{EventType: TypeStatus, EventTime: status.Timestamp, EventSource: status.ID},
		State:     status.State,
		Error:     status.Error,
		Message:   status.Message,
	}
}

// PresenceEvent 成员加入/离开事件
type PresenceEvent struct {
	BaseEvent
	Client live.ClientInfo `json:"client"`
}

// NewJoinEvent 创建加入事件
func NewJoinEvent(channelID string, info live.ClientInfo) *PresenceEvent {
	return &PresenceEvent{BaseEvent: newBase(TypeJoin, channelID), Client: info}
}

// NewLeaveEvent 创建离开事件
func NewLeaveEvent(channelID string, info live.ClientInfo) *PresenceEvent {
	return &PresenceEvent{BaseEvent: newBase(TypeLeave, channelID), Client: info}
}

// ==================== 服务级事件 ====================

// ConnectionStateEvent 连接状态变化
type ConnectionStateEvent struct {
	BaseEvent
	Connected bool `json:"connected"`
}

// NewConnectionStateEvent 创建连接状态事件
func NewConnectionStateEvent(connected bool) *ConnectionStateEvent {
	return &ConnectionStateEvent{BaseEvent: newBase(TypeConnectionState, "connection"), Connected: connected}
}

// PublicationEvent 服务端下发的非订阅发布
type PublicationEvent struct {
	BaseEvent
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// NewPublicationEvent 创建服务端发布事件
func NewPublicationEvent(channel string, data json.RawMessage) *PublicationEvent {
	return &PublicationEvent{BaseEvent: newBase(TypePublication, "connection"), Channel: channel, Data: data}
}

// ChannelLifecycleEvent 通道注册/注销事件
type ChannelLifecycleEvent struct {
	BaseEvent
	ChannelID string `json:"channel_id"`
	Reason    string `json:"reason,omitempty"`
}

// NewChannelOpenedEvent 创建通道注册事件
func NewChannelOpenedEvent(channelID string) *ChannelLifecycleEvent {
	return &ChannelLifecycleEvent{BaseEvent: newBase(TypeChannelOpened, "registry"), ChannelID: channelID}
}

// NewChannelClosedEvent 创建通道注销事件
func NewChannelClosedEvent(channelID, reason string) *ChannelLifecycleEvent {
	return &ChannelLifecycleEvent{BaseEvent: newBase(TypeChannelClosed, "registry"), ChannelID: channelID, Reason: reason}
}
