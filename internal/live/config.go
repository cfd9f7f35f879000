package live

import (
	"encoding/json"
	"time"

	coreerrors "live-core/internal/core/errors"
)

// DefaultSubscriberBuffer 每个流订阅者的默认缓冲事件数
const DefaultSubscriberBuffer = 1024

// ChannelConfig 通道能力配置
type ChannelConfig struct {
	Description string `json:"description,omitempty" yaml:"description"`
	HasPresence bool   `json:"hasPresence,omitempty" yaml:"has_presence"`
	CanPublish  bool   `json:"canPublish,omitempty" yaml:"can_publish"`

	// SubscriberBuffer 每个流订阅者的缓冲大小，0 表示使用默认值
	SubscriberBuffer int `json:"-" yaml:"subscriber_buffer"`
}

// Validate 校验通道配置
func (c ChannelConfig) Validate() error {
	if c.SubscriberBuffer < 0 {
		return coreerrors.Newf(coreerrors.CodeInvalidConfig, "subscriber buffer must be >= 0, got %d", c.SubscriberBuffer)
	}
	return nil
}

// BufferSize 返回生效的订阅者缓冲大小
func (c ChannelConfig) BufferSize() int {
	if c.SubscriberBuffer > 0 {
		return c.SubscriberBuffer
	}
	return DefaultSubscriberBuffer
}

// ConnectionState 通道连接状态
type ConnectionState string

const (
	StatePending      ConnectionState = "pending"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateShutdown     ConnectionState = "shutdown"
	StateInvalid      ConnectionState = "invalid"
)

// IsTerminal 终态不再迁移
func (s ConnectionState) IsTerminal() bool {
	return s == StateShutdown || s == StateInvalid
}

// ClientInfo 在线成员信息
type ClientInfo struct {
	Client   string          `json:"client"`
	User     string          `json:"user,omitempty"`
	ConnInfo json.RawMessage `json:"connInfo,omitempty"`
	ChanInfo json.RawMessage `json:"chanInfo,omitempty"`
}

// Status 通道状态快照
type Status struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	State     ConnectionState `json:"state"`
	Error     error           `json:"-"`
	Message   json.RawMessage `json:"message,omitempty"`
}
