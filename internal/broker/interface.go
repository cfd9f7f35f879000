// Package broker 为推送服务器提供跨节点的发布订阅与在线成员存储
package broker

import (
	"context"
	"time"
)

// MessageBroker 消息代理接口
type MessageBroker interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe 订阅主题，返回消息通道
	Subscribe(ctx context.Context, topic string) (<-chan *Message, error)

	// Unsubscribe 取消订阅，关闭该主题的消息通道
	Unsubscribe(ctx context.Context, topic string) error

	// Ping 健康检查
	Ping(ctx context.Context) error

	// Close 关闭连接
	Close() error
}

// Message 消息结构
type Message struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// 主题
const (
	// TopicControl 跨节点控制消息（服务器端取消订阅等）
	TopicControl = "live.control"
	// topicChannelPrefix 通道发布主题前缀
	topicChannelPrefix = "live.channel."
)

// ChannelTopic 通道 id 对应的发布主题
func ChannelTopic(channelID string) string {
	return topicChannelPrefix + channelID
}

// subscriberBuffer 每个订阅者的消息缓冲
const subscriberBuffer = 256
