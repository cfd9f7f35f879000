package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"

	"github.com/filecoin-project/go-clock"
)

// memoryTopic 单个主题的订阅者与丢弃计数
type memoryTopic struct {
	subscribers []chan *Message
	dropped     atomic.Int64
}

// MemoryBroker 单节点内存消息代理，订阅者队列满时丢弃该订阅者的这条消息
type MemoryBroker struct {
	*dispose.ServiceBase

	mu     sync.RWMutex
	topics map[string]*memoryTopic
	nodeID string
	clock  clock.Clock
	closed bool
}

// NewMemoryBroker 创建内存消息代理
func NewMemoryBroker(parentCtx context.Context, nodeID string) *MemoryBroker {
	return NewMemoryBrokerWithClock(parentCtx, nodeID, clock.New())
}

// NewMemoryBrokerWithClock 使用指定时钟创建，消息时间戳取自该时钟
func NewMemoryBrokerWithClock(parentCtx context.Context, nodeID string, clk clock.Clock) *MemoryBroker {
	corelog.Infof("MemoryBroker: initialized for node %s", nodeID)
	return &MemoryBroker{
		ServiceBase: dispose.NewService("MemoryBroker", parentCtx),
		topics:      make(map[string]*memoryTopic),
		nodeID:      nodeID,
		clock:       clk,
	}
}

// Publish 发布消息，没有订阅者时直接返回
func (m *MemoryBroker) Publish(ctx context.Context, topic string, message []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return coreerrors.ErrServiceClosed
	}
	t := m.topics[topic]
	if t == nil {
		return nil
	}

	msg := &Message{
		Topic:     topic,
		Payload:   message,
		Timestamp: m.clock.Now(),
		NodeID:    m.nodeID,
	}
	for _, ch := range t.subscribers {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case ch <- msg:
		default:
			t.dropped.Add(1)
			metrics.IncSubscriberDrops("broker")
			corelog.Warnf("MemoryBroker: subscriber queue full for topic %s, message dropped", topic)
		}
	}
	return nil
}

// Subscribe 订阅主题，每次调用得到独立的消息通道
func (m *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan *Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, coreerrors.ErrServiceClosed
	}
	t := m.topics[topic]
	if t == nil {
		t = &memoryTopic{}
		m.topics[topic] = t
	}
	ch := make(chan *Message, subscriberBuffer)
	t.subscribers = append(t.subscribers, ch)

	corelog.Debugf("MemoryBroker: subscribed to %s (%d subscribers)", topic, len(t.subscribers))
	return ch, nil
}

// Unsubscribe 关闭主题的全部订阅通道
func (m *MemoryBroker) Unsubscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return coreerrors.ErrServiceClosed
	}
	t := m.topics[topic]
	if t == nil {
		return coreerrors.Newf(coreerrors.CodeNotFound, "no subscribers for topic: %s", topic)
	}
	t.closeAll()
	delete(m.topics, topic)

	corelog.Debugf("MemoryBroker: unsubscribed from %s", topic)
	return nil
}

func (t *memoryTopic) closeAll() {
	for _, ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = nil
}

// Ping 未关闭即健康
func (m *MemoryBroker) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return coreerrors.ErrServiceClosed
	}
	return nil
}

// Close 关闭全部订阅通道
func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, t := range m.topics {
		t.closeAll()
	}
	m.topics = make(map[string]*memoryTopic)
	m.mu.Unlock()

	corelog.Infof("MemoryBroker: closed for node %s", m.nodeID)
	return m.ServiceBase.Close()
}

// GetSubscriberCount 主题的订阅者数量
func (m *MemoryBroker) GetSubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t := m.topics[topic]; t != nil {
		return len(t.subscribers)
	}
	return 0
}

// DroppedCount 主题因订阅者队列满而丢弃的消息数
func (m *MemoryBroker) DroppedCount(topic string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t := m.topics[topic]; t != nil {
		return t.dropped.Load()
	}
	return 0
}
