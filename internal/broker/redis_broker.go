package broker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/safe"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// redisChannelPrefix Redis 频道前缀
const redisChannelPrefix = "live:"

// RedisBrokerConfig Redis Broker 配置
type RedisBrokerConfig struct {
	Addrs       []string
	Password    string
	DB          int
	ClusterMode bool
	PoolSize    int
	// PresenceTTL 在线成员记录的过期时间，0 表示不过期
	PresenceTTL time.Duration
}

// RedisBroker Redis 消息代理（基于 Pub/Sub），每个主题一个本地通道
type RedisBroker struct {
	*dispose.ServiceBase
	client      redis.UniversalClient
	pubsub      *redis.PubSub
	subscribers map[string]chan *Message // topic -> channel
	mu          sync.RWMutex
	nodeID      string
	closed      bool
	looping     bool
}

// NewRedisBroker 创建 Redis 消息代理
func NewRedisBroker(parentCtx context.Context, config *RedisBrokerConfig, nodeID string) (*RedisBroker, error) {
	if config == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "redis broker config is required")
	}

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 100
	}

	var client redis.UniversalClient
	if config.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    config.Addrs,
			Password: config.Password,
			PoolSize: poolSize,
		})
	} else {
		addr := "localhost:6379"
		if len(config.Addrs) > 0 {
			addr = config.Addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.Password,
			DB:       config.DB,
			PoolSize: poolSize,
		})
	}

	pingCtx, pingCancel := context.WithTimeout(parentCtx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to connect to redis")
	}

	broker := &RedisBroker{
		ServiceBase: dispose.NewService("RedisBroker", parentCtx),
		client:      client,
		subscribers: make(map[string]chan *Message),
		nodeID:      nodeID,
	}

	corelog.Infof("RedisBroker initialized for node: %s (cluster_mode: %v)", nodeID, config.ClusterMode)
	return broker, nil
}

// Client 底层 Redis 客户端，供在线成员存储共享
func (r *RedisBroker) Client() redis.UniversalClient {
	return r.client
}

func (r *RedisBroker) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Publish 发布消息到指定主题
func (r *RedisBroker) Publish(ctx context.Context, topic string, message []byte) error {
	if r.isClosed() {
		return coreerrors.ErrServiceClosed
	}

	data, err := json.Marshal(&Message{
		Topic:     topic,
		Payload:   message,
		Timestamp: time.Now(),
		NodeID:    r.nodeID,
	})
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInvalidData, "failed to marshal message")
	}

	if err := r.client.Publish(ctx, redisChannelPrefix+topic, data).Err(); err != nil {
		corelog.Errorf("RedisBroker: failed to publish to %s: %v", topic, err)
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to publish to redis")
	}

	corelog.Debugf("RedisBroker: published message to topic %s", topic)
	return nil
}

// Subscribe 订阅主题，同一主题只能订阅一次
func (r *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan *Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, coreerrors.ErrServiceClosed
	}
	if _, exists := r.subscribers[topic]; exists {
		return nil, coreerrors.Newf(coreerrors.CodeSubscribeFailed, "already subscribed to topic: %s", topic)
	}

	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(r.Ctx())
	}
	if err := r.pubsub.Subscribe(ctx, redisChannelPrefix+topic); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to subscribe to redis")
	}

	msgChan := make(chan *Message, subscriberBuffer)
	r.subscribers[topic] = msgChan

	if !r.looping {
		r.looping = true
		pubsub := r.pubsub
		safe.Go("redis-receive", func() { r.receiveLoop(pubsub) })
	}

	corelog.Debugf("RedisBroker: subscribed to topic %s (total topics: %d)", topic, len(r.subscribers))
	return msgChan, nil
}

// receiveLoop 接收 Redis 消息并按主题分发，出错时指数退避
func (r *RedisBroker) receiveLoop(pubsub *redis.PubSub) {
	corelog.Debugf("RedisBroker: receive loop started")
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	for {
		msg, err := pubsub.ReceiveMessage(r.Ctx())
		if err != nil {
			if r.Ctx().Err() != nil || r.isClosed() {
				corelog.Debugf("RedisBroker: receive loop stopped")
				return
			}
			wait := bo.NextBackOff()
			corelog.Errorf("RedisBroker: failed to receive message, retry in %s: %v", wait, err)
			select {
			case <-time.After(wait):
			case <-r.Ctx().Done():
				return
			}
			continue
		}
		bo.Reset()

		var message Message
		if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
			corelog.Errorf("RedisBroker: failed to unmarshal message on %s: %v", msg.Channel, err)
			continue
		}
		if message.Topic == "" {
			message.Topic = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		}
		r.dispatch(&message)
	}
}

func (r *RedisBroker) dispatch(message *Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, exists := r.subscribers[message.Topic]
	if !exists {
		return
	}
	select {
	case ch <- message:
	default:
		corelog.Warnf("RedisBroker: subscriber channel full for topic %s, dropping message", message.Topic)
	}
}

// Unsubscribe 取消订阅
func (r *RedisBroker) Unsubscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return coreerrors.ErrServiceClosed
	}

	ch, exists := r.subscribers[topic]
	if !exists {
		return coreerrors.Newf(coreerrors.CodeNotFound, "not subscribed to topic: %s", topic)
	}

	if r.pubsub != nil {
		if err := r.pubsub.Unsubscribe(ctx, redisChannelPrefix+topic); err != nil {
			corelog.Warnf("RedisBroker: failed to unsubscribe from redis: %v", err)
		}
	}

	close(ch)
	delete(r.subscribers, topic)

	corelog.Debugf("RedisBroker: unsubscribed from topic %s", topic)
	return nil
}

// Ping 检查 Redis 连接
func (r *RedisBroker) Ping(ctx context.Context) error {
	if r.isClosed() {
		return coreerrors.ErrServiceClosed
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "redis ping failed")
	}
	return nil
}

// Close 关闭消息代理
func (r *RedisBroker) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	if r.pubsub != nil {
		if err := r.pubsub.Close(); err != nil {
			corelog.Warnf("RedisBroker: failed to close pubsub: %v", err)
		}
	}
	for topic, ch := range r.subscribers {
		close(ch)
		corelog.Debugf("RedisBroker: closed subscriber for topic %s", topic)
	}
	r.subscribers = make(map[string]chan *Message)

	if err := r.client.Close(); err != nil {
		corelog.Warnf("RedisBroker: failed to close redis client: %v", err)
	}
	r.mu.Unlock()

	corelog.Infof("RedisBroker closed for node: %s", r.nodeID)
	return r.ServiceBase.Close()
}

// GetSubscriberCount 主题的本地订阅数（0 或 1）
func (r *RedisBroker) GetSubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, exists := r.subscribers[topic]; exists {
		return 1
	}
	return 0
}
