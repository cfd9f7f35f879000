package broker

import (
	"context"

	coreerrors "live-core/internal/core/errors"
)

// BrokerType 消息代理类型
type BrokerType string

const (
	BrokerTypeMemory BrokerType = "memory"
	BrokerTypeRedis  BrokerType = "redis"
)

// BrokerConfig 消息代理配置
type BrokerConfig struct {
	Type   BrokerType // memory / redis
	NodeID string

	Redis *RedisBrokerConfig
}

// Backend 消息代理及与之配套的在线成员存储
type Backend struct {
	Broker   MessageBroker
	Presence PresenceStore
}

// NewMessageBroker 创建消息代理
func NewMessageBroker(ctx context.Context, config *BrokerConfig) (MessageBroker, error) {
	backend, err := NewBackend(ctx, config)
	if err != nil {
		return nil, err
	}
	return backend.Broker, nil
}

// NewBackend 创建消息代理与在线成员存储；redis 模式下二者共享同一客户端
func NewBackend(ctx context.Context, config *BrokerConfig) (*Backend, error) {
	if config == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "broker config is required")
	}

	switch config.Type {
	case BrokerTypeMemory, "":
		return &Backend{
			Broker:   NewMemoryBroker(ctx, config.NodeID),
			Presence: NewMemoryPresence(),
		}, nil

	case BrokerTypeRedis:
		if config.Redis == nil {
			return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "redis config is required for redis broker")
		}
		rb, err := NewRedisBroker(ctx, config.Redis, config.NodeID)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Broker:   rb,
			Presence: NewRedisPresence(rb.Client(), config.Redis.PresenceTTL),
		}, nil

	default:
		return nil, coreerrors.Newf(coreerrors.CodeInvalidConfig, "unsupported broker type: %s", config.Type)
	}
}

// DefaultBrokerConfig 默认配置（单节点内存模式）
func DefaultBrokerConfig(nodeID string) *BrokerConfig {
	return &BrokerConfig{
		Type:   BrokerTypeMemory,
		NodeID: nodeID,
	}
}
