package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/live"

	"github.com/redis/go-redis/v9"
)

// PresenceStore 通道在线成员存储
type PresenceStore interface {
	// Join 记录成员加入
	Join(ctx context.Context, channel string, info live.ClientInfo) error
	// Leave 移除成员
	Leave(ctx context.Context, channel, client string) error
	// List 列出通道在线成员，键为客户端 id
	List(ctx context.Context, channel string) (map[string]live.ClientInfo, error)
}

// MemoryPresence 单节点在线成员存储
type MemoryPresence struct {
	mu       sync.RWMutex
	channels map[string]map[string]live.ClientInfo
}

// NewMemoryPresence 创建内存在线成员存储
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{channels: make(map[string]map[string]live.ClientInfo)}
}

func (p *MemoryPresence) Join(ctx context.Context, channel string, info live.ClientInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.channels[channel]
	if !ok {
		members = make(map[string]live.ClientInfo)
		p.channels[channel] = members
	}
	members[info.Client] = info
	return nil
}

func (p *MemoryPresence) Leave(ctx context.Context, channel, client string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.channels[channel]
	if !ok {
		return nil
	}
	delete(members, client)
	if len(members) == 0 {
		delete(p.channels, channel)
	}
	return nil
}

func (p *MemoryPresence) List(ctx context.Context, channel string) (map[string]live.ClientInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]live.ClientInfo, len(p.channels[channel]))
	for k, v := range p.channels[channel] {
		out[k] = v
	}
	return out, nil
}

// RedisPresence 基于 Redis Hash 的在线成员存储，多个节点共享
//
// 键为 live:presence:<channel>，字段为客户端 id，值为 ClientInfo JSON。
type RedisPresence struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPresence 创建 Redis 在线成员存储，ttl 为 0 时不过期
func NewRedisPresence(client redis.UniversalClient, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

func presenceKey(channel string) string {
	return redisChannelPrefix + "presence:" + channel
}

func (p *RedisPresence) Join(ctx context.Context, channel string, info live.ClientInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeInvalidData, "failed to marshal client info")
	}
	key := presenceKey(channel)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, info.Client, data)
	if p.ttl > 0 {
		pipe.Expire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeStorageError, "presence join %s", channel)
	}
	return nil
}

func (p *RedisPresence) Leave(ctx context.Context, channel, client string) error {
	if err := p.client.HDel(ctx, presenceKey(channel), client).Err(); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeStorageError, "presence leave %s", channel)
	}
	return nil
}

func (p *RedisPresence) List(ctx context.Context, channel string) (map[string]live.ClientInfo, error) {
	raw, err := p.client.HGetAll(ctx, presenceKey(channel)).Result()
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeStorageError, "presence list %s", channel)
	}
	out := make(map[string]live.ClientInfo, len(raw))
	for client, value := range raw {
		var info live.ClientInfo
		if err := json.Unmarshal([]byte(value), &info); err != nil {
			corelog.Warnf("RedisPresence: skipping malformed entry %s on %s: %v", client, channel, err)
			continue
		}
		out[client] = info
	}
	return out, nil
}
