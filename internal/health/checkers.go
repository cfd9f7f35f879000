package health

import (
	"context"
	"fmt"
	"time"

	"live-core/internal/live"
)

// BrokerHealthChecker 消息代理健康检查器
type BrokerHealthChecker struct {
	broker BrokerChecker
}

// BrokerChecker 消息代理检查接口
type BrokerChecker interface {
	Ping(ctx context.Context) error
}

// NewBrokerHealthChecker 创建消息代理健康检查器
func NewBrokerHealthChecker(broker BrokerChecker) *BrokerHealthChecker {
	return &BrokerHealthChecker{broker: broker}
}

// Check 检查消息代理健康状态
func (c *BrokerHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if c.broker == nil {
		return unhealthy("broker", "broker not configured"), nil
	}
	if err := c.broker.Ping(ctx); err != nil {
		return unhealthy("broker", err.Error()), nil
	}
	return healthy("broker", ""), nil
}

// PresenceChecker 在线成员存储检查接口
type PresenceChecker interface {
	List(ctx context.Context, channel string) (map[string]live.ClientInfo, error)
}

// PresenceHealthChecker 在线成员存储健康检查器，读取一个探测通道
type PresenceHealthChecker struct {
	store PresenceChecker
}

// probeChannel 探测用通道，不会被真实客户端订阅
const probeChannel = "0/grafana/health/probe"

// NewPresenceHealthChecker 创建在线成员存储健康检查器
func NewPresenceHealthChecker(store PresenceChecker) *PresenceHealthChecker {
	return &PresenceHealthChecker{store: store}
}

// Check 在线成员存储不可用时服务降级，推送仍可工作
func (c *PresenceHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if c.store == nil {
		return &ComponentHealth{
			Name:      "presence",
			Status:    ComponentStatusDegraded,
			Message:   "presence store not configured",
			LastCheck: time.Now(),
		}, nil
	}
	if _, err := c.store.List(ctx, probeChannel); err != nil {
		return &ComponentHealth{
			Name:      "presence",
			Status:    ComponentStatusDegraded,
			Message:   err.Error(),
			LastCheck: time.Now(),
		}, nil
	}
	return healthy("presence", ""), nil
}

// HubStats 推送中心统计接口
type HubStats interface {
	ActiveSessions() int
	ActiveChannels() int
}

// HubHealthChecker 推送中心健康检查器
type HubHealthChecker struct {
	hub HubStats
}

// NewHubHealthChecker 创建推送中心健康检查器
func NewHubHealthChecker(hub HubStats) *HubHealthChecker {
	return &HubHealthChecker{hub: hub}
}

// Check 推送中心存在即健康，消息中附带会话与通道数
func (c *HubHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if c.hub == nil {
		return &ComponentHealth{
			Name:      "hub",
			Status:    ComponentStatusDegraded,
			Message:   "hub not configured",
			LastCheck: time.Now(),
		}, nil
	}
	return healthy("hub", fmt.Sprintf("%d sessions, %d channels", c.hub.ActiveSessions(), c.hub.ActiveChannels())), nil
}

func healthy(name, message string) *ComponentHealth {
	return &ComponentHealth{Name: name, Status: ComponentStatusHealthy, Message: message, LastCheck: time.Now()}
}

func unhealthy(name, message string) *ComponentHealth {
	return &ComponentHealth{Name: name, Status: ComponentStatusUnhealthy, Message: message, LastCheck: time.Now()}
}
