package health

import (
	"context"
	"sync"
	"time"

	"live-core/internal/core/dispose"
	"live-core/internal/core/safe"
)

// HealthStatus 节点状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"   // 接受新会话
	HealthStatusDraining  HealthStatus = "draining"  // 排空中，拒绝新会话，现有会话继续推送
	HealthStatusUnhealthy HealthStatus = "unhealthy" // 不可用
)

// HealthInfo 节点健康信息
type HealthInfo struct {
	Status               HealthStatus      `json:"status"`
	ActiveSessions       int               `json:"active_sessions"`
	ActiveChannels       int               `json:"active_channels"`
	Uptime               int64             `json:"uptime_seconds"`
	NodeID               string            `json:"node_id,omitempty"`
	Version              string            `json:"version,omitempty"`
	Details              map[string]string `json:"details,omitempty"`
	LastStatusChange     time.Time         `json:"last_status_change"`
	AcceptingNewSessions bool              `json:"accepting_new_sessions"`
	Components           *Report           `json:"components,omitempty"`
	Goroutines           safe.Stats        `json:"goroutines"`
}

// HealthManager 节点状态管理器
//
// 优雅关闭时先切换为 draining，负载均衡器据此摘除节点，再关闭会话。
type HealthManager struct {
	*dispose.ServiceBase

	mu               sync.RWMutex
	status           HealthStatus
	startTime        time.Time
	lastStatusChange time.Time
	nodeID           string
	version          string
	details          map[string]string

	stats    HubStats
	checkers *CompositeHealthChecker
}

// NewHealthManager 创建节点状态管理器
func NewHealthManager(nodeID, version string, parentCtx context.Context) *HealthManager {
	now := time.Now()
	return &HealthManager{
		ServiceBase:      dispose.NewService("HealthManager", parentCtx),
		status:           HealthStatusHealthy,
		startTime:        now,
		lastStatusChange: now,
		nodeID:           nodeID,
		version:          version,
		details:          make(map[string]string),
	}
}

// SetStatsProvider 设置会话与通道统计来源
func (m *HealthManager) SetStatsProvider(stats HubStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

// SetCheckers 设置组件检查器
func (m *HealthManager) SetCheckers(checkers *CompositeHealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = checkers
}

// GetStatus 获取当前状态
func (m *HealthManager) GetStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetStatus 设置状态
func (m *HealthManager) SetStatus(status HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != status {
		m.status = status
		m.lastStatusChange = time.Now()
	}
}

// IsHealthy 是否健康
func (m *HealthManager) IsHealthy() bool {
	return m.GetStatus() == HealthStatusHealthy
}

// IsDraining 是否在排空中
func (m *HealthManager) IsDraining() bool {
	return m.GetStatus() == HealthStatusDraining
}

// IsAcceptingSessions 只有 healthy 状态接受新会话
func (m *HealthManager) IsAcceptingSessions() bool {
	return m.GetStatus() == HealthStatusHealthy
}

// MarkDraining 标记为排空中
func (m *HealthManager) MarkDraining() {
	m.SetStatus(HealthStatusDraining)
}

// MarkUnhealthy 标记为不健康
func (m *HealthManager) MarkUnhealthy(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = HealthStatusUnhealthy
	m.lastStatusChange = time.Now()
	m.details["unhealthy_reason"] = reason
}

// SetDetail 设置详细信息
func (m *HealthManager) SetDetail(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[key] = value
}

// GetHealthInfo 获取完整健康信息；组件不健康时节点状态降为 unhealthy
func (m *HealthManager) GetHealthInfo(ctx context.Context) *HealthInfo {
	m.mu.RLock()
	stats := m.stats
	checkers := m.checkers
	info := &HealthInfo{
		Status:           m.status,
		Uptime:           int64(time.Since(m.startTime).Seconds()),
		NodeID:           m.nodeID,
		Version:          m.version,
		Details:          make(map[string]string, len(m.details)),
		LastStatusChange: m.lastStatusChange,
		Goroutines:       safe.GetStats(),
	}
	for k, v := range m.details {
		info.Details[k] = v
	}
	m.mu.RUnlock()

	if stats != nil {
		info.ActiveSessions = stats.ActiveSessions()
		info.ActiveChannels = stats.ActiveChannels()
	}
	if checkers != nil {
		info.Components = checkers.Report(ctx)
		if info.Components.Status == ComponentStatusUnhealthy && info.Status == HealthStatusHealthy {
			info.Status = HealthStatusUnhealthy
		}
	}
	info.AcceptingNewSessions = info.Status == HealthStatusHealthy
	return info
}
