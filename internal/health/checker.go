// Package health 推送服务器健康检查
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-core/internal/core/safe"
)

// ComponentStatus 组件状态
type ComponentStatus string

const (
	ComponentStatusHealthy   ComponentStatus = "healthy"
	ComponentStatusDegraded  ComponentStatus = "degraded"  // 降级，部分功能不可用
	ComponentStatusUnhealthy ComponentStatus = "unhealthy" // 不健康，完全不可用
)

// ComponentHealth 组件健康信息
type ComponentHealth struct {
	Name      string          `json:"name"`
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// HealthChecker 健康检查器接口
type HealthChecker interface {
	// Check 执行健康检查，返回组件健康信息
	Check(ctx context.Context) (*ComponentHealth, error)
}

// Report 整体检查结果
type Report struct {
	Status     ComponentStatus    `json:"status"`
	Components []*ComponentHealth `json:"components"`
}

// CompositeHealthChecker 组合健康检查器，各组件并发检查
type CompositeHealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewCompositeHealthChecker 创建组合健康检查器
func NewCompositeHealthChecker(timeout time.Duration) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checkers: make(map[string]HealthChecker),
		timeout:  timeout,
	}
}

// RegisterChecker 注册健康检查器
func (c *CompositeHealthChecker) RegisterChecker(name string, checker HealthChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkers[name] = checker
}

// CheckAll 检查所有注册的组件，单个组件超时或出错记为不健康
func (c *CompositeHealthChecker) CheckAll(ctx context.Context) map[string]*ComponentHealth {
	c.mu.RLock()
	checkers := make(map[string]HealthChecker, len(c.checkers))
	for name, checker := range c.checkers {
		checkers[name] = checker
	}
	c.mu.RUnlock()

	var (
		wg      = safe.NewWaitGroup("health-check")
		mu      sync.Mutex
		results = make(map[string]*ComponentHealth, len(checkers))
	)
	for name, checker := range checkers {
		name, checker := name, checker
		wg.Go(func() {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			health, err := checker.Check(checkCtx)
			if err != nil {
				health = &ComponentHealth{
					Name:      name,
					Status:    ComponentStatusUnhealthy,
					Message:   err.Error(),
					LastCheck: time.Now(),
				}
			}
			if health == nil {
				return
			}
			mu.Lock()
			results[name] = health
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

// Aggregate 由组件结果得到整体状态：任一不健康为 unhealthy，任一降级为 degraded
func Aggregate(results map[string]*ComponentHealth) ComponentStatus {
	status := ComponentStatusHealthy
	for _, health := range results {
		switch health.Status {
		case ComponentStatusUnhealthy:
			return ComponentStatusUnhealthy
		case ComponentStatusDegraded:
			status = ComponentStatusDegraded
		}
	}
	return status
}

// GetOverallStatus 获取整体健康状态
func (c *CompositeHealthChecker) GetOverallStatus(ctx context.Context) ComponentStatus {
	return Aggregate(c.CheckAll(ctx))
}

// Report 检查全部组件并按名称排序
func (c *CompositeHealthChecker) Report(ctx context.Context) *Report {
	results := c.CheckAll(ctx)
	report := &Report{Status: Aggregate(results), Components: make([]*ComponentHealth, 0, len(results))}
	for _, health := range results {
		report.Components = append(report.Components, health)
	}
	sort.Slice(report.Components, func(i, j int) bool {
		return report.Components[i].Name < report.Components[j].Name
	})
	return report
}
