package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHealthManager(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	assert.Equal(t, HealthStatusHealthy, manager.GetStatus())
	assert.True(t, manager.IsHealthy())
	assert.False(t, manager.IsDraining())
	assert.True(t, manager.IsAcceptingSessions())
}

func TestHealthManager_SetStatus(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	manager.SetStatus(HealthStatusDraining)
	assert.True(t, manager.IsDraining())
	assert.False(t, manager.IsAcceptingSessions())

	manager.SetStatus(HealthStatusUnhealthy)
	assert.False(t, manager.IsHealthy())
	assert.False(t, manager.IsDraining())
}

func TestHealthManager_MarkUnhealthy(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	manager.MarkUnhealthy("broker lost")
	info := manager.GetHealthInfo(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, info.Status)
	assert.Equal(t, "broker lost", info.Details["unhealthy_reason"])
}

func TestHealthManager_GetHealthInfo(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()
	manager.SetStatsProvider(&mockHub{sessions: 10, channels: 4})
	manager.SetDetail("broker", "redis")

	info := manager.GetHealthInfo(context.Background())
	assert.Equal(t, HealthStatusHealthy, info.Status)
	assert.Equal(t, 10, info.ActiveSessions)
	assert.Equal(t, 4, info.ActiveChannels)
	assert.Equal(t, "node-1", info.NodeID)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "redis", info.Details["broker"])
	assert.True(t, info.AcceptingNewSessions)
	assert.Nil(t, info.Components)
}

func TestHealthManager_UnhealthyComponentDowngrades(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	checkers := NewCompositeHealthChecker(time.Second)
	checkers.RegisterChecker("broker", NewBrokerHealthChecker(&mockBrokerChecker{err: errors.New("down")}))
	manager.SetCheckers(checkers)

	info := manager.GetHealthInfo(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, info.Status)
	assert.False(t, info.AcceptingNewSessions)
	assert.Equal(t, ComponentStatusUnhealthy, info.Components.Status)
	// 组件状态不改写节点自身状态
	assert.True(t, manager.IsHealthy())
}

func TestHealthManager_StatusChangeTimestamp(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	before := manager.GetHealthInfo(context.Background()).LastStatusChange
	time.Sleep(5 * time.Millisecond)
	manager.SetStatus(HealthStatusHealthy)
	assert.Equal(t, before, manager.GetHealthInfo(context.Background()).LastStatusChange)

	manager.MarkDraining()
	assert.True(t, manager.GetHealthInfo(context.Background()).LastStatusChange.After(before))
}

func TestHealthManager_Concurrent(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.MarkDraining()
			manager.SetStatus(HealthStatusHealthy)
		}()
		go func() {
			defer wg.Done()
			_ = manager.GetHealthInfo(context.Background())
		}()
	}
	wg.Wait()
}

func TestHealthManager_ReportsGoroutineStats(t *testing.T) {
	manager := NewHealthManager("node-1", "1.0.0", context.Background())
	defer manager.Close()

	checkers := NewCompositeHealthChecker(time.Second)
	checkers.RegisterChecker("ok", &mockHealthChecker{health: &ComponentHealth{Name: "ok", Status: ComponentStatusHealthy}})
	manager.SetCheckers(checkers)

	info := manager.GetHealthInfo(context.Background())
	assert.GreaterOrEqual(t, info.Goroutines.Total, int64(1))
	assert.GreaterOrEqual(t, info.Goroutines.Active, int64(0))
}
