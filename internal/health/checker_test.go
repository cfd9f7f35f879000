package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockHealthChecker 模拟健康检查器
type mockHealthChecker struct {
	health *ComponentHealth
	err    error
	delay  time.Duration
}

func (m *mockHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.health, m.err
}

func TestNewCompositeHealthChecker(t *testing.T) {
	checker := NewCompositeHealthChecker(5 * time.Second)
	if checker.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", checker.timeout)
	}
	if len(checker.checkers) != 0 {
		t.Errorf("expected empty checkers map, got %d", len(checker.checkers))
	}
}

func TestCompositeHealthChecker_CheckAll(t *testing.T) {
	checker := NewCompositeHealthChecker(time.Second)
	checker.RegisterChecker("broker", &mockHealthChecker{
		health: &ComponentHealth{Name: "broker", Status: ComponentStatusHealthy},
	})
	checker.RegisterChecker("presence", &mockHealthChecker{err: errors.New("redis down")})
	checker.RegisterChecker("silent", &mockHealthChecker{})

	results := checker.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["broker"].Status != ComponentStatusHealthy {
		t.Errorf("broker: expected healthy, got %s", results["broker"].Status)
	}
	if results["presence"].Status != ComponentStatusUnhealthy || results["presence"].Message != "redis down" {
		t.Errorf("presence: unexpected result %+v", results["presence"])
	}
}

func TestCompositeHealthChecker_CheckAll_Timeout(t *testing.T) {
	checker := NewCompositeHealthChecker(20 * time.Millisecond)
	checker.RegisterChecker("slow", &mockHealthChecker{delay: time.Second})
	checker.RegisterChecker("slow2", &mockHealthChecker{delay: time.Second})

	start := time.Now()
	results := checker.CheckAll(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("checks not run concurrently, took %v", elapsed)
	}
	for name, r := range results {
		if r.Status != ComponentStatusUnhealthy {
			t.Errorf("%s: expected unhealthy on timeout, got %s", name, r.Status)
		}
	}
}

func TestCompositeHealthChecker_GetOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ComponentStatus
		want     ComponentStatus
	}{
		{"all healthy", []ComponentStatus{ComponentStatusHealthy, ComponentStatusHealthy}, ComponentStatusHealthy},
		{"one degraded", []ComponentStatus{ComponentStatusHealthy, ComponentStatusDegraded}, ComponentStatusDegraded},
		{"unhealthy wins", []ComponentStatus{ComponentStatusDegraded, ComponentStatusUnhealthy}, ComponentStatusUnhealthy},
		{"empty", nil, ComponentStatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCompositeHealthChecker(time.Second)
			for i, s := range tt.statuses {
				name := string(rune('a' + i))
				checker.RegisterChecker(name, &mockHealthChecker{health: &ComponentHealth{Name: name, Status: s}})
			}
			if got := checker.GetOverallStatus(context.Background()); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCompositeHealthChecker_ReportSorted(t *testing.T) {
	checker := NewCompositeHealthChecker(time.Second)
	for _, name := range []string{"presence", "broker", "hub"} {
		checker.RegisterChecker(name, &mockHealthChecker{health: &ComponentHealth{Name: name, Status: ComponentStatusHealthy}})
	}
	report := checker.Report(context.Background())
	if report.Status != ComponentStatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	var names []string
	for _, c := range report.Components {
		names = append(names, c.Name)
	}
	if len(names) != 3 || names[0] != "broker" || names[1] != "hub" || names[2] != "presence" {
		t.Errorf("unexpected order %v", names)
	}
}
