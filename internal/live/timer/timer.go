// Package timer 提供与界面刷新节奏对齐的共享刷新许可
package timer

import (
	"context"
	"sync"
	"time"

	"live-core/internal/core/dispose"
	"live-core/internal/core/safe"

	"github.com/filecoin-project/go-clock"
)

// Config 刷新许可配置
type Config struct {
	// Tick 刷新节拍，0 表示禁用，OK 恒为 false
	Tick time.Duration `yaml:"tick"`
	// Budget 每个节拍后允许立即刷新的时长，0 表示等于 Tick 的一半
	Budget time.Duration `yaml:"budget"`
}

// LiveTimer 共享刷新许可，每个节拍开启一个 Budget 长度的刷新窗口
type LiveTimer struct {
	*dispose.ResourceBase

	clock  clock.Clock
	tick   time.Duration
	budget time.Duration

	mu         sync.RWMutex
	lastUpdate time.Time
	ticks      uint64
}

// New 创建并启动刷新许可
func New(ctx context.Context, clk clock.Clock, cfg Config) *LiveTimer {
	if clk == nil {
		clk = clock.New()
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = cfg.Tick / 2
	}
	t := &LiveTimer{
		ResourceBase: dispose.NewResourceBase("LiveTimer"),
		clock:        clk,
		tick:         cfg.Tick,
		budget:       budget,
	}
	t.ResourceBase.Initialize(ctx)
	if cfg.Tick > 0 {
		safe.Go("live-timer", t.run)
	}
	return t
}

// Disabled 返回从不授予许可的刷新器
func Disabled() *LiveTimer {
	return New(context.Background(), nil, Config{})
}

func (t *LiveTimer) run() {
	ticker := t.clock.Ticker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-t.Ctx().Done():
			return
		case now := <-ticker.C:
			t.mu.Lock()
			t.lastUpdate = now
			t.ticks++
			t.mu.Unlock()
		}
	}
}

// OK 当前是否处于刷新窗口内
func (t *LiveTimer) OK() bool {
	if t == nil || t.tick <= 0 || t.IsClosed() {
		return false
	}
	t.mu.RLock()
	last := t.lastUpdate
	t.mu.RUnlock()
	if last.IsZero() {
		return false
	}
	return t.clock.Since(last) < t.budget
}

// LastUpdate 最近一次节拍时间
func (t *LiveTimer) LastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastUpdate
}

// Ticks 已发生的节拍数
func (t *LiveTimer) Ticks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}
