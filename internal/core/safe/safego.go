// Package safe 带 panic 恢复与计数的协程启动
package safe

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	corelog "live-core/internal/core/log"
)

var (
	activeCount atomic.Int64
	totalCount  atomic.Int64
	panicCount  atomic.Int64
)

// Stats 协程统计
type Stats struct {
	Active     int64 `json:"active"`
	Total      int64 `json:"total"`
	PanicCount int64 `json:"panics"`
}

// GetStats 获取统计信息
func GetStats() Stats {
	return Stats{
		Active:     activeCount.Load(),
		Total:      totalCount.Load(),
		PanicCount: panicCount.Load(),
	}
}

func start(name string, fn func(), after func()) {
	totalCount.Add(1)
	activeCount.Add(1)

	go func() {
		defer func() {
			activeCount.Add(-1)
			if r := recover(); r != nil {
				panicCount.Add(1)
				corelog.Errorf("SafeGo[%s]: panic recovered: %v\n%s", name, r, debug.Stack())
			}
			if after != nil {
				after()
			}
		}()
		fn()
	}()
}

// Go 启动协程，name 用于日志标识
func Go(name string, fn func()) {
	start(name, fn, nil)
}

// GoWithContext 启动协程，fn 应在 ctx 取消后返回
func GoWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	start(name, func() { fn(ctx) }, nil)
}

// WaitGroup 跟踪一组协程
type WaitGroup struct {
	wg   sync.WaitGroup
	name string
}

// NewWaitGroup 创建 WaitGroup
func NewWaitGroup(name string) *WaitGroup {
	return &WaitGroup{name: name}
}

// Go 在组内启动协程，panic 后仍计为完成
func (w *WaitGroup) Go(fn func()) {
	w.wg.Add(1)
	start(w.name, fn, w.wg.Done)
}

// Wait 等待组内协程全部结束
func (w *WaitGroup) Wait() {
	w.wg.Wait()
}
