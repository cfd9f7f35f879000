package metrics

import (
	"sync/atomic"

	coreerrors "live-core/internal/core/errors"
)

type holder struct {
	m Metrics
}

// 进程内唯一的指标实例，由应用层在启动时设置
var global atomic.Pointer[holder]

var (
	// ErrNilMetrics SetGlobalMetrics 传入 nil
	ErrNilMetrics = coreerrors.New(coreerrors.CodeInvalidParam, "metrics: SetGlobalMetrics called with nil")
	// ErrNotInitialized 全局指标未设置
	ErrNotInitialized = coreerrors.New(coreerrors.CodeInternal, "metrics: global metrics not initialized")
)

// SetGlobalMetrics 设置全局 Metrics 实例
func SetGlobalMetrics(m Metrics) error {
	if m == nil {
		return ErrNilMetrics
	}
	global.Store(&holder{m: m})
	return nil
}

// ResetGlobalMetrics 清除全局实例
func ResetGlobalMetrics() {
	global.Store(nil)
}

// GetGlobalMetrics 获取全局 Metrics 实例，未设置时返回 nil
func GetGlobalMetrics() Metrics {
	if h := global.Load(); h != nil {
		return h.m
	}
	return nil
}

// Current 获取全局 Metrics 实例，未设置时返回 ErrNotInitialized
func Current() (Metrics, error) {
	m := GetGlobalMetrics()
	if m == nil {
		return nil, ErrNotInitialized
	}
	return m, nil
}

// record 全局实例存在时执行 fn，错误忽略
func record(fn func(m Metrics) error) {
	if m := GetGlobalMetrics(); m != nil {
		_ = fn(m)
	}
}
