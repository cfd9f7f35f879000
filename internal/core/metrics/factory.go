package metrics

import (
	"context"

	coreerrors "live-core/internal/core/errors"
)

// MetricsType 指标类型
type MetricsType string

const (
	// MetricsTypeMemory 内存指标
	MetricsTypeMemory MetricsType = "memory"
	// MetricsTypePrometheus Prometheus 指标
	MetricsTypePrometheus MetricsType = "prometheus"
)

// MetricsFactory 指标工厂
type MetricsFactory struct {
	ctx       context.Context
	namespace string
}

// NewMetricsFactory 创建指标工厂
func NewMetricsFactory(ctx context.Context, namespace string) *MetricsFactory {
	return &MetricsFactory{ctx: ctx, namespace: namespace}
}

// CreateMetrics 创建指标收集器实例
func (f *MetricsFactory) CreateMetrics(metricsType MetricsType) (Metrics, error) {
	switch metricsType {
	case MetricsTypeMemory, "":
		return NewMemoryMetrics(f.ctx), nil
	case MetricsTypePrometheus:
		return NewPrometheusMetrics(f.ctx, f.namespace), nil
	default:
		return nil, coreerrors.Newf(coreerrors.CodeInvalidConfig, "unsupported metrics type: %s", metricsType)
	}
}
