package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
)

// histogramSummary 内存直方图只保留计数与总和
type histogramSummary struct {
	count uint64
	sum   float64
}

// MemoryMetrics 内存指标实现
type MemoryMetrics struct {
	*dispose.ResourceBase

	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*histogramSummary
}

// NewMemoryMetrics 创建内存指标收集器
func NewMemoryMetrics(parentCtx context.Context) *MemoryMetrics {
	m := &MemoryMetrics{
		ResourceBase: dispose.NewResourceBase("MemoryMetrics"),
		counters:     make(map[string]float64),
		gauges:       make(map[string]float64),
		histograms:   make(map[string]*histogramSummary),
	}
	m.ResourceBase.Initialize(parentCtx)
	return m
}

// IncrementCounter 增加计数器
func (m *MemoryMetrics) IncrementCounter(name string, labels map[string]string) error {
	return m.AddCounter(name, 1, labels)
}

// AddCounter 增加计数器指定值，计数器只增不减
func (m *MemoryMetrics) AddCounter(name string, value float64, labels map[string]string) error {
	if value < 0 {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "counter %s cannot decrease", name)
	}
	key := buildKey(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
	return nil
}

// GetCounter 获取计数器值
func (m *MemoryMetrics) GetCounter(name string, labels map[string]string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[buildKey(name, labels)], nil
}

// SetGauge 设置 Gauge 值
func (m *MemoryMetrics) SetGauge(name string, value float64, labels map[string]string) error {
	m.mu.Lock()
	m.gauges[buildKey(name, labels)] = value
	m.mu.Unlock()
	return nil
}

// AddGauge 调整 Gauge 值
func (m *MemoryMetrics) AddGauge(name string, delta float64, labels map[string]string) error {
	m.mu.Lock()
	m.gauges[buildKey(name, labels)] += delta
	m.mu.Unlock()
	return nil
}

// GetGauge 获取 Gauge 值
func (m *MemoryMetrics) GetGauge(name string, labels map[string]string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[buildKey(name, labels)], nil
}

// ObserveHistogram 记录 Histogram 值
func (m *MemoryMetrics) ObserveHistogram(name string, value float64, labels map[string]string) error {
	key := buildKey(name, labels)
	m.mu.Lock()
	h, ok := m.histograms[key]
	if !ok {
		h = &histogramSummary{}
		m.histograms[key] = h
	}
	h.count++
	h.sum += value
	m.mu.Unlock()
	return nil
}

// HistogramSummary 返回观测次数与总和
func (m *MemoryMetrics) HistogramSummary(name string, labels map[string]string) (uint64, float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.histograms[buildKey(name, labels)]; ok {
		return h.count, h.sum
	}
	return 0, 0
}

// Close 关闭指标收集器
func (m *MemoryMetrics) Close() error {
	return m.ResourceBase.Close()
}

// buildKey 构建指标键名，标签按键名排序
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := sortedKeys(labels)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
