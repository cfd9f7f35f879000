package metrics

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// DefaultNamespace Prometheus 指标命名空间
const DefaultNamespace = "live"

// PrometheusMetrics 基于 client_golang 的指标实现
//
// 指标在首次使用时按 (名称, 标签键集合) 懒注册，同名指标的标签键集合必须一致。
type PrometheusMetrics struct {
	*dispose.ResourceBase

	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string]string
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器，使用独立 registry
func NewPrometheusMetrics(parentCtx context.Context, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &PrometheusMetrics{
		ResourceBase: dispose.NewResourceBase("PrometheusMetrics"),
		namespace:    namespace,
		registry:     registry,
		counters:     make(map[string]*prometheus.CounterVec),
		gauges:       make(map[string]*prometheus.GaugeVec),
		histograms:   make(map[string]*prometheus.HistogramVec),
		labelKeys:    make(map[string]string),
	}
	m.ResourceBase.Initialize(parentCtx)
	return m
}

// Registry 返回底层 registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// checkLabels 同名指标必须使用同一组标签键
func (m *PrometheusMetrics) checkLabels(name string, keys []string) error {
	signature := strings.Join(keys, ",")
	if existing, ok := m.labelKeys[name]; ok && existing != signature {
		return coreerrors.Newf(coreerrors.CodeInvalidParam,
			"metric %s registered with labels [%s], got [%s]", name, existing, signature)
	}
	m.labelKeys[name] = signature
	return nil
}

func (m *PrometheusMetrics) counter(name string, labels map[string]string) (prometheus.Counter, error) {
	keys := sortedKeys(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLabels(name, keys); err != nil {
		return nil, err
	}
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeInternal, "register counter %s", name)
		}
		m.counters[name] = vec
	}
	return vec.With(labels), nil
}

func (m *PrometheusMetrics) gauge(name string, labels map[string]string) (prometheus.Gauge, error) {
	keys := sortedKeys(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLabels(name, keys); err != nil {
		return nil, err
	}
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeInternal, "register gauge %s", name)
		}
		m.gauges[name] = vec
	}
	return vec.With(labels), nil
}

func (m *PrometheusMetrics) histogram(name string, labels map[string]string) (prometheus.Observer, error) {
	keys := sortedKeys(labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLabels(name, keys); err != nil {
		return nil, err
	}
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
			Buckets:   prometheus.DefBuckets,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeInternal, "register histogram %s", name)
		}
		m.histograms[name] = vec
	}
	return vec.With(labels), nil
}

// IncrementCounter 增加计数器
func (m *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) error {
	return m.AddCounter(name, 1, labels)
}

// AddCounter 增加计数器指定值
func (m *PrometheusMetrics) AddCounter(name string, value float64, labels map[string]string) error {
	if value < 0 {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "counter %s cannot decrease", name)
	}
	c, err := m.counter(name, labels)
	if err != nil {
		return err
	}
	c.Add(value)
	return nil
}

// GetCounter 读取计数器当前值
func (m *PrometheusMetrics) GetCounter(name string, labels map[string]string) (float64, error) {
	c, err := m.counter(name, labels)
	if err != nil {
		return 0, err
	}
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0, coreerrors.Wrapf(err, coreerrors.CodeInternal, "read counter %s", name)
	}
	return out.GetCounter().GetValue(), nil
}

// SetGauge 设置 Gauge 值
func (m *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) error {
	g, err := m.gauge(name, labels)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}

// AddGauge 调整 Gauge 值
func (m *PrometheusMetrics) AddGauge(name string, delta float64, labels map[string]string) error {
	g, err := m.gauge(name, labels)
	if err != nil {
		return err
	}
	g.Add(delta)
	return nil
}

// GetGauge 读取 Gauge 当前值
func (m *PrometheusMetrics) GetGauge(name string, labels map[string]string) (float64, error) {
	g, err := m.gauge(name, labels)
	if err != nil {
		return 0, err
	}
	var out dto.Metric
	if err := g.Write(&out); err != nil {
		return 0, coreerrors.Wrapf(err, coreerrors.CodeInternal, "read gauge %s", name)
	}
	return out.GetGauge().GetValue(), nil
}

// ObserveHistogram 记录 Histogram 值
func (m *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) error {
	h, err := m.histogram(name, labels)
	if err != nil {
		return err
	}
	h.Observe(value)
	return nil
}

// Close 关闭指标收集器
func (m *PrometheusMetrics) Close() error {
	return m.ResourceBase.Close()
}
