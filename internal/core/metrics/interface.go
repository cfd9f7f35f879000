package metrics

// Metrics 指标收集接口
// 内存实现用于测试和单进程调试，Prometheus 实现用于 /metrics 暴露
type Metrics interface {
	// Counter 操作
	IncrementCounter(name string, labels map[string]string) error
	AddCounter(name string, value float64, labels map[string]string) error
	GetCounter(name string, labels map[string]string) (float64, error)

	// Gauge 操作
	SetGauge(name string, value float64, labels map[string]string) error
	AddGauge(name string, delta float64, labels map[string]string) error
	GetGauge(name string, labels map[string]string) (float64, error)

	// Histogram 操作
	ObserveHistogram(name string, value float64, labels map[string]string) error

	// 关闭指标收集器
	Close() error
}
