package metrics

// 实时通道相关指标辅助函数，全局 Metrics 未设置时静默忽略

const (
	MetricChannelsOpen        = "channels_open"
	MetricChannelMessages     = "channel_messages_total"
	MetricSubscriberDrops     = "subscriber_drops_total"
	MetricStreamEmissions     = "stream_emissions_total"
	MetricStreamSchemaChanges = "stream_schema_changes_total"
	MetricConnectionState     = "connection_connected"
	MetricServerSessions      = "server_sessions"
	MetricServerPublications  = "server_publications_total"
	MetricServerRejections    = "server_rejections_total"
	MetricPushLatency         = "server_push_seconds"
)

// SetOpenChannels 记录注册表中的通道数
func SetOpenChannels(count int) {
	record(func(m Metrics) error {
		return m.SetGauge(MetricChannelsOpen, float64(count), nil)
	})
}

// IncChannelMessages 通道收到的消息数
func IncChannelMessages(scope string) {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricChannelMessages, map[string]string{"scope": scope})
	})
}

// IncSubscriberDrops 订阅者队列满导致的丢弃数
func IncSubscriberDrops(scope string) {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricSubscriberDrops, map[string]string{"scope": scope})
	})
}

// IncStreamEmissions 数据流快照下发次数，reason 为 window/timer/replay/flush
func IncStreamEmissions(reason string) {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricStreamEmissions, map[string]string{"reason": reason})
	})
}

// IncStreamSchemaChanges 过滤视图重算次数
func IncStreamSchemaChanges() {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricStreamSchemaChanges, nil)
	})
}

// SetConnected 记录连接状态
func SetConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	record(func(m Metrics) error {
		return m.SetGauge(MetricConnectionState, v, nil)
	})
}

// AddServerSessions 调整服务端会话数
func AddServerSessions(delta int) {
	record(func(m Metrics) error {
		return m.AddGauge(MetricServerSessions, float64(delta), nil)
	})
}

// IncServerPublications 服务端发布次数，source 为 ws/http
func IncServerPublications(source string) {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricServerPublications, map[string]string{"source": source})
	})
}

// IncServerRejections 服务端拒绝请求次数
func IncServerRejections(reason string) {
	record(func(m Metrics) error {
		return m.IncrementCounter(MetricServerRejections, map[string]string{"reason": reason})
	})
}

// ObservePushLatency HTTP 推送处理耗时
func ObservePushLatency(seconds float64) {
	record(func(m Metrics) error {
		return m.ObserveHistogram(MetricPushLatency, seconds, nil)
	})
}
