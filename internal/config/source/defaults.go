package source

import (
	"time"

	"live-core/internal/config/schema"
)

// DefaultSource provides default configuration values
type DefaultSource struct{}

// NewDefaultSource creates a new DefaultSource
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Name returns the source name
func (s *DefaultSource) Name() string {
	return "defaults"
}

// Priority returns the source priority
func (s *DefaultSource) Priority() int {
	return PriorityDefaults
}

// LoadInto loads default values into the configuration
func (s *DefaultSource) LoadInto(cfg *schema.Root) error {
	// Live client defaults
	cfg.Live.Enabled = true
	cfg.Live.AppURL = "http://localhost:3000"
	cfg.Live.Transport = schema.TransportWebSocket
	cfg.Live.OrgID = 1
	cfg.Live.OrgRole = schema.OrgRoleViewer
	cfg.Live.CoalesceWindow = time.Second
	cfg.Live.SubscriberBuffer = 1024
	cfg.Live.Timer.Tick = 0
	cfg.Live.Reconnect.Initial = 500 * time.Millisecond
	cfg.Live.Reconnect.Max = 20 * time.Second

	// Push server defaults
	cfg.Server.Listen = ":3000"
	cfg.Server.Push.RPS = 50
	cfg.Server.Push.Burst = 100
	cfg.Server.CacheSize = 4096
	cfg.Server.SendBuffer = 256
	cfg.Server.PingInterval = 25 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Server.DefaultOrgID = 1

	// Broker defaults
	cfg.Broker.Type = schema.BrokerTypeMemory
	cfg.Broker.NodeID = "live-node-1"
	cfg.Broker.Redis.Addrs = []string{"localhost:6379"}
	cfg.Broker.Redis.PoolSize = 10
	cfg.Broker.Redis.PresenceTTL = 10 * time.Minute

	// Log defaults
	cfg.Log.Level = schema.LogLevelInfo
	cfg.Log.Format = schema.LogFormatText
	cfg.Log.Output = "stderr"

	// Metrics defaults
	cfg.Metrics.Type = schema.MetricsTypeMemory
	cfg.Metrics.Namespace = "live"

	return nil
}

// GetDefaultConfig returns a fully initialized default configuration
func GetDefaultConfig() *schema.Root {
	cfg := &schema.Root{}
	_ = NewDefaultSource().LoadInto(cfg)
	return cfg
}
