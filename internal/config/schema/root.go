// Package schema defines configuration structure types
package schema

import "time"

// Root is the top-level configuration structure
type Root struct {
	Live    LiveConfig    `yaml:"live" json:"live"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Broker  BrokerConfig  `yaml:"broker" json:"broker"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LiveConfig contains the streaming client settings
type LiveConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	AppURL    string `yaml:"app_url" json:"app_url"`
	Transport string `yaml:"transport" json:"transport"` // websocket/memory
	OrgID     int64  `yaml:"org_id" json:"org_id"`
	OrgRole   string `yaml:"org_role" json:"org_role"`
	Token     Secret `yaml:"token" json:"token"`
	SessionID string `yaml:"session_id" json:"session_id"`

	CoalesceWindow   time.Duration   `yaml:"coalesce_window" json:"coalesce_window"`
	SubscriberBuffer int             `yaml:"subscriber_buffer" json:"subscriber_buffer"`
	Timer            TimerConfig     `yaml:"timer" json:"timer"`
	Reconnect        ReconnectConfig `yaml:"reconnect" json:"reconnect"`
}

// TimerConfig contains the shared flush timer settings
type TimerConfig struct {
	Tick   time.Duration `yaml:"tick" json:"tick"`     // 0 disables the timer
	Budget time.Duration `yaml:"budget" json:"budget"` // 0 means half a tick
}

// ReconnectConfig contains transport reconnect backoff bounds
type ReconnectConfig struct {
	Initial time.Duration `yaml:"initial" json:"initial"`
	Max     time.Duration `yaml:"max" json:"max"`
}

// ServerConfig contains push server settings
type ServerConfig struct {
	Listen          string        `yaml:"listen" json:"listen"`
	Auth            AuthConfig    `yaml:"auth" json:"auth"`
	Push            PushConfig    `yaml:"push" json:"push"`
	CacheSize       int           `yaml:"cache_size" json:"cache_size"`
	SendBuffer      int           `yaml:"send_buffer" json:"send_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval" json:"ping_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	DefaultOrgID    int64         `yaml:"default_org_id" json:"default_org_id"`
}

// AuthConfig contains connect token settings
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	JWTSecret Secret `yaml:"jwt_secret" json:"jwt_secret"`
}

// PushConfig contains HTTP push rate limits, applied per channel
type PushConfig struct {
	RPS   float64 `yaml:"rps" json:"rps"` // <= 0 disables limiting
	Burst int     `yaml:"burst" json:"burst"`
}

// BrokerConfig contains the server-side message broker settings
type BrokerConfig struct {
	Type   string      `yaml:"type" json:"type"` // memory/redis
	NodeID string      `yaml:"node_id" json:"node_id"`
	Redis  RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Addrs       []string      `yaml:"addrs" json:"addrs"`
	Password    Secret        `yaml:"password" json:"password"`
	DB          int           `yaml:"db" json:"db"`
	PoolSize    int           `yaml:"pool_size" json:"pool_size"`
	ClusterMode bool          `yaml:"cluster_mode" json:"cluster_mode"`
	PresenceTTL time.Duration `yaml:"presence_ttl" json:"presence_ttl"`
}

// MetricsConfig contains metrics backend settings
type MetricsConfig struct {
	Type      string `yaml:"type" json:"type"` // memory/prometheus
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Transport constants
const (
	TransportWebSocket = "websocket"
	TransportMemory    = "memory"
)

// Broker type constants
const (
	BrokerTypeMemory = "memory"
	BrokerTypeRedis  = "redis"
)

// Metrics type constants
const (
	MetricsTypeMemory     = "memory"
	MetricsTypePrometheus = "prometheus"
)

// Org role constants
const (
	OrgRoleViewer = "Viewer"
	OrgRoleEditor = "Editor"
	OrgRoleAdmin  = "Admin"
)
