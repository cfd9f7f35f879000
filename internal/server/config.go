package server

import (
	"time"

	coreerrors "live-core/internal/core/errors"
)

// 默认值
const (
	DefaultListenAddr      = ":3000"
	DefaultPushRPS         = 50
	DefaultPushBurst       = 100
	DefaultCacheSize       = 4096
	DefaultSendBuffer      = 256
	DefaultPingInterval    = 25 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultOrgID           = 1
	maxPushBody            = 4 << 20
)

// Config 推送服务器配置
type Config struct {
	ListenAddr string
	NodeID     string

	// AuthEnabled 为 true 时连接与 HTTP 推送都要求 JWT
	AuthEnabled bool
	JWTSecret   string

	// PushRPS 每个通道的 HTTP 推送速率，<=0 不限速
	PushRPS   float64
	PushBurst int
	// CacheSize 最近发布缓存与限速器缓存的通道数上限
	CacheSize int

	SendBuffer      int
	PingInterval    time.Duration
	ShutdownTimeout time.Duration
	// DefaultOrgID 未启用认证时使用的组织
	DefaultOrgID int64
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		NodeID:          "live-node-1",
		PushRPS:         DefaultPushRPS,
		PushBurst:       DefaultPushBurst,
		CacheSize:       DefaultCacheSize,
		SendBuffer:      DefaultSendBuffer,
		PingInterval:    DefaultPingInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		DefaultOrgID:    DefaultOrgID,
	}
}

// withDefaults 补齐零值
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.NodeID == "" {
		c.NodeID = d.NodeID
	}
	if c.PushBurst <= 0 {
		c.PushBurst = d.PushBurst
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.DefaultOrgID <= 0 {
		c.DefaultOrgID = d.DefaultOrgID
	}
	return c
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.AuthEnabled && c.JWTSecret == "" {
		return coreerrors.New(coreerrors.CodeInvalidConfig, "jwt secret is required when auth is enabled")
	}
	return nil
}
