// Package config 加载并校验配置，转换为服务器、消息代理、日志与实时客户端的运行时配置
package config

import (
	"strings"

	"live-core/internal/broker"
	"live-core/internal/config/loader"
	"live-core/internal/config/schema"
	"live-core/internal/config/validator"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/live"
	"live-core/internal/live/service"
	"live-core/internal/live/timer"
	"live-core/internal/server"
	"live-core/internal/transport"
)

// 应用类型，用于定位配置文件
const (
	AppTypeServer = "server"
	AppTypeClient = "client"
)

// Load 加载并校验 appType 的配置
func Load(configFile, appType string) (*schema.Root, error) {
	cfg, _, err := LoadFile(configFile, appType)
	return cfg, err
}

// LoadFile 同 Load，并返回实际使用的 YAML 文件
func LoadFile(configFile, appType string) (*schema.Root, string, error) {
	cfg, used, err := loader.Load(configFile, appType)
	if err != nil {
		return nil, "", err
	}
	if err := Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, used, nil
}

// Validate 执行默认校验规则
func Validate(cfg *schema.Root) error {
	result := validator.ValidateConfig(cfg)
	if !result.IsValid() {
		return coreerrors.New(coreerrors.CodeInvalidConfig, strings.TrimSpace(result.Error()))
	}
	return nil
}

// ServerConfig 转换 server 配置段
func ServerConfig(cfg *schema.Root) server.Config {
	return server.Config{
		ListenAddr:      cfg.Server.Listen,
		NodeID:          cfg.Broker.NodeID,
		AuthEnabled:     cfg.Server.Auth.Enabled,
		JWTSecret:       cfg.Server.Auth.JWTSecret.Value(),
		PushRPS:         cfg.Server.Push.RPS,
		PushBurst:       cfg.Server.Push.Burst,
		CacheSize:       cfg.Server.CacheSize,
		SendBuffer:      cfg.Server.SendBuffer,
		PingInterval:    cfg.Server.PingInterval,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DefaultOrgID:    cfg.Server.DefaultOrgID,
	}
}

// BrokerConfig 转换 broker 配置段
func BrokerConfig(cfg *schema.Root) *broker.BrokerConfig {
	bc := &broker.BrokerConfig{
		Type:   broker.BrokerType(cfg.Broker.Type),
		NodeID: cfg.Broker.NodeID,
	}
	if bc.Type == broker.BrokerTypeRedis {
		r := cfg.Broker.Redis
		bc.Redis = &broker.RedisBrokerConfig{
			Addrs:       append([]string(nil), r.Addrs...),
			Password:    r.Password.Value(),
			DB:          r.DB,
			ClusterMode: r.ClusterMode,
			PoolSize:    r.PoolSize,
			PresenceTTL: r.PresenceTTL,
		}
	}
	return bc
}

// LogConfig 转换 log 配置段
func LogConfig(cfg *schema.Root) corelog.Config {
	return corelog.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		File:   cfg.Log.File,
	}
}

// MetricsType 指标后端类型
func MetricsType(cfg *schema.Root) metrics.MetricsType {
	if cfg.Metrics.Type == "" {
		return metrics.MetricsTypeMemory
	}
	return metrics.MetricsType(cfg.Metrics.Type)
}

// TimerConfig 转换实时刷新许可配置
func TimerConfig(cfg *schema.Root) timer.Config {
	return timer.Config{
		Tick:   cfg.Live.Timer.Tick,
		Budget: cfg.Live.Timer.Budget,
	}
}

// TransportOptions 转换实时传输层配置
func TransportOptions(cfg *schema.Root) transport.Options {
	return transport.Options{
		URL:              cfg.Live.AppURL,
		ReconnectInitial: cfg.Live.Reconnect.Initial,
		ReconnectMax:     cfg.Live.Reconnect.Max,
	}
}

// ChannelConfig 默认通道配置
func ChannelConfig(cfg *schema.Root) live.ChannelConfig {
	return live.ChannelConfig{SubscriberBuffer: cfg.Live.SubscriberBuffer}
}

// ServiceDeps 由 live 配置段填充实时服务依赖，transport 与 timer 由调用方创建
func ServiceDeps(cfg *schema.Root, t transport.Transport, lt *timer.LiveTimer) service.Deps {
	return service.Deps{
		OrgID:          cfg.Live.OrgID,
		OrgRole:        cfg.Live.OrgRole,
		SessionID:      cfg.Live.SessionID,
		Token:          cfg.Live.Token.Value(),
		LiveEnabled:    cfg.Live.Enabled,
		Transport:      t,
		Timer:          lt,
		CoalesceWindow: cfg.Live.CoalesceWindow,
	}
}
