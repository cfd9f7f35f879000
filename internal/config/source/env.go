package source

import (
	"os"
	"strconv"
	"strings"
	"time"

	"live-core/internal/config/schema"
	corelog "live-core/internal/core/log"
)

// EnvSource loads configuration from environment variables.
// Keys are LIVE_*, SERVER_*, BROKER_*, REDIS_*, LOG_* and METRICS_*; a non-empty
// prefix is prepended as PREFIX_KEY.
type EnvSource struct {
	prefix string
}

// NewEnvSource creates a new EnvSource with the specified prefix (may be empty)
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{
		prefix: prefix,
	}
}

// Name returns the source name
func (s *EnvSource) Name() string {
	return "env"
}

// Priority returns the source priority
func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// LoadInto loads environment variables into the config structure
func (s *EnvSource) LoadInto(cfg *schema.Root) error {
	// Live client
	s.loadBool("LIVE_ENABLED", &cfg.Live.Enabled)
	s.loadString("LIVE_APP_URL", &cfg.Live.AppURL)
	s.loadString("LIVE_TRANSPORT", &cfg.Live.Transport)
	s.loadInt64("LIVE_ORG_ID", &cfg.Live.OrgID)
	s.loadString("LIVE_ORG_ROLE", &cfg.Live.OrgRole)
	s.loadSecret("LIVE_TOKEN", &cfg.Live.Token)
	s.loadString("LIVE_SESSION_ID", &cfg.Live.SessionID)
	s.loadDuration("LIVE_COALESCE_WINDOW", &cfg.Live.CoalesceWindow)
	s.loadDuration("LIVE_TIMER_TICK", &cfg.Live.Timer.Tick)
	s.loadDuration("LIVE_TIMER_BUDGET", &cfg.Live.Timer.Budget)
	s.loadInt("LIVE_SUBSCRIBER_BUFFER", &cfg.Live.SubscriberBuffer)
	s.loadDuration("LIVE_RECONNECT_INITIAL", &cfg.Live.Reconnect.Initial)
	s.loadDuration("LIVE_RECONNECT_MAX", &cfg.Live.Reconnect.Max)

	// Push server
	s.loadString("SERVER_LISTEN", &cfg.Server.Listen)
	s.loadBool("SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	s.loadSecret("SERVER_JWT_SECRET", &cfg.Server.Auth.JWTSecret)
	s.loadFloat("SERVER_PUSH_RPS", &cfg.Server.Push.RPS)
	s.loadInt("SERVER_PUSH_BURST", &cfg.Server.Push.Burst)
	s.loadInt("SERVER_CACHE_SIZE", &cfg.Server.CacheSize)
	s.loadInt("SERVER_SEND_BUFFER", &cfg.Server.SendBuffer)
	s.loadDuration("SERVER_PING_INTERVAL", &cfg.Server.PingInterval)
	s.loadDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	s.loadInt64("SERVER_DEFAULT_ORG_ID", &cfg.Server.DefaultOrgID)

	// Broker
	s.loadString("BROKER_TYPE", &cfg.Broker.Type)
	s.loadString("BROKER_NODE_ID", &cfg.Broker.NodeID)
	s.loadStringSlice("REDIS_ADDRS", &cfg.Broker.Redis.Addrs)
	s.loadSecret("REDIS_PASSWORD", &cfg.Broker.Redis.Password)
	s.loadInt("REDIS_DB", &cfg.Broker.Redis.DB)
	s.loadInt("REDIS_POOL_SIZE", &cfg.Broker.Redis.PoolSize)
	s.loadBool("REDIS_CLUSTER_MODE", &cfg.Broker.Redis.ClusterMode)
	s.loadDuration("REDIS_PRESENCE_TTL", &cfg.Broker.Redis.PresenceTTL)

	// Log
	s.loadString("LOG_LEVEL", &cfg.Log.Level)
	s.loadString("LOG_FORMAT", &cfg.Log.Format)
	s.loadString("LOG_OUTPUT", &cfg.Log.Output)
	s.loadString("LOG_FILE", &cfg.Log.File)

	// Metrics
	s.loadString("METRICS_TYPE", &cfg.Metrics.Type)
	s.loadString("METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	return nil
}

// getEnv gets environment variable with the configured prefix
func (s *EnvSource) getEnv(key string) (string, bool) {
	if s.prefix != "" {
		key = s.prefix + "_" + key
	}
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	return "", false
}

func (s *EnvSource) loadString(key string, target *string) {
	if v, ok := s.getEnv(key); ok {
		*target = v
	}
}

func (s *EnvSource) loadSecret(key string, target *schema.Secret) {
	if v, ok := s.getEnv(key); ok {
		*target = schema.Secret(v)
	}
}

func (s *EnvSource) loadBool(key string, target *bool) {
	if v, ok := s.getEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			corelog.Warnf("Config: ignoring %s=%q: %v", key, v, err)
			return
		}
		*target = b
	}
}

func (s *EnvSource) loadInt(key string, target *int) {
	if v, ok := s.getEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			corelog.Warnf("Config: ignoring %s=%q: %v", key, v, err)
			return
		}
		*target = i
	}
}

func (s *EnvSource) loadInt64(key string, target *int64) {
	if v, ok := s.getEnv(key); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			corelog.Warnf("Config: ignoring %s=%q: %v", key, v, err)
			return
		}
		*target = i
	}
}

func (s *EnvSource) loadFloat(key string, target *float64) {
	if v, ok := s.getEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			corelog.Warnf("Config: ignoring %s=%q: %v", key, v, err)
			return
		}
		*target = f
	}
}

func (s *EnvSource) loadDuration(key string, target *time.Duration) {
	if v, ok := s.getEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			corelog.Warnf("Config: ignoring %s=%q: %v", key, v, err)
			return
		}
		*target = d
	}
}

func (s *EnvSource) loadStringSlice(key string, target *[]string) {
	if v, ok := s.getEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}
