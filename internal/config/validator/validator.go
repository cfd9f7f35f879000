// Package validator provides configuration validation
package validator

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"live-core/internal/config/schema"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string // Field path (e.g., "server.push.burst")
	Value   string // Current value (masked for secrets)
	Message string // Error message
	Hint    string // Fix suggestion
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error message
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n\n")

	for i, err := range r.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Field))
		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     Current value: %s\n", err.Value))
		}
		sb.WriteString(fmt.Sprintf("     Error: %s\n", err.Message))
		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     Hint: %s\n", err.Hint))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Hint:    hint,
	})
}

// Validator validates configuration
type Validator struct {
	rules []ValidationRule
}

// ValidationRule is a function that validates configuration
type ValidationRule func(cfg *schema.Root, result *ValidationResult)

// NewValidator creates a new Validator with default rules
func NewValidator() *Validator {
	v := &Validator{
		rules: make([]ValidationRule, 0),
	}

	// Add default rules
	v.AddRule(validateLive)
	v.AddRule(validateServer)
	v.AddRule(validateBroker)
	v.AddRule(validateLog)
	v.AddRule(validateMetrics)

	return v
}

// AddRule adds a validation rule
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate validates the configuration
func (v *Validator) Validate(cfg *schema.Root) *ValidationResult {
	result := &ValidationResult{
		Errors: make([]ValidationError, 0),
	}

	for _, rule := range v.rules {
		rule(cfg, result)
	}

	return result
}

// ValidateConfig is a convenience function that creates a validator and validates
func ValidateConfig(cfg *schema.Root) *ValidationResult {
	return NewValidator().Validate(cfg)
}

// ============================================================================
// Validation Rules
// ============================================================================

func validateLive(cfg *schema.Root, result *ValidationResult) {
	live := cfg.Live
	if !live.Enabled {
		return
	}

	validateOneOf("live.transport", live.Transport, result, schema.TransportWebSocket, schema.TransportMemory)
	if live.Transport == schema.TransportWebSocket {
		if live.AppURL == "" {
			result.AddError("live.app_url", "",
				"app_url is required for the websocket transport",
				"Set the Grafana base URL, e.g., http://localhost:3000")
		} else if u, err := url.Parse(live.AppURL); err != nil || u.Host == "" ||
			(u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss") {
			result.AddError("live.app_url", live.AppURL,
				"app_url must be an absolute http(s) or ws(s) URL",
				"Use a URL like http://localhost:3000")
		}
	}

	if live.OrgID <= 0 {
		result.AddError("live.org_id", fmt.Sprintf("%d", live.OrgID),
			"org_id must be positive",
			"Set the organization id, e.g., 1")
	}
	validateOneOf("live.org_role", live.OrgRole, result, schema.OrgRoleViewer, schema.OrgRoleEditor, schema.OrgRoleAdmin)

	validateNonNegative("live.coalesce_window", live.CoalesceWindow, result)
	validateNonNegative("live.timer.tick", live.Timer.Tick, result)
	validateNonNegative("live.timer.budget", live.Timer.Budget, result)
	validateNonNegative("live.reconnect.initial", live.Reconnect.Initial, result)
	validateNonNegative("live.reconnect.max", live.Reconnect.Max, result)
	if live.Reconnect.Max > 0 && live.Reconnect.Initial > live.Reconnect.Max {
		result.AddError("live.reconnect.initial", live.Reconnect.Initial.String(),
			"reconnect.initial must not exceed reconnect.max",
			"Set reconnect.initial <= reconnect.max")
	}
	if live.SubscriberBuffer < 0 {
		result.AddError("live.subscriber_buffer", fmt.Sprintf("%d", live.SubscriberBuffer),
			"subscriber_buffer must be non-negative",
			"Set a value >= 0, 0 uses the built-in default")
	}
}

func validateServer(cfg *schema.Root, result *ValidationResult) {
	srv := cfg.Server
	if srv.Listen != "" {
		if _, port, err := net.SplitHostPort(srv.Listen); err != nil {
			result.AddError("server.listen", srv.Listen,
				"invalid listen address",
				"Use format host:port, e.g., :3000 or 0.0.0.0:3000")
		} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			result.AddError("server.listen", srv.Listen,
				"port must be between 0 and 65535",
				"Use a valid port number, e.g., 3000")
		}
	}

	if srv.Auth.Enabled && srv.Auth.JWTSecret.IsEmpty() {
		result.AddError("server.auth.jwt_secret", "",
			"jwt_secret is required when auth is enabled",
			"Set SERVER_JWT_SECRET or disable auth")
	}

	if srv.Push.RPS > 0 && srv.Push.Burst < 1 {
		result.AddError("server.push.burst", fmt.Sprintf("%d", srv.Push.Burst),
			"burst must be at least 1 when rate limiting is enabled",
			"Set burst >= 1 or rps <= 0 to disable limiting")
	}
	if srv.CacheSize < 0 {
		result.AddError("server.cache_size", fmt.Sprintf("%d", srv.CacheSize),
			"cache_size must be non-negative",
			"Set a value >= 0")
	}
	if srv.SendBuffer < 0 {
		result.AddError("server.send_buffer", fmt.Sprintf("%d", srv.SendBuffer),
			"send_buffer must be non-negative",
			"Set a value >= 0")
	}
	validateNonNegative("server.ping_interval", srv.PingInterval, result)
	validateNonNegative("server.shutdown_timeout", srv.ShutdownTimeout, result)
	if srv.DefaultOrgID < 0 {
		result.AddError("server.default_org_id", fmt.Sprintf("%d", srv.DefaultOrgID),
			"default_org_id must be non-negative",
			"Set the organization used when auth is disabled")
	}
}

func validateBroker(cfg *schema.Root, result *ValidationResult) {
	b := cfg.Broker
	validateOneOf("broker.type", b.Type, result, schema.BrokerTypeMemory, schema.BrokerTypeRedis)
	if b.Type != schema.BrokerTypeRedis {
		return
	}

	if len(b.Redis.Addrs) == 0 {
		result.AddError("broker.redis.addrs", "[]",
			"redis.addrs is required when broker type is redis",
			"Set redis address, e.g., localhost:6379")
	}
	if !b.Redis.ClusterMode && len(b.Redis.Addrs) > 1 {
		result.AddError("broker.redis.addrs", strings.Join(b.Redis.Addrs, ","),
			"multiple addresses require cluster_mode",
			"Set broker.redis.cluster_mode = true or keep a single address")
	}
	if b.Redis.DB < 0 || b.Redis.DB > 15 {
		result.AddError("broker.redis.db", fmt.Sprintf("%d", b.Redis.DB),
			"redis.db must be between 0 and 15",
			"Set a value between 0 and 15")
	}
	if b.Redis.PoolSize < 0 {
		result.AddError("broker.redis.pool_size", fmt.Sprintf("%d", b.Redis.PoolSize),
			"pool_size must be non-negative",
			"Set a value >= 0")
	}
	validateNonNegative("broker.redis.presence_ttl", b.Redis.PresenceTTL, result)
}

func validateLog(cfg *schema.Root, result *ValidationResult) {
	validateLogLevel("log.level", cfg.Log.Level, result)
	validateLogFormat("log.format", cfg.Log.Format, result)
	if cfg.Log.Output == "file" && cfg.Log.File == "" {
		result.AddError("log.file", "",
			"file is required when output is file",
			"Set log.file to a writable path")
	}
}

func validateMetrics(cfg *schema.Root, result *ValidationResult) {
	validateOneOf("metrics.type", cfg.Metrics.Type, result, schema.MetricsTypeMemory, schema.MetricsTypePrometheus)
}

// ============================================================================
// Helper Functions
// ============================================================================

// validateOneOf accepts an empty value or one of allowed
func validateOneOf(field, value string, result *ValidationResult, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	result.AddError(field, value,
		"invalid value",
		"Use one of: "+strings.Join(allowed, ", "))
}

func validateNonNegative(field string, d time.Duration, result *ValidationResult) {
	if d < 0 {
		result.AddError(field, d.String(),
			"duration must be non-negative",
			"Set a value >= 0")
	}
}

func validateLogLevel(field, level string, result *ValidationResult) {
	validLevels := map[string]bool{
		schema.LogLevelDebug: true,
		schema.LogLevelInfo:  true,
		schema.LogLevelWarn:  true,
		schema.LogLevelError: true,
	}
	if !validLevels[level] && level != "" {
		result.AddError(field,
			level,
			"invalid log level",
			"Use one of: debug, info, warn, error")
	}
}

func validateLogFormat(field, format string, result *ValidationResult) {
	validFormats := map[string]bool{
		schema.LogFormatText: true,
		schema.LogFormatJSON: true,
	}
	if !validFormats[format] && format != "" {
		result.AddError(field,
			format,
			"invalid log format",
			"Use one of: text, json")
	}
}
