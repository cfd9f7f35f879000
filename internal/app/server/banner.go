package server

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"live-core/internal/config/schema"
	"live-core/internal/version"

	"github.com/fatih/color"
)

const (
	bannerWidth = 60
)

var (
	bannerCyan  = color.New(color.FgCyan).SprintFunc()
	bannerBold  = color.New(color.Bold).SprintFunc()
	bannerGreen = color.New(color.FgGreen).SprintFunc()
	bannerFaint = color.New(color.Faint).SprintFunc()
)

// DisplayStartupBanner 显示启动信息横幅
func (s *Server) DisplayStartupBanner(w io.Writer, configPath string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s  %s\n", bannerCyan("▌LIVE"), bannerBold("Live Push Server"))
	fmt.Fprintf(w, "  %s\n\n", bannerFaint("Version "+version.GetShortVersion()))

	section(w, "Server Information")
	rows := []struct {
		label string
		value string
	}{
		{"Node ID", s.nodeID},
		{"Config File", configPathOrDefault(configPath)},
		{"Start Time", time.Now().Format("2006-01-02 15:04:05")},
		{"Run Mode", getRunMode(s.config)},
		{"Log", getLogTarget(s.config.Log)},
		{"Metrics", s.config.Metrics.Type},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-18s %s\n", bannerBold(row.label+":"), row.value)
	}
	fmt.Fprintln(w)

	section(w, "HTTP Service")
	auth := bannerFaint("✗ Disabled")
	if s.config.Server.Auth.Enabled {
		auth = bannerGreen("✓ JWT (HS256)")
	}
	limit := "unlimited"
	if s.config.Server.Push.RPS > 0 {
		limit = fmt.Sprintf("%g/s per channel (burst %d)", s.config.Server.Push.RPS, s.config.Server.Push.Burst)
	}
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Address:"), s.config.Server.Listen)
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Authentication:"), auth)
	fmt.Fprintf(w, "  %-18s %s\n", bannerBold("Push Limit:"), limit)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bannerBold("Routes:"))
	for _, route := range []string{
		"GET    /api/live/ws",
		"POST   /api/live/push/{scope}/{namespace}/{path}",
		"GET    /api/live/channels",
		"DELETE /api/live/channels/{scope}/{namespace}/{path}",
		"GET    /healthz",
		"GET    /metrics",
	} {
		fmt.Fprintf(w, "    • %s\n", route)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, bannerFaint("  "+strings.Repeat("━", bannerWidth)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", bannerFaint("Server is starting..."))
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, bannerBold("  "+title))
	fmt.Fprintln(w, bannerFaint("  "+strings.Repeat("─", bannerWidth)))
}

func configPathOrDefault(path string) string {
	if path == "" {
		return "(defaults + environment)"
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// getRunMode 获取运行模式
func getRunMode(cfg *schema.Root) string {
	if cfg.Broker.Type == schema.BrokerTypeRedis {
		mode := "Cluster (Redis)"
		if cfg.Broker.Redis.ClusterMode {
			mode = "Cluster (Redis Cluster)"
		}
		return fmt.Sprintf("%s %s", mode, strings.Join(cfg.Broker.Redis.Addrs, ","))
	}
	return "Standalone (Memory)"
}

// getLogTarget 日志输出位置
func getLogTarget(cfg schema.LogConfig) string {
	if cfg.File != "" {
		if abs, err := filepath.Abs(cfg.File); err == nil {
			return abs
		}
		return cfg.File
	}
	if cfg.Output == "" {
		return "stderr"
	}
	return cfg.Output
}
