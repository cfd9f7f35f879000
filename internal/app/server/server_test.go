package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"live-core/internal/config/schema"
	"live-core/internal/config/source"
	"live-core/internal/core/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *schema.Root {
	cfg := source.GetDefaultConfig()
	cfg.Log.Output = "discard"
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func serve(t *testing.T, s *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	t.Cleanup(cancel)
	return "http://" + ln.Addr().String(), cancel, done
}

func TestServer_RunAndShutdown(t *testing.T) {
	t.Cleanup(metrics.ResetGlobalMetrics)
	cfg := testConfig()
	cfg.Metrics.Type = schema.MetricsTypePrometheus
	cfg.Metrics.Namespace = "apptest"

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	base, cancel, done := serve(t, s)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/api/live/push/stream/app/test", "application/json",
		strings.NewReader(`{"data":{"values":[[1],[2]]}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "apptest_")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, s.Live().IsClosed())
	assert.Nil(t, metrics.GetGlobalMetrics())
}

func TestServer_RedisBroker(t *testing.T) {
	t.Cleanup(metrics.ResetGlobalMetrics)
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Broker.Type = schema.BrokerTypeRedis
	cfg.Broker.Redis.Addrs = []string{mr.Addr()}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	base, cancel, done := serve(t, s)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var info map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&info)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNew_InvalidMetricsType(t *testing.T) {
	t.Cleanup(metrics.ResetGlobalMetrics)
	cfg := testConfig()
	cfg.Metrics.Type = "statsd"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_UnreachableRedis(t *testing.T) {
	t.Cleanup(metrics.ResetGlobalMetrics)
	cfg := testConfig()
	cfg.Broker.Type = schema.BrokerTypeRedis
	cfg.Broker.Redis.Addrs = []string{"127.0.0.1:1"}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, metrics.GetGlobalMetrics(), "metrics should be released when startup fails")
}

func TestDisplayStartupBanner(t *testing.T) {
	t.Cleanup(metrics.ResetGlobalMetrics)
	cfg := testConfig()
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.JWTSecret = schema.Secret("s")
	cfg.Broker.NodeID = "node-banner"

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Live().Close() })

	var buf bytes.Buffer
	s.DisplayStartupBanner(&buf, "")
	out := buf.String()
	for _, want := range []string{"node-banner", "Standalone (Memory)", "JWT", "/api/live/ws", "50/s per channel"} {
		assert.Contains(t, out, want)
	}
}
