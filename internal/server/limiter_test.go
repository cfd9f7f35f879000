package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLimiter_PerChannelBurst(t *testing.T) {
	l, err := newPushLimiter(0.001, 2, 8)
	require.NoError(t, err)

	assert.True(t, l.Allow("1/stream/a/b"))
	assert.True(t, l.Allow("1/stream/a/b"))
	assert.False(t, l.Allow("1/stream/a/b"))

	// 其他通道有独立配额
	assert.True(t, l.Allow("1/stream/a/c"))
}

func TestPushLimiter_Unlimited(t *testing.T) {
	l, err := newPushLimiter(0, 1, 8)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("1/stream/a/b"))
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.AuthEnabled = true
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "s"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{PushRPS: 5}.withDefaults()
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, float64(5), cfg.PushRPS)
	assert.Equal(t, DefaultPushBurst, cfg.PushBurst)
	assert.Equal(t, DefaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, int64(DefaultOrgID), cfg.DefaultOrgID)
}
