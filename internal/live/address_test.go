package live

import (
	"testing"

	coreerrors "live-core/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_ID(t *testing.T) {
	addr := NewAddress(ScopeStream, "telegraf", "cpu/host-a")
	assert.Equal(t, "stream/telegraf/cpu/host-a", addr.String())
	assert.Equal(t, "3/stream/telegraf/cpu/host-a", addr.ID(3))
}

func TestAddress_Validate(t *testing.T) {
	tests := []struct {
		name  string
		addr  Address
		valid bool
	}{
		{"valid", NewAddress(ScopeGrafana, "dashboard", "uid/abc"), true},
		{"missing path", NewAddress(ScopeGrafana, "dashboard", ""), false},
		{"unknown scope", NewAddress("bogus", "ns", "p"), false},
		{"slash in namespace", NewAddress(ScopeDatasource, "a/b", "p"), false},
		{"whitespace", NewAddress(ScopePlugin, "ns", "a b"), false},
		{"empty segment", NewAddress(ScopeStream, "ns", "a//b"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidAddress))
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("/ds/uid-1/metrics/cpu/")
	require.NoError(t, err)
	assert.Equal(t, NewAddress(ScopeDatasource, "uid-1", "metrics/cpu"), addr)

	_, err = ParseAddress("stream/only-two")
	assert.ErrorIs(t, err, coreerrors.ErrInvalidAddress)
}

func TestParseChannelID(t *testing.T) {
	org, addr, err := ParseChannelID("12/stream/ns/a/b")
	require.NoError(t, err)
	assert.Equal(t, int64(12), org)
	assert.Equal(t, "stream/ns/a/b", addr.String())

	_, _, err = ParseChannelID("x/stream/ns/a")
	assert.Error(t, err)
	_, _, err = ParseChannelID("stream")
	assert.Error(t, err)
}

func TestChannelConfig(t *testing.T) {
	assert.Equal(t, DefaultSubscriberBuffer, ChannelConfig{}.BufferSize())
	assert.Equal(t, 8, ChannelConfig{SubscriberBuffer: 8}.BufferSize())
	assert.ErrorIs(t, ChannelConfig{SubscriberBuffer: -1}.Validate(), coreerrors.ErrInvalidConfig)
	assert.True(t, StateInvalid.IsTerminal())
	assert.False(t, StateConnected.IsTerminal())
}
