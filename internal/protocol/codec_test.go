package protocol

import (
	"encoding/json"
	"testing"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_WireFormat(t *testing.T) {
	cmd, err := NewCommand(7, MethodSubscribe, ChannelParams{Channel: "1/stream/a/b"})
	require.NoError(t, err)
	raw, err := Encode(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"method":"subscribe","params":{"channel":"1/stream/a/b"}}`, string(raw))

	decoded, err := DecodeCommand(raw)
	require.NoError(t, err)
	var params ChannelParams
	require.NoError(t, decoded.DecodeParams(&params))
	assert.Equal(t, "1/stream/a/b", params.Channel)
}

func TestDecodeCommand_Invalid(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"id":0,"method":"connect"}`))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeProtocolError))

	_, err = DecodeCommand([]byte(`{"id":1,"method":"rpc"}`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{`))
	assert.Error(t, err)

	cmd := &Command{ID: 1, Method: MethodPublish}
	assert.Error(t, cmd.DecodeParams(&PublishParams{}))
}

func TestReply_ErrorCarriesCode(t *testing.T) {
	reply := NewErrorReply(3, coreerrors.ErrForbidden)
	raw, err := Encode(reply)
	require.NoError(t, err)

	decoded, err := DecodeReply(raw)
	require.NoError(t, err)
	err = decoded.DecodeResult(nil)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeForbidden))
}

func TestReply_Result(t *testing.T) {
	reply, err := NewResultReply(4, PresenceResult{Presence: map[string]live.ClientInfo{
		"c1": {Client: "c1", User: "admin"},
	}})
	require.NoError(t, err)
	raw, _ := Encode(reply)

	decoded, err := DecodeReply(raw)
	require.NoError(t, err)
	assert.False(t, decoded.IsPush())
	var result PresenceResult
	require.NoError(t, decoded.DecodeResult(&result))
	assert.Equal(t, "admin", result.Presence["c1"].User)
}

func TestPush_WireFormat(t *testing.T) {
	raw, err := Encode(NewPushReply(&Push{Type: PushPublication, Channel: "1/grafana/dashboard/x", Data: json.RawMessage(`{"v":1}`)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"push":{"type":"publication","channel":"1/grafana/dashboard/x","data":{"v":1}}}`, string(raw))

	decoded, err := DecodeReply(raw)
	require.NoError(t, err)
	assert.True(t, decoded.IsPush())

	_, err = DecodeReply([]byte(`{}`))
	assert.Error(t, err)
}
