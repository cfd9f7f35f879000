package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"
	"live-core/internal/protocol"
	"live-core/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer 最小化的协议服务端
type fakeServer struct {
	upgrader websocket.Upgrader
	conns    atomic.Int32
	mu       sync.Mutex
	active   *websocket.Conn
	token    string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.conns.Add(1)
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := protocol.DecodeCommand(raw)
		if err != nil {
			return
		}
		var reply *protocol.Reply
		var push *protocol.Push
		switch cmd.Method {
		case protocol.MethodConnect:
			var p protocol.ConnectParams
			_ = cmd.DecodeParams(&p)
			if s.token != "" && p.Token != s.token {
				reply = protocol.NewErrorReply(cmd.ID, coreerrors.ErrUnauthorized)
				break
			}
			reply, _ = protocol.NewResultReply(cmd.ID, protocol.ConnectResult{Client: "client-1"})
		case protocol.MethodSubscribe:
			var p protocol.ChannelParams
			_ = cmd.DecodeParams(&p)
			if strings.Contains(p.Channel, "forbidden") {
				reply = protocol.NewErrorReply(cmd.ID, coreerrors.ErrForbidden)
				break
			}
			reply, _ = protocol.NewResultReply(cmd.ID, protocol.SubscribeResult{Data: json.RawMessage(`{"seed":true}`)})
			push = &protocol.Push{Type: protocol.PushJoin, Channel: p.Channel, Info: &live.ClientInfo{Client: "other", User: "bob"}}
		case protocol.MethodPresence:
			var p protocol.ChannelParams
			_ = cmd.DecodeParams(&p)
			reply, _ = protocol.NewResultReply(cmd.ID, protocol.PresenceResult{Presence: map[string]live.ClientInfo{
				"client-1": {Client: "client-1"},
			}})
		case protocol.MethodPublish:
			var p protocol.PublishParams
			_ = cmd.DecodeParams(&p)
			reply, _ = protocol.NewResultReply(cmd.ID, nil)
			push = &protocol.Push{Type: protocol.PushPublication, Channel: p.Channel, Data: p.Data}
		default:
			reply, _ = protocol.NewResultReply(cmd.ID, nil)
		}
		s.mu.Lock()
		err = conn.WriteJSON(reply)
		if err == nil && push != nil {
			err = conn.WriteJSON(protocol.NewPushReply(push))
		}
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *fakeServer) push(p *protocol.Push) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.WriteJSON(protocol.NewPushReply(p))
}

func (s *fakeServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.active.Close()
}

type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.list = append(e.list, s)
	e.mu.Unlock()
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func startTransport(t *testing.T, srv *fakeServer, token string) (*Transport, *events) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	tr, err := New(context.Background(), transport.Options{URL: ts.URL, ReconnectInitial: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	ev := &events{}
	tr.SetHandlers(transport.Handlers{
		OnConnect:    func(client string) { ev.add("connect:" + client) },
		OnDisconnect: func(error) { ev.add("disconnect") },
		OnPublish:    func(channel string, _ json.RawMessage) { ev.add("publish:" + channel) },
	})
	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{SessionID: "s1", OrgID: 1, Token: token}))
	return tr, ev
}

func subHandlers(ev *events) transport.SubscriptionHandlers {
	return transport.SubscriptionHandlers{
		OnSubscribe:   func(data json.RawMessage) { ev.add("subscribe:" + string(data)) },
		OnMessage:     func(data json.RawMessage) { ev.add("message:" + string(data)) },
		OnError:       func(err error) { ev.add("error:" + string(coreerrors.GetCode(err))) },
		OnJoin:        func(info live.ClientInfo) { ev.add("join:" + info.User) },
		OnLeave:       func(info live.ClientInfo) { ev.add("leave:" + info.User) },
		OnUnsubscribe: func() { ev.add("unsubscribe") },
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:3000":           "ws://localhost:3000/api/live/ws",
		"https://grafana.example/sub/":    "wss://grafana.example/sub/api/live/ws",
		"ws://localhost:3000/api/live/ws": "ws://localhost:3000/api/live/ws",
		"localhost:3000":                  "ws://localhost:3000/api/live/ws",
	}
	for in, want := range tests {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeURL("")
	assert.Error(t, err)
	_, err = NormalizeURL("ftp://host")
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidConfig))
}

func TestTransport_SubscribeMessagePresencePublish(t *testing.T) {
	srv := &fakeServer{}
	tr, ev := startTransport(t, srv, "")

	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "client-1", tr.ClientID())

	subEv := &events{}
	sub, err := tr.Subscribe("1/stream/a/b", subHandlers(subEv))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(subEv.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`subscribe:{"seed":true}`, "join:bob"}, subEv.get())

	presence, err := sub.Presence(context.Background())
	require.NoError(t, err)
	assert.Contains(t, presence, "client-1")

	require.NoError(t, sub.Publish(context.Background(), json.RawMessage(`{"v":1}`)))
	require.Eventually(t, func() bool { return len(subEv.get()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `message:{"v":1}`, subEv.get()[2])

	require.NoError(t, srv.push(&protocol.Push{Type: protocol.PushPublication, Channel: "1/grafana/broadcast/x", Data: json.RawMessage(`{}`)}))
	require.Eventually(t, func() bool {
		for _, e := range ev.get() {
			if e == "publish:1/grafana/broadcast/x" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, srv.push(&protocol.Push{Type: protocol.PushUnsubscribe, Channel: "1/stream/a/b"}))
	require.Eventually(t, func() bool { return len(subEv.get()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "unsubscribe", subEv.get()[3])
}

func TestTransport_ServerUnsubscribeReachesEverySubscription(t *testing.T) {
	srv := &fakeServer{}
	tr, _ := startTransport(t, srv, "")
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)

	const n = 10
	subs := make([]transport.Subscription, n)
	evs := make([]*events, n)
	for i := 0; i < n; i++ {
		evs[i] = &events{}
		sub, err := tr.Subscribe(fmt.Sprintf("1/stream/ns/%d", i), subHandlers(evs[i]))
		require.NoError(t, err)
		subs[i] = sub
	}
	for i := 0; i < n; i++ {
		e := evs[i]
		require.Eventually(t, func() bool { return len(e.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, srv.push(&protocol.Push{Type: protocol.PushUnsubscribe, Channel: subs[i].Channel()}))
	}
	for i := 0; i < n; i++ {
		e := evs[i]
		require.Eventually(t, func() bool { return len(e.get()) == 3 }, 2*time.Second, 5*time.Millisecond, "channel %d", i)
		assert.Equal(t, "unsubscribe", e.get()[2])
		assert.NoError(t, subs[i].Unsubscribe())
	}

	srv.drop()
	require.Eventually(t, func() bool { return srv.conns.Load() == 2 && tr.IsConnected() }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < n; i++ {
		assert.Len(t, evs[i].get(), 3, "channel %d resubscribed after server unsubscribe", i)
	}
}

func TestTransport_SubscribeError(t *testing.T) {
	tr, _ := startTransport(t, &fakeServer{}, "")
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)

	subEv := &events{}
	_, err := tr.Subscribe("1/stream/forbidden/x", subHandlers(subEv))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(subEv.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "error:"+string(coreerrors.CodeSubscribeFailed), subEv.get()[0])

	_, err = tr.Subscribe("1/stream/forbidden/x", subHandlers(subEv))
	assert.Error(t, err)
}

func TestTransport_ReconnectResubscribes(t *testing.T) {
	srv := &fakeServer{}
	tr, ev := startTransport(t, srv, "")
	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)

	subEv := &events{}
	_, err := tr.Subscribe("1/stream/a/b", subHandlers(subEv))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(subEv.get()) == 2 }, 2*time.Second, 5*time.Millisecond)

	srv.drop()

	require.Eventually(t, func() bool { return srv.conns.Load() == 2 && tr.IsConnected() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(subEv.get()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `subscribe:{"seed":true}`, subEv.get()[2])
	assert.Equal(t, []string{"connect:client-1", "disconnect", "connect:client-1"}, ev.get())
}

func TestTransport_Unauthorized(t *testing.T) {
	tr, ev := startTransport(t, &fakeServer{token: "secret"}, "wrong")
	time.Sleep(100 * time.Millisecond)
	assert.False(t, tr.IsConnected())
	assert.Empty(t, ev.get())
}

func TestTransport_CallsWhenDisconnected(t *testing.T) {
	tr, err := New(context.Background(), transport.Options{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer tr.Close()

	sub, err := tr.Subscribe("1/stream/a/b", transport.SubscriptionHandlers{})
	require.NoError(t, err)
	_, err = sub.Presence(context.Background())
	assert.ErrorIs(t, err, coreerrors.ErrNotConnected)
	assert.NoError(t, sub.Unsubscribe())
}
