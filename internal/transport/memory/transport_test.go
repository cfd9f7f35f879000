package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"
	"live-core/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 收集回调事件
type recorder struct {
	mu     sync.Mutex
	events []string
	data   []json.RawMessage
}

func (r *recorder) add(ev string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.data = append(r.data, data)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) handlers() transport.SubscriptionHandlers {
	return transport.SubscriptionHandlers{
		OnSubscribe:   func(data json.RawMessage) { r.add("subscribe", data) },
		OnMessage:     func(data json.RawMessage) { r.add("message", data) },
		OnError:       func(err error) { r.add("error", nil) },
		OnJoin:        func(info live.ClientInfo) { r.add("join:"+info.User, nil) },
		OnLeave:       func(info live.ClientInfo) { r.add("leave:"+info.User, nil) },
		OnUnsubscribe: func() { r.add("unsubscribe", nil) },
	}
}

func waitEvents(t *testing.T, r *recorder, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, r.snapshot())
	}, time.Second, 5*time.Millisecond, "events: %v", r.snapshot())
}

func TestTransport_ConnectAndSubscribe(t *testing.T) {
	hub := NewHub()
	tr := New(context.Background(), hub)
	defer tr.Close()

	connected := make(chan string, 1)
	tr.SetHandlers(transport.Handlers{OnConnect: func(client string) { connected <- client }})
	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{SessionID: "s1", OrgID: 1}))

	select {
	case client := <-connected:
		assert.Equal(t, tr.ClientID(), client)
	case <-time.After(time.Second):
		t.Fatal("no connect event")
	}

	hub.Publish("1/stream/a/b", json.RawMessage(`{"v":0}`))

	rec := &recorder{}
	sub, err := tr.Subscribe("1/stream/a/b", rec.handlers())
	require.NoError(t, err)
	assert.Equal(t, "1/stream/a/b", sub.Channel())

	hub.Publish("1/stream/a/b", json.RawMessage(`{"v":1}`))
	waitEvents(t, rec, "subscribe", "message")
	assert.JSONEq(t, `{"v":0}`, string(rec.data[0]))
	assert.JSONEq(t, `{"v":1}`, string(rec.data[1]))

	_, err = tr.Subscribe("1/stream/a/b", rec.handlers())
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeSubscribeFailed))
	assert.Equal(t, 2, tr.SubscribeCalls("1/stream/a/b"))
}

func TestTransport_ManualConnectDefersSubscribe(t *testing.T) {
	hub := NewHub()
	tr := New(context.Background(), hub, WithManualConnect())
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{SessionID: "s1"}))
	assert.False(t, tr.IsConnected())

	rec := &recorder{}
	_, err := tr.Subscribe("1/ds/uid/q", rec.handlers())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 0, hub.Subscribers("1/ds/uid/q"))

	require.NoError(t, tr.Establish())
	waitEvents(t, rec, "subscribe")
	assert.Equal(t, 1, hub.Subscribers("1/ds/uid/q"))
}

func TestTransport_PresenceJoinLeave(t *testing.T) {
	hub := NewHub()
	a := New(context.Background(), hub)
	b := New(context.Background(), hub)
	defer a.Close()
	defer b.Close()
	require.NoError(t, a.Connect(context.Background(), transport.ConnectData{SessionID: "alice"}))
	require.NoError(t, b.Connect(context.Background(), transport.ConnectData{SessionID: "bob"}))

	recA := &recorder{}
	subA, err := a.Subscribe("1/grafana/dashboard/x", recA.handlers())
	require.NoError(t, err)
	waitEvents(t, recA, "subscribe")

	subB, err := b.Subscribe("1/grafana/dashboard/x", (&recorder{}).handlers())
	require.NoError(t, err)
	waitEvents(t, recA, "subscribe", "join:bob")

	presence, err := subA.Presence(context.Background())
	require.NoError(t, err)
	assert.Len(t, presence, 2)
	assert.Equal(t, "bob", presence[b.ClientID()].User)

	require.NoError(t, subB.Unsubscribe())
	require.NoError(t, subB.Unsubscribe())
	waitEvents(t, recA, "subscribe", "join:bob", "leave:bob")
}

func TestTransport_DisconnectAndResubscribe(t *testing.T) {
	hub := NewHub()
	tr := New(context.Background(), hub)
	defer tr.Close()

	var mu sync.Mutex
	var states []bool
	tr.SetHandlers(transport.Handlers{
		OnConnect:    func(string) { mu.Lock(); states = append(states, true); mu.Unlock() },
		OnDisconnect: func(error) { mu.Lock(); states = append(states, false); mu.Unlock() },
	})
	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{}))

	rec := &recorder{}
	sub, err := tr.Subscribe("1/stream/a/b", rec.handlers())
	require.NoError(t, err)
	waitEvents(t, rec, "subscribe")

	tr.Disconnect(errors.New("network down"))
	_, err = sub.Presence(context.Background())
	assert.ErrorIs(t, err, coreerrors.ErrNotConnected)
	assert.ErrorIs(t, sub.Publish(context.Background(), json.RawMessage(`{}`)), coreerrors.ErrNotConnected)

	require.NoError(t, tr.Establish())
	waitEvents(t, rec, "subscribe", "subscribe")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return assert.ObjectsAreEqual([]bool{true, false, true}, states)
	}, time.Second, 5*time.Millisecond)
}

func TestTransport_FailSubscribe(t *testing.T) {
	hub := NewHub()
	tr := New(context.Background(), hub)
	defer tr.Close()
	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{}))

	tr.FailSubscribe("1/plugin/x/y", errors.New("permission denied"))
	rec := &recorder{}
	_, err := tr.Subscribe("1/plugin/x/y", rec.handlers())
	require.NoError(t, err)
	waitEvents(t, rec, "error")
}

func TestHub_ServerSideEvents(t *testing.T) {
	hub := NewHub()
	tr := New(context.Background(), hub)
	defer tr.Close()

	published := make(chan string, 1)
	tr.SetHandlers(transport.Handlers{OnPublish: func(channel string, data json.RawMessage) { published <- channel }})
	require.NoError(t, tr.Connect(context.Background(), transport.ConnectData{}))

	rec := &recorder{}
	_, err := tr.Subscribe("1/stream/a/b", rec.handlers())
	require.NoError(t, err)
	waitEvents(t, rec, "subscribe")

	hub.Broadcast("1/grafana/broadcast/all", json.RawMessage(`{"hello":true}`))
	select {
	case ch := <-published:
		assert.Equal(t, "1/grafana/broadcast/all", ch)
	case <-time.After(time.Second):
		t.Fatal("no publish event")
	}

	hub.Unsubscribe("1/stream/a/b")
	waitEvents(t, rec, "subscribe", "unsubscribe")
	assert.Equal(t, 0, hub.Subscribers("1/stream/a/b"))
}

func TestTransport_Closed(t *testing.T) {
	tr := New(context.Background(), NewHub())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Connect(context.Background(), transport.ConnectData{}), coreerrors.ErrServiceClosed)
	_, err := tr.Subscribe("1/stream/a/b", transport.SubscriptionHandlers{})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	tr, err := transport.New("memory", transport.Options{})
	require.NoError(t, err)
	defer tr.Close()
	assert.IsType(t, &Transport{}, tr)
}
