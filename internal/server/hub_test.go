package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"live-core/internal/broker"
	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"
	"live-core/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "1/grafana/dashboard/abc"

type fakeSubscriber struct {
	id string

	mu     sync.Mutex
	pushes []*protocol.Push
	full   bool
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string {
	return f.id
}

func (f *fakeSubscriber) Send(push *protocol.Push) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.pushes = append(f.pushes, push)
	return true
}

func (f *fakeSubscriber) received() []*protocol.Push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Push(nil), f.pushes...)
}

func (f *fakeSubscriber) ofType(t protocol.PushType) []*protocol.Push {
	var out []*protocol.Push
	for _, p := range f.received() {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func newTestHub(t *testing.T) (*Hub, *broker.MemoryBroker) {
	t.Helper()
	mb := broker.NewMemoryBroker(context.Background(), "test-node")
	hub, err := NewHub(context.Background(), &broker.Backend{Broker: mb, Presence: broker.NewMemoryPresence()}, "test-node", 16)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = hub.Close()
		_ = mb.Close()
	})
	return hub, mb
}

func TestNewHub_RequiresBroker(t *testing.T) {
	_, err := NewHub(context.Background(), &broker.Backend{}, "n", 0)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidConfig))
}

func TestHub_PublishDeliveredToSubscribers(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")

	_, err := hub.Subscribe(ctx, a, testChannel, live.ClientInfo{Client: "a"})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, b, testChannel, live.ClientInfo{Client: "b"})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, testChannel, json.RawMessage(`{"x":1}`), "push", ""))

	for _, sub := range []*fakeSubscriber{a, b} {
		require.Eventually(t, func() bool { return len(sub.ofType(protocol.PushPublication)) == 1 }, time.Second, 5*time.Millisecond)
		assert.JSONEq(t, `{"x":1}`, string(sub.ofType(protocol.PushPublication)[0].Data))
	}
	assert.Equal(t, 1, hub.ActiveChannels())
	assert.Equal(t, 2, hub.ActiveSessions())
}

func TestHub_SubscribeReplaysLastPublication(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	require.NoError(t, hub.Publish(ctx, testChannel, json.RawMessage(`{"n":1}`), "push", ""))
	require.NoError(t, hub.Publish(ctx, testChannel, json.RawMessage(`{"n":2}`), "push", ""))

	last, err := hub.Subscribe(ctx, newFakeSubscriber("a"), testChannel, live.ClientInfo{Client: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(last))

	infos := hub.Channels()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].HasLast)
}

func TestHub_DuplicateSubscribeRejected(t *testing.T) {
	hub, _ := newTestHub(t)
	sub := newFakeSubscriber("a")
	_, err := hub.Subscribe(context.Background(), sub, testChannel, live.ClientInfo{Client: "a"})
	require.NoError(t, err)

	_, err = hub.Subscribe(context.Background(), sub, testChannel, live.ClientInfo{Client: "a"})
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeSubscribeFailed))
}

func TestHub_JoinLeaveExcludeOriginator(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")

	_, err := hub.Subscribe(ctx, a, testChannel, live.ClientInfo{Client: "a", User: "alice"})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, b, testChannel, live.ClientInfo{Client: "b", User: "bob"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(a.ofType(protocol.PushJoin)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "bob", a.ofType(protocol.PushJoin)[0].Info.User)

	require.NoError(t, hub.Unsubscribe(ctx, b, testChannel))
	require.Eventually(t, func() bool { return len(a.ofType(protocol.PushLeave)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "b", a.ofType(protocol.PushLeave)[0].Info.Client)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, b.ofType(protocol.PushJoin))
	assert.Empty(t, b.ofType(protocol.PushLeave))
}

func TestHub_PresenceTracksMembers(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()
	a := newFakeSubscriber("a")

	_, err := hub.Subscribe(ctx, a, testChannel, live.ClientInfo{Client: "a", User: "alice"})
	require.NoError(t, err)
	presence, err := hub.Presence(ctx, testChannel)
	require.NoError(t, err)
	assert.Equal(t, "alice", presence["a"].User)

	hub.RemoveSession(ctx, "a")
	presence, err = hub.Presence(ctx, testChannel)
	require.NoError(t, err)
	assert.Empty(t, presence)
	assert.Equal(t, 0, hub.ActiveSessions())
}

func TestHub_LastUnsubscribeReleasesTopic(t *testing.T) {
	hub, mb := newTestHub(t)
	ctx := context.Background()
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	topic := broker.ChannelTopic(testChannel)

	_, err := hub.Subscribe(ctx, a, testChannel, live.ClientInfo{Client: "a"})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, b, testChannel, live.ClientInfo{Client: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, mb.GetSubscriberCount(topic))

	require.NoError(t, hub.Unsubscribe(ctx, a, testChannel))
	assert.Equal(t, 1, mb.GetSubscriberCount(topic))

	require.NoError(t, hub.Unsubscribe(ctx, b, testChannel))
	assert.Equal(t, 0, mb.GetSubscriberCount(topic))
	assert.Equal(t, 0, hub.ActiveChannels())

	err = hub.Unsubscribe(ctx, b, testChannel)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))
}

func TestHub_ConcurrentFirstSubscribersShareOneTopic(t *testing.T) {
	hub, mb := newTestHub(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_, err := hub.Subscribe(ctx, newFakeSubscriber(id), testChannel, live.ClientInfo{Client: id})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, mb.GetSubscriberCount(broker.ChannelTopic(testChannel)))
}

func TestHub_ServerUnsubscribeRemovesAllMembers(t *testing.T) {
	hub, mb := newTestHub(t)
	ctx := context.Background()
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")

	_, err := hub.Subscribe(ctx, a, testChannel, live.ClientInfo{Client: "a"})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, b, testChannel, live.ClientInfo{Client: "b"})
	require.NoError(t, err)

	require.NoError(t, hub.ServerUnsubscribe(ctx, testChannel))
	require.Eventually(t, func() bool { return hub.ActiveChannels() == 0 }, time.Second, 5*time.Millisecond)
	for _, sub := range []*fakeSubscriber{a, b} {
		assert.Len(t, sub.ofType(protocol.PushUnsubscribe), 1)
	}
	assert.Equal(t, 0, mb.GetSubscriberCount(broker.ChannelTopic(testChannel)))
}

func TestHub_SlowConsumerDoesNotBlockOthers(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()
	slow, fast := newFakeSubscriber("slow"), newFakeSubscriber("fast")
	slow.full = true

	_, err := hub.Subscribe(ctx, slow, testChannel, live.ClientInfo{Client: "slow"})
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, fast, testChannel, live.ClientInfo{Client: "fast"})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, testChannel, json.RawMessage(`{}`), "push", ""))
	require.Eventually(t, func() bool { return len(fast.ofType(protocol.PushPublication)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, slow.received())
}

func TestHub_ClosedRejectsOperations(t *testing.T) {
	hub, _ := newTestHub(t)
	require.NoError(t, hub.Close())

	_, err := hub.Subscribe(context.Background(), newFakeSubscriber("a"), testChannel, live.ClientInfo{})
	assert.ErrorIs(t, err, coreerrors.ErrServiceClosed)
	assert.ErrorIs(t, hub.Publish(context.Background(), testChannel, json.RawMessage(`{}`), "push", ""), coreerrors.ErrServiceClosed)
}
