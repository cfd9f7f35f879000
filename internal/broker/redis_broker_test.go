package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis 创建测试用 Redis 实例
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBrokerConfig) {
	mr := miniredis.RunT(t)
	config := &RedisBrokerConfig{
		Addrs:    []string{mr.Addr()},
		PoolSize: 10,
	}
	return mr, config
}

func newRedisBroker(t *testing.T, config *RedisBrokerConfig, nodeID string) *RedisBroker {
	t.Helper()
	rb, err := NewRedisBroker(context.Background(), config, nodeID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })
	return rb
}

// waitSubscribed 等待订阅在服务端生效
func waitSubscribed() {
	time.Sleep(100 * time.Millisecond)
}

func receive(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb := newRedisBroker(t, config, "node-1")

	subChan, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	assert.Equal(t, 1, rb.GetSubscriberCount(testTopic))
	waitSubscribed()

	payload, err := json.Marshal(PublicationMessage{
		Channel: "1/stream/telegraf/cpu",
		Data:    json.RawMessage(`{"data":{"values":[[1]]}}`),
		Source:  "push",
	})
	require.NoError(t, err)
	require.NoError(t, rb.Publish(ctx, testTopic, payload))

	msg := receive(t, subChan)
	assert.Equal(t, testTopic, msg.Topic)
	assert.Equal(t, payload, msg.Payload)
	assert.Equal(t, "node-1", msg.NodeID)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}

func TestRedisBroker_CrossNode(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	node1 := newRedisBroker(t, config, "node-1")
	node2 := newRedisBroker(t, config, "node-2")

	sub1, err := node1.Subscribe(ctx, TopicControl)
	require.NoError(t, err)
	sub2, err := node2.Subscribe(ctx, TopicControl)
	require.NoError(t, err)
	waitSubscribed()

	payload, _ := json.Marshal(ControlMessage{Action: ControlUnsubscribe, Channel: "1/stream/a/b"})
	require.NoError(t, node2.Publish(ctx, TopicControl, payload))

	for _, ch := range []<-chan *Message{sub1, sub2} {
		msg := receive(t, ch)
		assert.Equal(t, "node-2", msg.NodeID)
		var ctl ControlMessage
		require.NoError(t, json.Unmarshal(msg.Payload, &ctl))
		assert.Equal(t, ControlUnsubscribe, ctl.Action)
	}
}

func TestRedisBroker_Unsubscribe(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb := newRedisBroker(t, config, "node-1")

	subChan, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	require.NoError(t, rb.Unsubscribe(ctx, testTopic))

	_, ok := <-subChan
	assert.False(t, ok)
	assert.Equal(t, 0, rb.GetSubscriberCount(testTopic))
	assert.True(t, coreerrors.IsCode(rb.Unsubscribe(ctx, testTopic), coreerrors.CodeNotFound))

	// 重新订阅后继续工作
	subChan, err = rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	waitSubscribed()
	require.NoError(t, rb.Publish(ctx, testTopic, []byte(`{"again":true}`)))
	assert.Equal(t, []byte(`{"again":true}`), receive(t, subChan).Payload)
}

func TestRedisBroker_Close(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb, err := NewRedisBroker(ctx, config, "node-1")
	require.NoError(t, err)

	subChan, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)

	require.NoError(t, rb.Close())
	_, ok := <-subChan
	assert.False(t, ok)

	assert.NoError(t, rb.Close())
	assert.ErrorIs(t, rb.Publish(ctx, testTopic, []byte("x")), coreerrors.ErrServiceClosed)
	_, err = rb.Subscribe(ctx, testTopic)
	assert.ErrorIs(t, err, coreerrors.ErrServiceClosed)
	assert.Error(t, rb.Ping(ctx))
}

func TestRedisBroker_DoubleSubscribe(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb := newRedisBroker(t, config, "node-1")

	_, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	_, err = rb.Subscribe(ctx, testTopic)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeSubscribeFailed))
}

func TestRedisBroker_ConnectionFailure(t *testing.T) {
	config := &RedisBrokerConfig{Addrs: []string{"127.0.0.1:1"}, PoolSize: 1}

	rb, err := NewRedisBroker(context.Background(), config, "node-1")
	assert.Nil(t, rb)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeStorageError))
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestRedisBroker_MalformedMessage(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb := newRedisBroker(t, config, "node-1")

	subChan, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	waitSubscribed()

	client := redis.NewClient(&redis.Options{Addr: config.Addrs[0]})
	defer client.Close()
	require.NoError(t, client.Publish(ctx, redisChannelPrefix+testTopic, "invalid json {not a message}").Err())

	select {
	case msg := <-subChan:
		t.Fatalf("should not receive malformed message, got: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}

	valid := []byte(`{"valid":"message"}`)
	require.NoError(t, rb.Publish(ctx, testTopic, valid))
	assert.Equal(t, valid, receive(t, subChan).Payload)
}

func TestRedisBroker_MessageOrdering(t *testing.T) {
	_, config := setupTestRedis(t)
	ctx := context.Background()
	rb := newRedisBroker(t, config, "node-1")

	subChan, err := rb.Subscribe(ctx, testTopic)
	require.NoError(t, err)
	waitSubscribed()

	const numMessages = 20
	for i := 0; i < numMessages; i++ {
		require.NoError(t, rb.Publish(ctx, testTopic, []byte(fmt.Sprintf(`{"sequence":%d}`, i))))
	}
	for i := 0; i < numMessages; i++ {
		var data map[string]int
		require.NoError(t, json.Unmarshal(receive(t, subChan).Payload, &data))
		assert.Equal(t, i, data["sequence"], "messages should be in order")
	}
}

func TestRedisPresence(t *testing.T) {
	mr, config := setupTestRedis(t)
	config.PresenceTTL = time.Minute
	ctx := context.Background()

	backend, err := NewBackend(ctx, &BrokerConfig{Type: BrokerTypeRedis, NodeID: "node-1", Redis: config})
	require.NoError(t, err)
	defer backend.Broker.Close()

	store := backend.Presence
	channel := "1/stream/telegraf/cpu"
	require.NoError(t, store.Join(ctx, channel, live.ClientInfo{Client: "c1", User: "alice"}))
	require.NoError(t, store.Join(ctx, channel, live.ClientInfo{Client: "c2", User: "bob"}))

	members, err := store.List(ctx, channel)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, "alice", members["c1"].User)
	assert.True(t, mr.Exists(presenceKey(channel)))
	assert.Equal(t, time.Minute, mr.TTL(presenceKey(channel)))

	// 另一个节点看到相同成员
	other := NewRedisPresence(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	members, err = other.List(ctx, channel)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, store.Leave(ctx, channel, "c1"))
	members, err = store.List(ctx, channel)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Contains(t, members, "c2")

	mr.HSet(presenceKey(channel), "broken", "not-json")
	members, err = store.List(ctx, channel)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMemoryPresence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPresence()
	require.NoError(t, store.Join(ctx, "a", live.ClientInfo{Client: "c1"}))
	require.NoError(t, store.Join(ctx, "a", live.ClientInfo{Client: "c1", User: "again"}))

	members, err := store.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, "again", members["c1"].User)

	require.NoError(t, store.Leave(ctx, "a", "c1"))
	require.NoError(t, store.Leave(ctx, "missing", "c1"))
	members, err = store.List(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, members)
}
