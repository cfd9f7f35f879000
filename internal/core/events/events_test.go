package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/live"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliversInOrder(t *testing.T) {
	bus := NewEventBus(context.Background())
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(TypeChannelOpened, func(event Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.(*ChannelLifecycleEvent).ChannelID)
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{"1/stream/a/x", "1/stream/a/y", "1/stream/a/z"} {
		require.NoError(t, bus.Publish(NewChannelOpenedEvent(id)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"1/stream/a/x", "1/stream/a/y", "1/stream/a/z"}, got)
	mu.Unlock()
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(context.Background())
	defer bus.Close()

	id, err := bus.Subscribe(TypeConnectionState, func(Event) error { return nil })
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(id))

	err = bus.Unsubscribe(id)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))
}

func TestEventBus_InvalidSubscribe(t *testing.T) {
	bus := NewEventBus(context.Background())
	defer bus.Close()

	_, err := bus.Subscribe("", func(Event) error { return nil })
	assert.Error(t, err)
	_, err = bus.Subscribe(TypeStatus, nil)
	assert.Error(t, err)
	assert.Error(t, bus.Publish(nil))
}

func TestEventBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus(context.Background())
	defer bus.Close()

	_, err := bus.Subscribe(TypePublication, func(Event) error { return errors.New("boom") })
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(NewPublicationEvent("1/grafana/broadcast/x", []byte(`{"a":1}`)))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, err := WaitForEvent(ctx, bus, TypePublication)
	require.NoError(t, err)
	assert.Equal(t, "1/grafana/broadcast/x", event.(*PublicationEvent).Channel)
}

func TestEventBus_Closed(t *testing.T) {
	bus := NewEventBus(context.Background())
	require.NoError(t, bus.Close())

	err := bus.Publish(NewConnectionStateEvent(true))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeServiceClosed))
	_, err = bus.Subscribe(TypeStatus, func(Event) error { return nil })
	assert.Error(t, err)
}

func TestEventBus_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewEventBus(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		return bus.Publish(NewConnectionStateEvent(false)) != nil
	}, time.Second, 10*time.Millisecond)
}

func TestWaitForEvent_Timeout(t *testing.T) {
	bus := NewEventBus(context.Background())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := WaitForEvent(ctx, bus, TypeJoin)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeTimeout))
}

func TestStatusEvent_FromStatus(t *testing.T) {
	now := time.Now()
	cause := errors.New("subscribe failed")
	ev := NewStatusEvent(live.Status{ID: "1/ds/uid/q", Timestamp: now, State: live.StateInvalid, Error: cause})

	assert.Equal(t, TypeStatus, ev.Type())
	assert.Equal(t, "1/ds/uid/q", ev.Source())
	assert.Equal(t, now, ev.Timestamp())
	assert.Equal(t, live.StateInvalid, ev.State)
	assert.Same(t, cause, ev.Error)
}

func TestPresenceEvents(t *testing.T) {
	info := live.ClientInfo{Client: "c1", User: "admin"}
	join := NewJoinEvent("1/stream/a/b", info)
	leave := NewLeaveEvent("1/stream/a/b", info)
	assert.Equal(t, TypeJoin, join.Type())
	assert.Equal(t, TypeLeave, leave.Type())
	assert.Equal(t, "c1", leave.Client.Client)
}
