package events

import (
	"context"
	"sync"

	"live-core/internal/core/dispose"
	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"

	"github.com/google/uuid"
)

// DefaultQueueSize 总线待投递事件队列长度
const DefaultQueueSize = 256

type subscription struct {
	id        string
	eventType string
	handler   EventHandler
}

// eventBus 事件总线实现，单个投递协程保证顺序
type eventBus struct {
	dispose.Dispose

	mu          sync.RWMutex
	subscribers map[string][]subscription
	queue       chan Event
	done        chan struct{}
}

// NewEventBus 创建新的事件总线
func NewEventBus(parentCtx context.Context) EventBus {
	return NewEventBusWithQueue(parentCtx, DefaultQueueSize)
}

// NewEventBusWithQueue 创建指定队列长度的事件总线
func NewEventBusWithQueue(parentCtx context.Context, size int) EventBus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	bus := &eventBus{
		subscribers: make(map[string][]subscription),
		queue:       make(chan Event, size),
		done:        make(chan struct{}),
	}
	bus.SetCtx(parentCtx, bus.onClose)
	go bus.dispatchLoop()
	return bus
}

func (bus *eventBus) onClose() error {
	<-bus.done
	bus.mu.Lock()
	bus.subscribers = make(map[string][]subscription)
	bus.mu.Unlock()
	corelog.Debugf("EventBus: closed")
	return nil
}

func (bus *eventBus) dispatchLoop() {
	defer close(bus.done)
	for {
		select {
		case <-bus.Ctx().Done():
			return
		case event := <-bus.queue:
			bus.deliver(event)
		}
	}
}

func (bus *eventBus) deliver(event Event) {
	bus.mu.RLock()
	handlers := make([]subscription, len(bus.subscribers[event.Type()]))
	copy(handlers, bus.subscribers[event.Type()])
	bus.mu.RUnlock()

	for _, sub := range handlers {
		if err := sub.handler(event); err != nil {
			corelog.Errorf("EventBus: handler %s failed for %s: %v", sub.id, event.Type(), err)
		}
	}
}

// Publish 发布事件，队列满时丢弃并告警
func (bus *eventBus) Publish(event Event) error {
	if bus.IsClosed() {
		return coreerrors.New(coreerrors.CodeServiceClosed, "event bus is closed")
	}
	if event == nil {
		return coreerrors.New(coreerrors.CodeInvalidParam, "event cannot be nil")
	}
	select {
	case bus.queue <- event:
		return nil
	default:
		corelog.Warnf("EventBus: queue full, dropping %s event from %s", event.Type(), event.Source())
		return nil
	}
}

// Subscribe 订阅事件
func (bus *eventBus) Subscribe(eventType string, handler EventHandler) (string, error) {
	if bus.IsClosed() {
		return "", coreerrors.New(coreerrors.CodeServiceClosed, "event bus is closed")
	}
	if eventType == "" {
		return "", coreerrors.New(coreerrors.CodeInvalidParam, "event type cannot be empty")
	}
	if handler == nil {
		return "", coreerrors.New(coreerrors.CodeInvalidParam, "event handler cannot be nil")
	}

	sub := subscription{id: uuid.NewString(), eventType: eventType, handler: handler}
	bus.mu.Lock()
	bus.subscribers[eventType] = append(bus.subscribers[eventType], sub)
	bus.mu.Unlock()
	return sub.id, nil
}

// Unsubscribe 取消订阅
func (bus *eventBus) Unsubscribe(id string) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for eventType, subs := range bus.subscribers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			bus.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return nil
		}
	}
	return coreerrors.Newf(coreerrors.CodeNotFound, "subscription %s not found", id)
}

// Close 关闭事件总线
func (bus *eventBus) Close() error {
	return bus.Dispose.CloseWithError()
}

// WaitForEvent 订阅并等待一个指定类型的事件
func WaitForEvent(ctx context.Context, bus EventBus, eventType string) (Event, error) {
	ch := make(chan Event, 1)
	id, err := bus.Subscribe(eventType, func(event Event) error {
		select {
		case ch <- event:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer bus.Unsubscribe(id)

	select {
	case event := <-ch:
		return event, nil
	case <-ctx.Done():
		return nil, coreerrors.Wrapf(ctx.Err(), coreerrors.CodeTimeout, "waiting for %s event", eventType)
	}
}
